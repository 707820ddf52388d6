package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Catalog and reference rows are owned by other services; the checkout core
// only reads them.

type Product struct {
	ID                uint64           `gorm:"primaryKey"`
	VendorID          *uint64          `gorm:"index"` // nil: platform-owned
	CategoryID        *uint64          `gorm:"index"`
	Name              string           `gorm:"size:255;not null"`
	SKU               string           `gorm:"size:64;index"`
	ImageURL          string           `gorm:"size:512"`
	BasePrice         decimal.Decimal  `gorm:"type:decimal(14,2);not null"`
	PackingCharge     decimal.Decimal  `gorm:"type:decimal(14,2);not null;default:0"`
	CommissionPercent *decimal.Decimal `gorm:"type:decimal(5,2)"`
	Currency          string           `gorm:"size:8;not null;default:USD"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
	DeletedAt         gorm.DeletedAt `gorm:"index"`
}

type Category struct {
	ID         uint64  `gorm:"primaryKey"`
	ParentID   *uint64 `gorm:"index"`
	Name       string  `gorm:"size:128;not null"`
	Controlled bool    `gorm:"not null;default:false"`
}

// Vendor is keyed by the vendor's user id.
type Vendor struct {
	UserID            uint64           `gorm:"primaryKey;autoIncrement:false"`
	CompanyName       string           `gorm:"size:255;not null"`
	Country           string           `gorm:"size:64"`
	CommissionPercent *decimal.Decimal `gorm:"type:decimal(5,2)"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Address struct {
	ID        uint64 `gorm:"primaryKey"`
	UserID    uint64 `gorm:"index;not null"`
	Name      string `gorm:"size:255"`
	Line1     string `gorm:"size:255"`
	City      string `gorm:"size:128"`
	Country   string `gorm:"size:64"`
	CreatedAt time.Time
}

// CustomerDiscount applies to every product of VendorID, or to all products
// when VendorID is nil.
type CustomerDiscount struct {
	ID       uint64          `gorm:"primaryKey"`
	UserID   uint64          `gorm:"index;not null"`
	VendorID *uint64         `gorm:"index"`
	Percent  decimal.Decimal `gorm:"type:decimal(5,2);not null"`
}
