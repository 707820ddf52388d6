package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type InvoiceType string

const (
	InvoiceTypeVendor   InvoiceType = "vendor"
	InvoiceTypeCustomer InvoiceType = "customer"
)

func (t InvoiceType) Prefix() string {
	if t == InvoiceTypeVendor {
		return "VND"
	}
	return "INV"
}

// InvoiceSourceKey identifies what an invoice was issued for: the order for
// vendor invoices, the order group for customer invoices.
func InvoiceSourceKey(t InvoiceType, id string) string {
	return string(t) + ":" + id
}

type Invoice struct {
	ID               uint64          `gorm:"primaryKey"`
	InvoiceNumber    string          `gorm:"size:32;uniqueIndex;not null"`
	Type             InvoiceType     `gorm:"size:16;not null;index:idx_invoice_type_year,priority:1"`
	Year             int             `gorm:"not null;index:idx_invoice_type_year,priority:2"`
	Sequence         int             `gorm:"not null"`
	OrderID          *string         `gorm:"size:32;index"` // vendor invoices only
	OrderGroupID     string          `gorm:"size:32;index;not null"`
	SourceKey        string          `gorm:"size:48;uniqueIndex;not null"` // one invoice per type and order or group
	AddresseeName    string          `gorm:"size:255"`
	AddresseeCountry string          `gorm:"size:64"`
	IssuerName       string          `gorm:"size:255"`
	IssuerCountry    string          `gorm:"size:64"`
	Subtotal         decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	Shipping         decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	Packing          decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	Commission       decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	VatPercent       decimal.Decimal `gorm:"type:decimal(5,2);not null"`
	VatAmount        decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	Total            decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	Currency         string          `gorm:"size:8;not null"`
	VatScenario      string          `gorm:"size:32"`
	AccessToken      string          `gorm:"size:64;uniqueIndex;not null"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeletedAt        gorm.DeletedAt `gorm:"index"`
}
