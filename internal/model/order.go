package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type OrderType string

const (
	OrderTypeDirect  OrderType = "direct"
	OrderTypeRequest OrderType = "request"
)

// OrderGroup is written once per checkout. Its primary key is what decides a
// race between two conversions of the same group.
type OrderGroup struct {
	OrderGroupID string          `gorm:"primaryKey;size:32"`
	CartID       uint64          `gorm:"index;not null"`
	UserID       uint64          `gorm:"index;not null"`
	Type         OrderType       `gorm:"size:16;not null"`
	TotalAmount  decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	Currency     string          `gorm:"size:8;not null"`
	CreatedAt    time.Time
}

type Order struct {
	ID               uint64          `gorm:"primaryKey"`
	OrderID          string          `gorm:"size:32;uniqueIndex;not null"` // human-facing code
	OrderGroupID     string          `gorm:"size:32;index;not null"`
	UserID           uint64          `gorm:"index;not null"`
	VendorID         *uint64         `gorm:"index"` // nil: platform-owned
	AddressID        *uint64
	ProductTotal     decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	ShippingTotal    decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	ShippingMethod   string          `gorm:"size:64"`
	PackingTotal     decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	VatPercent       decimal.Decimal `gorm:"type:decimal(5,2);not null"`
	TaxAmount        decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	CommissionAmount decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	TotalAmount      decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	Currency         string          `gorm:"size:8;not null"`
	Type             OrderType       `gorm:"size:16;not null"`
	OrderStatus      OrderStatus     `gorm:"size:32;index;not null"`
	PaymentStatus    *PaymentStatus  `gorm:"size:16;index"`
	ShipmentStatus   ShipmentStatus  `gorm:"size:16;not null"`
	PaidAt           *time.Time
	Items            []OrderItem `gorm:"foreignKey:OrderID"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeletedAt        gorm.DeletedAt `gorm:"index"`
}

// TaxableBase is the pre-tax amount VAT is computed on.
func (o *Order) TaxableBase() decimal.Decimal {
	return o.ProductTotal.Add(o.ShippingTotal).Add(o.PackingTotal)
}

func (o *Order) IsPaid() bool {
	return o.PaymentStatus != nil && *o.PaymentStatus == PaymentStatusPaid
}

// OrderItem is a snapshot taken at conversion; later catalog edits do not
// reach it.
type OrderItem struct {
	ID                uint64          `gorm:"primaryKey"`
	OrderID           uint64          `gorm:"index;not null"`
	ProductID         uint64          `gorm:"index;not null"`
	Name              string          `gorm:"size:255;not null"`
	SKU               string          `gorm:"size:64"`
	ImageURL          string          `gorm:"size:512"`
	BasePrice         decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	UnitPrice         decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	CommissionPercent decimal.Decimal `gorm:"type:decimal(5,2);not null"`
	DiscountPercent   decimal.Decimal `gorm:"type:decimal(5,2);not null"`
	PackingCharge     decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	Quantity          int32           `gorm:"not null"`
	LineTotal         decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	CreatedAt         time.Time
}

type OrderStatusHistory struct {
	ID             uint64         `gorm:"primaryKey"`
	OrderID        uint64         `gorm:"index;not null"`
	OrderStatus    OrderStatus    `gorm:"size:32;not null"`
	PaymentStatus  *PaymentStatus `gorm:"size:16"`
	ShipmentStatus ShipmentStatus `gorm:"size:16;not null"`
	Actor          string         `gorm:"size:64;not null"`
	Note           string         `gorm:"size:512"`
	CreatedAt      time.Time
}

func (OrderStatusHistory) TableName() string {
	return "order_status_history"
}

// PaymentAttempt records what the gateway reported for one order and one
// session. Re-verification updates the same row.
type PaymentAttempt struct {
	ID            uint64          `gorm:"primaryKey"`
	OrderID       uint64          `gorm:"uniqueIndex:idx_attempt_order_session;not null"`
	SessionID     string          `gorm:"size:128;uniqueIndex:idx_attempt_order_session;not null"`
	Status        string          `gorm:"size:32;not null"`
	AmountTotal   decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	Currency      string          `gorm:"size:8"`
	PaymentIntent string          `gorm:"size:128"`
	PayerEmail    string          `gorm:"size:255"`
	Raw           datatypes.JSON
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type WebhookEvent struct {
	EventID     string `gorm:"primaryKey;size:128;not null"`
	EventType   string `gorm:"size:64;index"`
	ProcessedAt time.Time
	CreatedAt   time.Time
}
