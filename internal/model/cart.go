package model

import (
	"time"

	"gorm.io/gorm"
)

type CartStatus string

const (
	CartStatusActive    CartStatus = "active"
	CartStatusCheckout  CartStatus = "checkout" // a payment session is open; lines are frozen
	CartStatusConverted CartStatus = "converted"
	CartStatusAbandoned CartStatus = "abandoned"
)

// Convertible reports whether orders may still be composed from the cart.
func (s CartStatus) Convertible() bool {
	return s == CartStatusActive || s == CartStatusCheckout
}

type Cart struct {
	ID           uint64     `gorm:"primaryKey"`
	UserID       *uint64    `gorm:"index"`
	SessionToken *string    `gorm:"size:64;index"`
	Status       CartStatus `gorm:"size:16;index;not null;default:active"`
	OrderGroupID *string    `gorm:"size:32"`
	ConvertedAt  *time.Time
	Items        []CartItem `gorm:"foreignKey:CartID"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    gorm.DeletedAt `gorm:"index"`
}

type CartItem struct {
	ID        uint64 `gorm:"primaryKey"`
	CartID    uint64 `gorm:"index;not null"`
	ProductID uint64 `gorm:"index;not null"`
	Quantity  int32  `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OwnedBy reports whether userID (or, for anonymous carts, the session token)
// owns the cart.
func (c *Cart) OwnedBy(userID uint64, sessionToken string) bool {
	if c.UserID != nil {
		return *c.UserID == userID
	}
	return c.SessionToken != nil && sessionToken != "" && *c.SessionToken == sessionToken
}
