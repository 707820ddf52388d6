package model

import "time"

type PlatformSetting struct {
	Key       string `gorm:"primaryKey;size:64"`
	Value     string `gorm:"size:255;not null"`
	UpdatedAt time.Time
}

// All lists every table owned by this service, in migration order.
func All() []any {
	return []any{
		&Category{},
		&Vendor{},
		&Product{},
		&Address{},
		&CustomerDiscount{},
		&Cart{},
		&CartItem{},
		&OrderGroup{},
		&Order{},
		&OrderItem{},
		&OrderStatusHistory{},
		&PaymentAttempt{},
		&WebhookEvent{},
		&Wallet{},
		&Transaction{},
		&PayoutRequest{},
		&Invoice{},
		&PlatformSetting{},
	}
}
