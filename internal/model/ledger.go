package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypePurchase      TransactionType = "purchase"
	TransactionTypeCommission    TransactionType = "commission"
	TransactionTypeVendorEarning TransactionType = "vendor_earning"
	TransactionTypePayout        TransactionType = "payout"
	TransactionTypeRefund        TransactionType = "refund"
	TransactionTypeAdjustment    TransactionType = "adjustment"
)

type TransactionStatus string

const (
	TransactionStatusLocked    TransactionStatus = "locked"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusRefunded  TransactionStatus = "refunded"
)

type EntryDirection string

const (
	EntryCredit EntryDirection = "credit"
	EntryDebit  EntryDirection = "debit"
)

type Wallet struct {
	ID            uint64          `gorm:"primaryKey"`
	UserID        uint64          `gorm:"uniqueIndex;not null"`
	Balance       decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0"`
	LockedBalance decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Transaction is a ledger entry. Rows are never edited except for the status
// flip when a locked entry matures or is reversed.
type Transaction struct {
	ID                uint64            `gorm:"primaryKey"`
	WalletUserID      uint64            `gorm:"index;not null"` // wallet this entry moved
	Direction         EntryDirection    `gorm:"size:8;not null"`
	Type              TransactionType   `gorm:"size:32;index;not null"`
	SourceUserID      *uint64           `gorm:"index"`
	DestinationUserID *uint64           `gorm:"index"`
	Amount            decimal.Decimal   `gorm:"type:decimal(14,2);not null"`
	Status            TransactionStatus `gorm:"size:16;not null;index:idx_tx_status_unlock,priority:1"`
	UnlockAt          *time.Time        `gorm:"index:idx_tx_status_unlock,priority:2"`
	OrderID           *string           `gorm:"size:32;index"`
	PayoutID          *uint64           `gorm:"index"`
	ReferenceID       *uint64           `gorm:"index"` // entry this one reverses
	Note              string            `gorm:"size:255"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type PayoutStatus string

const (
	PayoutStatusPending  PayoutStatus = "pending"
	PayoutStatusApproved PayoutStatus = "approved"
	PayoutStatusPaid     PayoutStatus = "paid"
	PayoutStatusRejected PayoutStatus = "rejected"
)

var payoutTransitions = map[PayoutStatus][]PayoutStatus{
	PayoutStatusPending:  {PayoutStatusApproved, PayoutStatusRejected},
	PayoutStatusApproved: {PayoutStatusPaid, PayoutStatusRejected},
}

func (s PayoutStatus) CanTransitionTo(next PayoutStatus) bool {
	return contains(payoutTransitions[s], next)
}

type PayoutRequest struct {
	ID                 uint64          `gorm:"primaryKey"`
	UserID             uint64          `gorm:"index;not null"`
	Amount             decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	Status             PayoutStatus    `gorm:"size:16;index;not null"`
	DebitTransactionID *uint64
	Reference          string `gorm:"size:128"` // bank transfer reference once paid
	Note               string `gorm:"size:512"`
	ApprovedAt         *time.Time
	PaidAt             *time.Time
	RejectedAt         *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
