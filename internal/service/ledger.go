package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/apperr"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/model"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CreditRequest struct {
	UserID       uint64
	Amount       decimal.Decimal
	Type         model.TransactionType
	Locked       bool
	UnlockAt     *time.Time // required when Locked
	SourceUserID *uint64
	OrderID      *string
	PayoutID     *uint64
	ReferenceID  *uint64
	Note         string
}

type DebitRequest struct {
	UserID            uint64
	Amount            decimal.Decimal
	Type              model.TransactionType
	DestinationUserID *uint64
	OrderID           *string
	PayoutID          *uint64
	Note              string
}

type Balance struct {
	UserID    uint64          `json:"user_id"`
	Available decimal.Decimal `json:"available"`
	Locked    decimal.Decimal `json:"locked"`
}

// LedgerService owns wallet balances. Every call locks one wallet row,
// appends one transaction and moves one balance column by the same amount.
// The *Tx variants join the caller's transaction.
type LedgerService interface {
	Credit(ctx context.Context, req CreditRequest) (uint64, error)
	CreditTx(ctx context.Context, tx *gorm.DB, req CreditRequest) (uint64, error)
	Debit(ctx context.Context, req DebitRequest) (uint64, error)
	DebitTx(ctx context.Context, tx *gorm.DB, req DebitRequest) (uint64, error)
	UnlockTx(ctx context.Context, tx *gorm.DB, transactionID uint64) (*model.Transaction, error)
	ReverseLockedTx(ctx context.Context, tx *gorm.DB, entry *model.Transaction, note string) (uint64, error)
	GetBalance(ctx context.Context, userID uint64) (*Balance, error)
	History(ctx context.Context, userID uint64, cursor uint64, limit int) ([]*model.Transaction, error)
}

type ledgerServiceImpl struct {
	db         *gorm.DB
	ledgerRepo repository.LedgerRepository
}

func NewLedgerService(db *gorm.DB, ledgerRepo repository.LedgerRepository) LedgerService {
	return &ledgerServiceImpl{
		db:         db,
		ledgerRepo: ledgerRepo,
	}
}

func (s *ledgerServiceImpl) Credit(ctx context.Context, req CreditRequest) (uint64, error) {
	var id uint64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		id, err = s.CreditTx(ctx, tx, req)
		return err
	})
	return id, err
}

func (s *ledgerServiceImpl) CreditTx(ctx context.Context, tx *gorm.DB, req CreditRequest) (uint64, error) {
	if !req.Amount.IsPositive() {
		return 0, apperr.Newf(apperr.CodeValidation, "credit amount must be positive, got %s", req.Amount)
	}
	if req.Locked && req.UnlockAt == nil {
		return 0, apperr.New(apperr.CodeValidation, "locked credit needs an unlock time")
	}

	wallet, err := s.ledgerRepo.LockWallet(ctx, tx, req.UserID)
	if err != nil {
		return 0, fmt.Errorf("lock wallet %d: %w", req.UserID, err)
	}

	entry := &model.Transaction{
		WalletUserID:      req.UserID,
		Direction:         model.EntryCredit,
		Type:              req.Type,
		SourceUserID:      req.SourceUserID,
		DestinationUserID: &req.UserID,
		Amount:            req.Amount,
		OrderID:           req.OrderID,
		PayoutID:          req.PayoutID,
		ReferenceID:       req.ReferenceID,
		Note:              req.Note,
	}
	if req.Locked {
		entry.Status = model.TransactionStatusLocked
		entry.UnlockAt = req.UnlockAt
		wallet.LockedBalance = wallet.LockedBalance.Add(req.Amount)
	} else {
		entry.Status = model.TransactionStatusCompleted
		wallet.Balance = wallet.Balance.Add(req.Amount)
	}

	if err := s.ledgerRepo.CreateTransaction(ctx, tx, entry); err != nil {
		return 0, fmt.Errorf("insert credit: %w", err)
	}
	if err := s.ledgerRepo.SaveBalances(ctx, tx, wallet); err != nil {
		return 0, fmt.Errorf("save wallet %d: %w", req.UserID, err)
	}

	return entry.ID, nil
}

func (s *ledgerServiceImpl) Debit(ctx context.Context, req DebitRequest) (uint64, error) {
	var id uint64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		id, err = s.DebitTx(ctx, tx, req)
		return err
	})
	return id, err
}

// DebitTx only draws on the available balance; locked funds never count.
func (s *ledgerServiceImpl) DebitTx(ctx context.Context, tx *gorm.DB, req DebitRequest) (uint64, error) {
	if !req.Amount.IsPositive() {
		return 0, apperr.Newf(apperr.CodeValidation, "debit amount must be positive, got %s", req.Amount)
	}

	wallet, err := s.ledgerRepo.LockWallet(ctx, tx, req.UserID)
	if err != nil {
		return 0, fmt.Errorf("lock wallet %d: %w", req.UserID, err)
	}
	if req.Amount.GreaterThan(wallet.Balance) {
		return 0, apperr.ErrInsufficientFunds
	}

	entry := &model.Transaction{
		WalletUserID:      req.UserID,
		Direction:         model.EntryDebit,
		Type:              req.Type,
		SourceUserID:      &req.UserID,
		DestinationUserID: req.DestinationUserID,
		Amount:            req.Amount,
		Status:            model.TransactionStatusCompleted,
		OrderID:           req.OrderID,
		PayoutID:          req.PayoutID,
		Note:              req.Note,
	}
	wallet.Balance = wallet.Balance.Sub(req.Amount)

	if err := s.ledgerRepo.CreateTransaction(ctx, tx, entry); err != nil {
		return 0, fmt.Errorf("insert debit: %w", err)
	}
	if err := s.ledgerRepo.SaveBalances(ctx, tx, wallet); err != nil {
		return 0, fmt.Errorf("save wallet %d: %w", req.UserID, err)
	}

	return entry.ID, nil
}

// UnlockTx moves a matured locked entry into the available balance. It
// returns nil, nil when the entry is no longer locked.
func (s *ledgerServiceImpl) UnlockTx(ctx context.Context, tx *gorm.DB, transactionID uint64) (*model.Transaction, error) {
	entry, err := s.ledgerRepo.FindTransactionForUpdate(ctx, tx, transactionID, model.TransactionStatusLocked)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock transaction %d: %w", transactionID, err)
	}

	wallet, err := s.ledgerRepo.LockWallet(ctx, tx, entry.WalletUserID)
	if err != nil {
		return nil, fmt.Errorf("lock wallet %d: %w", entry.WalletUserID, err)
	}
	if wallet.LockedBalance.LessThan(entry.Amount) {
		return nil, fmt.Errorf("wallet %d locked balance %s below entry %d amount %s",
			wallet.UserID, wallet.LockedBalance, entry.ID, entry.Amount)
	}

	wallet.LockedBalance = wallet.LockedBalance.Sub(entry.Amount)
	wallet.Balance = wallet.Balance.Add(entry.Amount)

	flipped, err := s.ledgerRepo.SetTransactionStatus(ctx, tx, entry.ID, model.TransactionStatusLocked, model.TransactionStatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("complete transaction %d: %w", entry.ID, err)
	}
	if !flipped {
		return nil, nil
	}
	if err := s.ledgerRepo.SaveBalances(ctx, tx, wallet); err != nil {
		return nil, fmt.Errorf("save wallet %d: %w", wallet.UserID, err)
	}

	entry.Status = model.TransactionStatusCompleted
	return entry, nil
}

// ReverseLockedTx cancels a locked entry that will never mature: the entry
// is marked refunded and a refund row takes the amount out of the locked
// balance.
func (s *ledgerServiceImpl) ReverseLockedTx(ctx context.Context, tx *gorm.DB, entry *model.Transaction, note string) (uint64, error) {
	if entry.Status != model.TransactionStatusLocked {
		return 0, apperr.Newf(apperr.CodeInvalidTransition, "transaction %d is %s, not locked", entry.ID, entry.Status)
	}

	wallet, err := s.ledgerRepo.LockWallet(ctx, tx, entry.WalletUserID)
	if err != nil {
		return 0, fmt.Errorf("lock wallet %d: %w", entry.WalletUserID, err)
	}
	if wallet.LockedBalance.LessThan(entry.Amount) {
		return 0, fmt.Errorf("wallet %d locked balance %s below entry %d amount %s",
			wallet.UserID, wallet.LockedBalance, entry.ID, entry.Amount)
	}

	flipped, err := s.ledgerRepo.SetTransactionStatus(ctx, tx, entry.ID, model.TransactionStatusLocked, model.TransactionStatusRefunded)
	if err != nil {
		return 0, fmt.Errorf("refund transaction %d: %w", entry.ID, err)
	}
	if !flipped {
		return 0, apperr.Newf(apperr.CodeConflict, "transaction %d changed concurrently", entry.ID)
	}

	reversal := &model.Transaction{
		WalletUserID: entry.WalletUserID,
		Direction:    model.EntryDebit,
		Type:         model.TransactionTypeRefund,
		SourceUserID: &entry.WalletUserID,
		Amount:       entry.Amount,
		Status:       model.TransactionStatusCompleted,
		OrderID:      entry.OrderID,
		ReferenceID:  &entry.ID,
		Note:         note,
	}
	if err := s.ledgerRepo.CreateTransaction(ctx, tx, reversal); err != nil {
		return 0, fmt.Errorf("insert reversal: %w", err)
	}

	wallet.LockedBalance = wallet.LockedBalance.Sub(entry.Amount)
	if err := s.ledgerRepo.SaveBalances(ctx, tx, wallet); err != nil {
		return 0, fmt.Errorf("save wallet %d: %w", wallet.UserID, err)
	}

	return reversal.ID, nil
}

func (s *ledgerServiceImpl) GetBalance(ctx context.Context, userID uint64) (*Balance, error) {
	wallet, err := s.ledgerRepo.FindWallet(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Balance{UserID: userID, Available: decimal.Zero, Locked: decimal.Zero}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find wallet %d: %w", userID, err)
	}

	return &Balance{
		UserID:    userID,
		Available: wallet.Balance,
		Locked:    wallet.LockedBalance,
	}, nil
}

func (s *ledgerServiceImpl) History(ctx context.Context, userID uint64, cursor uint64, limit int) ([]*model.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	entries, err := s.ledgerRepo.ListByUser(ctx, userID, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return entries, nil
}
