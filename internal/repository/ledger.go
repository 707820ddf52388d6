package repository

import (
	"context"
	"time"

	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerRepository is the only writer of wallets and transactions.
type LedgerRepository interface {
	LockWallet(ctx context.Context, tx *gorm.DB, userID uint64) (*model.Wallet, error)
	FindWallet(ctx context.Context, userID uint64) (*model.Wallet, error)
	SaveBalances(ctx context.Context, tx *gorm.DB, wallet *model.Wallet) error
	CreateTransaction(ctx context.Context, tx *gorm.DB, entry *model.Transaction) error
	FindTransactionForUpdate(ctx context.Context, tx *gorm.DB, id uint64, status model.TransactionStatus) (*model.Transaction, error)
	SetTransactionStatus(ctx context.Context, tx *gorm.DB, id uint64, from, to model.TransactionStatus) (bool, error)
	ListMaturedLockedIDs(ctx context.Context, now time.Time, limit int) ([]uint64, error)
	ListLockedByOrder(ctx context.Context, tx *gorm.DB, orderID string) ([]*model.Transaction, error)
	ListByUser(ctx context.Context, userID uint64, cursor uint64, limit int) ([]*model.Transaction, error)
}

type ledgerRepoImpl struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepoImpl{
		db: db,
	}
}

// LockWallet opens the wallet on first use and returns it row-locked.
func (r *ledgerRepoImpl) LockWallet(ctx context.Context, tx *gorm.DB, userID uint64) (*model.Wallet, error) {
	err := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&model.Wallet{
		UserID:        userID,
		Balance:       decimal.Zero,
		LockedBalance: decimal.Zero,
	}).Error
	if err != nil {
		return nil, err
	}

	var wallet model.Wallet
	err = tx.WithContext(ctx).
		Clauses(forUpdate).
		Where("user_id = ?", userID).
		First(&wallet).Error
	if err != nil {
		return nil, err
	}

	return &wallet, nil
}

func (r *ledgerRepoImpl) FindWallet(ctx context.Context, userID uint64) (*model.Wallet, error) {
	var wallet model.Wallet
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&wallet).Error
	if err != nil {
		return nil, err
	}

	return &wallet, nil
}

func (r *ledgerRepoImpl) SaveBalances(ctx context.Context, tx *gorm.DB, wallet *model.Wallet) error {
	return tx.WithContext(ctx).Model(&model.Wallet{}).
		Where("id = ?", wallet.ID).
		Updates(map[string]interface{}{
			"balance":        wallet.Balance,
			"locked_balance": wallet.LockedBalance,
			"updated_at":     time.Now(),
		}).Error
}

func (r *ledgerRepoImpl) CreateTransaction(ctx context.Context, tx *gorm.DB, entry *model.Transaction) error {
	return tx.WithContext(ctx).Create(entry).Error
}

// FindTransactionForUpdate locks the entry only while it still has status.
func (r *ledgerRepoImpl) FindTransactionForUpdate(ctx context.Context, tx *gorm.DB, id uint64, status model.TransactionStatus) (*model.Transaction, error) {
	var entry model.Transaction
	err := tx.WithContext(ctx).
		Clauses(forUpdate).
		Where("id = ? AND status = ?", id, status).
		First(&entry).Error
	if err != nil {
		return nil, err
	}

	return &entry, nil
}

func (r *ledgerRepoImpl) SetTransactionStatus(ctx context.Context, tx *gorm.DB, id uint64, from, to model.TransactionStatus) (bool, error) {
	result := tx.WithContext(ctx).Model(&model.Transaction{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected == 1, nil
}

func (r *ledgerRepoImpl) ListMaturedLockedIDs(ctx context.Context, now time.Time, limit int) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).Model(&model.Transaction{}).
		Where("status = ? AND unlock_at IS NOT NULL AND unlock_at <= ?", model.TransactionStatusLocked, now).
		Order("unlock_at ASC, id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}

	return ids, nil
}

func (r *ledgerRepoImpl) ListLockedByOrder(ctx context.Context, tx *gorm.DB, orderID string) ([]*model.Transaction, error) {
	var entries []*model.Transaction
	err := tx.WithContext(ctx).
		Clauses(forUpdate).
		Where("order_id = ? AND status = ?", orderID, model.TransactionStatusLocked).
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// ListByUser pages a wallet's history newest first; cursor is the last id seen.
func (r *ledgerRepoImpl) ListByUser(ctx context.Context, userID uint64, cursor uint64, limit int) ([]*model.Transaction, error) {
	query := r.db.WithContext(ctx).Where("wallet_user_id = ?", userID)
	if cursor > 0 {
		query = query.Where("id < ?", cursor)
	}

	var entries []*model.Transaction
	err := query.Order("id DESC").Limit(limit).Find(&entries).Error
	if err != nil {
		return nil, err
	}

	return entries, nil
}
