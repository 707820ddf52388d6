package repository

import (
	"context"

	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/model"

	"gorm.io/gorm"
)

type PayoutRepository interface {
	Create(ctx context.Context, tx *gorm.DB, payout *model.PayoutRequest) error
	FindForUpdate(ctx context.Context, tx *gorm.DB, payoutID uint64) (*model.PayoutRequest, error)
	Update(ctx context.Context, tx *gorm.DB, payoutID uint64, fields map[string]interface{}) error
	ListByUser(ctx context.Context, userID uint64) ([]*model.PayoutRequest, error)
}

type payoutRepoImpl struct {
	db *gorm.DB
}

func NewPayoutRepository(db *gorm.DB) PayoutRepository {
	return &payoutRepoImpl{
		db: db,
	}
}

func (r *payoutRepoImpl) Create(ctx context.Context, tx *gorm.DB, payout *model.PayoutRequest) error {
	return tx.WithContext(ctx).Create(payout).Error
}

func (r *payoutRepoImpl) FindForUpdate(ctx context.Context, tx *gorm.DB, payoutID uint64) (*model.PayoutRequest, error) {
	var payout model.PayoutRequest
	err := tx.WithContext(ctx).
		Clauses(forUpdate).
		Where("id = ?", payoutID).
		First(&payout).Error
	if err != nil {
		return nil, err
	}

	return &payout, nil
}

func (r *payoutRepoImpl) Update(ctx context.Context, tx *gorm.DB, payoutID uint64, fields map[string]interface{}) error {
	return tx.WithContext(ctx).Model(&model.PayoutRequest{}).
		Where("id = ?", payoutID).
		Updates(fields).Error
}

func (r *payoutRepoImpl) ListByUser(ctx context.Context, userID uint64) ([]*model.PayoutRequest, error) {
	var payouts []*model.PayoutRequest
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Find(&payouts).Error
	if err != nil {
		return nil, err
	}

	return payouts, nil
}
