package repository

import (
	"context"

	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PaymentAttemptRepository interface {
	Upsert(ctx context.Context, tx *gorm.DB, attempt *model.PaymentAttempt) error
	ListByOrder(ctx context.Context, orderPK uint64) ([]*model.PaymentAttempt, error)
}

type paymentAttemptRepoImpl struct {
	db *gorm.DB
}

func NewPaymentAttemptRepository(db *gorm.DB) PaymentAttemptRepository {
	return &paymentAttemptRepoImpl{
		db: db,
	}
}

// Upsert keeps one row per (order, session); a repeated verification
// refreshes the snapshot in place.
func (r *paymentAttemptRepoImpl) Upsert(ctx context.Context, tx *gorm.DB, attempt *model.PaymentAttempt) error {
	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "order_id"}, {Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "amount_total", "currency", "payment_intent", "payer_email", "raw", "updated_at",
		}),
	}).Create(attempt).Error
}

func (r *paymentAttemptRepoImpl) ListByOrder(ctx context.Context, orderPK uint64) ([]*model.PaymentAttempt, error) {
	var attempts []*model.PaymentAttempt
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderPK).
		Order("id ASC").
		Find(&attempts).Error
	if err != nil {
		return nil, err
	}

	return attempts, nil
}
