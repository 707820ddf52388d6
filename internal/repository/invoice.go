package repository

import (
	"context"

	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/model"

	"gorm.io/gorm"
)

type InvoiceRepository interface {
	MaxSequence(ctx context.Context, tx *gorm.DB, invoiceType model.InvoiceType, year int) (int, error)
	Create(ctx context.Context, tx *gorm.DB, invoice *model.Invoice) error
	FindBySourceKey(ctx context.Context, sourceKey string) (*model.Invoice, error)
	SourceKeyUsed(ctx context.Context, sourceKey string) (bool, error)
	FindByAccessToken(ctx context.Context, token string) (*model.Invoice, error)
}

type invoiceRepoImpl struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) InvoiceRepository {
	return &invoiceRepoImpl{
		db: db,
	}
}

// MaxSequence counts soft-deleted invoices too, so a deleted number is never
// handed out again.
func (r *invoiceRepoImpl) MaxSequence(ctx context.Context, tx *gorm.DB, invoiceType model.InvoiceType, year int) (int, error) {
	var seq int
	err := pick(r.db, tx).WithContext(ctx).Unscoped().
		Model(&model.Invoice{}).
		Where("type = ? AND year = ?", invoiceType, year).
		Select("COALESCE(MAX(sequence), 0)").
		Row().Scan(&seq)
	if err != nil {
		return 0, err
	}

	return seq, nil
}

func (r *invoiceRepoImpl) Create(ctx context.Context, tx *gorm.DB, invoice *model.Invoice) error {
	return pick(r.db, tx).WithContext(ctx).Create(invoice).Error
}

func (r *invoiceRepoImpl) FindBySourceKey(ctx context.Context, sourceKey string) (*model.Invoice, error) {
	var invoice model.Invoice
	err := r.db.WithContext(ctx).
		Where("source_key = ?", sourceKey).
		First(&invoice).Error
	if err != nil {
		return nil, err
	}

	return &invoice, nil
}

// SourceKeyUsed also sees soft-deleted invoices, which still hold the key.
func (r *invoiceRepoImpl) SourceKeyUsed(ctx context.Context, sourceKey string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Unscoped().
		Model(&model.Invoice{}).
		Where("source_key = ?", sourceKey).
		Count(&n).Error
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

func (r *invoiceRepoImpl) FindByAccessToken(ctx context.Context, token string) (*model.Invoice, error) {
	var invoice model.Invoice
	err := r.db.WithContext(ctx).
		Where("access_token = ?", token).
		First(&invoice).Error
	if err != nil {
		return nil, err
	}

	return &invoice, nil
}
