package repository

import (
	"context"
	"time"

	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/model"

	"gorm.io/gorm"
)

type CartRepository interface {
	Create(ctx context.Context, tx *gorm.DB, cart *model.Cart) error
	FindByID(ctx context.Context, tx *gorm.DB, cartID uint64) (*model.Cart, error)
	FindByIDForUpdate(ctx context.Context, tx *gorm.DB, cartID uint64) (*model.Cart, error)
	FindActiveByUser(ctx context.Context, tx *gorm.DB, userID uint64) (*model.Cart, error)
	GetItems(ctx context.Context, tx *gorm.DB, cartID uint64) ([]*model.CartItem, error)
	AddItem(ctx context.Context, tx *gorm.DB, item *model.CartItem) error
	SetStatus(ctx context.Context, tx *gorm.DB, cartID uint64, from []model.CartStatus, to model.CartStatus) (bool, error)
	MarkConverted(ctx context.Context, tx *gorm.DB, cartID uint64, orderGroupID string) (bool, error)
}

type cartRepoImpl struct {
	db *gorm.DB
}

func NewCartRepository(db *gorm.DB) CartRepository {
	return &cartRepoImpl{
		db: db,
	}
}

func (r *cartRepoImpl) Create(ctx context.Context, tx *gorm.DB, cart *model.Cart) error {
	return pick(r.db, tx).WithContext(ctx).Create(cart).Error
}

func (r *cartRepoImpl) FindByID(ctx context.Context, tx *gorm.DB, cartID uint64) (*model.Cart, error) {
	var cart model.Cart
	err := pick(r.db, tx).WithContext(ctx).
		Where("id = ?", cartID).
		First(&cart).Error
	if err != nil {
		return nil, err
	}

	return &cart, nil
}

// FindByIDForUpdate holds the cart row lock until tx ends.
func (r *cartRepoImpl) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, cartID uint64) (*model.Cart, error) {
	var cart model.Cart
	err := tx.WithContext(ctx).
		Clauses(forUpdate).
		Where("id = ?", cartID).
		First(&cart).Error
	if err != nil {
		return nil, err
	}

	return &cart, nil
}

func (r *cartRepoImpl) FindActiveByUser(ctx context.Context, tx *gorm.DB, userID uint64) (*model.Cart, error) {
	var cart model.Cart
	err := pick(r.db, tx).WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, []model.CartStatus{model.CartStatusActive, model.CartStatusCheckout}).
		Order("id DESC").
		First(&cart).Error
	if err != nil {
		return nil, err
	}

	return &cart, nil
}

func (r *cartRepoImpl) GetItems(ctx context.Context, tx *gorm.DB, cartID uint64) ([]*model.CartItem, error) {
	var items []*model.CartItem
	err := pick(r.db, tx).WithContext(ctx).
		Where("cart_id = ?", cartID).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}

	return items, nil
}

func (r *cartRepoImpl) AddItem(ctx context.Context, tx *gorm.DB, item *model.CartItem) error {
	return pick(r.db, tx).WithContext(ctx).Create(item).Error
}

// SetStatus moves the cart to `to` if it is currently in one of `from`.
func (r *cartRepoImpl) SetStatus(ctx context.Context, tx *gorm.DB, cartID uint64, from []model.CartStatus, to model.CartStatus) (bool, error) {
	result := pick(r.db, tx).WithContext(ctx).Model(&model.Cart{}).
		Where("id = ? AND status IN ?", cartID, from).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected == 1, nil
}

// MarkConverted flips an active or checkout cart to converted. It reports
// false when the cart could no longer be converted.
func (r *cartRepoImpl) MarkConverted(ctx context.Context, tx *gorm.DB, cartID uint64, orderGroupID string) (bool, error) {
	result := tx.WithContext(ctx).Model(&model.Cart{}).
		Where("id = ? AND status IN ?", cartID, []model.CartStatus{model.CartStatusActive, model.CartStatusCheckout}).
		Updates(map[string]interface{}{
			"status":         model.CartStatusConverted,
			"order_group_id": orderGroupID,
			"converted_at":   time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected == 1, nil
}
