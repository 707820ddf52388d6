package repository

import (
	"context"

	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/model"

	"gorm.io/gorm"
)

type OrderRepository interface {
	CreateGroup(ctx context.Context, tx *gorm.DB, group *model.OrderGroup) error
	FindGroup(ctx context.Context, tx *gorm.DB, orderGroupID string) (*model.OrderGroup, error)
	Create(ctx context.Context, tx *gorm.DB, order *model.Order) error
	FindByGroupID(ctx context.Context, tx *gorm.DB, orderGroupID string) ([]*model.Order, error)
	LockByGroupID(ctx context.Context, tx *gorm.DB, orderGroupID string) ([]*model.Order, error)
	FindByOrderID(ctx context.Context, tx *gorm.DB, orderID string) (*model.Order, error)
	FindByOrderIDForUpdate(ctx context.Context, tx *gorm.DB, orderID string) (*model.Order, error)
	ListByUser(ctx context.Context, userID uint64, limit int) ([]*model.Order, error)
	Update(ctx context.Context, tx *gorm.DB, orderPK uint64, fields map[string]interface{}) error
	AppendHistory(ctx context.Context, tx *gorm.DB, entries ...*model.OrderStatusHistory) error
	GetHistory(ctx context.Context, tx *gorm.DB, orderPK uint64) ([]*model.OrderStatusHistory, error)
}

type orderRepoImpl struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepoImpl{
		db: db,
	}
}

func (r *orderRepoImpl) CreateGroup(ctx context.Context, tx *gorm.DB, group *model.OrderGroup) error {
	return tx.WithContext(ctx).Create(group).Error
}

func (r *orderRepoImpl) FindGroup(ctx context.Context, tx *gorm.DB, orderGroupID string) (*model.OrderGroup, error) {
	var group model.OrderGroup
	err := pick(r.db, tx).WithContext(ctx).
		Where("order_group_id = ?", orderGroupID).
		First(&group).Error
	if err != nil {
		return nil, err
	}

	return &group, nil
}

// Create inserts the order together with its items.
func (r *orderRepoImpl) Create(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	return tx.WithContext(ctx).Create(order).Error
}

func (r *orderRepoImpl) FindByGroupID(ctx context.Context, tx *gorm.DB, orderGroupID string) ([]*model.Order, error) {
	var orders []*model.Order
	err := pick(r.db, tx).WithContext(ctx).
		Preload("Items").
		Where("order_group_id = ?", orderGroupID).
		Order("id ASC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}

	return orders, nil
}

// LockByGroupID row-locks every sibling order in id order, so two callers
// locking the same group cannot deadlock on each other.
func (r *orderRepoImpl) LockByGroupID(ctx context.Context, tx *gorm.DB, orderGroupID string) ([]*model.Order, error) {
	var orders []*model.Order
	err := tx.WithContext(ctx).
		Clauses(forUpdate).
		Where("order_group_id = ?", orderGroupID).
		Order("id ASC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}

	return orders, nil
}

func (r *orderRepoImpl) FindByOrderID(ctx context.Context, tx *gorm.DB, orderID string) (*model.Order, error) {
	var order model.Order
	err := pick(r.db, tx).WithContext(ctx).
		Preload("Items").
		Where("order_id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}

	return &order, nil
}

func (r *orderRepoImpl) FindByOrderIDForUpdate(ctx context.Context, tx *gorm.DB, orderID string) (*model.Order, error) {
	var order model.Order
	err := tx.WithContext(ctx).
		Clauses(forUpdate).
		Where("order_id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}

	return &order, nil
}

func (r *orderRepoImpl) ListByUser(ctx context.Context, userID uint64, limit int) ([]*model.Order, error) {
	if limit <= 0 {
		limit = 20
	}
	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}

	return orders, nil
}

func (r *orderRepoImpl) Update(ctx context.Context, tx *gorm.DB, orderPK uint64, fields map[string]interface{}) error {
	result := tx.WithContext(ctx).Model(&model.Order{}).
		Where("id = ?", orderPK).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

func (r *orderRepoImpl) AppendHistory(ctx context.Context, tx *gorm.DB, entries ...*model.OrderStatusHistory) error {
	if len(entries) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Create(&entries).Error
}

func (r *orderRepoImpl) GetHistory(ctx context.Context, tx *gorm.DB, orderPK uint64) ([]*model.OrderStatusHistory, error) {
	var entries []*model.OrderStatusHistory
	err := pick(r.db, tx).WithContext(ctx).
		Where("order_id = ?", orderPK).
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}

	return entries, nil
}
