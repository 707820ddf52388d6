package repository

import (
	"context"

	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/model"

	"gorm.io/gorm"
)

// ReferenceRepository reads catalog and reference rows owned by other
// services: products, categories, vendors, addresses and buyer discounts.
type ReferenceRepository interface {
	FindProducts(ctx context.Context, tx *gorm.DB, productIDs []uint64) ([]*model.Product, error)
	FindCategory(ctx context.Context, tx *gorm.DB, categoryID uint64) (*model.Category, error)
	FindVendors(ctx context.Context, tx *gorm.DB, vendorIDs []uint64) ([]*model.Vendor, error)
	FindVendor(ctx context.Context, tx *gorm.DB, vendorID uint64) (*model.Vendor, error)
	FindAddress(ctx context.Context, tx *gorm.DB, addressID uint64) (*model.Address, error)
	FindDiscounts(ctx context.Context, tx *gorm.DB, userID uint64) ([]*model.CustomerDiscount, error)
}

type referenceRepoImpl struct {
	db *gorm.DB
}

func NewReferenceRepository(db *gorm.DB) ReferenceRepository {
	return &referenceRepoImpl{
		db: db,
	}
}

func (r *referenceRepoImpl) FindProducts(ctx context.Context, tx *gorm.DB, productIDs []uint64) ([]*model.Product, error) {
	var products []*model.Product
	if len(productIDs) == 0 {
		return products, nil
	}
	err := pick(r.db, tx).WithContext(ctx).
		Where("id IN ?", productIDs).
		Find(&products).Error
	if err != nil {
		return nil, err
	}

	return products, nil
}

func (r *referenceRepoImpl) FindCategory(ctx context.Context, tx *gorm.DB, categoryID uint64) (*model.Category, error) {
	var category model.Category
	err := pick(r.db, tx).WithContext(ctx).
		Where("id = ?", categoryID).
		First(&category).Error
	if err != nil {
		return nil, err
	}

	return &category, nil
}

func (r *referenceRepoImpl) FindVendors(ctx context.Context, tx *gorm.DB, vendorIDs []uint64) ([]*model.Vendor, error) {
	var vendors []*model.Vendor
	if len(vendorIDs) == 0 {
		return vendors, nil
	}
	err := pick(r.db, tx).WithContext(ctx).
		Where("user_id IN ?", vendorIDs).
		Find(&vendors).Error
	if err != nil {
		return nil, err
	}

	return vendors, nil
}

func (r *referenceRepoImpl) FindVendor(ctx context.Context, tx *gorm.DB, vendorID uint64) (*model.Vendor, error) {
	var vendor model.Vendor
	err := pick(r.db, tx).WithContext(ctx).
		Where("user_id = ?", vendorID).
		First(&vendor).Error
	if err != nil {
		return nil, err
	}

	return &vendor, nil
}

func (r *referenceRepoImpl) FindAddress(ctx context.Context, tx *gorm.DB, addressID uint64) (*model.Address, error) {
	var address model.Address
	err := pick(r.db, tx).WithContext(ctx).
		Where("id = ?", addressID).
		First(&address).Error
	if err != nil {
		return nil, err
	}

	return &address, nil
}

func (r *referenceRepoImpl) FindDiscounts(ctx context.Context, tx *gorm.DB, userID uint64) ([]*model.CustomerDiscount, error) {
	var discounts []*model.CustomerDiscount
	err := pick(r.db, tx).WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&discounts).Error
	if err != nil {
		return nil, err
	}

	return discounts, nil
}
