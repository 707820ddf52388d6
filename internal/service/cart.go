package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/apperr"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/model"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/repository"

	"gorm.io/gorm"
)

type CartService interface {
	GetOrCreateActive(ctx context.Context, userID uint64) (*model.Cart, error)
	Get(ctx context.Context, userID uint64, cartID uint64) (*model.Cart, error)
	AddItem(ctx context.Context, userID uint64, cartID uint64, productID uint64, quantity int32) (*model.Cart, error)
}

type cartServiceImpl struct {
	db            *gorm.DB
	cartRepo      repository.CartRepository
	referenceRepo repository.ReferenceRepository
}

func NewCartService(db *gorm.DB, cartRepo repository.CartRepository, referenceRepo repository.ReferenceRepository) CartService {
	return &cartServiceImpl{
		db:            db,
		cartRepo:      cartRepo,
		referenceRepo: referenceRepo,
	}
}

func (s *cartServiceImpl) GetOrCreateActive(ctx context.Context, userID uint64) (*model.Cart, error) {
	cart, err := s.cartRepo.FindActiveByUser(ctx, nil, userID)
	if err == nil {
		return s.withItems(ctx, cart)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("find active cart: %w", err)
	}

	cart = &model.Cart{UserID: &userID, Status: model.CartStatusActive}
	if err := s.cartRepo.Create(ctx, nil, cart); err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}
	return cart, nil
}

func (s *cartServiceImpl) Get(ctx context.Context, userID uint64, cartID uint64) (*model.Cart, error) {
	cart, err := s.owned(ctx, nil, userID, cartID)
	if err != nil {
		return nil, err
	}
	return s.withItems(ctx, cart)
}

// AddItem appends a line to an active cart. Converted carts are frozen.
func (s *cartServiceImpl) AddItem(ctx context.Context, userID uint64, cartID uint64, productID uint64, quantity int32) (*model.Cart, error) {
	if quantity < 1 {
		return nil, apperr.New(apperr.CodeValidation, "quantity must be at least 1")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cart, err := s.cartRepo.FindByIDForUpdate(ctx, tx, cartID)
		if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !cart.OwnedBy(userID, "")) {
			return apperr.Newf(apperr.CodeNotFound, "cart %d not found", cartID)
		}
		if err != nil {
			return fmt.Errorf("lock cart: %w", err)
		}
		if cart.Status != model.CartStatusActive {
			return apperr.Newf(apperr.CodeValidation, "cart %d is %s and can no longer change", cart.ID, cart.Status)
		}

		products, err := s.referenceRepo.FindProducts(ctx, tx, []uint64{productID})
		if err != nil {
			return fmt.Errorf("find product: %w", err)
		}
		if len(products) == 0 {
			return apperr.Newf(apperr.CodeNotFound, "product %d not found", productID)
		}

		return s.cartRepo.AddItem(ctx, tx, &model.CartItem{
			CartID:    cart.ID,
			ProductID: productID,
			Quantity:  quantity,
		})
	})
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, userID, cartID)
}

func (s *cartServiceImpl) owned(ctx context.Context, tx *gorm.DB, userID uint64, cartID uint64) (*model.Cart, error) {
	cart, err := s.cartRepo.FindByID(ctx, tx, cartID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Newf(apperr.CodeNotFound, "cart %d not found", cartID)
	}
	if err != nil {
		return nil, fmt.Errorf("find cart: %w", err)
	}
	if !cart.OwnedBy(userID, "") {
		return nil, apperr.Newf(apperr.CodeNotFound, "cart %d not found", cartID)
	}
	return cart, nil
}

func (s *cartServiceImpl) withItems(ctx context.Context, cart *model.Cart) (*model.Cart, error) {
	items, err := s.cartRepo.GetItems(ctx, nil, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("get cart items: %w", err)
	}
	cart.Items = make([]model.CartItem, len(items))
	for i, item := range items {
		cart.Items[i] = *item
	}
	return cart, nil
}
