package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/apperr"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/event"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/metrics"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/model"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/repository"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/pkg/log"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PlatformVendorKey is the ShippingCosts key for platform-owned products.
const PlatformVendorKey uint64 = 0

type ShippingQuote struct {
	Total  decimal.Decimal `json:"total"`
	Method string          `json:"method"`
}

type CodeGenerator interface {
	NextCode() string
}

type ConvertOptions struct {
	Type          model.OrderType
	AddressID     *uint64
	ShippingCosts map[uint64]ShippingQuote
	Actor         string
	Note          string

	// ExpectedTotal, when set, is the amount the buyer was charged. The
	// conversion is refused if the cart no longer prices to it.
	ExpectedTotal    *decimal.Decimal
	ExpectedCurrency string
	// PaymentPending starts request orders in the pending payment state
	// instead of null, for groups whose payment was captured up front.
	PaymentPending bool
}

type ConvertInput struct {
	UserID       uint64
	CartID       uint64
	OrderGroupID string
	Options      ConvertOptions
}

type QuoteInput struct {
	UserID        uint64
	CartID        uint64
	AddressID     *uint64
	ShippingCosts map[uint64]ShippingQuote
}

type QuoteGroup struct {
	VendorID      *uint64
	VendorName    string
	VendorCountry string
	Lines         []PricedLine
	Shipping      ShippingQuote
	Vat           VatRates
	Totals        GroupTotals
}

type Quote struct {
	CartID       uint64
	UserID       uint64
	AddressID    *uint64
	BuyerCountry string
	Currency     string
	Groups       []*QuoteGroup
	Subtotal     decimal.Decimal // pre-tax, summed over groups
	TaxAmount    decimal.Decimal
	Total        decimal.Decimal
}

// ComposerService turns a cart into one order per vendor. Convert is
// idempotent on the order group id.
type ComposerService interface {
	Convert(ctx context.Context, in ConvertInput) ([]*model.Order, error)
	Quote(ctx context.Context, in QuoteInput) (*Quote, error)
	// Hold freezes the cart's lines while a payment session is open.
	Hold(ctx context.Context, userID, cartID uint64) error
	// Release reopens a held cart for editing.
	Release(ctx context.Context, userID, cartID uint64) error
}

type composerServiceImpl struct {
	db            *gorm.DB
	cartRepo      repository.CartRepository
	orderRepo     repository.OrderRepository
	referenceRepo repository.ReferenceRepository
	settings      SettingsService
	codes         CodeGenerator
	publisher     event.Publisher
}

func NewComposerService(
	db *gorm.DB,
	cartRepo repository.CartRepository,
	orderRepo repository.OrderRepository,
	referenceRepo repository.ReferenceRepository,
	settings SettingsService,
	codes CodeGenerator,
	publisher event.Publisher,
) ComposerService {
	return &composerServiceImpl{
		db:            db,
		cartRepo:      cartRepo,
		orderRepo:     orderRepo,
		referenceRepo: referenceRepo,
		settings:      settings,
		codes:         codes,
		publisher:     publisher,
	}
}

// rates are read before any transaction is opened; settings reads go
// through their own connection.
type rates struct {
	commission decimal.Decimal
	vat        decimal.Decimal
	home       string
}

func (s *composerServiceImpl) loadRates(ctx context.Context) rates {
	return rates{
		commission: s.settings.CommissionPercent(ctx),
		vat:        s.settings.VatPercent(ctx),
		home:       s.settings.HomeJurisdiction(ctx),
	}
}

func (s *composerServiceImpl) Quote(ctx context.Context, in QuoteInput) (*Quote, error) {
	r := s.loadRates(ctx)

	cart, err := s.cartRepo.FindByID(ctx, nil, in.CartID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Newf(apperr.CodeNotFound, "cart %d not found", in.CartID)
	}
	if err != nil {
		return nil, fmt.Errorf("find cart: %w", err)
	}
	if cart.UserID != nil && *cart.UserID != in.UserID {
		return nil, apperr.Newf(apperr.CodeNotFound, "cart %d not found", in.CartID)
	}
	if !cart.Status.Convertible() {
		return nil, apperr.Newf(apperr.CodeValidation, "cart %d is %s", cart.ID, cart.Status)
	}

	items, err := s.cartRepo.GetItems(ctx, nil, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("get cart items: %w", err)
	}

	return s.price(ctx, nil, r, in.UserID, cart.ID, items, in.AddressID, in.ShippingCosts)
}

func (s *composerServiceImpl) Hold(ctx context.Context, userID, cartID uint64) error {
	return s.moveCart(ctx, userID, cartID,
		[]model.CartStatus{model.CartStatusActive, model.CartStatusCheckout}, model.CartStatusCheckout)
}

func (s *composerServiceImpl) Release(ctx context.Context, userID, cartID uint64) error {
	return s.moveCart(ctx, userID, cartID,
		[]model.CartStatus{model.CartStatusCheckout, model.CartStatusActive}, model.CartStatusActive)
}

func (s *composerServiceImpl) moveCart(ctx context.Context, userID, cartID uint64, from []model.CartStatus, to model.CartStatus) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cart, err := s.cartRepo.FindByIDForUpdate(ctx, tx, cartID)
		if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !cart.OwnedBy(userID, "")) {
			return apperr.Newf(apperr.CodeNotFound, "cart %d not found", cartID)
		}
		if err != nil {
			return fmt.Errorf("lock cart: %w", err)
		}
		if cart.Status == to {
			return nil
		}

		moved, err := s.cartRepo.SetStatus(ctx, tx, cart.ID, from, to)
		if err != nil {
			return fmt.Errorf("set cart status: %w", err)
		}
		if !moved {
			return apperr.Newf(apperr.CodeConflict, "cart %d is %s", cart.ID, cart.Status)
		}
		return nil
	})
}

func (s *composerServiceImpl) Convert(ctx context.Context, in ConvertInput) ([]*model.Order, error) {
	if in.OrderGroupID == "" {
		return nil, apperr.New(apperr.CodeValidation, "order group id is required")
	}
	if in.Options.Type != model.OrderTypeDirect && in.Options.Type != model.OrderTypeRequest {
		return nil, apperr.Newf(apperr.CodeValidation, "unknown order type %q", in.Options.Type)
	}
	if in.Options.Actor == "" {
		in.Options.Actor = "system"
	}

	r := s.loadRates(ctx)
	logger := log.L.With(
		zap.String("order_group_id", in.OrderGroupID),
		zap.Uint64("cart_id", in.CartID),
	)

	var orders []*model.Order
	created := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cart, err := s.cartRepo.FindByIDForUpdate(ctx, tx, in.CartID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Newf(apperr.CodeNotFound, "cart %d not found", in.CartID)
		}
		if err != nil {
			return fmt.Errorf("lock cart: %w", err)
		}
		if cart.UserID != nil && *cart.UserID != in.UserID {
			return apperr.Newf(apperr.CodeNotFound, "cart %d not found", in.CartID)
		}

		existing, err := s.orderRepo.FindByGroupID(ctx, tx, in.OrderGroupID)
		if err != nil {
			return fmt.Errorf("find orders by group: %w", err)
		}
		if len(existing) > 0 {
			group, err := s.orderRepo.FindGroup(ctx, tx, in.OrderGroupID)
			if err != nil {
				return fmt.Errorf("find order group: %w", err)
			}
			if group.CartID != cart.ID || group.UserID != in.UserID {
				return apperr.Newf(apperr.CodeConflict, "order group %s belongs to another cart", in.OrderGroupID)
			}
			orders = existing
			return nil
		}

		if !cart.Status.Convertible() {
			logger.Warn("cart already converted without orders for this group",
				zap.String("cart_status", string(cart.Status)),
			)
			return apperr.Newf(apperr.CodeConflict, "cart %d was already converted", cart.ID)
		}

		items, err := s.cartRepo.GetItems(ctx, tx, cart.ID)
		if err != nil {
			return fmt.Errorf("get cart items: %w", err)
		}

		quote, err := s.price(ctx, tx, r, in.UserID, cart.ID, items, in.Options.AddressID, in.Options.ShippingCosts)
		if err != nil {
			return err
		}
		if expected := in.Options.ExpectedTotal; expected != nil {
			if !quote.Total.Equal(*expected) || quote.Currency != in.Options.ExpectedCurrency {
				logger.Error("cart no longer matches the charged amount",
					zap.String("charged", expected.StringFixed(2)+" "+in.Options.ExpectedCurrency),
					zap.String("priced", quote.Total.StringFixed(2)+" "+quote.Currency),
				)
				return apperr.Newf(apperr.CodeConflict, "cart %d prices to %s %s, charged %s %s",
					cart.ID, quote.Total.StringFixed(2), quote.Currency, expected.StringFixed(2), in.Options.ExpectedCurrency)
			}
		}

		orders, err = s.persist(ctx, tx, quote, in)
		if err != nil {
			return err
		}

		converted, err := s.cartRepo.MarkConverted(ctx, tx, cart.ID, in.OrderGroupID)
		if err != nil {
			return fmt.Errorf("mark cart converted: %w", err)
		}
		if !converted {
			return apperr.Newf(apperr.CodeConflict, "cart %d was converted concurrently", cart.ID)
		}

		created = true
		return nil
	})
	if err != nil {
		if repository.IsDuplicateKey(err) {
			winners, recoverErr := s.recoverRace(ctx, in)
			if recoverErr != nil {
				logger.Warn("conversion race lost to another cart", zap.Error(recoverErr))
				metrics.RecordOperation("convert", false)
				return nil, recoverErr
			}
			if len(winners) > 0 {
				logger.Info("lost conversion race, returning existing orders")
				return winners, nil
			}
		}
		metrics.RecordOperation("convert", false)
		return nil, err
	}

	if created {
		metrics.RecordOperation("convert", true)
		logger.Info("cart converted",
			zap.Int("orders", len(orders)),
			zap.String("type", string(in.Options.Type)),
		)
		events := make([]event.Event, 0, len(orders))
		for _, order := range orders {
			events = append(events, event.New(event.OrderCreated, OrderEventPayload(order)))
		}
		event.PublishAll(ctx, s.publisher, events...)
	}

	return orders, nil
}

// recoverRace returns the orders another transaction committed under the same
// group id, provided they were composed from the same cart for the same buyer.
func (s *composerServiceImpl) recoverRace(ctx context.Context, in ConvertInput) ([]*model.Order, error) {
	group, err := s.orderRepo.FindGroup(ctx, nil, in.OrderGroupID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find order group: %w", err)
	}
	if group.CartID != in.CartID || group.UserID != in.UserID {
		return nil, apperr.Newf(apperr.CodeConflict, "order group %s belongs to another cart", in.OrderGroupID)
	}

	orders, err := s.orderRepo.FindByGroupID(ctx, nil, in.OrderGroupID)
	if err != nil {
		return nil, fmt.Errorf("find orders by group: %w", err)
	}
	return orders, nil
}

// price consolidates, prices and partitions cart lines by vendor. The
// platform group, if any, comes first; vendors follow by id.
func (s *composerServiceImpl) price(
	ctx context.Context,
	tx *gorm.DB,
	r rates,
	userID uint64,
	cartID uint64,
	items []*model.CartItem,
	addressID *uint64,
	shipping map[uint64]ShippingQuote,
) (*Quote, error) {
	if len(items) == 0 {
		return nil, apperr.Newf(apperr.CodeValidation, "cart %d is empty", cartID)
	}

	quantities := make(map[uint64]int32)
	var productIDs []uint64
	for _, item := range items {
		if item.Quantity < 1 {
			return nil, apperr.Newf(apperr.CodeValidation, "product %d has quantity %d", item.ProductID, item.Quantity)
		}
		if _, ok := quantities[item.ProductID]; !ok {
			productIDs = append(productIDs, item.ProductID)
		}
		quantities[item.ProductID] += item.Quantity
	}

	products, err := s.referenceRepo.FindProducts(ctx, tx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}
	if len(products) != len(productIDs) {
		return nil, apperr.New(apperr.CodeValidation, "some products are no longer available")
	}

	var vendorIDs []uint64
	seenVendor := make(map[uint64]struct{})
	for _, p := range products {
		if p.VendorID == nil {
			continue
		}
		if _, ok := seenVendor[*p.VendorID]; !ok {
			seenVendor[*p.VendorID] = struct{}{}
			vendorIDs = append(vendorIDs, *p.VendorID)
		}
	}
	vendorRows, err := s.referenceRepo.FindVendors(ctx, tx, vendorIDs)
	if err != nil {
		return nil, fmt.Errorf("find vendors: %w", err)
	}
	vendors := make(map[uint64]*model.Vendor, len(vendorRows))
	for _, v := range vendorRows {
		vendors[v.UserID] = v
	}

	discounts, err := s.referenceRepo.FindDiscounts(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("find discounts: %w", err)
	}

	buyerCountry := ""
	if addressID != nil {
		address, err := s.referenceRepo.FindAddress(ctx, tx, *addressID)
		if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && address.UserID != userID) {
			return nil, apperr.Newf(apperr.CodeValidation, "address %d not found", *addressID)
		}
		if err != nil {
			return nil, fmt.Errorf("find address: %w", err)
		}
		buyerCountry = address.Country
	}

	quote := &Quote{
		CartID:       cartID,
		UserID:       userID,
		AddressID:    addressID,
		BuyerCountry: buyerCountry,
		Subtotal:     decimal.Zero,
		TaxAmount:    decimal.Zero,
		Total:        decimal.Zero,
	}

	groups := make(map[uint64]*QuoteGroup)
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	for _, p := range products {
		if quote.Currency == "" {
			quote.Currency = p.Currency
		} else if p.Currency != quote.Currency {
			return nil, apperr.New(apperr.CodeValidation, "cart mixes currencies")
		}

		key := PlatformVendorKey
		var vendor *model.Vendor
		if p.VendorID != nil {
			key = *p.VendorID
			vendor = vendors[key]
		}

		group, ok := groups[key]
		if !ok {
			group = &QuoteGroup{VendorID: p.VendorID, VendorCountry: r.home}
			if vendor != nil {
				group.VendorName = vendor.CompanyName
				group.VendorCountry = vendor.Country
			}
			groups[key] = group
		}

		line := PriceLine(p, quantities[p.ID], CommissionFor(p, vendor, r.commission), DiscountFor(discounts, p.VendorID))
		group.Lines = append(group.Lines, line)
	}

	keys := make([]uint64, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	for _, k := range keys {
		group := groups[k]
		if q, ok := shipping[k]; ok {
			if q.Total.IsNegative() {
				return nil, apperr.Newf(apperr.CodeValidation, "negative shipping for vendor %d", k)
			}
			group.Shipping = q
		} else {
			group.Shipping = ShippingQuote{Total: decimal.Zero}
		}

		group.Vat = ResolveVAT(group.VendorCountry, buyerCountry, r.home, r.vat)
		group.Totals = ComputeGroupTotals(group.Lines, group.Shipping.Total, group.Vat.CustomerRate)

		quote.Groups = append(quote.Groups, group)
		quote.Subtotal = quote.Subtotal.Add(group.Totals.TaxableBase())
		quote.TaxAmount = quote.TaxAmount.Add(group.Totals.TaxAmount)
		quote.Total = quote.Total.Add(group.Totals.TotalAmount)
	}

	return quote, nil
}

func (s *composerServiceImpl) persist(ctx context.Context, tx *gorm.DB, quote *Quote, in ConvertInput) ([]*model.Order, error) {
	err := s.orderRepo.CreateGroup(ctx, tx, &model.OrderGroup{
		OrderGroupID: in.OrderGroupID,
		CartID:       quote.CartID,
		UserID:       in.UserID,
		Type:         in.Options.Type,
		TotalAmount:  quote.Total,
		Currency:     quote.Currency,
	})
	if err != nil {
		return nil, fmt.Errorf("create order group: %w", err)
	}

	var paymentStatus *model.PaymentStatus
	if in.Options.Type == model.OrderTypeDirect || in.Options.PaymentPending {
		paymentStatus = model.PaymentStatusPtr(model.PaymentStatusPending)
	}

	used := map[string]struct{}{in.OrderGroupID: {}}
	orders := make([]*model.Order, 0, len(quote.Groups))
	for _, group := range quote.Groups {
		orderID := in.OrderGroupID
		if len(quote.Groups) > 1 {
			orderID = s.nextCode(used)
		}

		order := &model.Order{
			OrderID:          orderID,
			OrderGroupID:     in.OrderGroupID,
			UserID:           in.UserID,
			VendorID:         group.VendorID,
			AddressID:        in.Options.AddressID,
			ProductTotal:     group.Totals.ProductTotal,
			ShippingTotal:    group.Totals.ShippingTotal,
			ShippingMethod:   group.Shipping.Method,
			PackingTotal:     group.Totals.PackingTotal,
			VatPercent:       group.Totals.VatPercent,
			TaxAmount:        group.Totals.TaxAmount,
			CommissionAmount: group.Totals.CommissionAmount,
			TotalAmount:      group.Totals.TotalAmount,
			Currency:         quote.Currency,
			Type:             in.Options.Type,
			OrderStatus:      model.OrderStatusReceived,
			PaymentStatus:    paymentStatus,
			ShipmentStatus:   model.ShipmentStatusPending,
			Items:            snapshotItems(group.Lines),
		}
		if err := s.orderRepo.Create(ctx, tx, order); err != nil {
			return nil, fmt.Errorf("create order %s: %w", orderID, err)
		}

		err := s.orderRepo.AppendHistory(ctx, tx, &model.OrderStatusHistory{
			OrderID:        order.ID,
			OrderStatus:    order.OrderStatus,
			PaymentStatus:  order.PaymentStatus,
			ShipmentStatus: order.ShipmentStatus,
			Actor:          in.Options.Actor,
			Note:           in.Options.Note,
			CreatedAt:      time.Now(),
		})
		if err != nil {
			return nil, fmt.Errorf("append history for %s: %w", orderID, err)
		}

		orders = append(orders, order)
	}

	return orders, nil
}

func (s *composerServiceImpl) nextCode(used map[string]struct{}) string {
	for {
		code := s.codes.NextCode()
		if _, ok := used[code]; !ok {
			used[code] = struct{}{}
			return code
		}
	}
}

func snapshotItems(lines []PricedLine) []model.OrderItem {
	items := make([]model.OrderItem, len(lines))
	for i, line := range lines {
		items[i] = model.OrderItem{
			ProductID:         line.ProductID,
			Name:              line.Name,
			SKU:               line.SKU,
			ImageURL:          line.ImageURL,
			BasePrice:         line.BasePrice,
			UnitPrice:         line.UnitPrice,
			CommissionPercent: line.CommissionPercent,
			DiscountPercent:   line.DiscountPercent,
			PackingCharge:     line.PackingCharge,
			Quantity:          line.Quantity,
			LineTotal:         line.LineTotal,
		}
	}
	return items
}

type OrderEvent struct {
	OrderID        string `json:"order_id"`
	OrderGroupID   string `json:"order_group_id"`
	UserID         uint64 `json:"user_id"`
	VendorID       uint64 `json:"vendor_id,omitempty"`
	Type           string `json:"type"`
	OrderStatus    string `json:"order_status"`
	PaymentStatus  string `json:"payment_status,omitempty"`
	ShipmentStatus string `json:"shipment_status"`
	TotalAmount    string `json:"total_amount"`
	Currency       string `json:"currency"`
}

func OrderEventPayload(order *model.Order) OrderEvent {
	payload := OrderEvent{
		OrderID:        order.OrderID,
		OrderGroupID:   order.OrderGroupID,
		UserID:         order.UserID,
		Type:           string(order.Type),
		OrderStatus:    string(order.OrderStatus),
		ShipmentStatus: string(order.ShipmentStatus),
		TotalAmount:    order.TotalAmount.StringFixed(2),
		Currency:       order.Currency,
	}
	if order.VendorID != nil {
		payload.VendorID = *order.VendorID
	}
	if order.PaymentStatus != nil {
		payload.PaymentStatus = string(*order.PaymentStatus)
	}
	return payload
}
