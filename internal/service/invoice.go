package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/apperr"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/model"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/repository"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/pkg/log"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const invoiceNumberAttempts = 5

type InvoiceService interface {
	GenerateVendorInvoice(ctx context.Context, orderID string) (*model.Invoice, error)
	GenerateCustomerInvoice(ctx context.Context, orderID string) (*model.Invoice, error)
	GetByAccessToken(ctx context.Context, token string) (*model.Invoice, error)
}

type invoiceServiceImpl struct {
	invoiceRepo   repository.InvoiceRepository
	orderRepo     repository.OrderRepository
	referenceRepo repository.ReferenceRepository
	settings      SettingsService
	platformName  string
	now           func() time.Time
}

func NewInvoiceService(
	invoiceRepo repository.InvoiceRepository,
	orderRepo repository.OrderRepository,
	referenceRepo repository.ReferenceRepository,
	settings SettingsService,
	platformName string,
) InvoiceService {
	return &invoiceServiceImpl{
		invoiceRepo:   invoiceRepo,
		orderRepo:     orderRepo,
		referenceRepo: referenceRepo,
		settings:      settings,
		platformName:  platformName,
		now:           time.Now,
	}
}

// GenerateVendorInvoice bills the platform on the vendor's behalf for one
// order: the vendor's net after commission, taxed at the vendor-side rate.
func (s *invoiceServiceImpl) GenerateVendorInvoice(ctx context.Context, orderID string) (*model.Invoice, error) {
	key := model.InvoiceSourceKey(model.InvoiceTypeVendor, orderID)
	if existing, err := s.findExisting(ctx, key); existing != nil || err != nil {
		return existing, err
	}

	order, err := s.paidOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.VendorID == nil {
		return nil, apperr.Newf(apperr.CodeValidation, "order %s is sold by the platform and has no vendor invoice", orderID)
	}

	vendor, err := s.referenceRepo.FindVendor(ctx, nil, *order.VendorID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Newf(apperr.CodeNotFound, "vendor %d not found", *order.VendorID)
	}
	if err != nil {
		return nil, fmt.Errorf("find vendor: %w", err)
	}

	home := s.settings.HomeJurisdiction(ctx)
	_, buyerCountry, err := s.buyer(ctx, order)
	if err != nil {
		return nil, err
	}
	vat := ResolveVAT(vendor.Country, buyerCountry, home, s.settings.VatPercent(ctx))

	net := order.TaxableBase().Sub(order.CommissionAmount)
	vatAmount := net.Mul(vat.VendorRate).Div(hundred).Round(2)

	invoice := &model.Invoice{
		Type:             model.InvoiceTypeVendor,
		OrderID:          &order.OrderID,
		OrderGroupID:     order.OrderGroupID,
		SourceKey:        key,
		AddresseeName:    s.platformName,
		AddresseeCountry: home,
		IssuerName:       vendor.CompanyName,
		IssuerCountry:    vendor.Country,
		Subtotal:         order.ProductTotal,
		Shipping:         order.ShippingTotal,
		Packing:          order.PackingTotal,
		Commission:       order.CommissionAmount,
		VatPercent:       vat.VendorRate,
		VatAmount:        vatAmount,
		Total:            net.Add(vatAmount),
		Currency:         order.Currency,
		VatScenario:      string(vat.Scenario),
	}
	return s.issue(ctx, invoice)
}

// GenerateCustomerInvoice bills the buyer for the whole order group. Tax is
// what each sibling order charged at the customer-side rate.
func (s *invoiceServiceImpl) GenerateCustomerInvoice(ctx context.Context, orderID string) (*model.Invoice, error) {
	order, err := s.paidOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	key := model.InvoiceSourceKey(model.InvoiceTypeCustomer, order.OrderGroupID)
	if existing, err := s.findExisting(ctx, key); existing != nil || err != nil {
		return existing, err
	}

	siblings, err := s.orderRepo.FindByGroupID(ctx, nil, order.OrderGroupID)
	if err != nil {
		return nil, fmt.Errorf("find sibling orders: %w", err)
	}

	home := s.settings.HomeJurisdiction(ctx)
	buyerName, buyerCountry, err := s.buyer(ctx, order)
	if err != nil {
		return nil, err
	}

	invoice := &model.Invoice{
		Type:             model.InvoiceTypeCustomer,
		OrderGroupID:     order.OrderGroupID,
		SourceKey:        key,
		AddresseeName:    buyerName,
		AddresseeCountry: buyerCountry,
		IssuerName:       s.platformName,
		IssuerCountry:    home,
		Subtotal:         decimal.Zero,
		Shipping:         decimal.Zero,
		Packing:          decimal.Zero,
		Commission:       decimal.Zero,
		VatAmount:        decimal.Zero,
		Total:            decimal.Zero,
		Currency:         order.Currency,
	}

	scenarios := make(map[VatScenario]struct{})
	rates := make(map[string]decimal.Decimal)
	for _, sibling := range siblings {
		invoice.Subtotal = invoice.Subtotal.Add(sibling.ProductTotal)
		invoice.Shipping = invoice.Shipping.Add(sibling.ShippingTotal)
		invoice.Packing = invoice.Packing.Add(sibling.PackingTotal)
		invoice.Commission = invoice.Commission.Add(sibling.CommissionAmount)
		invoice.VatAmount = invoice.VatAmount.Add(sibling.TaxAmount)
		invoice.Total = invoice.Total.Add(sibling.TotalAmount)
		rates[sibling.VatPercent.String()] = sibling.VatPercent

		vendorCountry := home
		if sibling.VendorID != nil {
			vendor, err := s.referenceRepo.FindVendor(ctx, nil, *sibling.VendorID)
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("find vendor: %w", err)
			}
			vendorCountry = ""
			if vendor != nil {
				vendorCountry = vendor.Country
			}
		}
		scenarios[ResolveVAT(vendorCountry, buyerCountry, home, decimal.Zero).Scenario] = struct{}{}
	}

	invoice.VatPercent = decimal.Zero
	if len(rates) == 1 {
		for _, rate := range rates {
			invoice.VatPercent = rate
		}
	}
	invoice.VatScenario = "mixed"
	if len(scenarios) == 1 {
		for scenario := range scenarios {
			invoice.VatScenario = string(scenario)
		}
	}

	return s.issue(ctx, invoice)
}

func (s *invoiceServiceImpl) GetByAccessToken(ctx context.Context, token string) (*model.Invoice, error) {
	if token == "" {
		return nil, apperr.New(apperr.CodeValidation, "access token is required")
	}
	invoice, err := s.invoiceRepo.FindByAccessToken(ctx, token)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.CodeNotFound, "invoice not found")
	}
	if err != nil {
		return nil, fmt.Errorf("find invoice: %w", err)
	}
	return invoice, nil
}

// issue numbers and stores the invoice. Numbers run per type and year and
// are never reused, deleted invoices included. A collision with a concurrent
// writer either means the same invoice was issued meanwhile, which is
// returned, or that the number was taken, which is retried.
func (s *invoiceServiceImpl) issue(ctx context.Context, invoice *model.Invoice) (*model.Invoice, error) {
	year := s.now().Year()
	for attempt := 1; attempt <= invoiceNumberAttempts; attempt++ {
		seq, err := s.invoiceRepo.MaxSequence(ctx, nil, invoice.Type, year)
		if err != nil {
			return nil, fmt.Errorf("next invoice sequence: %w", err)
		}

		invoice.ID = 0
		invoice.Year = year
		invoice.Sequence = seq + 1
		invoice.InvoiceNumber = fmt.Sprintf("%s-%d-%05d", invoice.Type.Prefix(), year, invoice.Sequence)
		invoice.AccessToken = uuid.NewString()

		err = s.invoiceRepo.Create(ctx, nil, invoice)
		if err == nil {
			log.L.Info("invoice issued",
				zap.String("invoice_number", invoice.InvoiceNumber),
				zap.String("source", invoice.SourceKey),
			)
			return invoice, nil
		}
		if !repository.IsDuplicateKey(err) {
			return nil, fmt.Errorf("store invoice: %w", err)
		}

		if existing, findErr := s.findExisting(ctx, invoice.SourceKey); existing != nil || findErr != nil {
			return existing, findErr
		}
		used, usedErr := s.invoiceRepo.SourceKeyUsed(ctx, invoice.SourceKey)
		if usedErr != nil {
			return nil, fmt.Errorf("check invoice source: %w", usedErr)
		}
		if used {
			return nil, apperr.Newf(apperr.CodeConflict, "%s was already invoiced and that invoice was deleted", invoice.SourceKey)
		}
		log.L.Warn("invoice number taken, retrying",
			zap.String("invoice_number", invoice.InvoiceNumber),
			zap.Int("attempt", attempt),
		)
	}

	return nil, apperr.Newf(apperr.CodeConflict, "could not allocate a %s invoice number", invoice.Type)
}

func (s *invoiceServiceImpl) findExisting(ctx context.Context, sourceKey string) (*model.Invoice, error) {
	invoice, err := s.invoiceRepo.FindBySourceKey(ctx, sourceKey)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find invoice %s: %w", sourceKey, err)
	}
	return invoice, nil
}

func (s *invoiceServiceImpl) paidOrder(ctx context.Context, orderID string) (*model.Order, error) {
	order, err := s.orderRepo.FindByOrderID(ctx, nil, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Newf(apperr.CodeNotFound, "order %s not found", orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	if !order.IsPaid() {
		return nil, apperr.Newf(apperr.CodeValidation, "order %s is not paid", orderID)
	}
	return order, nil
}

func (s *invoiceServiceImpl) buyer(ctx context.Context, order *model.Order) (string, string, error) {
	if order.AddressID == nil {
		return "", "", nil
	}
	address, err := s.referenceRepo.FindAddress(ctx, nil, *order.AddressID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("find address: %w", err)
	}
	return address.Name, address.Country, nil
}
