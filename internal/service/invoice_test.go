package service

import (
	"context"
	"testing"
	"time"

	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/apperr"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedInvoiceClock(f *fixture, year int) {
	f.invoices.(*invoiceServiceImpl).now = func() time.Time {
		return time.Date(year, time.March, 3, 12, 0, 0, 0, time.UTC)
	}
}

func platformOrder(t *testing.T, orders []*model.Order) *model.Order {
	t.Helper()
	for _, order := range orders {
		if order.VendorID == nil {
			return order
		}
	}
	t.Fatal("no platform order in group")
	return nil
}

func TestInvoice_VendorInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fixedInvoiceClock(f, 2026)
	order := vendorOrder(t, paidGroup(t, f))

	invoice, err := f.invoices.GenerateVendorInvoice(ctx, order.OrderID)
	require.NoError(t, err)

	assert.Equal(t, "VND-2026-00001", invoice.InvoiceNumber)
	assert.Equal(t, model.InvoiceTypeVendor, invoice.Type)
	assert.Equal(t, "Vendor 201", invoice.IssuerName)
	assert.Equal(t, "Marketplace Platform", invoice.AddresseeName)
	assertMoney(t, "110", invoice.Subtotal)
	assertMoney(t, "10", invoice.Commission)
	assertMoney(t, "5", invoice.VatAmount, "vendor rate on the net after commission")
	assertMoney(t, "105", invoice.Total)
	assert.Equal(t, string(VatDomestic), invoice.VatScenario)
	assert.NotEmpty(t, invoice.AccessToken)

	again, err := f.invoices.GenerateVendorInvoice(ctx, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, invoice.ID, again.ID)
	assert.Equal(t, invoice.InvoiceNumber, again.InvoiceNumber)

	public, err := f.invoices.GetByAccessToken(ctx, invoice.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, invoice.InvoiceNumber, public.InvoiceNumber)

	_, err = f.invoices.GetByAccessToken(ctx, "no-such-token")
	assert.True(t, apperr.IsNotFound(err))
}

func TestInvoice_NumbersCountDeletedInvoices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fixedInvoiceClock(f, 2026)
	order := vendorOrder(t, paidGroup(t, f))

	old := &model.Invoice{
		InvoiceNumber: "VND-2026-00007",
		Type:          model.InvoiceTypeVendor,
		Year:          2026,
		Sequence:      7,
		OrderGroupID:  "GRPOLD0001",
		SourceKey:     model.InvoiceSourceKey(model.InvoiceTypeVendor, "ORDOLD0001"),
		Currency:      "USD",
		AccessToken:   "old-token",
	}
	require.NoError(t, f.invoiceRepo.Create(ctx, nil, old))
	require.NoError(t, f.db.Delete(old).Error)

	prior := &model.Invoice{
		InvoiceNumber: "VND-2025-00042",
		Type:          model.InvoiceTypeVendor,
		Year:          2025,
		Sequence:      42,
		OrderGroupID:  "GRPOLD0002",
		SourceKey:     model.InvoiceSourceKey(model.InvoiceTypeVendor, "ORDOLD0002"),
		Currency:      "USD",
		AccessToken:   "prior-token",
	}
	require.NoError(t, f.invoiceRepo.Create(ctx, nil, prior))

	invoice, err := f.invoices.GenerateVendorInvoice(ctx, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "VND-2026-00008", invoice.InvoiceNumber)
}

func TestInvoice_DeletedInvoiceIsNotReissued(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fixedInvoiceClock(f, 2026)
	order := vendorOrder(t, paidGroup(t, f))

	invoice, err := f.invoices.GenerateVendorInvoice(ctx, order.OrderID)
	require.NoError(t, err)
	require.NoError(t, f.db.Delete(invoice).Error)

	_, err = f.invoices.GenerateVendorInvoice(ctx, order.OrderID)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeConflict))
	assert.Contains(t, err.Error(), "already invoiced")

	var stored int64
	require.NoError(t, f.db.Unscoped().Model(&model.Invoice{}).Count(&stored).Error)
	assert.Equal(t, int64(1), stored)
}

func TestInvoice_CustomerInvoiceCoversGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fixedInvoiceClock(f, 2026)
	orders := paidGroup(t, f)

	invoice, err := f.invoices.GenerateCustomerInvoice(ctx, orders[0].OrderID)
	require.NoError(t, err)

	assert.Equal(t, "INV-2026-00001", invoice.InvoiceNumber)
	assert.Nil(t, invoice.OrderID)
	assert.Equal(t, orders[0].OrderGroupID, invoice.OrderGroupID)
	assert.Equal(t, "Buyer", invoice.AddresseeName)
	assertMoney(t, "132", invoice.Subtotal)
	assertMoney(t, "6.60", invoice.VatAmount)
	assertMoney(t, "138.60", invoice.Total)
	assertMoney(t, "5", invoice.VatPercent)
	assert.Equal(t, string(VatDomestic), invoice.VatScenario)

	sibling, err := f.invoices.GenerateCustomerInvoice(ctx, orders[1].OrderID)
	require.NoError(t, err)
	assert.Equal(t, invoice.ID, sibling.ID, "one customer invoice per group")

	vendorInvoice, err := f.invoices.GenerateVendorInvoice(ctx, vendorOrder(t, orders).OrderID)
	require.NoError(t, err)
	assert.Equal(t, "VND-2026-00001", vendorInvoice.InvoiceNumber, "sequences run per type")
}

func TestInvoice_Preconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orders := paidGroup(t, f)

	_, err := f.invoices.GenerateVendorInvoice(ctx, platformOrder(t, orders).OrderID)
	assert.True(t, apperr.IsValidation(err))

	_, err = f.invoices.GenerateVendorInvoice(ctx, "NOPE")
	assert.True(t, apperr.IsNotFound(err))

	p := f.product(t, nil, "10")
	cart := f.cart(t, testBuyerID, line{p, 1})
	unpaid, err := f.composer.Convert(ctx, ConvertInput{UserID: testBuyerID, CartID: cart.ID, OrderGroupID: "GRPUNPAID2", Options: directOptions(nil)})
	require.NoError(t, err)

	_, err = f.invoices.GenerateCustomerInvoice(ctx, unpaid[0].OrderID)
	assert.True(t, apperr.IsValidation(err))
}
