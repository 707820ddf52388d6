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

func TestSettings_Defaults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assertMoney(t, "5", f.settings.VatPercent(ctx))
	assertMoney(t, "10", f.settings.CommissionPercent(ctx))
	assertMoney(t, "10000", f.settings.HighValueThreshold(ctx))
	assert.Equal(t, 10, f.settings.FundHoldDays(ctx))
	assert.Equal(t, 500, f.settings.UnlockBatchSize(ctx))
	assert.Equal(t, "UAE", f.settings.HomeJurisdiction(ctx))
}

func TestSettings_OverridesAndFallbacks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.settings.Set(ctx, SettingVatPercent, "7.5"))
	require.NoError(t, f.settings.Set(ctx, SettingFundHoldDays, "14"))
	require.NoError(t, f.settings.Set(ctx, SettingHomeJurisdiction, "Oman"))
	assertMoney(t, "7.5", f.settings.VatPercent(ctx))
	assert.Equal(t, 14, f.settings.FundHoldDays(ctx))
	assert.Equal(t, "Oman", f.settings.HomeJurisdiction(ctx))

	require.NoError(t, f.settings.Set(ctx, SettingVatPercent, "seven"))
	require.NoError(t, f.settings.Set(ctx, SettingCommissionPercent, "-1"))
	require.NoError(t, f.settings.Set(ctx, SettingUnlockBatchSize, "0"))
	assertMoney(t, "5", f.settings.VatPercent(ctx))
	assertMoney(t, "10", f.settings.CommissionPercent(ctx))
	assert.Equal(t, 500, f.settings.UnlockBatchSize(ctx))
}

func TestSettings_ThresholdDrivesClassification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.settings.Set(ctx, SettingHighValueThreshold, "100"))
	p := f.product(t, nil, "150")
	cart := f.cart(t, testBuyerID, line{p, 1})

	result, err := f.checkout.Checkout(ctx, CheckoutRequest{UserID: testBuyerID, CartID: cart.ID})
	require.NoError(t, err)
	assert.Equal(t, model.OrderTypeRequest, result.Type)
	assert.Len(t, result.Reasons, 1)
}

func TestSettings_HoldDaysSetUnlockTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.settings.Set(ctx, SettingFundHoldDays, "3"))

	before := time.Now()
	order := vendorOrder(t, paidGroup(t, f))

	var entry model.Transaction
	require.NoError(t, f.db.Where("order_id = ? AND type = ?", order.OrderID, model.TransactionTypeVendorEarning).First(&entry).Error)
	require.NotNil(t, entry.UnlockAt)
	assert.WithinDuration(t, before.AddDate(0, 0, 3), *entry.UnlockAt, time.Minute)
}

func TestSettings_RejectsUnknownKey(t *testing.T) {
	f := newFixture(t)

	err := f.settings.Set(context.Background(), "free_shipping", "yes")
	assert.True(t, apperr.IsValidation(err))
}
