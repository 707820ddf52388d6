package service

import (
	"context"
	"testing"

	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/apperr"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/event"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fund(t *testing.T, f *fixture, userID uint64, amount string) {
	t.Helper()
	_, err := f.ledger.Credit(context.Background(), CreditRequest{UserID: userID, Amount: dec(amount), Type: model.TransactionTypeAdjustment})
	require.NoError(t, err)
}

func TestPayout_RequestDebitsAvailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fund(t, f, vendorA, "100")

	payout, err := f.payouts.Request(ctx, vendorA, dec("60"), "monthly")
	require.NoError(t, err)
	assert.Equal(t, model.PayoutStatusPending, payout.Status)
	require.NotNil(t, payout.DebitTransactionID)
	assertMoney(t, "40", f.balance(t, vendorA).Available)

	_, err = f.payouts.Request(ctx, vendorA, dec("40.01"), "too much")
	assert.True(t, apperr.IsInsufficientFunds(err))

	payouts, err := f.payouts.List(ctx, vendorA)
	require.NoError(t, err)
	assert.Len(t, payouts, 1, "a failed request leaves no payout behind")

	assert.Contains(t, f.events.Types(), event.PayoutRequested)
}

func TestPayout_ApproveThenPay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fund(t, f, vendorA, "100")

	payout, err := f.payouts.Request(ctx, vendorA, dec("25"), "")
	require.NoError(t, err)

	_, err = f.payouts.MarkPaid(ctx, payout.ID, "TRF-1")
	assert.True(t, apperr.Is(err, apperr.CodeInvalidTransition), "pending payouts are approved first")

	approved, err := f.payouts.Approve(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PayoutStatusApproved, approved.Status)
	assert.NotNil(t, approved.ApprovedAt)

	paid, err := f.payouts.MarkPaid(ctx, payout.ID, "TRF-1")
	require.NoError(t, err)
	assert.Equal(t, model.PayoutStatusPaid, paid.Status)
	assert.Equal(t, "TRF-1", paid.Reference)

	_, err = f.payouts.Reject(ctx, payout.ID, "late")
	assert.True(t, apperr.Is(err, apperr.CodeInvalidTransition))
	assertMoney(t, "75", f.balance(t, vendorA).Available)
}

func TestPayout_RejectReturnsFunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fund(t, f, vendorA, "100")

	payout, err := f.payouts.Request(ctx, vendorA, dec("70"), "")
	require.NoError(t, err)

	rejected, err := f.payouts.Reject(ctx, payout.ID, "bank details missing")
	require.NoError(t, err)
	assert.Equal(t, model.PayoutStatusRejected, rejected.Status)
	assertMoney(t, "100", f.balance(t, vendorA).Available)

	entries, err := f.ledger.History(ctx, vendorA, 0, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, model.TransactionTypeRefund, entries[0].Type)
	require.NotNil(t, entries[0].ReferenceID)
	assert.Equal(t, *payout.DebitTransactionID, *entries[0].ReferenceID)
}

func TestPayout_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.payouts.Request(ctx, vendorA, dec("0"), "")
	assert.True(t, apperr.IsValidation(err))

	_, err = f.payouts.Approve(ctx, 999)
	assert.True(t, apperr.IsNotFound(err))
}
