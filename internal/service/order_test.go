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

func paidGroup(t *testing.T, f *fixture) []*model.Order {
	t.Helper()
	ctx := context.Background()
	cart, addr := directCart(t, f)

	result, err := f.checkout.Checkout(ctx, CheckoutRequest{UserID: testBuyerID, CartID: cart.ID, AddressID: &addr.ID})
	require.NoError(t, err)
	f.gateway.pay(t, result.SessionID)

	outcome, err := f.checkout.VerifySession(ctx, result.SessionID)
	require.NoError(t, err)
	require.Len(t, outcome.Orders, 2)
	return outcome.Orders
}

func vendorOrder(t *testing.T, orders []*model.Order) *model.Order {
	t.Helper()
	for _, order := range orders {
		if order.VendorID != nil {
			return order
		}
	}
	t.Fatal("no vendor order in group")
	return nil
}

func TestOrder_Visibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := vendorOrder(t, paidGroup(t, f))

	detail, err := f.orders.Get(ctx, testBuyerID, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, order.OrderID, detail.Order.OrderID)
	assert.Len(t, detail.History, 2)
	assert.Len(t, detail.Attempts, 1)

	_, err = f.orders.Get(ctx, vendorA, order.OrderID)
	require.NoError(t, err, "the selling vendor sees the order")

	_, err = f.orders.Get(ctx, vendorB, order.OrderID)
	assert.True(t, apperr.IsNotFound(err))

	group, err := f.orders.GetGroup(ctx, testBuyerID, order.OrderGroupID)
	require.NoError(t, err)
	assert.Len(t, group, 2)

	listed, err := f.orders.List(ctx, testBuyerID, 10)
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestOrder_UpdateStatusTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := vendorOrder(t, paidGroup(t, f))

	processing := model.ShipmentStatusProcessing
	updated, err := f.orders.UpdateStatus(ctx, StatusChange{OrderID: order.OrderID, ShipmentStatus: &processing, Actor: "vendor"})
	require.NoError(t, err)
	assert.Equal(t, model.ShipmentStatusProcessing, updated.ShipmentStatus)
	assert.Contains(t, f.events.Types(), event.OrderStatusChanged)

	delivered := model.ShipmentStatusDelivered
	_, err = f.orders.UpdateStatus(ctx, StatusChange{OrderID: order.OrderID, ShipmentStatus: &delivered})
	assert.True(t, apperr.Is(err, apperr.CodeInvalidTransition), "processing cannot skip shipped")

	paid := model.PaymentStatusPaid
	_, err = f.orders.UpdateStatus(ctx, StatusChange{OrderID: order.OrderID, PaymentStatus: &paid})
	assert.True(t, apperr.IsValidation(err))

	_, err = f.orders.UpdateStatus(ctx, StatusChange{OrderID: order.OrderID})
	assert.True(t, apperr.IsValidation(err))

	_, err = f.orders.UpdateStatus(ctx, StatusChange{OrderID: "NOPE", ShipmentStatus: &processing})
	assert.True(t, apperr.IsNotFound(err))

	detail, err := f.orders.Get(ctx, testBuyerID, order.OrderID)
	require.NoError(t, err)
	assert.Len(t, detail.History, 3, "only the successful change is recorded")
}

func TestOrder_RejectRequestOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.vendor(t, vendorB, "UAE", nil)
	controlled := f.category(t, nil, true)
	p := f.product(t, u64(vendorB), "400", withCategory(controlled.ID))
	cart := f.cart(t, testBuyerID, line{p, 1})

	result, err := f.checkout.Checkout(ctx, CheckoutRequest{UserID: testBuyerID, CartID: cart.ID})
	require.NoError(t, err)
	require.Len(t, result.Orders, 1)

	rejected := model.OrderStatusRejected
	updated, err := f.orders.UpdateStatus(ctx, StatusChange{OrderID: result.Orders[0].OrderID, OrderStatus: &rejected, Actor: "admin", Note: "end user certificate missing"})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusRejected, updated.OrderStatus)
	assert.Nil(t, updated.PaymentStatus)

	approved := model.OrderStatusApproved
	_, err = f.orders.UpdateStatus(ctx, StatusChange{OrderID: result.Orders[0].OrderID, OrderStatus: &approved})
	assert.True(t, apperr.Is(err, apperr.CodeInvalidTransition), "rejection is final")
}

func TestOrder_RefundReversesHeldEarnings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := vendorOrder(t, paidGroup(t, f))

	refunded, err := f.orders.RefundOrder(ctx, order.OrderID, "admin", "damaged in transit")
	require.NoError(t, err)
	require.NotNil(t, refunded.PaymentStatus)
	assert.Equal(t, model.PaymentStatusRefunded, *refunded.PaymentStatus)

	vendor := f.balance(t, vendorA)
	assertMoney(t, "0", vendor.Locked)
	assertMoney(t, "0", vendor.Available)

	_, err = f.orders.RefundOrder(ctx, order.OrderID, "admin", "again")
	assert.True(t, apperr.Is(err, apperr.CodeInvalidTransition))

	unlocked, err := f.unlock.ProcessUnlocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, unlocked.UnlockedCount, "reversed earnings never mature")
}

func TestOrder_RefundNeedsPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.product(t, nil, "10")
	cart := f.cart(t, testBuyerID, line{p, 1})
	orders, err := f.composer.Convert(ctx, ConvertInput{UserID: testBuyerID, CartID: cart.ID, OrderGroupID: "GRPUNPAID1", Options: directOptions(nil)})
	require.NoError(t, err)

	_, err = f.orders.RefundOrder(ctx, orders[0].OrderID, "admin", "")
	assert.True(t, apperr.Is(err, apperr.CodeInvalidTransition))
}
