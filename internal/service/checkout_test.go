package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/apperr"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/event"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// directCart seeds one vendor product (100 at the default 10% commission)
// and one platform product (20), bought by a domestic buyer.
func directCart(t *testing.T, f *fixture) (*model.Cart, *model.Address) {
	t.Helper()
	f.vendor(t, vendorA, "UAE", nil)
	vendorProduct := f.product(t, u64(vendorA), "100")
	platformProduct := f.product(t, nil, "20")
	addr := f.address(t, testBuyerID, "UAE")
	cart := f.cart(t, testBuyerID, line{vendorProduct, 1}, line{platformProduct, 1})
	return cart, addr
}

func TestCheckout_DirectCreatesSessionWithoutOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cart, addr := directCart(t, f)

	result, err := f.checkout.Checkout(ctx, CheckoutRequest{
		UserID:     testBuyerID,
		CartID:     cart.ID,
		AddressID:  &addr.ID,
		SuccessURL: "https://shop.example.test/ok",
		CancelURL:  "https://shop.example.test/cancel",
	})
	require.NoError(t, err)

	assert.Equal(t, model.OrderTypeDirect, result.Type)
	assert.Empty(t, result.Reasons)
	assert.Equal(t, "SESSION-1", result.SessionID)
	assert.NotEmpty(t, result.RedirectURL)
	assert.Empty(t, result.Orders)
	assert.Equal(t, int64(0), f.countOrders(t, result.OrderGroupID))

	// 110 + 5.50 tax for the vendor, 22 + 1.10 for the platform
	assertMoney(t, "138.60", result.Total)

	require.Len(t, f.gateway.requests, 1)
	req := f.gateway.requests[0]
	assert.Equal(t, result.OrderGroupID, req.OrderGroupID)
	assert.Len(t, req.LineItems, 2)
	assertMoney(t, "132", req.ItemTotal)
	assertMoney(t, "6.60", req.TaxTotal)
	assert.True(t, req.Total.Equal(req.ItemTotal.Add(req.Shipping).Add(req.Packing).Add(req.TaxTotal)))
	assert.Equal(t, result.OrderGroupID, req.Metadata[MetaOrderGroupID])

	var stored model.Cart
	require.NoError(t, f.db.First(&stored, cart.ID).Error)
	assert.Equal(t, model.CartStatusCheckout, stored.Status, "cart is held until the session is paid or cancelled")

	extra := f.product(t, nil, "5")
	_, err = f.carts.AddItem(ctx, testBuyerID, cart.ID, extra.ID, 1)
	assert.True(t, apperr.IsValidation(err), "held cart lines cannot change")
}

func TestCheckout_CancelReopensCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cart, addr := directCart(t, f)

	result, err := f.checkout.Checkout(ctx, CheckoutRequest{UserID: testBuyerID, CartID: cart.ID, AddressID: &addr.ID})
	require.NoError(t, err)

	outcome, err := f.checkout.CancelSession(ctx, result.SessionID)
	require.NoError(t, err)
	assert.False(t, outcome.Paid)
	assert.Equal(t, testBuyerID, outcome.UserID)

	var stored model.Cart
	require.NoError(t, f.db.First(&stored, cart.ID).Error)
	assert.Equal(t, model.CartStatusActive, stored.Status)

	extra := f.product(t, nil, "5")
	_, err = f.carts.AddItem(ctx, testBuyerID, cart.ID, extra.ID, 1)
	require.NoError(t, err)

	// the abandoned session no longer matches the cart
	f.gateway.pay(t, result.SessionID)
	_, err = f.checkout.VerifySession(ctx, result.SessionID)
	assert.True(t, apperr.Is(err, apperr.CodeConflict))
	assert.Equal(t, int64(0), f.countOrders(t, result.OrderGroupID))
}

func TestCheckout_PaidSessionForChangedCartIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.vendor(t, vendorA, "France", nil)
	cheap := f.product(t, u64(vendorA), "10")
	addr := f.address(t, testBuyerID, "France")
	cart := f.cart(t, testBuyerID, line{cheap, 1})

	result, err := f.checkout.Checkout(ctx, CheckoutRequest{UserID: testBuyerID, CartID: cart.ID, AddressID: &addr.ID})
	require.NoError(t, err)
	require.Equal(t, model.OrderTypeDirect, result.Type)
	assertMoney(t, "11", result.Total)

	// a line written behind the hold, straight to the table
	f.vendor(t, vendorB, "UAE", nil)
	controlled := f.category(t, nil, true)
	expensive := f.product(t, u64(vendorB), "20000", withCategory(controlled.ID))
	require.NoError(t, f.db.Create(&model.CartItem{CartID: cart.ID, ProductID: expensive.ID, Quantity: 1}).Error)

	f.gateway.pay(t, result.SessionID)
	_, err = f.checkout.VerifySession(ctx, result.SessionID)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeConflict))

	assert.Equal(t, int64(0), f.countOrders(t, result.OrderGroupID))
	assertMoney(t, "0", f.balance(t, vendorA).Locked)
	assertMoney(t, "0", f.balance(t, vendorB).Locked)
	assertMoney(t, "0", f.balance(t, testPlatformUserID).Available)

	var stored model.Cart
	require.NoError(t, f.db.First(&stored, cart.ID).Error)
	assert.Equal(t, model.CartStatusCheckout, stored.Status)
}

func TestCheckout_PaidCartNowNeedingApprovalBecomesRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cart, addr := directCart(t, f)

	result, err := f.checkout.Checkout(ctx, CheckoutRequest{UserID: testBuyerID, CartID: cart.ID, AddressID: &addr.ID})
	require.NoError(t, err)
	require.Equal(t, model.OrderTypeDirect, result.Type)

	require.NoError(t, f.settings.Set(ctx, SettingHighValueThreshold, "100"))
	f.gateway.pay(t, result.SessionID)

	outcome, err := f.checkout.VerifySession(ctx, result.SessionID)
	require.NoError(t, err)
	require.Len(t, outcome.Orders, 2)

	total := decimal.Zero
	for _, order := range outcome.Orders {
		assert.Equal(t, model.OrderTypeRequest, order.Type, "order %s", order.OrderID)
		assert.Equal(t, model.OrderStatusReceived, order.OrderStatus, "waits for approval")
		assert.True(t, order.IsPaid(), "captured payment is recorded")
		total = total.Add(order.TotalAmount)
	}
	assert.True(t, total.Equal(result.Total), "orders add up to what was charged")
	assertMoney(t, "105.50", f.balance(t, vendorA).Locked)
}

func TestJoinReasonsKeepsRunesWhole(t *testing.T) {
	reason := "Запчасти для бронетехники требуют экспортного разрешения"
	var reasons []string
	for len(strings.Join(reasons, "; ")) < 2*maxNoteBytes {
		reasons = append(reasons, reason)
	}

	note := joinReasons(reasons)
	assert.LessOrEqual(t, len(note), maxNoteBytes)
	assert.True(t, utf8.ValidString(note))
	assert.True(t, strings.HasPrefix(note, reason))

	assert.Equal(t, "a; b", joinReasons([]string{"a", "b"}))
}

func TestCheckout_VerifyUnpaidSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cart, addr := directCart(t, f)

	result, err := f.checkout.Checkout(ctx, CheckoutRequest{UserID: testBuyerID, CartID: cart.ID, AddressID: &addr.ID})
	require.NoError(t, err)

	outcome, err := f.checkout.VerifySession(ctx, result.SessionID)
	require.NoError(t, err)
	assert.False(t, outcome.Paid)
	assert.Equal(t, "CREATED", outcome.Status)
	assert.Empty(t, outcome.Orders)
	assert.Equal(t, int64(0), f.countOrders(t, result.OrderGroupID))
}

func TestCheckout_VerifyPaidSessionConvertsAndSettles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cart, addr := directCart(t, f)

	result, err := f.checkout.Checkout(ctx, CheckoutRequest{UserID: testBuyerID, CartID: cart.ID, AddressID: &addr.ID})
	require.NoError(t, err)
	f.gateway.pay(t, result.SessionID)

	outcome, err := f.checkout.VerifySession(ctx, result.SessionID)
	require.NoError(t, err)
	assert.True(t, outcome.Paid)
	assert.Equal(t, testBuyerID, outcome.UserID)
	require.Len(t, outcome.Orders, 2)
	for _, order := range outcome.Orders {
		assert.True(t, order.IsPaid(), "order %s", order.OrderID)
		assert.NotNil(t, order.PaidAt)
		assert.Equal(t, model.OrderTypeDirect, order.Type)
	}

	vendor := f.balance(t, vendorA)
	assertMoney(t, "0", vendor.Available)
	assertMoney(t, "105.50", vendor.Locked, "vendor share is held")

	platform := f.balance(t, testPlatformUserID)
	assertMoney(t, "33.10", platform.Available, "commission plus the platform sale")
	assertMoney(t, "0", platform.Locked)

	var attempts int64
	require.NoError(t, f.db.Model(&model.PaymentAttempt{}).Count(&attempts).Error)
	assert.Equal(t, int64(2), attempts)

	var stored model.Cart
	require.NoError(t, f.db.First(&stored, cart.ID).Error)
	assert.Equal(t, model.CartStatusConverted, stored.Status)

	assert.Contains(t, f.events.Types(), event.OrderPaid)
}

func TestCheckout_ReverifyDoesNotCreditTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cart, addr := directCart(t, f)

	result, err := f.checkout.Checkout(ctx, CheckoutRequest{UserID: testBuyerID, CartID: cart.ID, AddressID: &addr.ID})
	require.NoError(t, err)
	f.gateway.pay(t, result.SessionID)

	for i := 0; i < 3; i++ {
		_, err := f.checkout.VerifySession(ctx, result.SessionID)
		require.NoError(t, err)
	}

	assertMoney(t, "105.50", f.balance(t, vendorA).Locked)
	assertMoney(t, "33.10", f.balance(t, testPlatformUserID).Available)
	assert.Equal(t, int64(2), f.countOrders(t, result.OrderGroupID))

	var entries int64
	require.NoError(t, f.db.Model(&model.Transaction{}).Count(&entries).Error)
	assert.Equal(t, int64(3), entries)

	var attempts int64
	require.NoError(t, f.db.Model(&model.PaymentAttempt{}).Count(&attempts).Error)
	assert.Equal(t, int64(2), attempts, "re-verification updates the same attempt rows")
}

func TestCheckout_VerifyUnknownSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.checkout.VerifySession(context.Background(), "SESSION-404")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeGateway))

	_, err = f.checkout.VerifySession(context.Background(), "")
	assert.True(t, apperr.IsValidation(err))
}

func TestCheckout_WebhookIsDeduplicated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cart, addr := directCart(t, f)

	result, err := f.checkout.Checkout(ctx, CheckoutRequest{UserID: testBuyerID, CartID: cart.ID, AddressID: &addr.ID})
	require.NoError(t, err)
	f.gateway.pay(t, result.SessionID)

	body := []byte(`{"id":"WH-1","event_type":"CHECKOUT.ORDER.APPROVED","resource":{"id":"` + result.SessionID + `"}}`)
	require.NoError(t, f.checkout.HandleWebhook(ctx, http.Header{}, body))
	require.NoError(t, f.checkout.HandleWebhook(ctx, http.Header{}, body))

	assertMoney(t, "105.50", f.balance(t, vendorA).Locked)
	assert.Equal(t, int64(2), f.countOrders(t, result.OrderGroupID))

	var processed int64
	require.NoError(t, f.db.Model(&model.WebhookEvent{}).Count(&processed).Error)
	assert.Equal(t, int64(1), processed)

	capture := []byte(`{"id":"WH-2","event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"supplementary_data":{"related_ids":{"order_id":"` + result.SessionID + `"}}}}`)
	require.NoError(t, f.checkout.HandleWebhook(ctx, http.Header{}, capture))
	assertMoney(t, "105.50", f.balance(t, vendorA).Locked)
}

func TestCheckout_WebhookRejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	f.gateway.verifyErr = errors.New("signature mismatch")

	err := f.checkout.HandleWebhook(context.Background(), http.Header{}, []byte(`{"id":"WH-9","event_type":"CHECKOUT.ORDER.APPROVED"}`))
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))

	var processed int64
	require.NoError(t, f.db.Model(&model.WebhookEvent{}).Count(&processed).Error)
	assert.Equal(t, int64(0), processed)
}

func TestCheckout_WebhookIgnoresOtherEvents(t *testing.T) {
	f := newFixture(t)

	err := f.checkout.HandleWebhook(context.Background(), http.Header{}, []byte(`{"id":"WH-3","event_type":"BILLING.SUBSCRIPTION.CREATED"}`))
	require.NoError(t, err)
	assert.Empty(t, f.gateway.requests)
}

func TestCheckout_PayOrderGroupNeedsApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.vendor(t, vendorB, "UAE", nil)
	controlled := f.category(t, nil, true)
	p := f.product(t, u64(vendorB), "400", withCategory(controlled.ID))
	addr := f.address(t, testBuyerID, "UAE")
	cart := f.cart(t, testBuyerID, line{p, 1})

	result, err := f.checkout.Checkout(ctx, CheckoutRequest{UserID: testBuyerID, CartID: cart.ID, AddressID: &addr.ID})
	require.NoError(t, err)
	require.Equal(t, model.OrderTypeRequest, result.Type)
	require.Len(t, result.Orders, 1)
	orderID := result.Orders[0].OrderID

	_, err = f.checkout.PayOrderGroup(ctx, PayGroupRequest{UserID: testBuyerID, OrderGroupID: result.OrderGroupID})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidTransition))

	_, err = f.checkout.PayOrderGroup(ctx, PayGroupRequest{UserID: testBuyerID + 1, OrderGroupID: result.OrderGroupID})
	assert.True(t, apperr.IsNotFound(err))

	approved := model.OrderStatusApproved
	_, err = f.orders.UpdateStatus(ctx, StatusChange{OrderID: orderID, OrderStatus: &approved, Actor: "admin"})
	require.NoError(t, err)

	paying, err := f.checkout.PayOrderGroup(ctx, PayGroupRequest{UserID: testBuyerID, OrderGroupID: result.OrderGroupID})
	require.NoError(t, err)
	assert.NotEmpty(t, paying.SessionID)
	assert.True(t, paying.Total.Equal(result.Total))

	detail, err := f.orders.Get(ctx, testBuyerID, orderID)
	require.NoError(t, err)
	require.NotNil(t, detail.Order.PaymentStatus)
	assert.Equal(t, model.PaymentStatusPending, *detail.Order.PaymentStatus)

	f.gateway.pay(t, paying.SessionID)
	outcome, err := f.checkout.VerifySession(ctx, paying.SessionID)
	require.NoError(t, err)
	require.Len(t, outcome.Orders, 1)
	assert.True(t, outcome.Orders[0].IsPaid())
	assert.Equal(t, model.OrderStatusApproved, outcome.Orders[0].OrderStatus)
	assert.True(t, f.balance(t, vendorB).Locked.IsPositive())

	_, err = f.checkout.PayOrderGroup(ctx, PayGroupRequest{UserID: testBuyerID, OrderGroupID: result.OrderGroupID})
	assert.True(t, apperr.Is(err, apperr.CodeConflict))
}

func TestConvertInputFromMetadata(t *testing.T) {
	in, err := convertInputFromMetadata(map[string]string{
		MetaOrderGroupID: "GRPMETA001",
		MetaCartID:       "12",
		MetaUserID:       "100",
		MetaAddressID:    "7",
		MetaShipping:     `{"201":{"total":"12.5","method":"courier"}}`,
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(12), in.CartID)
	assert.Equal(t, testBuyerID, in.UserID)
	assert.Equal(t, model.OrderTypeDirect, in.Options.Type)
	require.NotNil(t, in.Options.AddressID)
	assert.Equal(t, uint64(7), *in.Options.AddressID)
	require.Contains(t, in.Options.ShippingCosts, vendorA)
	assertMoney(t, "12.5", in.Options.ShippingCosts[vendorA].Total)

	_, err = convertInputFromMetadata(map[string]string{MetaOrderGroupID: "GRPMETA001"})
	assert.True(t, apperr.IsValidation(err))
}
