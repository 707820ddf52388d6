package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderStatus_Transitions(t *testing.T) {
	tests := []struct {
		from OrderStatus
		to   OrderStatus
		want bool
	}{
		{OrderStatusReceived, OrderStatusApproved, true},
		{OrderStatusReceived, OrderStatusRejected, true},
		{OrderStatusReceived, OrderStatusCancelled, true},
		{OrderStatusApproved, OrderStatusCancelled, true},
		{OrderStatusApproved, OrderStatusRejected, false},
		{OrderStatusRejected, OrderStatusApproved, false},
		{OrderStatusCancelled, OrderStatusReceived, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}

	assert.True(t, OrderStatusRejected.Terminal())
	assert.False(t, OrderStatusApproved.Terminal())
}

func TestShipmentStatus_Transitions(t *testing.T) {
	assert.True(t, ShipmentStatusPending.CanTransitionTo(ShipmentStatusProcessing))
	assert.True(t, ShipmentStatusShipped.CanTransitionTo(ShipmentStatusReturned))
	assert.True(t, ShipmentStatusDelivered.CanTransitionTo(ShipmentStatusReturned))
	assert.False(t, ShipmentStatusPending.CanTransitionTo(ShipmentStatusDelivered))
	assert.False(t, ShipmentStatusShipped.CanTransitionTo(ShipmentStatusCancelled))
	assert.False(t, ShipmentStatusReturned.CanTransitionTo(ShipmentStatusPending))
}

func TestCanTransitionPayment(t *testing.T) {
	assert.True(t, CanTransitionPayment(nil, PaymentStatusPending))
	assert.False(t, CanTransitionPayment(nil, PaymentStatusPaid))
	assert.True(t, CanTransitionPayment(PaymentStatusPtr(PaymentStatusPending), PaymentStatusPaid))
	assert.True(t, CanTransitionPayment(PaymentStatusPtr(PaymentStatusPaid), PaymentStatusRefunded))
	assert.False(t, CanTransitionPayment(PaymentStatusPtr(PaymentStatusRefunded), PaymentStatusPaid))
}

func TestNormalizeLegacyOrderStatus(t *testing.T) {
	tests := map[string]OrderStatus{
		"vendor_approved":  OrderStatusApproved,
		"admin_approved":   OrderStatusApproved,
		"pending_approval": OrderStatusReceived,
		"Vendor_Rejected":  OrderStatusRejected,
		"canceled":         OrderStatusCancelled,
	}
	for raw, want := range tests {
		got, ok := NormalizeLegacyOrderStatus(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}

	_, ok := NormalizeLegacyOrderStatus("shipped")
	assert.False(t, ok)
}

func TestPayoutStatus_Transitions(t *testing.T) {
	assert.True(t, PayoutStatusPending.CanTransitionTo(PayoutStatusApproved))
	assert.True(t, PayoutStatusApproved.CanTransitionTo(PayoutStatusPaid))
	assert.True(t, PayoutStatusApproved.CanTransitionTo(PayoutStatusRejected))
	assert.False(t, PayoutStatusPending.CanTransitionTo(PayoutStatusPaid))
	assert.False(t, PayoutStatusPaid.CanTransitionTo(PayoutStatusRejected))
}
