package model

import "strings"

type OrderStatus string

const (
	OrderStatusReceived  OrderStatus = "order_received"
	OrderStatusApproved  OrderStatus = "approved"
	OrderStatusRejected  OrderStatus = "rejected"
	OrderStatusCancelled OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

type ShipmentStatus string

const (
	ShipmentStatusPending    ShipmentStatus = "pending"
	ShipmentStatusProcessing ShipmentStatus = "processing"
	ShipmentStatusShipped    ShipmentStatus = "shipped"
	ShipmentStatusDelivered  ShipmentStatus = "delivered"
	ShipmentStatusReturned   ShipmentStatus = "returned"
	ShipmentStatusCancelled  ShipmentStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusReceived: {OrderStatusApproved, OrderStatusRejected, OrderStatusCancelled},
	OrderStatusApproved: {OrderStatusCancelled},
}

var shipmentTransitions = map[ShipmentStatus][]ShipmentStatus{
	ShipmentStatusPending:    {ShipmentStatusProcessing, ShipmentStatusCancelled},
	ShipmentStatusProcessing: {ShipmentStatusShipped, ShipmentStatusCancelled},
	ShipmentStatusShipped:    {ShipmentStatusDelivered, ShipmentStatusReturned},
	ShipmentStatusDelivered:  {ShipmentStatusReturned},
}

// "" stands for the null payment status of an unapproved request order.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	"":                    {PaymentStatusPending},
	PaymentStatusPending:  {PaymentStatusPaid, PaymentStatusFailed},
	PaymentStatusFailed:   {PaymentStatusPending, PaymentStatusPaid},
	PaymentStatusPaid:     {PaymentStatusRefunded},
	PaymentStatusRefunded: {},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusReceived, OrderStatusApproved, OrderStatusRejected, OrderStatusCancelled:
		return true
	}
	return false
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	return contains(orderTransitions[s], next)
}

func (s OrderStatus) Terminal() bool {
	return len(orderTransitions[s]) == 0
}

func (s ShipmentStatus) Valid() bool {
	switch s {
	case ShipmentStatusPending, ShipmentStatusProcessing, ShipmentStatusShipped,
		ShipmentStatusDelivered, ShipmentStatusReturned, ShipmentStatusCancelled:
		return true
	}
	return false
}

func (s ShipmentStatus) CanTransitionTo(next ShipmentStatus) bool {
	return contains(shipmentTransitions[s], next)
}

func (s PaymentStatus) Valid() bool {
	_, ok := paymentTransitions[s]
	return ok && s != ""
}

// CanTransitionPayment treats a nil current status as the null state.
func CanTransitionPayment(current *PaymentStatus, next PaymentStatus) bool {
	var from PaymentStatus
	if current != nil {
		from = *current
	}
	return contains(paymentTransitions[from], next)
}

func PaymentStatusPtr(s PaymentStatus) *PaymentStatus {
	return &s
}

// NormalizeLegacyOrderStatus maps the multi-word statuses found in older data
// onto the order status enum. Both vendor and admin decisions collapse into
// the same state.
func NormalizeLegacyOrderStatus(raw string) (OrderStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "order_received", "pending", "pending_approval", "pending_review", "placed", "new":
		return OrderStatusReceived, true
	case "approved", "vendor_approved", "admin_approved":
		return OrderStatusApproved, true
	case "rejected", "vendor_rejected", "admin_rejected":
		return OrderStatusRejected, true
	case "cancelled", "canceled", "cancelled_by_admin", "cancelled_by_customer":
		return OrderStatusCancelled, true
	}
	return "", false
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
