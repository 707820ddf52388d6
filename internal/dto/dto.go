package dto

import (
	"time"

	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/model"

	"github.com/shopspring/decimal"
)

type AddCartItemRequest struct {
	ProductID uint64 `json:"product_id"`
	Quantity  int32  `json:"quantity"`
}

type ShippingQuote struct {
	// 0 addresses the platform-owned group
	VendorID uint64          `json:"vendor_id"`
	Total    decimal.Decimal `json:"total"`
	Method   string          `json:"method"`
}

type CheckoutRequest struct {
	CartID     uint64          `json:"cart_id"`
	AddressID  *uint64         `json:"address_id"`
	Shipping   []ShippingQuote `json:"shipping"`
	PayerEmail string          `json:"payer_email"`
}

type PayGroupRequest struct {
	PayerEmail string `json:"payer_email"`
}

type CheckoutResponse struct {
	OrderGroupID string           `json:"order_group_id"`
	Type         model.OrderType  `json:"type"`
	Reasons      []string         `json:"reasons,omitempty"`
	Total        decimal.Decimal  `json:"total"`
	Currency     string           `json:"currency"`
	Orders       []*OrderResponse `json:"orders,omitempty"`
	SessionID    string           `json:"session_id,omitempty"`
	ApprovalURL  string           `json:"approval_url,omitempty"`
}

type VerifyResponse struct {
	SessionID    string           `json:"session_id"`
	OrderGroupID string           `json:"order_group_id"`
	Paid         bool             `json:"paid"`
	Status       string           `json:"status"`
	Orders       []*OrderResponse `json:"orders,omitempty"`
}

type UpdateStatusRequest struct {
	OrderStatus    string `json:"order_status"`
	PaymentStatus  string `json:"payment_status"`
	ShipmentStatus string `json:"shipment_status"`
	Note           string `json:"note"`
}

type RefundRequest struct {
	Note string `json:"note"`
}

type PayoutRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note"`
}

type MarkPayoutPaidRequest struct {
	Reference string `json:"reference"`
}

type RejectPayoutRequest struct {
	Reason string `json:"reason"`
}

type SetSettingRequest struct {
	Value string `json:"value"`
}

type CartItemResponse struct {
	ProductID uint64 `json:"product_id"`
	Quantity  int32  `json:"quantity"`
}

type CartResponse struct {
	ID           uint64              `json:"id"`
	Status       model.CartStatus    `json:"status"`
	OrderGroupID *string             `json:"order_group_id,omitempty"`
	Items        []*CartItemResponse `json:"items"`
}

func NewCartResponse(cart *model.Cart) *CartResponse {
	resp := &CartResponse{
		ID:           cart.ID,
		Status:       cart.Status,
		OrderGroupID: cart.OrderGroupID,
		Items:        make([]*CartItemResponse, 0, len(cart.Items)),
	}
	for _, item := range cart.Items {
		resp.Items = append(resp.Items, &CartItemResponse{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return resp
}

type OrderItemResponse struct {
	ProductID       uint64          `json:"product_id"`
	Name            string          `json:"name"`
	SKU             string          `json:"sku,omitempty"`
	ImageURL        string          `json:"image_url,omitempty"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	Quantity        int32           `json:"quantity"`
	LineTotal       decimal.Decimal `json:"line_total"`
}

type OrderResponse struct {
	OrderID        string               `json:"order_id"`
	OrderGroupID   string               `json:"order_group_id"`
	VendorID       *uint64              `json:"vendor_id"`
	Type           model.OrderType      `json:"type"`
	OrderStatus    model.OrderStatus    `json:"order_status"`
	PaymentStatus  *model.PaymentStatus `json:"payment_status"`
	ShipmentStatus model.ShipmentStatus `json:"shipment_status"`
	ProductTotal   decimal.Decimal      `json:"product_total"`
	ShippingTotal  decimal.Decimal      `json:"shipping_total"`
	ShippingMethod string               `json:"shipping_method,omitempty"`
	PackingTotal   decimal.Decimal      `json:"packing_total"`
	VatPercent     decimal.Decimal      `json:"vat_percent"`
	TaxAmount      decimal.Decimal      `json:"tax_amount"`
	TotalAmount    decimal.Decimal      `json:"total_amount"`
	Currency       string               `json:"currency"`
	PaidAt         *time.Time           `json:"paid_at,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	Items          []*OrderItemResponse `json:"items,omitempty"`
}

func NewOrderResponse(order *model.Order) *OrderResponse {
	resp := &OrderResponse{
		OrderID:        order.OrderID,
		OrderGroupID:   order.OrderGroupID,
		VendorID:       order.VendorID,
		Type:           order.Type,
		OrderStatus:    order.OrderStatus,
		PaymentStatus:  order.PaymentStatus,
		ShipmentStatus: order.ShipmentStatus,
		ProductTotal:   order.ProductTotal,
		ShippingTotal:  order.ShippingTotal,
		ShippingMethod: order.ShippingMethod,
		PackingTotal:   order.PackingTotal,
		VatPercent:     order.VatPercent,
		TaxAmount:      order.TaxAmount,
		TotalAmount:    order.TotalAmount,
		Currency:       order.Currency,
		PaidAt:         order.PaidAt,
		CreatedAt:      order.CreatedAt,
	}
	for _, item := range order.Items {
		resp.Items = append(resp.Items, &OrderItemResponse{
			ProductID:       item.ProductID,
			Name:            item.Name,
			SKU:             item.SKU,
			ImageURL:        item.ImageURL,
			UnitPrice:       item.UnitPrice,
			DiscountPercent: item.DiscountPercent,
			Quantity:        item.Quantity,
			LineTotal:       item.LineTotal,
		})
	}
	return resp
}

func NewOrderResponses(orders []*model.Order) []*OrderResponse {
	resp := make([]*OrderResponse, 0, len(orders))
	for _, order := range orders {
		resp = append(resp, NewOrderResponse(order))
	}
	return resp
}

type StatusHistoryResponse struct {
	OrderStatus    model.OrderStatus    `json:"order_status"`
	PaymentStatus  *model.PaymentStatus `json:"payment_status"`
	ShipmentStatus model.ShipmentStatus `json:"shipment_status"`
	Actor          string               `json:"actor"`
	Note           string               `json:"note,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}

type PaymentAttemptResponse struct {
	SessionID   string          `json:"session_id"`
	Status      string          `json:"status"`
	AmountTotal decimal.Decimal `json:"amount_total"`
	Currency    string          `json:"currency"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type OrderDetailResponse struct {
	Order    *OrderResponse            `json:"order"`
	History  []*StatusHistoryResponse  `json:"history"`
	Attempts []*PaymentAttemptResponse `json:"payment_attempts"`
}

func NewOrderDetailResponse(order *model.Order, history []*model.OrderStatusHistory, attempts []*model.PaymentAttempt) *OrderDetailResponse {
	resp := &OrderDetailResponse{
		Order:    NewOrderResponse(order),
		History:  make([]*StatusHistoryResponse, 0, len(history)),
		Attempts: make([]*PaymentAttemptResponse, 0, len(attempts)),
	}
	for _, h := range history {
		resp.History = append(resp.History, &StatusHistoryResponse{
			OrderStatus:    h.OrderStatus,
			PaymentStatus:  h.PaymentStatus,
			ShipmentStatus: h.ShipmentStatus,
			Actor:          h.Actor,
			Note:           h.Note,
			CreatedAt:      h.CreatedAt,
		})
	}
	for _, a := range attempts {
		resp.Attempts = append(resp.Attempts, &PaymentAttemptResponse{
			SessionID:   a.SessionID,
			Status:      a.Status,
			AmountTotal: a.AmountTotal,
			Currency:    a.Currency,
			UpdatedAt:   a.UpdatedAt,
		})
	}
	return resp
}

type TransactionResponse struct {
	ID          uint64                  `json:"id"`
	Direction   model.EntryDirection    `json:"direction"`
	Type        model.TransactionType   `json:"type"`
	Amount      decimal.Decimal         `json:"amount"`
	Status      model.TransactionStatus `json:"status"`
	UnlockAt    *time.Time              `json:"unlock_at,omitempty"`
	OrderID     *string                 `json:"order_id,omitempty"`
	PayoutID    *uint64                 `json:"payout_id,omitempty"`
	ReferenceID *uint64                 `json:"reference_id,omitempty"`
	Note        string                  `json:"note,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
}

type HistoryResponse struct {
	Transactions []*TransactionResponse `json:"transactions"`
	NextCursor   uint64                 `json:"next_cursor,omitempty"`
}

func NewHistoryResponse(entries []*model.Transaction, limit int) *HistoryResponse {
	resp := &HistoryResponse{Transactions: make([]*TransactionResponse, 0, len(entries))}
	for _, e := range entries {
		resp.Transactions = append(resp.Transactions, &TransactionResponse{
			ID:          e.ID,
			Direction:   e.Direction,
			Type:        e.Type,
			Amount:      e.Amount,
			Status:      e.Status,
			UnlockAt:    e.UnlockAt,
			OrderID:     e.OrderID,
			PayoutID:    e.PayoutID,
			ReferenceID: e.ReferenceID,
			Note:        e.Note,
			CreatedAt:   e.CreatedAt,
		})
	}
	if limit > 0 && len(entries) == limit {
		resp.NextCursor = entries[len(entries)-1].ID
	}
	return resp
}

type PayoutResponse struct {
	ID         uint64             `json:"id"`
	Amount     decimal.Decimal    `json:"amount"`
	Status     model.PayoutStatus `json:"status"`
	Reference  string             `json:"reference,omitempty"`
	Note       string             `json:"note,omitempty"`
	ApprovedAt *time.Time         `json:"approved_at,omitempty"`
	PaidAt     *time.Time         `json:"paid_at,omitempty"`
	RejectedAt *time.Time         `json:"rejected_at,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}

func NewPayoutResponse(p *model.PayoutRequest) *PayoutResponse {
	return &PayoutResponse{
		ID:         p.ID,
		Amount:     p.Amount,
		Status:     p.Status,
		Reference:  p.Reference,
		Note:       p.Note,
		ApprovedAt: p.ApprovedAt,
		PaidAt:     p.PaidAt,
		RejectedAt: p.RejectedAt,
		CreatedAt:  p.CreatedAt,
	}
}

type InvoiceResponse struct {
	InvoiceNumber    string            `json:"invoice_number"`
	Type             model.InvoiceType `json:"type"`
	OrderID          *string           `json:"order_id,omitempty"`
	OrderGroupID     string            `json:"order_group_id"`
	IssuerName       string            `json:"issuer_name"`
	IssuerCountry    string            `json:"issuer_country"`
	AddresseeName    string            `json:"addressee_name"`
	AddresseeCountry string            `json:"addressee_country"`
	Subtotal         decimal.Decimal   `json:"subtotal"`
	Shipping         decimal.Decimal   `json:"shipping"`
	Packing          decimal.Decimal   `json:"packing"`
	Commission       decimal.Decimal   `json:"commission"`
	VatPercent       decimal.Decimal   `json:"vat_percent"`
	VatAmount        decimal.Decimal   `json:"vat_amount"`
	Total            decimal.Decimal   `json:"total"`
	Currency         string            `json:"currency"`
	VatScenario      string            `json:"vat_scenario,omitempty"`
	AccessToken      string            `json:"access_token,omitempty"`
	IssuedAt         time.Time         `json:"issued_at"`
}

// NewInvoiceResponse omits the access token unless withToken is set; the
// public lookup must not echo it back.
func NewInvoiceResponse(inv *model.Invoice, withToken bool) *InvoiceResponse {
	resp := &InvoiceResponse{
		InvoiceNumber:    inv.InvoiceNumber,
		Type:             inv.Type,
		OrderID:          inv.OrderID,
		OrderGroupID:     inv.OrderGroupID,
		IssuerName:       inv.IssuerName,
		IssuerCountry:    inv.IssuerCountry,
		AddresseeName:    inv.AddresseeName,
		AddresseeCountry: inv.AddresseeCountry,
		Subtotal:         inv.Subtotal,
		Shipping:         inv.Shipping,
		Packing:          inv.Packing,
		Commission:       inv.Commission,
		VatPercent:       inv.VatPercent,
		VatAmount:        inv.VatAmount,
		Total:            inv.Total,
		Currency:         inv.Currency,
		VatScenario:      inv.VatScenario,
		IssuedAt:         inv.CreatedAt,
	}
	if withToken {
		resp.AccessToken = inv.AccessToken
	}
	return resp
}
