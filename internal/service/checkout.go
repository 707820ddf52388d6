package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/apperr"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/event"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/metrics"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/model"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/repository"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/pkg/log"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	MetaOrderGroupID = "order_group_id"
	MetaCartID       = "cart_id"
	MetaUserID       = "user_id"
	MetaAddressID    = "address_id"
	MetaShipping     = "shipping"
)

type SessionLineItem struct {
	Name       string
	SKU        string
	UnitAmount decimal.Decimal
	Quantity   int32
}

type CreateSessionRequest struct {
	OrderGroupID string
	LineItems    []SessionLineItem
	ItemTotal    decimal.Decimal
	Shipping     decimal.Decimal
	Packing      decimal.Decimal
	TaxTotal     decimal.Decimal
	Total        decimal.Decimal
	Currency     string
	PayerEmail   string
	SuccessURL   string
	CancelURL    string
	Metadata     map[string]string
}

type CheckoutSession struct {
	ID          string
	RedirectURL string
}

type GatewaySession struct {
	ID            string
	Paid          bool
	Status        string
	AmountTotal   decimal.Decimal
	Currency      string
	PaymentIntent string
	PayerEmail    string
	Metadata      map[string]string
	Raw           []byte
}

// PaymentGateway is a hosted-checkout provider.
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, req CreateSessionRequest) (*CheckoutSession, error)
	RetrieveSession(ctx context.Context, sessionID string) (*GatewaySession, error)
	VerifyWebhookSignature(ctx context.Context, headers http.Header, body []byte) error
}

type CheckoutRequest struct {
	UserID        uint64
	CartID        uint64
	AddressID     *uint64
	ShippingCosts map[uint64]ShippingQuote
	PayerEmail    string
	SuccessURL    string
	CancelURL     string
}

type PayGroupRequest struct {
	UserID       uint64
	OrderGroupID string
	PayerEmail   string
	SuccessURL   string
	CancelURL    string
}

type CheckoutResult struct {
	OrderGroupID string          `json:"order_group_id"`
	Type         model.OrderType `json:"type"`
	Reasons      []string        `json:"reasons,omitempty"`
	Total        decimal.Decimal `json:"total"`
	Currency     string          `json:"currency"`
	Orders       []*model.Order  `json:"orders,omitempty"`
	SessionID    string          `json:"session_id,omitempty"`
	RedirectURL  string          `json:"redirect_url,omitempty"`
}

type PaymentOutcome struct {
	SessionID    string         `json:"session_id"`
	OrderGroupID string         `json:"order_group_id"`
	UserID       uint64         `json:"-"`
	Paid         bool           `json:"paid"`
	Status       string         `json:"status"`
	Orders       []*model.Order `json:"orders,omitempty"`
}

// CheckoutService bridges the cart and the payment gateway. Direct
// checkouts write no orders until the gateway confirms payment.
type CheckoutService interface {
	Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error)
	PayOrderGroup(ctx context.Context, req PayGroupRequest) (*CheckoutResult, error)
	VerifySession(ctx context.Context, sessionID string) (*PaymentOutcome, error)
	// CancelSession reopens the cart behind an abandoned direct session.
	CancelSession(ctx context.Context, sessionID string) (*PaymentOutcome, error)
	HandleWebhook(ctx context.Context, headers http.Header, body []byte) error
}

type checkoutServiceImpl struct {
	db                 *gorm.DB
	gateway            PaymentGateway
	composer           ComposerService
	compliance         ComplianceService
	ledger             LedgerService
	settings           SettingsService
	orderRepo          repository.OrderRepository
	paymentAttemptRepo repository.PaymentAttemptRepository
	webhookEventRepo   repository.WebhookEventRepository
	codes              CodeGenerator
	publisher          event.Publisher
	platformUserID     uint64
}

func NewCheckoutService(
	db *gorm.DB,
	gateway PaymentGateway,
	composer ComposerService,
	compliance ComplianceService,
	ledger LedgerService,
	settings SettingsService,
	orderRepo repository.OrderRepository,
	paymentAttemptRepo repository.PaymentAttemptRepository,
	webhookEventRepo repository.WebhookEventRepository,
	codes CodeGenerator,
	publisher event.Publisher,
	platformUserID uint64,
) CheckoutService {
	return &checkoutServiceImpl{
		db:                 db,
		gateway:            gateway,
		composer:           composer,
		compliance:         compliance,
		ledger:             ledger,
		settings:           settings,
		orderRepo:          orderRepo,
		paymentAttemptRepo: paymentAttemptRepo,
		webhookEventRepo:   webhookEventRepo,
		codes:              codes,
		publisher:          publisher,
		platformUserID:     platformUserID,
	}
}

// Checkout holds the cart for the length of the payment session, so what the
// buyer pays for is what gets converted.
func (s *checkoutServiceImpl) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if err := s.composer.Hold(ctx, req.UserID, req.CartID); err != nil {
		return nil, err
	}

	result, err := s.checkout(ctx, req)
	if err != nil {
		if releaseErr := s.composer.Release(ctx, req.UserID, req.CartID); releaseErr != nil {
			log.L.Warn("release cart after failed checkout",
				zap.Uint64("cart_id", req.CartID),
				zap.Error(releaseErr),
			)
		}
		return nil, err
	}
	return result, nil
}

func (s *checkoutServiceImpl) checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	quote, err := s.composer.Quote(ctx, QuoteInput{
		UserID:        req.UserID,
		CartID:        req.CartID,
		AddressID:     req.AddressID,
		ShippingCosts: req.ShippingCosts,
	})
	if err != nil {
		return nil, err
	}

	classification, err := s.compliance.ClassifyQuote(ctx, quote)
	if err != nil {
		return nil, fmt.Errorf("classify cart: %w", err)
	}

	groupID := s.codes.NextCode()
	result := &CheckoutResult{
		OrderGroupID: groupID,
		Type:         classification.Type,
		Reasons:      classification.Reasons,
		Total:        quote.Total,
		Currency:     quote.Currency,
	}
	logger := log.L.With(zap.String("order_group_id", groupID), zap.Uint64("cart_id", req.CartID))

	if classification.RequiresApproval() {
		orders, err := s.composer.Convert(ctx, ConvertInput{
			UserID:       req.UserID,
			CartID:       req.CartID,
			OrderGroupID: groupID,
			Options: ConvertOptions{
				Type:          model.OrderTypeRequest,
				AddressID:     req.AddressID,
				ShippingCosts: req.ShippingCosts,
				Actor:         "customer",
				Note:          joinReasons(classification.Reasons),
			},
		})
		if err != nil {
			return nil, err
		}
		logger.Info("checkout routed to approval", zap.Strings("reasons", classification.Reasons))
		metrics.RecordOperation("checkout_request", true)
		result.Orders = orders
		return result, nil
	}

	shipping, err := json.Marshal(req.ShippingCosts)
	if err != nil {
		return nil, fmt.Errorf("encode shipping quotes: %w", err)
	}
	metadata := map[string]string{
		MetaOrderGroupID: groupID,
		MetaCartID:       strconv.FormatUint(req.CartID, 10),
		MetaUserID:       strconv.FormatUint(req.UserID, 10),
		MetaShipping:     string(shipping),
	}
	if req.AddressID != nil {
		metadata[MetaAddressID] = strconv.FormatUint(*req.AddressID, 10)
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, sessionRequestFromQuote(groupID, quote, req.PayerEmail, req.SuccessURL, req.CancelURL, metadata))
	if err != nil {
		metrics.RecordOperation("checkout_direct", false)
		return nil, apperr.Wrap(apperr.CodeGateway, err, "create checkout session")
	}

	logger.Info("checkout session created", zap.String("session_id", session.ID))
	metrics.RecordOperation("checkout_direct", true)
	result.SessionID = session.ID
	result.RedirectURL = session.RedirectURL
	return result, nil
}

// PayOrderGroup opens a payment session for a request-type group once every
// order in it has been approved.
func (s *checkoutServiceImpl) PayOrderGroup(ctx context.Context, req PayGroupRequest) (*CheckoutResult, error) {
	orders, err := s.orderRepo.FindByGroupID(ctx, nil, req.OrderGroupID)
	if err != nil {
		return nil, fmt.Errorf("find orders: %w", err)
	}
	if len(orders) == 0 || orders[0].UserID != req.UserID {
		return nil, apperr.Newf(apperr.CodeNotFound, "order group %s not found", req.OrderGroupID)
	}

	quote := &Quote{Currency: orders[0].Currency, Total: decimal.Zero}
	for _, order := range orders {
		if order.IsPaid() {
			return nil, apperr.Newf(apperr.CodeConflict, "order %s is already paid", order.OrderID)
		}
		if order.OrderStatus != model.OrderStatusApproved {
			return nil, apperr.Newf(apperr.CodeInvalidTransition, "order %s is %s, not approved", order.OrderID, order.OrderStatus)
		}
		quote.Groups = append(quote.Groups, quoteGroupFromOrder(order))
		quote.Total = quote.Total.Add(order.TotalAmount)
	}

	metadata := map[string]string{
		MetaOrderGroupID: req.OrderGroupID,
		MetaUserID:       strconv.FormatUint(req.UserID, 10),
	}
	session, err := s.gateway.CreateCheckoutSession(ctx, sessionRequestFromQuote(req.OrderGroupID, quote, req.PayerEmail, req.SuccessURL, req.CancelURL, metadata))
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeGateway, err, "create checkout session")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.orderRepo.LockByGroupID(ctx, tx, req.OrderGroupID)
		if err != nil {
			return fmt.Errorf("lock orders: %w", err)
		}
		for _, order := range locked {
			if !model.CanTransitionPayment(order.PaymentStatus, model.PaymentStatusPending) {
				continue
			}
			pending := model.PaymentStatusPtr(model.PaymentStatusPending)
			if err := s.orderRepo.Update(ctx, tx, order.ID, map[string]interface{}{"payment_status": pending}); err != nil {
				return fmt.Errorf("update order %s: %w", order.OrderID, err)
			}
			err := s.orderRepo.AppendHistory(ctx, tx, &model.OrderStatusHistory{
				OrderID:        order.ID,
				OrderStatus:    order.OrderStatus,
				PaymentStatus:  pending,
				ShipmentStatus: order.ShipmentStatus,
				Actor:          "customer",
				Note:           "payment session " + session.ID,
			})
			if err != nil {
				return fmt.Errorf("append history: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &CheckoutResult{
		OrderGroupID: req.OrderGroupID,
		Type:         model.OrderTypeRequest,
		Total:        quote.Total,
		Currency:     quote.Currency,
		SessionID:    session.ID,
		RedirectURL:  session.RedirectURL,
	}, nil
}

// VerifySession reconciles a gateway session with the order group it pays
// for. It is safe to call any number of times for the same session.
func (s *checkoutServiceImpl) VerifySession(ctx context.Context, sessionID string) (*PaymentOutcome, error) {
	if sessionID == "" {
		return nil, apperr.New(apperr.CodeValidation, "session id is required")
	}

	session, err := s.gateway.RetrieveSession(ctx, sessionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeGateway, err, "retrieve checkout session")
	}

	groupID := session.Metadata[MetaOrderGroupID]
	if groupID == "" {
		return nil, apperr.Newf(apperr.CodeValidation, "session %s carries no order group", sessionID)
	}
	logger := log.L.With(zap.String("session_id", sessionID), zap.String("order_group_id", groupID))

	outcome := &PaymentOutcome{
		SessionID:    sessionID,
		OrderGroupID: groupID,
		Paid:         session.Paid,
		Status:       session.Status,
	}
	outcome.UserID, _ = strconv.ParseUint(session.Metadata[MetaUserID], 10, 64)

	orders, err := s.orderRepo.FindByGroupID(ctx, nil, groupID)
	if err != nil {
		return nil, fmt.Errorf("find orders: %w", err)
	}
	if len(orders) > 0 {
		outcome.UserID = orders[0].UserID
	}

	if !session.Paid {
		if len(orders) > 0 {
			if err := s.recordAttempts(ctx, groupID, session); err != nil {
				return nil, err
			}
		}
		outcome.Orders = orders
		return outcome, nil
	}

	if len(orders) == 0 {
		in, err := convertInputFromMetadata(session.Metadata)
		if err != nil {
			return nil, err
		}
		if err := s.guardPaidConversion(ctx, &in, session, logger); err != nil {
			metrics.RecordOperation("verify_payment", false)
			return nil, err
		}
		if _, err := s.composer.Convert(ctx, in); err != nil {
			metrics.RecordOperation("verify_payment", false)
			return nil, fmt.Errorf("convert paid cart: %w", err)
		}
	}

	holdDays := s.settings.FundHoldDays(ctx)
	var newlyPaid []*model.Order
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		newlyPaid = newlyPaid[:0]
		locked, err := s.orderRepo.LockByGroupID(ctx, tx, groupID)
		if err != nil {
			return fmt.Errorf("lock orders: %w", err)
		}

		now := time.Now()
		for _, order := range locked {
			if err := s.upsertAttempt(ctx, tx, order.ID, session); err != nil {
				return err
			}
			if order.IsPaid() {
				continue
			}
			if !model.CanTransitionPayment(order.PaymentStatus, model.PaymentStatusPaid) {
				logger.Warn("paid session for order that cannot become paid",
					zap.String("order_id", order.OrderID),
				)
				continue
			}

			paid := model.PaymentStatusPtr(model.PaymentStatusPaid)
			fields := map[string]interface{}{
				"payment_status": paid,
				"paid_at":        now,
			}
			if !order.OrderStatus.Valid() {
				order.OrderStatus = model.OrderStatusReceived
				fields["order_status"] = order.OrderStatus
			}
			if err := s.orderRepo.Update(ctx, tx, order.ID, fields); err != nil {
				return fmt.Errorf("mark order %s paid: %w", order.OrderID, err)
			}
			err := s.orderRepo.AppendHistory(ctx, tx, &model.OrderStatusHistory{
				OrderID:        order.ID,
				OrderStatus:    order.OrderStatus,
				PaymentStatus:  paid,
				ShipmentStatus: order.ShipmentStatus,
				Actor:          "payment",
				Note:           "payment confirmed by session " + sessionID,
				CreatedAt:      now,
			})
			if err != nil {
				return fmt.Errorf("append history: %w", err)
			}

			order.PaymentStatus = paid
			order.PaidAt = &now
			if err := s.settleTx(ctx, tx, order, holdDays, now); err != nil {
				return fmt.Errorf("settle order %s: %w", order.OrderID, err)
			}
			newlyPaid = append(newlyPaid, order)
		}
		return nil
	})
	if err != nil {
		metrics.RecordOperation("verify_payment", false)
		return nil, err
	}

	if len(newlyPaid) > 0 {
		metrics.RecordOperation("verify_payment", true)
		logger.Info("order group paid", zap.Int("orders", len(newlyPaid)))
		events := make([]event.Event, 0, len(newlyPaid))
		for _, order := range newlyPaid {
			events = append(events, event.New(event.OrderPaid, OrderEventPayload(order)))
		}
		event.PublishAll(ctx, s.publisher, events...)
	}

	outcome.Orders, err = s.orderRepo.FindByGroupID(ctx, nil, groupID)
	if err != nil {
		return nil, fmt.Errorf("reload orders: %w", err)
	}
	return outcome, nil
}

// guardPaidConversion pins a conversion on payment to the amount the gateway
// collected and re-runs the approval rules on the cart as it stands now. A
// cart that now needs approval still becomes orders, as request orders whose
// captured payment is settled but which wait for approval before fulfilment.
func (s *checkoutServiceImpl) guardPaidConversion(ctx context.Context, in *ConvertInput, session *GatewaySession, logger *zap.Logger) error {
	charged := session.AmountTotal
	in.Options.ExpectedTotal = &charged
	in.Options.ExpectedCurrency = session.Currency

	quote, err := s.composer.Quote(ctx, QuoteInput{
		UserID:        in.UserID,
		CartID:        in.CartID,
		AddressID:     in.Options.AddressID,
		ShippingCosts: in.Options.ShippingCosts,
	})
	if apperr.IsValidation(err) {
		// already converted or no longer convertible; Convert decides which
		logger.Debug("skip pre-conversion quote", zap.Error(err))
		return nil
	}
	if err != nil {
		return err
	}

	if !quote.Total.Equal(charged) || quote.Currency != session.Currency {
		logger.Error("paid amount does not match the cart",
			zap.String("paid", charged.StringFixed(2)+" "+session.Currency),
			zap.String("cart", quote.Total.StringFixed(2)+" "+quote.Currency),
		)
		return apperr.Newf(apperr.CodeConflict, "session %s paid %s %s but the cart totals %s %s",
			session.ID, charged.StringFixed(2), session.Currency, quote.Total.StringFixed(2), quote.Currency)
	}

	classification, err := s.compliance.ClassifyQuote(ctx, quote)
	if err != nil {
		return fmt.Errorf("classify cart: %w", err)
	}
	if classification.RequiresApproval() {
		logger.Warn("paid cart now requires approval", zap.Strings("reasons", classification.Reasons))
		in.Options.Type = model.OrderTypeRequest
		in.Options.PaymentPending = true
		in.Options.Note = joinReasons(classification.Reasons)
	}
	return nil
}

func (s *checkoutServiceImpl) CancelSession(ctx context.Context, sessionID string) (*PaymentOutcome, error) {
	if sessionID == "" {
		return nil, apperr.New(apperr.CodeValidation, "session id is required")
	}

	session, err := s.gateway.RetrieveSession(ctx, sessionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeGateway, err, "retrieve checkout session")
	}
	if session.Paid {
		return s.VerifySession(ctx, sessionID)
	}

	groupID := session.Metadata[MetaOrderGroupID]
	outcome := &PaymentOutcome{SessionID: sessionID, OrderGroupID: groupID, Status: session.Status}
	if session.Metadata[MetaCartID] == "" {
		return outcome, nil
	}

	in, err := convertInputFromMetadata(session.Metadata)
	if err != nil {
		return nil, err
	}
	outcome.UserID = in.UserID

	err = s.composer.Release(ctx, in.UserID, in.CartID)
	if apperr.Is(err, apperr.CodeConflict) {
		log.L.Info("cart not reopened after cancel",
			zap.String("session_id", sessionID),
			zap.Uint64("cart_id", in.CartID),
			zap.Error(err),
		)
		return outcome, nil
	}
	if err != nil {
		return nil, err
	}
	log.L.Info("cart reopened after cancel", zap.String("session_id", sessionID), zap.Uint64("cart_id", in.CartID))
	return outcome, nil
}

// settleTx credits the proceeds of one freshly paid order. A vendor's share
// is held for the return window; commission and platform sales are
// available at once.
func (s *checkoutServiceImpl) settleTx(ctx context.Context, tx *gorm.DB, order *model.Order, holdDays int, now time.Time) error {
	orderID := order.OrderID
	buyer := order.UserID

	if order.VendorID == nil {
		_, err := s.ledger.CreditTx(ctx, tx, CreditRequest{
			UserID:       s.platformUserID,
			Amount:       order.TotalAmount,
			Type:         model.TransactionTypePurchase,
			SourceUserID: &buyer,
			OrderID:      &orderID,
			Note:         "platform sale " + orderID,
		})
		return err
	}

	vendorID := *order.VendorID
	earning := order.TotalAmount.Sub(order.CommissionAmount)
	if earning.IsPositive() {
		unlockAt := now.AddDate(0, 0, holdDays)
		_, err := s.ledger.CreditTx(ctx, tx, CreditRequest{
			UserID:       vendorID,
			Amount:       earning,
			Type:         model.TransactionTypeVendorEarning,
			Locked:       true,
			UnlockAt:     &unlockAt,
			SourceUserID: &buyer,
			OrderID:      &orderID,
			Note:         "earning for order " + orderID,
		})
		if err != nil {
			return err
		}
	}

	if order.CommissionAmount.IsPositive() {
		_, err := s.ledger.CreditTx(ctx, tx, CreditRequest{
			UserID:       s.platformUserID,
			Amount:       order.CommissionAmount,
			Type:         model.TransactionTypeCommission,
			SourceUserID: &vendorID,
			OrderID:      &orderID,
			Note:         "commission on order " + orderID,
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func (s *checkoutServiceImpl) recordAttempts(ctx context.Context, groupID string, session *GatewaySession) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.orderRepo.LockByGroupID(ctx, tx, groupID)
		if err != nil {
			return fmt.Errorf("lock orders: %w", err)
		}
		for _, order := range locked {
			if err := s.upsertAttempt(ctx, tx, order.ID, session); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *checkoutServiceImpl) upsertAttempt(ctx context.Context, tx *gorm.DB, orderPK uint64, session *GatewaySession) error {
	raw := session.Raw
	if !json.Valid(raw) {
		raw = []byte("{}")
	}
	err := s.paymentAttemptRepo.Upsert(ctx, tx, &model.PaymentAttempt{
		OrderID:       orderPK,
		SessionID:     session.ID,
		Status:        session.Status,
		AmountTotal:   session.AmountTotal,
		Currency:      session.Currency,
		PaymentIntent: session.PaymentIntent,
		PayerEmail:    session.PayerEmail,
		Raw:           datatypes.JSON(raw),
	})
	if err != nil {
		return fmt.Errorf("record payment attempt: %w", err)
	}
	return nil
}

// HandleWebhook accepts a gateway notification. Duplicate deliveries of the
// same event id are acknowledged without reprocessing.
func (s *checkoutServiceImpl) HandleWebhook(ctx context.Context, headers http.Header, body []byte) error {
	if err := s.gateway.VerifyWebhookSignature(ctx, headers, body); err != nil {
		return apperr.Wrap(apperr.CodeValidation, err, "verify webhook signature")
	}

	parsed := gjson.ParseBytes(body)
	eventID := parsed.Get("id").String()
	eventType := parsed.Get("event_type").String()
	if eventID == "" {
		return apperr.New(apperr.CodeValidation, "webhook payload has no event id")
	}

	seen, err := s.webhookEventRepo.Exists(ctx, eventID)
	if err != nil {
		return fmt.Errorf("check webhook event: %w", err)
	}
	if seen {
		log.L.Info("duplicate webhook ignored", zap.String("event_id", eventID))
		return nil
	}

	var sessionID string
	switch eventType {
	case "CHECKOUT.ORDER.APPROVED":
		sessionID = parsed.Get("resource.id").String()
	case "PAYMENT.CAPTURE.COMPLETED":
		sessionID = parsed.Get("resource.supplementary_data.related_ids.order_id").String()
	default:
		log.L.Debug("webhook event not handled", zap.String("event_type", eventType))
	}

	if sessionID != "" {
		if _, err := s.VerifySession(ctx, sessionID); err != nil {
			return fmt.Errorf("verify session from webhook %s: %w", eventID, err)
		}
	}

	return s.webhookEventRepo.MarkProcessed(ctx, eventID, eventType)
}

func convertInputFromMetadata(meta map[string]string) (ConvertInput, error) {
	cartID, err := strconv.ParseUint(meta[MetaCartID], 10, 64)
	if err != nil {
		return ConvertInput{}, apperr.Wrap(apperr.CodeValidation, err, "session metadata has no cart id")
	}
	userID, err := strconv.ParseUint(meta[MetaUserID], 10, 64)
	if err != nil {
		return ConvertInput{}, apperr.Wrap(apperr.CodeValidation, err, "session metadata has no user id")
	}

	in := ConvertInput{
		UserID:       userID,
		CartID:       cartID,
		OrderGroupID: meta[MetaOrderGroupID],
		Options: ConvertOptions{
			Type:  model.OrderTypeDirect,
			Actor: "payment",
			Note:  "converted on payment confirmation",
		},
	}
	if raw := meta[MetaAddressID]; raw != "" {
		addressID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return ConvertInput{}, apperr.Wrap(apperr.CodeValidation, err, "invalid address id in session metadata")
		}
		in.Options.AddressID = &addressID
	}
	if raw := meta[MetaShipping]; raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &in.Options.ShippingCosts); err != nil {
			return ConvertInput{}, apperr.Wrap(apperr.CodeValidation, err, "invalid shipping quotes in session metadata")
		}
	}
	return in, nil
}

func sessionRequestFromQuote(groupID string, quote *Quote, payerEmail, successURL, cancelURL string, metadata map[string]string) CreateSessionRequest {
	req := CreateSessionRequest{
		OrderGroupID: groupID,
		ItemTotal:    decimal.Zero,
		Shipping:     decimal.Zero,
		Packing:      decimal.Zero,
		TaxTotal:     decimal.Zero,
		Total:        quote.Total,
		Currency:     quote.Currency,
		PayerEmail:   payerEmail,
		SuccessURL:   successURL,
		CancelURL:    cancelURL,
		Metadata:     metadata,
	}
	for _, group := range quote.Groups {
		for _, line := range group.Lines {
			req.LineItems = append(req.LineItems, SessionLineItem{
				Name:       line.Name,
				SKU:        line.SKU,
				UnitAmount: line.UnitPrice,
				Quantity:   line.Quantity,
			})
		}
		req.ItemTotal = req.ItemTotal.Add(group.Totals.ProductTotal)
		req.Shipping = req.Shipping.Add(group.Totals.ShippingTotal)
		req.Packing = req.Packing.Add(group.Totals.PackingTotal)
		req.TaxTotal = req.TaxTotal.Add(group.Totals.TaxAmount)
	}
	return req
}

func quoteGroupFromOrder(order *model.Order) *QuoteGroup {
	group := &QuoteGroup{
		VendorID: order.VendorID,
		Totals: GroupTotals{
			ProductTotal:     order.ProductTotal,
			ShippingTotal:    order.ShippingTotal,
			PackingTotal:     order.PackingTotal,
			VatPercent:       order.VatPercent,
			TaxAmount:        order.TaxAmount,
			CommissionAmount: order.CommissionAmount,
			TotalAmount:      order.TotalAmount,
		},
	}
	for _, item := range order.Items {
		group.Lines = append(group.Lines, PricedLine{
			ProductID: item.ProductID,
			Name:      item.Name,
			SKU:       item.SKU,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			LineTotal: item.LineTotal,
		})
	}
	return group
}

const maxNoteBytes = 512

// joinReasons fits the reasons into a history note without splitting a rune.
func joinReasons(reasons []string) string {
	note := strings.Join(reasons, "; ")
	if len(note) <= maxNoteBytes {
		return note
	}
	cut := maxNoteBytes
	for cut > 0 && !utf8.RuneStart(note[cut]) {
		cut--
	}
	return note[:cut]
}
