package handler

import (
	"fmt"
	"io"
	"net/http"

	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/dto"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/middleware"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/service"

	"github.com/labstack/echo/v4"
)

type CheckoutHandler struct {
	checkoutService service.CheckoutService
	baseURL         string
}

func NewCheckoutHandler(checkoutService service.CheckoutService, baseURL string) *CheckoutHandler {
	return &CheckoutHandler{
		checkoutService: checkoutService,
		baseURL:         baseURL,
	}
}

func (h *CheckoutHandler) successURL() string {
	return h.baseURL + "/api/checkout/success"
}

func (h *CheckoutHandler) cancelURL() string {
	return h.baseURL + "/api/checkout/cancel"
}

func newCheckoutResponse(result *service.CheckoutResult) *dto.CheckoutResponse {
	resp := &dto.CheckoutResponse{
		OrderGroupID: result.OrderGroupID,
		Type:         result.Type,
		Reasons:      result.Reasons,
		Total:        result.Total,
		Currency:     result.Currency,
		SessionID:    result.SessionID,
		ApprovalURL:  result.RedirectURL,
	}
	if len(result.Orders) > 0 {
		resp.Orders = dto.NewOrderResponses(result.Orders)
	}
	return resp
}

func (h *CheckoutHandler) Checkout(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.CheckoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	shipping := make(map[uint64]service.ShippingQuote, len(req.Shipping))
	for _, q := range req.Shipping {
		shipping[q.VendorID] = service.ShippingQuote{Total: q.Total, Method: q.Method}
	}

	result, err := h.checkoutService.Checkout(ctx, service.CheckoutRequest{
		UserID:        middleware.UserID(c),
		CartID:        req.CartID,
		AddressID:     req.AddressID,
		ShippingCosts: shipping,
		PayerEmail:    req.PayerEmail,
		SuccessURL:    h.successURL(),
		CancelURL:     h.cancelURL(),
	})
	if err != nil {
		return err
	}

	status := http.StatusOK
	if len(result.Orders) > 0 {
		status = http.StatusCreated
	}
	return c.JSON(status, newCheckoutResponse(result))
}

// PayOrderGroup opens a payment session for an approved request-type group.
func (h *CheckoutHandler) PayOrderGroup(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.PayGroupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	result, err := h.checkoutService.PayOrderGroup(ctx, service.PayGroupRequest{
		UserID:       middleware.UserID(c),
		OrderGroupID: c.Param("groupID"),
		PayerEmail:   req.PayerEmail,
		SuccessURL:   h.successURL(),
		CancelURL:    h.cancelURL(),
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, newCheckoutResponse(result))
}

func (h *CheckoutHandler) VerifySession(c echo.Context) error {
	ctx := c.Request().Context()

	outcome, err := h.checkoutService.VerifySession(ctx, c.Param("sessionID"))
	if err != nil {
		return err
	}
	if outcome.UserID != middleware.UserID(c) && !isAdmin(c) {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}

	return c.JSON(http.StatusOK, &dto.VerifyResponse{
		SessionID:    outcome.SessionID,
		OrderGroupID: outcome.OrderGroupID,
		Paid:         outcome.Paid,
		Status:       outcome.Status,
		Orders:       dto.NewOrderResponses(outcome.Orders),
	})
}

// HandleSuccess is the gateway's return URL. PayPal appends the order id as
// the token query parameter.
func (h *CheckoutHandler) HandleSuccess(c echo.Context) error {
	ctx := c.Request().Context()

	sessionID := c.QueryParam("token")
	if sessionID == "" {
		return c.String(http.StatusBadRequest, "missing order token")
	}

	outcome, err := h.checkoutService.VerifySession(ctx, sessionID)
	if err != nil {
		return err
	}

	message := "Your payment is still being processed. Your orders will appear once it clears."
	if outcome.Paid {
		message = "Payment received. Order reference " + outcome.OrderGroupID + "."
	}

	html := `
	<!DOCTYPE html>
	<html>
	<head>
		<meta charset="utf-8">
		<title>Payment</title>
		<style>
			body {
				font-family: Arial, sans-serif;
				text-align: center;
				margin-top: 80px;
			}
		</style>
	</head>
	<body>
		<h2>Thank you</h2>
		<p>` + message + `</p>
		<p><a href="/">Back to the shop</a></p>
	</body>
	</html>
	`

	return c.HTML(http.StatusOK, html)
}

// HandleCancel is the gateway's cancel URL. The held cart is reopened.
func (h *CheckoutHandler) HandleCancel(c echo.Context) error {
	ctx := c.Request().Context()

	if sessionID := c.QueryParam("token"); sessionID != "" {
		if _, err := h.checkoutService.CancelSession(ctx, sessionID); err != nil {
			return err
		}
	}

	return c.HTML(http.StatusOK, `<!DOCTYPE html><html><body style="font-family: Arial, sans-serif; text-align: center; margin-top: 80px;"><h2>Payment cancelled</h2><p>Your cart has been kept.</p></body></html>`)
}

func (h *CheckoutHandler) Webhook(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}

	err = h.checkoutService.HandleWebhook(ctx, c.Request().Header, body)
	if err != nil {
		return fmt.Errorf("handle webhook: %w", err)
	}

	return c.NoContent(http.StatusOK)
}
