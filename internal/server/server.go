package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/apperr"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/handler"
	mw "github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/middleware"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/pkg/jwt"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/pkg/log"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Handlers struct {
	Cart     *handler.CartHandler
	Checkout *handler.CheckoutHandler
	Order    *handler.OrderHandler
	Wallet   *handler.WalletHandler
	Invoice  *handler.InvoiceHandler
	Settings *handler.SettingsHandler
}

type Server struct {
	echo      *echo.Echo
	handlers  *Handlers
	jwtSecret []byte
}

func NewServer(handlers *Handlers, jwtSecret []byte) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = errorHandler

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			log.L.Info("request", fields...)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(mw.PrometheusMiddleware())

	s := &Server{
		echo:      e,
		handlers:  handlers,
		jwtSecret: jwtSecret,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	h := s.handlers

	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := s.echo.Group("/api")

	api.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})

	// -------- public --------
	api.GET("/public/invoices/:token", h.Invoice.PublicInvoice)

	// -------- paypal redirects / webhooks --------
	api.GET("/checkout/success", h.Checkout.HandleSuccess)
	api.GET("/checkout/cancel", h.Checkout.HandleCancel)
	api.POST("/checkout/webhook", h.Checkout.Webhook)

	auth := api.Group("", mw.AuthMiddleware(s.jwtSecret))

	auth.GET("/cart", h.Cart.GetActiveCart)
	auth.GET("/carts/:cartID", h.Cart.GetCart)
	auth.POST("/carts/:cartID/items", h.Cart.AddItem)

	auth.POST("/checkout", h.Checkout.Checkout)
	auth.POST("/checkout/sessions/:sessionID/verify", h.Checkout.VerifySession)
	auth.POST("/order-groups/:groupID/pay", h.Checkout.PayOrderGroup)

	auth.GET("/orders", h.Order.ListOrders)
	auth.GET("/orders/:orderID", h.Order.GetOrder)
	auth.GET("/order-groups/:groupID", h.Order.GetOrderGroup)
	auth.GET("/orders/:orderID/invoice", h.Invoice.CustomerInvoice)

	vendor := auth.Group("", mw.RequireRole(jwt.RoleVendor, jwt.RoleAdmin))
	vendor.PATCH("/orders/:orderID/status", h.Order.UpdateStatus)
	vendor.GET("/orders/:orderID/vendor-invoice", h.Invoice.VendorInvoice)
	vendor.GET("/wallet", h.Wallet.GetBalance)
	vendor.GET("/wallet/transactions", h.Wallet.GetHistory)
	vendor.POST("/payouts", h.Wallet.RequestPayout)
	vendor.GET("/payouts", h.Wallet.ListPayouts)

	admin := auth.Group("/admin", mw.RequireRole(jwt.RoleAdmin))
	admin.POST("/orders/:orderID/refund", h.Order.RefundOrder)
	admin.POST("/payouts/:payoutID/approve", h.Wallet.ApprovePayout)
	admin.POST("/payouts/:payoutID/paid", h.Wallet.MarkPayoutPaid)
	admin.POST("/payouts/:payoutID/reject", h.Wallet.RejectPayout)
	admin.GET("/settings", h.Settings.GetSettings)
	admin.PUT("/settings/:key", h.Settings.SetSetting)
	admin.POST("/unlocks/run", h.Settings.RunUnlocks)
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

var statusByCode = map[apperr.Code]int{
	apperr.CodeValidation:        http.StatusBadRequest,
	apperr.CodeNotFound:          http.StatusNotFound,
	apperr.CodeConflict:          http.StatusConflict,
	apperr.CodeInsufficientFunds: http.StatusPaymentRequired,
	apperr.CodeInvalidTransition: http.StatusConflict,
	apperr.CodeGateway:           http.StatusBadGateway,
	apperr.CodePersistence:       http.StatusInternalServerError,
}

func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	body := map[string]string{"error": http.StatusText(status)}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		status = httpErr.Code
		body["error"] = http.StatusText(status)
		if msg, ok := httpErr.Message.(string); ok {
			body["error"] = msg
		}
	} else if code := apperr.CodeOf(err); code != "" {
		if mapped, ok := statusByCode[code]; ok {
			status = mapped
		}
		body["code"] = string(code)
		if status < http.StatusInternalServerError {
			body["error"] = err.Error()
		}
	}

	if status >= http.StatusInternalServerError {
		log.L.Error("request failed",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(status)
	} else {
		writeErr = c.JSON(status, body)
	}
	if writeErr != nil {
		log.L.Warn("write error response", zap.Error(writeErr))
	}
}
