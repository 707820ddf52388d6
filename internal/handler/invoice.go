package handler

import (
	"net/http"

	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/dto"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/middleware"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/service"

	"github.com/labstack/echo/v4"
)

type InvoiceHandler struct {
	invoiceService service.InvoiceService
	orderService   service.OrderService
}

func NewInvoiceHandler(invoiceService service.InvoiceService, orderService service.OrderService) *InvoiceHandler {
	return &InvoiceHandler{
		invoiceService: invoiceService,
		orderService:   orderService,
	}
}

// VendorInvoice issues (or returns) the commission invoice the platform
// addresses to the vendor of an order.
func (h *InvoiceHandler) VendorInvoice(c echo.Context) error {
	ctx := c.Request().Context()
	orderID := c.Param("orderID")

	if !isAdmin(c) {
		detail, err := h.orderService.Get(ctx, middleware.UserID(c), orderID)
		if err != nil {
			return err
		}
		if detail.Order.VendorID == nil || *detail.Order.VendorID != middleware.UserID(c) {
			return echo.NewHTTPError(http.StatusForbidden, "only the selling vendor can read this invoice")
		}
	}

	invoice, err := h.invoiceService.GenerateVendorInvoice(ctx, orderID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dto.NewInvoiceResponse(invoice, true))
}

// CustomerInvoice issues (or returns) the buyer's invoice for the group the
// order belongs to.
func (h *InvoiceHandler) CustomerInvoice(c echo.Context) error {
	ctx := c.Request().Context()
	orderID := c.Param("orderID")

	if !isAdmin(c) {
		detail, err := h.orderService.Get(ctx, middleware.UserID(c), orderID)
		if err != nil {
			return err
		}
		if detail.Order.UserID != middleware.UserID(c) {
			return echo.NewHTTPError(http.StatusForbidden, "only the buyer can read this invoice")
		}
	}

	invoice, err := h.invoiceService.GenerateCustomerInvoice(ctx, orderID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dto.NewInvoiceResponse(invoice, true))
}

func (h *InvoiceHandler) PublicInvoice(c echo.Context) error {
	ctx := c.Request().Context()

	invoice, err := h.invoiceService.GetByAccessToken(ctx, c.Param("token"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dto.NewInvoiceResponse(invoice, false))
}
