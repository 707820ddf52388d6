package handler

import (
	"net/http"

	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/dto"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/middleware"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/model"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/service"

	"github.com/labstack/echo/v4"
)

type OrderHandler struct {
	orderService service.OrderService
}

func NewOrderHandler(orderService service.OrderService) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
	}
}

func (h *OrderHandler) GetOrder(c echo.Context) error {
	ctx := c.Request().Context()

	detail, err := h.orderService.Get(ctx, middleware.UserID(c), c.Param("orderID"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dto.NewOrderDetailResponse(detail.Order, detail.History, detail.Attempts))
}

func (h *OrderHandler) GetOrderGroup(c echo.Context) error {
	ctx := c.Request().Context()

	orders, err := h.orderService.GetGroup(ctx, middleware.UserID(c), c.Param("groupID"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dto.NewOrderResponses(orders))
}

func (h *OrderHandler) ListOrders(c echo.Context) error {
	ctx := c.Request().Context()

	limit, err := limitQuery(c)
	if err != nil {
		return err
	}

	orders, err := h.orderService.List(ctx, middleware.UserID(c), limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dto.NewOrderResponses(orders))
}

// UpdateStatus is open to admins and to the vendor that owns the order.
func (h *OrderHandler) UpdateStatus(c echo.Context) error {
	ctx := c.Request().Context()
	orderID := c.Param("orderID")

	var req dto.UpdateStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	if !isAdmin(c) {
		detail, err := h.orderService.Get(ctx, middleware.UserID(c), orderID)
		if err != nil {
			return err
		}
		if detail.Order.VendorID == nil || *detail.Order.VendorID != middleware.UserID(c) {
			return echo.NewHTTPError(http.StatusForbidden, "only the selling vendor can update this order")
		}
	}

	change := service.StatusChange{
		OrderID: orderID,
		Actor:   actor(c),
		Note:    req.Note,
	}
	if req.OrderStatus != "" {
		status, ok := model.NormalizeLegacyOrderStatus(req.OrderStatus)
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown order_status "+req.OrderStatus)
		}
		change.OrderStatus = &status
	}
	if req.ShipmentStatus != "" {
		status := model.ShipmentStatus(req.ShipmentStatus)
		if !status.Valid() {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown shipment_status "+req.ShipmentStatus)
		}
		change.ShipmentStatus = &status
	}
	if req.PaymentStatus != "" {
		status := model.PaymentStatus(req.PaymentStatus)
		if !status.Valid() {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown payment_status "+req.PaymentStatus)
		}
		change.PaymentStatus = &status
	}

	order, err := h.orderService.UpdateStatus(ctx, change)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dto.NewOrderResponse(order))
}

func (h *OrderHandler) RefundOrder(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.RefundRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	order, err := h.orderService.RefundOrder(ctx, c.Param("orderID"), actor(c), req.Note)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dto.NewOrderResponse(order))
}
