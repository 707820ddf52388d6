package handler

import (
	"net/http"

	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/dto"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/middleware"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/service"

	"github.com/labstack/echo/v4"
)

type CartHandler struct {
	cartService service.CartService
}

func NewCartHandler(cartService service.CartService) *CartHandler {
	return &CartHandler{
		cartService: cartService,
	}
}

func (h *CartHandler) GetActiveCart(c echo.Context) error {
	ctx := c.Request().Context()

	cart, err := h.cartService.GetOrCreateActive(ctx, middleware.UserID(c))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dto.NewCartResponse(cart))
}

func (h *CartHandler) GetCart(c echo.Context) error {
	ctx := c.Request().Context()

	cartID, err := uintParam(c, "cartID")
	if err != nil {
		return err
	}

	cart, err := h.cartService.Get(ctx, middleware.UserID(c), cartID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dto.NewCartResponse(cart))
}

func (h *CartHandler) AddItem(c echo.Context) error {
	ctx := c.Request().Context()

	cartID, err := uintParam(c, "cartID")
	if err != nil {
		return err
	}

	var req dto.AddCartItemRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	cart, err := h.cartService.AddItem(ctx, middleware.UserID(c), cartID, req.ProductID, req.Quantity)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dto.NewCartResponse(cart))
}
