package handler

import (
	"net/http"

	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/dto"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/middleware"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/model"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/service"

	"github.com/labstack/echo/v4"
)

type WalletHandler struct {
	ledger        service.LedgerService
	payoutService service.PayoutService
}

func NewWalletHandler(ledger service.LedgerService, payoutService service.PayoutService) *WalletHandler {
	return &WalletHandler{
		ledger:        ledger,
		payoutService: payoutService,
	}
}

func (h *WalletHandler) GetBalance(c echo.Context) error {
	ctx := c.Request().Context()

	balance, err := h.ledger.GetBalance(ctx, middleware.UserID(c))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, balance)
}

func (h *WalletHandler) GetHistory(c echo.Context) error {
	ctx := c.Request().Context()

	cursor, err := uintQuery(c, "cursor")
	if err != nil {
		return err
	}
	limit, err := limitQuery(c)
	if err != nil {
		return err
	}

	entries, err := h.ledger.History(ctx, middleware.UserID(c), cursor, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dto.NewHistoryResponse(entries, limit))
}

func (h *WalletHandler) RequestPayout(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.PayoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	payout, err := h.payoutService.Request(ctx, middleware.UserID(c), req.Amount, req.Note)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, dto.NewPayoutResponse(payout))
}

func (h *WalletHandler) ListPayouts(c echo.Context) error {
	ctx := c.Request().Context()

	payouts, err := h.payoutService.List(ctx, middleware.UserID(c))
	if err != nil {
		return err
	}

	resp := make([]*dto.PayoutResponse, 0, len(payouts))
	for _, p := range payouts {
		resp = append(resp, dto.NewPayoutResponse(p))
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *WalletHandler) ApprovePayout(c echo.Context) error {
	return h.advancePayout(c, func(id uint64) (*model.PayoutRequest, error) {
		return h.payoutService.Approve(c.Request().Context(), id)
	})
}

func (h *WalletHandler) MarkPayoutPaid(c echo.Context) error {
	var req dto.MarkPayoutPaidRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}
	return h.advancePayout(c, func(id uint64) (*model.PayoutRequest, error) {
		return h.payoutService.MarkPaid(c.Request().Context(), id, req.Reference)
	})
}

func (h *WalletHandler) RejectPayout(c echo.Context) error {
	var req dto.RejectPayoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}
	return h.advancePayout(c, func(id uint64) (*model.PayoutRequest, error) {
		return h.payoutService.Reject(c.Request().Context(), id, req.Reason)
	})
}

func (h *WalletHandler) advancePayout(c echo.Context, step func(id uint64) (*model.PayoutRequest, error)) error {
	payoutID, err := uintParam(c, "payoutID")
	if err != nil {
		return err
	}

	payout, err := step(payoutID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dto.NewPayoutResponse(payout))
}
