package handler

import (
	"context"
	"net/http"

	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/dto"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/service"

	"github.com/labstack/echo/v4"
)

type SettingsHandler struct {
	settings      service.SettingsService
	unlockService service.UnlockService
}

func NewSettingsHandler(settings service.SettingsService, unlockService service.UnlockService) *SettingsHandler {
	return &SettingsHandler{
		settings:      settings,
		unlockService: unlockService,
	}
}

// GetSettings returns the effective values, defaults included.
func (h *SettingsHandler) GetSettings(c echo.Context) error {
	ctx := c.Request().Context()

	return c.JSON(http.StatusOK, effectiveSettings(ctx, h.settings))
}

func (h *SettingsHandler) SetSetting(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.SetSettingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	if err := h.settings.Set(ctx, c.Param("key"), req.Value); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, effectiveSettings(ctx, h.settings))
}

// RunUnlocks triggers one unlock batch outside the worker schedule.
func (h *SettingsHandler) RunUnlocks(c echo.Context) error {
	ctx := c.Request().Context()

	result, err := h.unlockService.ProcessUnlocks(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

func effectiveSettings(ctx context.Context, s service.SettingsService) map[string]interface{} {
	return map[string]interface{}{
		service.SettingVatPercent:         s.VatPercent(ctx),
		service.SettingCommissionPercent:  s.CommissionPercent(ctx),
		service.SettingHighValueThreshold: s.HighValueThreshold(ctx),
		service.SettingFundHoldDays:       s.FundHoldDays(ctx),
		service.SettingUnlockBatchSize:    s.UnlockBatchSize(ctx),
		service.SettingHomeJurisdiction:   s.HomeJurisdiction(ctx),
	}
}
