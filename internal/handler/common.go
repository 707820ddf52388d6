package handler

import (
	"net/http"
	"strconv"

	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/middleware"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/pkg/jwt"

	"github.com/labstack/echo/v4"
)

const defaultPageSize = 50

func uintParam(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func uintQuery(c echo.Context, name string) (uint64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return v, nil
}

func limitQuery(c echo.Context) (int, error) {
	limit, err := uintQuery(c, "limit")
	if err != nil {
		return 0, err
	}
	if limit == 0 || limit > 200 {
		return defaultPageSize, nil
	}
	return int(limit), nil
}

func isAdmin(c echo.Context) bool {
	return middleware.Role(c) == jwt.RoleAdmin
}

// actor names who made a change for status history rows.
func actor(c echo.Context) string {
	return middleware.Role(c) + ":" + strconv.FormatUint(middleware.UserID(c), 10)
}
