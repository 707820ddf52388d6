package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/pkg/jwt"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("middleware-secret")

func serve(t *testing.T, authHeader string, roles ...string) (*httptest.ResponseRecorder, uint64) {
	t.Helper()
	e := echo.New()
	var seen uint64
	handler := func(c echo.Context) error {
		seen = UserID(c)
		return c.NoContent(http.StatusOK)
	}
	mws := []echo.MiddlewareFunc{AuthMiddleware(testSecret)}
	if len(roles) > 0 {
		mws = append(mws, RequireRole(roles...))
	}
	e.GET("/private", handler, mws...)

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	if authHeader != "" {
		req.Header.Set(echo.HeaderAuthorization, authHeader)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec, seen
}

func token(t *testing.T, userID uint64, role string) string {
	t.Helper()
	tok, err := jwt.GenerateToken(testSecret, userID, role, time.Minute)
	require.NoError(t, err)
	return "Bearer " + tok
}

func TestAuthMiddleware(t *testing.T) {
	rec, userID := serve(t, token(t, 7, jwt.RoleBuyer))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(7), userID)

	for _, header := range []string{"", "Token abc", "Bearer not-a-jwt"} {
		rec, _ := serve(t, header)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
	}
}

func TestRequireRole(t *testing.T) {
	rec, _ := serve(t, token(t, 7, jwt.RoleBuyer), jwt.RoleAdmin)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = serve(t, token(t, 1, jwt.RoleAdmin), jwt.RoleAdmin)
	assert.Equal(t, http.StatusOK, rec.Code)
}
