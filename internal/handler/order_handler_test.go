package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"shop/internal/config"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

const orderTestSecret = "test-secret"

func makeAccountJWT(t *testing.T, sub int64, role string) string {
	t.Helper()
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": sub,
		"iat": now.Unix(),
		"exp": now.Add(15 * time.Minute).Unix(),
	}
	if role != "" {
		claims["role"] = role
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(orderTestSecret))
	if err != nil {
		t.Fatalf("sign jwt: %v", err)
	}
	return raw
}

func orderEcho() *echo.Echo {
	e := echo.New()
	//ガードで弾かれるパスではusecaseまで到達しない
	h := NewOrderHandler(nil)
	h.RegisterRoutes(e, config.Config{JWTSecret: orderTestSecret})
	return e
}

func patchFulfillment(e *echo.Echo, token string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPatch, "/orders/1/fulfillment", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

// ログイン済みでも客は他人の注文をキャンセルできない => 403
func TestPatchFulfillment_CustomerForbidden(t *testing.T) {
	e := orderEcho()

	raw := makeAccountJWT(t, 99, "")

	rec := patchFulfillment(e, raw, `{"status":"CANCELLED"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "staff only")
}

// role=USERでも入れない
func TestPatchFulfillment_UserRoleForbidden(t *testing.T) {
	e := orderEcho()

	raw := makeAccountJWT(t, 99, "USER")

	rec := patchFulfillment(e, raw, `{"status":"CANCELLED"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// 匿名は注文ルート自体に入れない => 401
func TestPatchFulfillment_AnonymousUnauthorized(t *testing.T) {
	e := orderEcho()

	req := httptest.NewRequest(http.MethodPatch, "/orders/1/fulfillment", strings.NewReader(`{"status":"CANCELLED"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("X-Session-Token", "sess-abc")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
