package handler

import (
	"errors"
	"net/http"

	"shop/internal/middleware"
	"shop/internal/usecase"

	"github.com/labstack/echo/v4"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// 在庫不足は数字まで返す（フロントが数量を直せるように）
type InsufficientStockResponse struct {
	Error     string `json:"error"`
	ProductID int64  `json:"product_id"`
	Requested int64  `json:"requested"`
	Available int64  `json:"available"`
}

type LineUnavailableResponse struct {
	Error     string `json:"error"`
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
}

func writeError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}

	var ins *usecase.InsufficientStockError
	if errors.As(err, &ins) {
		return c.JSON(http.StatusConflict, InsufficientStockResponse{
			Error:     "insufficient stock",
			ProductID: ins.ProductID,
			Requested: ins.Requested,
			Available: ins.Available,
		})
	}

	var line *usecase.LineUnavailableError
	if errors.As(err, &line) {
		return c.JSON(http.StatusConflict, LineUnavailableResponse{
			Error:     "item unavailable",
			ProductID: line.ProductID,
			Name:      line.Name,
		})
	}

	switch {
	case errors.Is(err, usecase.ErrEmptyCart):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cart is empty"})
	case errors.Is(err, usecase.ErrUnserviceable):
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "no shipping available for destination"})
	case errors.Is(err, usecase.ErrUnverifiedEvent):
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid signature"})
	}

	var gw *usecase.GatewayError
	if errors.As(err, &gw) {
		return c.JSON(http.StatusBadGateway, ErrorResponse{Error: "payment gateway unavailable"})
	}

	if he, ok := usecase.AsHTTPError(err); ok {
		return c.JSON(he.Status, ErrorResponse{Error: he.Message})
	}

	//500
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

// ミドルウェアが解決した身元を取り出す
func identityFromContext(c echo.Context) usecase.Identity {
	var id usecase.Identity
	if v, ok := c.Get(middleware.CtxAccountIDKey).(int64); ok {
		id.AccountID = v
	}
	if v, ok := c.Get(middleware.CtxSessionTokenKey).(string); ok {
		id.SessionToken = v
	}
	return id
}

func accountIDFromContext(c echo.Context) (int64, bool) {
	v, ok := c.Get(middleware.CtxAccountIDKey).(int64)
	if !ok || v <= 0 {
		return 0, false
	}
	return v, true
}
