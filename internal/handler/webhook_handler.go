package handler

import (
	"io"
	"log/slog"
	"net/http"

	"shop/internal/gateway"
	"shop/internal/usecase"

	"github.com/labstack/echo/v4"
)

const signatureHeader = "X-Gateway-Signature"

// ボディは大きくても数KBのはず
const maxWebhookBody = 1 << 20

// ゲートウェイからのWebhook受け口
type WebhookHandler struct {
	uc     *usecase.SettlementUsecase
	secret []byte
	log    *slog.Logger
}

// DI
func NewWebhookHandler(uc *usecase.SettlementUsecase, secret string, log *slog.Logger) *WebhookHandler {
	return &WebhookHandler{uc: uc, secret: []byte(secret), log: log}
}

func (h *WebhookHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/webhooks/payment", h.receive)
}

func (h *WebhookHandler) receive(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	// 署名は生のボディに対して検証する（パース前）
	if !gateway.VerifySignature(h.secret, body, c.Request().Header.Get(signatureHeader)) {
		h.log.Warn("webhook signature mismatch")
		return writeError(c, usecase.ErrUnverifiedEvent)
	}

	ev, err := gateway.ParseEvent(body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid event"})
	}

	ctx := c.Request().Context()

	switch ev.Type {
	case gateway.EventPaymentCompleted:
		err = h.uc.HandleCompleted(ctx, ev)
	case gateway.EventSessionExpired:
		err = h.uc.HandleExpired(ctx, ev)
	default:
		// 知らないイベントは受領だけ返して再送を止める
		h.log.Info("ignoring webhook event", "type", ev.Type)
		return c.JSON(http.StatusOK, map[string]bool{"received": true})
	}
	if err != nil {
		// 失敗分は2xx以外を返してゲートウェイに再送させる
		h.log.Error("webhook processing failed", "type", ev.Type, "session_id", ev.SessionID, "error", err)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}

	return c.JSON(http.StatusOK, map[string]bool{"received": true})
}
