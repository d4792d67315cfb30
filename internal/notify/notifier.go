package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"shop/internal/domain/model"
)

// 通知システムとの境界。注文確定側から見れば投げっぱなしで、
// 失敗しても注文は既に確定している（結果は台帳に残す）。
type Notifier interface {
	SendOrderConfirmation(ctx context.Context, order model.Order, items []model.OrderItem) error
	SendShippingUpdate(ctx context.Context, order model.Order) error
}

type HTTPNotifier struct {
	baseURL string
	client  *http.Client
}

func NewHTTPNotifier(baseURL string) *HTTPNotifier {
	return &HTTPNotifier{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *HTTPNotifier) SendOrderConfirmation(ctx context.Context, order model.Order, items []model.OrderItem) error {
	return n.post(ctx, "/notifications/order-confirmation", struct {
		Order model.Order       `json:"order"`
		Items []model.OrderItem `json:"items"`
	}{Order: order, Items: items})
}

func (n *HTTPNotifier) SendShippingUpdate(ctx context.Context, order model.Order) error {
	return n.post(ctx, "/notifications/shipping-update", struct {
		Order model.Order `json:"order"`
	}{Order: order})
}

func (n *HTTPNotifier) post(ctx context.Context, path string, in any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("notify status %d", res.StatusCode)
	}
	return nil
}

// 通知先が未設定の環境用
type NopNotifier struct{}

func (NopNotifier) SendOrderConfirmation(ctx context.Context, order model.Order, items []model.OrderItem) error {
	return nil
}

func (NopNotifier) SendShippingUpdate(ctx context.Context, order model.Order) error {
	return nil
}
