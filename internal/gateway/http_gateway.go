package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// HTTPGateway はゲートウェイのREST APIを叩く実装。
// 落ちているゲートウェイを叩き続けないようサーキットブレーカを挟む。
// ブレーカが開いている間の呼び出しは即エラーで返る。
type HTTPGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]

	//クーポンは決定的なIDで一度だけ作り、以後はキャッシュを返す
	mu      sync.Mutex
	coupons map[string]string
}

func NewHTTPGateway(baseURL string, apiKey string) *HTTPGateway {
	st := gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: 3,
		Timeout:     30 * time.Second,
	}

	return &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
		breaker: gobreaker.NewCircuitBreaker[[]byte](st),
		coupons: map[string]string{},
	}
}

func (g *HTTPGateway) CreateSession(ctx context.Context, in CreateSessionInput) (Session, error) {
	body, err := g.post(ctx, "/v1/checkout/sessions", in)
	if err != nil {
		return Session{}, err
	}

	var s Session
	if err := json.Unmarshal(body, &s); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	if s.ID == "" {
		return Session{}, fmt.Errorf("gateway returned empty session id")
	}
	return s, nil
}

// EnsureCoupon はコードから決めたIDでクーポンを用意する。
// 同じコードなら必ず同じIDになるので、二重作成はゲートウェイ側で弾かれる
func (g *HTTPGateway) EnsureCoupon(ctx context.Context, in CouponInput) (string, error) {
	id := CouponID(in.Code)

	g.mu.Lock()
	if cached, ok := g.coupons[id]; ok {
		g.mu.Unlock()
		return cached, nil
	}
	g.mu.Unlock()

	payload := struct {
		ID string `json:"id"`
		CouponInput
	}{ID: id, CouponInput: in}

	if _, err := g.post(ctx, "/v1/coupons", payload); err != nil {
		return "", err
	}

	g.mu.Lock()
	g.coupons[id] = id
	g.mu.Unlock()

	return id, nil
}

// コードから決まるクーポンID
func CouponID(code string) string {
	return "DISC-" + strings.ToUpper(strings.TrimSpace(code))
}

func (g *HTTPGateway) post(ctx context.Context, path string, in any) ([]byte, error) {
	return g.breaker.Execute(func() ([]byte, error) {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+g.apiKey)

		res, err := g.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()

		body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
		if err != nil {
			return nil, err
		}

		if res.StatusCode < 200 || res.StatusCode >= 300 {
			return nil, fmt.Errorf("gateway status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
		}

		return body, nil
	})
}
