package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// ゲートウェイから届くWebhookイベント。
// 少なくとも1回は届く（タイムアウトで再送される）ので、
// 受ける側は何回来ても同じ結果にすること。

const (
	EventPaymentCompleted = "payment.completed"
	EventSessionExpired   = "payment.session_expired"
)

// metadataのキー（セッション作成時に入れた物がそのまま返る）
const (
	MetaCartID     = "cart_id"
	MetaOwnerToken = "owner_token"
)

type ShippingAddress struct {
	Name      string `json:"name"`
	Line1     string `json:"line1"`
	Line2     string `json:"line2"`
	City      string `json:"city"`
	Postcode  string `json:"postcode"`
	Territory string `json:"territory"`
}

type Event struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`

	//実際に請求した額。こちらでは再計算しない
	AmountSubtotal int64 `json:"amount_subtotal"`
	AmountShipping int64 `json:"amount_shipping"`
	AmountDiscount int64 `json:"amount_discount"`
	AmountTotal    int64 `json:"amount_total"`

	CustomerEmail   string          `json:"customer_email"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	//選ばれた配送レートのタグ（rate-<id>）
	ShippingRateRef string `json:"shipping_rate_ref"`
	DiscountCode    string `json:"discount_code"`

	Metadata map[string]string `json:"metadata"`
}

func ParseEvent(body []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.Type == "" || ev.SessionID == "" {
		return Event{}, fmt.Errorf("event missing type or session_id")
	}
	return ev, nil
}

// Sign は共有シークレットでボディに署名する（hex HMAC-SHA256）。
func Sign(secret []byte, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature は定数時間で比較する。署名が無い/壊れている物はfalse
func VerifySignature(secret []byte, body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
