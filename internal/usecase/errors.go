package usecase

import (
	"errors"
	"fmt"
)

type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Status:  status,
		Message: message,
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

// チェックアウト時にそのまま利用者へ返すエラー群。
// どの行が・いくつまでなら買えるかを構造で持たせる。

var ErrEmptyCart = errors.New("cart is empty")

// 商品が非公開/削除済み
type LineUnavailableError struct {
	ProductID int64
	Name      string
}

func (e *LineUnavailableError) Error() string {
	return fmt.Sprintf("line unavailable: product %d (%s)", e.ProductID, e.Name)
}

// 配送先にゾーンが無い
var ErrUnserviceable = errors.New("no shipping option for destination")

// 在庫不足。Availableは「物理在庫 - 有効な予約」
type InsufficientStockError struct {
	ProductID int64
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: product %d requested %d available %d", e.ProductID, e.Requested, e.Available)
}

// 割引コードの却下理由。チェックアウトは止めない
type DiscountRejectReason string

const (
	DiscountRejectUnknown      DiscountRejectReason = "unknown"
	DiscountRejectNotStarted   DiscountRejectReason = "not-started"
	DiscountRejectExpired      DiscountRejectReason = "expired"
	DiscountRejectBelowMinimum DiscountRejectReason = "below-minimum"
	DiscountRejectExhausted    DiscountRejectReason = "exhausted"
)

// ゲートウェイとの通信失敗。リトライしても安全
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Webhookの署名検証に失敗
var ErrUnverifiedEvent = errors.New("unverified event")
