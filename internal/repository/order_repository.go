package repository

import (
	"context"
	"time"

	"shop/internal/domain/model"
)

type OrderRepository interface {
	FindByID(ctx context.Context, orderID int64) (model.Order, error)
	ListByAccountID(ctx context.Context, accountID int64, page int, limit int) ([]model.Order, int64, error)
	Create(ctx context.Context, order model.Order) (int64, error)
	UpdateStatus(ctx context.Context, orderID int64, status model.OrderStatus) error
	UpdatePaymentStatus(ctx context.Context, orderID int64, status model.PaymentStatus) error
	UpdateTracking(ctx context.Context, orderID int64, trackingNumber string) error
	AppendInternalNote(ctx context.Context, orderID int64, note string) error

	//検索（同じ決済セッションなら同じ注文を返す）
	FindBySessionID(ctx context.Context, sessionID string) (model.Order, bool, error)
	//注文番号の連番用。ローカル深夜0時以降の件数
	CountCreatedSince(ctx context.Context, since time.Time) (int64, error)
}
