package repository

import (
	"context"
	"time"

	"shop/internal/domain/model"
)

type ReservationRepository interface {
	//expires_at > now の行だけを数える
	SumActiveByProduct(ctx context.Context, productID int64, now time.Time) (int64, error)
	CreateBulk(ctx context.Context, reservations []model.StockReservation) error
	DeleteByOwnerToken(ctx context.Context, ownerToken string) error
	//期限切れ行の掃除。消した行数を返す
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
