package repository

import (
	"context"

	"shop/internal/domain/model"
)

type CartRepository interface {
	GetOrCreateActiveByAccountID(ctx context.Context, accountID int64) (model.Cart, error)
	GetOrCreateActiveBySessionToken(ctx context.Context, token string) (model.Cart, error)
	FindActiveByAccountID(ctx context.Context, accountID int64) (model.Cart, error)
	FindActiveBySessionToken(ctx context.Context, token string) (model.Cart, error)
	FindByID(ctx context.Context, cartID int64) (model.Cart, error)
	//カート本体と明細をまとめて削除
	Delete(ctx context.Context, cartID int64) error
}
