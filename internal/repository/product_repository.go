package repository

import (
	"context"

	"shop/internal/domain/model"
)

type ProductRepository interface {
	FindByID(ctx context.Context, productID int64) (model.Product, error)
	//行ロック付きで取得（予約の検査→挿入を直列化する）
	FindByIDForUpdate(ctx context.Context, productID int64) (model.Product, error)
}
