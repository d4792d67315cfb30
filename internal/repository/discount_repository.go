package repository

import (
	"context"

	"shop/internal/domain/model"
)

type DiscountRepository interface {
	//codeは大文字化して検索する
	FindByCode(ctx context.Context, code string) (model.DiscountCode, error)
	//確定した注文1件につき1回だけ呼ぶ
	IncrementUses(ctx context.Context, discountID int64) error
}
