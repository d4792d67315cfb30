package repository

import "context"

type InventoryRepository interface {
	// 無条件に減らす。確定時は支払い済みなのでマイナスも許す
	DecreaseStock(ctx context.Context, productID int64, qty int64) error
	// 在庫戻し（キャンセル・返金）
	IncreaseStock(ctx context.Context, productID int64, qty int64) error
}
