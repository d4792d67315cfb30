package repository

import (
	"context"

	"shop/internal/domain/model"
)

type OrderEventFilter struct {
	OrderID int64
	Kind    string
	Limit   int
}

type OrderEventRepository interface {
	Create(ctx context.Context, ev model.OrderEvent) error
	List(ctx context.Context, f OrderEventFilter) ([]model.OrderEvent, error)
}
