package repository

import (
	"context"

	"shop/internal/domain/model"
	repo "shop/internal/repository"

	"gorm.io/gorm"
)

type OrderEventGormRepository struct {
	db *gorm.DB
}

// DI
func NewOrderEventGormRepository(db *gorm.DB) *OrderEventGormRepository {
	return &OrderEventGormRepository{db: db}
}

// 追記のみ。既存行は触らない
func (r *OrderEventGormRepository) Create(ctx context.Context, ev model.OrderEvent) error {
	return r.db.WithContext(ctx).Create(&ev).Error
}

func (r *OrderEventGormRepository) List(ctx context.Context, f repo.OrderEventFilter) ([]model.OrderEvent, error) {
	q := r.db.WithContext(ctx).Model(&model.OrderEvent{})

	if f.OrderID > 0 {
		q = q.Where("order_id = ?", f.OrderID)
	}
	if f.Kind != "" {
		q = q.Where("kind = ?", f.Kind)
	}

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var events []model.OrderEvent
	if err := q.Order("id asc").Limit(limit).Find(&events).Error; err != nil {
		return []model.OrderEvent{}, err
	}

	return events, nil
}
