package repository

import (
	"context"
	"errors"

	"shop/internal/domain/model"
	repo "shop/internal/repository"

	"gorm.io/gorm"
)

type ShippingGormRepository struct {
	db *gorm.DB
}

// DI
func NewShippingGormRepository(db *gorm.DB) *ShippingGormRepository {
	return &ShippingGormRepository{db: db}
}

// territoryを含むゾーンを返す
func (r *ShippingGormRepository) ListZonesByTerritory(ctx context.Context, territory string) ([]model.ShippingZone, error) {
	var zones []model.ShippingZone

	err := r.db.WithContext(ctx).
		Joins("JOIN shipping_zone_territories t ON t.zone_id = shipping_zones.id").
		Where("t.territory = ?", territory).
		Order("shipping_zones.id asc").
		Find(&zones).Error

	if err != nil {
		return []model.ShippingZone{}, err
	}
	return zones, nil
}

func (r *ShippingGormRepository) ListRatesByZone(ctx context.Context, zoneID int64) ([]model.ShippingRate, error) {
	var rates []model.ShippingRate

	err := r.db.WithContext(ctx).
		Where("zone_id = ?", zoneID).
		Order("id asc").
		Find(&rates).Error

	if err != nil {
		return []model.ShippingRate{}, err
	}
	return rates, nil
}

func (r *ShippingGormRepository) FindRateByID(ctx context.Context, rateID int64) (model.ShippingRate, error) {
	var rate model.ShippingRate

	err := r.db.WithContext(ctx).
		Where("id = ?", rateID).
		First(&rate).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.ShippingRate{}, repo.ErrNotFound
	}
	if err != nil {
		return model.ShippingRate{}, err
	}
	return rate, nil
}
