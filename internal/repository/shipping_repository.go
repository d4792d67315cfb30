package repository

import (
	"context"

	"shop/internal/domain/model"
)

type ShippingRepository interface {
	//territoryを含むゾーンを返す
	ListZonesByTerritory(ctx context.Context, territory string) ([]model.ShippingZone, error)
	ListRatesByZone(ctx context.Context, zoneID int64) ([]model.ShippingRate, error)
	FindRateByID(ctx context.Context, rateID int64) (model.ShippingRate, error)
}
