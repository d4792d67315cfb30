package repository

import (
	"context"
	"time"

	"shop/internal/domain/model"

	"gorm.io/gorm"
)

type ReservationGormRepository struct {
	db *gorm.DB
}

// DI
func NewReservationGormRepository(db *gorm.DB) *ReservationGormRepository {
	return &ReservationGormRepository{db: db}
}

// 有効な予約数量の合計。期限切れ行はここで自然に消える
func (r *ReservationGormRepository) SumActiveByProduct(ctx context.Context, productID int64, now time.Time) (int64, error) {
	var sum int64

	err := r.db.WithContext(ctx).
		Model(&model.StockReservation{}).
		Where("product_id = ? AND expires_at > ?", productID, now).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&sum).Error

	if err != nil {
		return 0, err
	}
	return sum, nil
}

// 予約セットを一括挿入。検査と同じトランザクションの中で呼ぶこと
func (r *ReservationGormRepository) CreateBulk(ctx context.Context, reservations []model.StockReservation) error {
	if len(reservations) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&reservations).Error
}

// owner_tokenの予約を全部消す
func (r *ReservationGormRepository) DeleteByOwnerToken(ctx context.Context, ownerToken string) error {
	return r.db.WithContext(ctx).
		Where("owner_token = ?", ownerToken).
		Delete(&model.StockReservation{}).Error
}

// 期限切れ行の掃除。available_stockは既にexpires_atで絞っているので
// これは容量回収だけ（観測できる動きは変わらない）
func (r *ReservationGormRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&model.StockReservation{})

	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
