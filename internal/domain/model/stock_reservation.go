package model

import "time"

// 決済待ちのチェックアウト1回分の在庫ホールド。
// owner_tokenはチェックアウト時に発行し、決済セッションのmetadataにも入れる。
// expires_atを過ぎた行はavailable_stockの計算から外れる（掃除は別タスク）。
type StockReservation struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID  int64     `gorm:"not null;index" json:"product_id"`
	Quantity   int64     `gorm:"not null" json:"quantity"`
	OwnerToken string    `gorm:"type:varchar(255);not null;index" json:"owner_token"`
	ExpiresAt  time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt  time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}
