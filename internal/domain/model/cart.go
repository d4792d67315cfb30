package model

import "time"

type CartStatus string

// 確定時に行ごと消すので、状態はACTIVEしか要らない
const CartStatusActive CartStatus = "ACTIVE"

// カートの持ち主はログイン済みアカウントか匿名セッションのどちらか一方。
// 両方同時には持たない（ログイン時にマージして匿名側を消す）。
type Cart struct {
	ID           int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID    *int64     `gorm:"index" json:"account_id,omitempty"`
	SessionToken *string    `gorm:"type:varchar(255);index" json:"-"`
	Status       CartStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	CreatedAt    time.Time  `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
