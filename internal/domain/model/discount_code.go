package model

import "time"

type DiscountKind string

const (
	DiscountKindPercentage  DiscountKind = "PERCENTAGE"
	DiscountKindFixedAmount DiscountKind = "FIXED_AMOUNT"
)

// 割引コード。codeは大文字で保存して大文字小文字を無視した一意にする。
// uses_countは注文が確定したときだけ増える（チェックアウト試行では増えない）。
type DiscountCode struct {
	ID            int64        `gorm:"primaryKey;autoIncrement" json:"id"`
	Code          string       `gorm:"type:varchar(64);not null;uniqueIndex" json:"code"`
	Kind          DiscountKind `gorm:"type:varchar(20);not null" json:"kind"`
	Value         int64        `gorm:"not null" json:"value"`
	MinOrderValue *int64       `json:"min_order_value,omitempty"`
	MaxUses       *int64       `json:"max_uses,omitempty"`
	UsesCount     int64        `gorm:"not null;default:0" json:"uses_count"`
	StartsAt      *time.Time   `json:"starts_at,omitempty"`
	ExpiresAt     *time.Time   `json:"expires_at,omitempty"`
	Enabled       bool         `gorm:"not null;default:true" json:"enabled"`
	CreatedAt     time.Time    `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
