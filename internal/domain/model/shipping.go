package model

import "time"

// 配送ゾーン。配送先の地域コードをまとめ、重量帯の料金を持つ。
// free_shipping_overが入っていれば、小計がその額以上のとき
// 追跡なしレートの料金が0になる（追跡ありは対象外）。
type ShippingZone struct {
	ID               int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name             string    `gorm:"type:varchar(255);not null" json:"name"`
	FreeShippingOver *int64    `json:"free_shipping_over,omitempty"`
	CreatedAt        time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// ゾーンに属する地域コード（ISOの国コードなど）。
type ShippingZoneTerritory struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	ZoneID    int64  `gorm:"not null;index" json:"zone_id"`
	Territory string `gorm:"type:varchar(8);not null;index" json:"territory"`
}

// 重量帯ごとの配送料金。帯は [min_weight, max_weight) で判定する。
type ShippingRate struct {
	ID               int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ZoneID           int64     `gorm:"not null;index" json:"zone_id"`
	Name             string    `gorm:"type:varchar(255);not null" json:"name"`
	Price            int64     `gorm:"not null" json:"price"`
	MinWeight        int64     `gorm:"not null" json:"min_weight"`
	MaxWeight        int64     `gorm:"not null" json:"max_weight"`
	Tracked          bool      `gorm:"not null;default:false" json:"tracked"`
	DeliveryDaysMin  int       `gorm:"not null;default:0" json:"delivery_days_min"`
	DeliveryDaysMax  int       `gorm:"not null;default:0" json:"delivery_days_max"`
	CreatedAt        time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
