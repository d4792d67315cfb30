package model

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusOnHold    OrderStatus = "ON_HOLD"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRefunded  OrderStatus = "REFUNDED"
)

type PaymentStatus string

const (
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

// 確定済みの注文。作成後に変わるのは配送系のフィールドだけ。
// session_idはゲートウェイ発行の決済セッションID。ここの一意制約が
// 重複Webhook配送に対する最後の砦（冪等キー）。
// 金額はゲートウェイが実際に請求した額をそのまま持つ（再計算しない）。
type Order struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Number    string `gorm:"type:varchar(32);not null;index" json:"number"`
	SessionID string `gorm:"type:varchar(255);not null;uniqueIndex" json:"-"`
	AccountID *int64 `gorm:"index" json:"account_id,omitempty"`

	Status        OrderStatus   `gorm:"type:varchar(20);not null;index" json:"status"`
	PaymentStatus PaymentStatus `gorm:"type:varchar(20);not null" json:"payment_status"`

	Subtotal       int64 `gorm:"not null" json:"subtotal"`
	ShippingCost   int64 `gorm:"not null" json:"shipping_cost"`
	DiscountAmount int64 `gorm:"not null" json:"discount_amount"`
	Total          int64 `gorm:"not null" json:"total"`

	CustomerEmail string `gorm:"type:varchar(255)" json:"customer_email"`

	//配送先（Webhookで届いた住所のスナップショット）
	ShipToName      string `gorm:"type:varchar(255)" json:"ship_to_name"`
	ShipToLine1     string `gorm:"type:varchar(255)" json:"ship_to_line1"`
	ShipToLine2     string `gorm:"type:varchar(255)" json:"ship_to_line2"`
	ShipToCity      string `gorm:"type:varchar(255)" json:"ship_to_city"`
	ShipToPostcode  string `gorm:"type:varchar(32)" json:"ship_to_postcode"`
	ShipToTerritory string `gorm:"type:varchar(8)" json:"ship_to_territory"`

	ShippingRateName string `gorm:"type:varchar(255)" json:"shipping_rate_name"`
	DiscountCode     string `gorm:"type:varchar(64)" json:"discount_code,omitempty"`

	//確定時に見つけた整合性の問題（在庫不足など）をスタッフ向けに残す
	InternalNote   string `gorm:"type:text" json:"-"`
	TrackingNumber string `gorm:"type:varchar(255)" json:"tracking_number,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
