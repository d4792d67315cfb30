package model

import "time"

// 注文ライフサイクルの出来事。
type OrderEventKind string

const (
	//注文を作成した。
	OrderEventCreated OrderEventKind = "created"

	//決済完了を記録した。
	OrderEventPaid OrderEventKind = "paid"

	//物理在庫を調整した。
	OrderEventStockAdjusted OrderEventKind = "stock_adjusted"

	//発送した。
	OrderEventShipped OrderEventKind = "shipped"

	//配達完了。
	OrderEventDelivered OrderEventKind = "delivered"

	//キャンセルした。
	OrderEventCancelled OrderEventKind = "cancelled"

	//返金した。
	OrderEventRefunded OrderEventKind = "refunded"

	//メモを追加した。
	OrderEventNoteAdded OrderEventKind = "note_added"

	//確認メールなどの通知を送った。
	OrderEventEmailSent OrderEventKind = "email_sent"
)

// 注文ごとの追記専用の台帳。
// 「いつ」「何が」起きたかを1行ずつ残す。更新も削除もしない。
// 副作用（メール送信など）が既に走ったかの検出にも使う。
type OrderEvent struct {
	//IDは台帳の主キー
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	//対象の注文ID。
	OrderID int64 `gorm:"not null;index" json:"order_id"`

	//出来事の種類（created / paid / stock_adjusted など）。
	Kind OrderEventKind `gorm:"type:varchar(50);not null;index" json:"kind"`

	//JSON文字列で保存する。
	DataJSON string `gorm:"type:text" json:"data_json"`

	//作成時刻
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}
