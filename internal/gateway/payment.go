package gateway

import "context"

// 決済ゲートウェイとの境界。中身（台帳）はここでは扱わない。
// セッション作成に渡すのは見積り済みの行・配送候補・割引参照と
// 後で突き合わせるためのmetadataだけ。

type SessionLine struct {
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int64  `json:"quantity"`
}

type SessionShippingOption struct {
	//zone/rateを引き当てるタグ（rate-<id>）
	Ref             string `json:"ref"`
	Label           string `json:"label"`
	Price           int64  `json:"price"`
	DeliveryDaysMin int    `json:"delivery_days_min"`
	DeliveryDaysMax int    `json:"delivery_days_max"`
}

type CreateSessionInput struct {
	Lines           []SessionLine           `json:"lines"`
	ShippingOptions []SessionShippingOption `json:"shipping_options"`
	CouponID        string                  `json:"coupon_id,omitempty"`
	//cart_idとowner_tokenは必ず入れる（Webhookで使う）
	Metadata map[string]string `json:"metadata"`
}

type Session struct {
	ID          string `json:"id"`
	RedirectURL string `json:"redirect_url"`
}

type CouponInput struct {
	Code  string `json:"code"`
	Kind  string `json:"kind"`
	Value int64  `json:"value"`
}

type PaymentGateway interface {
	CreateSession(ctx context.Context, in CreateSessionInput) (Session, error)
	//コードから決めたIDでゲートウェイ側クーポンを作る（作成済みならそのまま返す）
	EnsureCoupon(ctx context.Context, in CouponInput) (string, error)
}
