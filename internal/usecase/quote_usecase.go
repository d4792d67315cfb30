package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"shop/internal/domain/model"
	repo "shop/internal/repository"
)

// QuoteUsecase は見積りの計算です。
// カートの中身・配送先・割引コードが同じなら必ず同じ結果を返す
// （隠れた状態を持たない）。
type QuoteUsecase struct {
	shipping  repo.ShippingRepository
	discounts repo.DiscountRepository
	clock     Clock
}

func NewQuoteUsecase(
	shipping repo.ShippingRepository,
	discounts repo.DiscountRepository,
	clock Clock,
) *QuoteUsecase {
	return &QuoteUsecase{
		shipping:  shipping,
		discounts: discounts,
		clock:     clock,
	}
}

// 見積りの入力1行。商品は呼び出し側が解決して渡す
type QuoteLine struct {
	Product  model.Product
	Quantity int64
}

// 現在のカタログ価格で値付けした行
type QuotedLineItem struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int64  `json:"quantity"`
	Weight    int64  `json:"weight"`
}

type ShippingOption struct {
	RateID          int64  `json:"rate_id"`
	ZoneID          int64  `json:"zone_id"`
	Label           string `json:"label"`
	Price           int64  `json:"price"`
	Tracked         bool   `json:"tracked"`
	DeliveryDaysMin int    `json:"delivery_days_min"`
	DeliveryDaysMax int    `json:"delivery_days_max"`
}

// 割引の判定結果。却下でもチェックアウトは続行する
type DiscountDecision struct {
	Applied      bool                 `json:"applied"`
	Code         string               `json:"code,omitempty"`
	DiscountID   int64                `json:"-"`
	Amount       int64                `json:"amount"`
	RejectReason DiscountRejectReason `json:"reject_reason,omitempty"`
}

type Quote struct {
	Lines           []QuotedLineItem `json:"lines"`
	Subtotal        int64            `json:"subtotal"`
	TotalWeight     int64            `json:"total_weight"`
	ShippingOptions []ShippingOption `json:"shipping_options"`
	Discount        DiscountDecision `json:"discount"`
}

// Quote は見積りを作る。配送先にゾーンが無ければ ErrUnserviceable。
func (u *QuoteUsecase) Quote(ctx context.Context, lines []QuoteLine, territory string, discountCode string) (Quote, error) {
	if len(lines) == 0 {
		return Quote{}, ErrEmptyCart
	}
	if territory == "" {
		return Quote{}, NewHTTPError(http.StatusBadRequest, "invalid destination")
	}

	q := Quote{Lines: make([]QuotedLineItem, 0, len(lines))}

	for _, l := range lines {
		q.Lines = append(q.Lines, QuotedLineItem{
			ProductID: l.Product.ID,
			Name:      l.Product.Name,
			UnitPrice: l.Product.Price,
			Quantity:  l.Quantity,
			Weight:    l.Product.Weight,
		})
		q.Subtotal += l.Product.Price * l.Quantity
		q.TotalWeight += l.Product.Weight * l.Quantity
	}

	opts, err := u.shippingOptions(ctx, territory, q.TotalWeight, q.Subtotal)
	if err != nil {
		return Quote{}, err
	}
	if len(opts) == 0 {
		//配送できない先は警告ではなく失敗
		return Quote{}, ErrUnserviceable
	}
	q.ShippingOptions = opts

	q.Discount, err = u.validateDiscount(ctx, discountCode, q.Subtotal)
	if err != nil {
		return Quote{}, err
	}

	return q, nil
}

// 配送先のゾーンごとに、総重量が帯に入るレートを集める。
// 送料無料しきい値を満たすゾーンでは追跡なしレートだけ0円にする
func (u *QuoteUsecase) shippingOptions(ctx context.Context, territory string, totalWeight int64, subtotal int64) ([]ShippingOption, error) {
	zones, err := u.shipping.ListZonesByTerritory(ctx, territory)
	if err != nil {
		return nil, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	var opts []ShippingOption

	for _, z := range zones {
		rates, err := u.shipping.ListRatesByZone(ctx, z.ID)
		if err != nil {
			return nil, NewHTTPError(http.StatusInternalServerError, "db error")
		}

		freeEligible := z.FreeShippingOver != nil && subtotal >= *z.FreeShippingOver

		for _, rate := range rates {
			//帯は [min, max)
			if totalWeight < rate.MinWeight || totalWeight >= rate.MaxWeight {
				continue
			}

			opt := ShippingOption{
				RateID:          rate.ID,
				ZoneID:          z.ID,
				Label:           rate.Name,
				Price:           rate.Price,
				Tracked:         rate.Tracked,
				DeliveryDaysMin: rate.DeliveryDaysMin,
				DeliveryDaysMax: rate.DeliveryDaysMax,
			}

			//追跡ありは無料にしない
			if freeEligible && !rate.Tracked {
				opt.Price = 0
				opt.Label = fmt.Sprintf("%s (Free over %s)", rate.Name, formatGBP(*z.FreeShippingOver))
			}

			opts = append(opts, opt)
		}
	}

	return opts, nil
}

// 割引コードの検証。順番に調べて最初の失敗で打ち切る。
// 失敗はDecisionで理由を返すだけで、エラーにはしない
func (u *QuoteUsecase) validateDiscount(ctx context.Context, code string, subtotal int64) (DiscountDecision, error) {
	if code == "" {
		return DiscountDecision{}, nil
	}

	d, err := u.discounts.FindByCode(ctx, code)
	if errors.Is(err, repo.ErrNotFound) {
		return DiscountDecision{Code: code, RejectReason: DiscountRejectUnknown}, nil
	}
	if err != nil {
		return DiscountDecision{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return decideDiscount(d, subtotal, u.clock.Now()), nil
}

// 割引の判定本体。見積り時と確定時の再検証で同じ物を使う
func decideDiscount(d model.DiscountCode, subtotal int64, now time.Time) DiscountDecision {
	if !d.Enabled {
		return DiscountDecision{Code: d.Code, RejectReason: DiscountRejectUnknown}
	}
	if d.StartsAt != nil && now.Before(*d.StartsAt) {
		return DiscountDecision{Code: d.Code, RejectReason: DiscountRejectNotStarted}
	}
	if d.ExpiresAt != nil && now.After(*d.ExpiresAt) {
		return DiscountDecision{Code: d.Code, RejectReason: DiscountRejectExpired}
	}
	if d.MinOrderValue != nil && subtotal < *d.MinOrderValue {
		return DiscountDecision{Code: d.Code, RejectReason: DiscountRejectBelowMinimum}
	}
	if d.MaxUses != nil && d.UsesCount >= *d.MaxUses {
		return DiscountDecision{Code: d.Code, RejectReason: DiscountRejectExhausted}
	}

	return DiscountDecision{
		Applied:    true,
		Code:       d.Code,
		DiscountID: d.ID,
		Amount:     discountAmount(d, subtotal),
	}
}

func discountAmount(d model.DiscountCode, subtotal int64) int64 {
	switch d.Kind {
	case model.DiscountKindPercentage:
		return subtotal * d.Value / 100
	case model.DiscountKindFixedAmount:
		if d.Value > subtotal {
			return subtotal
		}
		return d.Value
	default:
		return 0
	}
}

// ペンス→表示用。端数が無ければ小数を出さない
func formatGBP(pence int64) string {
	if pence%100 == 0 {
		return fmt.Sprintf("£%d", pence/100)
	}
	return fmt.Sprintf("£%d.%02d", pence/100, pence%100)
}
