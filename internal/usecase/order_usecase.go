package usecase

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"shop/internal/domain/model"
	"shop/internal/notify"
	repo "shop/internal/repository"
)

// OrderUsecase は確定済み注文の読み取りと、作成後に許される
// 限られた更新（配送ステータス・追跡番号・メモ）だけを扱う。
// 注文そのものを書けるのはSettlementUsecaseだけ。
type OrderUsecase struct {
	tx          repo.TransactionManager
	orders      repo.OrderRepository
	orderItems  repo.OrderItemRepository
	orderEvents repo.OrderEventRepository
	notifier    notify.Notifier
	clock       Clock
	log         *slog.Logger
}

func NewOrderUsecase(
	tx repo.TransactionManager,
	orders repo.OrderRepository,
	orderItems repo.OrderItemRepository,
	orderEvents repo.OrderEventRepository,
	notifier notify.Notifier,
	clock Clock,
	log *slog.Logger,
) *OrderUsecase {
	return &OrderUsecase{
		tx:          tx,
		orders:      orders,
		orderItems:  orderItems,
		orderEvents: orderEvents,
		notifier:    notifier,
		clock:       clock,
		log:         log,
	}
}

type OrderItemOutput struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int64  `json:"quantity"`
}

type OrderOutput struct {
	ID             int64              `json:"id"`
	Number         string             `json:"number"`
	Status         string             `json:"status"`
	PaymentStatus  string             `json:"payment_status"`
	Subtotal       int64              `json:"subtotal"`
	ShippingCost   int64              `json:"shipping_cost"`
	DiscountAmount int64              `json:"discount_amount"`
	Total          int64              `json:"total"`
	TrackingNumber string             `json:"tracking_number,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	Items          []OrderItemOutput  `json:"items"`
	Timeline       []OrderEventOutput `json:"timeline,omitempty"`
}

// 詳細画面に出すステータス履歴の1行
type OrderEventOutput struct {
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

func (u *OrderUsecase) ListMyOrders(ctx context.Context, accountID int64) ([]OrderOutput, error) {
	if accountID <= 0 {
		return []OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	//ページングはまず固定で取る
	orders, _, err := u.orders.ListByAccountID(ctx, accountID, 1, 50)
	if err != nil {
		return []OrderOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	outs := make([]OrderOutput, 0, len(orders))
	for _, o := range orders {
		items, err := u.orderItems.ListByOrderID(ctx, o.ID)
		if err != nil {
			return []OrderOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
		}
		outs = append(outs, toOrderOutput(o, items))
	}
	return outs, nil
}

func (u *OrderUsecase) GetMyOrderDetail(ctx context.Context, accountID int64, orderID int64) (OrderOutput, error) {
	if accountID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	o, err := u.orders.FindByID(ctx, orderID)
	if err == repo.ErrNotFound {
		return OrderOutput{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return OrderOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	//他人の注文は「存在しない扱い」にする
	if o.AccountID == nil || *o.AccountID != accountID {
		return OrderOutput{}, NewHTTPError(http.StatusNotFound, "not found")
	}

	items, err := u.orderItems.ListByOrderID(ctx, orderID)
	if err != nil {
		return OrderOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	events, err := u.orderEvents.List(ctx, repo.OrderEventFilter{OrderID: orderID, Limit: 50})
	if err != nil {
		return OrderOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	out := toOrderOutput(o, items)
	out.Timeline = publicTimeline(events)
	return out, nil
}

// 客に見せるのはステータスの動きだけ。社内メモや通知の記録は出さない
func publicTimeline(events []model.OrderEvent) []OrderEventOutput {
	out := make([]OrderEventOutput, 0, len(events))
	for _, ev := range events {
		switch ev.Kind {
		case model.OrderEventCreated, model.OrderEventPaid,
			model.OrderEventShipped, model.OrderEventDelivered,
			model.OrderEventCancelled, model.OrderEventRefunded:
			out = append(out, OrderEventOutput{Kind: string(ev.Kind), CreatedAt: ev.CreatedAt})
		}
	}
	return out
}

type UpdateFulfillmentInput struct {
	Status         string
	TrackingNumber string
	Note           string
}

// 作成後に動かせるのは配送系だけ。動きは台帳に残す
func (u *OrderUsecase) UpdateFulfillment(ctx context.Context, orderID int64, in UpdateFulfillmentInput) error {
	if orderID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	o, err := u.orders.FindByID(ctx, orderID)
	if err == repo.ErrNotFound {
		return NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}

	now := u.clock.Now()

	if in.Status != "" {
		status, kind, ok := fulfillmentStatus(in.Status)
		if !ok {
			return NewHTTPError(http.StatusBadRequest, "invalid status")
		}

		//閉じた注文はもう動かさない（在庫を二重に戻さないため）
		if o.Status == model.OrderStatusCancelled || o.Status == model.OrderStatusRefunded {
			return NewHTTPError(http.StatusBadRequest, "order is closed")
		}

		if status == model.OrderStatusCancelled || status == model.OrderStatusRefunded {
			if err := u.closeOrder(ctx, o, status, kind, now); err != nil {
				return err
			}
		} else {
			if err := u.orders.UpdateStatus(ctx, o.ID, status); err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			if err := u.orderEvents.Create(ctx, model.OrderEvent{
				OrderID:   o.ID,
				Kind:      kind,
				DataJSON:  jsonData(map[string]any{"from": string(o.Status), "to": string(status)}),
				CreatedAt: now,
			}); err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}

			//配送系の通知は投げっぱなし。失敗しても更新は成立している
			o.Status = status
			if in.TrackingNumber != "" {
				o.TrackingNumber = in.TrackingNumber
			}
			go u.sendShippingUpdate(o)
		}
	}

	if in.TrackingNumber != "" {
		if err := u.orders.UpdateTracking(ctx, o.ID, in.TrackingNumber); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
	}

	if note := strings.TrimSpace(in.Note); note != "" {
		if err := u.orders.AppendInternalNote(ctx, o.ID, note); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if err := u.orderEvents.Create(ctx, model.OrderEvent{
			OrderID:   o.ID,
			Kind:      model.OrderEventNoteAdded,
			DataJSON:  jsonData(map[string]any{"note": note}),
			CreatedAt: now,
		}); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
	}

	return nil
}

// キャンセルと返金は在庫戻しと同じTxで確定する。
// 返金なら支払いステータスも一緒に落とす
func (u *OrderUsecase) closeOrder(ctx context.Context, o model.Order, status model.OrderStatus, kind model.OrderEventKind, now time.Time) error {
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
		if err != nil {
			return err
		}

		for _, it := range items {
			if err := r.Inventory().IncreaseStock(ctx, it.ProductID, it.Quantity); err != nil {
				return err
			}
		}

		if err := r.Orders().UpdateStatus(ctx, o.ID, status); err != nil {
			return err
		}
		if status == model.OrderStatusRefunded && o.PaymentStatus == model.PaymentStatusPaid {
			if err := r.Orders().UpdatePaymentStatus(ctx, o.ID, model.PaymentStatusRefunded); err != nil {
				return err
			}
		}

		for _, e := range []model.OrderEvent{
			{OrderID: o.ID, Kind: kind, DataJSON: jsonData(map[string]any{"from": string(o.Status), "to": string(status)}), CreatedAt: now},
			{OrderID: o.ID, Kind: model.OrderEventStockAdjusted, DataJSON: jsonData(map[string]any{"restocked": len(items)}), CreatedAt: now},
		} {
			if err := r.OrderEvents().Create(ctx, e); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		u.log.Error("close order failed", "order_id", o.ID, "err", err)
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return nil
}

func (u *OrderUsecase) sendShippingUpdate(o model.Order) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := u.notifier.SendShippingUpdate(ctx, o); err != nil {
		u.log.Error("shipping update failed", "number", o.Number, "err", err)
		return
	}

	ev := model.OrderEvent{
		OrderID:   o.ID,
		Kind:      model.OrderEventEmailSent,
		DataJSON:  jsonData(map[string]any{"kind": "shipping_update", "status": string(o.Status)}),
		CreatedAt: u.clock.Now(),
	}
	if err := u.orderEvents.Create(ctx, ev); err != nil {
		u.log.Error("record email_sent failed", "number", o.Number, "err", err)
	}
}

func fulfillmentStatus(s string) (model.OrderStatus, model.OrderEventKind, bool) {
	switch model.OrderStatus(strings.ToUpper(s)) {
	case model.OrderStatusShipped:
		return model.OrderStatusShipped, model.OrderEventShipped, true
	case model.OrderStatusDelivered:
		return model.OrderStatusDelivered, model.OrderEventDelivered, true
	case model.OrderStatusCancelled:
		return model.OrderStatusCancelled, model.OrderEventCancelled, true
	case model.OrderStatusRefunded:
		return model.OrderStatusRefunded, model.OrderEventRefunded, true
	default:
		return "", "", false
	}
}

func toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ProductID: it.ProductID,
			Name:      it.ProductNameSnapshot,
			Price:     it.UnitPriceSnapshot,
			Quantity:  it.Quantity,
		})
	}

	return OrderOutput{
		ID:             o.ID,
		Number:         o.Number,
		Status:         string(o.Status),
		PaymentStatus:  string(o.PaymentStatus),
		Subtotal:       o.Subtotal,
		ShippingCost:   o.ShippingCost,
		DiscountAmount: o.DiscountAmount,
		Total:          o.Total,
		TrackingNumber: o.TrackingNumber,
		CreatedAt:      o.CreatedAt,
		Items:          outItems,
	}
}
