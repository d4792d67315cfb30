package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"shop/internal/domain/model"
	"shop/internal/gateway"
	"shop/internal/notify"
	repo "shop/internal/repository"

	"gorm.io/gorm"
)

// SettlementUsecase はWebhook側の入口で、Orderを書ける唯一の場所です。
// ゲートウェイは同じイベントを何回でも届けてくるので、
// session_idにつき注文はきっかり1つ。先読み＋一意制約の二段構え。
// 途中で失敗したらトランザクションごと巻き戻って中途半端は残らない。
type SettlementUsecase struct {
	tx           repo.TransactionManager
	orders       repo.OrderRepository
	orderItems   repo.OrderItemRepository
	orderEvents  repo.OrderEventRepository
	shipping     repo.ShippingRepository
	reservations *ReservationUsecase
	notifier     notify.Notifier
	clock        Clock
	log          *slog.Logger
}

func NewSettlementUsecase(
	tx repo.TransactionManager,
	orders repo.OrderRepository,
	orderItems repo.OrderItemRepository,
	orderEvents repo.OrderEventRepository,
	shipping repo.ShippingRepository,
	reservations *ReservationUsecase,
	notifier notify.Notifier,
	clock Clock,
	log *slog.Logger,
) *SettlementUsecase {
	return &SettlementUsecase{
		tx:           tx,
		orders:       orders,
		orderItems:   orderItems,
		orderEvents:  orderEvents,
		shipping:     shipping,
		reservations: reservations,
		notifier:     notifier,
		clock:        clock,
		log:          log,
	}
}

// HandleCompleted は決済完了イベントを注文に変える。
// 署名検証はハンドラ側が済ませている前提。
func (u *SettlementUsecase) HandleCompleted(ctx context.Context, ev gateway.Event) error {
	if ev.SessionID == "" {
		return NewHTTPError(http.StatusBadRequest, "missing session_id")
	}

	//冪等チェック。既にあれば何も書かずに成功で返す
	if _, found, err := u.orders.FindBySessionID(ctx, ev.SessionID); err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	} else if found {
		u.log.Info("duplicate settlement", "session_id", ev.SessionID)
		return nil
	}

	cartID, ownerToken, ok := resolveMetadata(ev)
	if !ok {
		//支払いは済んでいるので黙って落とさない。人が拾えるよう大声で残す
		u.log.Error("settlement: metadata missing for paid session",
			"session_id", ev.SessionID, "metadata", ev.Metadata)
		return nil
	}

	//選ばれたレート名を解決（配送設定が消えていればタグのまま）
	rateName := ev.ShippingRateRef
	if rateID, ok := parseRateRef(ev.ShippingRateRef); ok {
		if rate, err := u.shipping.FindRateByID(ctx, rateID); err == nil {
			rateName = rate.Name
		}
	}

	var (
		created   model.Order
		items     []model.OrderItem
		duplicate bool
		cartGone  bool
	)

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		//Txの中でもう一度。先読み同士の競りはここで落ちる
		if _, found, err := r.Orders().FindBySessionID(ctx, ev.SessionID); err != nil {
			return err
		} else if found {
			duplicate = true
			return nil
		}

		cart, err := r.Carts().FindByID(ctx, cartID)
		if errors.Is(err, repo.ErrNotFound) {
			cartGone = true
			return nil
		}
		if err != nil {
			return err
		}

		cartItems, err := r.CartItems().ListByCartID(ctx, cart.ID)
		if err != nil {
			return err
		}
		if len(cartItems) == 0 {
			cartGone = true
			return nil
		}

		now := u.clock.Now()

		//今の在庫・割引で再検証する。不足してももう断れない
		//（支払い済み）。on-holdとメモで人に引き継ぐ
		status := model.OrderStatusPending
		var issues []string

		items = make([]model.OrderItem, 0, len(cartItems))
		var subtotalNow int64

		for _, ci := range cartItems {
			p, err := r.Products().FindByID(ctx, ci.ProductID)
			if errors.Is(err, repo.ErrNotFound) {
				issues = append(issues, fmt.Sprintf("product %d no longer exists", ci.ProductID))
				status = model.OrderStatusOnHold
				continue
			}
			if err != nil {
				return err
			}

			if !p.IsActive {
				issues = append(issues, fmt.Sprintf("product %d (%s) is deactivated", p.ID, p.Name))
			}
			if p.Stock < ci.Quantity {
				issues = append(issues, fmt.Sprintf(
					"product %d (%s) short: need %d have %d", p.ID, p.Name, ci.Quantity, p.Stock))
				status = model.OrderStatusOnHold
			}

			items = append(items, model.OrderItem{
				ProductID:           p.ID,
				ProductNameSnapshot: p.Name,
				UnitPriceSnapshot:   p.Price,
				WeightSnapshot:      p.Weight,
				Quantity:            ci.Quantity,
				CreatedAt:           now,
			})
			subtotalNow += p.Price * ci.Quantity
		}

		var discountID int64
		if ev.DiscountCode != "" {
			d, err := r.Discounts().FindByCode(ctx, ev.DiscountCode)
			if errors.Is(err, repo.ErrNotFound) {
				issues = append(issues, fmt.Sprintf("discount %s no longer exists", ev.DiscountCode))
			} else if err != nil {
				return err
			} else {
				dec := decideDiscount(d, subtotalNow, now)
				if dec.Applied {
					discountID = d.ID
				} else {
					issues = append(issues, fmt.Sprintf(
						"discount %s failed re-check: %s", ev.DiscountCode, dec.RejectReason))
				}
			}
		}

		number, err := u.nextOrderNumber(ctx, r, now)
		if err != nil {
			return err
		}

		//金額はゲートウェイが実際に請求した値。ここでは再計算しない
		order := model.Order{
			Number:           number,
			SessionID:        ev.SessionID,
			AccountID:        cart.AccountID,
			Status:           status,
			PaymentStatus:    model.PaymentStatusPaid,
			Subtotal:         ev.AmountSubtotal,
			ShippingCost:     ev.AmountShipping,
			DiscountAmount:   ev.AmountDiscount,
			Total:            ev.AmountTotal,
			CustomerEmail:    ev.CustomerEmail,
			ShipToName:       ev.ShippingAddress.Name,
			ShipToLine1:      ev.ShippingAddress.Line1,
			ShipToLine2:      ev.ShippingAddress.Line2,
			ShipToCity:       ev.ShippingAddress.City,
			ShipToPostcode:   ev.ShippingAddress.Postcode,
			ShipToTerritory:  ev.ShippingAddress.Territory,
			ShippingRateName: rateName,
			DiscountCode:     ev.DiscountCode,
			InternalNote:     strings.Join(issues, "\n"),
			CreatedAt:        now,
			UpdatedAt:        now,
		}

		orderID, err := r.Orders().Create(ctx, order)
		if err != nil {
			//一意制約こそが本当の冪等機構。競り負けは成功扱い
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				duplicate = true
				return nil
			}
			return err
		}
		order.ID = orderID

		if err := r.OrderItems().CreateBulk(ctx, orderID, items); err != nil {
			return err
		}

		//物理在庫の減算と予約の削除は同じTxの中。
		//間の瞬間を他の読み手が幻の在庫として見ることはない
		for _, it := range items {
			if err := r.Inventory().DecreaseStock(ctx, it.ProductID, it.Quantity); err != nil {
				return err
			}
		}

		if discountID > 0 {
			if err := r.Discounts().IncrementUses(ctx, discountID); err != nil {
				return err
			}
		}

		if err := r.Carts().Delete(ctx, cart.ID); err != nil {
			return err
		}
		if err := r.Reservations().DeleteByOwnerToken(ctx, ownerToken); err != nil {
			return err
		}

		for _, e := range []model.OrderEvent{
			{OrderID: orderID, Kind: model.OrderEventCreated, DataJSON: jsonData(map[string]any{"number": number, "status": string(status)}), CreatedAt: now},
			{OrderID: orderID, Kind: model.OrderEventPaid, DataJSON: jsonData(map[string]any{"session_id": ev.SessionID, "total": ev.AmountTotal}), CreatedAt: now},
			{OrderID: orderID, Kind: model.OrderEventStockAdjusted, DataJSON: jsonData(map[string]any{"lines": len(items)}), CreatedAt: now},
		} {
			if err := r.OrderEvents().Create(ctx, e); err != nil {
				return err
			}
		}

		created = order
		return nil
	})

	if err != nil {
		u.log.Error("settlement failed", "session_id", ev.SessionID, "err", err)
		return NewHTTPError(http.StatusInternalServerError, "settlement failed")
	}

	if duplicate {
		u.log.Info("duplicate settlement", "session_id", ev.SessionID)
		return nil
	}

	if cartGone {
		//注文は作れない。ゲートウェイに再送させても直らないので成功で返し、
		//照合用のアラートだけ残す
		u.log.Error("settlement: cart missing or empty for paid session",
			"session_id", ev.SessionID, "cart_id", cartID)
		return nil
	}

	if created.Status == model.OrderStatusOnHold {
		u.log.Error("settlement: order created on hold",
			"session_id", ev.SessionID, "number", created.Number, "note", created.InternalNote)
	}

	//確認通知は投げっぱなし。失敗しても注文は確定済み
	go u.sendConfirmation(created, items)

	return nil
}

// HandleExpired は離脱イベント。予約を返すだけで、カートも注文も触らない
func (u *SettlementUsecase) HandleExpired(ctx context.Context, ev gateway.Event) error {
	_, ownerToken, ok := resolveMetadata(ev)
	if !ok {
		u.log.Warn("expired session without metadata", "session_id", ev.SessionID)
		return nil
	}

	if err := u.reservations.Release(ctx, ownerToken); err != nil {
		return err
	}

	u.log.Info("reservation released for expired session",
		"session_id", ev.SessionID, "owner_token", ownerToken)
	return nil
}

func (u *SettlementUsecase) sendConfirmation(order model.Order, items []model.OrderItem) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := u.notifier.SendOrderConfirmation(ctx, order, items); err != nil {
		u.log.Error("order confirmation failed", "number", order.Number, "err", err)
		return
	}

	ev := model.OrderEvent{
		OrderID:   order.ID,
		Kind:      model.OrderEventEmailSent,
		DataJSON:  jsonData(map[string]any{"kind": "order_confirmation"}),
		CreatedAt: u.clock.Now(),
	}
	if err := u.orderEvents.Create(ctx, ev); err != nil {
		u.log.Error("record email_sent failed", "number", order.Number, "err", err)
	}
}

// ORD-YYYYMMDD-連番。当日0時以降の件数から振る。
// 衝突してもただの表示名で、冪等の根拠はsession_idの一意制約
func (u *SettlementUsecase) nextOrderNumber(ctx context.Context, r repo.TxRepos, now time.Time) (string, error) {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	n, err := r.Orders().CountCreatedSince(ctx, midnight)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("ORD-%s-%04d", now.Format("20060102"), n+1), nil
}

func parseRateRef(ref string) (int64, bool) {
	const prefix = "rate-"
	if !strings.HasPrefix(ref, prefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(ref, prefix), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func resolveMetadata(ev gateway.Event) (cartID int64, ownerToken string, ok bool) {
	ownerToken = ev.Metadata[gateway.MetaOwnerToken]

	raw := ev.Metadata[gateway.MetaCartID]
	if raw == "" || ownerToken == "" {
		return 0, "", false
	}

	cartID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || cartID <= 0 {
		return 0, "", false
	}
	return cartID, ownerToken, true
}

func jsonData(v map[string]any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
