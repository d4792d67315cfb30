package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"shop/internal/domain/model"
	"shop/internal/gateway"
	repo "shop/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"
)

var settleNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// 非同期の確認通知を待てるスタブ
type notifierStub struct {
	called chan struct{}
	err    error
}

func newNotifierStub(err error) *notifierStub {
	return &notifierStub{called: make(chan struct{}, 1), err: err}
}

func (n *notifierStub) SendOrderConfirmation(ctx context.Context, order model.Order, items []model.OrderItem) error {
	n.called <- struct{}{}
	return n.err
}

func (n *notifierStub) SendShippingUpdate(ctx context.Context, order model.Order) error {
	n.called <- struct{}{}
	return n.err
}

func (n *notifierStub) waitCalled(t *testing.T) {
	t.Helper()
	select {
	case <-n.called:
	case <-time.After(2 * time.Second):
		t.Fatal("confirmation was never sent")
	}
}

type settlementFixture struct {
	tx          *TxManagerMock
	orders      *OrderRepoMock
	orderItems  *OrderItemRepoMock
	orderEvents *OrderEventRepoMock
	shipping    *ShippingRepoMock
	resRepo     *ReservationRepoMock
	notifier    *notifierStub
	uc          *SettlementUsecase
}

func newSettlementFixture() *settlementFixture {
	f := &settlementFixture{
		tx:          &TxManagerMock{},
		orders:      new(OrderRepoMock),
		orderItems:  new(OrderItemRepoMock),
		orderEvents: new(OrderEventRepoMock),
		shipping:    new(ShippingRepoMock),
		resRepo:     new(ReservationRepoMock),
		//通知失敗でも注文は確定済みなのでエラーを返すスタブで十分
		notifier: newNotifierStub(errors.New("smtp down")),
	}

	clock := fixedClock{t: settleNow}
	resUC := NewReservationUsecase(&TxManagerMock{}, new(ProductRepoMock), f.resRepo, clock)

	f.uc = NewSettlementUsecase(
		f.tx, f.orders, f.orderItems, f.orderEvents, f.shipping,
		resUC, f.notifier, clock, testLogger(),
	)
	return f
}

func completedEvent() gateway.Event {
	return gateway.Event{
		Type:            gateway.EventPaymentCompleted,
		SessionID:       "cs_1",
		AmountSubtotal:  2400,
		AmountShipping:  395,
		AmountDiscount:  0,
		AmountTotal:     2795,
		CustomerEmail:   "jo@example.com",
		ShippingAddress: gateway.ShippingAddress{Name: "Jo", Line1: "1 High St", City: "Leeds", Postcode: "LS1 1AA", Territory: "GB"},
		ShippingRateRef: "rate-10",
		Metadata: map[string]string{
			gateway.MetaCartID:     "7",
			gateway.MetaOwnerToken: "owner-1",
		},
	}
}

// カート{Mug x2}の読み出しと在庫十分な商品を仕込む
func (f *settlementFixture) happyCartInTx() {
	f.tx.Repos.OrdersMock.On("FindBySessionID", mock.Anything, "cs_1").Return(model.Order{}, false, nil)
	f.tx.Repos.CartsMock.On("FindByID", mock.Anything, int64(7)).Return(model.Cart{ID: 7, AccountID: ptrInt64(42)}, nil)
	f.tx.Repos.CartItemsMock.On("ListByCartID", mock.Anything, int64(7)).Return([]model.CartItem{
		{ID: 1, CartID: 7, ProductID: 1, Quantity: 2},
	}, nil)
	f.tx.Repos.ProductsMock.On("FindByID", mock.Anything, int64(1)).Return(
		model.Product{ID: 1, Name: "Mug", Price: 1200, Weight: 300, Stock: 10, IsActive: true}, nil)
	f.tx.Repos.OrdersMock.On("CountCreatedSince", mock.Anything, mock.Anything).Return(int64(0), nil)
}

func TestHandleCompleted_CreatesOrderOnce(t *testing.T) {
	f := newSettlementFixture()
	f.orders.On("FindBySessionID", mock.Anything, "cs_1").Return(model.Order{}, false, nil)
	f.shipping.On("FindRateByID", mock.Anything, int64(10)).Return(model.ShippingRate{ID: 10, Name: "Standard"}, nil)
	f.happyCartInTx()

	f.tx.Repos.OrdersMock.On("Create", mock.Anything, mock.MatchedBy(func(o model.Order) bool {
		return o.SessionID == "cs_1" &&
			o.Status == model.OrderStatusPending &&
			o.PaymentStatus == model.PaymentStatusPaid &&
			//金額はゲートウェイの請求値をそのまま使う
			o.Subtotal == 2400 && o.ShippingCost == 395 && o.Total == 2795 &&
			o.Number == "ORD-20260310-0001" &&
			o.ShippingRateName == "Standard" &&
			o.ShipToPostcode == "LS1 1AA" &&
			o.InternalNote == ""
	})).Return(int64(100), nil)
	f.tx.Repos.OrderItemsMock.On("CreateBulk", mock.Anything, int64(100), mock.MatchedBy(func(items []model.OrderItem) bool {
		return len(items) == 1 &&
			items[0].ProductNameSnapshot == "Mug" &&
			items[0].UnitPriceSnapshot == 1200 &&
			items[0].Quantity == 2
	})).Return(nil)
	f.tx.Repos.InventoryMock.On("DecreaseStock", mock.Anything, int64(1), int64(2)).Return(nil)
	f.tx.Repos.CartsMock.On("Delete", mock.Anything, int64(7)).Return(nil)
	f.tx.Repos.ReservationsMock.On("DeleteByOwnerToken", mock.Anything, "owner-1").Return(nil)
	f.tx.Repos.OrderEventsMock.On("Create", mock.Anything, mock.Anything).Return(nil).Times(3)

	err := f.uc.HandleCompleted(context.Background(), completedEvent())
	assert.NoError(t, err)

	f.notifier.waitCalled(t)

	f.tx.Repos.OrdersMock.AssertExpectations(t)
	f.tx.Repos.OrderItemsMock.AssertExpectations(t)
	f.tx.Repos.InventoryMock.AssertExpectations(t)
	f.tx.Repos.CartsMock.AssertExpectations(t)
	f.tx.Repos.ReservationsMock.AssertExpectations(t)
	f.tx.Repos.OrderEventsMock.AssertExpectations(t)
}

func TestHandleCompleted_DuplicateBeforeTx(t *testing.T) {
	f := newSettlementFixture()
	f.orders.On("FindBySessionID", mock.Anything, "cs_1").Return(model.Order{ID: 100}, true, nil)

	err := f.uc.HandleCompleted(context.Background(), completedEvent())
	assert.NoError(t, err)

	f.tx.Repos.OrdersMock.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.tx.Repos.InventoryMock.AssertNotCalled(t, "DecreaseStock", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleCompleted_DuplicateInsideTx(t *testing.T) {
	f := newSettlementFixture()
	f.orders.On("FindBySessionID", mock.Anything, "cs_1").Return(model.Order{}, false, nil)
	f.shipping.On("FindRateByID", mock.Anything, int64(10)).Return(model.ShippingRate{ID: 10, Name: "Standard"}, nil)
	//Tx内の再チェックで既にある
	f.tx.Repos.OrdersMock.On("FindBySessionID", mock.Anything, "cs_1").Return(model.Order{ID: 100}, true, nil)

	err := f.uc.HandleCompleted(context.Background(), completedEvent())
	assert.NoError(t, err)

	f.tx.Repos.OrdersMock.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestHandleCompleted_UniqueConstraintRaceTreatedAsSuccess(t *testing.T) {
	f := newSettlementFixture()
	f.orders.On("FindBySessionID", mock.Anything, "cs_1").Return(model.Order{}, false, nil)
	f.shipping.On("FindRateByID", mock.Anything, int64(10)).Return(model.ShippingRate{ID: 10, Name: "Standard"}, nil)
	f.happyCartInTx()

	//先読みをすり抜けた競りは一意制約で落ち、成功扱いになる
	f.tx.Repos.OrdersMock.On("Create", mock.Anything, mock.Anything).Return(int64(0), gorm.ErrDuplicatedKey)

	err := f.uc.HandleCompleted(context.Background(), completedEvent())
	assert.NoError(t, err)

	f.tx.Repos.OrderItemsMock.AssertNotCalled(t, "CreateBulk", mock.Anything, mock.Anything, mock.Anything)
	f.tx.Repos.InventoryMock.AssertNotCalled(t, "DecreaseStock", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleCompleted_StockShortfallGoesOnHold(t *testing.T) {
	f := newSettlementFixture()
	f.orders.On("FindBySessionID", mock.Anything, "cs_1").Return(model.Order{}, false, nil)
	f.shipping.On("FindRateByID", mock.Anything, int64(10)).Return(model.ShippingRate{ID: 10, Name: "Standard"}, nil)

	f.tx.Repos.OrdersMock.On("FindBySessionID", mock.Anything, "cs_1").Return(model.Order{}, false, nil)
	f.tx.Repos.CartsMock.On("FindByID", mock.Anything, int64(7)).Return(model.Cart{ID: 7}, nil)
	f.tx.Repos.CartItemsMock.On("ListByCartID", mock.Anything, int64(7)).Return([]model.CartItem{
		{ID: 1, CartID: 7, ProductID: 1, Quantity: 2},
	}, nil)
	//TTL切れの間に他で売れて在庫1しか残っていない
	f.tx.Repos.ProductsMock.On("FindByID", mock.Anything, int64(1)).Return(
		model.Product{ID: 1, Name: "Mug", Price: 1200, Stock: 1, IsActive: true}, nil)
	f.tx.Repos.OrdersMock.On("CountCreatedSince", mock.Anything, mock.Anything).Return(int64(0), nil)

	f.tx.Repos.OrdersMock.On("Create", mock.Anything, mock.MatchedBy(func(o model.Order) bool {
		return o.Status == model.OrderStatusOnHold && o.InternalNote != ""
	})).Return(int64(100), nil)
	f.tx.Repos.OrderItemsMock.On("CreateBulk", mock.Anything, int64(100), mock.Anything).Return(nil)
	//支払い済みなので無条件に引く。マイナスは運用で拾う
	f.tx.Repos.InventoryMock.On("DecreaseStock", mock.Anything, int64(1), int64(2)).Return(nil)
	f.tx.Repos.CartsMock.On("Delete", mock.Anything, int64(7)).Return(nil)
	f.tx.Repos.ReservationsMock.On("DeleteByOwnerToken", mock.Anything, "owner-1").Return(nil)
	f.tx.Repos.OrderEventsMock.On("Create", mock.Anything, mock.Anything).Return(nil)

	err := f.uc.HandleCompleted(context.Background(), completedEvent())
	assert.NoError(t, err)

	f.notifier.waitCalled(t)
	f.tx.Repos.OrdersMock.AssertExpectations(t)
	f.tx.Repos.InventoryMock.AssertExpectations(t)
}

func TestHandleCompleted_MissingMetadataIsLoggedNotRetried(t *testing.T) {
	f := newSettlementFixture()
	f.orders.On("FindBySessionID", mock.Anything, "cs_1").Return(model.Order{}, false, nil)

	ev := completedEvent()
	ev.Metadata = nil

	//再送しても直らないので成功で返す
	err := f.uc.HandleCompleted(context.Background(), ev)
	assert.NoError(t, err)

	f.tx.Repos.CartsMock.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
}

func TestHandleCompleted_CartGone(t *testing.T) {
	f := newSettlementFixture()
	f.orders.On("FindBySessionID", mock.Anything, "cs_1").Return(model.Order{}, false, nil)
	f.shipping.On("FindRateByID", mock.Anything, int64(10)).Return(model.ShippingRate{ID: 10, Name: "Standard"}, nil)

	f.tx.Repos.OrdersMock.On("FindBySessionID", mock.Anything, "cs_1").Return(model.Order{}, false, nil)
	f.tx.Repos.CartsMock.On("FindByID", mock.Anything, int64(7)).Return(model.Cart{}, repo.ErrNotFound)

	err := f.uc.HandleCompleted(context.Background(), completedEvent())
	assert.NoError(t, err)

	f.tx.Repos.OrdersMock.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestHandleCompleted_DiscountRecheckFailureNoted(t *testing.T) {
	f := newSettlementFixture()
	f.orders.On("FindBySessionID", mock.Anything, "cs_1").Return(model.Order{}, false, nil)
	f.shipping.On("FindRateByID", mock.Anything, int64(10)).Return(model.ShippingRate{ID: 10, Name: "Standard"}, nil)
	f.happyCartInTx()

	//セッション中に使い切られたコード
	f.tx.Repos.DiscountsMock.On("FindByCode", mock.Anything, "SAVE10").Return(model.DiscountCode{
		ID: 5, Code: "SAVE10", Kind: model.DiscountKindPercentage, Value: 10, Enabled: true,
		MaxUses: ptrInt64(100), UsesCount: 100,
	}, nil)

	f.tx.Repos.OrdersMock.On("Create", mock.Anything, mock.MatchedBy(func(o model.Order) bool {
		return o.InternalNote != "" && o.DiscountCode == "SAVE10"
	})).Return(int64(100), nil)
	f.tx.Repos.OrderItemsMock.On("CreateBulk", mock.Anything, int64(100), mock.Anything).Return(nil)
	f.tx.Repos.InventoryMock.On("DecreaseStock", mock.Anything, int64(1), int64(2)).Return(nil)
	f.tx.Repos.CartsMock.On("Delete", mock.Anything, int64(7)).Return(nil)
	f.tx.Repos.ReservationsMock.On("DeleteByOwnerToken", mock.Anything, "owner-1").Return(nil)
	f.tx.Repos.OrderEventsMock.On("Create", mock.Anything, mock.Anything).Return(nil)

	ev := completedEvent()
	ev.DiscountCode = "SAVE10"
	ev.AmountDiscount = 240

	err := f.uc.HandleCompleted(context.Background(), ev)
	assert.NoError(t, err)

	f.notifier.waitCalled(t)
	//再検証に落ちたコードは消費カウントを上げない
	f.tx.Repos.DiscountsMock.AssertNotCalled(t, "IncrementUses", mock.Anything, mock.Anything)
}

func TestHandleCompleted_ValidDiscountIncrementsUses(t *testing.T) {
	f := newSettlementFixture()
	f.orders.On("FindBySessionID", mock.Anything, "cs_1").Return(model.Order{}, false, nil)
	f.shipping.On("FindRateByID", mock.Anything, int64(10)).Return(model.ShippingRate{ID: 10, Name: "Standard"}, nil)
	f.happyCartInTx()

	f.tx.Repos.DiscountsMock.On("FindByCode", mock.Anything, "SAVE10").Return(model.DiscountCode{
		ID: 5, Code: "SAVE10", Kind: model.DiscountKindPercentage, Value: 10, Enabled: true,
	}, nil)
	f.tx.Repos.DiscountsMock.On("IncrementUses", mock.Anything, int64(5)).Return(nil)

	f.tx.Repos.OrdersMock.On("Create", mock.Anything, mock.Anything).Return(int64(100), nil)
	f.tx.Repos.OrderItemsMock.On("CreateBulk", mock.Anything, int64(100), mock.Anything).Return(nil)
	f.tx.Repos.InventoryMock.On("DecreaseStock", mock.Anything, int64(1), int64(2)).Return(nil)
	f.tx.Repos.CartsMock.On("Delete", mock.Anything, int64(7)).Return(nil)
	f.tx.Repos.ReservationsMock.On("DeleteByOwnerToken", mock.Anything, "owner-1").Return(nil)
	f.tx.Repos.OrderEventsMock.On("Create", mock.Anything, mock.Anything).Return(nil)

	ev := completedEvent()
	ev.DiscountCode = "SAVE10"
	ev.AmountDiscount = 240

	err := f.uc.HandleCompleted(context.Background(), ev)
	assert.NoError(t, err)

	f.notifier.waitCalled(t)
	f.tx.Repos.DiscountsMock.AssertExpectations(t)
}

func TestHandleCompleted_TxFailureReturnsError(t *testing.T) {
	f := newSettlementFixture()
	f.orders.On("FindBySessionID", mock.Anything, "cs_1").Return(model.Order{}, false, nil)
	f.shipping.On("FindRateByID", mock.Anything, int64(10)).Return(model.ShippingRate{ID: 10, Name: "Standard"}, nil)
	f.happyCartInTx()
	f.tx.Repos.OrdersMock.On("Create", mock.Anything, mock.Anything).Return(int64(0), errors.New("db down"))

	//ゲートウェイに再送させるためエラーで返す
	err := f.uc.HandleCompleted(context.Background(), completedEvent())
	assertErrContains(t, err, "settlement failed")
}

// =====================
// HandleExpired
// =====================

func TestHandleExpired_ReleasesOnly(t *testing.T) {
	f := newSettlementFixture()
	f.resRepo.On("DeleteByOwnerToken", mock.Anything, "owner-1").Return(nil)

	ev := completedEvent()
	ev.Type = gateway.EventSessionExpired

	err := f.uc.HandleExpired(context.Background(), ev)
	assert.NoError(t, err)

	f.resRepo.AssertExpectations(t)
	//カートと注文には触らない
	f.tx.Repos.CartsMock.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	f.tx.Repos.OrdersMock.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestHandleExpired_MissingMetadataIsNoop(t *testing.T) {
	f := newSettlementFixture()

	ev := completedEvent()
	ev.Type = gateway.EventSessionExpired
	ev.Metadata = nil

	err := f.uc.HandleExpired(context.Background(), ev)
	assert.NoError(t, err)

	f.resRepo.AssertNotCalled(t, "DeleteByOwnerToken", mock.Anything, mock.Anything)
}

// =====================
// 確認通知の台帳記録（同期で直接呼ぶ）
// =====================

func TestSendConfirmation_RecordsEmailSentEvent(t *testing.T) {
	f := newSettlementFixture()
	f.notifier.err = nil
	f.orderEvents.On("Create", mock.Anything, mock.MatchedBy(func(ev model.OrderEvent) bool {
		return ev.OrderID == 100 && ev.Kind == model.OrderEventEmailSent
	})).Return(nil)

	f.uc.sendConfirmation(model.Order{ID: 100, Number: "ORD-20260310-0001"}, nil)

	<-f.notifier.called
	f.orderEvents.AssertExpectations(t)
}

// =====================
// helpers
// =====================

func TestNextOrderNumber_CountsFromLocalMidnight(t *testing.T) {
	f := newSettlementFixture()
	midnight := time.Date(2026, 3, 10, 0, 0, 0, 0, settleNow.Location())
	f.tx.Repos.OrdersMock.On("CountCreatedSince", mock.Anything, midnight).Return(int64(41), nil)

	got, err := f.uc.nextOrderNumber(context.Background(), &f.tx.Repos, settleNow)
	assert.NoError(t, err)
	assert.Equal(t, "ORD-20260310-0042", got)
}

func TestParseRateRef(t *testing.T) {
	id, ok := parseRateRef("rate-12")
	assert.True(t, ok)
	assert.Equal(t, int64(12), id)

	_, ok = parseRateRef("express")
	assert.False(t, ok)

	_, ok = parseRateRef("rate-abc")
	assert.False(t, ok)

	_, ok = parseRateRef("rate--1")
	assert.False(t, ok)
}

func TestResolveMetadata(t *testing.T) {
	cartID, tok, ok := resolveMetadata(completedEvent())
	assert.True(t, ok)
	assert.Equal(t, int64(7), cartID)
	assert.Equal(t, "owner-1", tok)

	ev := completedEvent()
	ev.Metadata = map[string]string{gateway.MetaCartID: "7"}
	_, _, ok = resolveMetadata(ev)
	assert.False(t, ok)

	ev.Metadata = map[string]string{gateway.MetaCartID: "x", gateway.MetaOwnerToken: "t"}
	_, _, ok = resolveMetadata(ev)
	assert.False(t, ok)
}
