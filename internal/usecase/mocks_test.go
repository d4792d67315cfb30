package usecase

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"shop/internal/domain/model"
	"shop/internal/gateway"
	repo "shop/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// =====================
// Mocks（usecase配下で共用）
// =====================

type CartRepoMock struct{ mock.Mock }

func (m *CartRepoMock) GetOrCreateActiveByAccountID(ctx context.Context, accountID int64) (model.Cart, error) {
	args := m.Called(ctx, accountID)
	c, _ := args.Get(0).(model.Cart)
	return c, args.Error(1)
}

func (m *CartRepoMock) GetOrCreateActiveBySessionToken(ctx context.Context, token string) (model.Cart, error) {
	args := m.Called(ctx, token)
	c, _ := args.Get(0).(model.Cart)
	return c, args.Error(1)
}

func (m *CartRepoMock) FindActiveByAccountID(ctx context.Context, accountID int64) (model.Cart, error) {
	args := m.Called(ctx, accountID)
	c, _ := args.Get(0).(model.Cart)
	return c, args.Error(1)
}

func (m *CartRepoMock) FindActiveBySessionToken(ctx context.Context, token string) (model.Cart, error) {
	args := m.Called(ctx, token)
	c, _ := args.Get(0).(model.Cart)
	return c, args.Error(1)
}

func (m *CartRepoMock) FindByID(ctx context.Context, cartID int64) (model.Cart, error) {
	args := m.Called(ctx, cartID)
	c, _ := args.Get(0).(model.Cart)
	return c, args.Error(1)
}

func (m *CartRepoMock) Delete(ctx context.Context, cartID int64) error {
	args := m.Called(ctx, cartID)
	return args.Error(0)
}

type CartItemRepoMock struct{ mock.Mock }

func (m *CartItemRepoMock) ListByCartID(ctx context.Context, cartID int64) ([]model.CartItem, error) {
	args := m.Called(ctx, cartID)
	items, _ := args.Get(0).([]model.CartItem)
	return items, args.Error(1)
}

func (m *CartItemRepoMock) UpsertByCartAndProduct(ctx context.Context, cartID int64, productID int64, addQty int64) error {
	args := m.Called(ctx, cartID, productID, addQty)
	return args.Error(0)
}

func (m *CartItemRepoMock) UpdateQuantity(ctx context.Context, cartItemID int64, qty int64) error {
	args := m.Called(ctx, cartItemID, qty)
	return args.Error(0)
}

func (m *CartItemRepoMock) DeleteByID(ctx context.Context, cartItemID int64) error {
	args := m.Called(ctx, cartItemID)
	return args.Error(0)
}

func (m *CartItemRepoMock) FindByID(ctx context.Context, cartItemID int64) (model.CartItem, error) {
	args := m.Called(ctx, cartItemID)
	it, _ := args.Get(0).(model.CartItem)
	return it, args.Error(1)
}

type ProductRepoMock struct{ mock.Mock }

func (m *ProductRepoMock) FindByID(ctx context.Context, productID int64) (model.Product, error) {
	args := m.Called(ctx, productID)
	p, _ := args.Get(0).(model.Product)
	return p, args.Error(1)
}

func (m *ProductRepoMock) FindByIDForUpdate(ctx context.Context, productID int64) (model.Product, error) {
	args := m.Called(ctx, productID)
	p, _ := args.Get(0).(model.Product)
	return p, args.Error(1)
}

type InventoryRepoMock struct{ mock.Mock }

func (m *InventoryRepoMock) DecreaseStock(ctx context.Context, productID int64, qty int64) error {
	args := m.Called(ctx, productID, qty)
	return args.Error(0)
}

func (m *InventoryRepoMock) IncreaseStock(ctx context.Context, productID int64, qty int64) error {
	args := m.Called(ctx, productID, qty)
	return args.Error(0)
}

type ReservationRepoMock struct{ mock.Mock }

func (m *ReservationRepoMock) SumActiveByProduct(ctx context.Context, productID int64, now time.Time) (int64, error) {
	args := m.Called(ctx, productID, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *ReservationRepoMock) CreateBulk(ctx context.Context, reservations []model.StockReservation) error {
	args := m.Called(ctx, reservations)
	return args.Error(0)
}

func (m *ReservationRepoMock) DeleteByOwnerToken(ctx context.Context, ownerToken string) error {
	args := m.Called(ctx, ownerToken)
	return args.Error(0)
}

func (m *ReservationRepoMock) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

type DiscountRepoMock struct{ mock.Mock }

func (m *DiscountRepoMock) FindByCode(ctx context.Context, code string) (model.DiscountCode, error) {
	args := m.Called(ctx, code)
	d, _ := args.Get(0).(model.DiscountCode)
	return d, args.Error(1)
}

func (m *DiscountRepoMock) IncrementUses(ctx context.Context, discountID int64) error {
	args := m.Called(ctx, discountID)
	return args.Error(0)
}

type ShippingRepoMock struct{ mock.Mock }

func (m *ShippingRepoMock) ListZonesByTerritory(ctx context.Context, territory string) ([]model.ShippingZone, error) {
	args := m.Called(ctx, territory)
	zones, _ := args.Get(0).([]model.ShippingZone)
	return zones, args.Error(1)
}

func (m *ShippingRepoMock) ListRatesByZone(ctx context.Context, zoneID int64) ([]model.ShippingRate, error) {
	args := m.Called(ctx, zoneID)
	rates, _ := args.Get(0).([]model.ShippingRate)
	return rates, args.Error(1)
}

func (m *ShippingRepoMock) FindRateByID(ctx context.Context, rateID int64) (model.ShippingRate, error) {
	args := m.Called(ctx, rateID)
	r, _ := args.Get(0).(model.ShippingRate)
	return r, args.Error(1)
}

type OrderRepoMock struct{ mock.Mock }

func (m *OrderRepoMock) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	args := m.Called(ctx, orderID)
	o, _ := args.Get(0).(model.Order)
	return o, args.Error(1)
}

func (m *OrderRepoMock) ListByAccountID(ctx context.Context, accountID int64, page int, limit int) ([]model.Order, int64, error) {
	args := m.Called(ctx, accountID, page, limit)
	orders, _ := args.Get(0).([]model.Order)
	return orders, args.Get(1).(int64), args.Error(2)
}

func (m *OrderRepoMock) Create(ctx context.Context, order model.Order) (int64, error) {
	args := m.Called(ctx, order)
	return args.Get(0).(int64), args.Error(1)
}

func (m *OrderRepoMock) UpdateStatus(ctx context.Context, orderID int64, status model.OrderStatus) error {
	args := m.Called(ctx, orderID, status)
	return args.Error(0)
}

func (m *OrderRepoMock) UpdatePaymentStatus(ctx context.Context, orderID int64, status model.PaymentStatus) error {
	args := m.Called(ctx, orderID, status)
	return args.Error(0)
}

func (m *OrderRepoMock) UpdateTracking(ctx context.Context, orderID int64, trackingNumber string) error {
	args := m.Called(ctx, orderID, trackingNumber)
	return args.Error(0)
}

func (m *OrderRepoMock) AppendInternalNote(ctx context.Context, orderID int64, note string) error {
	args := m.Called(ctx, orderID, note)
	return args.Error(0)
}

func (m *OrderRepoMock) FindBySessionID(ctx context.Context, sessionID string) (model.Order, bool, error) {
	args := m.Called(ctx, sessionID)
	o, _ := args.Get(0).(model.Order)
	return o, args.Bool(1), args.Error(2)
}

func (m *OrderRepoMock) CountCreatedSince(ctx context.Context, since time.Time) (int64, error) {
	args := m.Called(ctx, since)
	return args.Get(0).(int64), args.Error(1)
}

type OrderItemRepoMock struct{ mock.Mock }

func (m *OrderItemRepoMock) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	args := m.Called(ctx, orderID)
	items, _ := args.Get(0).([]model.OrderItem)
	return items, args.Error(1)
}

func (m *OrderItemRepoMock) CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error {
	args := m.Called(ctx, orderID, items)
	return args.Error(0)
}

type OrderEventRepoMock struct{ mock.Mock }

func (m *OrderEventRepoMock) Create(ctx context.Context, ev model.OrderEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *OrderEventRepoMock) List(ctx context.Context, f repo.OrderEventFilter) ([]model.OrderEvent, error) {
	args := m.Called(ctx, f)
	evs, _ := args.Get(0).([]model.OrderEvent)
	return evs, args.Error(1)
}

// =====================
// Txのモック。fnにそのままモック束を渡す
// =====================

type TxReposMock struct {
	OrdersMock       OrderRepoMock
	OrderItemsMock   OrderItemRepoMock
	OrderEventsMock  OrderEventRepoMock
	CartsMock        CartRepoMock
	CartItemsMock    CartItemRepoMock
	InventoryMock    InventoryRepoMock
	ProductsMock     ProductRepoMock
	ReservationsMock ReservationRepoMock
	DiscountsMock    DiscountRepoMock
}

func (m *TxReposMock) Orders() repo.OrderRepository             { return &m.OrdersMock }
func (m *TxReposMock) OrderItems() repo.OrderItemRepository     { return &m.OrderItemsMock }
func (m *TxReposMock) OrderEvents() repo.OrderEventRepository   { return &m.OrderEventsMock }
func (m *TxReposMock) Carts() repo.CartRepository               { return &m.CartsMock }
func (m *TxReposMock) CartItems() repo.CartItemRepository       { return &m.CartItemsMock }
func (m *TxReposMock) Inventory() repo.InventoryRepository      { return &m.InventoryMock }
func (m *TxReposMock) Products() repo.ProductRepository         { return &m.ProductsMock }
func (m *TxReposMock) Reservations() repo.ReservationRepository { return &m.ReservationsMock }
func (m *TxReposMock) Discounts() repo.DiscountRepository       { return &m.DiscountsMock }

type TxManagerMock struct {
	Repos TxReposMock
	//fnより先に返すエラー（begin失敗を再現する）
	BeginErr error
}

func (m *TxManagerMock) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	if m.BeginErr != nil {
		return m.BeginErr
	}
	return fn(&m.Repos)
}

type GatewayMock struct{ mock.Mock }

func (m *GatewayMock) CreateSession(ctx context.Context, in gateway.CreateSessionInput) (gateway.Session, error) {
	args := m.Called(ctx, in)
	s, _ := args.Get(0).(gateway.Session)
	return s, args.Error(1)
}

func (m *GatewayMock) EnsureCoupon(ctx context.Context, in gateway.CouponInput) (string, error) {
	args := m.Called(ctx, in)
	return args.String(0), args.Error(1)
}

type NotifierMock struct{ mock.Mock }

func (m *NotifierMock) SendOrderConfirmation(ctx context.Context, order model.Order, items []model.OrderItem) error {
	args := m.Called(ctx, order, items)
	return args.Error(0)
}

func (m *NotifierMock) SendShippingUpdate(ctx context.Context, order model.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

// =====================
// テスト用の部品
// =====================

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type stubIDGen struct{ id string }

func (g stubIDGen) NewID() string { return g.id }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func assertErrContains(t *testing.T, err error, substr string) {
	t.Helper()
	if assert.Error(t, err) {
		assert.True(t, strings.Contains(err.Error(), substr),
			"error %q does not contain %q", err.Error(), substr)
	}
}

func ptrInt64(v int64) *int64        { return &v }
func ptrTime(v time.Time) *time.Time { return &v }
