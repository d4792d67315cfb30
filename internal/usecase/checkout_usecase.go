package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"shop/internal/domain/model"
	"shop/internal/gateway"
	repo "shop/internal/repository"
)

// チェックアウト1回分の状態。Draftから順に進む
type CheckoutState string

const (
	CheckoutStateDraft     CheckoutState = "DRAFT"
	CheckoutStateQuoted    CheckoutState = "QUOTED"
	CheckoutStateReserved  CheckoutState = "RESERVED"
	CheckoutStateHandedOff CheckoutState = "HANDED_OFF"
)

// ID発行の約束（uuidはmainで注入）
type IDGenerator interface {
	NewID() string
}

// CheckoutUsecase は同期側の入口です。
// カートを検証→見積り→在庫ホールド→ゲートウェイへ引き渡し、の順。
// ゲートウェイで失敗したらホールドをその場で解放する
// （TTL切れまで在庫を人質に取らない）。
type CheckoutUsecase struct {
	carts        repo.CartRepository
	cartItems    repo.CartItemRepository
	products     repo.ProductRepository
	quote        *QuoteUsecase
	reservations *ReservationUsecase
	gw           gateway.PaymentGateway
	idGen        IDGenerator
	log          *slog.Logger

	//チェックアウト〜決済の往復より長く、オーバーセル窓より短く
	reservationTTL time.Duration
}

func NewCheckoutUsecase(
	carts repo.CartRepository,
	cartItems repo.CartItemRepository,
	products repo.ProductRepository,
	quote *QuoteUsecase,
	reservations *ReservationUsecase,
	gw gateway.PaymentGateway,
	idGen IDGenerator,
	log *slog.Logger,
	reservationTTL time.Duration,
) *CheckoutUsecase {
	return &CheckoutUsecase{
		carts:          carts,
		cartItems:      cartItems,
		products:       products,
		quote:          quote,
		reservations:   reservations,
		gw:             gw,
		idGen:          idGen,
		log:            log,
		reservationTTL: reservationTTL,
	}
}

type CheckoutInput struct {
	DestinationTerritory string
	DiscountCode         string
}

type CheckoutOutput struct {
	SessionID   string           `json:"session_id"`
	RedirectURL string           `json:"redirect_url"`
	Quote       Quote            `json:"quote"`
	Discount    DiscountDecision `json:"discount"`
}

func (u *CheckoutUsecase) Checkout(ctx context.Context, id Identity, in CheckoutInput) (CheckoutOutput, error) {
	if !id.valid() {
		return CheckoutOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if in.DestinationTerritory == "" {
		return CheckoutOutput{}, NewHTTPError(http.StatusBadRequest, "invalid destination")
	}

	state := CheckoutStateDraft

	//カート読み込み。空ならここで終わり
	cart, err := u.findActiveCart(ctx, id)
	if err != nil {
		return CheckoutOutput{}, err
	}

	items, err := u.cartItems.ListByCartID(ctx, cart.ID)
	if err != nil {
		return CheckoutOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if len(items) == 0 {
		return CheckoutOutput{}, ErrEmptyCart
	}

	//全行の商品が今も買えるか。ダメな行は名指しで返す
	lines := make([]QuoteLine, 0, len(items))
	reserveItems := make([]ReserveItem, 0, len(items))

	for _, it := range items {
		p, err := u.products.FindByID(ctx, it.ProductID)
		if err == repo.ErrNotFound {
			return CheckoutOutput{}, &LineUnavailableError{ProductID: it.ProductID}
		}
		if err != nil {
			return CheckoutOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if !p.IsActive {
			return CheckoutOutput{}, &LineUnavailableError{ProductID: p.ID, Name: p.Name}
		}

		lines = append(lines, QuoteLine{Product: p, Quantity: it.Quantity})
		reserveItems = append(reserveItems, ReserveItem{ProductID: p.ID, Quantity: it.Quantity})
	}

	//見積り。配送できなければ ErrUnserviceable がそのまま上がる
	q, err := u.quote.Quote(ctx, lines, in.DestinationTerritory, in.DiscountCode)
	if err != nil {
		return CheckoutOutput{}, err
	}
	state = CheckoutStateQuoted
	u.log.Debug("checkout state", "cart_id", cart.ID, "state", string(state))

	if q.Discount.RejectReason != "" {
		//却下はチェックアウトを止めない。理由だけ残す
		u.log.Info("discount rejected",
			"code", in.DiscountCode, "reason", string(q.Discount.RejectReason))
	}

	//在庫ホールド。全行まとめて、1行でもダメなら何も残らない
	ownerToken := u.idGen.NewID()
	if err := u.reservations.Reserve(ctx, reserveItems, ownerToken, u.reservationTTL); err != nil {
		return CheckoutOutput{}, err
	}
	state = CheckoutStateReserved
	u.log.Debug("checkout state", "cart_id", cart.ID, "state", string(state))

	//ゲートウェイ側クーポンは努力目標。失敗したら割引なしで続行する。
	//利用者のコードが無効な場合とは別の問題なので区別して記録する
	discount := q.Discount
	couponID := ""
	if discount.Applied {
		//確定額で渡すので種類は固定
		couponID, err = u.gw.EnsureCoupon(ctx, gateway.CouponInput{
			Code:  discount.Code,
			Kind:  "fixed_amount",
			Value: discount.Amount,
		})
		if err != nil {
			u.log.Error("gateway coupon create failed", "code", discount.Code, "err", err)
			//返す見積りも実際の請求に合わせて割引なしへ落とす
			discount = DiscountDecision{}
			q.Discount = DiscountDecision{}
			couponID = ""
		}
	}

	//決済セッション作成。失敗はホールドを解放してから返す
	session, err := u.gw.CreateSession(ctx, buildSessionInput(cart.ID, ownerToken, q, couponID))
	if err != nil {
		if relErr := u.reservations.Release(ctx, ownerToken); relErr != nil {
			u.log.Error("release after gateway failure", "owner_token", ownerToken, "err", relErr)
		}
		return CheckoutOutput{}, &GatewayError{Op: "create session", Err: err}
	}
	state = CheckoutStateHandedOff

	u.log.Info("checkout handed off",
		"cart_id", cart.ID, "session_id", session.ID, "state", string(state))

	return CheckoutOutput{
		SessionID:   session.ID,
		RedirectURL: session.RedirectURL,
		Quote:       q,
		Discount:    discount,
	}, nil
}

func (u *CheckoutUsecase) findActiveCart(ctx context.Context, id Identity) (model.Cart, error) {
	var (
		cart model.Cart
		err  error
	)

	if id.AccountID > 0 {
		cart, err = u.carts.FindActiveByAccountID(ctx, id.AccountID)
	} else {
		cart, err = u.carts.FindActiveBySessionToken(ctx, id.SessionToken)
	}

	if err == repo.ErrNotFound {
		return model.Cart{}, ErrEmptyCart
	}
	if err != nil {
		return model.Cart{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return cart, nil
}

func buildSessionInput(cartID int64, ownerToken string, q Quote, couponID string) gateway.CreateSessionInput {
	in := gateway.CreateSessionInput{
		Lines:           make([]gateway.SessionLine, 0, len(q.Lines)),
		ShippingOptions: make([]gateway.SessionShippingOption, 0, len(q.ShippingOptions)),
		CouponID:        couponID,
		Metadata: map[string]string{
			gateway.MetaCartID:     fmt.Sprintf("%d", cartID),
			gateway.MetaOwnerToken: ownerToken,
		},
	}

	for _, l := range q.Lines {
		in.Lines = append(in.Lines, gateway.SessionLine{
			Name:      l.Name,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
		})
	}

	for _, o := range q.ShippingOptions {
		in.ShippingOptions = append(in.ShippingOptions, gateway.SessionShippingOption{
			Ref:             fmt.Sprintf("rate-%d", o.RateID),
			Label:           o.Label,
			Price:           o.Price,
			DeliveryDaysMin: o.DeliveryDaysMin,
			DeliveryDaysMax: o.DeliveryDaysMax,
		})
	}

	return in
}
