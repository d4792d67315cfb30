package usecase

import (
	"context"
	"errors"
	"net/http"

	"shop/internal/domain/model"
	repo "shop/internal/repository"
)

// 呼び出しごとに明示的に渡す身元。リクエスト毎のグローバルは持たない。
// AccountIDが入っていればログイン済み。匿名はSessionTokenで引く
type Identity struct {
	AccountID    int64
	SessionToken string
}

func (id Identity) valid() bool {
	return id.AccountID > 0 || id.SessionToken != ""
}

// CartUsecase は /cart の業務ロジックです。
// ここでは在庫を検証しない。カートは長く放置されるので
// 検証はチェックアウトまで遅らせる。
type CartUsecase struct {
	tx           repo.TransactionManager
	cartRepo     repo.CartRepository
	cartItemRepo repo.CartItemRepository
	productRepo  repo.ProductRepository
}

func NewCartUsecase(
	tx repo.TransactionManager,
	cartRepo repo.CartRepository,
	cartItemRepo repo.CartItemRepository,
	productRepo repo.ProductRepository,
) *CartUsecase {
	return &CartUsecase{
		tx:           tx,
		cartRepo:     cartRepo,
		cartItemRepo: cartItemRepo,
		productRepo:  productRepo,
	}
}

type CartItemResponse struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int64  `json:"quantity"`
}

type CartResponse struct {
	Items []CartItemResponse `json:"items"`
	Total int64              `json:"total"`
}

type AddCartInput struct {
	ProductID int64
	Quantity  int64
}

type UpdateCartItemInput struct {
	Quantity int64
}

// GetCart はカート取得（無ければACTIVEを作って空を返す）。
func (u *CartUsecase) GetCart(ctx context.Context, id Identity) (CartResponse, error) {
	if !id.valid() {
		return CartResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	cart, err := u.getOrCreateActive(ctx, u.cartRepo, id)
	if err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return u.buildCartResponse(ctx, cart.ID)
}

// AddToCart はカートに追加（同一商品は数量加算）。
func (u *CartUsecase) AddToCart(ctx context.Context, id Identity, in AddCartInput) (CartResponse, error) {
	if !id.valid() {
		return CartResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if in.ProductID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid product_id")
	}
	if in.Quantity < 1 {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid quantity")
	}

	cart, err := u.getOrCreateActive(ctx, u.cartRepo, id)
	if err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	// 商品チェック（公開のみ）
	p, err := u.productRepo.FindByID(ctx, in.ProductID)
	if err == repo.ErrNotFound {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid")
	}
	if err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !p.IsActive {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid")
	}

	if err := u.cartItemRepo.UpsertByCartAndProduct(ctx, cart.ID, in.ProductID, in.Quantity); err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return u.buildCartResponse(ctx, cart.ID)
}

// UpdateItem は数量変更。
func (u *CartUsecase) UpdateItem(ctx context.Context, id Identity, cartItemID int64, in UpdateCartItemInput) (CartResponse, error) {
	if !id.valid() {
		return CartResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if in.Quantity < 1 {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid quantity")
	}

	cart, item, err := u.findOwnedItem(ctx, id, cartItemID)
	if err != nil {
		return CartResponse{}, err
	}

	if err := u.cartItemRepo.UpdateQuantity(ctx, item.ID, in.Quantity); err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return u.buildCartResponse(ctx, cart.ID)
}

// RemoveItem は明細削除。
func (u *CartUsecase) RemoveItem(ctx context.Context, id Identity, cartItemID int64) (CartResponse, error) {
	if !id.valid() {
		return CartResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	cart, item, err := u.findOwnedItem(ctx, id, cartItemID)
	if err != nil {
		return CartResponse{}, err
	}

	if err := u.cartItemRepo.DeleteByID(ctx, item.ID); err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return u.buildCartResponse(ctx, cart.ID)
}

// Merge はログイン時に匿名カートをアカウントのカートへ合流させる。
// 同一商品は数量を足し、匿名カートは消す。
// 匿名カートが無ければ何もしない（毎リクエスト呼んでも安全）
func (u *CartUsecase) Merge(ctx context.Context, accountID int64, sessionToken string) error {
	if accountID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if sessionToken == "" {
		return nil
	}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		anon, err := r.Carts().FindActiveBySessionToken(ctx, sessionToken)
		if errors.Is(err, repo.ErrNotFound) {
			//合流する物が無い
			return nil
		}
		if err != nil {
			return err
		}

		items, err := r.CartItems().ListByCartID(ctx, anon.ID)
		if err != nil {
			return err
		}

		if len(items) > 0 {
			acct, err := r.Carts().GetOrCreateActiveByAccountID(ctx, accountID)
			if err != nil {
				return err
			}

			for _, it := range items {
				if err := r.CartItems().UpsertByCartAndProduct(ctx, acct.ID, it.ProductID, it.Quantity); err != nil {
					return err
				}
			}
		}

		return r.Carts().Delete(ctx, anon.ID)
	})

	if err != nil {
		if _, ok := AsHTTPError(err); ok {
			return err
		}
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return nil
}

func (u *CartUsecase) getOrCreateActive(ctx context.Context, carts repo.CartRepository, id Identity) (model.Cart, error) {
	if id.AccountID > 0 {
		return carts.GetOrCreateActiveByAccountID(ctx, id.AccountID)
	}
	return carts.GetOrCreateActiveBySessionToken(ctx, id.SessionToken)
}

func (u *CartUsecase) findOwnedItem(ctx context.Context, id Identity, cartItemID int64) (model.Cart, model.CartItem, error) {
	if cartItemID <= 0 {
		return model.Cart{}, model.CartItem{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	cart, err := u.getOrCreateActive(ctx, u.cartRepo, id)
	if err != nil {
		return model.Cart{}, model.CartItem{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	item, err := u.cartItemRepo.FindByID(ctx, cartItemID)
	if err == repo.ErrNotFound {
		return model.Cart{}, model.CartItem{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return model.Cart{}, model.CartItem{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	//他人のカートの明細は「存在しない扱い」にする
	if item.CartID != cart.ID {
		return model.Cart{}, model.CartItem{}, NewHTTPError(http.StatusNotFound, "not found")
	}

	return cart, item, nil
}

// 明細＋現在価格でレスポンスを組み立てる
func (u *CartUsecase) buildCartResponse(ctx context.Context, cartID int64) (CartResponse, error) {
	items, err := u.cartItemRepo.ListByCartID(ctx, cartID)
	if err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	out := CartResponse{Items: make([]CartItemResponse, 0, len(items))}

	for _, it := range items {
		p, err := u.productRepo.FindByID(ctx, it.ProductID)
		if err == repo.ErrNotFound {
			//消えた商品は表示から落とす
			continue
		}
		if err != nil {
			return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
		}

		out.Items = append(out.Items, CartItemResponse{
			ID:        it.ID,
			ProductID: it.ProductID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  it.Quantity,
		})
		out.Total += p.Price * it.Quantity
	}

	return out, nil
}
