package usecase

import (
	"context"
	"net/http"
	"sort"
	"time"

	"shop/internal/domain/model"
	repo "shop/internal/repository"
)

// ReservationUsecase は在庫ホールドの発行と解放です。
// 「買える在庫」は物理在庫から有効な予約を引いた値で、都度集計する。
// カウンタを別に持たないのでズレようがない。
type ReservationUsecase struct {
	tx           repo.TransactionManager
	products     repo.ProductRepository
	reservations repo.ReservationRepository
	clock        Clock
}

func NewReservationUsecase(
	tx repo.TransactionManager,
	products repo.ProductRepository,
	reservations repo.ReservationRepository,
	clock Clock,
) *ReservationUsecase {
	return &ReservationUsecase{
		tx:           tx,
		products:     products,
		reservations: reservations,
		clock:        clock,
	}
}

type ReserveItem struct {
	ProductID int64
	Quantity  int64
}

// AvailableStock は「物理在庫 - 有効な予約の合計」。
func (u *ReservationUsecase) AvailableStock(ctx context.Context, productID int64) (int64, error) {
	p, err := u.products.FindByID(ctx, productID)
	if err == repo.ErrNotFound {
		return 0, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return 0, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	reserved, err := u.reservations.SumActiveByProduct(ctx, productID, u.clock.Now())
	if err != nil {
		return 0, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return p.Stock - reserved, nil
}

// Reserve は予約セットを全件まとめて作る。1行でも足りなければ何も残さない。
// 商品行をロックしてから検査→挿入するので、最後の1個に2つの
// チェックアウトが同時に来ても片方だけが通る。
func (u *ReservationUsecase) Reserve(ctx context.Context, items []ReserveItem, ownerToken string, ttl time.Duration) error {
	if len(items) == 0 {
		return NewHTTPError(http.StatusBadRequest, "no items")
	}
	if ownerToken == "" {
		return NewHTTPError(http.StatusBadRequest, "invalid owner token")
	}

	//デッドロック回避のためIDの昇順でロックする
	sorted := make([]ReserveItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	now := u.clock.Now()
	expiresAt := now.Add(ttl)

	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		rows := make([]model.StockReservation, 0, len(sorted))

		for _, it := range sorted {
			if it.Quantity <= 0 {
				return NewHTTPError(http.StatusBadRequest, "invalid quantity")
			}

			p, err := r.Products().FindByIDForUpdate(ctx, it.ProductID)
			if err == repo.ErrNotFound {
				return NewHTTPError(http.StatusNotFound, "not found")
			}
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}

			reserved, err := r.Reservations().SumActiveByProduct(ctx, it.ProductID, now)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}

			available := p.Stock - reserved
			if available < it.Quantity {
				//どの行がいくつ足りないかを返す。Txは巻き戻る
				return &InsufficientStockError{
					ProductID: it.ProductID,
					Requested: it.Quantity,
					Available: available,
				}
			}

			rows = append(rows, model.StockReservation{
				ProductID:  it.ProductID,
				Quantity:   it.Quantity,
				OwnerToken: ownerToken,
				ExpiresAt:  expiresAt,
				CreatedAt:  now,
			})
		}

		if err := r.Reservations().CreateBulk(ctx, rows); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		return nil
	})
}

// Release はowner_tokenの予約を全部消す。無くても失敗にしない
func (u *ReservationUsecase) Release(ctx context.Context, ownerToken string) error {
	if ownerToken == "" {
		return NewHTTPError(http.StatusBadRequest, "invalid owner token")
	}
	if err := u.reservations.DeleteByOwnerToken(ctx, ownerToken); err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return nil
}

// SweepExpired は期限切れ行の掃除。available_stockは既に
// expires_atで絞っているので容量回収だけ。何回呼んでも同じ
func (u *ReservationUsecase) SweepExpired(ctx context.Context) (int64, error) {
	return u.reservations.DeleteExpired(ctx, u.clock.Now())
}
