package repository

import (
	"context"
	"errors"
	"time"

	"shop/internal/domain/model"
	repo "shop/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CartGormRepository struct {
	db *gorm.DB
}

// DI
func NewCartGormRepository(db *gorm.DB) *CartGormRepository {
	return &CartGormRepository{db: db}
}

// アカウントのACTIVEカートを取得し、無ければ作成
func (r *CartGormRepository) GetOrCreateActiveByAccountID(ctx context.Context, accountID int64) (model.Cart, error) {
	return r.getOrCreate(ctx, "account_id = ? AND status = ?", accountID, func(now time.Time) model.Cart {
		return model.Cart{
			AccountID: &accountID,
			Status:    model.CartStatusActive,
			CreatedAt: now,
			UpdatedAt: now,
		}
	})
}

// 匿名セッションのACTIVEカートを取得し、無ければ作成
func (r *CartGormRepository) GetOrCreateActiveBySessionToken(ctx context.Context, token string) (model.Cart, error) {
	return r.getOrCreate(ctx, "session_token = ? AND status = ?", token, func(now time.Time) model.Cart {
		return model.Cart{
			SessionToken: &token,
			Status:       model.CartStatusActive,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	})
}

// 探す→無ければ作る。同時作成は作り直し検索で吸収する
func (r *CartGormRepository) getOrCreate(ctx context.Context, cond string, key any, build func(now time.Time) model.Cart) (model.Cart, error) {
	var cart model.Cart

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		findErr := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where(cond, key, model.CartStatusActive).
			Order("id desc").
			First(&cart).Error

		if findErr == nil {
			return nil
		}

		if !errors.Is(findErr, gorm.ErrRecordNotFound) {
			return findErr
		}

		// 無ければ作る
		newCart := build(time.Now())
		if err := tx.Create(&newCart).Error; err != nil {
			retryErr := tx.
				Where(cond, key, model.CartStatusActive).
				Order("id desc").
				First(&cart).Error
			if retryErr == nil {
				return nil
			}
			return err
		}

		cart = newCart
		return nil
	})

	if err != nil {
		return model.Cart{}, err
	}
	return cart, nil
}

// アカウントのACTIVEカートを取得
func (r *CartGormRepository) FindActiveByAccountID(ctx context.Context, accountID int64) (model.Cart, error) {
	return r.findActive(ctx, "account_id = ? AND status = ?", accountID)
}

// 匿名セッションのACTIVEカートを取得
func (r *CartGormRepository) FindActiveBySessionToken(ctx context.Context, token string) (model.Cart, error) {
	return r.findActive(ctx, "session_token = ? AND status = ?", token)
}

func (r *CartGormRepository) findActive(ctx context.Context, cond string, key any) (model.Cart, error) {
	var cart model.Cart

	err := r.db.WithContext(ctx).
		Where(cond, key, model.CartStatusActive).
		Order("id desc").
		First(&cart).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Cart{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Cart{}, err
	}
	return cart, nil
}

func (r *CartGormRepository) FindByID(ctx context.Context, cartID int64) (model.Cart, error) {
	var cart model.Cart

	err := r.db.WithContext(ctx).
		Where("id = ?", cartID).
		First(&cart).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Cart{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Cart{}, err
	}
	return cart, nil
}

// カート本体と明細をまとめて削除
func (r *CartGormRepository) Delete(ctx context.Context, cartID int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("cart_id = ?", cartID).Delete(&model.CartItem{}).Error; err != nil {
			return err
		}

		res := tx.Where("id = ?", cartID).Delete(&model.Cart{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return repo.ErrNotFound
		}
		return nil
	})
}
