package repository

import (
	"context"
	"errors"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

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

// ユーザーのACTIVEカートを取得し、無ければ作成
func (r *CartGormRepository) GetOrCreateActiveByUserID(ctx context.Context, userID int64) (model.Cart, error) {

	var cart model.Cart

	//トランザクションで探す→無ければ作る
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		findErr := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND status = ?", userID, model.CartStatusActive).
			Order("id desc").
			First(&cart).Error

		if findErr == nil {
			return nil
		}

		if !errors.Is(findErr, gorm.ErrRecordNotFound) {
			return findErr
		}

		// 無ければ作る
		now := time.Now()
		newCart := model.Cart{
			UserID:    userID,
			Status:    model.CartStatusActive,
			AddonIDs:  []string{},
			CreatedAt: now,
			UpdatedAt: now,
		}

		if err := tx.Create(&newCart).Error; err != nil {
			retryErr := tx.
				Where("user_id = ? AND status = ?", userID, model.CartStatusActive).
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

func (r *CartGormRepository) FindByID(ctx context.Context, cartID int64) (model.Cart, error) {
	return r.findCart(r.db.WithContext(ctx), cartID)
}

func (r *CartGormRepository) FindByIDForUpdate(ctx context.Context, cartID int64) (model.Cart, error) {
	return r.findCart(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), cartID)
}

func (r *CartGormRepository) findCart(q *gorm.DB, cartID int64) (model.Cart, error) {
	var cart model.Cart
	err := q.Where("id = ?", cartID).First(&cart).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Cart{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Cart{}, err
	}
	return cart, nil
}

// オプションと配送方法。ロック中のカートは更新しない。
func (r *CartGormRepository) UpdateSelections(ctx context.Context, cart model.Cart) error {
	res := r.db.WithContext(ctx).
		Model(&model.Cart{}).
		Where("id = ? AND locked = ?", cart.ID, false).
		Select("addon_ids", "shipping_option_id").
		Updates(&model.Cart{AddonIDs: cart.AddonIDs, ShippingOptionID: cart.ShippingOptionID})

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *CartGormRepository) SetLocked(ctx context.Context, cartID int64, locked bool) error {
	return r.updateColumn(ctx, cartID, "locked", locked)
}

// carts.statusを更新
func (r *CartGormRepository) UpdateStatus(ctx context.Context, cartID int64, status model.CartStatus) error {
	return r.updateColumn(ctx, cartID, "status", status)
}

func (r *CartGormRepository) updateColumn(ctx context.Context, cartID int64, column string, value interface{}) error {
	res := r.db.WithContext(ctx).
		Model(&model.Cart{}).
		Where("id = ?", cartID).
		Update(column, value)

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// カート明細を一覧取得
func (r *CartGormRepository) ListByCartID(ctx context.Context, cartID int64) ([]model.CartItem, error) {
	var items []model.CartItem

	if err := r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Order("id asc").
		Find(&items).Error; err != nil {
		return []model.CartItem{}, err
	}

	return items, nil
}

func (r *CartGormRepository) FindByCartAndFile(ctx context.Context, cartID int64, fileID string) (model.CartItem, error) {
	var item model.CartItem

	err := r.db.WithContext(ctx).
		Where("cart_id = ? AND file_id = ?", cartID, fileID).
		First(&item).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.CartItem{}, repo.ErrNotFound
	}
	if err != nil {
		return model.CartItem{}, err
	}
	return item, nil
}

// 同一ファイルは数量加算
func (r *CartGormRepository) UpsertByCartAndFile(ctx context.Context, in model.CartItem) error {

	if in.Quantity <= 0 {
		return errors.New("invalid quantity")
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item model.CartItem

		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("cart_id = ? AND file_id = ?", in.CartID, in.FileID).
			First(&item).Error

		if err == nil {
			// 既存ありだったら数量を増やし、品質・材料は新しい指定にする
			res := tx.Model(&model.CartItem{}).
				Where("id = ?", item.ID).
				Updates(map[string]interface{}{
					"quantity":    item.Quantity + in.Quantity,
					"quality":     in.Quality,
					"material_id": in.MaterialID,
				})

			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return repo.ErrNotFound
			}
			return nil
		}

		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		//無い場合は新規作成
		now := time.Now()
		in.ID = 0
		in.CreatedAt = now
		in.UpdatedAt = now
		return tx.Create(&in).Error
	})
}

func (r *CartGormRepository) Update(ctx context.Context, item model.CartItem) error {
	res := r.db.WithContext(ctx).
		Model(&model.CartItem{}).
		Where("cart_id = ? AND file_id = ?", item.CartID, item.FileID).
		Updates(map[string]interface{}{
			"quantity":    item.Quantity,
			"quality":     item.Quality,
			"material_id": item.MaterialID,
		})

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *CartGormRepository) DeleteByCartAndFile(ctx context.Context, cartID int64, fileID string) error {
	res := r.db.WithContext(ctx).
		Where("cart_id = ? AND file_id = ?", cartID, fileID).
		Delete(&model.CartItem{})

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// ロック中（チェックアウト中）のカートは触らない
func (r *CartGormRepository) DeleteByFileIDFromUnlockedCarts(ctx context.Context, fileID string) error {
	return r.db.WithContext(ctx).
		Where("file_id = ? AND cart_id IN (?)", fileID,
			r.db.Model(&model.Cart{}).Select("id").Where("locked = ?", false),
		).
		Delete(&model.CartItem{}).Error
}

func (r *CartGormRepository) ListCartIDsByFileID(ctx context.Context, fileID string) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&model.CartItem{}).
		Where("file_id = ?", fileID).
		Distinct().
		Pluck("cart_id", &ids).Error
	if err != nil {
		return []int64{}, err
	}
	return ids, nil
}
