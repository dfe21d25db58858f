package repository

import (
	"context"

	"storefront/internal/domain/model"
)

type CartRepository interface {
	GetOrCreateActiveByUserID(ctx context.Context, userID int64) (model.Cart, error)
	FindByID(ctx context.Context, cartID int64) (model.Cart, error)
	//行ロックを取って取得（トランザクション内で使う）
	FindByIDForUpdate(ctx context.Context, cartID int64) (model.Cart, error)
	//オプションと配送方法を保存
	UpdateSelections(ctx context.Context, cart model.Cart) error
	SetLocked(ctx context.Context, cartID int64, locked bool) error
	UpdateStatus(ctx context.Context, cartID int64, status model.CartStatus) error
}
