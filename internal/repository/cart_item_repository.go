package repository

import (
	"context"

	"storefront/internal/domain/model"
)

type CartItemRepository interface {
	ListByCartID(ctx context.Context, cartID int64) ([]model.CartItem, error)
	FindByCartAndFile(ctx context.Context, cartID int64, fileID string) (model.CartItem, error)
	// 同一ファイルは数量を加算し、品質・材料は上書き
	UpsertByCartAndFile(ctx context.Context, item model.CartItem) error
	//数量・品質・材料をまとめて更新
	Update(ctx context.Context, item model.CartItem) error
	DeleteByCartAndFile(ctx context.Context, cartID int64, fileID string) error
	//ロックされていないカートからファイルを外す
	DeleteByFileIDFromUnlockedCarts(ctx context.Context, fileID string) error
	ListCartIDsByFileID(ctx context.Context, fileID string) ([]int64, error)
}
