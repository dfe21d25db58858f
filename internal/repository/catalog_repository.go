package repository

import (
	"context"

	"storefront/internal/domain/model"
)

// 外部管理のカタログ（有効なものだけ返す）
type CatalogRepository interface {
	ListAddons(ctx context.Context) ([]model.Addon, error)
	ListShippingOptions(ctx context.Context) ([]model.ShippingOption, error)
	ListMaterials(ctx context.Context) ([]model.Material, error)
	FindMaterial(ctx context.Context, id string) (model.Material, error)
	FindShippingOption(ctx context.Context, id string) (model.ShippingOption, error)
}
