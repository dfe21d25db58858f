package repository

import (
	"context"
	"errors"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
)

// カタログは外部ツールが書き込む。ここは読むだけ。
type CatalogGormRepository struct {
	db *gorm.DB
}

func NewCatalogGormRepository(db *gorm.DB) *CatalogGormRepository {
	return &CatalogGormRepository{db: db}
}

func (r *CatalogGormRepository) ListAddons(ctx context.Context) ([]model.Addon, error) {
	var items []model.Addon
	if err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("id asc").Find(&items).Error; err != nil {
		return []model.Addon{}, err
	}
	return items, nil
}

// 安い順
func (r *CatalogGormRepository) ListShippingOptions(ctx context.Context) ([]model.ShippingOption, error) {
	var items []model.ShippingOption
	if err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("price asc, id asc").Find(&items).Error; err != nil {
		return []model.ShippingOption{}, err
	}
	return items, nil
}

func (r *CatalogGormRepository) ListMaterials(ctx context.Context) ([]model.Material, error) {
	var items []model.Material
	if err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("id asc").Find(&items).Error; err != nil {
		return []model.Material{}, err
	}
	return items, nil
}

func (r *CatalogGormRepository) FindMaterial(ctx context.Context, id string) (model.Material, error) {
	var m model.Material
	err := r.db.WithContext(ctx).Where("id = ? AND is_active = ?", id, true).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Material{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Material{}, err
	}
	return m, nil
}

func (r *CatalogGormRepository) FindShippingOption(ctx context.Context, id string) (model.ShippingOption, error) {
	var s model.ShippingOption
	err := r.db.WithContext(ctx).Where("id = ? AND is_active = ?", id, true).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.ShippingOption{}, repo.ErrNotFound
	}
	if err != nil {
		return model.ShippingOption{}, err
	}
	return s, nil
}
