package repository

import (
	"context"
	"errors"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
)

type QuoteGormRepository struct {
	db *gorm.DB
}

func NewQuoteGormRepository(db *gorm.DB) *QuoteGormRepository {
	return &QuoteGormRepository{db: db}
}

func (r *QuoteGormRepository) Create(ctx context.Context, q model.Quote) (int64, error) {
	if err := r.db.WithContext(ctx).Create(&q).Error; err != nil {
		return 0, err
	}
	return q.ID, nil
}

func (r *QuoteGormRepository) FindByID(ctx context.Context, quoteID int64) (model.Quote, error) {
	var q model.Quote
	err := r.db.WithContext(ctx).Where("id = ?", quoteID).First(&q).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Quote{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Quote{}, err
	}
	return q, nil
}
