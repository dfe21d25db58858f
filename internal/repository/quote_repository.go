package repository

import (
	"context"

	"storefront/internal/domain/model"
)

type QuoteRepository interface {
	Create(ctx context.Context, q model.Quote) (int64, error)
	FindByID(ctx context.Context, quoteID int64) (model.Quote, error)
}
