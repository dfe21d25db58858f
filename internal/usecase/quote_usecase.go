package usecase

import (
	"context"
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"storefront/internal/domain/model"
	"storefront/internal/domain/totals"
	repo "storefront/internal/repository"

	"go.uber.org/zap"
)

// QuoteUsecaseは支払いなしの見積もり依頼。カートはロックしない。
type QuoteUsecase struct {
	carts   repo.CartRepository
	items   repo.CartItemRepository
	files   repo.FileRepository
	catalog repo.CatalogRepository
	quotes  repo.QuoteRepository
	clock   Clock
	logger  *zap.Logger
}

func NewQuoteUsecase(
	carts repo.CartRepository,
	items repo.CartItemRepository,
	files repo.FileRepository,
	catalog repo.CatalogRepository,
	quotes repo.QuoteRepository,
	clock Clock,
	logger *zap.Logger,
) *QuoteUsecase {
	return &QuoteUsecase{
		carts:   carts,
		items:   items,
		files:   files,
		catalog: catalog,
		quotes:  quotes,
		clock:   clock,
		logger:  logger,
	}
}

type QuoteInput struct {
	CustomerName  string
	CustomerEmail string
	Note          string
}

// 未スライスの明細も含める（単価はnull）
func (u *QuoteUsecase) Create(ctx context.Context, userID int64, cartID int64, in QuoteInput) (model.Quote, error) {
	if userID <= 0 {
		return model.Quote{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if cartID <= 0 {
		return model.Quote{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	name := strings.TrimSpace(in.CustomerName)
	if name == "" || len(name) > 255 {
		return model.Quote{}, NewHTTPError(http.StatusBadRequest, "invalid customer_name")
	}
	email := strings.TrimSpace(in.CustomerEmail)
	if _, err := mail.ParseAddress(email); err != nil {
		return model.Quote{}, NewHTTPError(http.StatusBadRequest, "invalid customer_email")
	}
	if len(in.Note) > 2000 {
		return model.Quote{}, NewHTTPError(http.StatusBadRequest, "note too long")
	}

	cart, err := u.carts.FindByID(ctx, cartID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && cart.UserID != userID) {
		return model.Quote{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return model.Quote{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	cartItems, err := u.items.ListByCartID(ctx, cartID)
	if err != nil {
		return model.Quote{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if len(cartItems) == 0 {
		return model.Quote{}, NewHTTPError(http.StatusBadRequest, totals.ReasonCartEmpty.Message())
	}
	materials, err := u.catalog.ListMaterials(ctx)
	if err != nil {
		return model.Quote{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	lines, err := cartLines(ctx, cartItems, u.files, materials)
	if err != nil {
		return model.Quote{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	items := make([]model.QuoteItem, 0, len(lines))
	for _, l := range lines {
		qi := model.QuoteItem{
			FileID:     l.File.ID,
			FileName:   l.File.Name,
			FileStatus: l.File.Status,
			Quantity:   l.Item.Quantity,
			Quality:    l.Item.Quality,
			MaterialID: l.Item.MaterialID,
		}
		if l.Material != nil {
			qi.MaterialName = l.Material.Name
		}
		if price, ok := totals.Price(l); ok {
			qi.UnitPrice = &price
		}
		items = append(items, qi)
	}

	q := model.Quote{
		UserID:        userID,
		CartID:        cartID,
		CustomerName:  name,
		CustomerEmail: email,
		Note:          strings.TrimSpace(in.Note),
		Items:         items,
		CreatedAt:     u.clock.Now(),
	}
	id, err := u.quotes.Create(ctx, q)
	if err != nil {
		return model.Quote{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	q.ID = id

	u.logger.Info("quote requested", zap.Int64("quote_id", id), zap.Int64("cart_id", cartID), zap.Int("items", len(items)))
	return q, nil
}

func (u *QuoteUsecase) Get(ctx context.Context, userID int64, quoteID int64) (model.Quote, error) {
	if userID <= 0 {
		return model.Quote{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if quoteID <= 0 {
		return model.Quote{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	q, err := u.quotes.FindByID(ctx, quoteID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && q.UserID != userID) {
		return model.Quote{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return model.Quote{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return q, nil
}
