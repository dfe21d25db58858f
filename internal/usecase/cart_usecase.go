package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"storefront/internal/domain/model"
	"storefront/internal/domain/pricing"
	"storefront/internal/domain/totals"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
)

const MaxQuantity = 100

// CartUsecase は /cart と /carts/:id の業務ロジック。
// 変更はカート行をロックしてから行う（チェックアウトと直列になる）。
type CartUsecase struct {
	tx        repo.TransactionManager
	carts     repo.CartRepository
	items     repo.CartItemRepository
	files     repo.FileRepository
	catalog   repo.CatalogRepository
	notifier  CartPublisher
	threshold decimal.Decimal
}

func NewCartUsecase(
	tx repo.TransactionManager,
	carts repo.CartRepository,
	items repo.CartItemRepository,
	files repo.FileRepository,
	catalog repo.CatalogRepository,
	notifier CartPublisher,
	freeShippingThreshold decimal.Decimal,
) *CartUsecase {
	return &CartUsecase{
		tx:        tx,
		carts:     carts,
		items:     items,
		files:     files,
		catalog:   catalog,
		notifier:  notifier,
		threshold: freeShippingThreshold,
	}
}

type AddItemInput struct {
	FileID     string
	Quantity   int64
	Quality    string
	MaterialID string
}

// nilの項目は変更しない
type UpdateItemInput struct {
	Quantity   *int64
	Quality    *string
	MaterialID *string
}

type CartStatusOutput struct {
	CartID  int64          `json:"cart_id"`
	Valid   bool           `json:"valid"`
	Reasons []ReasonOutput `json:"reasons"`
}

type CatalogOutput struct {
	Materials       []model.Material       `json:"materials"`
	Addons          []model.Addon          `json:"addons"`
	ShippingOptions []model.ShippingOption `json:"shipping_options"`
	Qualities       []pricing.Quality      `json:"qualities"`
	DefaultQuality  pricing.Quality        `json:"default_quality"`
}

// GetActiveCart はカート取得（無ければACTIVEを作って空を返す）。
func (u *CartUsecase) GetActiveCart(ctx context.Context, userID int64) (CartOutput, error) {
	if userID <= 0 {
		return CartOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	cart, err := u.carts.GetOrCreateActiveByUserID(ctx, userID)
	if err != nil {
		return CartOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return u.build(ctx, cart)
}

func (u *CartUsecase) GetCart(ctx context.Context, userID int64, cartID int64) (CartOutput, error) {
	cart, err := u.ownedCart(ctx, userID, cartID)
	if err != nil {
		return CartOutput{}, err
	}
	return u.build(ctx, cart)
}

// 購入できるかどうかだけ返す
func (u *CartUsecase) Status(ctx context.Context, userID int64, cartID int64) (CartStatusOutput, error) {
	out, err := u.GetCart(ctx, userID, cartID)
	if err != nil {
		return CartStatusOutput{}, err
	}
	return CartStatusOutput{CartID: out.ID, Valid: out.Valid, Reasons: out.Reasons}, nil
}

func (u *CartUsecase) Catalog(ctx context.Context) (CatalogOutput, error) {
	materials, err := u.catalog.ListMaterials(ctx)
	if err != nil {
		return CatalogOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	addons, err := u.catalog.ListAddons(ctx)
	if err != nil {
		return CatalogOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	options, err := u.catalog.ListShippingOptions(ctx)
	if err != nil {
		return CatalogOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return CatalogOutput{
		Materials:       materials,
		Addons:          addons,
		ShippingOptions: options,
		Qualities:       pricing.Qualities(),
		DefaultQuality:  pricing.DefaultQuality,
	}, nil
}

// AddItem はカートに追加（同一ファイルは数量加算）。
func (u *CartUsecase) AddItem(ctx context.Context, userID int64, cartID int64, in AddItemInput) (CartOutput, error) {
	fileID := strings.TrimSpace(in.FileID)
	if fileID == "" {
		return CartOutput{}, NewHTTPError(http.StatusBadRequest, "invalid file_id")
	}
	qty := in.Quantity
	if qty == 0 {
		qty = 1
	}
	if qty < 0 {
		return CartOutput{}, NewHTTPError(http.StatusBadRequest, "invalid quantity")
	}
	if qty > MaxQuantity {
		return CartOutput{}, NewHTTPError(http.StatusBadRequest, "quantity exceeds 100")
	}
	quality, err := pricing.ParseQuality(in.Quality)
	if err != nil {
		return CartOutput{}, NewHTTPError(http.StatusBadRequest, "invalid quality")
	}
	materialID, err := u.resolveMaterial(ctx, in.MaterialID)
	if err != nil {
		return CartOutput{}, err
	}

	return u.mutate(ctx, userID, cartID, func(r repo.TxRepos, cart model.Cart) error {
		f, err := r.Files().FindByID(ctx, fileID)
		if errors.Is(err, repo.ErrNotFound) || (err == nil && f.UserID != userID) {
			return NewHTTPError(http.StatusNotFound, "file not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		existing, err := r.CartItems().FindByCartAndFile(ctx, cart.ID, fileID)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if existing.Quantity+qty > MaxQuantity {
			return NewHTTPError(http.StatusBadRequest, "quantity exceeds 100")
		}

		// 既にある明細は数量を足し、指定された品質・材料だけ上書きする
		if err == nil {
			existing.Quantity += qty
			if strings.TrimSpace(in.Quality) != "" {
				existing.Quality = quality
			}
			if strings.TrimSpace(in.MaterialID) != "" {
				existing.MaterialID = materialID
			}
			if err := r.CartItems().Update(ctx, existing); err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			return nil
		}

		if err := r.CartItems().UpsertByCartAndFile(ctx, model.CartItem{
			CartID:     cart.ID,
			FileID:     fileID,
			Quantity:   qty,
			Quality:    quality,
			MaterialID: materialID,
		}); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		return nil
	})
}

// 数量・品質・材料をまとめて変更する。どれか一つでも不正なら何も変えない。
// 数量0は削除。
func (u *CartUsecase) UpdateItem(ctx context.Context, userID int64, cartID int64, fileID string, in UpdateItemInput) (CartOutput, error) {
	if in.Quantity != nil {
		if *in.Quantity < 0 {
			return CartOutput{}, NewHTTPError(http.StatusBadRequest, "invalid quantity")
		}
		if *in.Quantity > MaxQuantity {
			return CartOutput{}, NewHTTPError(http.StatusBadRequest, "quantity exceeds 100")
		}
	}
	var quality *pricing.Quality
	if in.Quality != nil {
		q, err := pricing.ParseQuality(*in.Quality)
		if err != nil || *in.Quality == "" {
			return CartOutput{}, NewHTTPError(http.StatusBadRequest, "invalid quality")
		}
		quality = &q
	}
	var materialID *string
	if in.MaterialID != nil {
		if strings.TrimSpace(*in.MaterialID) == "" {
			return CartOutput{}, NewHTTPError(http.StatusBadRequest, "invalid material_id")
		}
		id, err := u.resolveMaterial(ctx, *in.MaterialID)
		if err != nil {
			return CartOutput{}, err
		}
		materialID = &id
	}

	return u.mutate(ctx, userID, cartID, func(r repo.TxRepos, cart model.Cart) error {
		item, err := r.CartItems().FindByCartAndFile(ctx, cart.ID, fileID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		if in.Quantity != nil && *in.Quantity == 0 {
			if err := r.CartItems().DeleteByCartAndFile(ctx, cart.ID, fileID); err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			return nil
		}

		if in.Quantity != nil {
			item.Quantity = *in.Quantity
		}
		if quality != nil {
			item.Quality = *quality
		}
		if materialID != nil {
			item.MaterialID = *materialID
		}
		if err := r.CartItems().Update(ctx, item); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		return nil
	})
}

func (u *CartUsecase) RemoveItem(ctx context.Context, userID int64, cartID int64, fileID string) (CartOutput, error) {
	return u.mutate(ctx, userID, cartID, func(r repo.TxRepos, cart model.Cart) error {
		err := r.CartItems().DeleteByCartAndFile(ctx, cart.ID, fileID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		return nil
	})
}

// オプションのON/OFF
func (u *CartUsecase) ToggleAddon(ctx context.Context, userID int64, cartID int64, addonID string) (CartOutput, error) {
	addons, err := u.catalog.ListAddons(ctx)
	if err != nil {
		return CartOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if len(totals.PruneAddons([]string{addonID}, addons)) == 0 {
		return CartOutput{}, NewHTTPError(http.StatusBadRequest, "invalid addon_id")
	}

	return u.mutate(ctx, userID, cartID, func(r repo.TxRepos, cart model.Cart) error {
		selected := make([]string, 0, len(cart.AddonIDs)+1)
		for _, id := range cart.AddonIDs {
			if id != addonID {
				selected = append(selected, id)
			}
		}
		if !cart.HasAddon(addonID) {
			selected = append(selected, addonID)
		}
		cart.AddonIDs = selected

		if err := r.Carts().UpdateSelections(ctx, cart); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		return nil
	})
}

func (u *CartUsecase) SelectShipping(ctx context.Context, userID int64, cartID int64, optionID string) (CartOutput, error) {
	if _, err := u.catalog.FindShippingOption(ctx, optionID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return CartOutput{}, NewHTTPError(http.StatusBadRequest, "invalid shipping_option_id")
		}
		return CartOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return u.mutate(ctx, userID, cartID, func(r repo.TxRepos, cart model.Cart) error {
		cart.ShippingOptionID = optionID
		if err := r.Carts().UpdateSelections(ctx, cart); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		return nil
	})
}

// mutateはカート行をロックし、所有者とロック状態を確認してからfnを実行する
func (u *CartUsecase) mutate(ctx context.Context, userID int64, cartID int64, fn func(r repo.TxRepos, cart model.Cart) error) (CartOutput, error) {
	if userID <= 0 {
		return CartOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if cartID <= 0 {
		return CartOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var cart model.Cart
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		c, err := r.Carts().FindByIDForUpdate(ctx, cartID)
		if errors.Is(err, repo.ErrNotFound) || (err == nil && c.UserID != userID) {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if c.Locked || c.Status != model.CartStatusActive {
			return NewHTTPError(http.StatusConflict, "cart locked")
		}
		cart = c
		return fn(r, c)
	})
	if err != nil {
		return CartOutput{}, err
	}

	u.notifier.Publish(cartID, CartEvent{Type: CartEventUpdated})

	cart, err = u.carts.FindByID(ctx, cartID)
	if err != nil {
		return CartOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return u.build(ctx, cart)
}

func (u *CartUsecase) ownedCart(ctx context.Context, userID int64, cartID int64) (model.Cart, error) {
	if userID <= 0 {
		return model.Cart{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if cartID <= 0 {
		return model.Cart{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	cart, err := u.carts.FindByID(ctx, cartID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Cart{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return model.Cart{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	//他人のカートは「存在しない扱い」にする
	if cart.UserID != userID {
		return model.Cart{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	return cart, nil
}

// 空なら先頭の材料を使う
func (u *CartUsecase) resolveMaterial(ctx context.Context, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		materials, err := u.catalog.ListMaterials(ctx)
		if err != nil {
			return "", NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if len(materials) == 0 {
			return "", NewHTTPError(http.StatusBadRequest, "no material available")
		}
		return materials[0].ID, nil
	}

	if _, err := u.catalog.FindMaterial(ctx, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", NewHTTPError(http.StatusBadRequest, "invalid material_id")
		}
		return "", NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return id, nil
}

// buildは毎回読み直して合計を出す（保存しない）
func (u *CartUsecase) build(ctx context.Context, cart model.Cart) (CartOutput, error) {
	items, err := u.items.ListByCartID(ctx, cart.ID)
	if err != nil {
		return CartOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	materials, err := u.catalog.ListMaterials(ctx)
	if err != nil {
		return CartOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	lines, err := cartLines(ctx, items, u.files, materials)
	if err != nil {
		return CartOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	catalogAddons, err := u.catalog.ListAddons(ctx)
	if err != nil {
		return CartOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	addons := totals.PruneAddons(cart.AddonIDs, catalogAddons)

	var shipping *model.ShippingOption
	shippingID := ""
	if cart.ShippingOptionID != "" {
		opt, err := u.catalog.FindShippingOption(ctx, cart.ShippingOptionID)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return CartOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if err == nil {
			shipping = &opt
			shippingID = opt.ID
		}
	}

	s := totals.Compute(lines, addons, shipping, u.threshold)
	return toCartOutput(cart, s, addons, shippingID, totals.Validate(lines)), nil
}
