package usecase

import (
	"context"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/domain/pricing"
	"storefront/internal/domain/totals"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
)

type CartLineOutput struct {
	FileID       string           `json:"file_id"`
	FileName     string           `json:"file_name"`
	FileStatus   model.FileStatus `json:"file_status"`
	ErrorDetail  *string          `json:"error_detail,omitempty"`
	MassGrams    *float64         `json:"mass_grams,omitempty"`
	Quantity     int64            `json:"quantity"`
	Quality      pricing.Quality  `json:"quality"`
	MaterialID   string           `json:"material_id"`
	MaterialName string           `json:"material_name"`
	UnitPrice    *decimal.Decimal `json:"unit_price"`
	LineTotal    decimal.Decimal  `json:"line_total"`
}

type ReasonOutput struct {
	Code    totals.Reason `json:"code"`
	Message string        `json:"message"`
}

type CartOutput struct {
	ID                   int64            `json:"id"`
	Status               model.CartStatus `json:"status"`
	CartLocked           bool             `json:"cart_locked"`
	Items                []CartLineOutput `json:"items"`
	Addons               []model.Addon    `json:"addons"`
	ShippingOptionID     string           `json:"shipping_option_id"`
	Subtotal             decimal.Decimal  `json:"subtotal"`
	AddonsTotal          decimal.Decimal  `json:"addons_total"`
	Shipping             decimal.Decimal  `json:"shipping"`
	FreeShippingProgress decimal.Decimal  `json:"free_shipping_progress"`
	FreeShipping         bool             `json:"free_shipping"`
	Total                decimal.Decimal  `json:"total"`
	Valid                bool             `json:"valid"`
	Reasons              []ReasonOutput   `json:"reasons"`
}

// 削除済みなどで見つからないファイルの代わり
func missingFile(id string) model.File {
	f := model.File{ID: id, Name: "(deleted)"}
	f.ApplyState(model.Failed{Detail: "file deleted"}, time.Time{})
	f.ResolvedAt = nil
	return f
}

// cartLinesは明細・ファイル・材料を突き合わせる（読んだ時点の値を使う）
func cartLines(ctx context.Context, items []model.CartItem, files repo.FileRepository, materials []model.Material) ([]totals.Line, error) {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.FileID)
	}
	found, err := files.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]model.File, len(found))
	for _, f := range found {
		byID[f.ID] = f
	}
	mats := make(map[string]model.Material, len(materials))
	for _, m := range materials {
		mats[m.ID] = m
	}

	lines := make([]totals.Line, 0, len(items))
	for _, it := range items {
		f, ok := byID[it.FileID]
		if !ok {
			f = missingFile(it.FileID)
		}
		l := totals.Line{Item: it, File: f}
		if m, ok := mats[it.MaterialID]; ok {
			m := m
			l.Material = &m
		}
		lines = append(lines, l)
	}
	return lines, nil
}

func reasonOutputs(reasons []totals.Reason) []ReasonOutput {
	out := make([]ReasonOutput, 0, len(reasons))
	for _, r := range reasons {
		out = append(out, ReasonOutput{Code: r, Message: r.Message()})
	}
	return out
}

func reasonCodes(reasons []totals.Reason) []string {
	out := make([]string, 0, len(reasons))
	for _, r := range reasons {
		out = append(out, string(r))
	}
	return out
}

func toCartOutput(cart model.Cart, s totals.Summary, addons []model.Addon, shippingID string, reasons []totals.Reason) CartOutput {
	items := make([]CartLineOutput, 0, len(s.Lines))
	for _, l := range s.Lines {
		out := CartLineOutput{
			FileID:     l.File.ID,
			FileName:   l.File.Name,
			FileStatus: l.File.Status,
			Quantity:   l.Item.Quantity,
			Quality:    l.Item.Quality,
			MaterialID: l.Item.MaterialID,
			UnitPrice:  l.UnitPrice,
			LineTotal:  l.LineTotal,
		}
		switch st := l.File.State().(type) {
		case model.Sliced:
			mass := st.MassGrams
			out.MassGrams = &mass
		case model.Failed:
			detail := st.Detail
			out.ErrorDetail = &detail
		}
		if l.Material != nil {
			out.MaterialName = l.Material.Name
		}
		items = append(items, out)
	}

	return CartOutput{
		ID:                   cart.ID,
		Status:               cart.Status,
		CartLocked:           cart.Locked,
		Items:                items,
		Addons:               addons,
		ShippingOptionID:     shippingID,
		Subtotal:             s.Subtotal,
		AddonsTotal:          s.AddonsTotal,
		Shipping:             s.Shipping,
		FreeShippingProgress: s.FreeShippingProgress,
		FreeShipping:         s.FreeShipping,
		Total:                s.Total,
		Valid:                len(reasons) == 0,
		Reasons:              reasonOutputs(reasons),
	}
}
