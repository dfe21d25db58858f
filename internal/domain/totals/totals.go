// Package totals はカートの金額計算とチェックアウト可否の判定（副作用なし）
package totals

import (
	"storefront/internal/domain/model"
	"storefront/internal/domain/pricing"

	"github.com/shopspring/decimal"
)

// 明細1行分の入力。Materialが見つからない場合はnil。
type Line struct {
	Item     model.CartItem
	File     model.File
	Material *model.Material
}

type LineResult struct {
	Line
	//successのときだけ値がある
	UnitPrice *decimal.Decimal
	LineTotal decimal.Decimal
}

type Summary struct {
	Lines                []LineResult
	Subtotal             decimal.Decimal
	AddonsTotal          decimal.Decimal
	Shipping             decimal.Decimal
	FreeShippingProgress decimal.Decimal
	FreeShipping         bool
	Total                decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// Priceはsuccessのファイルだけ価格を返す
func Price(l Line) (decimal.Decimal, bool) {
	sliced, ok := l.File.State().(model.Sliced)
	if !ok {
		return decimal.Zero, false
	}
	var perKg *decimal.Decimal
	if l.Material != nil {
		p := l.Material.PricePerKg
		perKg = &p
	}
	mass := sliced.MassGrams
	return pricing.UnitPrice(&mass, perKg, l.Item.Quality), true
}

// Computeはカートの合計を出す。
// 小計はsuccessの明細だけ。unsliced/errorは0円で行だけ残す。
// thresholdが0以下なら送料無料は無効。
func Compute(lines []Line, addons []model.Addon, shipping *model.ShippingOption, threshold decimal.Decimal) Summary {
	s := Summary{
		Lines:                make([]LineResult, 0, len(lines)),
		Subtotal:             decimal.Zero,
		AddonsTotal:          decimal.Zero,
		Shipping:             decimal.Zero,
		FreeShippingProgress: decimal.Zero,
	}

	for _, l := range lines {
		r := LineResult{Line: l, LineTotal: decimal.Zero}
		if price, ok := Price(l); ok {
			p := price
			r.UnitPrice = &p
			r.LineTotal = price.Mul(decimal.NewFromInt(l.Item.Quantity))
			s.Subtotal = s.Subtotal.Add(r.LineTotal)
		}
		s.Lines = append(s.Lines, r)
	}

	for _, a := range addons {
		s.AddonsTotal = s.AddonsTotal.Add(a.Price)
	}

	s.FreeShippingProgress = FreeShippingProgress(s.Subtotal, threshold)
	s.FreeShipping = s.FreeShippingProgress.Equal(hundred)

	if shipping != nil && !s.FreeShipping {
		s.Shipping = shipping.Price
	}

	s.Subtotal = pricing.Round(s.Subtotal)
	s.AddonsTotal = pricing.Round(s.AddonsTotal)
	s.Total = s.Subtotal.Add(s.AddonsTotal).Add(s.Shipping)
	return s
}

// FreeShippingProgressは min(100, subtotal/threshold*100)
func FreeShippingProgress(subtotal, threshold decimal.Decimal) decimal.Decimal {
	if !threshold.IsPositive() {
		return decimal.Zero
	}
	p := subtotal.Div(threshold).Mul(hundred)
	if p.GreaterThanOrEqual(hundred) {
		return hundred
	}
	return p.Round(2)
}

// Taxは小計+オプションに税率をかける
func Tax(s Summary, rate decimal.Decimal) decimal.Decimal {
	if !rate.IsPositive() {
		return decimal.Zero
	}
	return pricing.Round(s.Subtotal.Add(s.AddonsTotal).Mul(rate))
}

// PruneAddonsは選択中のうちカタログにあるものだけ返す
func PruneAddons(selected []string, catalog []model.Addon) []model.Addon {
	byID := make(map[string]model.Addon, len(catalog))
	for _, a := range catalog {
		byID[a.ID] = a
	}
	out := make([]model.Addon, 0, len(selected))
	seen := make(map[string]bool, len(selected))
	for _, id := range selected {
		a, ok := byID[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, a)
	}
	return out
}
