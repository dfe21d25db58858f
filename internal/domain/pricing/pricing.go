package pricing

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Qualityは積層ピッチ（レイヤー高さ）
type Quality string

const (
	Quality012 Quality = "0.12mm"
	Quality016 Quality = "0.16mm"
	Quality020 Quality = "0.20mm"
	Quality028 Quality = "0.28mm"
)

// 指定が無いときの品質
const DefaultQuality = Quality020

var ErrUnknownQuality = errors.New("unknown quality")

// ピッチが細かいほど高い
var multipliers = map[Quality]decimal.Decimal{
	Quality012: decimal.RequireFromString("2.0"),
	Quality016: decimal.RequireFromString("1.75"),
	Quality020: decimal.RequireFromString("1.5"),
	Quality028: decimal.RequireFromString("1.0"),
}

// 未計算（質量や単価が不明）のときの価格。下限の加算額も同じ値。
var MinimumPrice = decimal.NewFromInt(1)

var gramsPerKg = decimal.NewFromInt(1000)

// Qualitiesは細かい順の全品質
func Qualities() []Quality {
	return []Quality{Quality012, Quality016, Quality020, Quality028}
}

func ParseQuality(s string) (Quality, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultQuality, nil
	}
	q := Quality(s)
	if _, ok := multipliers[q]; !ok {
		return "", ErrUnknownQuality
	}
	return q, nil
}

func (q Quality) Valid() bool {
	_, ok := multipliers[q]
	return ok
}

// Multiplierは品質ごとの倍率。不明な品質は0。
func (q Quality) Multiplier() decimal.Decimal {
	m, ok := multipliers[q]
	if !ok {
		return decimal.Zero
	}
	return m
}

// UnitPriceは1個あたりの価格を返す。
// 質量か材料単価（1000gあたり）が不明なら MinimumPrice。
// 計算結果が1ドル未満なら1ドルを「加算」する（切り上げではない）。
func UnitPrice(massGrams *float64, pricePerKg *decimal.Decimal, q Quality) decimal.Decimal {
	if massGrams == nil || pricePerKg == nil {
		return MinimumPrice
	}

	raw := decimal.NewFromFloat(*massGrams).
		Mul(pricePerKg.Div(gramsPerKg)).
		Mul(q.Multiplier())

	if raw.LessThan(MinimumPrice) {
		raw = raw.Add(MinimumPrice)
	}
	return Round(raw)
}

// Roundは小数2桁（四捨五入）
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
