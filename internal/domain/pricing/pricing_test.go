package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestUnitPrice_UnknownInputsReturnMinimum(t *testing.T) {
	assert.True(t, UnitPrice(nil, dec("20"), Quality020).Equal(MinimumPrice))
	assert.True(t, UnitPrice(f64(50), nil, Quality020).Equal(MinimumPrice))
	assert.True(t, UnitPrice(nil, nil, Quality012).Equal(MinimumPrice))
}

func TestUnitPrice(t *testing.T) {
	cases := []struct {
		name    string
		mass    float64
		perKg   string
		quality Quality
		want    string
	}{
		// 50g * 0.02 * 1.5 = 1.50 -> 下限なし
		{"no floor at 1.50", 50, "20", Quality020, "1.50"},
		// 0.40 -> 1.40（切り上げではなく加算）
		{"additive floor", 20, "20", Quality028, "1.40"},
		{"zero mass", 0, "20", Quality020, "1.00"},
		{"exactly one dollar", 50, "20", Quality028, "1.00"},
		{"fine quality", 100, "25", Quality012, "5.00"},
		{"rounding", 33.333, "21", Quality016, "1.22"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := UnitPrice(f64(tc.mass), dec(tc.perKg), tc.quality)
			assert.Equal(t, tc.want, got.StringFixed(2))
		})
	}
}

func TestUnitPrice_NeverBelowOneDollar(t *testing.T) {
	for _, q := range Qualities() {
		for _, mass := range []float64{0, 0.1, 1, 5, 10, 33, 66, 500} {
			got := UnitPrice(f64(mass), dec("20"), q)
			assert.True(t, got.GreaterThanOrEqual(MinimumPrice), "mass=%v quality=%s price=%s", mass, q, got)
		}
	}
}

func TestMultipliersDecreaseWithLayerHeight(t *testing.T) {
	qs := Qualities()
	for i := 1; i < len(qs); i++ {
		assert.True(t, qs[i-1].Multiplier().GreaterThan(qs[i].Multiplier()), "%s vs %s", qs[i-1], qs[i])
	}
}

func TestParseQuality(t *testing.T) {
	q, err := ParseQuality("")
	require.NoError(t, err)
	assert.Equal(t, DefaultQuality, q)

	q, err = ParseQuality(" 0.12mm ")
	require.NoError(t, err)
	assert.Equal(t, Quality012, q)

	_, err = ParseQuality("0.3mm")
	assert.ErrorIs(t, err, ErrUnknownQuality)
}
