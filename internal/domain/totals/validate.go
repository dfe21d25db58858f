package totals

import "storefront/internal/domain/model"

// Reasonはチェックアウトできない理由（画面側で案内を出し分ける）
type Reason string

const (
	ReasonCartEmpty     Reason = "cart_empty"
	ReasonItemsUnsliced Reason = "items_unsliced"
	ReasonItemsError    Reason = "items_error"
)

func (r Reason) Message() string {
	switch r {
	case ReasonCartEmpty:
		return "cart is empty"
	case ReasonItemsUnsliced:
		return "items are still being sliced"
	case ReasonItemsError:
		return "items have errors"
	default:
		return string(r)
	}
}

// Validateは空なら購入可能
func Validate(lines []Line) []Reason {
	if len(lines) == 0 {
		return []Reason{ReasonCartEmpty}
	}

	var unsliced, failed bool
	for _, l := range lines {
		switch l.File.State().(type) {
		case model.Sliced:
		case model.Failed:
			failed = true
		default:
			unsliced = true
		}
	}

	reasons := make([]Reason, 0, 2)
	if unsliced {
		reasons = append(reasons, ReasonItemsUnsliced)
	}
	if failed {
		reasons = append(reasons, ReasonItemsError)
	}
	return reasons
}
