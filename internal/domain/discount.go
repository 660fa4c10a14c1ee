package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// DiscountKind discriminates the two discount shapes carried on line items,
// orders and promotion rules.
type DiscountKind string

const (
	DiscountPercentage DiscountKind = "percentage"
	DiscountFixed      DiscountKind = "fixed"
)

// DiscountValue is either a percentage (0-100) off a price or a fixed
// currency amount off a price. The zero value is a 0% discount.
type DiscountValue struct {
	Kind   DiscountKind
	Amount decimal.Decimal
}

func PercentageDiscount(points int64) DiscountValue {
	return DiscountValue{Kind: DiscountPercentage, Amount: decimal.NewFromInt(points)}
}

func FixedDiscount(amount decimal.Decimal) DiscountValue {
	return DiscountValue{Kind: DiscountFixed, Amount: amount}
}

var hundred = decimal.NewFromInt(100)

// Apply computes the discounted price. Percentage yields
// amount * (100 - p) / 100; fixed yields max(amount - f, 0). The result is
// never negative for a non-negative input. Percentage bounds are the
// caller's responsibility.
func (d DiscountValue) Apply(amount decimal.Decimal) decimal.Decimal {
	switch d.Kind {
	case DiscountPercentage:
		return amount.Mul(hundred.Sub(d.Amount)).Div(hundred)
	case DiscountFixed:
		reduced := amount.Sub(d.Amount)
		if reduced.IsNegative() {
			return decimal.Zero
		}
		return reduced
	default:
		return amount
	}
}

func (d DiscountValue) IsZero() bool {
	return d.Kind == "" || d.Amount.IsZero() && d.Kind == DiscountPercentage
}

type discountJSON struct {
	Type  DiscountKind    `json:"type"`
	Value decimal.Decimal `json:"value"`
}

func (d DiscountValue) MarshalJSON() ([]byte, error) {
	kind := d.Kind
	if kind == "" {
		kind = DiscountPercentage
	}
	return json.Marshal(discountJSON{Type: kind, Value: d.Amount})
}

func (d *DiscountValue) UnmarshalJSON(data []byte) error {
	var raw discountJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Type {
	case DiscountPercentage, DiscountFixed:
	default:
		return fmt.Errorf("unknown discount type %q", raw.Type)
	}
	d.Kind = raw.Type
	d.Amount = raw.Value
	return nil
}
