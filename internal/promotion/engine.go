package promotion

import (
	"time"

	"github.com/shopspring/decimal"

	"opentill/backend/internal/domain"
)

// Match is one promotion's contribution to a cart: the affected line item
// and the currency amount taken off it. Matches from different promotions
// stack additively; no best-offer selection is performed.
type Match struct {
	PromotionID string
	LineItemID  string
	ProductSKU  string
	Discount    decimal.Decimal
}

// Evaluate runs every promotion in the catalog against the cart and returns
// the contributions of those whose Buy criterion is satisfied as of the
// given instant. Promotions past their valid_till are skipped; an
// unsatisfiable criterion simply contributes nothing.
func Evaluate(cart []domain.ProductPurchase, catalog []domain.Promotion, asOf time.Time) []Match {
	if len(cart) == 0 {
		return nil
	}

	matches := make([]Match, 0, len(catalog))
	for _, promo := range catalog {
		if !promo.Active(asOf) {
			continue
		}
		buyLine, ok := satisfiesBuy(cart, promo.Buy)
		if !ok {
			continue
		}
		if m, ok := resolveGet(cart, promo, buyLine); ok {
			matches = append(matches, m)
		}
	}
	return matches
}

// TotalDiscount sums the contributions of all matches.
func TotalDiscount(matches []Match) decimal.Decimal {
	total := decimal.Zero
	for _, m := range matches {
		total = total.Add(m.Discount)
	}
	return total
}

// satisfiesBuy returns the line item that satisfied the criterion. For the
// any-product criterion the cart as a whole qualifies and the first line
// stands in as the buy line.
func satisfiesBuy(cart []domain.ProductPurchase, buy domain.PromotionBuy) (*domain.ProductPurchase, bool) {
	switch buy.Kind {
	case domain.BuySpecific:
		for i := range cart {
			if cart[i].ProductSKU == buy.SKU && cart[i].Quantity >= buy.Quantity {
				return &cart[i], true
			}
		}
	case domain.BuyAny:
		total := 0.0
		for i := range cart {
			total += cart[i].Quantity
		}
		if total >= buy.Quantity {
			return &cart[0], true
		}
	case domain.BuyCategory:
		total := 0.0
		var first *domain.ProductPurchase
		for i := range cart {
			if !hasTag(cart[i].Tags, buy.Category) {
				continue
			}
			if first == nil {
				first = &cart[i]
			}
			total += cart[i].Quantity
		}
		if first != nil && total >= buy.Quantity {
			return first, true
		}
	}
	return nil, false
}

func resolveGet(cart []domain.ProductPurchase, promo domain.Promotion, buyLine *domain.ProductPurchase) (Match, bool) {
	get := promo.Get

	switch get.Kind {
	case domain.GetSoloThis:
		// The buy line itself is discounted across its full quantity.
		base := buyLine.UnitCost.Mul(decimal.NewFromFloat(buyLine.Quantity))
		return makeMatch(promo.ID, *buyLine, base, get.Discount)

	case domain.GetThis:
		// Units beyond the qualifying quantity on the same line.
		eligible := buyLine.Quantity - promo.Buy.Quantity
		if eligible <= 0 {
			return Match{}, false
		}
		units := get.Quantity
		if eligible < units {
			units = eligible
		}
		base := buyLine.UnitCost.Mul(decimal.NewFromFloat(units))
		return makeMatch(promo.ID, *buyLine, base, get.Discount)

	case domain.GetSpecific:
		for i := range cart {
			line := cart[i]
			if line.ID == buyLine.ID || line.ProductSKU != get.SKU || line.Quantity < get.Quantity {
				continue
			}
			base := line.UnitCost.Mul(decimal.NewFromFloat(get.Quantity))
			return makeMatch(promo.ID, line, base, get.Discount)
		}

	case domain.GetAny:
		for i := range cart {
			line := cart[i]
			if line.ID == buyLine.ID || line.Quantity < get.Quantity {
				continue
			}
			base := line.UnitCost.Mul(decimal.NewFromFloat(get.Quantity))
			return makeMatch(promo.ID, line, base, get.Discount)
		}

	case domain.GetCategory:
		for i := range cart {
			line := cart[i]
			if line.ID == buyLine.ID || !hasTag(line.Tags, get.Category) || line.Quantity < get.Quantity {
				continue
			}
			base := line.UnitCost.Mul(decimal.NewFromFloat(get.Quantity))
			return makeMatch(promo.ID, line, base, get.Discount)
		}
	}
	return Match{}, false
}

func makeMatch(promotionID string, line domain.ProductPurchase, base decimal.Decimal, discount domain.DiscountValue) (Match, bool) {
	amount := base.Sub(discount.Apply(base))
	if !amount.IsPositive() {
		return Match{}, false
	}
	return Match{
		PromotionID: promotionID,
		LineItemID:  line.ID,
		ProductSKU:  line.ProductSKU,
		Discount:    amount,
	}, true
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
