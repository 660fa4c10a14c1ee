package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Promotion is an active store-wide offer: a qualifying Buy criterion and a
// Get criterion describing what receives the discount. Both criteria are
// stored as tagged JSON so an invalid persisted shape fails at decode time
// rather than at evaluation time.
type Promotion struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Buy       PromotionBuy `json:"buy"`
	Get       PromotionGet `json:"get"`
	ValidTill time.Time    `json:"valid_till"`
	Timestamp time.Time    `json:"timestamp"`
}

// PromotionInput is the administrative payload for creating or updating a
// promotion; identity is assigned by the service.
type PromotionInput struct {
	Name      string       `json:"name"`
	Buy       PromotionBuy `json:"buy"`
	Get       PromotionGet `json:"get"`
	ValidTill time.Time    `json:"valid_till"`
	Timestamp time.Time    `json:"timestamp"`
}

// Active reports whether the promotion is still valid at the given instant.
func (p Promotion) Active(asOf time.Time) bool {
	return !asOf.After(p.ValidTill)
}

type PromotionBuyKind string

const (
	BuySpecific PromotionBuyKind = "specific"
	BuyAny      PromotionBuyKind = "any"
	BuyCategory PromotionBuyKind = "category"
)

// PromotionBuy is the qualifying condition evaluated against a cart:
// at least Quantity units of a specific SKU, of any product, or of products
// carrying a category tag.
type PromotionBuy struct {
	Kind     PromotionBuyKind
	SKU      string
	Category string
	Quantity float64
}

type promotionBuyJSON struct {
	Type     PromotionBuyKind `json:"type"`
	SKU      string           `json:"sku,omitempty"`
	Category string           `json:"category,omitempty"`
	Quantity float64          `json:"quantity"`
}

func (b PromotionBuy) MarshalJSON() ([]byte, error) {
	return json.Marshal(promotionBuyJSON{
		Type:     b.Kind,
		SKU:      b.SKU,
		Category: b.Category,
		Quantity: b.Quantity,
	})
}

func (b *PromotionBuy) UnmarshalJSON(data []byte) error {
	var raw promotionBuyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Type {
	case BuySpecific:
		if raw.SKU == "" {
			return fmt.Errorf("buy criterion %q requires a sku", raw.Type)
		}
	case BuyCategory:
		if raw.Category == "" {
			return fmt.Errorf("buy criterion %q requires a category", raw.Type)
		}
	case BuyAny:
	default:
		return fmt.Errorf("unknown buy criterion %q", raw.Type)
	}
	b.Kind = raw.Type
	b.SKU = raw.SKU
	b.Category = raw.Category
	b.Quantity = raw.Quantity
	return nil
}

type PromotionGetKind string

const (
	// GetSoloThis discounts the very item that satisfied the Buy criterion.
	GetSoloThis PromotionGetKind = "solo_this"
	// GetThis discounts further units of the buy item beyond the qualifying
	// quantity, e.g. buy one get one half price.
	GetThis     PromotionGetKind = "this"
	GetSpecific PromotionGetKind = "specific"
	GetAny      PromotionGetKind = "any"
	GetCategory PromotionGetKind = "category"
)

// PromotionGet names the recipient of the discount once the Buy criterion is
// satisfied, and the quantity threshold the recipient must meet.
type PromotionGet struct {
	Kind     PromotionGetKind
	SKU      string
	Category string
	Quantity float64
	Discount DiscountValue
}

type promotionGetJSON struct {
	Type     PromotionGetKind `json:"type"`
	SKU      string           `json:"sku,omitempty"`
	Category string           `json:"category,omitempty"`
	Quantity float64          `json:"quantity,omitempty"`
	Discount DiscountValue    `json:"discount"`
}

func (g PromotionGet) MarshalJSON() ([]byte, error) {
	return json.Marshal(promotionGetJSON{
		Type:     g.Kind,
		SKU:      g.SKU,
		Category: g.Category,
		Quantity: g.Quantity,
		Discount: g.Discount,
	})
}

func (g *PromotionGet) UnmarshalJSON(data []byte) error {
	var raw promotionGetJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Type {
	case GetSpecific:
		if raw.SKU == "" {
			return fmt.Errorf("get criterion %q requires a sku", raw.Type)
		}
	case GetCategory:
		if raw.Category == "" {
			return fmt.Errorf("get criterion %q requires a category", raw.Type)
		}
	case GetSoloThis, GetThis, GetAny:
	default:
		return fmt.Errorf("unknown get criterion %q", raw.Type)
	}
	g.Kind = raw.Type
	g.SKU = raw.SKU
	g.Category = raw.Category
	g.Quantity = raw.Quantity
	g.Discount = raw.Discount
	return nil
}
