package promotion

import (
	"time"

	"opentill/backend/internal/domain"
)

// Examples returns the template promotions used for demo and seed content.
func Examples(now time.Time) []domain.PromotionInput {
	week := now.Add(7 * 24 * time.Hour)
	return []domain.PromotionInput{
		{
			Name:      "Buy 1 Get 1 10% off",
			Buy:       domain.PromotionBuy{Kind: domain.BuyAny, Quantity: 1},
			Get:       domain.PromotionGet{Kind: domain.GetAny, Quantity: 1, Discount: domain.PercentageDiscount(10)},
			ValidTill: week,
			Timestamp: now,
		},
		{
			Name:      "50% off T-shirts",
			Buy:       domain.PromotionBuy{Kind: domain.BuyCategory, Category: "Tee", Quantity: 1},
			Get:       domain.PromotionGet{Kind: domain.GetSoloThis, Discount: domain.PercentageDiscount(50)},
			ValidTill: week,
			Timestamp: now,
		},
		{
			Name:      "Buy a Kayak, get a Life Jacket 50% off",
			Buy:       domain.PromotionBuy{Kind: domain.BuySpecific, SKU: "654321", Quantity: 1},
			Get:       domain.PromotionGet{Kind: domain.GetSpecific, SKU: "162534", Quantity: 1, Discount: domain.PercentageDiscount(50)},
			ValidTill: week,
			Timestamp: now,
		},
	}
}
