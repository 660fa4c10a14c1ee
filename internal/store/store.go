package store

import (
	"context"
	"errors"
	"time"

	"opentill/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// Repository is the persistence collaborator consumed by the core. Stock
// delta application must be atomic per call; the repository owns
// serialization of concurrent deltas against the same (store, variant) row.
type Repository interface {
	SaveTransaction(ctx context.Context, tx domain.Transaction) (string, error)
	UpdateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	FindTransactionByID(ctx context.Context, id string) (*domain.Transaction, error)
	FindTransactionsByRef(ctx context.Context, ref string) ([]domain.Transaction, error)
	FindTransactionsByProductSKU(ctx context.Context, sku string) ([]domain.Transaction, error)
	FindSavedTransactions(ctx context.Context) ([]domain.Transaction, error)
	DeliverableOrders(ctx context.Context, storeID string) ([]domain.Order, error)
	DeleteTransaction(ctx context.Context, id string) error

	CreatePromotion(ctx context.Context, promo domain.Promotion) (*domain.Promotion, error)
	UpdatePromotion(ctx context.Context, promo domain.Promotion) (*domain.Promotion, error)
	GetPromotionByID(ctx context.Context, id string) (*domain.Promotion, error)
	ListPromotions(ctx context.Context) ([]domain.Promotion, error)
	ActivePromotions(ctx context.Context, asOf time.Time) ([]domain.Promotion, error)

	ApplyStockDelta(ctx context.Context, storeID string, variantCode string, delta float64) error
	StockLevel(ctx context.Context, storeID string, variantCode string) (float64, error)
}
