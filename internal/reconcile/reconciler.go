package reconcile

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"opentill/backend/internal/domain"
)

// StockWriter applies a single signed stock adjustment atomically. The
// persistence collaborator owns serialization of concurrent deltas; deltas
// are commutative, so any application order yields the same final quantity.
type StockWriter interface {
	ApplyStockDelta(ctx context.Context, storeID string, variantCode string, delta float64) error
}

// DeriveIntents translates a transaction body into one stock-alteration
// intent per line item. Stock moves at each order's origin store; the sign
// of the movement follows the transaction type. Pure, cannot fail.
func DeriveIntents(input domain.TransactionInput) []domain.QuantityAlterationIntent {
	var intents []domain.QuantityAlterationIntent
	for _, order := range input.Orders {
		for _, product := range order.Products {
			intents = append(intents, domain.QuantityAlterationIntent{
				VariantCode: product.ProductCode,
				ProductSKU:  product.ProductSKU,
				StoreCode:   order.Origin.StoreCode,
				StoreID:     order.Origin.StoreID,
				Type:        input.Type,
				Quantity:    product.Quantity,
			})
		}
	}
	return intents
}

// Error reports intents that could not be applied after the owning
// transaction was already durably recorded. The transaction stands; the
// listed adjustments need operator reconciliation.
type Error struct {
	Failed []FailedIntent
}

type FailedIntent struct {
	Intent domain.QuantityAlterationIntent
	Cause  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("stock reconciliation incomplete: %d intent(s) failed", len(e.Failed))
}

type Reconciler struct {
	stock  StockWriter
	logger *zap.Logger
}

func New(stock StockWriter, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{stock: stock, logger: logger}
}

// Apply pushes every intent's delta to the stock writer. Intents with no
// stock movement (saved carts, quotes) are skipped. Failures do not stop
// the remaining intents; they are collected and returned as a single
// *Error so callers can surface partial application distinctly.
func (r *Reconciler) Apply(ctx context.Context, intents []domain.QuantityAlterationIntent) error {
	var failed []FailedIntent
	for _, intent := range intents {
		delta := intent.Delta()
		if delta == 0 {
			continue
		}
		if err := r.stock.ApplyStockDelta(ctx, intent.StoreID, intent.VariantCode, delta); err != nil {
			r.logger.Error("stock delta failed",
				zap.String("store_id", intent.StoreID),
				zap.String("variant_code", intent.VariantCode),
				zap.String("sku", intent.ProductSKU),
				zap.Float64("delta", delta),
				zap.Error(err),
			)
			failed = append(failed, FailedIntent{Intent: intent, Cause: err})
		}
	}
	if len(failed) > 0 {
		return &Error{Failed: failed}
	}
	return nil
}
