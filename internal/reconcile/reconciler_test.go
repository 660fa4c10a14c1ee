package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"opentill/backend/internal/domain"
)

type recordingWriter struct {
	applied []appliedDelta
	failOn  string
}

type appliedDelta struct {
	storeID     string
	variantCode string
	delta       float64
}

func (w *recordingWriter) ApplyStockDelta(_ context.Context, storeID string, variantCode string, delta float64) error {
	if variantCode == w.failOn {
		return errors.New("variant is locked")
	}
	w.applied = append(w.applied, appliedDelta{storeID: storeID, variantCode: variantCode, delta: delta})
	return nil
}

func twoLineInput(txType domain.TransactionType) domain.TransactionInput {
	return domain.TransactionInput{
		Type: txType,
		Orders: []domain.Order{{
			Origin: domain.Location{StoreCode: "001", StoreID: "store-001"},
			Products: []domain.ProductPurchase{
				{ProductCode: "654321-STD", ProductSKU: "654321", Quantity: 2, UnitCost: decimal.NewFromInt(50)},
				{ProductCode: "162534-STD", ProductSKU: "162534", Quantity: 1, UnitCost: decimal.NewFromInt(25)},
			},
		}},
	}
}

func TestDeriveIntentsOnePerLineItem(t *testing.T) {
	intents := DeriveIntents(twoLineInput(domain.TransactionSale))

	if len(intents) != 2 {
		t.Fatalf("intents: got %d, want 2", len(intents))
	}
	first := intents[0]
	if first.VariantCode != "654321-STD" || first.StoreID != "store-001" {
		t.Fatalf("intent fields: %+v", first)
	}
	if first.Delta() != -2 {
		t.Fatalf("sale delta: got %v, want -2", first.Delta())
	}
}

func TestApplyContinuesPastFailures(t *testing.T) {
	writer := &recordingWriter{failOn: "654321-STD"}
	r := New(writer, nil)

	err := r.Apply(context.Background(), DeriveIntents(twoLineInput(domain.TransactionSale)))

	var recErr *Error
	if !errors.As(err, &recErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if len(recErr.Failed) != 1 {
		t.Fatalf("failed intents: got %d, want 1", len(recErr.Failed))
	}
	if recErr.Failed[0].Intent.VariantCode != "654321-STD" {
		t.Fatalf("failed variant: %q", recErr.Failed[0].Intent.VariantCode)
	}
	// The second intent still went through.
	if len(writer.applied) != 1 || writer.applied[0].variantCode != "162534-STD" {
		t.Fatalf("applied: %+v", writer.applied)
	}
}

func TestApplySkipsZeroDeltaTypes(t *testing.T) {
	writer := &recordingWriter{}
	r := New(writer, nil)

	if err := r.Apply(context.Background(), DeriveIntents(twoLineInput(domain.TransactionSaved))); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(writer.applied) != 0 {
		t.Fatalf("saved cart moved stock: %+v", writer.applied)
	}
}
