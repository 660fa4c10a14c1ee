package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType determines the direction of the stock movement a
// transaction causes at each order's origin store.
type TransactionType string

const (
	// TransactionSale removes stock from the origin store.
	TransactionSale TransactionType = "sale"
	// TransactionReturn credits stock back to the origin store.
	TransactionReturn TransactionType = "return"
	// TransactionSaved is a held cart or draft; no stock moves.
	TransactionSaved TransactionType = "saved"
	// TransactionQuote is a priced offer; no stock moves.
	TransactionQuote TransactionType = "quote"
)

func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionSale, TransactionReturn, TransactionSaved, TransactionQuote:
		return true
	default:
		return false
	}
}

// StockSign is the multiplier applied to purchased quantities when deriving
// stock deltas: -1 for sales, +1 for returns, 0 for types that do not move
// stock.
func (t TransactionType) StockSign() int {
	switch t {
	case TransactionSale:
		return -1
	case TransactionReturn:
		return 1
	default:
		return 0
	}
}

type Payment struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method"`
}

// Transaction is the persisted record of a sale, return, quote or held cart.
type Transaction struct {
	ID          string          `json:"id"`
	Customer    string          `json:"customer"`
	Type        TransactionType `json:"transaction_type"`
	Orders      []Order         `json:"orders"`
	OrderTotal  decimal.Decimal `json:"order_total"`
	Payment     []Payment       `json:"payment"`
	OrderDate   time.Time       `json:"order_date"`
	OrderNotes  []Note          `json:"order_notes"`
	Salesperson string          `json:"salesperson"`
	Kiosk       string          `json:"kiosk"`
}

// TransactionInput is the caller-supplied body for creating or updating a
// transaction. The authoritative total is computed by the service, not
// taken from the caller.
type TransactionInput struct {
	Customer    string          `json:"customer"`
	Type        TransactionType `json:"transaction_type"`
	Orders      []Order         `json:"orders"`
	Payment     []Payment       `json:"payment"`
	OrderDate   time.Time       `json:"order_date"`
	OrderNotes  []Note          `json:"order_notes"`
	Salesperson string          `json:"salesperson"`
	Kiosk       string          `json:"kiosk"`
}

// QuantityAlterationIntent is a transient instruction to adjust stock for
// one line item at its origin store. Intents are derived at creation time,
// applied once the transaction record is durable, and then discarded; they
// are never persisted.
type QuantityAlterationIntent struct {
	VariantCode string
	ProductSKU  string
	StoreCode   string
	StoreID     string
	Type        TransactionType
	Quantity    float64
}

// Delta is the signed stock adjustment this intent requests.
func (i QuantityAlterationIntent) Delta() float64 {
	return i.Quantity * float64(i.Type.StockSign())
}
