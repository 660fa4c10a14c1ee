package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"opentill/backend/internal/domain"
	"opentill/backend/internal/promotion"
	"opentill/backend/internal/store"
)

type stockKey struct {
	storeID     string
	variantCode string
}

// Store is an in-memory Repository used for development and tests.
type Store struct {
	mu           sync.RWMutex
	transactions map[string]domain.Transaction
	promotions   map[string]domain.Promotion
	stock        map[stockKey]float64
}

func New() *Store {
	return &Store{
		transactions: make(map[string]domain.Transaction),
		promotions:   make(map[string]domain.Promotion),
		stock:        make(map[stockKey]float64),
	}
}

// NewSeeded preloads the example promotion catalog and a few stock rows so
// a fresh process has something to sell against.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	for _, input := range promotion.Examples(now) {
		id := uuid.NewString()
		s.promotions[id] = domain.Promotion{
			ID:        id,
			Name:      input.Name,
			Buy:       input.Buy,
			Get:       input.Get,
			ValidTill: input.ValidTill,
			Timestamp: input.Timestamp,
		}
	}
	for _, row := range []struct {
		variant string
		qty     float64
	}{
		{"654321-STD", 40},
		{"162534-STD", 25},
		{"445566-STD", 120},
	} {
		s.stock[stockKey{storeID: "store-001", variantCode: row.variant}] = row.qty
	}
	return s
}

func (s *Store) SaveTransaction(_ context.Context, tx domain.Transaction) (string, error) {
	if tx.ID == "" {
		return "", store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactions[tx.ID]; exists {
		return "", store.ErrInvalidInput
	}
	s.transactions[tx.ID] = cloneTransaction(tx)
	return tx.ID, nil
}

func (s *Store) UpdateTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if tx.ID == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactions[tx.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.transactions[tx.ID] = cloneTransaction(tx)
	updated := cloneTransaction(tx)
	return &updated, nil
}

func (s *Store) FindTransactionByID(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, exists := s.transactions[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := cloneTransaction(tx)
	return &found, nil
}

func (s *Store) FindTransactionsByRef(_ context.Context, ref string) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transaction, 0, 4)
	for _, tx := range s.transactions {
		for _, order := range tx.Orders {
			if order.Reference == ref {
				result = append(result, cloneTransaction(tx))
				break
			}
		}
	}
	return result, nil
}

func (s *Store) FindTransactionsByProductSKU(_ context.Context, sku string) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transaction, 0, 4)
	for _, tx := range s.transactions {
		if transactionContainsSKU(tx, sku) {
			result = append(result, cloneTransaction(tx))
		}
	}
	return result, nil
}

func (s *Store) FindSavedTransactions(_ context.Context) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transaction, 0, 8)
	for _, tx := range s.transactions {
		if tx.Type == domain.TransactionSaved {
			result = append(result, cloneTransaction(tx))
		}
	}
	return result, nil
}

func (s *Store) DeliverableOrders(_ context.Context, storeID string) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0, 8)
	for _, tx := range s.transactions {
		if tx.Type != domain.TransactionSale {
			continue
		}
		for _, order := range tx.Orders {
			if order.Destination.StoreID == storeID && !order.Status.Terminal() {
				result = append(result, cloneOrder(order))
			}
		}
	}
	return result, nil
}

func (s *Store) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactions[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.transactions, id)
	return nil
}

func (s *Store) CreatePromotion(_ context.Context, promo domain.Promotion) (*domain.Promotion, error) {
	if promo.ID == "" || promo.Name == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.promotions[promo.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	s.promotions[promo.ID] = promo
	created := promo
	return &created, nil
}

func (s *Store) UpdatePromotion(_ context.Context, promo domain.Promotion) (*domain.Promotion, error) {
	if promo.ID == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.promotions[promo.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.promotions[promo.ID] = promo
	updated := promo
	return &updated, nil
}

func (s *Store) GetPromotionByID(_ context.Context, id string) (*domain.Promotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	promo, exists := s.promotions[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := promo
	return &found, nil
}

func (s *Store) ListPromotions(_ context.Context) ([]domain.Promotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Promotion, 0, len(s.promotions))
	for _, promo := range s.promotions {
		result = append(result, promo)
	}
	return result, nil
}

func (s *Store) ActivePromotions(_ context.Context, asOf time.Time) ([]domain.Promotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Promotion, 0, len(s.promotions))
	for _, promo := range s.promotions {
		if promo.Active(asOf) {
			result = append(result, promo)
		}
	}
	return result, nil
}

func (s *Store) ApplyStockDelta(_ context.Context, storeID string, variantCode string, delta float64) error {
	if storeID == "" || variantCode == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stock[stockKey{storeID: storeID, variantCode: variantCode}] += delta
	return nil
}

func (s *Store) StockLevel(_ context.Context, storeID string, variantCode string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.stock[stockKey{storeID: storeID, variantCode: variantCode}], nil
}

func transactionContainsSKU(tx domain.Transaction, sku string) bool {
	for _, order := range tx.Orders {
		for _, product := range order.Products {
			if product.ProductSKU == sku {
				return true
			}
		}
	}
	return false
}

// cloneTransaction copies the slices an order carries so callers cannot
// mutate stored state through returned values.
func cloneTransaction(tx domain.Transaction) domain.Transaction {
	out := tx
	out.Orders = make([]domain.Order, len(tx.Orders))
	for i, order := range tx.Orders {
		out.Orders[i] = cloneOrder(order)
	}
	out.Payment = append([]domain.Payment(nil), tx.Payment...)
	out.OrderNotes = append([]domain.Note(nil), tx.OrderNotes...)
	return out
}

func cloneOrder(order domain.Order) domain.Order {
	out := order
	out.Products = make([]domain.ProductPurchase, len(order.Products))
	for i, product := range order.Products {
		p := product
		p.Tags = append([]string(nil), product.Tags...)
		p.Instances = append([]domain.ProductInstance(nil), product.Instances...)
		out.Products[i] = p
	}
	out.StatusHistory = append([]domain.OrderState(nil), order.StatusHistory...)
	out.OrderNotes = append([]domain.Note(nil), order.OrderNotes...)
	return out
}
