package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"opentill/backend/internal/domain"
	"opentill/backend/internal/store"
)

// Store is the PostgreSQL Repository. Tagged-union fields (orders, payment,
// promotion criteria) live in JSONB columns and are decoded through the
// domain types, so an invalid stored shape surfaces as a decode error.
type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) SaveTransaction(ctx context.Context, tx domain.Transaction) (string, error) {
	if tx.ID == "" {
		return "", store.ErrInvalidInput
	}

	orders, payment, notes, err := encodeTransactionBody(tx)
	if err != nil {
		return "", err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transactions (id, customer, transaction_type, orders, order_total, payment, order_date, order_notes, salesperson, kiosk)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, tx.ID, tx.Customer, string(tx.Type), orders, tx.OrderTotal, payment, tx.OrderDate, notes, tx.Salesperson, tx.Kiosk)
	if err != nil {
		return "", err
	}
	return tx.ID, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if tx.ID == "" {
		return nil, store.ErrInvalidInput
	}

	orders, payment, notes, err := encodeTransactionBody(tx)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET customer = $2, transaction_type = $3, orders = $4, order_total = $5,
		    payment = $6, order_date = $7, order_notes = $8, salesperson = $9, kiosk = $10
		WHERE id = $1
	`, tx.ID, tx.Customer, string(tx.Type), orders, tx.OrderTotal, payment, tx.OrderDate, notes, tx.Salesperson, tx.Kiosk)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.FindTransactionByID(ctx, tx.ID)
}

func (s *Store) FindTransactionByID(ctx context.Context, id string) (*domain.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, customer, transaction_type, orders, order_total, payment, order_date, order_notes, salesperson, kiosk
		FROM transactions
		WHERE id = $1
	`, id)

	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return tx, nil
}

func (s *Store) FindTransactionsByRef(ctx context.Context, ref string) ([]domain.Transaction, error) {
	return s.queryTransactions(ctx, `
		SELECT id, customer, transaction_type, orders, order_total, payment, order_date, order_notes, salesperson, kiosk
		FROM transactions
		WHERE EXISTS (
			SELECT 1 FROM jsonb_array_elements(orders) AS o
			WHERE o->>'reference' = $1
		)
	`, ref)
}

func (s *Store) FindTransactionsByProductSKU(ctx context.Context, sku string) ([]domain.Transaction, error) {
	return s.queryTransactions(ctx, `
		SELECT id, customer, transaction_type, orders, order_total, payment, order_date, order_notes, salesperson, kiosk
		FROM transactions
		WHERE EXISTS (
			SELECT 1
			FROM jsonb_array_elements(orders) AS o,
			     jsonb_array_elements(o->'products') AS p
			WHERE p->>'product_sku' = $1
		)
	`, sku)
}

func (s *Store) FindSavedTransactions(ctx context.Context) ([]domain.Transaction, error) {
	return s.queryTransactions(ctx, `
		SELECT id, customer, transaction_type, orders, order_total, payment, order_date, order_notes, salesperson, kiosk
		FROM transactions
		WHERE transaction_type = $1
	`, string(domain.TransactionSaved))
}

func (s *Store) DeliverableOrders(ctx context.Context, storeID string) ([]domain.Order, error) {
	candidates, err := s.queryTransactions(ctx, `
		SELECT id, customer, transaction_type, orders, order_total, payment, order_date, order_notes, salesperson, kiosk
		FROM transactions
		WHERE transaction_type = $1
		  AND EXISTS (
			SELECT 1 FROM jsonb_array_elements(orders) AS o
			WHERE o->'destination'->>'store_id' = $2
		)
	`, string(domain.TransactionSale), storeID)
	if err != nil {
		return nil, err
	}

	result := make([]domain.Order, 0, len(candidates))
	for _, tx := range candidates {
		for _, order := range tx.Orders {
			if order.Destination.StoreID == storeID && !order.Status.Terminal() {
				result = append(result, order)
			}
		}
	}
	return result, nil
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreatePromotion(ctx context.Context, promo domain.Promotion) (*domain.Promotion, error) {
	if promo.ID == "" || promo.Name == "" {
		return nil, store.ErrInvalidInput
	}

	buy, get, err := encodePromotionCriteria(promo)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO promotions (id, name, buy, get, valid_till, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, promo.ID, promo.Name, buy, get, promo.ValidTill, promo.Timestamp)
	if err != nil {
		return nil, err
	}
	created := promo
	return &created, nil
}

func (s *Store) UpdatePromotion(ctx context.Context, promo domain.Promotion) (*domain.Promotion, error) {
	if promo.ID == "" {
		return nil, store.ErrInvalidInput
	}

	buy, get, err := encodePromotionCriteria(promo)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE promotions
		SET name = $2, buy = $3, get = $4, valid_till = $5, created_at = $6
		WHERE id = $1
	`, promo.ID, promo.Name, buy, get, promo.ValidTill, promo.Timestamp)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := promo
	return &updated, nil
}

func (s *Store) GetPromotionByID(ctx context.Context, id string) (*domain.Promotion, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, buy, get, valid_till, created_at
		FROM promotions
		WHERE id = $1
	`, id)

	promo, err := scanPromotion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return promo, nil
}

func (s *Store) ListPromotions(ctx context.Context) ([]domain.Promotion, error) {
	return s.queryPromotions(ctx, `
		SELECT id, name, buy, get, valid_till, created_at
		FROM promotions
		ORDER BY created_at DESC
	`)
}

func (s *Store) ActivePromotions(ctx context.Context, asOf time.Time) ([]domain.Promotion, error) {
	return s.queryPromotions(ctx, `
		SELECT id, name, buy, get, valid_till, created_at
		FROM promotions
		WHERE valid_till >= $1
		ORDER BY created_at DESC
	`, asOf)
}

// ApplyStockDelta adjusts one (store, variant) row atomically; the upsert
// makes concurrent deltas against the same row serialize inside postgres.
func (s *Store) ApplyStockDelta(ctx context.Context, storeID string, variantCode string, delta float64) error {
	if storeID == "" || variantCode == "" {
		return store.ErrInvalidInput
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stock_levels (store_id, variant_code, quantity, updated_at)
		VALUES ($1,$2,$3,now())
		ON CONFLICT (store_id, variant_code)
		DO UPDATE SET quantity = stock_levels.quantity + EXCLUDED.quantity, updated_at = now()
	`, storeID, variantCode, delta)
	return err
}

func (s *Store) StockLevel(ctx context.Context, storeID string, variantCode string) (float64, error) {
	var qty float64
	err := s.db.QueryRowContext(ctx, `
		SELECT quantity FROM stock_levels
		WHERE store_id = $1 AND variant_code = $2
	`, storeID, variantCode).Scan(&qty)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return qty, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Transaction, 0, 16)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		tx      domain.Transaction
		txType  string
		orders  []byte
		total   decimal.Decimal
		payment []byte
		notes   []byte
	)
	if err := row.Scan(&tx.ID, &tx.Customer, &txType, &orders, &total, &payment, &tx.OrderDate, &notes, &tx.Salesperson, &tx.Kiosk); err != nil {
		return nil, err
	}

	tx.Type = domain.TransactionType(txType)
	tx.OrderTotal = total
	tx.OrderDate = tx.OrderDate.UTC()
	if err := json.Unmarshal(orders, &tx.Orders); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payment, &tx.Payment); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(notes, &tx.OrderNotes); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (s *Store) queryPromotions(ctx context.Context, query string, args ...any) ([]domain.Promotion, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Promotion, 0, 16)
	for rows.Next() {
		promo, err := scanPromotion(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *promo)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanPromotion(row rowScanner) (*domain.Promotion, error) {
	var (
		promo domain.Promotion
		buy   []byte
		get   []byte
	)
	if err := row.Scan(&promo.ID, &promo.Name, &buy, &get, &promo.ValidTill, &promo.Timestamp); err != nil {
		return nil, err
	}

	promo.ValidTill = promo.ValidTill.UTC()
	promo.Timestamp = promo.Timestamp.UTC()
	if err := json.Unmarshal(buy, &promo.Buy); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(get, &promo.Get); err != nil {
		return nil, err
	}
	return &promo, nil
}

func encodeTransactionBody(tx domain.Transaction) (orders []byte, payment []byte, notes []byte, err error) {
	if orders, err = json.Marshal(tx.Orders); err != nil {
		return nil, nil, nil, err
	}
	if payment, err = json.Marshal(tx.Payment); err != nil {
		return nil, nil, nil, err
	}
	if tx.OrderNotes == nil {
		tx.OrderNotes = []domain.Note{}
	}
	if notes, err = json.Marshal(tx.OrderNotes); err != nil {
		return nil, nil, nil, err
	}
	return orders, payment, notes, nil
}

func encodePromotionCriteria(promo domain.Promotion) (buy []byte, get []byte, err error) {
	if buy, err = json.Marshal(promo.Buy); err != nil {
		return nil, nil, err
	}
	if get, err = json.Marshal(promo.Get); err != nil {
		return nil, nil, err
	}
	return buy, get, nil
}
