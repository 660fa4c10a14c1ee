package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"opentill/backend/internal/cache"
	"opentill/backend/internal/domain"
	"opentill/backend/internal/promotion"
	"opentill/backend/internal/reconcile"
	"opentill/backend/internal/store"
	"opentill/backend/internal/xid"
)

var ErrUnauthorized = errors.New("unauthorized")

// paymentTolerance is the maximum absolute difference allowed between the
// sum of payments and the computed cost of a transaction at creation time.
var paymentTolerance = decimal.NewFromFloat(0.1)

const activePromotionsKey = "opentill:promotions:active"

// Service orchestrates transaction processing: authorization, payment
// validation, promotion evaluation, stock-intent derivation and the
// fulfillment state machine. All mutating operations take an explicit
// Session; there is no ambient current-user state.
type Service struct {
	repo       store.Repository
	reconciler *reconcile.Reconciler
	promoCache cache.PromotionCache
	promoTTL   time.Duration
	logger     *zap.Logger
}

func New(repo store.Repository, reconciler *reconcile.Reconciler, promoCache cache.PromotionCache, promoTTL time.Duration, logger *zap.Logger) *Service {
	if promoCache == nil {
		promoCache = cache.NoopPromotionCache{}
	}
	if promoTTL <= 0 {
		promoTTL = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		repo:       repo,
		reconciler: reconciler,
		promoCache: promoCache,
		promoTTL:   promoTTL,
		logger:     logger,
	}
}

func (s *Service) authorize(sess domain.Session, action domain.Action) error {
	if sess.Expired(time.Now().UTC()) {
		return fmt.Errorf("%w: session expired", ErrUnauthorized)
	}
	if !sess.HasPermission(action) {
		return fmt.Errorf("%w: missing %s permission", ErrUnauthorized, action)
	}
	return nil
}

// CreateTransaction validates payment against computed cost, persists the
// transaction and then applies the derived stock intents. Stock is never
// touched before the record is durable. A *reconcile.Error return means the
// transaction was recorded but one or more stock adjustments failed; the
// transaction is still returned alongside the error.
func (s *Service) CreateTransaction(ctx context.Context, input domain.TransactionInput, sess domain.Session) (*domain.Transaction, error) {
	if err := s.authorize(sess, domain.ActionCreateTransaction); err != nil {
		return nil, err
	}
	if !input.Type.IsValid() {
		return nil, fmt.Errorf("%w: unknown transaction type %q", store.ErrInvalidInput, input.Type)
	}
	if len(input.Orders) == 0 {
		return nil, fmt.Errorf("%w: transaction has no orders", store.ErrInvalidInput)
	}

	intents := reconcile.DeriveIntents(input)

	totalPaid := decimal.Zero
	for _, payment := range input.Payment {
		totalPaid = totalPaid.Add(payment.Amount)
	}
	totalCost := computeCost(input.Orders)

	if totalPaid.Sub(totalCost).Abs().GreaterThan(paymentTolerance) {
		return nil, fmt.Errorf("%w: payment amount does not match product costs (paid %s, cost %s)",
			store.ErrInvalidInput, totalPaid, totalCost)
	}

	now := time.Now().UTC()
	tx := domain.Transaction{
		ID:          uuid.NewString(),
		Customer:    input.Customer,
		Type:        input.Type,
		Orders:      prepareOrders(input.Orders, now),
		OrderTotal:  totalCost,
		Payment:     input.Payment,
		OrderDate:   orderDateOr(input.OrderDate, now),
		OrderNotes:  input.OrderNotes,
		Salesperson: input.Salesperson,
		Kiosk:       input.Kiosk,
	}

	id, err := s.repo.SaveTransaction(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("persist transaction: %w", err)
	}

	// Stock mutation happens strictly after the durable save. A failure
	// here leaves the transaction recorded and stock partially adjusted;
	// the distinct error type makes that state visible to operators.
	recErr := s.reconciler.Apply(ctx, intents)

	created, err := s.repo.FindTransactionByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch created transaction: %w", err)
	}

	s.logger.Info("transaction created",
		zap.String("id", created.ID),
		zap.String("type", string(created.Type)),
		zap.String("total", created.OrderTotal.String()),
		zap.Int("orders", len(created.Orders)),
		zap.String("salesperson", created.Salesperson),
	)

	if recErr != nil {
		return created, recErr
	}
	return created, nil
}

// UpdateTransaction replaces the body of an existing transaction and
// recomputes its total. Payment-vs-cost is validated only at creation;
// updates do not move stock.
func (s *Service) UpdateTransaction(ctx context.Context, input domain.TransactionInput, id string, sess domain.Session) (*domain.Transaction, error) {
	if err := s.authorize(sess, domain.ActionModifyTransaction); err != nil {
		return nil, err
	}
	if !input.Type.IsValid() {
		return nil, fmt.Errorf("%w: unknown transaction type %q", store.ErrInvalidInput, input.Type)
	}

	existing, err := s.repo.FindTransactionByID(ctx, id)
	if err != nil {
		return nil, err
	}

	existing.Customer = input.Customer
	existing.Type = input.Type
	existing.Orders = input.Orders
	existing.OrderTotal = computeCost(input.Orders)
	existing.Payment = input.Payment
	existing.OrderDate = orderDateOr(input.OrderDate, existing.OrderDate)
	existing.OrderNotes = input.OrderNotes
	existing.Salesperson = input.Salesperson
	existing.Kiosk = input.Kiosk

	return s.repo.UpdateTransaction(ctx, *existing)
}

// UpdateOrderStatus sets a new status on the order matching the reference
// and appends it to the status history. Any status may follow any other;
// the history itself is append-only.
func (s *Service) UpdateOrderStatus(ctx context.Context, transactionID string, orderRef string, status domain.OrderStatus, sess domain.Session) (*domain.Transaction, error) {
	if err := s.authorize(sess, domain.ActionModifyTransaction); err != nil {
		return nil, err
	}
	if !validStatusKind(status.Kind) {
		return nil, fmt.Errorf("%w: unknown order status %q", store.ErrInvalidInput, status.Kind)
	}

	tx, err := s.repo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	found := false
	for i := range tx.Orders {
		if tx.Orders[i].Reference == orderRef || tx.Orders[i].ID == orderRef {
			tx.Orders[i].SetStatus(status, time.Now().UTC())
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: order %q", store.ErrNotFound, orderRef)
	}

	return s.repo.UpdateTransaction(ctx, *tx)
}

// UpdateLineItemStatus moves one product instance through the pick state
// machine. Unlike order statuses, pick transitions are validated: picked
// and failed are terminal.
func (s *Service) UpdateLineItemStatus(ctx context.Context, transactionID string, orderRef string, productID string, instanceID string, status domain.PickStatus, sess domain.Session) (*domain.Transaction, error) {
	if err := s.authorize(sess, domain.ActionModifyTransaction); err != nil {
		return nil, err
	}
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: unknown pick status %q", store.ErrInvalidInput, status)
	}

	tx, err := s.repo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	instance, err := locateInstance(tx, orderRef, productID, instanceID)
	if err != nil {
		return nil, err
	}
	if !instance.PickStatus.CanTransitionTo(status) {
		return nil, fmt.Errorf("%w: pick status cannot move from %q to %q",
			store.ErrInvalidInput, instance.PickStatus, status)
	}
	instance.PickStatus = status

	return s.repo.UpdateTransaction(ctx, *tx)
}

// DeleteTransaction removes the record. Previously applied stock intents
// are not reversed; deletion is administrative cleanup, not a compensating
// transaction.
func (s *Service) DeleteTransaction(ctx context.Context, id string, sess domain.Session) error {
	if err := s.authorize(sess, domain.ActionDeleteTransaction); err != nil {
		return err
	}
	return s.repo.DeleteTransaction(ctx, id)
}

func (s *Service) FetchTransaction(ctx context.Context, id string, sess domain.Session) (*domain.Transaction, error) {
	if err := s.authorize(sess, domain.ActionFetchTransaction); err != nil {
		return nil, err
	}
	return s.repo.FindTransactionByID(ctx, id)
}

func (s *Service) FetchTransactionsByRef(ctx context.Context, ref string, sess domain.Session) ([]domain.Transaction, error) {
	if err := s.authorize(sess, domain.ActionFetchTransaction); err != nil {
		return nil, err
	}
	return s.repo.FindTransactionsByRef(ctx, ref)
}

func (s *Service) FetchTransactionsByProductSKU(ctx context.Context, sku string, sess domain.Session) ([]domain.Transaction, error) {
	if err := s.authorize(sess, domain.ActionFetchTransaction); err != nil {
		return nil, err
	}
	return s.repo.FindTransactionsByProductSKU(ctx, sku)
}

func (s *Service) FetchSavedTransactions(ctx context.Context, sess domain.Session) ([]domain.Transaction, error) {
	if err := s.authorize(sess, domain.ActionFetchTransaction); err != nil {
		return nil, err
	}
	return s.repo.FindSavedTransactions(ctx)
}

// DeliverableOrders lists the not-yet-terminal sale orders destined for a
// store, for pick-and-dispatch screens.
func (s *Service) DeliverableOrders(ctx context.Context, storeID string, sess domain.Session) ([]domain.Order, error) {
	if err := s.authorize(sess, domain.ActionFetchTransaction); err != nil {
		return nil, err
	}
	return s.repo.DeliverableOrders(ctx, storeID)
}

// CartEvaluation is the result of running the promotion catalog against a
// cart before checkout.
type CartEvaluation struct {
	Matches         []promotion.Match `json:"matches"`
	CartTotal       decimal.Decimal   `json:"cart_total"`
	Discount        decimal.Decimal   `json:"discount"`
	DiscountedTotal decimal.Decimal   `json:"discounted_total"`
}

// EvaluateCart matches the active promotion catalog against a cart.
// Matching promotions stack additively; no best-offer selection happens.
func (s *Service) EvaluateCart(ctx context.Context, cart []domain.ProductPurchase, sess domain.Session) (*CartEvaluation, error) {
	if err := s.authorize(sess, domain.ActionFetchPromotion); err != nil {
		return nil, err
	}

	asOf := time.Now().UTC()
	catalog, err := s.activePromotions(ctx, asOf)
	if err != nil {
		return nil, err
	}

	matches := promotion.Evaluate(cart, catalog, asOf)
	total := decimal.Zero
	for _, line := range cart {
		total = total.Add(line.UnitCost.Mul(decimal.NewFromFloat(line.Quantity)))
	}
	discount := promotion.TotalDiscount(matches)

	return &CartEvaluation{
		Matches:         matches,
		CartTotal:       total,
		Discount:        discount,
		DiscountedTotal: total.Sub(discount),
	}, nil
}

func (s *Service) activePromotions(ctx context.Context, asOf time.Time) ([]domain.Promotion, error) {
	if cached, ok, err := s.promoCache.Get(ctx, activePromotionsKey); err == nil && ok {
		return cached, nil
	}

	catalog, err := s.repo.ActivePromotions(ctx, asOf)
	if err != nil {
		return nil, err
	}
	if err := s.promoCache.Set(ctx, activePromotionsKey, catalog, s.promoTTL); err != nil {
		s.logger.Warn("promotion cache set failed", zap.Error(err))
	}
	return catalog, nil
}

func (s *Service) CreatePromotion(ctx context.Context, input domain.PromotionInput, sess domain.Session) (*domain.Promotion, error) {
	if err := s.authorize(sess, domain.ActionCreatePromotion); err != nil {
		return nil, err
	}
	if input.Name == "" || input.ValidTill.IsZero() {
		return nil, fmt.Errorf("%w: promotion requires a name and a validity window", store.ErrInvalidInput)
	}

	promo := domain.Promotion{
		ID:        uuid.NewString(),
		Name:      input.Name,
		Buy:       input.Buy,
		Get:       input.Get,
		ValidTill: input.ValidTill,
		Timestamp: timestampOr(input.Timestamp),
	}

	created, err := s.repo.CreatePromotion(ctx, promo)
	if err != nil {
		return nil, err
	}
	s.invalidatePromotions(ctx)
	return created, nil
}

func (s *Service) UpdatePromotion(ctx context.Context, input domain.PromotionInput, id string, sess domain.Session) (*domain.Promotion, error) {
	if err := s.authorize(sess, domain.ActionModifyPromotion); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetPromotionByID(ctx, id)
	if err != nil {
		return nil, err
	}

	existing.Name = input.Name
	existing.Buy = input.Buy
	existing.Get = input.Get
	existing.ValidTill = input.ValidTill
	existing.Timestamp = timestampOr(input.Timestamp)

	updated, err := s.repo.UpdatePromotion(ctx, *existing)
	if err != nil {
		return nil, err
	}
	s.invalidatePromotions(ctx)
	return updated, nil
}

func (s *Service) ListPromotions(ctx context.Context, sess domain.Session) ([]domain.Promotion, error) {
	if err := s.authorize(sess, domain.ActionFetchPromotion); err != nil {
		return nil, err
	}
	return s.repo.ListPromotions(ctx)
}

// GeneratePromotions seeds the example promotion catalog. The generate
// action is open to any session by design.
func (s *Service) GeneratePromotions(ctx context.Context, sess domain.Session) ([]domain.Promotion, error) {
	if err := s.authorize(sess, domain.ActionGenerateTemplateContent); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for _, input := range promotion.Examples(now) {
		promo := domain.Promotion{
			ID:        uuid.NewString(),
			Name:      input.Name,
			Buy:       input.Buy,
			Get:       input.Get,
			ValidTill: input.ValidTill,
			Timestamp: input.Timestamp,
		}
		if _, err := s.repo.CreatePromotion(ctx, promo); err != nil {
			return nil, err
		}
	}
	s.invalidatePromotions(ctx)
	return s.repo.ListPromotions(ctx)
}

// GenerateTransaction creates a template sale for demo environments.
func (s *Service) GenerateTransaction(ctx context.Context, customer string, sess domain.Session) (*domain.Transaction, error) {
	if err := s.authorize(sess, domain.ActionGenerateTemplateContent); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	cost := decimal.NewFromInt(115)
	input := domain.TransactionInput{
		Customer: customer,
		Type:     domain.TransactionSale,
		Orders: []domain.Order{{
			Origin:      domain.Location{StoreCode: "001", StoreID: "store-001"},
			Destination: domain.Location{StoreCode: "001", StoreID: "store-001"},
			Products: []domain.ProductPurchase{{
				ProductCode: "445566-STD",
				ProductSKU:  "445566",
				Name:        "Torpedo7 Aero Pump",
				Quantity:    1,
				UnitCost:    cost,
			}},
			Discount: domain.PercentageDiscount(0),
		}},
		Payment:     []domain.Payment{{Amount: cost, Method: "card"}},
		OrderDate:   now,
		Salesperson: sess.Employee.ID,
		Kiosk:       "demo-kiosk",
	}

	intents := reconcile.DeriveIntents(input)
	tx := domain.Transaction{
		ID:          uuid.NewString(),
		Customer:    input.Customer,
		Type:        input.Type,
		Orders:      prepareOrders(input.Orders, now),
		OrderTotal:  computeCost(input.Orders),
		Payment:     input.Payment,
		OrderDate:   now,
		Salesperson: input.Salesperson,
		Kiosk:       input.Kiosk,
	}

	id, err := s.repo.SaveTransaction(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("persist transaction: %w", err)
	}
	if err := s.reconciler.Apply(ctx, intents); err != nil {
		return nil, err
	}
	return s.repo.FindTransactionByID(ctx, id)
}

// computeCost applies discounts innermost-first: per line item, then per
// order, summed across the transaction.
func computeCost(orders []domain.Order) decimal.Decimal {
	total := decimal.Zero
	for _, order := range orders {
		orderSum := decimal.Zero
		for _, line := range order.Products {
			gross := line.UnitCost.Mul(decimal.NewFromFloat(line.Quantity))
			orderSum = orderSum.Add(line.Discount.Apply(gross))
		}
		total = total.Add(order.Discount.Apply(orderSum))
	}
	return total
}

// prepareOrders assigns identities and seeds fulfillment state on incoming
// orders: a fresh status history, one pending pick instance per whole unit,
// and reference codes for till lookup.
func prepareOrders(orders []domain.Order, now time.Time) []domain.Order {
	prepared := make([]domain.Order, len(orders))
	for i, order := range orders {
		if order.ID == "" {
			order.ID = uuid.NewString()
		}
		if order.Reference == "" {
			order.Reference = xid.New("ord")
		}
		if order.CreationDate.IsZero() {
			order.CreationDate = now
		}
		if order.Status.Kind == "" {
			order.Status = domain.Queued()
		}
		if len(order.StatusHistory) == 0 {
			order.StatusHistory = []domain.OrderState{{Date: now, Status: order.Status}}
		}
		for j, product := range order.Products {
			if product.ID == "" {
				product.ID = uuid.NewString()
			}
			if len(product.Instances) == 0 {
				count := int(product.Quantity)
				instances := make([]domain.ProductInstance, 0, count)
				for k := 0; k < count; k++ {
					instances = append(instances, domain.ProductInstance{
						ID:         uuid.NewString(),
						PickStatus: domain.PickPending,
					})
				}
				product.Instances = instances
			}
			order.Products[j] = product
		}
		prepared[i] = order
	}
	return prepared
}

func locateInstance(tx *domain.Transaction, orderRef string, productID string, instanceID string) (*domain.ProductInstance, error) {
	for i := range tx.Orders {
		order := &tx.Orders[i]
		if order.Reference != orderRef && order.ID != orderRef {
			continue
		}
		for j := range order.Products {
			product := &order.Products[j]
			if product.ID != productID {
				continue
			}
			for k := range product.Instances {
				if product.Instances[k].ID == instanceID {
					return &product.Instances[k], nil
				}
			}
			return nil, fmt.Errorf("%w: instance %q", store.ErrNotFound, instanceID)
		}
		return nil, fmt.Errorf("%w: product %q", store.ErrNotFound, productID)
	}
	return nil, fmt.Errorf("%w: order %q", store.ErrNotFound, orderRef)
}

func (s *Service) invalidatePromotions(ctx context.Context) {
	if err := s.promoCache.Invalidate(ctx, activePromotionsKey); err != nil {
		s.logger.Warn("promotion cache invalidation failed", zap.Error(err))
	}
}

func validStatusKind(kind domain.OrderStatusKind) bool {
	switch kind {
	case domain.StatusQueued, domain.StatusTransit, domain.StatusProcessing,
		domain.StatusInStore, domain.StatusFulfilled, domain.StatusFailed:
		return true
	default:
		return false
	}
}

func orderDateOr(candidate time.Time, fallback time.Time) time.Time {
	if candidate.IsZero() {
		return fallback
	}
	return candidate.UTC()
}

func timestampOr(candidate time.Time) time.Time {
	if candidate.IsZero() {
		return time.Now().UTC()
	}
	return candidate.UTC()
}
