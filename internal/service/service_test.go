package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"opentill/backend/internal/cache"
	"opentill/backend/internal/domain"
	"opentill/backend/internal/reconcile"
	"opentill/backend/internal/store"
	"opentill/backend/internal/store/memory"
)

func fullAccessSession() domain.Session {
	return domain.Session{
		ID:  "sess-1",
		Key: "key-1",
		Employee: domain.Employee{
			ID:   "emp-1",
			Name: "Alex",
			Level: []domain.Access{
				{Action: domain.ActionCreateTransaction, Authority: 1},
				{Action: domain.ActionModifyTransaction, Authority: 1},
				{Action: domain.ActionDeleteTransaction, Authority: 1},
				{Action: domain.ActionFetchTransaction, Authority: 1},
				{Action: domain.ActionCreatePromotion, Authority: 1},
				{Action: domain.ActionModifyPromotion, Authority: 1},
				{Action: domain.ActionFetchPromotion, Authority: 1},
			},
		},
		Expiry: time.Now().Add(time.Hour),
	}
}

func newTestService() (*Service, *memory.Store) {
	repo := memory.NewSeeded()
	rec := reconcile.New(repo, nil)
	svc := New(repo, rec, cache.NoopPromotionCache{}, 5*time.Second, nil)
	return svc, repo
}

func saleInput(paid decimal.Decimal) domain.TransactionInput {
	return domain.TransactionInput{
		Customer: "cust-1",
		Type:     domain.TransactionSale,
		Orders: []domain.Order{{
			Origin:      domain.Location{StoreCode: "001", StoreID: "store-001"},
			Destination: domain.Location{StoreCode: "001", StoreID: "store-001"},
			Products: []domain.ProductPurchase{{
				ProductCode: "654321-STD",
				ProductSKU:  "654321",
				Name:        "Kayak",
				Quantity:    2,
				UnitCost:    decimal.NewFromInt(50),
				Discount:    domain.PercentageDiscount(0),
			}},
			Discount: domain.PercentageDiscount(0),
		}},
		Payment:     []domain.Payment{{Amount: paid, Method: "card"}},
		Salesperson: "emp-1",
		Kiosk:       "kiosk-2",
	}
}

func TestCreateTransactionRejectsPaymentMismatch(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	_, err := svc.CreateTransaction(ctx, saleInput(decimal.NewFromInt(90)), fullAccessSession())
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}

	// Validation failures must leave stock untouched.
	level, err := repo.StockLevel(ctx, "store-001", "654321-STD")
	if err != nil {
		t.Fatalf("stock level: %v", err)
	}
	if level != 40 {
		t.Fatalf("stock moved on failed validation: got %v, want 40", level)
	}
}

func TestCreateTransactionToleratesSubTenCentRounding(t *testing.T) {
	svc, _ := newTestService()

	tx, err := svc.CreateTransaction(context.Background(), saleInput(decimal.NewFromFloat(100.05)), fullAccessSession())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !tx.OrderTotal.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("order total: got %s, want 100", tx.OrderTotal)
	}
}

func TestCreateTransactionAppliesStockAfterSave(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	tx, err := svc.CreateTransaction(ctx, saleInput(decimal.NewFromInt(100)), fullAccessSession())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	level, err := repo.StockLevel(ctx, "store-001", "654321-STD")
	if err != nil {
		t.Fatalf("stock level: %v", err)
	}
	if level != 38 {
		t.Fatalf("stock after sale of 2: got %v, want 38", level)
	}

	if len(tx.Orders) != 1 {
		t.Fatalf("orders: got %d, want 1", len(tx.Orders))
	}
	order := tx.Orders[0]
	if order.Reference == "" || order.ID == "" {
		t.Fatalf("order identity not assigned: %+v", order)
	}
	if order.Status.Kind != domain.StatusQueued {
		t.Fatalf("initial status: got %q, want queued", order.Status.Kind)
	}
	if len(order.StatusHistory) != 1 {
		t.Fatalf("status history: got %d entries, want 1", len(order.StatusHistory))
	}
	if got := len(order.Products[0].Instances); got != 2 {
		t.Fatalf("pick instances: got %d, want 2", got)
	}
	for _, instance := range order.Products[0].Instances {
		if instance.PickStatus != domain.PickPending {
			t.Fatalf("instance status: got %q, want pending", instance.PickStatus)
		}
	}
}

func TestCreateTransactionReturnDirectionRestocks(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	input := saleInput(decimal.NewFromInt(100))
	input.Type = domain.TransactionReturn

	if _, err := svc.CreateTransaction(ctx, input, fullAccessSession()); err != nil {
		t.Fatalf("create return: %v", err)
	}

	level, _ := repo.StockLevel(ctx, "store-001", "654321-STD")
	if level != 42 {
		t.Fatalf("stock after return of 2: got %v, want 42", level)
	}
}

func TestCreateTransactionSavedMovesNoStock(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	input := saleInput(decimal.NewFromInt(100))
	input.Type = domain.TransactionSaved

	if _, err := svc.CreateTransaction(ctx, input, fullAccessSession()); err != nil {
		t.Fatalf("create saved: %v", err)
	}

	level, _ := repo.StockLevel(ctx, "store-001", "654321-STD")
	if level != 40 {
		t.Fatalf("saved cart moved stock: got %v, want 40", level)
	}

	saved, err := svc.FetchSavedTransactions(ctx, fullAccessSession())
	if err != nil {
		t.Fatalf("fetch saved: %v", err)
	}
	if len(saved) != 1 {
		t.Fatalf("saved transactions: got %d, want 1", len(saved))
	}
}

func TestCreateTransactionRequiresPermission(t *testing.T) {
	svc, _ := newTestService()

	sess := fullAccessSession()
	sess.Employee.Level = nil

	_, err := svc.CreateTransaction(context.Background(), saleInput(decimal.NewFromInt(100)), sess)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestExpiredSessionIsRejected(t *testing.T) {
	svc, _ := newTestService()

	sess := fullAccessSession()
	sess.Expiry = time.Now().Add(-time.Minute)

	_, err := svc.FetchSavedTransactions(context.Background(), sess)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for expired session, got %v", err)
	}
}

func TestUpdateOrderStatusAppendsHistory(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	tx, err := svc.CreateTransaction(ctx, saleInput(decimal.NewFromInt(100)), fullAccessSession())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	ref := tx.Orders[0].Reference

	updated, err := svc.UpdateOrderStatus(ctx, tx.ID, ref, domain.ProcessingSince(time.Now().UTC()), fullAccessSession())
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	updated, err = svc.UpdateOrderStatus(ctx, updated.ID, ref, domain.Fulfilled(), fullAccessSession())
	if err != nil {
		t.Fatalf("update status: %v", err)
	}

	order := updated.Orders[0]
	if order.Status.Kind != domain.StatusFulfilled {
		t.Fatalf("status: got %q, want fulfilled", order.Status.Kind)
	}
	if len(order.StatusHistory) != 3 {
		t.Fatalf("history length: got %d, want 3", len(order.StatusHistory))
	}
	if order.StatusHistory[1].Status.Kind != domain.StatusProcessing {
		t.Fatalf("history[1]: got %q, want processing", order.StatusHistory[1].Status.Kind)
	}
}

func TestUpdateOrderStatusUnknownOrder(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	tx, err := svc.CreateTransaction(ctx, saleInput(decimal.NewFromInt(100)), fullAccessSession())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = svc.UpdateOrderStatus(ctx, tx.ID, "no-such-order", domain.Fulfilled(), fullAccessSession())
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateLineItemStatusEnforcesTransitions(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	sess := fullAccessSession()

	tx, err := svc.CreateTransaction(ctx, saleInput(decimal.NewFromInt(100)), sess)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	order := tx.Orders[0]
	product := order.Products[0]
	instance := product.Instances[0]

	// pending -> picked skips processing and must be rejected.
	_, err = svc.UpdateLineItemStatus(ctx, tx.ID, order.Reference, product.ID, instance.ID, domain.PickPicked, sess)
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid transition, got %v", err)
	}

	updated, err := svc.UpdateLineItemStatus(ctx, tx.ID, order.Reference, product.ID, instance.ID, domain.PickProcessing, sess)
	if err != nil {
		t.Fatalf("pending -> processing: %v", err)
	}
	updated, err = svc.UpdateLineItemStatus(ctx, updated.ID, order.Reference, product.ID, instance.ID, domain.PickPicked, sess)
	if err != nil {
		t.Fatalf("processing -> picked: %v", err)
	}

	got := updated.Orders[0].Products[0].Instances[0].PickStatus
	if got != domain.PickPicked {
		t.Fatalf("instance status: got %q, want picked", got)
	}

	// picked is terminal.
	_, err = svc.UpdateLineItemStatus(ctx, updated.ID, order.Reference, product.ID, instance.ID, domain.PickFailed, sess)
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected terminal state rejection, got %v", err)
	}
}

func TestDeleteTransactionLeavesStockAlone(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	sess := fullAccessSession()

	tx, err := svc.CreateTransaction(ctx, saleInput(decimal.NewFromInt(100)), sess)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.DeleteTransaction(ctx, tx.ID, sess); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := svc.FetchTransaction(ctx, tx.ID, sess); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}

	level, _ := repo.StockLevel(ctx, "store-001", "654321-STD")
	if level != 38 {
		t.Fatalf("delete reversed stock: got %v, want 38", level)
	}
}

func TestDeliverableOrdersFiltersTerminal(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	sess := fullAccessSession()

	tx, err := svc.CreateTransaction(ctx, saleInput(decimal.NewFromInt(100)), sess)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	orders, err := svc.DeliverableOrders(ctx, "store-001", sess)
	if err != nil {
		t.Fatalf("deliverable: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("deliverable orders: got %d, want 1", len(orders))
	}

	if _, err := svc.UpdateOrderStatus(ctx, tx.ID, tx.Orders[0].Reference, domain.Fulfilled(), sess); err != nil {
		t.Fatalf("fulfill: %v", err)
	}

	orders, err = svc.DeliverableOrders(ctx, "store-001", sess)
	if err != nil {
		t.Fatalf("deliverable: %v", err)
	}
	if len(orders) != 0 {
		t.Fatalf("fulfilled order still deliverable: got %d", len(orders))
	}
}

func TestEvaluateCartMatchesSeededCatalog(t *testing.T) {
	svc, _ := newTestService()

	cart := []domain.ProductPurchase{
		{
			ID:         "line-kayak",
			ProductSKU: "654321",
			Name:       "Kayak",
			Quantity:   1,
			UnitCost:   decimal.NewFromInt(400),
		},
		{
			ID:         "line-jacket",
			ProductSKU: "162534",
			Name:       "Life Jacket",
			Quantity:   1,
			UnitCost:   decimal.NewFromInt(50),
		},
	}

	eval, err := svc.EvaluateCart(context.Background(), cart, fullAccessSession())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	if !eval.CartTotal.Equal(decimal.NewFromInt(450)) {
		t.Fatalf("cart total: got %s, want 450", eval.CartTotal)
	}
	if !eval.Discount.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("discount: got %s, want 25", eval.Discount)
	}
	if !eval.DiscountedTotal.Equal(decimal.NewFromInt(425)) {
		t.Fatalf("discounted total: got %s, want 425", eval.DiscountedTotal)
	}
}

func TestPromotionLifecycle(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	sess := fullAccessSession()

	promo, err := svc.CreatePromotion(ctx, domain.PromotionInput{
		Name:      "Weekend kayak deal",
		Buy:       domain.PromotionBuy{Kind: domain.BuySpecific, SKU: "654321", Quantity: 1},
		Get:       domain.PromotionGet{Kind: domain.GetSoloThis, Discount: domain.PercentageDiscount(20)},
		ValidTill: time.Now().Add(48 * time.Hour),
	}, sess)
	if err != nil {
		t.Fatalf("create promotion: %v", err)
	}
	if promo.ID == "" {
		t.Fatal("promotion id not assigned")
	}

	promo.Name = "Weekend kayak deal v2"
	updated, err := svc.UpdatePromotion(ctx, domain.PromotionInput{
		Name:      promo.Name,
		Buy:       promo.Buy,
		Get:       promo.Get,
		ValidTill: promo.ValidTill,
	}, promo.ID, sess)
	if err != nil {
		t.Fatalf("update promotion: %v", err)
	}
	if updated.Name != "Weekend kayak deal v2" {
		t.Fatalf("updated name: got %q", updated.Name)
	}

	all, err := svc.ListPromotions(ctx, sess)
	if err != nil {
		t.Fatalf("list promotions: %v", err)
	}
	// Three seeded examples plus the one created here.
	if len(all) != 4 {
		t.Fatalf("promotions: got %d, want 4", len(all))
	}
}

func TestGenerateTransactionNeedsNoPrivileges(t *testing.T) {
	svc, _ := newTestService()

	sess := fullAccessSession()
	sess.Employee.Level = nil

	tx, err := svc.GenerateTransaction(context.Background(), "cust-demo", sess)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if tx.Type != domain.TransactionSale {
		t.Fatalf("generated type: got %q, want sale", tx.Type)
	}
	if len(tx.Orders) == 0 || len(tx.Orders[0].Products) == 0 {
		t.Fatal("generated transaction has no line items")
	}
}

func TestCreateTransactionRejectsUnknownType(t *testing.T) {
	svc, _ := newTestService()

	input := saleInput(decimal.NewFromInt(100))
	input.Type = domain.TransactionType("layaway")

	_, err := svc.CreateTransaction(context.Background(), input, fullAccessSession())
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
