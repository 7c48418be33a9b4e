package memory

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

func newTestOrder(customerID string, status domain.OrderStatus, expiresAt *time.Time) domain.Order {
	now := time.Now().UTC()
	id := uuid.NewString()
	return domain.Order{
		ID:            id,
		Number:        domain.NewOrderNumber(now, id),
		CustomerID:    customerID,
		Status:        status,
		PaymentMethod: domain.PaymentMethodCash,
		Currency:      "USD",
		AmountMinor:   1000,
		Items: []domain.LineItem{{
			ID:         uuid.NewString(),
			UnitID:     "unit-1",
			SKU:        "sku-1",
			Qty:        2,
			PriceMinor: 500,
			CreatedAt:  now,
		}},
		Version:   1,
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOrderRepositoryCreateGet(t *testing.T) {
	repo := NewOrderRepository()
	order := newTestOrder("cust-1", domain.OrderStatusPendingPayment, nil)

	if err := repo.Create(order); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(order); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("duplicate create: expected ErrVersionConflict, got %v", err)
	}

	got, err := repo.Get(order.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Number != order.Number {
		t.Fatalf("number = %q, want %q", got.Number, order.Number)
	}

	byNumber, err := repo.GetByNumber(order.Number)
	if err != nil {
		t.Fatalf("get by number: %v", err)
	}
	if byNumber.ID != order.ID {
		t.Fatalf("id = %q, want %q", byNumber.ID, order.ID)
	}

	if _, err := repo.Get("missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderRepositorySaveOptimisticLock(t *testing.T) {
	repo := NewOrderRepository()
	order := newTestOrder("cust-1", domain.OrderStatusPendingPayment, nil)
	if err := repo.Create(order); err != nil {
		t.Fatalf("create: %v", err)
	}

	order.Status = domain.OrderStatusCompleted
	if err := repo.Save(order); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, _ := repo.Get(order.ID)
	if got.Version != 2 {
		t.Fatalf("version = %d, want 2", got.Version)
	}
	if got.Status != domain.OrderStatusCompleted {
		t.Fatalf("status = %q, want completed", got.Status)
	}

	// Повторный save со старой версией обязан конфликтовать.
	stale := order
	stale.Version = 1
	if err := repo.Save(stale); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}

func TestOrderRepositoryListByCustomer(t *testing.T) {
	repo := NewOrderRepository()
	for i := 0; i < 3; i++ {
		order := newTestOrder("cust-1", domain.OrderStatusPendingPayment, nil)
		order.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Minute)
		if err := repo.Create(order); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	other := newTestOrder("cust-2", domain.OrderStatusPendingPayment, nil)
	if err := repo.Create(other); err != nil {
		t.Fatalf("create: %v", err)
	}

	orders, err := repo.ListByCustomer("cust-1", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("len = %d, want 2", len(orders))
	}
	if orders[0].CreatedAt.Before(orders[1].CreatedAt) {
		t.Fatal("expected newest first")
	}
}

func TestOrderRepositoryListExpiredHolds(t *testing.T) {
	repo := NewOrderRepository()
	now := time.Now().UTC()

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	expired := newTestOrder("cust-1", domain.OrderStatusPendingPayment, &past)
	live := newTestOrder("cust-1", domain.OrderStatusPendingPayment, &future)
	// Терминальный заказ не попадает в выборку даже с истёкшим дедлайном.
	cancelled := newTestOrder("cust-1", domain.OrderStatusCancelled, &past)
	noDeadline := newTestOrder("cust-1", domain.OrderStatusPendingPayment, nil)

	for _, o := range []domain.Order{expired, live, cancelled, noDeadline} {
		if err := repo.Create(o); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := repo.ListExpiredHolds(now, 10)
	if err != nil {
		t.Fatalf("list expired: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].ID != expired.ID {
		t.Fatalf("id = %q, want %q", got[0].ID, expired.ID)
	}
}

func TestOrderRepositoryCloneIsolation(t *testing.T) {
	repo := NewOrderRepository()
	order := newTestOrder("cust-1", domain.OrderStatusPendingPayment, nil)
	if err := repo.Create(order); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, _ := repo.Get(order.ID)
	got.Items[0].Qty = 99

	again, _ := repo.Get(order.ID)
	if again.Items[0].Qty != 2 {
		t.Fatalf("stored order mutated through returned copy: qty = %d", again.Items[0].Qty)
	}
}
