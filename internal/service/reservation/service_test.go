package reservation

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
	"github.com/vladislavdragonenkov/ledger/internal/storage/memory"
)

func newFixture(t *testing.T) (*Service, domain.UnitRepository, domain.ReservationRepository) {
	t.Helper()

	units := memory.NewUnitRepository()
	reservations := memory.NewReservationRepository()
	svc := NewService(units, reservations, nil, nil)
	return svc, units, reservations
}

func seedUnit(t *testing.T, units domain.UnitRepository, id string, capacity int64) {
	t.Helper()

	now := time.Now().UTC()
	limit := capacity
	unit := domain.SellableUnit{
		ID: id, SKU: "sku-" + id, Name: id,
		Capacity:  &limit,
		CreatedAt: now, UpdatedAt: now,
	}
	if capacity < 0 {
		unit.Capacity = nil
	}
	if err := units.Create(unit); err != nil {
		t.Fatalf("seed unit: %v", err)
	}
}

func twoItemOrder(qtyA, qtyB int32) domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:     uuid.NewString(),
		Status: domain.OrderStatusPendingPayment,
		Items: []domain.LineItem{
			{ID: uuid.NewString(), UnitID: "unit-a", SKU: "sku-unit-a", Qty: qtyA, PriceMinor: 100, CreatedAt: now},
			{ID: uuid.NewString(), UnitID: "unit-b", SKU: "sku-unit-b", Qty: qtyB, PriceMinor: 100, CreatedAt: now},
		},
	}
}

func committedOf(t *testing.T, units domain.UnitRepository, id string) int64 {
	t.Helper()

	unit, err := units.Get(id)
	if err != nil {
		t.Fatalf("get unit %s: %v", id, err)
	}
	return unit.Committed
}

func TestReserveOrderHappyPath(t *testing.T) {
	svc, units, _ := newFixture(t)
	seedUnit(t, units, "unit-a", 10)
	seedUnit(t, units, "unit-b", 10)

	order := twoItemOrder(3, 4)
	records, err := svc.ReserveOrder(order)
	if err != nil {
		t.Fatalf("reserve order: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	for _, rec := range records {
		if rec.Status != domain.ReservationStatusHeld {
			t.Fatalf("status = %q, want held", rec.Status)
		}
	}

	if got := committedOf(t, units, "unit-a"); got != 3 {
		t.Fatalf("unit-a committed = %d, want 3", got)
	}
	if got := committedOf(t, units, "unit-b"); got != 4 {
		t.Fatalf("unit-b committed = %d, want 4", got)
	}
}

// При отказе второй позиции захват первой обязан откатиться.
func TestReserveOrderAllOrNothing(t *testing.T) {
	svc, units, reservations := newFixture(t)
	seedUnit(t, units, "unit-a", 10)
	seedUnit(t, units, "unit-b", 2)

	order := twoItemOrder(3, 5)
	_, err := svc.ReserveOrder(order)
	if !domain.IsInsufficientInventory(err) {
		t.Fatalf("expected insufficient inventory, got %v", err)
	}

	var insufficient *domain.InsufficientInventoryError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected typed error, got %v", err)
	}
	if insufficient.UnitID != "unit-b" {
		t.Fatalf("unit id = %q, want unit-b", insufficient.UnitID)
	}

	if got := committedOf(t, units, "unit-a"); got != 0 {
		t.Fatalf("unit-a committed = %d, want 0 after rollback", got)
	}
	if got := committedOf(t, units, "unit-b"); got != 0 {
		t.Fatalf("unit-b committed = %d, want 0", got)
	}

	records, _ := reservations.ListByOrder(order.ID)
	if len(records) != 0 {
		t.Fatalf("no reservation records must survive a failed reserve, got %d", len(records))
	}
}

func TestReleaseOrderAtMostOnce(t *testing.T) {
	svc, units, _ := newFixture(t)
	seedUnit(t, units, "unit-a", 10)
	seedUnit(t, units, "unit-b", 10)

	order := twoItemOrder(3, 4)
	if _, err := svc.ReserveOrder(order); err != nil {
		t.Fatalf("reserve order: %v", err)
	}

	released, err := svc.ReleaseOrder(order.ID)
	if err != nil {
		t.Fatalf("release order: %v", err)
	}
	if released != 2 {
		t.Fatalf("released = %d, want 2", released)
	}

	// Повторный release ничего не возвращает и не уводит счётчики в минус.
	released, err = svc.ReleaseOrder(order.ID)
	if err != nil {
		t.Fatalf("second release: %v", err)
	}
	if released != 0 {
		t.Fatalf("second release must be a no-op, released = %d", released)
	}

	if got := committedOf(t, units, "unit-a"); got != 0 {
		t.Fatalf("unit-a committed = %d, want 0", got)
	}
	if got := committedOf(t, units, "unit-b"); got != 0 {
		t.Fatalf("unit-b committed = %d, want 0", got)
	}
}

func TestCommitOrder(t *testing.T) {
	svc, units, reservations := newFixture(t)
	seedUnit(t, units, "unit-a", 10)
	seedUnit(t, units, "unit-b", 10)

	order := twoItemOrder(1, 1)
	if _, err := svc.ReserveOrder(order); err != nil {
		t.Fatalf("reserve order: %v", err)
	}

	if err := svc.CommitOrder(order.ID); err != nil {
		t.Fatalf("commit order: %v", err)
	}

	records, _ := reservations.ListByOrder(order.ID)
	for _, rec := range records {
		if rec.Status != domain.ReservationStatusCommitted {
			t.Fatalf("status = %q, want committed", rec.Status)
		}
	}

	// Committed резервы всё ещё можно вернуть при refund.
	released, err := svc.ReleaseOrder(order.ID)
	if err != nil {
		t.Fatalf("release after commit: %v", err)
	}
	if released != 2 {
		t.Fatalf("released = %d, want 2", released)
	}
}

func TestReserveOrderMissingUnit(t *testing.T) {
	svc, units, _ := newFixture(t)
	seedUnit(t, units, "unit-a", 10)

	order := twoItemOrder(1, 1)
	_, err := svc.ReserveOrder(order)
	if !errors.Is(err, domain.ErrUnitNotFound) {
		t.Fatalf("expected ErrUnitNotFound, got %v", err)
	}

	if got := committedOf(t, units, "unit-a"); got != 0 {
		t.Fatalf("unit-a committed = %d, want 0 after rollback", got)
	}
}
