package memory

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

func newUnit(id string, cap *int64) domain.SellableUnit {
	now := time.Now().UTC()
	return domain.SellableUnit{
		ID:        id,
		SKU:       "sku-" + id,
		Name:      "unit " + id,
		Capacity:  cap,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func capOf(v int64) *int64 { return &v }

func TestUnitRepositoryReserveRelease(t *testing.T) {
	repo := NewUnitRepository()
	if err := repo.Create(newUnit("unit-1", capOf(5))); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.Reserve("unit-1", 3); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	unit, err := repo.Get("unit-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if unit.Committed != 3 {
		t.Fatalf("committed = %d, want 3", unit.Committed)
	}

	// Ещё 3 не помещается в остаток 2.
	err = repo.Reserve("unit-1", 3)
	var insufficient *domain.InsufficientInventoryError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientInventoryError, got %v", err)
	}
	if insufficient.Available != 2 || insufficient.Requested != 3 {
		t.Fatalf("unexpected error payload: %+v", insufficient)
	}

	if err := repo.Release("unit-1", 3); err != nil {
		t.Fatalf("release: %v", err)
	}
	unit, _ = repo.Get("unit-1")
	if unit.Committed != 0 {
		t.Fatalf("committed after release = %d, want 0", unit.Committed)
	}
}

func TestUnitRepositoryReleaseFloorsAtZero(t *testing.T) {
	repo := NewUnitRepository()
	if err := repo.Create(newUnit("unit-1", capOf(5))); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Ошибочный release не должен уводить счётчик в минус.
	if err := repo.Release("unit-1", 10); err != nil {
		t.Fatalf("release: %v", err)
	}
	unit, _ := repo.Get("unit-1")
	if unit.Committed != 0 {
		t.Fatalf("committed = %d, want 0", unit.Committed)
	}
}

func TestUnitRepositoryUnlimited(t *testing.T) {
	repo := NewUnitRepository()
	if err := repo.Create(newUnit("unit-1", nil)); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.Reserve("unit-1", 1_000_000); err != nil {
		t.Fatalf("unlimited unit must always reserve: %v", err)
	}
}

func TestUnitRepositoryNotFound(t *testing.T) {
	repo := NewUnitRepository()

	if err := repo.Reserve("missing", 1); !errors.Is(err, domain.ErrUnitNotFound) {
		t.Fatalf("expected ErrUnitNotFound, got %v", err)
	}
	if _, err := repo.GetBySKU("missing"); !errors.Is(err, domain.ErrUnitNotFound) {
		t.Fatalf("expected ErrUnitNotFound, got %v", err)
	}
}

// Два конкурентных резерва по 3 при вместимости 5: ровно один обязан упасть,
// итоговый committed — ровно 3.
func TestUnitRepositoryConcurrentReserve(t *testing.T) {
	repo := NewUnitRepository()
	if err := repo.Create(newUnit("unit-1", capOf(5))); err != nil {
		t.Fatalf("create: %v", err)
	}

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = repo.Reserve("unit-1", 3)
		}(i)
	}
	wg.Wait()

	var failures int
	for _, err := range results {
		if err != nil {
			if !domain.IsInsufficientInventory(err) {
				t.Fatalf("unexpected error kind: %v", err)
			}
			failures++
		}
	}
	if failures != 1 {
		t.Fatalf("exactly one reserve must fail, got %d failures", failures)
	}

	unit, _ := repo.Get("unit-1")
	if unit.Committed != 3 {
		t.Fatalf("committed = %d, want 3", unit.Committed)
	}
}

// Инвариант 0 <= committed <= capacity под высокой конкуренцией.
func TestUnitRepositoryConcurrentMix(t *testing.T) {
	repo := NewUnitRepository()
	if err := repo.Create(newUnit("unit-1", capOf(50))); err != nil {
		t.Fatalf("create: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.Reserve("unit-1", 2); err == nil {
				_ = repo.Release("unit-1", 2)
			}
		}()
	}
	wg.Wait()

	unit, _ := repo.Get("unit-1")
	if unit.Committed < 0 || unit.Committed > 50 {
		t.Fatalf("invariant violated: committed = %d", unit.Committed)
	}
	if unit.Committed != 0 {
		t.Fatalf("paired reserve/release must cancel out, committed = %d", unit.Committed)
	}
}
