package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

// unitRepositoryInMemory — in-memory реализация UnitRepository.
// Проверка остатка и инкремент committed выполняются под одним локом,
// поэтому конкурентные Reserve на один unit сериализуются.
type unitRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.SellableUnit
	bySKU map[string]string
}

// NewUnitRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewUnitRepository() domain.UnitRepository {
	return &unitRepositoryInMemory{
		items: make(map[string]domain.SellableUnit),
		bySKU: make(map[string]string),
	}
}

// Create сохраняет новый unit, если ID ещё не занят.
func (r *unitRepositoryInMemory) Create(unit domain.SellableUnit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[unit.ID]; exists {
		return domain.ErrVersionConflict
	}
	r.items[unit.ID] = unit
	if unit.SKU != "" {
		r.bySKU[unit.SKU] = unit.ID
	}
	return nil
}

// Get возвращает unit или ErrUnitNotFound, если его нет.
func (r *unitRepositoryInMemory) Get(id string) (domain.SellableUnit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	unit, ok := r.items[id]
	if !ok {
		return domain.SellableUnit{}, domain.ErrUnitNotFound
	}
	return unit, nil
}

// GetBySKU возвращает unit по внешнему артикулу.
func (r *unitRepositoryInMemory) GetBySKU(sku string) (domain.SellableUnit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.bySKU[sku]
	if !ok {
		return domain.SellableUnit{}, domain.ErrUnitNotFound
	}
	unit, ok := r.items[id]
	if !ok {
		return domain.SellableUnit{}, domain.ErrUnitNotFound
	}
	return unit, nil
}

// Reserve атомарно проверяет остаток и инкрементирует committed.
// Check-and-increment — один критический участок, а не read-then-write.
func (r *unitRepositoryInMemory) Reserve(unitID string, qty int32) error {
	if qty <= 0 {
		return domain.ErrReservationQtyInvalid
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	unit, ok := r.items[unitID]
	if !ok {
		return domain.ErrUnitNotFound
	}

	if !unit.CanReserve(int64(qty)) {
		avail, _ := unit.Available()
		return &domain.InsufficientInventoryError{
			UnitID:    unitID,
			Requested: int64(qty),
			Available: avail,
		}
	}

	unit.Committed += int64(qty)
	unit.Version++
	unit.UpdatedAt = time.Now().UTC()
	r.items[unitID] = unit
	return nil
}

// Release атомарно декрементирует committed с полом в 0.
func (r *unitRepositoryInMemory) Release(unitID string, qty int32) error {
	if qty <= 0 {
		return domain.ErrReservationQtyInvalid
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	unit, ok := r.items[unitID]
	if !ok {
		return domain.ErrUnitNotFound
	}

	unit.Committed -= int64(qty)
	if unit.Committed < 0 {
		unit.Committed = 0
	}
	unit.Version++
	unit.UpdatedAt = time.Now().UTC()
	r.items[unitID] = unit
	return nil
}

var _ domain.UnitRepository = (*unitRepositoryInMemory)(nil)
