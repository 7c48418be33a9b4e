package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

// entitlementRepositoryInMemory — in-memory хранилище entitlement'ов.
type entitlementRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Entitlement
}

// NewEntitlementRepository создаёт in-memory реализацию EntitlementRepository.
func NewEntitlementRepository() domain.EntitlementRepository {
	return &entitlementRepositoryInMemory{
		items: make(map[string]domain.Entitlement),
	}
}

// Create сохраняет новый entitlement, если ID ещё не занят.
func (r *entitlementRepositoryInMemory) Create(e domain.Entitlement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[e.ID]; exists {
		return domain.ErrVersionConflict
	}
	r.items[e.ID] = e
	return nil
}

// Get возвращает entitlement или ErrEntitlementNotFound.
func (r *entitlementRepositoryInMemory) Get(id string) (domain.Entitlement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.items[id]
	if !ok {
		return domain.Entitlement{}, domain.ErrEntitlementNotFound
	}
	return e, nil
}

// ListByOrder возвращает entitlement'ы заказа.
func (r *entitlementRepositoryInMemory) ListByOrder(orderID string) ([]domain.Entitlement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Entitlement, 0)
	for _, e := range r.items {
		if e.OrderID == orderID {
			result = append(result, e)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})

	return result, nil
}

// ListExpired возвращает активные entitlement'ы с истёкшим окном, самые старые первыми.
func (r *entitlementRepositoryInMemory) ListExpired(before time.Time, limit int) ([]domain.Entitlement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Entitlement, 0)
	for _, e := range r.items {
		if e.Status != domain.EntitlementStatusActive {
			continue
		}
		if !e.ExpiresAt.Before(before) {
			continue
		}
		result = append(result, e)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ExpiresAt.Before(result[j].ExpiresAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// MarkTerminated атомарно завершает активный entitlement.
// Возвращает false, если он уже терминален — повторный sweep ничего не делает.
func (r *entitlementRepositoryInMemory) MarkTerminated(id string, status domain.EntitlementStatus) (bool, error) {
	if !status.Terminal() {
		return false, domain.ErrInvalidTransition
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.items[id]
	if !ok {
		return false, domain.ErrEntitlementNotFound
	}
	if e.Status.Terminal() {
		return false, nil
	}

	e.Status = status
	e.UpdatedAt = time.Now().UTC()
	r.items[id] = e
	return true, nil
}

var _ domain.EntitlementRepository = (*entitlementRepositoryInMemory)(nil)
