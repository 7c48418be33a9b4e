package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

// reservationRepositoryInMemory — in-memory хранилище записей о резервах.
type reservationRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.ReservationRecord
}

// NewReservationRepository создаёт in-memory реализацию ReservationRepository.
func NewReservationRepository() domain.ReservationRepository {
	return &reservationRepositoryInMemory{
		items: make(map[string]domain.ReservationRecord),
	}
}

// CreateBatch сохраняет все резервы заказа.
func (r *reservationRepositoryInMemory) CreateBatch(records []domain.ReservationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, record := range records {
		if _, exists := r.items[record.ID]; exists {
			return domain.ErrVersionConflict
		}
	}
	for _, record := range records {
		r.items[record.ID] = record
	}
	return nil
}

// ListByOrder возвращает резервы заказа в порядке создания.
func (r *reservationRepositoryInMemory) ListByOrder(orderID string) ([]domain.ReservationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.ReservationRecord, 0)
	for _, record := range r.items {
		if record.OrderID == orderID {
			result = append(result, record)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

// MarkReleased атомарно переводит released из false в true.
// Возвращает false, если резерв уже был released: компенсация не повторяется.
func (r *reservationRepositoryInMemory) MarkReleased(id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.items[id]
	if !ok {
		return false, domain.ErrReservationNotFound
	}
	if record.Released {
		return false, nil
	}

	record.Released = true
	record.Status = domain.ReservationStatusReleased
	record.UpdatedAt = time.Now().UTC()
	r.items[id] = record
	return true, nil
}

// MarkCommitted финализирует held-резервы заказа после подтверждения оплаты.
func (r *reservationRepositoryInMemory) MarkCommitted(orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	for id, record := range r.items {
		if record.OrderID != orderID || record.Status != domain.ReservationStatusHeld {
			continue
		}
		record.Status = domain.ReservationStatusCommitted
		record.UpdatedAt = now
		r.items[id] = record
	}
	return nil
}

var _ domain.ReservationRepository = (*reservationRepositoryInMemory)(nil)
