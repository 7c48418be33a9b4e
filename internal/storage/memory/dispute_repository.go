package memory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

// disputeRepositoryInMemory — in-memory хранилище диспутов с уникальностью по provider id.
type disputeRepositoryInMemory struct {
	mu         sync.RWMutex
	byProvider map[string]domain.DisputeRecord
}

// NewDisputeRepository создаёт in-memory реализацию DisputeRepository.
func NewDisputeRepository() domain.DisputeRepository {
	return &disputeRepositoryInMemory{
		byProvider: make(map[string]domain.DisputeRecord),
	}
}

// CreateIfAbsent выполняет идемпотентную вставку: повторная доставка webhook'а
// с тем же provider id получает существующую запись, а не дубликат.
func (r *disputeRepositoryInMemory) CreateIfAbsent(d domain.DisputeRecord) (domain.DisputeRecord, bool, error) {
	if d.ProviderID == "" {
		return domain.DisputeRecord{}, false, domain.ErrDisputeProviderIDRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byProvider[d.ProviderID]; ok {
		return existing, false, nil
	}

	r.byProvider[d.ProviderID] = d
	return d, true, nil
}

// GetByProviderID возвращает диспут или ErrDisputeNotFound.
func (r *disputeRepositoryInMemory) GetByProviderID(providerID string) (domain.DisputeRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.byProvider[providerID]
	if !ok {
		return domain.DisputeRecord{}, domain.ErrDisputeNotFound
	}
	return d, nil
}

// ListByOrder возвращает диспуты, привязанные к заказу.
func (r *disputeRepositoryInMemory) ListByOrder(orderID string) ([]domain.DisputeRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.DisputeRecord, 0)
	for _, d := range r.byProvider {
		if d.OrderID == orderID {
			result = append(result, d)
		}
	}
	sortDisputes(result)
	return result, nil
}

// List возвращает до limit диспутов, новые первыми (операторские дашборды).
func (r *disputeRepositoryInMemory) List(limit int) ([]domain.DisputeRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.DisputeRecord, 0, len(r.byProvider))
	for _, d := range r.byProvider {
		result = append(result, d)
	}
	sortDisputes(result)

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Save обновляет существующий диспут.
func (r *disputeRepositoryInMemory) Save(d domain.DisputeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byProvider[d.ProviderID]; !ok {
		return domain.ErrDisputeNotFound
	}
	r.byProvider[d.ProviderID] = d
	return nil
}

func sortDisputes(disputes []domain.DisputeRecord) {
	sort.Slice(disputes, func(i, j int) bool {
		if !disputes[i].CreatedAt.Equal(disputes[j].CreatedAt) {
			return disputes[i].CreatedAt.After(disputes[j].CreatedAt)
		}
		return disputes[i].ProviderID > disputes[j].ProviderID
	})
}

var _ domain.DisputeRepository = (*disputeRepositoryInMemory)(nil)
