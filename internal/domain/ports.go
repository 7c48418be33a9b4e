package domain

import "time"

// InventoryLedger — атомарные примитивы коммита вместимости per-unit.
// Проверка остатка и инкремент committed выполняются одним логическим шагом:
// два конкурентных Reserve, совместно превышающих вместимость, не могут
// завершиться успехом оба.
type InventoryLedger interface {
	// Reserve атомарно проверяет committed+qty <= capacity и инкрементирует
	// committed. Возвращает *InsufficientInventoryError при нехватке остатка.
	Reserve(unitID string, qty int32) error
	// Release атомарно декрементирует committed на qty с полом в 0.
	// Вызывающая сторона обязана гарантировать не более одного Release на
	// резерв; сам ledger этого не отслеживает.
	Release(unitID string, qty int32) error
}

// UnitRepository расширяет ledger-примитивы CRUD-доступом к sellable unit'ам.
type UnitRepository interface {
	InventoryLedger

	Create(unit SellableUnit) error
	Get(id string) (SellableUnit, error)
	GetBySKU(sku string) (SellableUnit, error)
}

// ReservationRepository хранит записи о коммитах вместимости.
type ReservationRepository interface {
	// CreateBatch сохраняет все резервы заказа одной операцией.
	CreateBatch(records []ReservationRecord) error
	ListByOrder(orderID string) ([]ReservationRecord, error)
	// MarkReleased атомарно переводит флаг released из false в true.
	// Возвращает false, если резерв уже был released — тогда компенсация
	// не выполняется повторно.
	MarkReleased(id string) (bool, error)
	// MarkCommitted переводит held-резервы заказа в committed после оплаты.
	MarkCommitted(orderID string) error
}

// EntitlementRepository хранит time-boxed entitlement'ы.
type EntitlementRepository interface {
	Create(e Entitlement) error
	Get(id string) (Entitlement, error)
	ListByOrder(orderID string) ([]Entitlement, error)
	// ListExpired возвращает активные entitlement'ы с истёкшим окном, до limit штук.
	ListExpired(before time.Time, limit int) ([]Entitlement, error)
	// MarkTerminated атомарно переводит активный entitlement в терминальный
	// статус. Возвращает false, если запись уже терминальна.
	MarkTerminated(id string, status EntitlementStatus) (bool, error)
}

// DisputeRepository хранит диспуты, ключом служит provider id.
type DisputeRepository interface {
	// CreateIfAbsent выполняет идемпотентную вставку: если диспут с таким
	// provider id уже существует, возвращается существующая запись и
	// created=false, дубликат не создаётся.
	CreateIfAbsent(d DisputeRecord) (DisputeRecord, bool, error)
	GetByProviderID(providerID string) (DisputeRecord, error)
	ListByOrder(orderID string) ([]DisputeRecord, error)
	List(limit int) ([]DisputeRecord, error)
	// Save обновляет диспут in-place. Идемпотентность резолюции
	// обеспечивается на уровне DisputeResolver, не хранилища.
	Save(d DisputeRecord) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
