package app

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
	"github.com/vladislavdragonenkov/ledger/internal/storage/memory"
	"github.com/vladislavdragonenkov/ledger/internal/storage/postgres"
)

// Repositories содержит все хранилища приложения.
// Store не nil только при работе поверх PostgreSQL.
type Repositories struct {
	Units        domain.UnitRepository
	Orders       domain.OrderRepository
	Reservations domain.ReservationRepository
	Outbox       domain.OutboxRepository
	Timeline     domain.TimelineRepository
	Disputes     domain.DisputeRepository
	Entitlements domain.EntitlementRepository
	Idempotency  domain.IdempotencyRepository

	Store *postgres.Store
}

// NewRepositories выбирает хранилище по конфигу: пустой DSN означает
// in-memory режим для разработки и тестов.
func NewRepositories(ctx context.Context, cfg Config, logger *log.Entry) (*Repositories, error) {
	if cfg.PostgresDSN == "" {
		logger.Info("postgres DSN is empty, using in-memory storage")
		return &Repositories{
			Units:        memory.NewUnitRepository(),
			Orders:       memory.NewOrderRepository(),
			Reservations: memory.NewReservationRepository(),
			Outbox:       memory.NewOutboxRepository(),
			Timeline:     memory.NewTimelineRepository(),
			Disputes:     memory.NewDisputeRepository(),
			Entitlements: memory.NewEntitlementRepository(),
			Idempotency:  memory.NewIdempotencyRepository(),
		}, nil
	}

	store, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	logger.Info("postgres storage initialized")

	return &Repositories{
		Units:        postgres.NewUnitRepository(store),
		Orders:       postgres.NewOrderRepository(store),
		Reservations: postgres.NewReservationRepository(store),
		Outbox:       postgres.NewOutboxRepository(store),
		Timeline:     postgres.NewTimelineRepository(store),
		Disputes:     postgres.NewDisputeRepository(store),
		Entitlements: postgres.NewEntitlementRepository(store),
		Idempotency:  postgres.NewIdempotencyRepository(store),
		Store:        store,
	}, nil
}

// Close освобождает ресурсы хранилища.
func (r *Repositories) Close() error {
	if r == nil || r.Store == nil {
		return nil
	}
	return r.Store.Close()
}
