package entitlement

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

// GrantInput описывает выдаваемый entitlement. Вместимость под него Grant
// перенимает у подходящего резерва заказа, а при его отсутствии захватывает
// сам: за каждую единицу вместимости отвечает ровно одни ворота компенсации.
type GrantInput struct {
	OrderID   string
	UnitID    string
	Kind      domain.EntitlementKind
	Qty       int32
	StartedAt time.Time
	ExpiresAt time.Time
}

// Service управляет жизненным циклом time-boxed entitlement'ов: выдача при
// оплате заказа и возврат вместимости при отзыве или истечении окна.
type Service struct {
	entitlements domain.EntitlementRepository
	reservations domain.ReservationRepository
	units        domain.InventoryLedger
	logger       *log.Entry
	now          func() time.Time
}

// NewService создаёт сервис entitlement'ов.
func NewService(
	entitlements domain.EntitlementRepository,
	reservations domain.ReservationRepository,
	units domain.InventoryLedger,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.WithField("component", "entitlement")
	}
	return &Service{
		entitlements: entitlements,
		reservations: reservations,
		units:        units,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Grant создаёт активный entitlement с окном действия. Невозвращённый резерв
// заказа по тому же unit'у и количеству помечается released без возврата
// вместимости: ворота компенсации переходят от резерва к entitlement'у, и
// последующий возврат заказа ту же вместимость уже не освободит. Без
// подходящего резерва Grant захватывает вместимость сам.
func (s *Service) Grant(input GrantInput) (domain.Entitlement, error) {
	now := s.now()

	e := domain.Entitlement{
		ID:        uuid.NewString(),
		OrderID:   input.OrderID,
		UnitID:    input.UnitID,
		Kind:      input.Kind,
		Status:    domain.EntitlementStatusActive,
		Qty:       input.Qty,
		StartedAt: input.StartedAt,
		ExpiresAt: input.ExpiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = now
	}

	if errs := e.Validate(); len(errs) > 0 {
		return domain.Entitlement{}, errs[0]
	}

	adopted, err := s.adoptReservation(input.OrderID, input.UnitID, input.Qty)
	if err != nil {
		return domain.Entitlement{}, err
	}
	if !adopted {
		if err := s.units.Reserve(input.UnitID, input.Qty); err != nil {
			return domain.Entitlement{}, fmt.Errorf("reserve capacity: %w", err)
		}
	}

	if err := s.entitlements.Create(e); err != nil {
		if !adopted {
			if relErr := s.units.Release(input.UnitID, input.Qty); relErr != nil {
				s.logger.WithError(relErr).WithField("unit_id", input.UnitID).
					Error("rollback reserve after failed grant")
			}
		} else {
			// Резерв уже помечен released, а entitlement не записан:
			// возврат по заказу недосчитается qty, чинится вручную.
			s.logger.WithError(err).WithFields(log.Fields{
				"order_id": input.OrderID,
				"unit_id":  input.UnitID,
			}).Error("grant failed after reservation takeover")
		}
		return domain.Entitlement{}, fmt.Errorf("create entitlement: %w", err)
	}

	s.logger.WithFields(log.Fields{
		"entitlement_id": e.ID,
		"order_id":       e.OrderID,
		"unit_id":        e.UnitID,
		"kind":           e.Kind,
		"adopted_hold":   adopted,
	}).Info("entitlement granted")

	return e, nil
}

// adoptReservation перенимает у заказа невозвращённый резерв на тот же unit
// и количество. Флаг released переводится атомарно, поэтому конкурентный
// возврат заказа и Grant не могут присвоить один резерв оба.
func (s *Service) adoptReservation(orderID, unitID string, qty int32) (bool, error) {
	records, err := s.reservations.ListByOrder(orderID)
	if err != nil {
		return false, fmt.Errorf("list reservations: %w", err)
	}

	for _, rec := range records {
		if rec.UnitID != unitID || rec.Qty != qty || rec.Released {
			continue
		}
		flipped, err := s.reservations.MarkReleased(rec.ID)
		if err != nil {
			return false, fmt.Errorf("take over reservation %s: %w", rec.ID, err)
		}
		if flipped {
			return true, nil
		}
	}
	return false, nil
}

// Revoke отзывает entitlement до истечения окна. Повторный отзыв — no-op.
func (s *Service) Revoke(id string) (bool, error) {
	return s.terminate(id, domain.EntitlementStatusRevoked)
}

// Expire закрывает entitlement с истёкшим окном. Вызывается свипером.
func (s *Service) Expire(id string) (bool, error) {
	return s.terminate(id, domain.EntitlementStatusExpired)
}

// Get возвращает entitlement по id.
func (s *Service) Get(id string) (domain.Entitlement, error) {
	return s.entitlements.Get(id)
}

// ListByOrder возвращает entitlement'ы заказа.
func (s *Service) ListByOrder(orderID string) ([]domain.Entitlement, error) {
	return s.entitlements.ListByOrder(orderID)
}

// ListExpired возвращает активные entitlement'ы с истёкшим окном.
func (s *Service) ListExpired(before time.Time, limit int) ([]domain.Entitlement, error) {
	return s.entitlements.ListExpired(before, limit)
}

// terminate переводит entitlement в терминальный статус и возвращает
// вместимость. Компенсация выполняется только когда CAS в хранилище
// действительно перевёл запись из active: значит освобождение ровно одно
// на entitlement, сколько бы раз не звали Revoke или Expire.
func (s *Service) terminate(id string, status domain.EntitlementStatus) (bool, error) {
	e, err := s.entitlements.Get(id)
	if err != nil {
		return false, err
	}

	terminated, err := s.entitlements.MarkTerminated(id, status)
	if err != nil {
		return false, err
	}
	if !terminated {
		return false, nil
	}

	if err := s.units.Release(e.UnitID, e.Qty); err != nil {
		// Статус уже терминальный, потерянный возврат чинится вручную.
		s.logger.WithError(err).WithFields(log.Fields{
			"entitlement_id": id,
			"unit_id":        e.UnitID,
		}).Error("release capacity after termination failed")
		return true, err
	}

	s.logger.WithFields(log.Fields{
		"entitlement_id": id,
		"status":         status,
		"qty":            e.Qty,
	}).Info("entitlement terminated")

	return true, nil
}
