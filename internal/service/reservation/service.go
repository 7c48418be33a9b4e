package reservation

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
	"github.com/vladislavdragonenkov/ledger/internal/metrics"
)

// Service управляет резервами инвентаря для заказов. Резерв заказа
// выполняется по принципу "всё или ничего": при отказе любой позиции уже
// захваченные количества возвращаются обратно.
type Service struct {
	units        domain.UnitRepository
	reservations domain.ReservationRepository
	logger       *log.Entry
	metrics      *metrics.LedgerMetrics
}

// NewService создаёт рабочий экземпляр сервиса резервирования.
func NewService(
	units domain.UnitRepository,
	reservations domain.ReservationRepository,
	ledgerMetrics *metrics.LedgerMetrics,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.WithField("component", "reservation")
	}
	return &Service{
		units:        units,
		reservations: reservations,
		logger:       logger,
		metrics:      ledgerMetrics,
	}
}

// ReserveOrder захватывает инвентарь под все позиции заказа и сохраняет
// по одной записи резерва на позицию. Единица атомарности — счётчик
// отдельного юнита: при частичном отказе захваченный префикс откатывается,
// но другой заказ мог успеть занять освобождённый остаток.
func (s *Service) ReserveOrder(order domain.Order) ([]domain.ReservationRecord, error) {
	now := time.Now().UTC()
	records := make([]domain.ReservationRecord, 0, len(order.Items))

	for _, item := range order.Items {
		if err := s.units.Reserve(item.UnitID, item.Qty); err != nil {
			s.rollback(records)
			if domain.IsInsufficientInventory(err) {
				if s.metrics != nil {
					s.metrics.RecordReserveRejected()
				}
				s.logger.WithFields(log.Fields{
					"order_id": order.ID,
					"unit_id":  item.UnitID,
					"qty":      item.Qty,
				}).Warn("reserve rejected: insufficient capacity")
			}
			return nil, err
		}

		records = append(records, domain.ReservationRecord{
			ID:         uuid.NewString(),
			OrderID:    order.ID,
			LineItemID: item.ID,
			UnitID:     item.UnitID,
			Qty:        item.Qty,
			Status:     domain.ReservationStatusHeld,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	if err := s.reservations.CreateBatch(records); err != nil {
		s.rollback(records)
		return nil, fmt.Errorf("persist reservations: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordReservationsHeld(len(records))
	}

	return records, nil
}

// ReleaseOrder возвращает в инвентарь все невозвращённые резервы заказа и
// возвращает их число. Флаг released гарантирует не более одного возврата
// на запись, поэтому конкурирующие вызовы (sweep, cancel, webhook) не
// приводят к двойному освобождению.
func (s *Service) ReleaseOrder(orderID string) (int, error) {
	records, err := s.reservations.ListByOrder(orderID)
	if err != nil {
		return 0, fmt.Errorf("list reservations: %w", err)
	}

	released := 0
	for _, rec := range records {
		flipped, err := s.reservations.MarkReleased(rec.ID)
		if err != nil {
			return released, fmt.Errorf("mark reservation released: %w", err)
		}
		if !flipped {
			continue
		}

		if err := s.units.Release(rec.UnitID, rec.Qty); err != nil {
			s.logger.WithError(err).WithFields(log.Fields{
				"order_id":       orderID,
				"reservation_id": rec.ID,
				"unit_id":        rec.UnitID,
			}).Error("release inventory failed")
			return released, err
		}
		released++
	}

	if released > 0 && s.metrics != nil {
		s.metrics.RecordReservationsReleased(released)
	}

	return released, nil
}

// CommitOrder фиксирует резервы заказа после подтверждения оплаты.
func (s *Service) CommitOrder(orderID string) error {
	if err := s.reservations.MarkCommitted(orderID); err != nil {
		return fmt.Errorf("commit reservations: %w", err)
	}
	return nil
}

// ListByOrder возвращает записи резервов заказа.
func (s *Service) ListByOrder(orderID string) ([]domain.ReservationRecord, error) {
	return s.reservations.ListByOrder(orderID)
}

func (s *Service) rollback(records []domain.ReservationRecord) {
	for _, rec := range records {
		if err := s.units.Release(rec.UnitID, rec.Qty); err != nil {
			s.logger.WithError(err).WithFields(log.Fields{
				"order_id": rec.OrderID,
				"unit_id":  rec.UnitID,
			}).Error("rollback release failed")
		}
	}
}
