package dispute

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

// OrderArbiter — операции заказа, которыми резолюция диспута управляет
// его судьбой.
type OrderArbiter interface {
	MarkDisputed(orderID, reason string) (domain.Order, error)
	Restore(orderID, reason string) (domain.Order, error)
	Refund(orderID, reason string) (int, error)
}

// OutcomeTable отображает коды исхода провайдера на терминальные статусы
// диспута. Неизвестный код не резолвится молча: вызывающая сторона получает
// ErrUnknownDisputeOutcome и событие остаётся на ручной разбор.
type OutcomeTable map[string]domain.DisputeStatus

// DefaultOutcomeTable — маппинг кодов провайдера по умолчанию.
func DefaultOutcomeTable() OutcomeTable {
	return OutcomeTable{
		"won":                 domain.DisputeStatusWon,
		"chargeback_reversed": domain.DisputeStatusWon,
		"lost":                domain.DisputeStatusLost,
		"chargeback_lost":     domain.DisputeStatusLost,
		"closed":              domain.DisputeStatusClosed,
		"withdrawn":           domain.DisputeStatusClosed,
		"expired":             domain.DisputeStatusClosed,
	}
}

// OpenInput описывает открываемый провайдером диспут.
type OpenInput struct {
	ProviderID    string
	OrderID       string
	AmountMinor   int64
	Currency      string
	Reason        string
	EvidenceDueAt *time.Time
}

// Resolver ведёт диспуты провайдера и транслирует их исходы в переходы
// статуса заказа.
type Resolver struct {
	disputes domain.DisputeRepository
	orders   OrderArbiter
	outcomes OutcomeTable
	logger   *log.Entry
	now      func() time.Time
}

// Option настраивает Resolver.
type Option func(*Resolver)

// WithOutcomeTable подменяет таблицу кодов исхода провайдера.
func WithOutcomeTable(table OutcomeTable) Option {
	return func(r *Resolver) {
		if len(table) > 0 {
			r.outcomes = table
		}
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// NewResolver создаёт резолвер диспутов.
func NewResolver(disputes domain.DisputeRepository, orders OrderArbiter, logger *log.Entry, options ...Option) *Resolver {
	if logger == nil {
		logger = log.WithField("component", "dispute-resolver")
	}

	r := &Resolver{
		disputes: disputes,
		orders:   orders,
		outcomes: DefaultOutcomeTable(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(r)
	}
	return r
}

// Open регистрирует диспут и помечает заказ как оспоренный. Повтор webhook
// с тем же provider id возвращает уже существующую запись, заказ повторно
// не трогается.
func (r *Resolver) Open(input OpenInput) (domain.DisputeRecord, error) {
	now := r.now()

	record := domain.DisputeRecord{
		ID:            uuid.NewString(),
		ProviderID:    input.ProviderID,
		OrderID:       input.OrderID,
		Status:        domain.DisputeStatusOpen,
		AmountMinor:   input.AmountMinor,
		Currency:      input.Currency,
		Reason:        input.Reason,
		EvidenceDueAt: input.EvidenceDueAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if errs := record.Validate(); len(errs) > 0 {
		return domain.DisputeRecord{}, errs[0]
	}

	stored, created, err := r.disputes.CreateIfAbsent(record)
	if err != nil {
		return domain.DisputeRecord{}, fmt.Errorf("create dispute: %w", err)
	}
	if !created {
		r.logger.WithField("provider_id", input.ProviderID).Info("dispute already registered, skipping")
		return stored, nil
	}

	if _, err := r.orders.MarkDisputed(stored.OrderID, stored.Reason); err != nil {
		r.logger.WithError(err).WithFields(log.Fields{
			"provider_id": stored.ProviderID,
			"order_id":    stored.OrderID,
		}).Error("failed to mark order disputed")
		return stored, err
	}

	r.logger.WithFields(log.Fields{
		"provider_id": stored.ProviderID,
		"order_id":    stored.OrderID,
	}).Info("dispute opened")

	return stored, nil
}

// SubmitEvidence переводит диспут в under_review после отправки
// доказательств провайдеру.
func (r *Resolver) SubmitEvidence(providerID string) (domain.DisputeRecord, error) {
	record, err := r.disputes.GetByProviderID(providerID)
	if err != nil {
		return domain.DisputeRecord{}, err
	}

	if record.Status == domain.DisputeStatusUnderReview {
		return record, nil
	}
	if !record.Status.CanTransitionTo(domain.DisputeStatusUnderReview) {
		return domain.DisputeRecord{}, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, record.Status, domain.DisputeStatusUnderReview)
	}

	record.Status = domain.DisputeStatusUnderReview
	record.UpdatedAt = r.now()
	if err := r.disputes.Save(record); err != nil {
		return domain.DisputeRecord{}, err
	}
	return record, nil
}

// Resolve применяет исход провайдера к диспуту и заказу. Повторная
// резолюция уже терминального диспута — no-op, различие исходов в повторах
// игнорируется: побеждает первый.
func (r *Resolver) Resolve(providerID, outcomeCode string) (domain.DisputeRecord, error) {
	record, err := r.disputes.GetByProviderID(providerID)
	if err != nil {
		return domain.DisputeRecord{}, err
	}

	target, ok := r.outcomes[outcomeCode]
	if !ok {
		return domain.DisputeRecord{}, fmt.Errorf("%w: %q", domain.ErrUnknownDisputeOutcome, outcomeCode)
	}

	if record.Status.Resolved() {
		r.logger.WithFields(log.Fields{
			"provider_id": providerID,
			"status":      record.Status,
			"outcome":     outcomeCode,
		}).Info("dispute already resolved, skipping")
		return record, nil
	}
	if !record.Status.CanTransitionTo(target) {
		return domain.DisputeRecord{}, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, record.Status, target)
	}

	resolvedAt := r.now()
	record.Status = target
	record.ResolvedAt = &resolvedAt
	record.UpdatedAt = resolvedAt
	if err := r.disputes.Save(record); err != nil {
		return domain.DisputeRecord{}, err
	}

	if err := r.applyOutcome(record); err != nil {
		return record, err
	}

	r.logger.WithFields(log.Fields{
		"provider_id": providerID,
		"order_id":    record.OrderID,
		"status":      target,
	}).Info("dispute resolved")

	return record, nil
}

// Get возвращает диспут по идентификатору провайдера.
func (r *Resolver) Get(providerID string) (domain.DisputeRecord, error) {
	return r.disputes.GetByProviderID(providerID)
}

// ListByOrder возвращает диспуты заказа.
func (r *Resolver) ListByOrder(orderID string) ([]domain.DisputeRecord, error) {
	return r.disputes.ListByOrder(orderID)
}

// List возвращает последние диспуты.
func (r *Resolver) List(limit int) ([]domain.DisputeRecord, error) {
	return r.disputes.List(limit)
}

// applyOutcome транслирует терминальный статус диспута в судьбу заказа:
// проигрыш возвращает деньги и инвентарь, выигрыш и закрытие восстанавливают
// заказ без движения инвентаря.
func (r *Resolver) applyOutcome(record domain.DisputeRecord) error {
	switch record.Status {
	case domain.DisputeStatusLost:
		_, err := r.orders.Refund(record.OrderID, fmt.Sprintf("dispute %s lost", record.ProviderID))
		return err
	case domain.DisputeStatusWon:
		_, err := r.orders.Restore(record.OrderID, fmt.Sprintf("dispute %s won", record.ProviderID))
		return err
	case domain.DisputeStatusClosed:
		_, err := r.orders.Restore(record.OrderID, fmt.Sprintf("dispute %s closed", record.ProviderID))
		return err
	default:
		return nil
	}
}
