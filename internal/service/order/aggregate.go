package order

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/currency"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
	"github.com/vladislavdragonenkov/ledger/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ledger/internal/metrics"
)

const defaultHoldTTL = 30 * time.Minute

// ReservationManager управляет резервами инвентаря для заказа.
type ReservationManager interface {
	ReserveOrder(order domain.Order) ([]domain.ReservationRecord, error)
	ReleaseOrder(orderID string) (int, error)
	CommitOrder(orderID string) error
}

// CheckoutItem — позиция оформляемого заказа.
type CheckoutItem struct {
	UnitID     string
	SKU        string
	Qty        int32
	PriceMinor int64
}

// CheckoutInput — входные данные оформления заказа.
type CheckoutInput struct {
	CustomerID    string
	Currency      string
	PaymentMethod domain.PaymentMethod
	Items         []CheckoutItem
}

// Aggregate — единица согласованности заказа. Все входящие сигналы
// (API, webhook, sweep) сходятся в синхронные переходы статуса здесь.
type Aggregate struct {
	orders       domain.OrderRepository
	reservations ReservationManager
	outbox       domain.OutboxRepository
	timeline     domain.TimelineRepository
	producer     *kafka.Producer // опциональный, nil отключает публикацию
	logger       *log.Entry
	metrics      *metrics.LedgerMetrics
	holdTTL      time.Duration
	now          func() time.Time
}

// Option настраивает Aggregate.
type Option func(*Aggregate)

// WithHoldTTL задаёт срок жизни cash hold.
func WithHoldTTL(ttl time.Duration) Option {
	return func(a *Aggregate) {
		if ttl > 0 {
			a.holdTTL = ttl
		}
	}
}

// WithKafkaProducer подключает публикацию событий в Kafka.
func WithKafkaProducer(producer *kafka.Producer) Option {
	return func(a *Aggregate) {
		a.producer = producer
	}
}

// WithMetrics подключает метрики жизненного цикла.
func WithMetrics(m *metrics.LedgerMetrics) Option {
	return func(a *Aggregate) {
		a.metrics = m
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(a *Aggregate) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAggregate создаёт рабочий экземпляр агрегата заказов.
func NewAggregate(
	orders domain.OrderRepository,
	reservations ReservationManager,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	logger *log.Entry,
	options ...Option,
) *Aggregate {
	if logger == nil {
		logger = log.WithField("component", "order-aggregate")
	}

	a := &Aggregate{
		orders:       orders,
		reservations: reservations,
		outbox:       outbox,
		timeline:     timeline,
		logger:       logger,
		holdTTL:      defaultHoldTTL,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(a)
	}
	return a
}

// Create оформляет заказ: валидирует вход, резервирует инвентарь по всем
// позициям и сохраняет заказ в статусе pending_payment. Отказ любой позиции
// откатывает весь резерв, заказ не создаётся.
func (a *Aggregate) Create(input CheckoutInput) (domain.Order, error) {
	start := a.now()
	defer func() {
		if a.metrics != nil {
			a.metrics.RecordCheckoutDuration(time.Since(start))
		}
	}()

	order, err := a.buildOrder(input)
	if err != nil {
		return domain.Order{}, err
	}

	if _, err := a.reservations.ReserveOrder(order); err != nil {
		return domain.Order{}, err
	}

	if err := a.orders.Create(order); err != nil {
		// Заказ не записался, удерживать инвентарь нельзя.
		if _, relErr := a.reservations.ReleaseOrder(order.ID); relErr != nil {
			a.logger.WithError(relErr).WithField("order_id", order.ID).Error("rollback release after create failure")
		}
		return domain.Order{}, fmt.Errorf("persist order: %w", err)
	}

	if a.metrics != nil {
		a.metrics.RecordOrderCreated()
	}
	a.emitEvent(&order, kafka.EventTypeOrderCreated, "")

	a.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"number":   order.Number,
		"items":    len(order.Items),
	}).Info("order created")

	return order, nil
}

// ConfirmPayment переводит заказ в completed и фиксирует его резервы.
// Повторное подтверждение уже завершённого заказа — no-op. Заказ в споре
// подтверждением не восстанавливается: для этого есть Restore.
func (a *Aggregate) ConfirmPayment(orderID string) (domain.Order, error) {
	order, err := a.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}

	if order.Status == domain.OrderStatusCompleted {
		return order, nil
	}
	if order.Status != domain.OrderStatusPendingPayment {
		return domain.Order{}, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, order.Status, domain.OrderStatusCompleted)
	}

	if err := a.transition(&order, domain.OrderStatusCompleted); err != nil {
		return domain.Order{}, err
	}

	if err := a.reservations.CommitOrder(order.ID); err != nil {
		a.logger.WithError(err).WithField("order_id", order.ID).Error("commit reservations failed")
	}

	if a.metrics != nil {
		a.metrics.RecordOrderCompleted()
	}
	a.emitEvent(&order, kafka.EventTypeOrderCompleted, "")

	return order, nil
}

// Cancel отменяет заказ и возвращает инвентарь. Возврат выполняется до
// смены статуса: при падении между шагами повторный вызов дозавершит
// переход, а флаг released исключит двойное освобождение.
func (a *Aggregate) Cancel(orderID, reason string) (int, error) {
	return a.releaseAndTransition(orderID, reason, domain.OrderStatusCancelled, kafka.EventTypeOrderCancelled)
}

// Refund возвращает средства за завершённый заказ и освобождает инвентарь.
func (a *Aggregate) Refund(orderID, reason string) (int, error) {
	return a.releaseAndTransition(orderID, reason, domain.OrderStatusRefunded, kafka.EventTypeOrderRefunded)
}

// ExpireHold отменяет заказ с истёкшим дедлайном оплаты. Используется
// свипером; отличается от Cancel только типом события.
func (a *Aggregate) ExpireHold(orderID string) (int, error) {
	return a.releaseAndTransition(orderID, "payment hold expired", domain.OrderStatusCancelled, kafka.EventTypeOrderExpired)
}

// MarkDisputed переводит заказ в disputed, не трогая инвентарь: исход
// диспута ещё неизвестен.
func (a *Aggregate) MarkDisputed(orderID, reason string) (domain.Order, error) {
	order, err := a.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}

	if order.Status == domain.OrderStatusDisputed {
		return order, nil
	}

	if err := a.transition(&order, domain.OrderStatusDisputed); err != nil {
		return domain.Order{}, err
	}

	if a.metrics != nil {
		a.metrics.RecordOrderDisputed()
	}
	a.emitEvent(&order, kafka.EventTypeOrderDisputed, reason)

	return order, nil
}

// Restore возвращает оспоренный заказ в completed после выигранного или
// закрытого диспута. Инвентарь не меняется: потери не было.
func (a *Aggregate) Restore(orderID, reason string) (domain.Order, error) {
	order, err := a.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}

	if order.Status == domain.OrderStatusCompleted {
		return order, nil
	}

	if err := a.transition(&order, domain.OrderStatusCompleted); err != nil {
		return domain.Order{}, err
	}

	a.emitEvent(&order, kafka.EventTypeOrderRestored, reason)
	return order, nil
}

// Get возвращает заказ по id.
func (a *Aggregate) Get(orderID string) (domain.Order, error) {
	return a.orders.Get(orderID)
}

// GetByNumber возвращает заказ по человекочитаемому номеру.
func (a *Aggregate) GetByNumber(number string) (domain.Order, error) {
	return a.orders.GetByNumber(number)
}

// Timeline возвращает хронологию событий заказа.
func (a *Aggregate) Timeline(orderID string) ([]domain.TimelineEvent, error) {
	if _, err := a.orders.Get(orderID); err != nil {
		return nil, err
	}
	return a.timeline.List(orderID)
}

func (a *Aggregate) releaseAndTransition(orderID, reason string, target domain.OrderStatus, eventType kafka.EventType) (int, error) {
	order, err := a.orders.Get(orderID)
	if err != nil {
		return 0, err
	}

	// Повторный вызов для уже достигнутого статуса — no-op.
	if order.Status == target {
		return 0, nil
	}
	if !order.Status.CanTransitionTo(target) {
		return 0, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, order.Status, target)
	}

	released, err := a.reservations.ReleaseOrder(order.ID)
	if err != nil {
		return released, err
	}

	if err := a.transition(&order, target); err != nil {
		return released, err
	}

	switch target {
	case domain.OrderStatusCancelled:
		if a.metrics != nil {
			a.metrics.RecordOrderCancelled()
		}
	case domain.OrderStatusRefunded:
		if a.metrics != nil {
			a.metrics.RecordOrderRefunded()
		}
	}

	a.emitEvent(&order, eventType, reason)
	return released, nil
}

func (a *Aggregate) buildOrder(input CheckoutInput) (domain.Order, error) {
	if len(input.Items) == 0 {
		return domain.Order{}, domain.ErrItemsRequired
	}
	if strings.TrimSpace(input.CustomerID) == "" {
		return domain.Order{}, domain.ErrCustomerRequired
	}
	if !input.PaymentMethod.Valid() {
		return domain.Order{}, fmt.Errorf("%w: %q", domain.ErrPaymentMethodInvalid, input.PaymentMethod)
	}
	if _, err := currency.ParseISO(input.Currency); err != nil {
		return domain.Order{}, fmt.Errorf("%w: %q", domain.ErrCurrencyRequired, input.Currency)
	}

	now := a.now()
	id := uuid.NewString()

	items := lo.Map(input.Items, func(item CheckoutItem, _ int) domain.LineItem {
		return domain.LineItem{
			ID:         uuid.NewString(),
			UnitID:     item.UnitID,
			SKU:        item.SKU,
			Qty:        item.Qty,
			PriceMinor: item.PriceMinor,
			CreatedAt:  now,
		}
	})
	amount := lo.SumBy(items, func(item domain.LineItem) int64 {
		return int64(item.Qty) * item.PriceMinor
	})

	order := domain.Order{
		ID:            id,
		Number:        domain.NewOrderNumber(now, id),
		CustomerID:    strings.TrimSpace(input.CustomerID),
		Status:        domain.OrderStatusPendingPayment,
		PaymentMethod: input.PaymentMethod,
		Currency:      strings.ToUpper(input.Currency),
		AmountMinor:   amount,
		Items:         items,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// Наличная оплата удерживает инвентарь ограниченное время.
	if input.PaymentMethod == domain.PaymentMethodCash {
		deadline := now.Add(a.holdTTL)
		order.ExpiresAt = &deadline
	}

	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, errs[0]
	}

	return order, nil
}

// transition меняет статус заказа с optimistic locking и bounded retry.
func (a *Aggregate) transition(order *domain.Order, target domain.OrderStatus) error {
	const maxRetries = 3
	const baseDelay = 10 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		if order.Status == target {
			return nil
		}
		if !order.Status.CanTransitionTo(target) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, order.Status, target)
		}

		previousStatus := order.Status
		previousExpiry := order.ExpiresAt
		prevVersion := order.Version
		order.Status = target
		order.UpdatedAt = a.now()
		// Завершённый заказ больше не держит hold с дедлайном.
		if target == domain.OrderStatusCompleted {
			order.ExpiresAt = nil
		}

		err := a.orders.Save(*order)
		if err == nil {
			order.Version = prevVersion + 1
			return nil
		}

		if domain.IsVersionConflict(err) && attempt < maxRetries-1 {
			a.logger.WithFields(log.Fields{
				"order_id": order.ID,
				"attempt":  attempt + 1,
				"version":  order.Version,
			}).Warn("version conflict detected, retrying")

			fresh, loadErr := a.orders.Get(order.ID)
			if loadErr != nil {
				return loadErr
			}
			*order = fresh

			time.Sleep(baseDelay * time.Duration(1<<uint(attempt)))
			continue
		}

		order.Status = previousStatus
		order.ExpiresAt = previousExpiry
		a.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"attempt":  attempt + 1,
		}).Error("failed to persist status")
		return err
	}

	return domain.ErrVersionConflict
}

func (a *Aggregate) emitEvent(order *domain.Order, eventType kafka.EventType, reason string) {
	occurred := a.now()

	payload := map[string]interface{}{
		"order_id": order.ID,
		"number":   order.Number,
		"status":   string(order.Status),
		"ts":       occurred.Format(time.RFC3339Nano),
	}
	if reason != "" {
		payload["reason"] = reason
	}

	data, err := json.Marshal(payload)
	if err != nil {
		a.logger.WithError(err).WithField("order_id", order.ID).Error("marshal event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     string(eventType),
		Payload:       data,
	}
	if _, err := a.outbox.Enqueue(msg); err != nil {
		a.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Error("enqueue event failed")
	} else if a.metrics != nil {
		a.metrics.RecordOutboxEvent()
	}

	if a.timeline != nil {
		event := domain.TimelineEvent{
			OrderID:  order.ID,
			Type:     string(eventType),
			Reason:   reason,
			Occurred: occurred,
		}
		if err := a.timeline.Append(event); err != nil {
			a.logger.WithError(err).WithFields(log.Fields{
				"order_id": order.ID,
				"event":    eventType,
			}).Warn("append timeline event failed")
		} else if a.metrics != nil {
			a.metrics.RecordTimelineEvent()
		}
	}

	if a.producer != nil {
		event := kafka.NewOrderEvent(eventType, order.ID, order.CustomerID, string(order.Status), map[string]interface{}{
			"number": order.Number,
			"reason": reason,
		})
		if err := a.producer.PublishEvent(kafka.TopicOrderEvents, order.ID, event); err != nil {
			// Kafka опциональна, локальное состояние уже согласовано.
			a.logger.WithError(err).WithFields(log.Fields{
				"order_id": order.ID,
				"event":    eventType,
			}).Warn("failed to publish order event to kafka")
		}
	}
}
