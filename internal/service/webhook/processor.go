package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
	"github.com/vladislavdragonenkov/ledger/internal/service/dispute"
	"github.com/vladislavdragonenkov/ledger/internal/service/idempotency"
)

// OrderOps — операции заказа, которые вызывают платёжные события.
type OrderOps interface {
	Get(id string) (domain.Order, error)
	GetByNumber(number string) (domain.Order, error)
	ConfirmPayment(orderID string) (domain.Order, error)
	Cancel(orderID, reason string) (int, error)
}

// DisputeOps — операции резолвера, которые вызывают dispute-события.
type DisputeOps interface {
	Open(input dispute.OpenInput) (domain.DisputeRecord, error)
	SubmitEvidence(providerID string) (domain.DisputeRecord, error)
	Resolve(providerID, outcomeCode string) (domain.DisputeRecord, error)
}

// Processor — единая точка обработки событий провайдера. И HTTP webhook,
// и Kafka-консьюмер проходят через один и тот же guard дедупликации, поэтому
// повторная доставка любым транспортом не мутирует ledger второй раз.
type Processor struct {
	guard    *idempotency.Guard
	orders   OrderOps
	disputes DisputeOps
	logger   *log.Entry
}

// NewProcessor создаёт обработчик событий провайдера.
func NewProcessor(guard *idempotency.Guard, orders OrderOps, disputes DisputeOps, logger *log.Entry) *Processor {
	if logger == nil {
		logger = log.WithField("component", "webhook-processor")
	}
	return &Processor{
		guard:    guard,
		orders:   orders,
		disputes: disputes,
		logger:   logger,
	}
}

// Process декодирует сырое событие и применяет его под защитой дедупликации.
// Возвращаемый Outcome содержит HTTP-совместимый ответ: свежий или
// сохранённый при повторе.
func (p *Processor) Process(raw []byte) (idempotency.Outcome, error) {
	event, err := ParseProviderPayload(raw)
	if err != nil {
		return idempotency.Outcome{
			Response: errorResponse(http.StatusBadRequest, err),
		}, err
	}

	key := "provider-event:" + event.ProviderEventID
	hash := idempotency.HashRequest(string(event.Type), raw)

	outcome, err := p.guard.Execute(key, hash, func() (idempotency.Response, error) {
		return p.apply(event)
	})
	if err != nil && !outcome.Replayed {
		p.logger.WithError(err).WithFields(log.Fields{
			"provider_event_id": event.ProviderEventID,
			"type":              event.Type,
		}).Warn("provider event processing failed")
	}
	return outcome, err
}

// HandleMessage адаптирует Process под Kafka-консьюмер. Ошибка возвращается
// только когда событие имеет смысл доставить повторно: повреждённые payload
// и бизнес-отказы ретраем не лечатся и уходят в ack.
func (p *Processor) HandleMessage(ctx context.Context, message *sarama.ConsumerMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := p.Process(message.Value)
	if err == nil {
		return nil
	}
	if isPermanent(err) {
		p.logger.WithError(err).WithFields(log.Fields{
			"topic":  message.Topic,
			"offset": message.Offset,
		}).Warn("dropping permanently failed provider event")
		return nil
	}
	return err
}

func (p *Processor) apply(event domain.ProviderEvent) (idempotency.Response, error) {
	switch event.Type {
	case domain.ProviderEventPaymentCaptured:
		return p.applyPaymentCaptured(event)
	case domain.ProviderEventPaymentFailed:
		return p.applyPaymentFailed(event)
	case domain.ProviderEventDisputeOpened:
		return p.applyDisputeOpened(event)
	case domain.ProviderEventDisputeEvidence:
		record, err := p.disputes.SubmitEvidence(event.DisputeID)
		return disputeResponse(record, err)
	case domain.ProviderEventDisputeResolved:
		record, err := p.disputes.Resolve(event.DisputeID, event.Outcome)
		return disputeResponse(record, err)
	default:
		err := fmt.Errorf("unsupported provider event type %q", event.Type)
		return errorResponse(http.StatusBadRequest, err), err
	}
}

func (p *Processor) applyPaymentCaptured(event domain.ProviderEvent) (idempotency.Response, error) {
	order, err := p.resolveOrder(event.OrderRef)
	if err != nil {
		return errorResponse(statusFor(err), err), err
	}

	confirmed, err := p.orders.ConfirmPayment(order.ID)
	if err != nil {
		return errorResponse(statusFor(err), err), err
	}

	return jsonResponse(http.StatusOK, map[string]string{
		"order_id": confirmed.ID,
		"status":   string(confirmed.Status),
	}), nil
}

func (p *Processor) applyPaymentFailed(event domain.ProviderEvent) (idempotency.Response, error) {
	order, err := p.resolveOrder(event.OrderRef)
	if err != nil {
		return errorResponse(statusFor(err), err), err
	}

	reason := event.Reason
	if reason == "" {
		reason = "payment failed"
	}
	released, err := p.orders.Cancel(order.ID, reason)
	if err != nil {
		return errorResponse(statusFor(err), err), err
	}

	return jsonResponse(http.StatusOK, map[string]interface{}{
		"order_id": order.ID,
		"status":   string(domain.OrderStatusCancelled),
		"released": released,
	}), nil
}

func (p *Processor) applyDisputeOpened(event domain.ProviderEvent) (idempotency.Response, error) {
	order, err := p.resolveOrder(event.OrderRef)
	if err != nil {
		return errorResponse(statusFor(err), err), err
	}

	record, err := p.disputes.Open(dispute.OpenInput{
		ProviderID:  event.DisputeID,
		OrderID:     order.ID,
		AmountMinor: event.AmountMinor,
		Currency:    event.Currency,
		Reason:      event.Reason,
	})
	return disputeResponse(record, err)
}

// resolveOrder принимает и внутренний id, и человекочитаемый номер заказа.
func (p *Processor) resolveOrder(ref string) (domain.Order, error) {
	order, err := p.orders.Get(ref)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, domain.ErrOrderNotFound) {
		return domain.Order{}, err
	}
	return p.orders.GetByNumber(ref)
}

func disputeResponse(record domain.DisputeRecord, err error) (idempotency.Response, error) {
	if err != nil {
		return errorResponse(statusFor(err), err), err
	}
	return jsonResponse(http.StatusOK, map[string]string{
		"dispute_id": record.ProviderID,
		"order_id":   record.OrderID,
		"status":     string(record.Status),
	}), nil
}

func jsonResponse(status int, body interface{}) idempotency.Response {
	data, err := json.Marshal(body)
	if err != nil {
		return idempotency.Response{Status: http.StatusInternalServerError}
	}
	return idempotency.Response{Status: status, Body: data}
}

func errorResponse(status int, err error) idempotency.Response {
	return jsonResponse(status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrDisputeNotFound),
		errors.Is(err, domain.ErrUnitNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrInsufficientCapacity):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnknownDisputeOutcome):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// isPermanent отличает ошибки, которые повторная доставка не исправит.
func isPermanent(err error) bool {
	return errors.Is(err, domain.ErrOrderNotFound) ||
		errors.Is(err, domain.ErrDisputeNotFound) ||
		errors.Is(err, domain.ErrInvalidTransition) ||
		errors.Is(err, domain.ErrUnknownDisputeOutcome) ||
		errors.Is(err, domain.ErrIdempotencyHashMismatch) ||
		errors.Is(err, domain.ErrIdempotencyKeyRequired) ||
		errors.Is(err, domain.ErrOrderIDRequired) ||
		errors.Is(err, domain.ErrDisputeProviderIDRequired) ||
		errors.Is(err, domain.ErrAmountNegative) ||
		isDecodeError(err)
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
