package domain

import "time"

// ProviderEventType описывает типы событий, которые присылают платёжные и
// диспут-провайдеры (webhook или брокер).
type ProviderEventType string

const (
	// ProviderEventPaymentCaptured — оплата подтверждена провайдером.
	ProviderEventPaymentCaptured ProviderEventType = "payment.captured"
	// ProviderEventPaymentFailed — оплата не прошла; hold снимается.
	ProviderEventPaymentFailed ProviderEventType = "payment.failed"
	// ProviderEventDisputeOpened — провайдер открыл chargeback.
	ProviderEventDisputeOpened ProviderEventType = "dispute.opened"
	// ProviderEventDisputeEvidence — доказательства приняты, диспут на рассмотрении.
	ProviderEventDisputeEvidence ProviderEventType = "dispute.evidence_submitted"
	// ProviderEventDisputeResolved — провайдер вынес решение по диспуту.
	ProviderEventDisputeResolved ProviderEventType = "dispute.resolved"
)

// ProviderEvent — нормализованное внешнее событие. Перед любой мутацией
// ledger событие обязано пройти дедупликацию по ProviderEventID.
type ProviderEvent struct {
	// ProviderEventID — идентификатор доставки у провайдера; ключ дедупликации.
	ProviderEventID string
	Type            ProviderEventType
	// OrderRef — id или номер заказа, к которому относится событие.
	OrderRef string
	// DisputeID — идентификатор диспута у провайдера (для dispute.* событий).
	DisputeID   string
	AmountMinor int64
	Currency    string
	// Outcome — провайдерский код исхода диспута (для dispute.resolved).
	Outcome    string
	Reason     string
	OccurredAt time.Time
}

// Validate проверяет минимально необходимые поля события.
func (e *ProviderEvent) Validate() []error {
	var errs []error

	if e.ProviderEventID == "" {
		errs = append(errs, ErrIdempotencyKeyRequired)
	}
	switch e.Type {
	case ProviderEventPaymentCaptured, ProviderEventPaymentFailed:
		if e.OrderRef == "" {
			errs = append(errs, ErrOrderIDRequired)
		}
	case ProviderEventDisputeOpened:
		if e.OrderRef == "" {
			errs = append(errs, ErrOrderIDRequired)
		}
		if e.DisputeID == "" {
			errs = append(errs, ErrDisputeProviderIDRequired)
		}
	case ProviderEventDisputeEvidence, ProviderEventDisputeResolved:
		if e.DisputeID == "" {
			errs = append(errs, ErrDisputeProviderIDRequired)
		}
	}

	return errs
}
