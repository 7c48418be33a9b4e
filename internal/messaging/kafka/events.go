package kafka

import "time"

// EventType определяет тип события
type EventType string

const (
	// Order события
	EventTypeOrderCreated   EventType = "order.created"
	EventTypeOrderCompleted EventType = "order.completed"
	EventTypeOrderCancelled EventType = "order.cancelled"
	EventTypeOrderRefunded  EventType = "order.refunded"
	EventTypeOrderDisputed  EventType = "order.disputed"
	EventTypeOrderRestored  EventType = "order.restored"
	EventTypeOrderExpired   EventType = "order.expired"

	// Dispute события
	EventTypeDisputeOpened   EventType = "dispute.opened"
	EventTypeDisputeResolved EventType = "dispute.resolved"

	// Entitlement события
	EventTypeEntitlementGranted EventType = "entitlement.granted"
	EventTypeEntitlementExpired EventType = "entitlement.expired"
	EventTypeEntitlementRevoked EventType = "entitlement.revoked"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "ledger.order.events"
	TopicDisputeEvents   = "ledger.dispute.events"
	TopicProviderEvents  = "payments.provider.events"
	TopicDeadLetterQueue = "ledger.dlq"
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OrderEvent представляет событие жизненного цикла заказа
type OrderEvent struct {
	EventType  EventType              `json:"event_type"`
	OrderID    string                 `json:"order_id"`
	CustomerID string                 `json:"customer_id"`
	Status     string                 `json:"status"`
	Timestamp  time.Time              `json:"timestamp"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// DisputeEvent представляет событие жизненного цикла диспута
type DisputeEvent struct {
	EventType  EventType              `json:"event_type"`
	DisputeID  string                 `json:"dispute_id"`
	ProviderID string                 `json:"provider_id"`
	OrderID    string                 `json:"order_id"`
	Status     string                 `json:"status"`
	Timestamp  time.Time              `json:"timestamp"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// NewOrderEvent создает новое событие заказа
func NewOrderEvent(eventType EventType, orderID, customerID, status string, metadata map[string]interface{}) *OrderEvent {
	return &OrderEvent{
		EventType:  eventType,
		OrderID:    orderID,
		CustomerID: customerID,
		Status:     status,
		Timestamp:  time.Now(),
		Metadata:   metadata,
	}
}

// NewDisputeEvent создает новое событие диспута
func NewDisputeEvent(eventType EventType, disputeID, providerID, orderID, status string, metadata map[string]interface{}) *DisputeEvent {
	return &DisputeEvent{
		EventType:  eventType,
		DisputeID:  disputeID,
		ProviderID: providerID,
		OrderID:    orderID,
		Status:     status,
		Timestamp:  time.Now(),
		Metadata:   metadata,
	}
}
