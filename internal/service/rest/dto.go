package rest

import (
	"time"

	"github.com/samber/lo"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

// checkoutRequest — тело POST /v1/orders.
type checkoutRequest struct {
	CustomerID    string                `json:"customer_id" binding:"required"`
	Currency      string                `json:"currency" binding:"required"`
	PaymentMethod string                `json:"payment_method" binding:"required"`
	Items         []checkoutItemRequest `json:"items" binding:"required"`
}

// checkoutItemRequest — позиция заказа; unit задаётся либо id, либо sku.
type checkoutItemRequest struct {
	UnitID     string `json:"unit_id"`
	SKU        string `json:"sku"`
	Qty        int32  `json:"qty" binding:"required"`
	PriceMinor int64  `json:"price_minor"`
}

// reasonRequest — тело cancel/refund запросов.
type reasonRequest struct {
	Reason string `json:"reason"`
}

type lineItemResponse struct {
	ID         string `json:"id"`
	UnitID     string `json:"unit_id"`
	SKU        string `json:"sku"`
	Qty        int32  `json:"qty"`
	PriceMinor int64  `json:"price_minor"`
}

type orderResponse struct {
	ID            string             `json:"id"`
	Number        string             `json:"number"`
	CustomerID    string             `json:"customer_id"`
	Status        string             `json:"status"`
	PaymentMethod string             `json:"payment_method"`
	Currency      string             `json:"currency"`
	AmountMinor   int64              `json:"amount_minor"`
	Items         []lineItemResponse `json:"items"`
	ExpiresAt     *time.Time         `json:"expires_at,omitempty"`
	Version       int64              `json:"version"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

type timelineEventResponse struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}

type disputeResponse struct {
	ProviderID    string     `json:"provider_id"`
	OrderID       string     `json:"order_id"`
	Status        string     `json:"status"`
	AmountMinor   int64      `json:"amount_minor"`
	Currency      string     `json:"currency"`
	Reason        string     `json:"reason,omitempty"`
	EvidenceDueAt *time.Time `json:"evidence_due_at,omitempty"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// entitlementRequest — тело POST /v1/entitlements.
type entitlementRequest struct {
	OrderID   string    `json:"order_id" binding:"required"`
	UnitID    string    `json:"unit_id" binding:"required"`
	Kind      string    `json:"kind" binding:"required"`
	Qty       int32     `json:"qty" binding:"required"`
	StartedAt time.Time `json:"started_at"`
	ExpiresAt time.Time `json:"expires_at" binding:"required"`
}

type entitlementResponse struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	UnitID    string    `json:"unit_id"`
	Kind      string    `json:"kind"`
	Status    string    `json:"status"`
	Qty       int32     `json:"qty"`
	StartedAt time.Time `json:"started_at"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

type revokeEntitlementResponse struct {
	ID      string `json:"id"`
	Revoked bool   `json:"revoked"`
}

type releaseResponse struct {
	OrderID  string `json:"order_id"`
	Status   string `json:"status"`
	Released int    `json:"released"`
}

type sweepResponse struct {
	ProcessedCount int `json:"processed_count"`
	ReleasedCount  int `json:"released_count"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toOrderResponse(order domain.Order) orderResponse {
	return orderResponse{
		ID:            order.ID,
		Number:        order.Number,
		CustomerID:    order.CustomerID,
		Status:        string(order.Status),
		PaymentMethod: string(order.PaymentMethod),
		Currency:      order.Currency,
		AmountMinor:   order.AmountMinor,
		Items: lo.Map(order.Items, func(item domain.LineItem, _ int) lineItemResponse {
			return lineItemResponse{
				ID:         item.ID,
				UnitID:     item.UnitID,
				SKU:        item.SKU,
				Qty:        item.Qty,
				PriceMinor: item.PriceMinor,
			}
		}),
		ExpiresAt: order.ExpiresAt,
		Version:   order.Version,
		CreatedAt: order.CreatedAt,
		UpdatedAt: order.UpdatedAt,
	}
}

func toTimelineResponse(events []domain.TimelineEvent) []timelineEventResponse {
	return lo.Map(events, func(event domain.TimelineEvent, _ int) timelineEventResponse {
		return timelineEventResponse{
			Type:     event.Type,
			Reason:   event.Reason,
			Occurred: event.Occurred,
		}
	})
}

func toEntitlementResponse(e domain.Entitlement) entitlementResponse {
	return entitlementResponse{
		ID:        e.ID,
		OrderID:   e.OrderID,
		UnitID:    e.UnitID,
		Kind:      string(e.Kind),
		Status:    string(e.Status),
		Qty:       e.Qty,
		StartedAt: e.StartedAt,
		ExpiresAt: e.ExpiresAt,
		CreatedAt: e.CreatedAt,
	}
}

func toEntitlementListResponse(items []domain.Entitlement) []entitlementResponse {
	return lo.Map(items, func(e domain.Entitlement, _ int) entitlementResponse {
		return toEntitlementResponse(e)
	})
}

func toDisputeResponse(record domain.DisputeRecord) disputeResponse {
	return disputeResponse{
		ProviderID:    record.ProviderID,
		OrderID:       record.OrderID,
		Status:        string(record.Status),
		AmountMinor:   record.AmountMinor,
		Currency:      record.Currency,
		Reason:        record.Reason,
		EvidenceDueAt: record.EvidenceDueAt,
		ResolvedAt:    record.ResolvedAt,
		CreatedAt:     record.CreatedAt,
	}
}

func toDisputeListResponse(records []domain.DisputeRecord) []disputeResponse {
	return lo.Map(records, func(record domain.DisputeRecord, _ int) disputeResponse {
		return toDisputeResponse(record)
	})
}
