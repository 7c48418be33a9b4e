package domain_test

import (
	"strings"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

// helper для создания базового заказа с одной позицией.
func makeOrder() domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:            "order-1",
		Number:        "ORD-20260828-deadbeef",
		CustomerID:    "customer-1",
		Status:        domain.OrderStatusPendingPayment,
		PaymentMethod: domain.PaymentMethodCard,
		Currency:      "USD",
		AmountMinor:   500,
		Items: []domain.LineItem{
			{
				ID:         "item-1",
				UnitID:     "unit-1",
				SKU:        "sku-1",
				Qty:        5,
				PriceMinor: 100,
				CreatedAt:  now,
			},
		},
		Version:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOrderValidateInvariants_Ok(t *testing.T) {
	order := makeOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestOrderValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(o *domain.Order)
	}{
		{
			name: "no customer",
			mut: func(o *domain.Order) {
				o.CustomerID = ""
			},
		},
		{
			name: "no currency",
			mut: func(o *domain.Order) {
				o.Currency = ""
			},
		},
		{
			name: "no items",
			mut: func(o *domain.Order) {
				o.Items = nil
			},
		},
		{
			name: "qty invalid",
			mut: func(o *domain.Order) {
				o.Items[0].Qty = 0
			},
		},
		{
			name: "price invalid",
			mut: func(o *domain.Order) {
				o.Items[0].PriceMinor = -5
			},
		},
		{
			name: "missing unit id",
			mut: func(o *domain.Order) {
				o.Items[0].UnitID = ""
			},
		},
		{
			name: "amount mismatch",
			mut: func(o *domain.Order) {
				o.AmountMinor = 999
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := makeOrder()
			tc.mut(&order)
			if errs := order.ValidateInvariants(); len(errs) == 0 {
				t.Fatalf("expected validation errors, got none")
			}
		})
	}
}

func TestOrderStatusTransitions(t *testing.T) {
	cases := []struct {
		from    domain.OrderStatus
		to      domain.OrderStatus
		allowed bool
	}{
		{domain.OrderStatusPendingPayment, domain.OrderStatusCompleted, true},
		{domain.OrderStatusPendingPayment, domain.OrderStatusCancelled, true},
		{domain.OrderStatusPendingPayment, domain.OrderStatusDisputed, true},
		{domain.OrderStatusPendingPayment, domain.OrderStatusRefunded, false},
		{domain.OrderStatusCompleted, domain.OrderStatusRefunded, true},
		{domain.OrderStatusCompleted, domain.OrderStatusDisputed, true},
		{domain.OrderStatusCompleted, domain.OrderStatusCancelled, false},
		{domain.OrderStatusDisputed, domain.OrderStatusCompleted, true},
		{domain.OrderStatusDisputed, domain.OrderStatusRefunded, true},
		{domain.OrderStatusDisputed, domain.OrderStatusCancelled, true},
		// терминальные статусы не двигаются назад
		{domain.OrderStatusCancelled, domain.OrderStatusPendingPayment, false},
		{domain.OrderStatusCancelled, domain.OrderStatusCompleted, false},
		{domain.OrderStatusRefunded, domain.OrderStatusCompleted, false},
		{domain.OrderStatusRefunded, domain.OrderStatusDisputed, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
			t.Errorf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	if !domain.OrderStatusCancelled.Terminal() {
		t.Error("cancelled must be terminal")
	}
	if !domain.OrderStatusRefunded.Terminal() {
		t.Error("refunded must be terminal")
	}
	for _, s := range []domain.OrderStatus{
		domain.OrderStatusPendingPayment,
		domain.OrderStatusCompleted,
		domain.OrderStatusDisputed,
	} {
		if s.Terminal() {
			t.Errorf("%s must not be terminal", s)
		}
	}
}

func TestOrderHoldExpired(t *testing.T) {
	now := time.Now().UTC()

	order := makeOrder()
	if order.HoldExpired(now) {
		t.Error("order without expires_at must never expire")
	}

	deadline := now.Add(30 * time.Minute)
	order.ExpiresAt = &deadline
	if order.HoldExpired(now.Add(29 * time.Minute)) {
		t.Error("hold must still be active before the deadline")
	}
	if !order.HoldExpired(now.Add(31 * time.Minute)) {
		t.Error("hold must be expired after the deadline")
	}
}

func TestNewOrderNumber(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	number := domain.NewOrderNumber(now, "A1B2C3D4E5F6")
	if !strings.HasPrefix(number, "ORD-20260828-") {
		t.Fatalf("unexpected prefix: %s", number)
	}
	if got := strings.TrimPrefix(number, "ORD-20260828-"); got != "a1b2c3d4" {
		t.Fatalf("suffix must be lowercased and trimmed to 8 chars, got %q", got)
	}
}

func TestOrderStatusValid(t *testing.T) {
	if domain.OrderStatus("shipped").Valid() {
		t.Error("unknown status must not be valid")
	}
	if !domain.OrderStatusDisputed.Valid() {
		t.Error("disputed must be valid")
	}
}
