package domain_test

import (
	"testing"
	"time"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

func makeEntitlement(now time.Time) domain.Entitlement {
	return domain.Entitlement{
		ID:        "ent-1",
		OrderID:   "order-1",
		UnitID:    "plan-1",
		Kind:      domain.EntitlementKindSubscription,
		Status:    domain.EntitlementStatusActive,
		Qty:       1,
		StartedAt: now,
		ExpiresAt: now.Add(30 * 24 * time.Hour),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestEntitlementValidate(t *testing.T) {
	now := time.Now().UTC()

	e := makeEntitlement(now)
	if errs := e.Validate(); len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}

	bad := makeEntitlement(now)
	bad.UnitID = ""
	bad.Kind = "lifetime"
	bad.Qty = 0
	bad.ExpiresAt = bad.StartedAt
	if errs := bad.Validate(); len(errs) != 4 {
		t.Fatalf("expected 4 errors, got %v", errs)
	}
}

func TestEntitlementActiveAt(t *testing.T) {
	now := time.Now().UTC()
	e := makeEntitlement(now)

	if e.ActiveAt(now.Add(-time.Minute)) {
		t.Error("entitlement must not be active before the window")
	}
	if !e.ActiveAt(now.Add(time.Hour)) {
		t.Error("entitlement must be active inside the window")
	}
	if e.ActiveAt(e.ExpiresAt) {
		t.Error("entitlement must not be active at the window end")
	}

	expired := makeEntitlement(now)
	expired.Status = domain.EntitlementStatusExpired
	if expired.ActiveAt(now.Add(time.Hour)) {
		t.Error("terminated entitlement must not be active")
	}
	if !expired.Status.Terminal() {
		t.Error("expired status must be terminal")
	}
}
