package domain_test

import (
	"testing"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

func TestDisputeStatusTransitions(t *testing.T) {
	cases := []struct {
		from    domain.DisputeStatus
		to      domain.DisputeStatus
		allowed bool
	}{
		{domain.DisputeStatusOpen, domain.DisputeStatusUnderReview, true},
		{domain.DisputeStatusOpen, domain.DisputeStatusWon, true},
		{domain.DisputeStatusOpen, domain.DisputeStatusLost, true},
		{domain.DisputeStatusOpen, domain.DisputeStatusClosed, true},
		{domain.DisputeStatusUnderReview, domain.DisputeStatusWon, true},
		{domain.DisputeStatusUnderReview, domain.DisputeStatusOpen, false},
		{domain.DisputeStatusWon, domain.DisputeStatusLost, false},
		{domain.DisputeStatusLost, domain.DisputeStatusOpen, false},
		{domain.DisputeStatusClosed, domain.DisputeStatusUnderReview, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
			t.Errorf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestDisputeStatusResolved(t *testing.T) {
	resolved := []domain.DisputeStatus{
		domain.DisputeStatusWon, domain.DisputeStatusLost, domain.DisputeStatusClosed,
	}
	for _, s := range resolved {
		if !s.Resolved() {
			t.Errorf("%s must be resolved", s)
		}
	}
	if domain.DisputeStatusOpen.Resolved() || domain.DisputeStatusUnderReview.Resolved() {
		t.Error("open/under_review must not be resolved")
	}
}

func TestDisputeRecordValidate(t *testing.T) {
	d := domain.DisputeRecord{
		ProviderID:  "dp_123",
		OrderID:     "order-1",
		Status:      domain.DisputeStatusOpen,
		AmountMinor: 500,
	}
	if errs := d.Validate(); len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}

	bad := domain.DisputeRecord{AmountMinor: -1}
	if errs := bad.Validate(); len(errs) != 3 {
		t.Fatalf("expected 3 errors, got %v", errs)
	}
}
