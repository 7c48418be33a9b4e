package domain_test

import (
	"testing"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

func capacity(v int64) *int64 { return &v }

func TestSellableUnitCanReserve(t *testing.T) {
	cases := []struct {
		name      string
		capacity  *int64
		committed int64
		qty       int64
		want      bool
	}{
		{"fits exactly", capacity(5), 2, 3, true},
		{"over capacity", capacity(5), 3, 3, false},
		{"zero qty", capacity(5), 0, 0, false},
		{"negative qty", capacity(5), 0, -1, false},
		{"unlimited", nil, 1000000, 500, true},
		{"full unit", capacity(5), 5, 1, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			unit := domain.SellableUnit{ID: "unit-1", Capacity: tc.capacity, Committed: tc.committed}
			if got := unit.CanReserve(tc.qty); got != tc.want {
				t.Fatalf("CanReserve(%d) = %v, want %v", tc.qty, got, tc.want)
			}
		})
	}
}

func TestSellableUnitAvailable(t *testing.T) {
	unit := domain.SellableUnit{ID: "unit-1", Capacity: capacity(10), Committed: 4}
	avail, bounded := unit.Available()
	if !bounded || avail != 6 {
		t.Fatalf("Available() = (%d, %v), want (6, true)", avail, bounded)
	}

	unlimited := domain.SellableUnit{ID: "unit-2"}
	if _, bounded := unlimited.Available(); bounded {
		t.Fatal("unlimited unit must report unbounded availability")
	}
	if !unlimited.Unlimited() {
		t.Fatal("unit without capacity must be unlimited")
	}
}

func TestSellableUnitValidate(t *testing.T) {
	unit := domain.SellableUnit{ID: "unit-1", Capacity: capacity(10), Committed: 0}
	if errs := unit.Validate(); len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}

	bad := domain.SellableUnit{Committed: -1, Capacity: capacity(-5)}
	errs := bad.Validate()
	if len(errs) != 3 {
		t.Fatalf("expected 3 errors (id, committed, capacity), got %v", errs)
	}
}
