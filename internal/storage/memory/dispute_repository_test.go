package memory

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

func newDispute(providerID, orderID string) domain.DisputeRecord {
	now := time.Now().UTC()
	return domain.DisputeRecord{
		ID:          uuid.NewString(),
		ProviderID:  providerID,
		OrderID:     orderID,
		Status:      domain.DisputeStatusOpen,
		AmountMinor: 1000,
		Currency:    "USD",
		Reason:      "fraudulent",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestDisputeRepositoryCreateIfAbsent(t *testing.T) {
	repo := NewDisputeRepository()
	dispute := newDispute("dp_1", "order-1")

	stored, created, err := repo.CreateIfAbsent(dispute)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created {
		t.Fatal("first CreateIfAbsent must report created")
	}
	if stored.ID != dispute.ID {
		t.Fatalf("id = %q, want %q", stored.ID, dispute.ID)
	}

	// Повтор того же provider_id возвращает уже сохранённую запись.
	duplicate := newDispute("dp_1", "order-1")
	stored, created, err = repo.CreateIfAbsent(duplicate)
	if err != nil {
		t.Fatalf("duplicate create: %v", err)
	}
	if created {
		t.Fatal("duplicate CreateIfAbsent must report not created")
	}
	if stored.ID != dispute.ID {
		t.Fatalf("duplicate must return original record, got id %q", stored.ID)
	}
}

func TestDisputeRepositoryGetSaveList(t *testing.T) {
	repo := NewDisputeRepository()
	first := newDispute("dp_1", "order-1")
	second := newDispute("dp_2", "order-1")
	second.CreatedAt = first.CreatedAt.Add(time.Minute)

	for _, d := range []domain.DisputeRecord{first, second} {
		if _, _, err := repo.CreateIfAbsent(d); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := repo.GetByProviderID("dp_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.OrderID != "order-1" {
		t.Fatalf("order id = %q", got.OrderID)
	}
	if _, err := repo.GetByProviderID("missing"); !errors.Is(err, domain.ErrDisputeNotFound) {
		t.Fatalf("expected ErrDisputeNotFound, got %v", err)
	}

	got.Status = domain.DisputeStatusWon
	now := time.Now().UTC()
	got.ResolvedAt = &now
	if err := repo.Save(got); err != nil {
		t.Fatalf("save: %v", err)
	}
	saved, _ := repo.GetByProviderID("dp_1")
	if saved.Status != domain.DisputeStatusWon || saved.ResolvedAt == nil {
		t.Fatalf("save not applied: %+v", saved)
	}

	byOrder, err := repo.ListByOrder("order-1")
	if err != nil {
		t.Fatalf("list by order: %v", err)
	}
	if len(byOrder) != 2 {
		t.Fatalf("len = %d, want 2", len(byOrder))
	}

	all, err := repo.List(1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("len = %d, want 1", len(all))
	}
	if all[0].ProviderID != "dp_2" {
		t.Fatalf("expected newest first, got %q", all[0].ProviderID)
	}
}
