package memory

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

func TestIdempotencyRepositoryCreateProcessing(t *testing.T) {
	repo := NewIdempotencyRepository()

	record, err := repo.CreateProcessing("key-1", "hash-1", time.Time{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if record.Status != domain.IdempotencyStatusProcessing {
		t.Fatalf("status = %q, want processing", record.Status)
	}
	if record.TTLAt.IsZero() {
		t.Fatal("default TTL must be set")
	}

	// Повтор с тем же хэшом отдаёт сохранённую запись и признак дубликата.
	existing, err := repo.CreateProcessing("key-1", "hash-1", time.Time{})
	if !errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) {
		t.Fatalf("expected ErrIdempotencyKeyAlreadyExists, got %v", err)
	}
	if existing.Key != "key-1" {
		t.Fatalf("key = %q", existing.Key)
	}

	// Тот же ключ с другим телом запроса — конфликт.
	if _, err := repo.CreateProcessing("key-1", "hash-2", time.Time{}); !errors.Is(err, domain.ErrIdempotencyHashMismatch) {
		t.Fatalf("expected ErrIdempotencyHashMismatch, got %v", err)
	}

	if _, err := repo.CreateProcessing("  ", "hash", time.Time{}); !errors.Is(err, domain.ErrIdempotencyKeyRequired) {
		t.Fatalf("expected ErrIdempotencyKeyRequired, got %v", err)
	}
	if _, err := repo.CreateProcessing("key-2", " ", time.Time{}); !errors.Is(err, domain.ErrIdempotencyRequestHashRequired) {
		t.Fatalf("expected ErrIdempotencyRequestHashRequired, got %v", err)
	}
}

func TestIdempotencyRepositoryMarkAndGet(t *testing.T) {
	repo := NewIdempotencyRepository()
	if _, err := repo.CreateProcessing("key-1", "hash-1", time.Time{}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.MarkDone("key-1", []byte(`{"ok":true}`), 201); err != nil {
		t.Fatalf("mark done: %v", err)
	}

	record, err := repo.Get("key-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.Status != domain.IdempotencyStatusDone {
		t.Fatalf("status = %q, want done", record.Status)
	}
	if record.HTTPStatus != 201 {
		t.Fatalf("http status = %d, want 201", record.HTTPStatus)
	}
	if string(record.ResponseBody) != `{"ok":true}` {
		t.Fatalf("body = %q", record.ResponseBody)
	}

	if err := repo.MarkFailed("missing", nil, 500); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		t.Fatalf("expected ErrIdempotencyKeyNotFound, got %v", err)
	}
	if _, err := repo.Get("missing"); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		t.Fatalf("expected ErrIdempotencyKeyNotFound, got %v", err)
	}
}

func TestIdempotencyRepositoryDeleteExpired(t *testing.T) {
	repo := NewIdempotencyRepository()
	now := time.Now().UTC()

	if _, err := repo.CreateProcessing("old-1", "hash", now.Add(-time.Hour)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.CreateProcessing("old-2", "hash", now.Add(-time.Minute)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.CreateProcessing("live", "hash", now.Add(time.Hour)); err != nil {
		t.Fatalf("create: %v", err)
	}

	removed, err := repo.DeleteExpired(now, 10)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}

	if _, err := repo.Get("live"); err != nil {
		t.Fatalf("live record must survive: %v", err)
	}
}
