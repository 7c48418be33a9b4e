package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

type disputeRepository struct {
	db *sql.DB
}

// NewDisputeRepository создаёт PostgreSQL-реализацию DisputeRepository.
func NewDisputeRepository(store *Store) domain.DisputeRepository {
	return &disputeRepository{db: store.DB()}
}

// CreateIfAbsent выполняет идемпотентную вставку по provider_id через
// ON CONFLICT DO NOTHING. При дубликате возвращается уже сохранённая запись.
func (r *disputeRepository) CreateIfAbsent(d domain.DisputeRecord) (domain.DisputeRecord, bool, error) {
	if errs := d.Validate(); len(errs) > 0 {
		return domain.DisputeRecord{}, false, errors.Join(errs...)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO disputes (
			id, provider_id, order_id, status, amount_minor, currency, reason,
			evidence_due_at, resolved_at, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (provider_id) DO NOTHING
	`,
		d.ID, d.ProviderID, d.OrderID, string(d.Status), d.AmountMinor,
		d.Currency, d.Reason, d.EvidenceDueAt, d.ResolvedAt, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return domain.DisputeRecord{}, false, fmt.Errorf("insert dispute: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.DisputeRecord{}, false, fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return d, true, nil
	}

	existing, err := r.GetByProviderID(d.ProviderID)
	if err != nil {
		return domain.DisputeRecord{}, false, err
	}

	return existing, false, nil
}

func (r *disputeRepository) GetByProviderID(providerID string) (domain.DisputeRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	d, err := scanDispute(r.db.QueryRowContext(ctx, disputeSelectColumns+`
		WHERE provider_id = $1
	`, providerID).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.DisputeRecord{}, domain.ErrDisputeNotFound
		}
		return domain.DisputeRecord{}, fmt.Errorf("select dispute: %w", err)
	}

	return d, nil
}

func (r *disputeRepository) ListByOrder(orderID string) ([]domain.DisputeRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, disputeSelectColumns+`
		WHERE order_id = $1
		ORDER BY created_at DESC, id DESC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list disputes by order: %w", err)
	}
	defer rows.Close()

	return collectDisputes(rows)
}

func (r *disputeRepository) List(limit int) ([]domain.DisputeRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, disputeSelectColumns+`
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list disputes: %w", err)
	}
	defer rows.Close()

	return collectDisputes(rows)
}

func (r *disputeRepository) Save(d domain.DisputeRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE disputes
		SET status = $2,
		    reason = $3,
		    evidence_due_at = $4,
		    resolved_at = $5,
		    updated_at = $6
		WHERE id = $1
	`, d.ID, string(d.Status), d.Reason, d.EvidenceDueAt, d.ResolvedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update dispute: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrDisputeNotFound
	}

	return nil
}

const disputeSelectColumns = `
	SELECT id, provider_id, order_id, status, amount_minor, currency, reason,
	       evidence_due_at, resolved_at, created_at, updated_at
	FROM disputes
`

func scanDispute(scan func(dest ...any) error) (domain.DisputeRecord, error) {
	var (
		d             domain.DisputeRecord
		status        string
		evidenceDueAt sql.NullTime
		resolvedAt    sql.NullTime
	)

	if err := scan(
		&d.ID, &d.ProviderID, &d.OrderID, &status, &d.AmountMinor,
		&d.Currency, &d.Reason, &evidenceDueAt, &resolvedAt,
		&d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return domain.DisputeRecord{}, err
	}

	d.Status = domain.DisputeStatus(status)
	if evidenceDueAt.Valid {
		t := evidenceDueAt.Time.UTC()
		d.EvidenceDueAt = &t
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time.UTC()
		d.ResolvedAt = &t
	}

	return d, nil
}

func collectDisputes(rows *sql.Rows) ([]domain.DisputeRecord, error) {
	result := make([]domain.DisputeRecord, 0)
	for rows.Next() {
		d, err := scanDispute(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan dispute: %w", err)
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate disputes: %w", err)
	}

	return result, nil
}

var _ domain.DisputeRepository = (*disputeRepository)(nil)
