package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

type entitlementRepository struct {
	db *sql.DB
}

// NewEntitlementRepository создаёт PostgreSQL-реализацию EntitlementRepository.
func NewEntitlementRepository(store *Store) domain.EntitlementRepository {
	return &entitlementRepository{db: store.DB()}
}

func (r *entitlementRepository) Create(e domain.Entitlement) error {
	if errs := e.Validate(); len(errs) > 0 {
		return errors.Join(errs...)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO entitlements (
			id, order_id, unit_id, kind, status, qty, started_at, expires_at,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		e.ID, e.OrderID, e.UnitID, string(e.Kind), string(e.Status), e.Qty,
		e.StartedAt, e.ExpiresAt, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrVersionConflict
		}
		return fmt.Errorf("insert entitlement: %w", err)
	}

	return nil
}

func (r *entitlementRepository) Get(id string) (domain.Entitlement, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	e, err := scanEntitlement(r.db.QueryRowContext(ctx, entitlementSelectColumns+`
		WHERE id = $1
	`, id).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Entitlement{}, domain.ErrEntitlementNotFound
		}
		return domain.Entitlement{}, fmt.Errorf("select entitlement: %w", err)
	}

	return e, nil
}

func (r *entitlementRepository) ListByOrder(orderID string) ([]domain.Entitlement, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, entitlementSelectColumns+`
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list entitlements: %w", err)
	}
	defer rows.Close()

	return collectEntitlements(rows)
}

// ListExpired выбирает активные записи с истёкшим окном действия, самые
// давние первыми.
func (r *entitlementRepository) ListExpired(before time.Time, limit int) ([]domain.Entitlement, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, entitlementSelectColumns+`
		WHERE status = $1
		  AND expires_at < $2
		ORDER BY expires_at ASC, id ASC
		LIMIT $3
	`, string(domain.EntitlementStatusActive), before, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired entitlements: %w", err)
	}
	defer rows.Close()

	return collectEntitlements(rows)
}

// MarkTerminated атомарно переводит активную запись в терминальный статус.
// Повторный вызов для уже терминальной записи возвращает false.
func (r *entitlementRepository) MarkTerminated(id string, status domain.EntitlementStatus) (bool, error) {
	if !status.Terminal() {
		return false, fmt.Errorf("entitlement status %q is not terminal", status)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE entitlements
		SET status = $2,
		    updated_at = $3
		WHERE id = $1
		  AND status = $4
	`, id, string(status), time.Now().UTC(), string(domain.EntitlementStatusActive))
	if err != nil {
		return false, fmt.Errorf("mark entitlement terminated: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return true, nil
	}

	if _, err := r.Get(id); err != nil {
		return false, err
	}

	return false, nil
}

const entitlementSelectColumns = `
	SELECT id, order_id, unit_id, kind, status, qty, started_at, expires_at,
	       created_at, updated_at
	FROM entitlements
`

func scanEntitlement(scan func(dest ...any) error) (domain.Entitlement, error) {
	var (
		e      domain.Entitlement
		kind   string
		status string
	)

	if err := scan(
		&e.ID, &e.OrderID, &e.UnitID, &kind, &status, &e.Qty,
		&e.StartedAt, &e.ExpiresAt, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return domain.Entitlement{}, err
	}

	e.Kind = domain.EntitlementKind(kind)
	e.Status = domain.EntitlementStatus(status)
	return e, nil
}

func collectEntitlements(rows *sql.Rows) ([]domain.Entitlement, error) {
	result := make([]domain.Entitlement, 0)
	for rows.Next() {
		e, err := scanEntitlement(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan entitlement: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entitlements: %w", err)
	}

	return result, nil
}

var _ domain.EntitlementRepository = (*entitlementRepository)(nil)
