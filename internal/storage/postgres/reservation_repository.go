package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

type reservationRepository struct {
	db *sql.DB
}

// NewReservationRepository создаёт PostgreSQL-реализацию ReservationRepository.
func NewReservationRepository(store *Store) domain.ReservationRepository {
	return &reservationRepository{db: store.DB()}
}

func (r *reservationRepository) CreateBatch(records []domain.ReservationRecord) error {
	if len(records) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, rec := range records {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO reservations (
				id, order_id, line_item_id, unit_id, qty, status, released,
				created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`,
			rec.ID, rec.OrderID, rec.LineItemID, rec.UnitID, rec.Qty,
			string(rec.Status), rec.Released, rec.CreatedAt, rec.UpdatedAt,
		); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrVersionConflict
			}
			return fmt.Errorf("insert reservation: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit reservations: %w", err)
	}

	return nil
}

func (r *reservationRepository) ListByOrder(orderID string) ([]domain.ReservationRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, line_item_id, unit_id, qty, status, released,
		       created_at, updated_at
		FROM reservations
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	records := make([]domain.ReservationRecord, 0)
	for rows.Next() {
		var (
			rec    domain.ReservationRecord
			status string
		)
		if err := rows.Scan(
			&rec.ID, &rec.OrderID, &rec.LineItemID, &rec.UnitID, &rec.Qty,
			&status, &rec.Released, &rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		rec.Status = domain.ReservationStatus(status)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reservations: %w", err)
	}

	return records, nil
}

// MarkReleased атомарно переводит released из false в true. Ровно один
// вызов для записи увидит true, повторные получают false.
func (r *reservationRepository) MarkReleased(id string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE reservations
		SET released = TRUE,
		    status = $2,
		    updated_at = $3
		WHERE id = $1
		  AND released = FALSE
	`, id, string(domain.ReservationStatusReleased), time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("mark reservation released: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return true, nil
	}

	exists, err := r.reservationExists(ctx, id)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, domain.ErrReservationNotFound
	}

	return false, nil
}

func (r *reservationRepository) MarkCommitted(orderID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		UPDATE reservations
		SET status = $2,
		    updated_at = $3
		WHERE order_id = $1
		  AND status = $4
	`, orderID,
		string(domain.ReservationStatusCommitted),
		time.Now().UTC(),
		string(domain.ReservationStatusHeld),
	); err != nil {
		return fmt.Errorf("mark reservations committed: %w", err)
	}

	return nil
}

func (r *reservationRepository) reservationExists(ctx context.Context, id string) (bool, error) {
	var found string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM reservations WHERE id = $1`, id).Scan(&found)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check reservation exists: %w", err)
}

var _ domain.ReservationRepository = (*reservationRepository)(nil)
