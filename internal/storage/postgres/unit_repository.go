package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

type unitRepository struct {
	db *sql.DB
}

// NewUnitRepository создаёт PostgreSQL-реализацию UnitRepository.
func NewUnitRepository(store *Store) domain.UnitRepository {
	return &unitRepository{db: store.DB()}
}

func (r *unitRepository) Create(unit domain.SellableUnit) error {
	if errs := unit.Validate(); len(errs) > 0 {
		return errors.Join(errs...)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sellable_units (
			id, sku, name, capacity, committed, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		unit.ID, unit.SKU, unit.Name, unit.Capacity,
		unit.Committed, unit.Version, unit.CreatedAt, unit.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrVersionConflict
		}
		return fmt.Errorf("insert sellable unit: %w", err)
	}

	return nil
}

func (r *unitRepository) Get(id string) (domain.SellableUnit, error) {
	return r.getBy("id", id)
}

func (r *unitRepository) GetBySKU(sku string) (domain.SellableUnit, error) {
	return r.getBy("sku", sku)
}

// Reserve выполняет проверку вместимости и инкремент одним условным UPDATE,
// без чтения перед записью. Конкурентные вызовы сериализует сама база на
// уровне строки.
func (r *unitRepository) Reserve(unitID string, qty int32) error {
	if qty <= 0 {
		return domain.ErrReservationQtyInvalid
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE sellable_units
		SET committed = committed + $2,
		    version = version + 1,
		    updated_at = $3
		WHERE id = $1
		  AND (capacity IS NULL OR committed + $2 <= capacity)
	`, unitID, qty, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("reserve unit: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	unit, err := r.Get(unitID)
	if err != nil {
		return err
	}

	available, _ := unit.Available()
	return &domain.InsufficientInventoryError{
		UnitID:    unitID,
		Requested: int64(qty),
		Available: available,
	}
}

// Release снимает qty с committed, не опускаясь ниже нуля.
func (r *unitRepository) Release(unitID string, qty int32) error {
	if qty <= 0 {
		return domain.ErrReservationQtyInvalid
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE sellable_units
		SET committed = GREATEST(committed - $2, 0),
		    version = version + 1,
		    updated_at = $3
		WHERE id = $1
	`, unitID, qty, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("release unit: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrUnitNotFound
	}

	return nil
}

func (r *unitRepository) getBy(column, value string) (domain.SellableUnit, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		unit     domain.SellableUnit
		capacity sql.NullInt64
	)

	err := r.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT id, sku, name, capacity, committed, version, created_at, updated_at
		FROM sellable_units
		WHERE %s = $1
	`, column), value).Scan(
		&unit.ID, &unit.SKU, &unit.Name, &capacity,
		&unit.Committed, &unit.Version, &unit.CreatedAt, &unit.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.SellableUnit{}, domain.ErrUnitNotFound
		}
		return domain.SellableUnit{}, fmt.Errorf("select sellable unit: %w", err)
	}

	if capacity.Valid {
		v := capacity.Int64
		unit.Capacity = &v
	}

	return unit, nil
}

var _ domain.UnitRepository = (*unitRepository)(nil)
