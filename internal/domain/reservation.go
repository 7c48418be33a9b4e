package domain

import "time"

// ReservationStatus отражает статус коммита вместимости под позицию заказа.
type ReservationStatus string

const (
	// ReservationStatusHeld — вместимость закоммичена, заказ ещё не финализирован.
	ReservationStatusHeld ReservationStatus = "held"
	// ReservationStatusCommitted — заказ оплачен, коммит стал окончательным.
	ReservationStatusCommitted ReservationStatus = "committed"
	// ReservationStatusReleased — вместимость возвращена unit'у (компенсация).
	ReservationStatusReleased ReservationStatus = "released"
)

// ReservationRecord описывает коммит qty единиц unit'а под одну позицию заказа.
// Флаг Released защищает от двойной компенсации: release выполняется только
// тем вызовом, который первым перевёл флаг из false в true.
type ReservationRecord struct {
	ID         string
	OrderID    string
	LineItemID string
	UnitID     string
	Qty        int32
	Status     ReservationStatus
	Released   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Validate проверяет, корректно ли заполнены ключевые поля резерва.
func (r *ReservationRecord) Validate() []error {
	var errs []error

	if r.OrderID == "" {
		errs = append(errs, ErrOrderIDRequired)
	}
	if r.UnitID == "" {
		errs = append(errs, ErrUnitIDRequired)
	}
	if r.Qty <= 0 {
		errs = append(errs, ErrReservationQtyInvalid)
	}

	return errs
}
