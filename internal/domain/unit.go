package domain

import "time"

// SellableUnit описывает один продаваемый ресурс с ограниченной (или
// безлимитной) вместимостью: тариф билетов, SKU товара, слот тарифного плана.
type SellableUnit struct {
	ID   string
	SKU  string
	Name string
	// Capacity — полная вместимость. nil означает безлимитный unit.
	Capacity *int64
	// Committed — сколько единиц уже закоммичено под заказы.
	// Инвариант: 0 <= Committed <= *Capacity для всех наблюдателей.
	Committed int64
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Unlimited сообщает, ограничена ли вместимость unit.
func (u *SellableUnit) Unlimited() bool {
	return u.Capacity == nil
}

// Available возвращает свободный остаток. Для безлимитного unit возвращается
// (0, false).
func (u *SellableUnit) Available() (int64, bool) {
	if u.Capacity == nil {
		return 0, false
	}
	avail := *u.Capacity - u.Committed
	if avail < 0 {
		avail = 0
	}
	return avail, true
}

// CanReserve проверяет, поместится ли qty в свободный остаток.
func (u *SellableUnit) CanReserve(qty int64) bool {
	if qty <= 0 {
		return false
	}
	if u.Capacity == nil {
		return true
	}
	return u.Committed+qty <= *u.Capacity
}

// Validate проверяет базовые инварианты unit и возвращает список замечаний.
func (u *SellableUnit) Validate() []error {
	var errs []error

	if u.ID == "" {
		errs = append(errs, ErrUnitIDRequired)
	}
	if u.Committed < 0 {
		errs = append(errs, ErrCommittedNegative)
	}
	if u.Capacity != nil && *u.Capacity < 0 {
		errs = append(errs, ErrCapacityNegative)
	}

	return errs
}
