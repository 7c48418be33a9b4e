package domain

import "time"

// EntitlementKind различает вертикали time-boxed entitlement'ов.
type EntitlementKind string

const (
	// EntitlementKindSubscription — подписка на тарифный план.
	EntitlementKindSubscription EntitlementKind = "subscription"
	// EntitlementKindPromotion — промо-слот с ограниченным сроком действия.
	EntitlementKindPromotion EntitlementKind = "promotion"
)

// Valid сообщает, известен ли вид entitlement'а.
func (k EntitlementKind) Valid() bool {
	return k == EntitlementKindSubscription || k == EntitlementKindPromotion
}

// EntitlementStatus описывает жизненный цикл entitlement'а.
type EntitlementStatus string

const (
	// EntitlementStatusActive — окно действия открыто, вместимость закоммичена.
	EntitlementStatusActive EntitlementStatus = "active"
	// EntitlementStatusExpired — окно закрыто sweep'ом, вместимость возвращена.
	EntitlementStatusExpired EntitlementStatus = "expired"
	// EntitlementStatusRevoked — отозван вручную до истечения окна.
	EntitlementStatusRevoked EntitlementStatus = "revoked"
)

// Terminal сообщает, завершён ли жизненный цикл entitlement'а.
func (s EntitlementStatus) Terminal() bool {
	return s == EntitlementStatusExpired || s == EntitlementStatusRevoked
}

// Entitlement — вариант резерва с окном действия вместо одноразового
// потребления: подписка или промо-слот. Подчиняется той же дисциплине
// expire-and-release, что и платёжные hold'ы заказов.
type Entitlement struct {
	ID        string
	OrderID   string
	UnitID    string
	Kind      EntitlementKind
	Status    EntitlementStatus
	Qty       int32
	StartedAt time.Time
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate проверяет ключевые поля entitlement'а.
func (e *Entitlement) Validate() []error {
	var errs []error

	if e.UnitID == "" {
		errs = append(errs, ErrUnitIDRequired)
	}
	if !e.Kind.Valid() {
		errs = append(errs, ErrEntitlementKindInvalid)
	}
	if e.Qty <= 0 {
		errs = append(errs, ErrReservationQtyInvalid)
	}
	if !e.ExpiresAt.After(e.StartedAt) {
		errs = append(errs, ErrEntitlementWindowInvalid)
	}

	return errs
}

// ActiveAt проверяет, попадает ли момент t в окно действия.
func (e *Entitlement) ActiveAt(t time.Time) bool {
	return e.Status == EntitlementStatusActive &&
		!t.Before(e.StartedAt) && t.Before(e.ExpiresAt)
}
