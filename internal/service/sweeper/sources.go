package sweeper

import (
	"time"

	"github.com/samber/lo"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

// OrderExpirer отменяет заказ с истёкшим платёжным hold'ом.
type OrderExpirer interface {
	ExpireHold(orderID string) (int, error)
}

// EntitlementExpirer закрывает entitlement с истёкшим окном действия.
type EntitlementExpirer interface {
	Get(id string) (domain.Entitlement, error)
	ListExpired(before time.Time, limit int) ([]domain.Entitlement, error)
	Expire(id string) (bool, error)
}

// holdSource обходит заказы, не оплаченные до дедлайна hold'а.
type holdSource struct {
	orders  domain.OrderRepository
	expirer OrderExpirer
}

// NewHoldSource создаёт источник просроченных платёжных hold'ов.
func NewHoldSource(orders domain.OrderRepository, expirer OrderExpirer) Source {
	return &holdSource{orders: orders, expirer: expirer}
}

func (s *holdSource) Name() string { return "order_holds" }

func (s *holdSource) ListExpired(before time.Time, limit int) ([]string, error) {
	orders, err := s.orders.ListExpiredHolds(before, limit)
	if err != nil {
		return nil, err
	}
	return lo.Map(orders, func(order domain.Order, _ int) string {
		return order.ID
	}), nil
}

func (s *holdSource) Expire(id string) (int, error) {
	return s.expirer.ExpireHold(id)
}

// entitlementSource обходит активные entitlement'ы с истёкшим окном.
type entitlementSource struct {
	expirer EntitlementExpirer
}

// NewEntitlementSource создаёт источник просроченных entitlement'ов.
func NewEntitlementSource(expirer EntitlementExpirer) Source {
	return &entitlementSource{expirer: expirer}
}

func (s *entitlementSource) Name() string { return "entitlements" }

func (s *entitlementSource) ListExpired(before time.Time, limit int) ([]string, error) {
	expired, err := s.expirer.ListExpired(before, limit)
	if err != nil {
		return nil, err
	}
	return lo.Map(expired, func(e domain.Entitlement, _ int) string {
		return e.ID
	}), nil
}

func (s *entitlementSource) Expire(id string) (int, error) {
	e, err := s.expirer.Get(id)
	if err != nil {
		return 0, err
	}

	terminated, err := s.expirer.Expire(id)
	if err != nil {
		return 0, err
	}
	if !terminated {
		return 0, nil
	}
	// В released_count попадает вся вместимость entitlement'а, не одна запись.
	return int(e.Qty), nil
}
