package domain

import (
	"fmt"
	"strings"
	"time"
)

// OrderStatus описывает жизненный цикл заказа в ledger.
type OrderStatus string

const (
	// OrderStatusPendingPayment — заказ создан, вместимость уже закоммичена,
	// подтверждение оплаты ещё не получено.
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	// OrderStatusCompleted — оплата подтверждена, заказ финализирован.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled — заказ отменён покупателем/организатором или
	// истёк платёжный hold. Терминальный статус.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusDisputed — платёжный провайдер открыл chargeback по заказу.
	OrderStatusDisputed OrderStatus = "disputed"
	// OrderStatusRefunded — деньги возвращены клиенту. Терминальный статус.
	OrderStatusRefunded OrderStatus = "refunded"
)

// orderTransitions — явная таблица допустимых переходов статуса.
// Терминальные статусы не имеют исходящих переходов: откат назад запрещён.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPendingPayment: {OrderStatusCompleted, OrderStatusCancelled, OrderStatusDisputed},
	OrderStatusCompleted:      {OrderStatusRefunded, OrderStatusDisputed},
	OrderStatusDisputed:       {OrderStatusCompleted, OrderStatusRefunded, OrderStatusCancelled},
	OrderStatusCancelled:      nil,
	OrderStatusRefunded:       nil,
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// Terminal сообщает, является ли статус терминальным.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCancelled || s == OrderStatusRefunded
}

// CanTransitionTo проверяет переход по таблице, а не через россыпь if/else.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PaymentMethod определяет способ оплаты заказа.
type PaymentMethod string

const (
	// PaymentMethodCard — онлайн-оплата, подтверждение приходит webhook'ом.
	PaymentMethodCard PaymentMethod = "card"
	// PaymentMethodCash — оплата на месте; заказ держит hold с дедлайном.
	PaymentMethodCash PaymentMethod = "cash"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCard || m == PaymentMethodCash
}

// LineItem представляет одну позицию заказа, привязанную к sellable unit.
type LineItem struct {
	ID         string
	UnitID     string
	SKU        string
	Qty        int32
	PriceMinor int64
	CreatedAt  time.Time
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID            string
	Number        string
	CustomerID    string
	Status        OrderStatus
	PaymentMethod PaymentMethod
	Currency      string
	AmountMinor   int64
	Items         []LineItem
	Version       int64
	// ExpiresAt задан для time-boxed hold'ов (cash-оплата). nil — без дедлайна.
	ExpiresAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.AmountMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	// Сверяем сумму заказа с суммой позиций: qty * price.
	var calc int64
	for _, item := range o.Items {
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.PriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		if item.UnitID == "" {
			errs = append(errs, ErrUnitIDRequired)
		}
		calc += int64(item.Qty) * item.PriceMinor
	}
	if calc != o.AmountMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}

// HoldExpired сообщает, просрочен ли платёжный hold на момент now.
// Для заказов без дедлайна всегда false.
func (o *Order) HoldExpired(now time.Time) bool {
	return o.ExpiresAt != nil && o.ExpiresAt.Before(now)
}

// NewOrderNumber генерирует человекочитаемый номер заказа вида
// ORD-20260828-a1b2c3d4. suffix обрезается до 8 символов.
func NewOrderNumber(now time.Time, suffix string) string {
	suffix = strings.ReplaceAll(strings.ToLower(suffix), "-", "")
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), suffix)
}
