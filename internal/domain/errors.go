package domain

import (
	"errors"
	"fmt"
)

var (
	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = errors.New("customer_id is required")
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrItemsRequired = errors.New("order must contain at least one line item")
	// Ошибка неизвестного способа оплаты.
	ErrPaymentMethodInvalid = errors.New("payment method must be card or cash")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("amount_minor must be non-negative")
	// Ошибка при некорректном количестве (<= 0).
	ErrItemQtyInvalid = errors.New("line item qty must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("line item price must be non-negative")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order amount does not match line items sum")
	// Ошибка отсутствующего идентификатора заказа в связанных записях.
	ErrOrderIDRequired = errors.New("order_id is required")
	// Ошибка отсутствующего идентификатора sellable unit.
	ErrUnitIDRequired = errors.New("unit_id is required")
	// Ошибка некорректного количества в резерве.
	ErrReservationQtyInvalid = errors.New("reservation qty must be greater than zero")
	// Ошибка отрицательного committed-счётчика.
	ErrCommittedNegative = errors.New("unit committed count must be non-negative")
	// Ошибка отрицательной вместимости.
	ErrCapacityNegative = errors.New("unit capacity must be non-negative")
	// Ошибка некорректного окна действия entitlement.
	ErrEntitlementWindowInvalid = errors.New("entitlement window is invalid")
	// Ошибка неизвестного вида entitlement.
	ErrEntitlementKindInvalid = errors.New("entitlement kind must be subscription or promotion")
	// Ошибка отсутствующего внешнего идентификатора диспута.
	ErrDisputeProviderIDRequired = errors.New("dispute provider_id is required")

	// ErrUnitNotFound возвращается, если sellable unit не найден в хранилище.
	ErrUnitNotFound = errors.New("sellable unit not found")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrReservationNotFound возвращается, если резерв не найден.
	ErrReservationNotFound = errors.New("reservation not found")
	// ErrEntitlementNotFound возвращается, если entitlement не найден.
	ErrEntitlementNotFound = errors.New("entitlement not found")
	// ErrDisputeNotFound возвращается, если диспут не найден.
	ErrDisputeNotFound = errors.New("dispute not found")

	// ErrInsufficientCapacity — у sellable unit не хватает свободной вместимости.
	ErrInsufficientCapacity = errors.New("insufficient capacity")
	// ErrInvalidTransition — попытка перевести запись в недопустимый статус.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrVersionConflict = errors.New("version conflict")
	// ErrUnknownDisputeOutcome — провайдер прислал код, которого нет в таблице маппинга.
	ErrUnknownDisputeOutcome = errors.New("unknown dispute outcome code")

	// ErrIdempotencyKeyRequired — idempotency-key не передан.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — хэш запроса не передан.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists — запись с таким ключом уже существует.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyKeyNotFound — запись с таким ключом отсутствует.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrIdempotencyHashMismatch — ключ переиспользован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency request hash mismatch")
	// ErrIdempotencyInFlight — запрос с этим ключом ещё обрабатывается.
	ErrIdempotencyInFlight = errors.New("idempotency request is still in flight")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// InsufficientInventoryError описывает первый unit, для которого не хватило
// вместимости при all-or-nothing резервировании заказа.
type InsufficientInventoryError struct {
	UnitID    string
	Requested int64
	Available int64
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient capacity for unit %s: requested %d, available %d",
		e.UnitID, e.Requested, e.Available)
}

// Unwrap позволяет проверять ошибку через errors.Is(err, ErrInsufficientCapacity).
func (e *InsufficientInventoryError) Unwrap() error {
	return ErrInsufficientCapacity
}

// IsInsufficientInventory проверяет, вызвана ли ошибка нехваткой вместимости.
func IsInsufficientInventory(err error) bool {
	return errors.Is(err, ErrInsufficientCapacity)
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}
