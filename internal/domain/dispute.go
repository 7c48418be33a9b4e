package domain

import "time"

// DisputeStatus описывает жизненный цикл chargeback-диспута у провайдера.
type DisputeStatus string

const (
	// DisputeStatusOpen — провайдер открыл диспут; средства под вопросом.
	DisputeStatusOpen DisputeStatus = "open"
	// DisputeStatusUnderReview — доказательства отправлены, провайдер рассматривает.
	DisputeStatusUnderReview DisputeStatus = "under_review"
	// DisputeStatusWon — диспут выигран, заказ восстанавливается.
	DisputeStatusWon DisputeStatus = "won"
	// DisputeStatusLost — диспут проигран, заказ уходит в refund.
	DisputeStatusLost DisputeStatus = "lost"
	// DisputeStatusClosed — провайдер закрыл диспут без проигрыша.
	DisputeStatusClosed DisputeStatus = "closed"
)

// disputeTransitions — таблица допустимых переходов статуса диспута.
// UNDER_REVIEW — необязательная административная ступень.
var disputeTransitions = map[DisputeStatus][]DisputeStatus{
	DisputeStatusOpen:        {DisputeStatusUnderReview, DisputeStatusWon, DisputeStatusLost, DisputeStatusClosed},
	DisputeStatusUnderReview: {DisputeStatusWon, DisputeStatusLost, DisputeStatusClosed},
	DisputeStatusWon:         nil,
	DisputeStatusLost:        nil,
	DisputeStatusClosed:      nil,
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s DisputeStatus) Valid() bool {
	_, ok := disputeTransitions[s]
	return ok
}

// Resolved сообщает, достиг ли диспут терминального исхода.
func (s DisputeStatus) Resolved() bool {
	return s == DisputeStatusWon || s == DisputeStatusLost || s == DisputeStatusClosed
}

// CanTransitionTo проверяет переход по таблице.
func (s DisputeStatus) CanTransitionTo(next DisputeStatus) bool {
	for _, allowed := range disputeTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// DisputeRecord хранит состояние диспута, привязанного к заказу.
// Создаётся ровно один раз на provider id (идемпотентная вставка) и далее
// обновляется по мере резолюции у провайдера.
type DisputeRecord struct {
	ID string
	// ProviderID — уникальный идентификатор диспута у платёжного провайдера.
	ProviderID    string
	OrderID       string
	Status        DisputeStatus
	AmountMinor   int64
	Currency      string
	Reason        string
	EvidenceDueAt *time.Time
	ResolvedAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Validate проверяет ключевые поля диспута.
func (d *DisputeRecord) Validate() []error {
	var errs []error

	if d.ProviderID == "" {
		errs = append(errs, ErrDisputeProviderIDRequired)
	}
	if d.OrderID == "" {
		errs = append(errs, ErrOrderIDRequired)
	}
	if d.AmountMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	return errs
}
