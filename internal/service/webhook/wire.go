package webhook

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

// providerPayload — wire-формат события провайдера. Суммы приходят
// десятичными строками в мажорных единицах ("49.90"), во внутреннем
// представлении храним только минорные.
type providerPayload struct {
	ProviderEventID string `json:"provider_event_id"`
	Type            string `json:"type"`
	OrderRef        string `json:"order_ref"`
	DisputeID       string `json:"dispute_id"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	Outcome         string `json:"outcome"`
	Reason          string `json:"reason"`
	OccurredAt      string `json:"occurred_at"`
}

// ParseProviderPayload декодирует и нормализует webhook-событие провайдера.
func ParseProviderPayload(data []byte) (domain.ProviderEvent, error) {
	var payload providerPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return domain.ProviderEvent{}, fmt.Errorf("decode provider payload: %w", err)
	}

	event := domain.ProviderEvent{
		ProviderEventID: strings.TrimSpace(payload.ProviderEventID),
		Type:            domain.ProviderEventType(payload.Type),
		OrderRef:        strings.TrimSpace(payload.OrderRef),
		DisputeID:       strings.TrimSpace(payload.DisputeID),
		Currency:        strings.ToUpper(strings.TrimSpace(payload.Currency)),
		Outcome:         strings.TrimSpace(payload.Outcome),
		Reason:          payload.Reason,
	}

	if payload.Amount != "" {
		minor, err := parseAmountMinor(payload.Amount)
		if err != nil {
			return domain.ProviderEvent{}, err
		}
		event.AmountMinor = minor
	}

	if payload.OccurredAt != "" {
		occurred, err := time.Parse(time.RFC3339, payload.OccurredAt)
		if err != nil {
			return domain.ProviderEvent{}, fmt.Errorf("parse occurred_at: %w", err)
		}
		event.OccurredAt = occurred.UTC()
	}

	if errs := event.Validate(); len(errs) > 0 {
		return domain.ProviderEvent{}, errs[0]
	}

	return event, nil
}

// parseAmountMinor переводит десятичную строку мажорных единиц в минорные.
// Провайдер присылает суммы с точностью до цента; третий знак после запятой
// означает повреждённое событие.
func parseAmountMinor(amount string) (int64, error) {
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if value.IsNegative() {
		return 0, fmt.Errorf("parse amount %q: %w", amount, domain.ErrAmountNegative)
	}

	minor := value.Shift(2)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("parse amount %q: more than two decimal places", amount)
	}
	return minor.IntPart(), nil
}
