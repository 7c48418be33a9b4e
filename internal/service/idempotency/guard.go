package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

const defaultGuardTTL = 24 * time.Hour

// Response — кэшируемый результат защищаемой операции.
type Response struct {
	Status int
	Body   []byte
}

// Outcome — итог Execute: либо свежий результат, либо сохранённый повтор.
type Outcome struct {
	Response Response
	// Replayed выставлен, если ответ взят из кэша, а операция не выполнялась.
	Replayed bool
}

// Guard оборачивает мутирующие операции в протокол идемпотентности:
// первый запрос с ключом выполняет операцию и кэширует ответ, повтор с тем
// же ключом и телом получает кэш, повтор с другим телом отклоняется.
type Guard struct {
	repo   domain.IdempotencyRepository
	logger *log.Entry
	ttl    time.Duration
}

// GuardOption настраивает Guard.
type GuardOption func(*Guard)

// WithTTL задаёт срок хранения записей идемпотентности.
func WithTTL(ttl time.Duration) GuardOption {
	return func(g *Guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// NewGuard создаёт Guard поверх репозитория идемпотентности.
func NewGuard(repo domain.IdempotencyRepository, logger *log.Entry, options ...GuardOption) *Guard {
	if logger == nil {
		logger = log.WithField("component", "idempotency-guard")
	}

	g := &Guard{
		repo:   repo,
		logger: logger,
		ttl:    defaultGuardTTL,
	}
	for _, option := range options {
		option(g)
	}
	return g
}

// HashRequest строит детерминированный отпечаток запроса из метода и тела.
func HashRequest(method string, body []byte) string {
	payload := make([]byte, 0, len(method)+1+len(body))
	payload = append(payload, method...)
	payload = append(payload, ':')
	payload = append(payload, body...)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Execute выполняет fn под защитой ключа идемпотентности. Повтор с тем же
// ключом и хэшем возвращает сохранённый ответ; повтор, пока первый запрос
// ещё в полёте, получает ErrIdempotencyInFlight.
func (g *Guard) Execute(key, requestHash string, fn func() (Response, error)) (Outcome, error) {
	if g.repo == nil {
		resp, err := fn()
		return Outcome{Response: resp}, err
	}

	_, err := g.repo.CreateProcessing(key, requestHash, time.Now().UTC().Add(g.ttl))
	if err != nil {
		return g.replay(key, err)
	}

	resp, runErr := fn()
	if runErr != nil {
		if cacheErr := g.repo.MarkFailed(key, resp.Body, resp.Status); cacheErr != nil {
			g.logger.WithError(cacheErr).WithField("idempotency_key", key).Warn("failed to store failure response")
		}
		return Outcome{Response: resp}, runErr
	}

	if cacheErr := g.repo.MarkDone(key, resp.Body, resp.Status); cacheErr != nil {
		g.logger.WithError(cacheErr).WithField("idempotency_key", key).Warn("failed to store success response")
	}

	return Outcome{Response: resp}, nil
}

func (g *Guard) replay(key string, createErr error) (Outcome, error) {
	if errors.Is(createErr, domain.ErrIdempotencyHashMismatch) {
		return Outcome{}, createErr
	}
	if !errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists) {
		return Outcome{}, fmt.Errorf("register idempotency key: %w", createErr)
	}

	record, err := g.repo.Get(key)
	if err != nil {
		return Outcome{}, err
	}

	switch record.Status {
	case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
		g.logger.WithFields(log.Fields{
			"idempotency_key": key,
			"status":          record.Status,
		}).Info("replaying cached response")
		return Outcome{
			Response: Response{Status: record.HTTPStatus, Body: record.ResponseBody},
			Replayed: true,
		}, nil
	default:
		return Outcome{}, domain.ErrIdempotencyInFlight
	}
}
