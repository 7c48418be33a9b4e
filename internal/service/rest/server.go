package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
	"github.com/vladislavdragonenkov/ledger/internal/service/entitlement"
	"github.com/vladislavdragonenkov/ledger/internal/service/idempotency"
	"github.com/vladislavdragonenkov/ledger/internal/service/order"
	"github.com/vladislavdragonenkov/ledger/internal/service/sweeper"
)

// IdempotencyKeyHeader — обязательный заголовок мутирующих запросов API.
const IdempotencyKeyHeader = "Idempotency-Key"

// OrderAPI — операции заказа, доступные через HTTP.
type OrderAPI interface {
	Create(input order.CheckoutInput) (domain.Order, error)
	Get(orderID string) (domain.Order, error)
	GetByNumber(number string) (domain.Order, error)
	Timeline(orderID string) ([]domain.TimelineEvent, error)
	Cancel(orderID, reason string) (int, error)
	Refund(orderID, reason string) (int, error)
}

// DisputeAPI — операторские представления диспутов.
type DisputeAPI interface {
	Get(providerID string) (domain.DisputeRecord, error)
	List(limit int) ([]domain.DisputeRecord, error)
	ListByOrder(orderID string) ([]domain.DisputeRecord, error)
}

// EntitlementAPI — выдача и отзыв time-boxed entitlement'ов.
type EntitlementAPI interface {
	Grant(input entitlement.GrantInput) (domain.Entitlement, error)
	Revoke(id string) (bool, error)
	ListByOrder(orderID string) ([]domain.Entitlement, error)
}

// WebhookAPI обрабатывает сырые события платёжного провайдера.
type WebhookAPI interface {
	Process(raw []byte) (idempotency.Outcome, error)
}

// SweepAPI запускает один цикл уборки по требованию.
type SweepAPI interface {
	RunOnce(ctx context.Context, before time.Time) (sweeper.Result, error)
}

// Server — HTTP-поверхность ledger: checkout, webhooks провайдера,
// операторские view и триггер sweep'а для внешнего cron.
type Server struct {
	orders       OrderAPI
	units        domain.UnitRepository
	disputes     DisputeAPI
	entitlements EntitlementAPI
	webhooks     WebhookAPI
	sweep        SweepAPI
	guard        *idempotency.Guard
	logger       *log.Entry
}

// NewServer создаёт HTTP-сервер API.
func NewServer(
	orders OrderAPI,
	units domain.UnitRepository,
	disputes DisputeAPI,
	entitlements EntitlementAPI,
	webhooks WebhookAPI,
	sweep SweepAPI,
	guard *idempotency.Guard,
	logger *log.Entry,
) *Server {
	if logger == nil {
		logger = log.WithField("component", "rest")
	}
	return &Server{
		orders:       orders,
		units:        units,
		disputes:     disputes,
		entitlements: entitlements,
		webhooks:     webhooks,
		sweep:        sweep,
		guard:        guard,
		logger:       logger,
	}
}

// Router собирает gin-маршрутизатор со всеми эндпоинтами API.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	v1 := router.Group("/v1")
	{
		v1.POST("/orders", s.createOrder)
		v1.GET("/orders/:id", s.getOrder)
		v1.GET("/orders/:id/timeline", s.getTimeline)
		v1.POST("/orders/:id/cancel", s.cancelOrder)
		v1.POST("/orders/:id/refund", s.refundOrder)

		v1.POST("/webhooks/payment", s.handlePaymentWebhook)

		v1.GET("/disputes", s.listDisputes)
		v1.GET("/disputes/:provider_id", s.getDispute)

		v1.POST("/entitlements", s.grantEntitlement)
		v1.GET("/entitlements", s.listEntitlements)
		v1.POST("/entitlements/:id/revoke", s.revokeEntitlement)

		v1.POST("/sweep/run", s.runSweep)
	}

	return router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		entry := s.logger.WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
			"status": c.Writer.Status(),
		})
		if len(c.Errors) > 0 {
			entry.Warn(c.Errors.String())
			return
		}
		entry.Debug("request handled")
	}
}

// httpStatus отображает доменные ошибки на коды ответов.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrUnitNotFound),
		errors.Is(err, domain.ErrDisputeNotFound),
		errors.Is(err, domain.ErrEntitlementNotFound),
		errors.Is(err, domain.ErrReservationNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientCapacity),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrVersionConflict),
		errors.Is(err, domain.ErrIdempotencyInFlight):
		return http.StatusConflict
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrUnknownDisputeOutcome):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrCustomerRequired),
		errors.Is(err, domain.ErrCurrencyRequired),
		errors.Is(err, domain.ErrItemsRequired),
		errors.Is(err, domain.ErrPaymentMethodInvalid),
		errors.Is(err, domain.ErrItemQtyInvalid),
		errors.Is(err, domain.ErrItemPriceInvalid),
		errors.Is(err, domain.ErrOrderIDRequired),
		errors.Is(err, domain.ErrUnitIDRequired),
		errors.Is(err, domain.ErrReservationQtyInvalid),
		errors.Is(err, domain.ErrEntitlementKindInvalid),
		errors.Is(err, domain.ErrEntitlementWindowInvalid),
		errors.Is(err, domain.ErrIdempotencyKeyRequired):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(httpStatus(err), errorResponse{Error: err.Error()})
}
