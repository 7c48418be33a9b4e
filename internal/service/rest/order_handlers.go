package rest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
	"github.com/vladislavdragonenkov/ledger/internal/service/idempotency"
	"github.com/vladislavdragonenkov/ledger/internal/service/order"
)

// createOrder оформляет заказ под защитой Idempotency-Key: повтор запроса
// с тем же ключом и телом получает сохранённый ответ, не создавая дубликат.
func (s *Server) createOrder(c *gin.Context) {
	key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
	if key == "" {
		abortWithError(c, domain.ErrIdempotencyKeyRequired)
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		abortWithError(c, err)
		return
	}

	var req checkoutRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	hash := idempotency.HashRequest("POST /v1/orders", body)
	outcome, err := s.guard.Execute(key, hash, func() (idempotency.Response, error) {
		return s.doCreateOrder(req)
	})
	if err != nil && !outcome.Replayed {
		if outcome.Response.Status != 0 {
			c.Data(outcome.Response.Status, "application/json", outcome.Response.Body)
			return
		}
		abortWithError(c, err)
		return
	}

	status := outcome.Response.Status
	if outcome.Replayed {
		// Повтор всегда успешен с точки зрения доставки.
		status = http.StatusOK
	}
	c.Data(status, "application/json", outcome.Response.Body)
}

func (s *Server) doCreateOrder(req checkoutRequest) (idempotency.Response, error) {
	input, err := s.buildCheckoutInput(req)
	if err != nil {
		return marshalResponse(httpStatus(err), errorResponse{Error: err.Error()}), err
	}

	created, err := s.orders.Create(input)
	if err != nil {
		return marshalResponse(httpStatus(err), errorResponse{Error: err.Error()}), err
	}

	return marshalResponse(http.StatusCreated, toOrderResponse(created)), nil
}

// buildCheckoutInput резолвит позиции запроса в unit'ы: по id напрямую,
// по sku через справочник.
func (s *Server) buildCheckoutInput(req checkoutRequest) (order.CheckoutInput, error) {
	items := make([]order.CheckoutItem, 0, len(req.Items))
	for _, item := range req.Items {
		unitID := strings.TrimSpace(item.UnitID)
		sku := strings.TrimSpace(item.SKU)

		if unitID == "" && sku != "" {
			unit, err := s.units.GetBySKU(sku)
			if err != nil {
				return order.CheckoutInput{}, err
			}
			unitID = unit.ID
			sku = unit.SKU
		}
		if unitID == "" {
			return order.CheckoutInput{}, domain.ErrUnitIDRequired
		}
		if sku == "" {
			unit, err := s.units.Get(unitID)
			if err != nil {
				return order.CheckoutInput{}, err
			}
			sku = unit.SKU
		}

		items = append(items, order.CheckoutItem{
			UnitID:     unitID,
			SKU:        sku,
			Qty:        item.Qty,
			PriceMinor: item.PriceMinor,
		})
	}

	return order.CheckoutInput{
		CustomerID:    req.CustomerID,
		Currency:      req.Currency,
		PaymentMethod: domain.PaymentMethod(strings.ToLower(req.PaymentMethod)),
		Items:         items,
	}, nil
}

// getOrder принимает и внутренний id, и человекочитаемый номер.
func (s *Server) getOrder(c *gin.Context) {
	ref := c.Param("id")

	found, err := s.orders.Get(ref)
	if errors.Is(err, domain.ErrOrderNotFound) {
		found, err = s.orders.GetByNumber(ref)
	}
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, toOrderResponse(found))
}

func (s *Server) getTimeline(c *gin.Context) {
	events, err := s.orders.Timeline(c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": toTimelineResponse(events)})
}

func (s *Server) cancelOrder(c *gin.Context) {
	s.releaseOperation(c, s.orders.Cancel, string(domain.OrderStatusCancelled))
}

func (s *Server) refundOrder(c *gin.Context) {
	s.releaseOperation(c, s.orders.Refund, string(domain.OrderStatusRefunded))
}

func (s *Server) releaseOperation(c *gin.Context, op func(orderID, reason string) (int, error), resultStatus string) {
	orderID := c.Param("id")

	var req reasonRequest
	if c.Request.Body != nil && c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
			return
		}
	}

	released, err := op(orderID, req.Reason)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, releaseResponse{
		OrderID:  orderID,
		Status:   resultStatus,
		Released: released,
	})
}

func (s *Server) runSweep(c *gin.Context) {
	result, err := s.sweep.RunOnce(c.Request.Context(), time.Now().UTC())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, sweepResponse{
		ProcessedCount: result.Processed,
		ReleasedCount:  result.Released,
	})
}

func marshalResponse(status int, body interface{}) idempotency.Response {
	data, err := json.Marshal(body)
	if err != nil {
		return idempotency.Response{Status: http.StatusInternalServerError}
	}
	return idempotency.Response{Status: status, Body: data}
}
