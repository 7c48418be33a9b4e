package rest

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// defaultDisputeListLimit ограничивает операторскую выборку диспутов.
const defaultDisputeListLimit = 50

// handlePaymentWebhook принимает события платёжного провайдера. Повторная
// доставка получает сохранённый ответ со статусом 200: провайдер считает
// событие принятым и прекращает ретраи.
func (s *Server) handlePaymentWebhook(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		abortWithError(c, err)
		return
	}

	outcome, err := s.webhooks.Process(raw)
	if outcome.Replayed {
		c.Data(http.StatusOK, "application/json", outcome.Response.Body)
		return
	}
	if err != nil && outcome.Response.Status == 0 {
		abortWithError(c, err)
		return
	}

	c.Data(outcome.Response.Status, "application/json", outcome.Response.Body)
}

func (s *Server) listDisputes(c *gin.Context) {
	if orderID := c.Query("order_id"); orderID != "" {
		records, err := s.disputes.ListByOrder(orderID)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"disputes": toDisputeListResponse(records)})
		return
	}

	records, err := s.disputes.List(defaultDisputeListLimit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"disputes": toDisputeListResponse(records)})
}

func (s *Server) getDispute(c *gin.Context) {
	record, err := s.disputes.Get(c.Param("provider_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toDisputeResponse(record))
}
