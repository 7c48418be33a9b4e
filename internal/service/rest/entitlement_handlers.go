package rest

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
	"github.com/vladislavdragonenkov/ledger/internal/service/entitlement"
)

// grantEntitlement выдаёт time-boxed entitlement по оплаченному заказу.
// Вместимость под него сервис перенимает у резерва заказа.
func (s *Server) grantEntitlement(c *gin.Context) {
	var req entitlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	found, err := s.orders.Get(strings.TrimSpace(req.OrderID))
	if err != nil {
		abortWithError(c, err)
		return
	}
	// Entitlement выдаётся только по оплаченному заказу.
	if found.Status != domain.OrderStatusCompleted {
		abortWithError(c, fmt.Errorf("%w: order %s is %s, want %s",
			domain.ErrInvalidTransition, found.ID, found.Status, domain.OrderStatusCompleted))
		return
	}

	kind := domain.EntitlementKind(strings.ToLower(strings.TrimSpace(req.Kind)))
	if !kind.Valid() {
		abortWithError(c, fmt.Errorf("%w: %q", domain.ErrEntitlementKindInvalid, req.Kind))
		return
	}

	granted, err := s.entitlements.Grant(entitlement.GrantInput{
		OrderID:   found.ID,
		UnitID:    strings.TrimSpace(req.UnitID),
		Kind:      kind,
		Qty:       req.Qty,
		StartedAt: req.StartedAt,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toEntitlementResponse(granted))
}

func (s *Server) listEntitlements(c *gin.Context) {
	orderID := strings.TrimSpace(c.Query("order_id"))
	if orderID == "" {
		abortWithError(c, domain.ErrOrderIDRequired)
		return
	}

	listed, err := s.entitlements.ListByOrder(orderID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entitlements": toEntitlementListResponse(listed)})
}

// revokeEntitlement отзывает entitlement до истечения окна; повтор — no-op.
func (s *Server) revokeEntitlement(c *gin.Context) {
	id := c.Param("id")

	revoked, err := s.entitlements.Revoke(id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, revokeEntitlementResponse{ID: id, Revoked: revoked})
}
