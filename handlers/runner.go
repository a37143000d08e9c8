package handlers

import (
	"net/http"

	"canteen-runner-api/middleware"
	"canteen-runner-api/service"

	"github.com/gin-gonic/gin"
)

type DeliverRequest struct {
	Code string `json:"code" binding:"required"`
}

// GetAvailableOrders shows pending orders of other users, optionally narrowed
// by a location substring
func (h *Handler) GetAvailableOrders(c *gin.Context) {
	orders, err := h.feed.Available(c.Request.Context(), middleware.GetUserID(c), c.Query("location"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(orders), "orders": orders})
}

// GetAcceptedOrders returns orders the caller picked and has not delivered yet
func (h *Handler) GetAcceptedOrders(c *gin.Context) {
	orders, err := h.feed.Accepted(c.Request.Context(), middleware.GetUserID(c), c.Query("location"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(orders), "orders": orders})
}

func (h *Handler) GetCompletedOrders(c *gin.Context) {
	orders, err := h.feed.Completed(c.Request.Context(), middleware.GetUserID(c), c.Query("location"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(orders), "orders": orders})
}

// AcceptOrder claims a pending order for the caller. Only one runner can win.
func (h *Handler) AcceptOrder(c *gin.Context) {
	runnerID := middleware.GetUserID(c)
	order, err := h.orders.Accept(c.Request.Context(), runnerID, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Order accepted",
		"order":   service.NewRunnerOrder(*order, runnerID),
	})
}

// DeliverOrder completes a picked order with the buyer's 6-digit code
func (h *Handler) DeliverOrder(c *gin.Context) {
	var req DeliverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	order, err := h.orders.Deliver(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), req.Code)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "Delivery confirmed!",
		"order_id": order.ID,
		"status":   order.Status,
	})
}
