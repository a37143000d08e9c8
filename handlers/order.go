package handlers

import (
	"net/http"
	"time"

	"canteen-runner-api/middleware"
	"canteen-runner-api/service"

	"github.com/gin-gonic/gin"
)

type PlaceOrderRequest struct {
	Canteen          string   `json:"canteen" binding:"required,canteen"`
	DeliveryLocation string   `json:"delivery_location" binding:"required,campus_location"`
	Items            []string `json:"items" binding:"required,min=1,dive,required"`
}

// PlaceOrder creates a new pending order for the caller
func (h *Handler) PlaceOrder(c *gin.Context) {
	var req PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	order, err := h.orders.Place(c.Request.Context(), middleware.GetUserID(c), service.PlaceOrderInput{
		Canteen:          req.Canteen,
		DeliveryLocation: req.DeliveryLocation,
		Items:            req.Items,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Order placed successfully",
		"order":   order,
	})
}

// GetMyOrders returns the caller's orders, newest first
func (h *Handler) GetMyOrders(c *gin.Context) {
	orders, err := h.orders.ListForBuyer(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":   len(orders),
		"summary": service.StatusSummary(orders),
		"orders":  orders,
	})
}

// GetOrderDetail returns a single order with its status history
func (h *Handler) GetOrderDetail(c *gin.Context) {
	order, err := h.orders.GetForBuyer(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	elapsed := time.Since(order.CreatedAt).Minutes()
	c.JSON(http.StatusOK, gin.H{
		"order":           order,
		"minutes_elapsed": int(elapsed),
	})
}

// CancelOrder cancels the caller's order while it is still pending
func (h *Handler) CancelOrder(c *gin.Context) {
	order, err := h.orders.Cancel(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "Order cancelled successfully",
		"order_id": order.ID,
		"status":   order.Status,
	})
}
