package handlers

import (
	"net/http"

	"canteen-runner-api/models"
	"canteen-runner-api/statemachine"

	"github.com/gin-gonic/gin"
	healthgo "github.com/hellofresh/health-go/v5"
)

// ListCanteens returns the canteens orders can be placed against (public)
func (h *Handler) ListCanteens(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"count": len(models.Canteens), "canteens": models.Canteens})
}

// ListLocations returns the delivery points on campus (public)
func (h *Handler) ListLocations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"count": len(models.Locations), "locations": models.Locations})
}

// GetStateMachineInfo returns the full state machine for informational purposes
func (h *Handler) GetStateMachineInfo(c *gin.Context) {
	terminal := []models.OrderStatus{}
	for _, s := range []models.OrderStatus{models.StatusPending, models.StatusPicked, models.StatusDelivered, models.StatusCancelled} {
		if statemachine.IsTerminal(s) {
			terminal = append(terminal, s)
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"state_machine":   statemachine.GetAllTransitions(),
		"terminal_states": terminal,
		"description":     "Campus Canteen Order Lifecycle State Machine",
	})
}

func (h *Handler) Health(c *gin.Context) {
	check := h.health.Measure(c.Request.Context())

	statusCode := http.StatusOK
	if check.Status != healthgo.StatusOK {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, check)
}

func (h *Handler) Welcome(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Welcome to the Campus Canteen Runner API",
		"docs":    "/api/state-machine",
		"health":  "/health",
	})
}
