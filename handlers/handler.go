package handlers

import (
	"errors"
	"net/http"

	"canteen-runner-api/middleware"
	"canteen-runner-api/models"
	"canteen-runner-api/service"

	"github.com/gin-gonic/gin"
	healthgo "github.com/hellofresh/health-go/v5"
	"go.uber.org/zap"
)

type Deps struct {
	Auth     *service.AuthService
	Profiles *service.ProfileService
	Orders   *service.OrderService
	Feed     *service.FeedService
	Tokens   *middleware.TokenManager
	Health   *healthgo.Health
	Log      *zap.Logger
}

type Handler struct {
	auth     *service.AuthService
	profiles *service.ProfileService
	orders   *service.OrderService
	feed     *service.FeedService
	tokens   *middleware.TokenManager
	health   *healthgo.Health
	log      *zap.Logger
}

func New(d Deps) *Handler {
	return &Handler{
		auth:     d.Auth,
		profiles: d.Profiles,
		orders:   d.Orders,
		feed:     d.Feed,
		tokens:   d.Tokens,
		health:   d.Health,
		log:      d.Log.Named("http"),
	}
}

// fail maps service errors onto status codes.
func (h *Handler) fail(c *gin.Context, err error) {
	var conflict *service.ConflictError
	switch {
	case errors.As(err, &conflict):
		msg := "Order has already been picked or cancelled."
		if conflict.Current == models.StatusDelivered {
			msg = "Order has already been delivered."
		}
		c.JSON(http.StatusConflict, gin.H{
			"error":             msg,
			"current_status":    conflict.Current,
			"reason":            conflict.Reason,
			"valid_next_states": conflict.ValidNext(),
		})
	case errors.Is(err, service.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
	case errors.Is(err, service.ErrBuyerNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Buyer not found"})
	case errors.Is(err, service.ErrProfileNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Profile not found"})
	case errors.Is(err, service.ErrNotOrderOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "This order does not belong to you"})
	case errors.Is(err, service.ErrNotAssignedRunner):
		c.JSON(http.StatusForbidden, gin.H{"error": "You are not the runner for this order"})
	case errors.Is(err, service.ErrSelfAccept):
		c.JSON(http.StatusForbidden, gin.H{"error": "You cannot accept your own order"})
	case errors.Is(err, service.ErrCodeMismatch):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Incorrect 6-digit code. Delivery not confirmed."})
	case errors.Is(err, service.ErrEmptyItems),
		errors.Is(err, service.ErrUnknownCanteen),
		errors.Is(err, service.ErrUnknownLocation),
		errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
	case errors.Is(err, service.ErrEmailNotVerified):
		c.JSON(http.StatusForbidden, gin.H{"error": "Please verify your email before logging in!"})
	case errors.Is(err, service.ErrInvalidToken):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired token"})
	default:
		h.log.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("user_id", middleware.GetUserID(c)),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong, please try again"})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
