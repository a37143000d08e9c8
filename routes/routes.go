package routes

import (
	"canteen-runner-api/handlers"
	"canteen-runner-api/metrics"
	"canteen-runner-api/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Options struct {
	Handler     *handlers.Handler
	Auth        gin.HandlerFunc
	RateLimit   gin.HandlerFunc
	Logger      *zap.Logger
	CORSOrigins []string
}

// NewRouter builds the engine with the shared middleware and every route.
func NewRouter(opts Options) (*gin.Engine, error) {
	if err := handlers.RegisterValidators(); err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(opts.Logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(opts.CORSOrigins))

	SetupRoutes(r, opts)
	return r, nil
}

func SetupRoutes(r *gin.Engine, opts Options) {
	h := opts.Handler

	r.GET("/", h.Welcome)
	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// ── Public routes ──────────────────────────────────────────────
	public := r.Group("/api")
	{
		public.POST("/auth/register", h.Register)
		public.POST("/auth/login", h.Login)
		public.POST("/auth/verify-email/send", h.SendVerification)
		public.POST("/auth/verify-email", h.VerifyEmail)
		public.POST("/auth/password-reset/send", h.SendPasswordReset)
		public.POST("/auth/password-reset", h.ResetPassword)

		public.GET("/canteens", h.ListCanteens)
		public.GET("/locations", h.ListLocations)
		public.GET("/state-machine", h.GetStateMachineInfo)
	}

	// ── Authenticated routes ───────────────────────────────────────
	chain := []gin.HandlerFunc{opts.Auth}
	if opts.RateLimit != nil {
		chain = append(chain, opts.RateLimit)
	}

	auth := r.Group("/api")
	auth.Use(chain...)
	{
		auth.GET("/auth/session", h.Session)
		auth.POST("/auth/logout", h.Logout)

		auth.GET("/profile", h.GetProfile)
		auth.PUT("/profile", h.UpdateProfile)
		auth.PUT("/profile/name", h.UpdateProfileName)
	}

	// ── Buyer routes ───────────────────────────────────────────────
	buyer := r.Group("/api/orders")
	buyer.Use(chain...)
	{
		buyer.POST("", h.PlaceOrder)
		buyer.GET("", h.GetMyOrders)
		buyer.GET("/feed", h.OrderFeedWS)
		buyer.GET("/feed/stream", h.OrderFeedSSE)
		buyer.GET("/:id", h.GetOrderDetail)
		buyer.POST("/:id/cancel", h.CancelOrder)
	}

	// ── Runner routes ──────────────────────────────────────────────
	// Any signed-in user can run; there is no role gate.
	runner := r.Group("/api/runner")
	runner.Use(chain...)
	{
		runner.GET("/orders/available", h.GetAvailableOrders)
		runner.GET("/orders/accepted", h.GetAcceptedOrders)
		runner.GET("/orders/completed", h.GetCompletedOrders)
		runner.POST("/orders/:id/accept", h.AcceptOrder)
		runner.POST("/orders/:id/deliver", h.DeliverOrder)
		runner.GET("/feed", h.RunnerFeedWS)
		runner.GET("/feed/stream", h.RunnerFeedSSE)
	}
}
