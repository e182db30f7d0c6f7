package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"water-service/internal/gateway/click"
	"water-service/internal/gateway/payme"
	"water-service/internal/models"
	"water-service/internal/service"
	"water-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies are the services the handler serves. The provider
// processors and readiness checks are optional.
type Dependencies struct {
	Orders        *service.OrderService
	Payments      *service.PaymentService
	Subscriptions *service.SubscriptionService
	Payme         *payme.Processor
	Click         *click.Processor
	Checks        map[string]Pinger
	WebhookLimit  float64
	WebhookBurst  int
}

// Handler contains HTTP handlers
type Handler struct {
	orders        *service.OrderService
	payments      *service.PaymentService
	subscriptions *service.SubscriptionService
	payme         *payme.Processor
	click         *click.Processor
	checks        map[string]Pinger
	limiter       *ipLimiter
	logger        *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(deps Dependencies) *Handler {
	return &Handler{
		orders:        deps.Orders,
		payments:      deps.Payments,
		subscriptions: deps.Subscriptions,
		payme:         deps.Payme,
		click:         deps.Click,
		checks:        deps.Checks,
		limiter:       newIPLimiter(deps.WebhookLimit, deps.WebhookBurst),
		logger:        util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/orders", h.createOrder)
		v1.GET("/orders/:id", h.getOrder)
		v1.GET("/orders/:id/status", h.orderStatus)
		v1.POST("/orders/:id/claim", h.claimOrder)
		v1.POST("/orders/:id/stage", h.advanceStage)
		v1.POST("/orders/:id/cancel", h.cancelOrder)

		firms := v1.Group("/firms/:firmID")
		firms.GET("/queue", h.requireFirmAccess(), h.firmQueue)
		firms.GET("/subscription", h.subscriptionStatus)
		firms.POST("/trial", h.startTrial)
		firms.GET("/payments", h.listPayments)

		v1.POST("/payments", h.createPayment)
		v1.GET("/payments/:transactionID", h.getPayment)
		v1.POST("/payments/:transactionID/cancel", h.cancelPayment)
	}

	hooks := router.Group("/webhooks", h.limiter.middleware())
	if h.payme != nil {
		hooks.POST("/payme", h.paymeWebhook)
	}
	if h.click != nil {
		hooks.POST("/click/prepare", h.clickPrepare)
		hooks.POST("/click/complete", h.clickComplete)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings the database and cache
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, dep := range h.checks {
		if err := dep.Ping(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.String("dependency", name), zap.Error(err))
			failed[name] = "unavailable"
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// requireFirmAccess rejects firm-scoped calls from firms without an active
// trial or plan
func (h *Handler) requireFirmAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		firmID, ok := firmParam(c)
		if !ok {
			c.Abort()
			return
		}

		allowed, err := h.subscriptions.HasAccess(c.Request.Context(), firmID)
		if err != nil {
			h.writeError(c, err)
			c.Abort()
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
				"error": "Subscription required",
			})
			return
		}
		c.Next()
	}
}

func firmParam(c *gin.Context) (int64, bool) {
	firmID, err := strconv.ParseInt(c.Param("firmID"), 10, 64)
	if err != nil || firmID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid firm ID",
		})
		return 0, false
	}
	return firmID, true
}

// writeError maps the service error taxonomy onto HTTP statuses. Store
// failures are logged and answered generically.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrAmountMismatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Payment verification failed"})
	case errors.Is(err, models.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
