package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"shop-service/internal/service"
	"shop-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	headerCustomerID     = "X-Customer-Id"
	headerCorrelationID  = "X-Correlation-Id"
	headerIdempotencyKey = "Idempotency-Key"

	ctxCustomerID    = "customer_id"
	ctxCorrelationID = "correlation_id"
)

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	orders         *service.OrderService
	carts          *service.CartService
	statuses       *service.StatusService
	store          Pinger
	requestTimeout time.Duration
	logger         *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	orders *service.OrderService,
	carts *service.CartService,
	statuses *service.StatusService,
	store Pinger,
	requestTimeout time.Duration,
) *Handler {
	return &Handler{
		orders:         orders,
		carts:          carts,
		statuses:       statuses,
		store:          store,
		requestTimeout: requestTimeout,
		logger:         util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(correlationMiddleware())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(timeoutMiddleware(h.requestTimeout))
	{
		v1.POST("/quick-order", h.placeQuickOrder)
		v1.GET("/track-order/:id", h.trackOrder)

		customer := v1.Group("")
		customer.Use(requireCustomer())
		{
			customer.POST("/orders", h.placeOrder)
			customer.POST("/orders/checkout", h.checkout)
			customer.GET("/orders", h.listMyOrders)
			customer.GET("/orders/:id", h.getMyOrder)

			customer.POST("/cart", h.addToCart)
			customer.GET("/cart", h.getCart)
			customer.DELETE("/cart/:product_id", h.removeFromCart)
		}

		admin := v1.Group("/admin")
		{
			admin.GET("/orders", h.listOrders)
			admin.GET("/orders/:id", h.getOrder)
			admin.PATCH("/orders/:id/status", h.updateOrderStatus)
			admin.POST("/orders/:id/paid", h.markOrderPaid)
		}
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready only when the store answers
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("Readiness check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// correlationMiddleware propagates or assigns a request correlation id
func correlationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerCorrelationID)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(ctxCorrelationID, id)
		c.Header(headerCorrelationID, id)
		c.Next()
	}
}

// timeoutMiddleware bounds the context every service call runs under
func timeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// requireCustomer reads the customer identity forwarded by the gateway
func requireCustomer() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.GetHeader(headerCustomerID), 10, 64)
		if err != nil || id <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "unauthorized",
					"message": "customer identity is required",
				},
			})
			return
		}
		c.Set(ctxCustomerID, id)
		c.Next()
	}
}

func customerID(c *gin.Context) int64 {
	return c.GetInt64(ctxCustomerID)
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

// statusFor maps an error kind to an HTTP status
func statusFor(kind service.Kind) int {
	switch kind {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the error envelope. Infrastructure failures are
// logged with the correlation id; their cause is not sent to the client.
func (h *Handler) respondError(c *gin.Context, err error) {
	kind := service.KindOf(err)
	body := gin.H{"code": service.CodeOf(err)}

	var e *service.Error
	if errors.As(err, &e) {
		body["message"] = e.Message
		if e.ProductID != 0 {
			body["product_id"] = e.ProductID
		}
	} else {
		body["message"] = "internal error"
	}

	if kind == service.KindInfrastructure {
		h.logger.Error("Request failed",
			zap.String("correlation_id", c.GetString(ctxCorrelationID)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}

	c.JSON(statusFor(kind), gin.H{"success": false, "error": body})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error": gin.H{
			"code":    service.CodeInvalidInput,
			"message": message,
		},
	})
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}
