package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/shop_backend/config"
	"bitbucket.org/mmdatafocus/shop_backend/middlewares"
	"bitbucket.org/mmdatafocus/shop_backend/models"
	"bitbucket.org/mmdatafocus/shop_backend/utils"
	"bitbucket.org/mmdatafocus/shop_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	key := c.ClientIP()

	exists, err := rl.client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	if exists == 0 {
		err := rl.client.Set(c.Request.Context(), key, 1, rl.window).Err()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// customErrorLogger logs only requests that accumulated errors.
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func registerRoutes(r *gin.Engine, sender workflow.NotificationSender, sweeper *workflow.CampaignSweeper) {
	r.POST("/login", loginHandler())

	// Storefront.
	r.POST("/customers", createCustomerHandler())
	r.GET("/customers/:id", getCustomerHandler())
	r.GET("/customers/:id/orders", customerOrdersHandler())
	r.GET("/products/:id", getProductHandler())
	r.GET("/variations/:id/stock", availableStockHandler())
	r.POST("/orders", createOrderHandler(sender))
	r.GET("/orders/:id", getOrderHandler())
	r.GET("/orders/track/:trackingNumber", trackOrderHandler())
	r.POST("/orders/:id/cancel", customerTransitionHandler(sender, "order_cancelled",
		func(c *gin.Context, orderId, customerId int) (*models.Order, error) {
			return models.CancelOrder(c.Request.Context(), orderId, customerId)
		}))
	r.POST("/orders/:id/return", customerTransitionHandler(sender, "return_requested",
		func(c *gin.Context, orderId, customerId int) (*models.Order, error) {
			return models.RequestReturn(c.Request.Context(), orderId, customerId)
		}))
	r.POST("/orders/:id/received", customerTransitionHandler(sender, "order_completed",
		func(c *gin.Context, orderId, customerId int) (*models.Order, error) {
			return models.ConfirmReceived(c.Request.Context(), orderId, customerId)
		}))
	r.POST("/discounts/check", checkDiscountHandler())

	// Payment provider callback.
	r.POST("/payments/callback", paymentCallbackHandler(sender))

	// Back office.
	staff := r.Group("/", middlewares.RequireStaff())
	staff.POST("/products", createProductHandler())
	staff.POST("/suppliers", createSupplierHandler())
	staff.POST("/stock/locations", createStockLocationHandler())
	staff.POST("/stock/intakes", stockIntakeHandler())
	staff.POST("/variations/:id/retire", retireVariationHandler())
	staff.GET("/orders/:id/ledger", orderLedgerHandler())
	staff.POST("/orders/:id/approve", staffTransitionHandler(sender, "order_advanced",
		func(c *gin.Context, orderId, actorId int) (*models.Order, error) {
			return models.ApproveOrder(c.Request.Context(), orderId, actorId)
		}))
	staff.POST("/orders/:id/reject", staffTransitionHandler(sender, "order_cancelled",
		func(c *gin.Context, orderId, actorId int) (*models.Order, error) {
			return models.RejectOrder(c.Request.Context(), orderId, actorId)
		}))
	staff.POST("/orders/:id/inspect", staffTransitionHandler(sender, "return_inspection",
		func(c *gin.Context, orderId, actorId int) (*models.Order, error) {
			return models.InspectReturn(c.Request.Context(), orderId, actorId)
		}))
	staff.POST("/orders/:id/complete-return", staffTransitionHandler(sender, "return_completed",
		func(c *gin.Context, orderId, actorId int) (*models.Order, error) {
			return models.CompleteReturn(c.Request.Context(), orderId, actorId)
		}))

	manager := r.Group("/", middlewares.RequireRole(models.StaffRoleManager))
	manager.POST("/discounts", createDiscountHandler())
	manager.POST("/discounts/:id/assign", assignDiscountHandler())
	manager.DELETE("/discounts/:id/assign/:customerId", unassignDiscountHandler())
	manager.POST("/sales", createSaleHandler())
	manager.PUT("/sales/:id/window", updateSaleWindowHandler())
	manager.POST("/sales/:id/products", addSaleProductsHandler())
	manager.GET("/reports/inventory-ledger", exportLedgerHandler())
	manager.GET("/reports/campaigns", campaignSummaryHandler(sweeper))

	admin := r.Group("/", middlewares.RequireRole(models.StaffRoleAdmin))
	admin.POST("/staff", createStaffHandler())

	r.NoRoute(customNotFoundHandler)
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so the platform considers the revision
	// healthy. Until DB/Redis are ready, app endpoints return 503.
	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// In production, require an explicit allowlist; elsewhere allow all.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))

	// Optional rate limiting (recommended for production).
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := redis.NewClient(&redis.Options{
			Addr: os.Getenv("REDIS_ADDRESS"),
		})
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(middlewares.AuthMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	sender := workflow.DefaultSender()
	// The DB handle is attached after it connects; the readiness gate
	// keeps requests away until then.
	sweeper := workflow.NewCampaignSweeper(nil, logger)
	registerRoutes(r, sender, sweeper)

	// Start listening immediately (startup probe is TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables; allow disabling on
	// startup and running migrations as a separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Start the campaign sweeper.
	sweeper.DB = db
	sweeperCtx, cancelSweeper := context.WithCancel(context.Background())
	defer cancelSweeper()
	go sweeper.Run(sweeperCtx)

	// Set the session isolation level to READ COMMITTED
	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port)
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background workers first so they don't start new work while
	// we're draining.
	cancelSweeper()

	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}
