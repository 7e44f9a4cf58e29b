// internal/admin/router.go
package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"funding-match-workers/internal/common/config"
	"funding-match-workers/internal/common/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// Pinger is satisfied by the postgres, redis and elasticsearch wrappers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SetupRouter builds the admin surface: probes, metrics and the weights API.
func SetupRouter(cfg config.AdminConfig, environment string, handler *Handler) *gin.Engine {
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handler.requestLogger())

	router.GET("/health", handler.Health)
	router.GET("/ready", handler.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		weights := v1.Group("/weights")
		{
			weights.GET("", handler.GetWeights)
			weights.PUT("", RateLimit(rate.NewLimiter(rate.Limit(cfg.WriteRateLimit), cfg.WriteBurst)), handler.PutWeights)
			weights.POST("/cache/clear", handler.ClearCache)
		}
	}

	return router
}

// RateLimit rejects requests with 429 once the limiter is exhausted.
func RateLimit(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many weight updates, retry later"})
			return
		}
		c.Next()
	}
}

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Debug("admin request", map[string]interface{}{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
	}
}

// Server runs the router until Shutdown.
type Server struct {
	http   *http.Server
	logger logger.Logger
}

func NewServer(addr string, router http.Handler, log logger.Logger) *Server {
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: log.WithFields(map[string]interface{}{"component": "admin-server", "address": addr}),
	}
}

// Start serves in the background. Listen errors other than a clean shutdown are logged.
func (s *Server) Start() {
	go func() {
		s.logger.Info("admin server listening", nil)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("admin server stopped", map[string]interface{}{"error": err})
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
