// Package api exposes the read-only event/correlation surface and the
// rule and response-action admin endpoints over HTTP, using the same
// Gin-based service shape the rest of the stack uses.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"go.uber.org/ratelimit"

	"github.com/iff-guardian/hostguard/internal/broadcast"
	"github.com/iff-guardian/hostguard/internal/correlation"
	"github.com/iff-guardian/hostguard/internal/eventstore"
	"github.com/iff-guardian/hostguard/internal/response"
	"github.com/iff-guardian/hostguard/internal/rules"
	"github.com/iff-guardian/hostguard/pkg/logger"
	"github.com/iff-guardian/hostguard/pkg/metrics"
)

// Service wires the event store, rule store, correlation engine, response
// orchestrator and broadcaster behind one Gin route group.
type Service struct {
	events    eventstore.Store
	rules     rules.Store
	engine    *correlation.Engine
	responder *response.Orchestrator
	broadcast *broadcast.Broadcaster
	log       logger.Logger
	metrics   *metrics.Collector

	writeLimiter ratelimit.Limiter
}

// Config bounds the admin write path rate limit.
type Config struct {
	// WriteRequestsPerSecond throttles rule and action-execute/rollback
	// writes. Zero or less selects 10 requests per second.
	WriteRequestsPerSecond int
}

func (c Config) withDefaults() Config {
	if c.WriteRequestsPerSecond <= 0 {
		c.WriteRequestsPerSecond = 10
	}
	return c
}

// New builds the API service.
func New(
	cfg Config,
	events eventstore.Store,
	ruleStore rules.Store,
	engine *correlation.Engine,
	responder *response.Orchestrator,
	b *broadcast.Broadcaster,
	log logger.Logger,
	mc *metrics.Collector,
) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		events:       events,
		rules:        ruleStore,
		engine:       engine,
		responder:    responder,
		broadcast:    b,
		log:          log,
		metrics:      mc,
		writeLimiter: ratelimit.New(cfg.WriteRequestsPerSecond),
	}
}

// CORSMiddleware wraps rs/cors for Gin, allowing the dashboard origin set
// to be configured independently of the rest of the stack.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})
	return func(ctx *gin.Context) {
		c.HandlerFunc(ctx.Writer, ctx.Request)
		if ctx.Request.Method == http.MethodOptions {
			ctx.AbortWithStatus(http.StatusNoContent)
			return
		}
		ctx.Next()
	}
}

// LoggingMiddleware logs each request the way the rest of the stack's
// services do.
func LoggingMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Info("http request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}

// rateLimited wraps a write handler so it blocks on the shared token
// bucket before running; the bucket is shared across all admin writes
// rather than per-route, matching a single operator console hitting one
// backend.
func (s *Service) rateLimited(h gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.writeLimiter.Take()
		h(c)
	}
}

// RegisterRoutes attaches every endpoint under router.
func (s *Service) RegisterRoutes(router *gin.RouterGroup) {
	events := router.Group("/events")
	{
		events.GET("", s.listEvents)
		events.GET("/:id", s.getEvent)
	}

	corr := router.Group("/correlations")
	{
		corr.GET("/stats", s.correlationStats)
	}

	ruleGroup := router.Group("/rules")
	{
		ruleGroup.GET("", s.listRules)
		ruleGroup.POST("", s.rateLimited(s.createRule))
		ruleGroup.PUT("/:channel/:eventID", s.rateLimited(s.updateRule))
		ruleGroup.DELETE("/:channel/:eventID", s.rateLimited(s.deleteRule))
	}

	actions := router.Group("/actions")
	{
		// POST /actions suggests a new action.
		actions.POST("", s.rateLimited(s.suggestAction))
		actions.POST("/:id/execute", s.rateLimited(s.executeAction))
		actions.POST("/:id/rollback", s.rateLimited(s.rollbackAction))
		actions.GET("/pending/:conversationID", s.listPending)
		actions.GET("/history/:conversationID", s.listHistory)
	}

	router.GET("/stream", broadcast.GinHandler(s.broadcast, s.log,
		broadcast.StreamSecurityEvent, broadcast.StreamCorrelationAlert, broadcast.StreamSystemMetrics))
}
