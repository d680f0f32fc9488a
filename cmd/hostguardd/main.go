package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/iff-guardian/hostguard/internal/api"
	"github.com/iff-guardian/hostguard/internal/bookmark"
	"github.com/iff-guardian/hostguard/internal/broadcast"
	"github.com/iff-guardian/hostguard/internal/correlation"
	"github.com/iff-guardian/hostguard/internal/correlation/graphstore"
	"github.com/iff-guardian/hostguard/internal/eventstore"
	"github.com/iff-guardian/hostguard/internal/ignore"
	"github.com/iff-guardian/hostguard/internal/normalize"
	"github.com/iff-guardian/hostguard/internal/pipeline"
	"github.com/iff-guardian/hostguard/internal/response"
	"github.com/iff-guardian/hostguard/internal/rules"
	"github.com/iff-guardian/hostguard/internal/storage/migrations"
	"github.com/iff-guardian/hostguard/internal/watcher"
	"github.com/iff-guardian/hostguard/internal/watcher/filesource"
	"github.com/iff-guardian/hostguard/pkg/config"
	"github.com/iff-guardian/hostguard/pkg/database"
	"github.com/iff-guardian/hostguard/pkg/health"
	"github.com/iff-guardian/hostguard/pkg/logger"
	"github.com/iff-guardian/hostguard/pkg/metrics"
	"github.com/iff-guardian/hostguard/pkg/redisutil"
)

func main() {
	cfg, err := config.Load("hostguardd")
	if err != nil {
		log.Fatal("failed to load configuration:", err)
	}

	log15 := logger.New(cfg.LogLevel, cfg.ServiceName)
	mc := metrics.NewCollector(cfg.ServiceName)

	if err := migrations.Up(cfg.Database.URL); err != nil {
		log15.Fatal("failed to apply database migrations", "error", err)
	}

	db, err := database.NewPostgres(cfg.Database.URL)
	if err != nil {
		log15.Fatal("failed to connect to database", "error", err)
	}
	defer db.Close()

	redisClient, err := redisutil.NewClient(cfg.Redis.URL)
	if err != nil {
		log15.Fatal("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	graphStore, err := graphstore.New(cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password, log15)
	if err != nil {
		log15.Fatal("failed to open neo4j driver", "error", err)
	}
	defer graphStore.Close(context.Background())
	if err := graphStore.EnsureSchema(context.Background()); err != nil {
		log15.Warn("failed to ensure neo4j schema, attack-chain persistence may fail", "error", err)
	}

	bookmarkStore := bookmark.NewPostgresStore(db)
	events := eventstore.NewPostgresStore(db)

	ruleStore := rules.NewCachedStore(rules.NewPostgresStore(db), mc)

	normalizer := normalize.New(ruleStore)

	patterns, err := config.LoadIgnorePatterns(cfg.IgnorePatternsFile)
	if err != nil {
		log15.Fatal("failed to load ignore patterns", "error", err)
	}
	ignoreEngine := ignore.New(cfg.ToIgnoreConfig(patterns))

	burstWindow := time.Duration(cfg.Ignore.SequenceTimeWindowSeconds) * time.Second
	burstTracker := correlation.NewRedisBurstTracker(redisClient, burstWindow)
	correlationEngine := correlation.New(events, burstTracker, nil, log15, mc)
	correlationEngine.SetChainStore(graphStore)

	b := broadcast.New(cfg.ToBroadcastConfig(), log15, mc)

	responseRegistry := response.NewRegistry()
	response.RegisterBuiltins(responseRegistry)
	responder := response.New(cfg.ToResponseConfig(), response.NewPostgresStore(db), responseRegistry, log15, mc)

	pipe := pipeline.New(normalizer, ignoreEngine, events, correlationEngine, b, log15, mc)

	source := filesource.New(cfg.ChannelSourceDir, 500*time.Millisecond, log15)
	chanWatcher := watcher.New(cfg.ToWatcherConfig(), source, bookmarkStore, pipe, log15, mc)

	healthChecker := health.New()
	healthChecker.AddCheck("database", database.HealthCheck(db))
	healthChecker.AddCheck("redis", redisutil.HealthCheck(redisClient))
	healthChecker.AddCheck("neo4j", func(ctx context.Context) error { return graphStore.HealthCheck(ctx) })
	for _, ch := range cfg.ToChannelConfigs() {
		if !ch.Enabled {
			continue
		}
		name := ch.Name
		healthChecker.AddGaugeCheck("watcher_dropped_"+name, func() int {
			return int(chanWatcher.DroppedCount(name))
		}, 10000)
	}

	apiService := api.New(api.Config{WriteRequestsPerSecond: 10}, events, ruleStore, correlationEngine, responder, b, log15, mc)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(api.LoggingMiddleware(log15))
	router.Use(metrics.Middleware(cfg.ServiceName, mc))
	router.Use(api.CORSMiddleware([]string{"*"}))

	router.GET("/health", health.HandlerFunc(healthChecker))
	router.GET("/ready", health.ReadinessHandlerFunc(healthChecker))
	router.GET("/metrics", metrics.HandlerFunc())

	v1 := router.Group("/api/v1")
	apiService.RegisterRoutes(v1)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := chanWatcher.Run(ctx, cfg.ToChannelConfigs()); err != nil {
			log15.Error("channel watcher stopped with error", "error", err)
		}
	}()

	go func() {
		log15.Info("starting hostguardd", "port", cfg.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log15.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log15.Info("shutting down hostguardd...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log15.Error("server forced to shutdown", "error", err)
	}

	log15.Info("hostguardd stopped")
}
