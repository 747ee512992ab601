package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/events"
	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/modelstore"
	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/thesaurus"
	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/vectorindex"
	"github.com/Adithya-Monish-Kumar-K/problem-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/problem-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/problem-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/problem-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/problem-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/problem-search/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/problem-search/pkg/redis"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "collection", cfg.VectorIndex.Collection)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(prometheus.DefaultRegisterer)
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownMetrics(shutdownCtx)
		}()
	}

	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Error("redis unavailable, cannot read the model", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	models := modelstore.NewRedis(redisClient)

	index, err := vectorindex.Open(cfg.VectorIndex, cfg.VectorIndex.Collection)
	if err != nil {
		slog.Error("failed to open vector index", "error", err)
		os.Exit(1)
	}

	th, err := thesaurus.LoadFile(cfg.Thesaurus.Path)
	if err != nil {
		slog.Error("failed to load thesaurus", "path", cfg.Thesaurus.Path, "error", err)
		os.Exit(1)
	}
	slog.Info("thesaurus loaded", "concepts", th.Len(), "ambiguous_phrases", len(th.Ambiguous()))

	opts := []searcher.Option{searcher.WithMetrics(m)}
	var stats handler.CacheStats
	if cfg.Search.ResultCache {
		resultCache := cache.New(redisClient, cfg.Redis, m)
		opts = append(opts, searcher.WithResultCache(resultCache))
		stats = resultCache
		slog.Info("result cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}
	processor := searcher.NewProcessor(cfg.Search, models, index, th, opts...)
	if err := processor.Reload(ctx); err != nil {
		slog.Warn("model not loaded at startup, will retry on first query", "error", err)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexBuilt, replicaGroup(cfg.Kafka.ConsumerGroup),
			events.HandleIndexBuilt(func(ctx context.Context, e events.IndexBuiltEvent) error {
				if e.Collection != "" && e.Collection != cfg.VectorIndex.Collection {
					return nil
				}
				slog.Info("index built, reloading model", "generation", e.Generation, "dimension", e.Dimension)
				return processor.Reload(ctx)
			}))
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("index built consumer error", "error", err)
			}
		}()
	}

	checker := health.NewChecker()
	checker.Register("model_store", health.PingCheck(models))
	checker.Register("vector_index", func(ctx context.Context) health.ComponentHealth {
		dim, err := index.Dimension(ctx)
		if err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("dimension %d, breaker %s", dim, processor.BreakerState())}
	})
	checker.Register("model", func(ctx context.Context) health.ComponentHealth {
		meta, err := processor.Model(ctx)
		if err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: "generation " + meta.Generation}
	})
	if cfg.Search.ResultCache {
		checker.Register("result_cache", health.Optional(health.PingCheck(redisClient)))
	}

	mux := http.NewServeMux()
	handler.New(processor, stats).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if cfg.Server.RateLimit > 0 {
		limiter := middleware.NewLimiter(cfg.Server.RateLimit, cfg.Server.RateWindow)
		chain = middleware.RateLimit(limiter)(chain)
		go sweepLimiter(ctx, limiter, cfg.Server.RateWindow)
	}
	if len(cfg.Server.AllowedOrigins) > 0 {
		chain = middleware.CORS(cfg.Server.AllowedOrigins)(chain)
	}
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout + time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}

// replicaGroup gives every replica its own consumer group so that each one
// sees every index.built event.
func replicaGroup(base string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = fmt.Sprintf("pid-%d", os.Getpid())
	}
	return base + "-" + host
}

func sweepLimiter(ctx context.Context, l *middleware.Limiter, window time.Duration) {
	ticker := time.NewTicker(max(window, time.Minute))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				slog.Debug("rate limiter swept idle clients", "removed", n)
			}
		}
	}
}
