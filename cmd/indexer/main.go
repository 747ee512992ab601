package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/events"
	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/modelstore"
	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/vectorindex"
	"github.com/Adithya-Monish-Kumar-K/problem-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/problem-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/problem-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/problem-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/problem-search/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/problem-search/pkg/redis"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	vectorOnly := flag.Bool("vector-only", false, "update vectors in place and leave payloads untouched")
	createCollection := flag.Bool("create-collection", false, "create the target collection when it does not exist")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *vectorOnly {
		cfg.Indexer.VectorOnly = true
	}
	if *createCollection {
		cfg.Indexer.CreateCollection = true
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if err := run(cfg); err != nil {
		slog.Error("index build failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting index build",
		"collection", cfg.VectorIndex.Collection,
		"payload_collection", cfg.VectorIndex.PayloadCollection(),
		"workers", cfg.Indexer.Workers,
		"vector_only", cfg.Indexer.VectorOnly,
	)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(prometheus.DefaultRegisterer)
		shutdown := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutdownCtx)
		}()
	}

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("connected to postgres", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)

	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	target, err := vectorindex.Open(cfg.VectorIndex, cfg.VectorIndex.Collection)
	if err != nil {
		return err
	}
	if cfg.VectorIndex.Type == "memory" {
		slog.Warn("memory vector index selected, vectors are discarded when the build exits")
	}
	deps := indexer.Deps{
		Source:  corpus.NewPostgresSource(db.DB),
		Target:  target,
		Models:  modelstore.NewRedis(redisClient),
		Metrics: m,
	}
	if source := cfg.VectorIndex.PayloadCollection(); source != cfg.VectorIndex.Collection {
		deps.Payloads, err = vectorindex.Open(cfg.VectorIndex, source)
		if err != nil {
			return err
		}
	}

	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka)
		defer producer.Close()
		publisher := events.NewPublisher(producer, cfg.Kafka.Topics)
		deps.Notifier = publisher
		deps.Reporter = publisher
	} else {
		slog.Warn("no kafka brokers configured, build events disabled")
	}

	pipeline, err := indexer.NewPipeline(cfg.Indexer, cfg.VectorIndex, deps)
	if err != nil {
		return err
	}
	report, err := pipeline.Run(ctx)
	if err != nil {
		return err
	}

	slog.Info("index build finished",
		"generation", report.Generation,
		"dimension", report.Dimension,
		"documents", report.TotalDocuments,
		"upserted", report.PointsUpserted,
		"skipped", report.SkippedPoints,
		"failed_chunks", len(report.Failures),
		"pass1", report.Pass1Duration,
		"pass2", report.Pass2Duration,
	)
	report.Trace.Log(slog.Default().With("component", "indexer"))
	for _, f := range report.Failures {
		slog.Warn("chunk needs re-run",
			"stage", f.Stage,
			"first_id", f.FirstID(),
			"last_id", f.LastID(),
			"error", f.Error,
		)
	}
	return nil
}
