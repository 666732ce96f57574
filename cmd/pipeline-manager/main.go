// cmd/pipeline-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"scholarship-pipeline/internal/checkpoint"
	"scholarship-pipeline/internal/common/config"
	"scholarship-pipeline/internal/common/database"
	"scholarship-pipeline/internal/common/logger"
	"scholarship-pipeline/internal/fetch"
	"scholarship-pipeline/internal/genai"
	"scholarship-pipeline/internal/interview"
	"scholarship-pipeline/internal/knowledge"
	"scholarship-pipeline/internal/match"
	"scholarship-pipeline/internal/notify"
	"scholarship-pipeline/internal/pipeline"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting pipeline manager...")

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init GenAI client ---
	genaiClient, err := genai.NewClient(ctx, cfg.GenAI, log)
	if err != nil {
		zapLog.Fatal("genai client failed", zap.Error(err))
	}

	// --- Knowledge base backend ---
	var kb knowledge.Store
	switch cfg.Knowledge.Backend {
	case "elasticsearch":
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping()
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		kb = knowledge.NewElasticStore(esClient.Client, genaiClient, cfg.Knowledge.Index, log)
		zapLog.Info("Elasticsearch knowledge base ready")
	default:
		kb = knowledge.NewPgvectorStore(pg.DB, genaiClient, log)
		zapLog.Info("pgvector knowledge base ready")
	}

	// --- Core components ---
	checkpoints := checkpoint.NewPostgresStore(pg.DB, rdb.Client, cfg.Pipeline.CheckpointCacheTTL, log)
	gate := match.NewGate(kb, rdb.Client, cfg.Match, log)
	machine := interview.NewMachine(genaiClient, cfg.Interview, log)
	fetcher := fetch.New(cfg.Pipeline.StageTimeout, log)

	var notifier pipeline.Notifier
	if cfg.Notifications.Email.Enabled || cfg.Notifications.SMS.Enabled {
		n, err := notify.NewNotifier(ctx, cfg.Notifications, log)
		if err != nil {
			zapLog.Fatal("notifier failed", zap.Error(err))
		}
		notifier = n
	}

	orch := pipeline.NewOrchestrator(checkpoints, kb, gate, machine, genaiClient, fetcher, notifier, cfg.Pipeline, log)
	zapLog.Info("Orchestrator initialized")

	// --- HTTP API + Health & Metrics ---
	mux := http.DefaultServeMux
	registerAPI(mux, orch, checkpoints, log)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", cfg.App.MetricsPort)
	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		zapLog.Info("API/Metrics server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("API/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down server", zap.Error(err))
	}

	zapLog.Info("Pipeline manager stopped gracefully")
}
