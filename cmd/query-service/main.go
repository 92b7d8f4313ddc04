// cmd/query-service/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"scm-assistant/internal/api"
	"scm-assistant/internal/common/config"
	"scm-assistant/internal/common/database"
	"scm-assistant/internal/common/logger"
	"scm-assistant/internal/common/observability"
	"scm-assistant/internal/engine/aigateway"
	"scm-assistant/internal/engine/executor"
	"scm-assistant/internal/engine/extractor"
	"scm-assistant/internal/engine/matcher"
	"scm-assistant/internal/engine/pipeline"
	"scm-assistant/internal/engine/rulestore"
	"scm-assistant/internal/engine/session"
)

// retryWithBackoff attempts an operation with exponential backoff.
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

	zapLog.Info("starting query service",
		zap.String("name", cfg.App.Name),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- PostgreSQL with retry ---
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
	zapLog.Info("postgres connected")

	// --- Redis with retry ---
	rdb := database.NewRedis(cfg.Database.Redis)
	err = retryWithBackoff(func() error {
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("redis connected")

	// --- Elasticsearch, optional ---
	var es *database.ElasticsearchClient
	if cfg.Database.Elasticsearch.Enabled {
		es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			zapLog.Warn("elasticsearch client unavailable, tracking search disabled", zap.Error(err))
			es = nil
		} else if err := es.Ping(); err != nil {
			zapLog.Warn("elasticsearch unreachable, tracking search disabled", zap.Error(err))
			es = nil
		}
	}

	// --- Rule corpus ---
	rules := rulestore.New(
		rulestore.NewPostgresSource(pg.DB),
		extractor.NewFileAliasSource(cfg.Aliases.Path),
		log,
	)
	if _, err := rules.Reload(ctx); err != nil {
		zapLog.Fatal("initial rule load failed", zap.Error(err))
	}

	// --- Engine ---
	llmClient := aigateway.NewClient(cfg.LLM, log)
	retriever := pipeline.NewDataRetriever(pg.DB, es, cfg.Database.Elasticsearch.TrackingIndex, log)
	workflow := aigateway.NewWorkflow(llmClient, retriever, log)
	sessions := session.NewStore(rdb.Client, time.Duration(cfg.Sessions.TTL)*time.Second, log)
	exec := executor.New(pg.DB, time.Duration(cfg.Rules.QueryTimeout)*time.Millisecond, log)
	m := matcher.New(cfg.Rules.MinScore, cfg.Rules.TriggerWeight)

	engine := pipeline.NewEngine(rules, m, exec, sessions, workflow, obs, log)

	// --- HTTP server ---
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewServer(engine, log).Router(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		zapLog.Info("http server listening", zap.String("addr", cfg.Server.Addr()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("http server failed", zap.Error(err))
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("http shutdown failed", zap.Error(err))
	}
	zapLog.Info("stopped")
}
