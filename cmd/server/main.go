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

	"github.com/focus-leaderboard/internal/config"
	"github.com/focus-leaderboard/internal/handler"
	"github.com/focus-leaderboard/internal/kafka"
	"github.com/focus-leaderboard/internal/postgres"
	"github.com/focus-leaderboard/internal/redis"
	"github.com/focus-leaderboard/internal/service"
	"github.com/focus-leaderboard/internal/websocket"
	"github.com/focus-leaderboard/internal/worker"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Redis
	logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
	index, err := redis.NewRankingIndex(&cfg.Redis, logger)
	if err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer index.Close()
	logger.Info("connected to Redis")

	// Initialize PostgreSQL
	logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	repo, err := postgres.NewRepository(&cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to PostgreSQL")

	if err := repo.RunMigrations(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(logger)
	go wsHub.Run()

	// Read side and broadcast
	ranking := service.NewRankingService(repo, index, &cfg.Leaderboard, logger)
	broadcaster := service.NewBroadcaster(ranking, wsHub, cfg.Leaderboard.BroadcastLimit, logger)

	// Completion pipeline
	aggregator := service.NewAggregator(repo, repo, repo, index, broadcaster, &cfg.Leaderboard, logger)
	tasks := service.NewTaskSynchronizer(repo, repo, logger)
	processor := service.NewCompletionProcessor(tasks, aggregator, logger)

	// Rebuild the ranking index from Postgres before serving reads
	syncWorker := worker.NewSyncWorker(repo, index, &cfg.Sync, logger)
	if err := syncWorker.RebuildIndex(ctx); err != nil {
		logger.Warn("failed to rebuild ranking index on startup", "error", err)
	}
	if cfg.Sync.Enabled {
		if err := syncWorker.Start(ctx); err != nil {
			logger.Error("failed to start sync worker", "error", err)
			os.Exit(1)
		}
	}

	// Completion events go through Kafka when enabled, else the in-process pool
	var (
		dispatcher    service.Dispatcher
		kafkaProducer *kafka.Producer
		kafkaConsumer *kafka.Consumer
		pool          *worker.Pool
	)
	if cfg.Kafka.Enabled {
		kafkaProducer, kafkaConsumer, err = startKafka(&cfg.Kafka, processor, logger)
		if err != nil {
			logger.Warn("failed to start Kafka, falling back to in-process workers", "error", err)
		} else {
			dispatcher = kafkaProducer
		}
	}
	if dispatcher == nil {
		pool = worker.NewPool(processor, &cfg.Worker, logger)
		pool.Start()
		dispatcher = pool
	}

	pomodoro := service.NewPomodoroService(repo, repo, dispatcher, logger)

	httpHandler := handler.NewHandler(
		pomodoro,
		ranking,
		tasks,
		wsHub,
		map[string]handler.Pinger{"postgres": repo, "redis": index},
		cfg,
		logger,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Stop accepting requests first so no new completions are dispatched
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	if pool != nil {
		pool.Stop()
	}
	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			logger.Error("failed to close Kafka producer", "error", err)
		}
	}
	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	if err := syncWorker.Stop(); err != nil {
		logger.Error("failed to stop sync worker", "error", err)
	}

	wsHub.Stop()

	logger.Info("server stopped")
}

// startKafka connects the completion event producer and starts the consumer
// group that feeds the processor
func startKafka(cfg *config.KafkaConfig, processor kafka.Processor, logger *slog.Logger) (*kafka.Producer, *kafka.Consumer, error) {
	logger.Info("initializing Kafka",
		"brokers", cfg.Brokers,
		"topic", cfg.Topic,
	)

	producer, err := kafka.NewProducer(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	consumer, err := kafka.NewConsumer(cfg, processor, logger)
	if err != nil {
		producer.Close()
		return nil, nil, err
	}
	if err := consumer.Start(); err != nil {
		producer.Close()
		return nil, nil, err
	}

	logger.Info("Kafka started successfully")
	return producer, consumer, nil
}
