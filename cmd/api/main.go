package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pixora/backend/internal/api"
	"github.com/pixora/backend/internal/auth"
	"github.com/pixora/backend/internal/config"
	"github.com/pixora/backend/internal/domain"
	"github.com/pixora/backend/internal/fanout"
	"github.com/pixora/backend/internal/fcm"
	"github.com/pixora/backend/internal/metrics"
	"github.com/pixora/backend/internal/repository"
	"github.com/pixora/backend/internal/storage"
	"github.com/pixora/backend/internal/worker"
)

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := initLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting Pixora API",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
		zap.String("store", cfg.Store.Driver),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	policy := domain.NewStoryPolicy(cfg.Stories.TTL, domain.SystemClock)
	m := metrics.New()

	// Initialize record store
	stores, err := repository.Open(ctx, cfg, policy, logger)
	if err != nil {
		logger.Fatal("Failed to open record store", zap.Error(err))
	}
	defer stores.Close()

	logger.Info("Connected to record store", zap.String("driver", stores.Driver))

	verifier, err := initVerifier(cfg.Identity)
	if err != nil {
		logger.Fatal("Failed to initialize identity provider", zap.Error(err))
	}

	fileStorage, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal("Failed to initialize file storage", zap.Error(err))
	}

	// Initialize event fanout
	wsManager := api.NewWebSocketManager(logger)
	go wsManager.Run(ctx)

	sinks, stopSinks := initSinks(ctx, cfg, wsManager, logger)
	broadcaster := fanout.NewBroadcaster(logger, m, fanout.DefaultQueueSize, sinks...)

	// Initialize services
	accountService := domain.NewAccountService(stores.Accounts, verifier, policy, logger)
	graphService := domain.NewGraphService(stores.Accounts, m, logger)
	storyService := domain.NewStoryService(stores.Accounts, policy, m, logger)
	bookmarkService := domain.NewBookmarkService(stores.Accounts, stores.Posts)
	interactionService := domain.NewInteractionService(stores.Posts, stores.Accounts, broadcaster, domain.SystemClock)
	mediaService := domain.NewMediaService(fileStorage)

	// Initialize handlers
	handlers := api.Handlers{
		Auth:    api.NewAuthHandler(accountService, logger),
		Users:   api.NewUserHandler(accountService, graphService, bookmarkService, mediaService, logger),
		Posts:   api.NewPostHandler(interactionService, bookmarkService, mediaService, logger),
		Stories: api.NewStoryHandler(storyService, mediaService, logger),
		Health:  api.NewHealthHandler(stores, logger),
		Hub:     wsManager,
	}

	opts := api.RouterOptions{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Metrics:        m,
	}
	if cfg.Storage.Type == "local" {
		opts.UploadDir = cfg.Storage.UploadDir
	}

	// Initialize router
	router := api.NewRouter(handlers, accountService, opts, logger)
	r := router.Setup()

	// Start background tasks
	sweeper := &worker.Periodic{
		Name:       "story-sweep",
		Interval:   cfg.Stories.SweepInterval,
		RunOnStart: true,
		Logger:     logger,
		Task: func(ctx context.Context) error {
			_, err := storyService.Sweep(ctx)
			return err
		},
	}
	repairer := &worker.Periodic{
		Name:     "follow-repair",
		Interval: cfg.Graph.RepairInterval,
		Logger:   logger,
		Task: func(ctx context.Context) error {
			_, err := graphService.ReconcileFollowGraph(ctx)
			return err
		},
	}
	sweeper.Start(ctx)
	repairer.Start(ctx)

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	sweeper.Stop()
	repairer.Stop()
	broadcaster.Close()
	stopSinks()
	cancel()

	logger.Info("Server stopped")
}

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	zapCfg := zap.NewDevelopmentConfig()
	if cfg.IsProduction() {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.Log.Level, err)
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}

func initVerifier(cfg config.IdentityConfig) (auth.Verifier, error) {
	switch cfg.Provider {
	case "google":
		v := auth.NewGoogleVerifier(cfg.GoogleClientIDs)
		if !v.IsConfigured() {
			return nil, fmt.Errorf("google identity provider needs GOOGLE_CLIENT_ID")
		}
		return v, nil
	case "jwt":
		return auth.NewJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer), nil
	default:
		return nil, fmt.Errorf("unknown identity provider %q", cfg.Provider)
	}
}

// initSinks assembles the event sinks. With Redis configured the local hub is
// fed through the relay subscription so every instance sees every event once.
// Optional sinks that fail to start are logged and skipped.
func initSinks(ctx context.Context, cfg *config.Config, hub *api.WebSocketManager, logger *zap.Logger) ([]fanout.Sink, func()) {
	var sinks []fanout.Sink
	var closers []func()

	relayed := false
	if cfg.Redis.URL != "" {
		client, err := fanout.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			logger.Warn("Redis relay disabled", zap.Error(err))
		} else {
			relay := fanout.NewRedisRelay(client, cfg.Redis.Channel, logger)
			stop, err := relay.Subscribe(ctx, hub)
			if err != nil {
				logger.Warn("Redis relay disabled", zap.Error(err))
				client.Close()
			} else {
				sinks = append(sinks, relay)
				closers = append(closers, stop, func() { client.Close() })
				relayed = true
				logger.Info("Redis relay enabled", zap.String("channel", cfg.Redis.Channel))
			}
		}
	}
	if !relayed {
		sinks = append(sinks, hub)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err := fanout.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.TopicPrefix, logger)
		if err != nil {
			logger.Warn("Kafka sink disabled", zap.Error(err))
		} else {
			sinks = append(sinks, kafka)
			closers = append(closers, func() {
				if err := kafka.Close(); err != nil {
					logger.Warn("Kafka producer close failed", zap.Error(err))
				}
			})
			logger.Info("Kafka sink enabled", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	}

	if cfg.Firebase.CredentialsFile != "" {
		fcmClient, err := fcm.NewClient(ctx, logger, cfg.Firebase.CredentialsFile, cfg.Firebase.Topic)
		if err != nil {
			logger.Warn("Failed to initialize Firebase client - push broadcasts will be disabled", zap.Error(err))
		} else {
			sinks = append(sinks, fcmClient)
			logger.Info("Firebase client initialized", zap.String("topic", cfg.Firebase.Topic))
		}
	}

	return sinks, func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
}
