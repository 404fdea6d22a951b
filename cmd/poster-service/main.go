package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/cuongbtq/relay-poster/internal/api/handler"
	"github.com/cuongbtq/relay-poster/internal/api/router"
	apistorage "github.com/cuongbtq/relay-poster/internal/api/storage"
	"github.com/cuongbtq/relay-poster/internal/automation/chrome"
	"github.com/cuongbtq/relay-poster/internal/config"
	"github.com/cuongbtq/relay-poster/internal/diagnostics"
	"github.com/cuongbtq/relay-poster/internal/governor"
	"github.com/cuongbtq/relay-poster/internal/publisher"
	"github.com/cuongbtq/relay-poster/internal/sessionstore"
	"github.com/cuongbtq/relay-poster/internal/worker"
	"github.com/cuongbtq/relay-poster/internal/worker/storage"
	"github.com/cuongbtq/relay-poster/shared/logger"
	"github.com/cuongbtq/relay-poster/shared/postgresql"
	"github.com/cuongbtq/relay-poster/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("POSTER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/poster-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting poster service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	var dbClient *postgresql.Client
	if cfg.Database.Enabled {
		dbClient, err = initPostgreSQL(rootCtx, &cfg.Database, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer dbClient.Close()
	}

	var rabbitClient *rabbitmq.Client
	if cfg.RabbitMQ.Enabled {
		rabbitClient, err = initRabbitMQ(rootCtx, &cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()
	}

	// Diagnostics
	dispatcher := initDiagnostics(cfg, appLogger, rabbitClient)
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		dispatcher.Run(dispatchCtx)
	}()

	// Publish pipeline
	machine := publisher.New(publisher.Config{
		BaseURL:           cfg.Platform.BaseURL,
		Username:          cfg.Platform.Username,
		Password:          cfg.Platform.Password,
		LoginTimeout:      cfg.Platform.LoginTimeout,
		ElementTimeout:    cfg.Platform.ElementTimeout,
		VerifyTimeout:     cfg.Platform.VerifyTimeout,
		VerifyInterval:    cfg.Platform.VerifyInterval,
		MediaPollAttempts: cfg.Platform.MediaPollAttempts,
		MediaPollInterval: cfg.Platform.MediaPollInterval,
		SubmitRounds:      cfg.Platform.SubmitRounds,
		TypingChunk:       cfg.Platform.TypingChunk,
		TypingDelay:       cfg.Platform.TypingDelay,
		StrictMedia:       cfg.Poster.StrictMedia,
		StrictCaption:     cfg.Poster.StrictCaption,
	}, sessionstore.NewFileStore(cfg.Session.Path), dispatcher, appLogger.Component("publisher"))

	launcher := chrome.NewLauncher(chrome.Config{
		ExecPath:      cfg.Browser.ExecPath,
		Headless:      cfg.Browser.Headless,
		UserAgent:     cfg.Browser.UserAgent,
		UserDataDir:   cfg.Browser.UserDataDir,
		WindowWidth:   cfg.Browser.WindowWidth,
		WindowHeight:  cfg.Browser.WindowHeight,
		ActionTimeout: cfg.Browser.ActionTimeout,
		CloseTimeout:  cfg.Browser.CloseTimeout,
	}, appLogger.Component("browser"))

	gov := governor.New(governor.Config{
		MaxAttempts:       cfg.Poster.MaxAttempts,
		RetryDelay:        cfg.Poster.RetryDelay,
		OverallTimeout:    cfg.Poster.OverallTimeout,
		TeardownTimeout:   cfg.Poster.TeardownTimeout,
		ScreenshotTimeout: cfg.Poster.ScreenshotTimeout,
	}, launcher, machine, dispatcher, appLogger.Component("governor"))

	var history worker.History
	if dbClient != nil {
		postStorage := storage.NewStorage(dbClient.GetDB(), appLogger.Component("storage"))
		if err := postStorage.EnsureSchema(rootCtx); err != nil {
			return err
		}
		history = postStorage
	}

	queue := worker.NewQueue(worker.QueueConfig{
		PostDelay:  cfg.Poster.PostDelay,
		RetryDelay: cfg.Poster.QueueRetryDelay,
		MaxRetries: cfg.Poster.QueueMaxRetries,
	}, gov, dispatcher, history, appLogger.Component("queue"))

	workerCfg := &worker.Config{
		Logger:        appLogger.Logger,
		Queue:         queue,
		ConsumerTag:   cfg.RabbitMQ.Consumer.Tag,
		PrefetchCount: cfg.RabbitMQ.Consumer.PrefetchCount,
		MaxImages:     cfg.Poster.MaxImagesPerPost,
	}
	if rabbitClient != nil {
		workerCfg.Ingest = rabbitClient
	}
	workerInstance := worker.NewWorker(workerCfg)

	workerCtx, stopWorker := context.WithCancel(rootCtx)
	defer stopWorker()

	errChan := make(chan error, 2)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		if err := workerInstance.Start(workerCtx); err != nil {
			errChan <- err
		}
	}()

	// HTTP API
	var srv *http.Server
	if cfg.Server.Enabled {
		srv = initServer(cfg, appLogger.Logger, queue, dbClient)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("http server: %w", err)
			}
		}()
		appLogger.Info("HTTP API listening", slog.String("address", srv.Addr))
	}

	appLogger.Info("Poster service started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case runErr = <-errChan:
		appLogger.Error("Poster service error", slog.Any("error", runErr))
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("Server forced to shutdown", slog.Any("error", err))
		}
	}

	// Refuse new jobs, abort the live attempt, then let the loops return
	queue.Close()
	gov.Shutdown()
	stopWorker()

	select {
	case <-workerDone:
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded")
	}

	drained := workerInstance.Stop(shutdownCtx)

	dispatcher.Emit(diagnostics.Event{
		Kind:      diagnostics.KindShutdown,
		Level:     diagnostics.LevelInfo,
		Message:   fmt.Sprintf("poster stopped, %d queued job(s) drained", drained),
		Timestamp: time.Now(),
	})
	stopDispatch()
	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		appLogger.Warn("Diagnostics flush timeout exceeded")
	}

	appLogger.Info("Poster service shutdown complete", slog.Int("drained", drained))
	return runErr
}

func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
		NoColor:      cfg.NoColor,
	})
}

func initPostgreSQL(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	return postgresql.NewClient(ctx, &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		ConnectTimeout:  cfg.ConnectTimeout,
	}, logger)
}

func initRabbitMQ(ctx context.Context, cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(ctx, &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}, logger.With(slog.String("component", "rabbitmq")))
}

// initDiagnostics builds the dispatcher with the log and screenshot emitters,
// plus the status publisher when the broker is enabled
func initDiagnostics(cfg *config.Config, appLogger *logger.Logger, rabbitClient *rabbitmq.Client) *diagnostics.Dispatcher {
	emitters := []diagnostics.Emitter{
		diagnostics.NewLogEmitter(appLogger.Component("diagnostics")),
	}
	if cfg.Diagnostics.ScreenshotDir != "" {
		emitters = append(emitters, diagnostics.NewScreenshotWriter(cfg.Diagnostics.ScreenshotDir))
	}
	if rabbitClient != nil && cfg.RabbitMQ.StatusRoutingKey != "" {
		emitters = append(emitters, diagnostics.NewStatusPublisher(rabbitClient, cfg.RabbitMQ.StatusRoutingKey))
	}

	return diagnostics.NewDispatcher(diagnostics.Config{
		BufferSize:    cfg.Diagnostics.BufferSize,
		RatePerSecond: cfg.Diagnostics.RatePerSecond,
		EmitTimeout:   cfg.Diagnostics.EmitTimeout,
	}, appLogger.Component("dispatcher"), emitters...)
}

func initServer(cfg *config.Config, logger *slog.Logger, queue *worker.Queue, dbClient *postgresql.Client) *http.Server {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	deps := &handler.Dependencies{
		Logger:    logger,
		Queue:     queue,
		MaxImages: cfg.Poster.MaxImagesPerPost,
	}
	if dbClient != nil {
		deps.Posts = apistorage.NewStorage(dbClient)
		deps.Health = dbClient.HealthCheck
	}

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router.SetupRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}
