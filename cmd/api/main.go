package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"

	_ "github.com/redmonkez12/chatty-auth/docs" // Swagger docs (generated)
	"github.com/redmonkez12/chatty-auth/internal/account"
	"github.com/redmonkez12/chatty-auth/internal/auth"
	"github.com/redmonkez12/chatty-auth/internal/config"
	"github.com/redmonkez12/chatty-auth/internal/database"
	"github.com/redmonkez12/chatty-auth/internal/email"
	httpServer "github.com/redmonkez12/chatty-auth/internal/http"
	"github.com/redmonkez12/chatty-auth/internal/logging"
	"github.com/redmonkez12/chatty-auth/internal/metrics"
	"github.com/redmonkez12/chatty-auth/internal/ratelimit"
)

// @title           Chatty Auth API
// @version         1.0
// @description     Account signup with email code verification, login, password reset and cookie sessions.

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the session token.

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	// Load configuration; a bad signing key stops the process here
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLogger(cfg.Server.IsDevelopment())
	logger.Info("starting application",
		"env", cfg.Server.Env,
		"port", cfg.Server.Port,
		"token_algorithm", cfg.Auth.TokenAlgorithm,
	)

	db, err := initDB(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	if err := database.CreateSchema(context.Background(), db); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	redisClient, err := initRedis(cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}
	defer redisClient.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	authMetrics := metrics.New(registry)

	tokenService, err := auth.NewTokenService(cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to initialize token service: %w", err)
	}

	emailService := email.NewService(
		email.NewSMTPTransport(
			cfg.Email.SMTPHost,
			cfg.Email.SMTPPort,
			cfg.Email.SMTPUser,
			cfg.Email.SMTPPassword,
			cfg.Email.FromName,
		),
		cfg.Auth.OTPTTL,
	)
	dispatcher := email.NewDispatcher(emailService, email.DispatcherConfig{
		Workers:    cfg.Email.Workers,
		QueueSize:  cfg.Email.QueueSize,
		MaxRetries: uint64(max(cfg.Email.MaxRetries, 0)),
	}, logger, authMetrics)

	authService := auth.NewService(
		account.NewRepository(db),
		auth.NewBcryptHasher(cfg.Auth.BcryptCost),
		tokenService,
		dispatcher,
		authMetrics,
		logger,
		auth.Settings{
			SessionDuration: cfg.Auth.SessionTokenDuration,
			CodeTTL:         cfg.Auth.OTPTTL,
			CodeCooldown:    cfg.Auth.OTPCooldown,
			MaxCodeAttempts: cfg.Auth.OTPMaxAttempts,
		},
	)

	authHandler := auth.NewHandler(
		authService,
		ratelimit.NewLimiter(redisClient, cfg.RateLimit.IPLimit, cfg.RateLimit.IPWindow),
		auth.NewCookieSink(!cfg.Server.IsDevelopment()),
	)
	authMiddleware := auth.NewMiddleware(authService)

	router := httpServer.NewRouter(cfg, authHandler, authMiddleware, registry, logger)

	server := httpServer.NewServer(
		":"+cfg.Server.Port,
		router,
		cfg.Server.ReadTimeout,
		cfg.Server.WriteTimeout,
		logger,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		_ = dispatcher.Close(context.Background())
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("received signal", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		// flush queued code emails after the last request has finished
		if err := dispatcher.Close(ctx); err != nil {
			logger.Warn("email queue not fully drained", "error", err)
		}
	}

	return nil
}

// initDB initializes the database connection and returns a Bun DB instance
func initDB(cfg config.DatabaseConfig) (*bun.DB, error) {
	sqlDB, err := sql.Open("postgres", cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	return database.NewBunDB(sqlDB), nil
}

// initRedis initializes the Redis connection and returns a Redis client
func initRedis(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return client, nil
}
