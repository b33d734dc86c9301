package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dan9191/plutus/internal/config"
	"github.com/Dan9191/plutus/internal/confidential"
	"github.com/Dan9191/plutus/internal/gateway"
	"github.com/Dan9191/plutus/internal/handler"
	"github.com/Dan9191/plutus/internal/integrations/cbr"
	"github.com/Dan9191/plutus/internal/middleware"
	"github.com/Dan9191/plutus/internal/permit"
	"github.com/Dan9191/plutus/internal/reminder"
	"github.com/Dan9191/plutus/internal/repository"
	"github.com/Dan9191/plutus/internal/service"
	"github.com/Dan9191/plutus/internal/utils/email"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logLevel, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	// Initialize sealed-state storage
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatalf("Failed to open %s store: %v", cfg.StoreBackend, err)
	}
	defer closeStore()

	// Initialize confidentiality boundary
	issuer := permit.NewIssuer(cfg.JWTSecret, cfg.OwnerPassphraseHash, cfg.PermitTTL)
	aesSealer, err := confidential.NewAESSealer(cfg.EncryptionKey, []byte(cfg.HMACSecret))
	if err != nil {
		logger.Fatalf("Failed to initialize sealer: %v", err)
	}
	sealer := confidential.Guard(aesSealer, issuer.Authorize(cfg.AccountID))

	// Initialize layers
	gw := gateway.NewHTTPGateway(gateway.Options{
		Timeout:      cfg.GatewayTimeout,
		MaxRetries:   cfg.GatewayMaxRetries,
		RetryBackoff: cfg.GatewayRetryBackoff,
	}, logger)
	cbrClient := cbr.NewCBRClient(cfg, logger)
	mgr := service.NewManager(cfg, sealer, gw, store, cbrClient, logger)
	if err := mgr.Restore(ctx); err != nil {
		logger.Fatalf("Failed to restore account state: %v", err)
	}
	h := handler.NewHandler(mgr, issuer, cfg.AccountID, logger)

	// Repayment reminders
	if cfg.ReminderSchedule != "" && cfg.ReminderEmail != "" {
		job := reminder.NewJob(mgr, email.NewSender(cfg, logger), func(ctx context.Context) (context.Context, error) {
			return issuer.ServiceContext(ctx, cfg.AccountID)
		}, cfg.ReminderEmail, cfg.ReminderName, cfg.ReminderWindow, logger)
		scheduler, err := reminder.NewScheduler(cfg.ReminderSchedule, job, logger)
		if err != nil {
			logger.Fatalf("Failed to schedule reminders: %v", err)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      h.Router(middleware.AuthMiddleware(issuer)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2*cfg.GatewayTimeout*time.Duration(cfg.GatewayMaxRetries+1) + 10*time.Second,
	}

	go func() {
		logger.Infof("Starting server on %s for account %s", addr, cfg.AccountID)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigChan
	logger.Infof("Received signal %v, shutting down", sig)

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Graceful shutdown failed: %v", err)
	}
}

func openStore(ctx context.Context, cfg *config.Config) (repository.SealedStore, func(), error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		db, err := sql.Open("postgres", cfg.DBConn)
		if err != nil {
			return nil, nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to ping database: %w", err)
		}
		pg := repository.NewPostgresStore(db)
		if err := pg.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return pg, func() { db.Close() }, nil
	case config.StoreRedis:
		rs := repository.NewRedisStore(cfg.RedisAddr)
		if err := rs.Ping(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		return rs, func() {}, nil
	default:
		return repository.NewMemoryStore(), func() {}, nil
	}
}
