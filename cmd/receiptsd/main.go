package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coopscan/receipts-api/internal/config"
	"github.com/coopscan/receipts-api/internal/export"
	"github.com/coopscan/receipts-api/internal/extract"
	"github.com/coopscan/receipts-api/internal/ocr"
	"github.com/coopscan/receipts-api/internal/repository"
	"github.com/coopscan/receipts-api/internal/server"
	"github.com/coopscan/receipts-api/internal/service"
	"github.com/coopscan/receipts-api/internal/signature"
	"github.com/coopscan/receipts-api/internal/validate"
)

func main() {
	cfg := config.Load()

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	// Misconfiguration (including a mis-mapped shared storage path) refuses
	// to start rather than silently operating against a wrong location.
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := repository.Open(ctx, repository.Config{
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		DialTimeout:     cfg.Database.DialTimeout,
	}, logger)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := repository.HealthCheck(ctx, pool, cfg.Database.DialTimeout, logger); err != nil {
		logger.Error("database health check failed", "error", err)
		os.Exit(1)
	}
	if err := repository.Migrate(ctx, pool, logger); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}

	records := repository.NewRecordRepository(pool, logger)
	locker := repository.NewAdvisoryLocker(pool, logger)
	signatures := signature.NewStore(cfg.Signature.Dir, cfg.Signature.IOTimeout, logger)

	sweeper := signature.NewSweeper(signatures, records, cfg.Signature.SweepInterval, logger)
	go sweeper.Run(ctx)

	recognizer := ocr.NewService(ocr.Config{
		Tesseract: cfg.OCR.Tesseract,
		Lang:      cfg.OCR.Lang,
		WorkDir:   cfg.OCR.WorkDir,
	}, logger)
	if err := recognizer.Start(ctx); err != nil {
		logger.Error("ocr engine start failed", "error", err)
		os.Exit(1)
	}

	policy := validate.Policy{MinBillAmount: cfg.Policy.MinBillAmount}
	if t, err := time.Parse("2006-01-02", cfg.Policy.DateFrom); err == nil {
		policy.DateFrom = t
	}
	if t, err := time.Parse("2006-01-02", cfg.Policy.DateTo); err == nil {
		policy.DateTo = t
	}

	extractor := extract.NewExtractor(extract.Config{
		RefNoiseThreshold: cfg.Policy.RefNoiseThreshold,
		RefTruncateTo:     cfg.Policy.RefTruncateTo,
		CoopLegalName:     cfg.Policy.CoopLegalName,
	})

	submissions := service.NewSubmissionService(records, locker, signatures, policy, cfg.Lock.WaitTimeout, logger)
	exporter := export.NewService(records, logger)
	auth := server.NewAuthManager(cfg.Auth.AccessCode)

	handler := server.NewHandler(submissions, exporter, signatures, recognizer, extractor, auth,
		func(ctx context.Context) error { return pool.Ping(ctx) }, logger)

	srv := server.New(server.Config{Host: cfg.Server.Host, Port: cfg.Server.Port}, logger, handler, auth)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	logger.Info("application started")
	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := recognizer.Shutdown(shutdownCtx); err != nil {
		logger.Error("ocr engine shutdown error", "error", err)
	}
	logger.Info("application stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
