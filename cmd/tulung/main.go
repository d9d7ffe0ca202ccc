// Package main запускает HTTP-сервер сервиса учёта расходов.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tulung-app/tulung/internal/billing"
	"github.com/tulung-app/tulung/internal/config"
	"github.com/tulung-app/tulung/internal/handler"
	"github.com/tulung-app/tulung/internal/logger"
	"github.com/tulung-app/tulung/internal/middleware"
	"github.com/tulung-app/tulung/internal/notify"
	"github.com/tulung-app/tulung/internal/ocr"
	"github.com/tulung-app/tulung/internal/repository"
	"github.com/tulung-app/tulung/internal/service"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	zl, err := logger.New(cfg.Development, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger initialization error: %v", err)
	}
	defer zl.Sync()

	sugar := zl.Sugar()

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	var receipts service.ReceiptReader
	ocrClient := ocr.NewClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel)
	if ocrClient.Configured() {
		receipts = ocrClient
	} else {
		sugar.Warn("openai api key is not configured, receipt scanning is disabled")
	}

	var entitlements service.EntitlementSource
	billingClient := billing.NewClient(cfg.RevenueCatBaseURL, cfg.RevenueCatAPIKey, cfg.RevenueCatEntitlement, zl)
	if billingClient.Configured() {
		entitlements = billingClient
	} else {
		sugar.Warn("revenuecat api key is not configured, entitlement sync is disabled")
	}

	var publisher notify.Publisher = notify.Noop{}
	if cfg.AMQPURL != "" {
		p, err := notify.NewRabbitMQPublisher(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			sugar.Fatalw("amqp initialization error", "error", err.Error())
		}
		publisher = p
	}

	svc := service.NewService(repo, receipts, entitlements, publisher, zl)
	defer func() {
		if err := svc.Close(); err != nil {
			sugar.Errorw("service close error", "error", err)
		}
	}()

	authMiddleware := middleware.NewAuthMiddleware(cfg.SupabaseJWTSecret, cfg.TokenIssuer(), zl)
	h := handler.NewHandler(svc, zl, authMiddleware, cfg.CORSAllowedOrigins)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Фоновая сверка истёкших подписок
	g.Go(func() error {
		svc.StartEntitlementSync(ctx, cfg.EntitlementSyncInterval)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting tulung server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Errorw("application terminated with error", "error", err)
	}
}
