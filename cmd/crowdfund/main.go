// Package main запускает HTTP-сервер сервиса краудфандинга.
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
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/crowdfund-system/internal/config"
	"github.com/mmeshcher/crowdfund-system/internal/credential"
	"github.com/mmeshcher/crowdfund-system/internal/handler"
	"github.com/mmeshcher/crowdfund-system/internal/middleware"
	"github.com/mmeshcher/crowdfund-system/internal/repository"
	"github.com/mmeshcher/crowdfund-system/internal/service"
	"github.com/mmeshcher/crowdfund-system/internal/transfer"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	issuer := credential.NewClient(cfg.CredentialIssuerAddress)
	transferClient := transfer.NewClient(cfg.TransferSystemAddress)

	svc := service.NewService(repo, issuer, transferClient.Transfer, service.Options{
		MinContribution:  cfg.MinContribution,
		CredentialUnit:   cfg.CredentialUnit,
		CampaignDuration: cfg.CampaignDuration,
	}, logger)
	defer svc.Close()

	restoreCtx, cancelRestore := context.WithTimeout(context.Background(), 30*time.Second)
	if err := svc.Restore(restoreCtx); err != nil {
		cancelRestore()
		sugar.Fatalw("campaign restore error", "error", err.Error())
	}
	cancelRestore()

	authSecret := cfg.AuthSecret
	if authSecret == "" {
		authSecret = "crowdfund-secret"
	}

	authMiddleware := middleware.NewAuthMiddleware(authSecret)
	h := handler.NewHandler(svc, logger, authMiddleware)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting crowdfund server", "addr", cfg.RunAddress)
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
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
