package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"auth-service/internal/auth"
	"auth-service/internal/config"
	"auth-service/internal/db"
	"auth-service/internal/notifier"
	"auth-service/internal/security"
	sessionrepository "auth-service/internal/session/repository"
	userrepository "auth-service/internal/user/repository"

	"auth-service/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var logger *zap.Logger
	if cfg.Env == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer database.Close()

	users := userrepository.NewPostgresRepository(database)
	sessions := sessionrepository.NewPostgresRepository(database)

	hasher := security.NewHasher(cfg.BcryptCost)
	tokens := security.NewTokenProvider(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTTL(), cfg.RefreshTTL())

	dispatcher := notifier.NewDispatcher(
		notifier.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.OTPExpiry()),
		notifier.NewSMSClient(cfg.SMSAPIKey, cfg.SMSBaseURL, cfg.SMSFrom),
	)

	svc := auth.NewService(users, sessions, dispatcher, hasher, tokens, cfg.OTPExpiry(), cfg.OTPLength)

	srv := server.New(svc, logger, cfg.HTTPAddr)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("serve", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down http server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	logger.Info("http server stopped")
}
