package main

import (
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"spacebooks/internal/admingate"
	"spacebooks/internal/app"
	"spacebooks/internal/config"
	"spacebooks/internal/server"
	"spacebooks/internal/session"
	"spacebooks/internal/telegramauth"
	"spacebooks/internal/util"
)

func main() {
	path := os.Getenv("SPACEBOOKS_CONFIG")
	if path == "" {
		path = config.ConfigPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	appCore, err := app.New(app.Config{
		DatabaseURL:      cfg.DatabaseURL,
		RedisAddr:        cfg.RedisAddr,
		RedisPassword:    cfg.RedisPassword,
		MinioEndpoint:    cfg.MinioEndpoint,
		MinioAccessKey:   cfg.MinioAccessKey,
		MinioSecretKey:   cfg.MinioSecretKey,
		MinioBucket:      cfg.MinioBucket,
		MinioUseSSL:      cfg.MinioUseSSL,
		WalletBridgeURL:  cfg.WalletBridgeURL,
		RecipientAddress: cfg.RecipientAddress,
		AMQPURL:          cfg.AMQPURL,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	sessions, err := session.NewManager(cfg.JWTSecret, cfg.SessionTTLDuration())
	if err != nil {
		log.Fatalf("failed to init session manager: %v", err)
	}

	var verifier telegramauth.Verifier
	if cfg.MockAuth {
		slog.Warn("mock telegram auth enabled, do not use in production")
		verifier = telegramauth.MockVerifier{}
	} else {
		verifier, err = telegramauth.NewHMACVerifier(cfg.TelegramBotToken, 0)
		if err != nil {
			log.Fatalf("failed to init telegram verifier: %v", err)
		}
	}

	gate, err := admingate.New(cfg.AdminCodeHash)
	if err != nil {
		log.Fatalf("failed to init admin gate: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:                  appCore,
		Sessions:             sessions,
		Verifier:             verifier,
		Gate:                 gate,
		RedisAddr:            cfg.RedisAddr,
		RedisPassword:        cfg.RedisPassword,
		AuthRateLimitPerMin:  cfg.AuthRateLimitPerMin,
		BuyRateLimitPerMin:   cfg.BuyRateLimitPerMin,
		WriteRateLimitPerMin: cfg.WriteRateLimitPerMin,
		MaxUploadBytes:       cfg.MaxUploadBytes,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("spacebooks server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
