package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"mangareader/internal/ratelimit"
	"mangareader/internal/serverutil"
	"mangareader/internal/util"
	"mangareader/services/api/internal/app"
	"mangareader/services/api/internal/config"
	"mangareader/services/api/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	tokenTTL, err := config.ParseTTL(cfg.AccessTokenTTL)
	if err != nil {
		log.Fatalf("failed to parse access token TTL: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)
	if cfg.SecretKey == config.DevSecretKey {
		logger.Warn("using the development secret key; set SECRET_KEY in production")
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		log.Fatalf("invalid trusted proxy config: %v", err)
	}

	appCore, err := app.New(app.Config{
		DatabaseURL: cfg.DatabaseURL,
		StoragePath: cfg.StoragePath,
		SecretKey:   cfg.SecretKey,
		TokenTTL:    tokenTTL,
		JWTIssuer:   cfg.JWTIssuer,
		JWTAudience: cfg.JWTAudience,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	defer appCore.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.SetupAdminConfigured() {
		if _, err := appCore.SeedAdmin(ctx, cfg.SetupAdminUsername, cfg.SetupAdminEmail, cfg.SetupAdminPassword); err != nil {
			logger.Error("failed to seed admin", "err", err)
		}
	}

	var redisClient redis.UniversalClient
	if cfg.RedisAddr != "" {
		client, err := ratelimit.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.Fatalf("failed to init redis client: %v", err)
		}
		defer client.Close()
		redisClient = client
	} else {
		logger.Warn("rate limiting disabled; REDIS_ADDR is not set")
	}

	httpServer, err := server.New(server.Config{
		App:                        appCore,
		Redis:                      redisClient,
		LoginRateLimitPerMinute:    cfg.LoginRateLimitPerMinute,
		RegisterRateLimitPerMinute: cfg.RegisterRateLimitPerMinute,
		PasswordRateLimitPerMinute: cfg.PasswordRateLimitPerMinute,
		MaxUploadBytes:             cfg.MaxUploadBytes,
		AllowedOrigins:             cfg.AllowedOrigins,
		TrustedProxies:             trusted,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	slog.Info("server listening", "addr", addr)
	if err := serverutil.Run(ctx, srv, serverutil.DefaultShutdownTimeout, nil); err != nil {
		logger.Error("server error", "err", err)
	}
	slog.Info("server stopped")
}
