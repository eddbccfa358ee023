package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"mutabaahly/web/internal/config"
	"mutabaahly/web/internal/db"
	internalhttp "mutabaahly/web/internal/http"
	"mutabaahly/web/internal/oauth"
	"mutabaahly/web/internal/repository"
	"mutabaahly/web/internal/sessions"
)

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("db connection failed")
	}
	defer pool.Close()
	if err := db.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("schema migration failed")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		cancel()
		logger.Fatal().Err(err).Msg("redis ping failed")
	}
	cancel()
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn().Err(err).Msg("redis close error")
		}
	}()

	sessionStore := sessions.NewStore(redisClient, sessions.Config{
		Secret:       cfg.SessionSecret,
		CookieName:   cfg.SessionCookieName,
		CookieSecure: cfg.CookieSecure,
		TTL:          cfg.SessionTTL,
		RefreshAfter: cfg.SessionRefreshAfter,
		StateTTL:     cfg.OAuthStateTTL,
	})

	var exchanger oauth.Exchanger
	if cfg.OAuthIssuer != "" {
		oidc, err := oauth.NewOIDCExchanger(ctx, cfg.OAuthIssuer, cfg.OAuthClientID, cfg.OAuthClientSecret, cfg.OAuthRedirectURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("oidc provider init failed")
		}
		exchanger = oidc
	} else {
		logger.Warn().Msg("OAUTH_ISSUER not set, sign-in is disabled")
	}

	server := internalhttp.NewServer(repository.NewStore(pool), sessionStore, exchanger, logger)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("shutdown error")
	}
}
