package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatcore/internal/auth"
	"github.com/vovakirdan/chatcore/internal/config"
	"github.com/vovakirdan/chatcore/internal/log"
	"github.com/vovakirdan/chatcore/internal/presence"
	"github.com/vovakirdan/chatcore/internal/service/chat"
	"github.com/vovakirdan/chatcore/internal/store"
	"github.com/vovakirdan/chatcore/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/chatcore/internal/transport/http"
)

// typingSweepSpec is how often expired in-memory typing entries are purged.
const typingSweepSpec = "@every 30s"

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	store           store.Store
	sweeper         *presence.Sweeper
	redis           *redis.Client
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &App{
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		log:             logger,
	}

	typing, err := a.typingBackend(ctx, cfg)
	if err != nil {
		a.cleanup()
		return nil, err
	}

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}
	authService := auth.NewService(st, jwtConfig)

	svc := chat.New(st, typing, chat.Options{
		TypingTTL:           cfg.TypingTTL,
		TypingRatePerMinute: cfg.TypingRatePerMinute,
	}, log.Component(logger, "chat"))

	a.server = transporthttp.NewServer(svc, authService, st, cfg, log.Component(logger, "http"))
	return a, nil
}

// Migrate opens the database, applies the schema and closes it again.
func Migrate(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) error {
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	return st.Close()
}

func openStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*sqlite.SQLiteStore, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")
	return st, nil
}

// typingBackend picks Redis when configured and falls back to an in-process
// map swept on a cron schedule.
func (a *App) typingBackend(ctx context.Context, cfg *config.Config) (presence.Typing, error) {
	if cfg.RedisAddr != "" {
		client, err := presence.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
		a.redis = client
		a.log.Info().Str("redis_addr", cfg.RedisAddr).Msg("typing state in redis")
		return presence.NewRedisTyping(client, 2*cfg.TypingTTL+time.Minute), nil
	}

	typing := presence.NewMemoryTyping(log.Component(a.log, "typing"))
	sweeper, err := presence.NewSweeper(typing, typingSweepSpec)
	if err != nil {
		return nil, fmt.Errorf("init typing sweeper: %w", err)
	}
	a.sweeper = sweeper
	a.log.Info().Msg("typing state in memory")
	return typing, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	if a.sweeper != nil {
		a.sweeper.Start()
	}

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup stops background jobs and closes redis and the database.
func (a *App) cleanup() {
	if a.sweeper != nil {
		a.sweeper.Stop()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close redis")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
