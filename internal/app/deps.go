package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"

	"github.com/lingoswap/backend/internal/auth"
	"github.com/lingoswap/backend/internal/chat"
	"github.com/lingoswap/backend/internal/config"
	"github.com/lingoswap/backend/internal/db"
	"github.com/lingoswap/backend/internal/handlers"
	"github.com/lingoswap/backend/internal/middleware"
	"github.com/lingoswap/backend/internal/relationships"
	"github.com/lingoswap/backend/internal/repositories"
	"github.com/lingoswap/backend/internal/storage"
)

// stores groups the persistence backends selected by configuration.
type stores struct {
	users    repositories.UserRepository
	requests repositories.FriendRequestRepository
	tx       repositories.Transactor
}

func buildStores(pool db.Pool, cfg config.Config) stores {
	if cfg.Store == config.StoreMemory || pool == nil {
		memory := repositories.NewMemoryStore()
		return stores{users: memory, requests: memory, tx: memory}
	}
	return stores{
		users:    repositories.NewPostgresUserRepository(pool),
		requests: repositories.NewPostgresFriendRepository(pool),
		tx:       repositories.NewPostgresTransactor(pool),
	}
}

func newEngine(s stores, cfg config.Config) *relationships.Engine {
	return relationships.NewEngine(s.users, s.requests, s.tx,
		relationships.WithDefaultRecommendLimit(cfg.RecommendLimit),
	)
}

// buildDependencies wires together concrete implementations used by the HTTP handlers. The
// returned cleanup releases clients opened here; it does not close pool.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config) (handlers.Dependencies, func(context.Context) error, error) {
	logger := slog.Default()
	s := buildStores(pool, cfg)

	var closers []func() error
	cleanup := func(context.Context) error {
		var errs []error
		for _, closeFn := range closers {
			errs = append(errs, closeFn())
		}
		return errors.Join(errs...)
	}

	checks := []handlers.HealthChecker{}
	if pool != nil && cfg.Store == config.StorePostgres {
		checks = append(checks, func(ctx context.Context) error { return db.Ping(ctx, pool) })
	}

	var sessionStore auth.SessionStore
	switch cfg.SessionStore {
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, client.Close)
		checks = append(checks, func(ctx context.Context) error { return client.Ping(ctx).Err() })
		sessionStore = repositories.NewRedisSessionStore(client)
	case config.StorePostgres:
		if pool == nil {
			return handlers.Dependencies{}, cleanup, fmt.Errorf("postgres session store requires a database pool")
		}
		sessionStore = repositories.NewPostgresSessionStore(pool)
	default:
		sessionStore = auth.NewInMemorySessionStore()
	}

	if cfg.UsesDevSecret() {
		logger.Warn("using the development jwt secret; set LINGOSWAP_JWT_SECRET in production")
	}
	sessions := auth.NewManager(cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL, sessionStore, []byte(cfg.Auth.JWTSecret))

	deps := handlers.Dependencies{
		Users:         s.users,
		Sessions:      sessions,
		Relationships: newEngine(s, cfg),
		Health:        combineChecks(checks),
		Cookies:       handlers.CookieConfig{Secure: cfg.Auth.CookieSecure},
	}

	proxies, err := cfg.Auth.ProxyPrefixes()
	if err != nil {
		return handlers.Dependencies{}, cleanup, err
	}
	deps.Proxies = handlers.ProxyTrust{Prefixes: proxies}

	if cfg.Auth.RateLimit > 0 {
		deps.AuthLimiter = middleware.NewKeyedLimiter(middleware.LimiterConfig{PerMinute: cfg.Auth.RateLimit})
	}

	minter, err := chat.NewStreamTokenMinter(cfg.Stream.APIKey, cfg.Stream.APISecret, cfg.Stream.TokenTTL)
	switch {
	case err == nil:
		deps.Chat = minter
	case errors.Is(err, chat.ErrMissingCredentials):
		logger.Warn("chat provider credentials missing; token endpoint disabled")
	default:
		return handlers.Dependencies{}, cleanup, err
	}

	if cfg.ObjectStore.Bucket != "" {
		avatars, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
		if err != nil {
			return handlers.Dependencies{}, cleanup, fmt.Errorf("configure avatar storage: %w", err)
		}
		deps.Avatars = avatars
	} else {
		logger.Warn("object storage bucket not configured; avatar uploads disabled")
	}

	return deps, cleanup, nil
}

func combineChecks(checks []handlers.HealthChecker) handlers.HealthChecker {
	if len(checks) == 0 {
		return nil
	}
	return func(ctx context.Context) error {
		for _, check := range checks {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}
