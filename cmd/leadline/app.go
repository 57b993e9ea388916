package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/premunia/leadline/internal/api"
	"github.com/premunia/leadline/internal/auth"
	"github.com/premunia/leadline/internal/cache"
	"github.com/premunia/leadline/internal/config"
	"github.com/premunia/leadline/internal/crypto"
	"github.com/premunia/leadline/internal/lead"
	"github.com/premunia/leadline/internal/metrics"
	"github.com/premunia/leadline/internal/notify"
	"github.com/premunia/leadline/internal/ratelimit"
	"github.com/premunia/leadline/internal/settings"
	"github.com/premunia/leadline/internal/tracing"
	"github.com/premunia/leadline/internal/user"
)

// app holds everything built from the configuration. serve and invoke share
// it; seed and promote use only the pool and services.
type app struct {
	cfg        *config.Config
	pool       *pgxpool.Pool
	cache      *cache.Cache
	metrics    *metrics.Metrics
	limiter    *ratelimit.Limiter
	dispatcher *notify.Dispatcher
	users      *user.Service
	settings   *settings.Service
	handler    http.Handler

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	if cfg.Database.MaxConns > 0 {
		poolCfg.MaxConns = cfg.Database.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	slog.Info("connected to database")
	return pool, nil
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, pool: pool, metrics: metrics.New()}

	a.metrics.RegisterDBPoolCollector(func() (total, idle, acquired int32) {
		s := pool.Stat()
		return s.TotalConns(), s.IdleConns(), s.AcquiredConns()
	})

	if cfg.Redis.Addr != "" {
		c, err := cache.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Prefix)
		if err != nil {
			// The cache is an optimisation; reads fall through to Postgres.
			slog.Warn("redis unavailable, settings cache disabled", "addr", cfg.Redis.Addr, "error", err)
		} else {
			a.cache = c
			slog.Info("settings cache enabled", "addr", cfg.Redis.Addr)
		}
	}

	cipher, err := crypto.NewCipher(cfg.Encryption.Key)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("encryption key: %w", err)
	}
	if cipher == nil {
		slog.Warn("no encryption key configured, smtp password is stored in clear")
	}

	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	a.users = user.NewService(user.NewStore(pool), tokens)
	a.settings = settings.NewService(settings.NewStore(pool), a.cache, cfg.Redis.TTL, cipher)

	var notifier lead.Notifier
	if cfg.Notify.Enabled {
		a.dispatcher = notify.NewDispatcher(a.settings, notify.GomailMailer{}, a.metrics, notify.Options{
			QueueSize:   cfg.Notify.QueueSize,
			SendTimeout: cfg.Notify.SendTimeout,
			AckProspect: cfg.Notify.AckProspect,
		})
		notifier = a.dispatcher
	}
	leads := lead.NewService(lead.NewStore(pool), notifier)

	if cfg.RateLimit.Requests > 0 {
		a.limiter = ratelimit.New(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	}

	router := api.NewRouter(api.RouterDeps{
		Users:          a.users,
		Leads:          leads,
		Settings:       a.settings,
		Tokens:         tokens,
		DB:             pool,
		Metrics:        a.metrics,
		Limiter:        a.limiter,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AdminOnly:      cfg.Auth.AdminOnly,
		BasePath:       cfg.Server.BasePath,
	})
	a.handler = tracing.Handler(router, cfg.Tracing.ServiceName)

	return a, nil
}

// start launches the background workers. They outlive ctx cancellation so
// leads accepted while the server drains are still notified; stop ends them.
func (a *app) start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(context.WithoutCancel(ctx))
	if a.dispatcher != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.dispatcher.Start(ctx)
		}()
	}
	if a.limiter != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			ratelimit.RunSweeper(ctx, a.limiter, a.cfg.RateLimit.Window)
		}()
	}
}

// stop drains queued notifications and waits for the workers.
func (a *app) stop() {
	if a.dispatcher != nil {
		a.dispatcher.Stop()
	}
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
}

func (a *app) close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			slog.Warn("closing redis client", "error", err)
		}
	}
	a.pool.Close()
}
