// Package appbuilder wires configuration into the running timer service.
package appbuilder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/park285/cubetimer/internal/announce"
	"github.com/park285/cubetimer/internal/auth"
	"github.com/park285/cubetimer/internal/backend"
	"github.com/park285/cubetimer/internal/bridge"
	"github.com/park285/cubetimer/internal/cache"
	"github.com/park285/cubetimer/internal/config"
	"github.com/park285/cubetimer/internal/domain"
	"github.com/park285/cubetimer/internal/eventbus"
	"github.com/park285/cubetimer/internal/msgcat"
	"github.com/park285/cubetimer/internal/reconcile"
	"github.com/park285/cubetimer/internal/scramble"
	"github.com/park285/cubetimer/internal/session"
	"github.com/park285/cubetimer/internal/store"
	"github.com/park285/cubetimer/internal/timer"
	"go.uber.org/zap"
)

const reconcileLockTTL = 30 * time.Second

type App struct {
	Config     *config.AppConfig
	Logger     *zap.Logger
	Cache      *cache.CacheService
	Records    *eventbus.Bus[domain.RecordEvent]
	Reconciler *reconcile.Reconciler
	Messages   *msgcat.Catalog
	Verifier   *auth.Verifier
	Scrambles  *scramble.Generator
	Announcer  *announce.Announcer
	Server     *bridge.Server

	// store is shared for every backend except rest, where storeFor
	// scopes a client to the caller's token.
	store  store.Store
	rest   *backend.Client
	guard  *reconcile.Guard
	clock  timer.Clock
	closer []func() error
}

type Option func(*App)

// WithClock overrides the timer clock of every session; tests use a FakeClock.
func WithClock(c timer.Clock) Option {
	return func(a *App) { a.clock = c }
}

func New(cfg *config.AppConfig, logger *zap.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger, Records: eventbus.New[domain.RecordEvent](), guard: reconcile.NewGuard()}
	for _, opt := range opts {
		opt(a)
	}
	if err := a.build(); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build() error {
	cfg := a.Config
	var err error

	// Cache (Redis optional)
	if strings.TrimSpace(cfg.RedisURL) != "" {
		cconf, perr := cache.ParseURL(cfg.RedisURL)
		if perr != nil {
			return fmt.Errorf("parse redis url: %w", perr)
		}
		cconf.Prefix = "cubetimer:"
		a.Cache, err = cache.NewCacheService(*cconf, a.Logger)
		if err != nil {
			return fmt.Errorf("init cache: %w", err)
		}
		a.closer = append(a.closer, a.Cache.Close)
	}

	if err := a.openStore(); err != nil {
		return err
	}

	a.Messages, err = msgcat.New(cfg.MessagesDir)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	a.Verifier, err = auth.NewVerifier(cfg.AuthJWTSecret)
	if err != nil {
		return fmt.Errorf("init verifier: %w", err)
	}
	a.Scrambles = scramble.NewGenerator(cfg.ScrambleLength, nil)
	if a.store != nil {
		a.Reconciler = a.newReconciler(a.store)
	}

	if cfg.DiscordBotToken != "" {
		a.Announcer, err = announce.NewDiscord(cfg.DiscordBotToken, cfg.DiscordChannelID,
			announce.WithLogger(a.Logger.Named("announce")),
			announce.WithMessages(a.Messages),
		)
		if err != nil {
			return fmt.Errorf("init announcer: %w", err)
		}
		a.closer = append(a.closer, a.Announcer.Close, a.unsubscribeOnClose(a.Announcer.Attach(a.Records)))
	}

	a.Server = bridge.New(bridge.Deps{
		Verifier:      a.Verifier,
		NewController: a.NewController,
		Scrambles:     a.Scrambles,
		Messages:      a.Messages,
		Logger:        a.Logger.Named("http"),
		Health:        a.Health,
	})
	return nil
}

func (a *App) openStore() error {
	cfg := a.Config
	var base store.Store

	switch cfg.StoreBackend {
	case config.BackendMemory:
		base = store.NewMemory()
	case config.BackendSQLite:
		lite, err := store.OpenSQLite(cfg.SQLitePath, nil)
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		a.closer = append(a.closer, lite.Close)
		base = lite
	case config.BackendPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		db, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		a.closer = append(a.closer, db.Close)
		base = store.NewPostgres(db)
	case config.BackendREST:
		a.rest = backend.NewClient(cfg.BaaSURL, cfg.BaaSAnonKey)
		return nil
	default:
		return fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	a.store = a.withCache(base)
	return nil
}

func (a *App) withCache(st store.Store) store.Store {
	if a.Cache == nil {
		return st
	}
	return store.NewCachedProfiles(st, a.Cache, a.Config.ProfileCacheTTL(), a.Logger.Named("profile_cache"))
}

func (a *App) newReconciler(st store.Store) *reconcile.Reconciler {
	opts := []reconcile.Option{
		reconcile.WithLogger(a.Logger.Named("reconcile")),
		reconcile.WithHistoryCap(a.Config.HistoryCap),
		reconcile.WithGuard(a.guard),
	}
	if a.Cache != nil {
		opts = append(opts, reconcile.WithLocker(a.Cache, reconcileLockTTL))
	}
	return reconcile.New(st, a.Records, opts...)
}

// Store returns the shared store; nil for the rest backend.
func (a *App) Store() store.Store { return a.store }

// storeFor resolves the store and reconciler used for one identity.
func (a *App) storeFor(id *auth.Identity) (store.Store, *reconcile.Reconciler) {
	if a.rest == nil {
		return a.store, a.Reconciler
	}
	token := ""
	if id != nil {
		token = id.Token
	}
	st := a.withCache(a.rest.ForUser(token))
	return st, a.newReconciler(st)
}

// NewController builds a session for id; a nil identity gives an unsigned session.
func (a *App) NewController(id *auth.Identity) *session.Controller {
	owner := ""
	if id != nil {
		owner = id.OwnerID
	}
	st, recon := a.storeFor(id)
	return session.New(owner, session.Deps{
		Store:      st,
		Reconciler: recon,
		Records:    a.Records,
		Scrambles:  a.Scrambles,
		Messages:   a.Messages,
		Clock:      a.clock,
		Logger:     a.Logger.Named("session"),
	}, session.Config{
		HoldDelay:       a.Config.HoldDelay(),
		RefreshInterval: a.Config.RefreshInterval(),
		HistoryCap:      a.Config.HistoryCap,
	})
}

// Health pings the store and Redis when they support it.
func (a *App) Health(ctx context.Context) error {
	if p, ok := a.store.(store.Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("store: %w", err)
		}
	}
	if cp, ok := a.store.(*store.CachedProfiles); ok {
		if p, ok := cp.Store.(store.Pinger); ok {
			if err := p.Ping(ctx); err != nil {
				return fmt.Errorf("store: %w", err)
			}
		}
	}
	if a.Cache != nil {
		if err := a.Cache.Client().Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (a *App) unsubscribeOnClose(unsub func()) func() error {
	return func() error {
		unsub()
		return nil
	}
}

// Close releases resources in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closer) - 1; i >= 0; i-- {
		if err := a.closer[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closer = nil
	return errors.Join(errs...)
}
