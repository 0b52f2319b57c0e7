package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kantek-org/kantek/automod"
	"github.com/kantek-org/kantek/automod/cachestore"
	"github.com/kantek-org/kantek/automod/countstore"
	"github.com/kantek-org/kantek/events"
	"github.com/kantek-org/kantek/pkg/metrics"
	"github.com/kantek-org/kantek/pkg/robusthttp"
	"github.com/kantek-org/kantek/platform"
	"github.com/kantek-org/kantek/platform/telegram"
	"github.com/kantek-org/kantek/plugin"
	"github.com/kantek-org/kantek/plugins"
	"github.com/kantek-org/kantek/reputation"
	"github.com/kantek-org/kantek/store"
	"github.com/kantek-org/kantek/tagstore"
	"github.com/kantek-org/kantek/util/cliutil"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/plugin/opentelemetry/tracing"
)

type Config struct {
	BotToken     string
	SenderToken  string
	APIServerURL string
	OperatorIDs  []int64

	CommandPrefix     string
	CoordinationChats []int64
	GBanTemplates     []string
	UnGBanTemplates   []string
	LogChatID         int64

	DatabaseURL string
	MaxDBConns  int
	DBTracing   bool
	RedisURL    string

	BanCacheTTL  time.Duration
	BanCacheSize int

	SpamWatchHost  string
	SpamWatchToken string

	Workers    int
	ChunkSize  int
	ChunkPause time.Duration
	PostDelay  time.Duration

	MetricsListen string
	UserAgent     string
}

// External connections the server is built from. OpenDeps creates the production set; tests substitute in-process ones.
type Deps struct {
	Store  store.Store
	Client platform.Client
	// Posts coordination messages; Client when nil.
	Sender     platform.Client
	Source     platform.Source
	Counters   countstore.CountStore
	Cache      cachestore.CacheStore
	Reputation *reputation.Client
	Health     metrics.HealthFunc
}

// Connects to the database, redis, the chat platform and the reputation service. The returned func releases them.
func OpenDeps(ctx context.Context, logger *slog.Logger, cfg Config) (Deps, func(), error) {
	var (
		deps    Deps
		closers []func()
		checks  []metrics.HealthFunc
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (Deps, func(), error) {
		closeAll()
		return Deps{}, func() {}, err
	}

	logger.Info("configuring database", "url", cfg.DatabaseURL, "maxConn", cfg.MaxDBConns)
	db, err := cliutil.SetupDatabase(cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		return fail(err)
	}
	if cfg.DBTracing {
		if err := db.Use(tracing.NewPlugin()); err != nil {
			return fail(err)
		}
	}
	if err := store.RunMigrations(db); err != nil {
		return fail(fmt.Errorf("migrating database: %w", err))
	}
	sqldb, err := db.DB()
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func() { _ = sqldb.Close() })
	checks = append(checks, sqldb.PingContext)
	deps.Store = store.NewGormStore(db)

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fail(fmt.Errorf("parsing redis URL: %w", err))
		}
		rdb := redis.NewClient(opts)
		closers = append(closers, func() { _ = rdb.Close() })
		checks = append(checks, func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		counters, err := countstore.NewRedisCountStore(ctx, rdb)
		if err != nil {
			return fail(err)
		}
		cache, err := cachestore.NewRedisCacheStore(ctx, rdb, cfg.BanCacheTTL)
		if err != nil {
			return fail(err)
		}
		deps.Counters, deps.Cache = counters, cache
		logger.Info("using redis for counters and ban cache")
	} else {
		deps.Counters = countstore.NewMemCountStore()
		deps.Cache = cachestore.NewMemCacheStore(cfg.BanCacheSize, cfg.BanCacheTTL)
	}

	bot, err := telegram.New(telegram.Config{
		Token:        cfg.BotToken,
		OperatorIDs:  cfg.OperatorIDs,
		Logger:       logger,
		APIServerURL: cfg.APIServerURL,
	})
	if err != nil {
		return fail(err)
	}
	deps.Client, deps.Source = bot, bot
	if cfg.SenderToken != "" {
		sender, err := telegram.New(telegram.Config{
			Token:        cfg.SenderToken,
			Logger:       logger.With("account", "sender"),
			APIServerURL: cfg.APIServerURL,
		})
		if err != nil {
			return fail(fmt.Errorf("sender account: %w", err))
		}
		deps.Sender = sender
	}

	if cfg.SpamWatchToken != "" {
		rc := reputation.NewClient(reputation.Config{
			Host:    cfg.SpamWatchHost,
			Token:   cfg.SpamWatchToken,
			Logger:  logger,
			Options: []robusthttp.Option{robusthttp.WithUserAgent(cfg.UserAgent)},
		})
		// without a resolved permission the client stays read-only
		if _, err := rc.Resolve(ctx); err != nil {
			logger.Warn("reputation service unavailable; bans will not be mirrored", "err", err)
		}
		deps.Reputation = rc
	}

	deps.Health = func(ctx context.Context) error {
		var errs []error
		for _, check := range checks {
			errs = append(errs, check(ctx))
		}
		return errors.Join(errs...)
	}
	return deps, closeAll, nil
}

type Server struct {
	logger     *slog.Logger
	cfg        Config
	deps       Deps
	dispatcher *plugin.Dispatcher
}

func NewServer(logger *slog.Logger, cfg Config, deps Deps) (*Server, error) {
	if deps.Store == nil || deps.Client == nil || deps.Source == nil {
		return nil, fmt.Errorf("server needs a store, a platform client and an event source")
	}

	coord := automod.Coordination{
		ChatIDs:         cfg.CoordinationChats,
		GBanTemplates:   cfg.GBanTemplates,
		UnGBanTemplates: cfg.UnGBanTemplates,
	}
	if len(coord.GBanTemplates) == 0 {
		coord.GBanTemplates = automod.DefaultCoordination.GBanTemplates
	}
	if len(coord.UnGBanTemplates) == 0 {
		coord.UnGBanTemplates = automod.DefaultCoordination.UnGBanTemplates
	}
	if len(coord.ChatIDs) == 0 {
		logger.Warn("no coordination chats configured; gbans stay local")
	}

	engine := &automod.Engine{
		Logger:       logger.With("system", "automod"),
		Store:        deps.Store,
		Client:       deps.Client,
		Sender:       deps.Sender,
		Coordination: coord,
		Reputation:   deps.Reputation,
		Cache:        deps.Cache,
		Counters:     deps.Counters,
		ChunkSize:    cfg.ChunkSize,
		ChunkPause:   cfg.ChunkPause,
		PostDelay:    cfg.PostDelay,
	}

	pcfg := plugin.Config{
		CommandPrefix: cfg.CommandPrefix,
		LogChatID:     cfg.LogChatID,
	}
	if len(coord.ChatIDs) > 0 {
		pcfg.CoordinationChatID = coord.ChatIDs[0]
	}
	b := plugin.NewBuilder()
	if err := plugins.DefaultPlugins(b, pcfg); err != nil {
		return nil, err
	}
	registry := b.Build()

	env := &plugin.Env{
		Client:     deps.Client,
		Store:      deps.Store,
		Tags:       tagstore.NewManager(deps.Store),
		Engine:     engine,
		Counters:   deps.Counters,
		Reputation: deps.Reputation,
		Config:     pcfg,
	}
	return &Server{
		logger: logger,
		cfg:    cfg,
		deps:   deps,
		dispatcher: plugin.NewDispatcher(registry, env, plugin.DispatcherConfig{
			Logger:  logger,
			Workers: cfg.Workers,
		}),
	}, nil
}

// Receives events until ctx is cancelled or the event source stops, then drains queued events.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	handlerCtx := context.WithoutCancel(ctx)
	eg, egCtx := errgroup.WithContext(runCtx)

	eg.Go(func() error {
		return metrics.RunServer(egCtx, s.logger, s.cfg.MetricsListen, s.deps.Health)
	})
	eg.Go(func() error {
		// the metrics server only stops once the source has
		defer cancel()
		s.logger.Info("starting event source")
		return s.deps.Source.Run(egCtx, func(evt *events.Event) {
			// queued and running handlers finish during the drain even after a shutdown signal
			if err := s.dispatcher.Dispatch(handlerCtx, evt); err != nil {
				s.logger.Warn("dropping event", "chat", evt.ChatID, "err", err)
			}
		})
	})

	err := eg.Wait()
	s.logger.Info("event source stopped, draining handlers")
	s.dispatcher.Shutdown()
	return err
}
