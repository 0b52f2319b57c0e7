package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	_ "go.uber.org/automaxprocs"

	"github.com/kantek-org/kantek/automod"
	"github.com/kantek-org/kantek/pkg/env"
	"github.com/kantek-org/kantek/store"
	"github.com/kantek-org/kantek/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting process", "err", err.Error())
		os.Exit(-1)
	}
}

func run(args []string) error {
	env.SetVersion(versioninfo.Short())

	app := cli.App{
		Name:    "kantek",
		Usage:   "chat moderation agent with cross-chat ban propagation",
		Version: versioninfo.Short(),
	}
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			EnvVars: []string{"KANTEK_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "log output format (text or json)",
			EnvVars: []string{"KANTEK_LOG_FMT", "LOG_FMT"},
		},
		&cli.StringFlag{
			Name:    "db-url",
			Usage:   "database connection string for the ban list and chat tags",
			Value:   "sqlite://data/kantek/kantek.sqlite",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "max-db-conn",
			Usage:   "limit on size of database connection pool",
			Value:   20,
			EnvVars: []string{"MAX_DB_CONNECTIONS"},
		},
	}
	app.Commands = []*cli.Command{
		{
			Name:   "run",
			Usage:  "run the moderation daemon",
			Action: runKantek,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "bot-token",
					Usage:    "Bot API token of the acting account",
					Required: true,
					EnvVars:  []string{"KANTEK_BOT_TOKEN"},
				},
				&cli.StringFlag{
					Name:    "sender-token",
					Usage:   "Bot API token of a secondary account used for coordination posts (acting account if unset)",
					EnvVars: []string{"KANTEK_SENDER_TOKEN"},
				},
				&cli.StringFlag{
					Name:    "api-server",
					Usage:   "alternative Bot API server URL",
					EnvVars: []string{"KANTEK_API_SERVER"},
				},
				&cli.Int64SliceFlag{
					Name:    "operator-ids",
					Usage:   "accounts whose messages are treated as operator commands",
					EnvVars: []string{"KANTEK_OPERATOR_IDS"},
				},
				&cli.StringFlag{
					Name:    "command-prefix",
					Usage:   "regular expression prefix of operator commands",
					Value:   `\.`,
					EnvVars: []string{"KANTEK_COMMAND_PREFIX"},
				},
				&cli.Int64SliceFlag{
					Name:    "coordination-chats",
					Usage:   "chats where gban/ungban messages are posted; the first also receives evidence forwards",
					EnvVars: []string{"KANTEK_COORDINATION_CHATS", "KANTEK_GBAN_GROUP"},
				},
				&cli.StringSliceFlag{
					Name:    "gban-templates",
					Usage:   "messages posted per gbanned identity; {uid} and {reason} are substituted",
					Value:   cli.NewStringSlice(automod.DefaultCoordination.GBanTemplates...),
					EnvVars: []string{"KANTEK_GBAN_TEMPLATES"},
				},
				&cli.StringSliceFlag{
					Name:    "ungban-templates",
					Usage:   "messages posted per ungbanned identity; {uid} is substituted",
					Value:   cli.NewStringSlice(automod.DefaultCoordination.UnGBanTemplates...),
					EnvVars: []string{"KANTEK_UNGBAN_TEMPLATES"},
				},
				&cli.Int64Flag{
					Name:    "log-chat",
					Usage:   "chat where moderation actions are logged",
					EnvVars: []string{"KANTEK_LOG_CHAT"},
				},
				&cli.StringFlag{
					Name:    "redis-url",
					Usage:   "redis for counters and the ban lookup cache (in-process if unset)",
					EnvVars: []string{"KANTEK_REDIS_URL", "REDIS_URL"},
				},
				&cli.DurationFlag{
					Name:    "ban-cache-ttl",
					Usage:   "how long ban lookups are cached",
					Value:   10 * time.Minute,
					EnvVars: []string{"KANTEK_BAN_CACHE_TTL"},
				},
				&cli.IntFlag{
					Name:    "ban-cache-size",
					Usage:   "size of the in-process ban lookup cache",
					Value:   100_000,
					EnvVars: []string{"KANTEK_BAN_CACHE_SIZE"},
				},
				&cli.StringFlag{
					Name:    "spamwatch-host",
					Usage:   "reputation service API host",
					Value:   "https://api.spamwat.ch",
					EnvVars: []string{"KANTEK_SPAMWATCH_HOST", "SPAMWATCH_HOST"},
				},
				&cli.StringFlag{
					Name:    "spamwatch-token",
					Usage:   "reputation service token (service disabled if unset)",
					EnvVars: []string{"KANTEK_SPAMWATCH_TOKEN", "SPAMWATCH_TOKEN"},
				},
				&cli.IntFlag{
					Name:    "workers",
					Usage:   "number of event handler workers",
					Value:   8,
					EnvVars: []string{"KANTEK_WORKERS"},
				},
				&cli.IntFlag{
					Name:    "chunk-size",
					Usage:   "identities processed between pauses in large gbans",
					Value:   automod.DefaultChunkSize,
					EnvVars: []string{"KANTEK_CHUNK_SIZE"},
				},
				&cli.DurationFlag{
					Name:    "chunk-pause",
					Usage:   "pause between chunks of large gbans",
					Value:   automod.DefaultChunkPause,
					EnvVars: []string{"KANTEK_CHUNK_PAUSE"},
				},
				&cli.DurationFlag{
					Name:    "post-delay",
					Usage:   "pause between coordination posts",
					Value:   automod.DefaultPostDelay,
					EnvVars: []string{"KANTEK_POST_DELAY"},
				},
				&cli.StringFlag{
					Name:    "metrics-listen",
					Usage:   "IP or address, and port, to listen on for metrics and health checks",
					Value:   ":3990",
					EnvVars: []string{"KANTEK_METRICS_LISTEN"},
				},
				&cli.BoolFlag{
					Name:    "enable-db-tracing",
					Usage:   "trace database queries with OpenTelemetry",
					EnvVars: []string{"KANTEK_DB_TRACING"},
				},
				&cli.StringFlag{
					Name:    "otel-exporter-otlp-endpoint",
					EnvVars: []string{"OTEL_EXPORTER_OTLP_ENDPOINT"},
				},
			},
		},
		{
			Name:   "migrate",
			Usage:  "create or update database tables, then exit",
			Action: runMigrate,
		},
	}
	return app.Run(args)
}

func setupLogger(cctx *cli.Context) (*slog.Logger, error) {
	return cliutil.SetupSlog(cliutil.LogOptions{
		LogLevel:  cctx.String("log-level"),
		LogFormat: cctx.String("log-format"),
	})
}

func runMigrate(cctx *cli.Context) error {
	logger, err := setupLogger(cctx)
	if err != nil {
		return err
	}
	db, err := cliutil.SetupDatabase(cctx.String("db-url"), 1)
	if err != nil {
		return err
	}
	if err := store.RunMigrations(db); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	logger.Info("database migrated")
	return nil
}

func runKantek(cctx *cli.Context) error {
	logger, err := setupLogger(cctx)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := setupOTEL(ctx, logger, cctx.String("otel-exporter-otlp-endpoint"))
	if err != nil {
		return err
	}
	defer shutdownTracing()

	cfg := Config{
		BotToken:          cctx.String("bot-token"),
		SenderToken:       cctx.String("sender-token"),
		APIServerURL:      cctx.String("api-server"),
		OperatorIDs:       cctx.Int64Slice("operator-ids"),
		CommandPrefix:     cctx.String("command-prefix"),
		CoordinationChats: cctx.Int64Slice("coordination-chats"),
		GBanTemplates:     cctx.StringSlice("gban-templates"),
		UnGBanTemplates:   cctx.StringSlice("ungban-templates"),
		LogChatID:         cctx.Int64("log-chat"),
		DatabaseURL:       cctx.String("db-url"),
		MaxDBConns:        cctx.Int("max-db-conn"),
		DBTracing:         cctx.Bool("enable-db-tracing"),
		RedisURL:          cctx.String("redis-url"),
		BanCacheTTL:       cctx.Duration("ban-cache-ttl"),
		BanCacheSize:      cctx.Int("ban-cache-size"),
		SpamWatchHost:     cctx.String("spamwatch-host"),
		SpamWatchToken:    cctx.String("spamwatch-token"),
		Workers:           cctx.Int("workers"),
		ChunkSize:         cctx.Int("chunk-size"),
		ChunkPause:        cctx.Duration("chunk-pause"),
		PostDelay:         cctx.Duration("post-delay"),
		MetricsListen:     cctx.String("metrics-listen"),
		UserAgent:         fmt.Sprintf("kantek/%s", versioninfo.Short()),
	}

	deps, closeDeps, err := OpenDeps(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer closeDeps()

	srv, err := NewServer(logger, cfg, deps)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

// Flushes pending spans; bounded so shutdown is never held up by the collector.
func flushTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}
