package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"

	"skillswap/pkg/bus"
	"skillswap/pkg/db"
	gos3 "skillswap/pkg/s3"
	"skillswap/pkg/telemetry"
	"skillswap/services/api"
	"skillswap/services/chat"
)

const serviceName = "skillswap-api"

type config struct {
	Addr                string        `env:"ADDR, default=:8080"`
	DatabaseURL         string        `env:"DATABASE_URL, required"`
	RedisURL            string        `env:"REDIS_URL"`
	NATSURL             string        `env:"NATS_URL"`
	ArtifactBucket      string        `env:"S3_BUCKET"`
	SessionKey          string        `env:"SESSION_KEY, required"`
	SessionTTL          time.Duration `env:"SESSION_TTL, default=168h"`
	MaxUploadBytes      int64         `env:"MAX_UPLOAD_BYTES, default=10485760"`
	ReputationIncrement int           `env:"REPUTATION_INCREMENT, default=10"`
	CookieSecure        bool          `env:"COOKIE_SECURE, default=false"`
	AllowedOrigins      []string      `env:"ALLOWED_ORIGINS"`
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "skillswapd",
		Short:         "skillswap exchange platform server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newEventsCommand())
	return cmd
}

func loadConfig(ctx context.Context) (config, error) {
	_ = godotenv.Load()

	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run migrations and serve the HTTP and websocket API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func serve() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	setupLogging()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	shutdownTelemetry, otelMiddleware, _, err := telemetry.Init(ctx, serviceName)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownTelemetry != nil {
			if err := shutdownTelemetry(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("shutdown telemetry")
			}
		}
	}()

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	orm, err := db.OpenORM(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open orm: %w", err)
	}
	defer func() {
		if err := db.CloseORM(orm); err != nil {
			log.Error().Err(err).Msg("close orm")
		}
	}()

	denylist, closeDenylist, err := newDenylist(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("init denylist: %w", err)
	}
	defer closeDenylist()

	authority, err := api.NewAuthority([]byte(cfg.SessionKey), cfg.SessionTTL, denylist)
	if err != nil {
		return fmt.Errorf("init session authority: %w", err)
	}

	store := &api.Store{DB: pool, ORM: orm}

	if cfg.ArtifactBucket != "" {
		s3Client, err := gos3.NewClientFromEnv()
		if err != nil {
			return fmt.Errorf("init s3 client: %w", err)
		}
		store.S3 = s3Client
	} else {
		log.Warn().Msg("S3_BUCKET not set, artifact uploads disabled")
	}

	if cfg.NATSURL != "" {
		eventBus, err := bus.New(cfg.NATSURL)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer eventBus.Close()
		store.Bus = eventBus
	} else {
		log.Warn().Msg("NATS_URL not set, lifecycle events disabled")
	}

	apiServer, err := api.New(store, authority, api.Config{
		ArtifactBucket:      cfg.ArtifactBucket,
		MaxUploadBytes:      cfg.MaxUploadBytes,
		ReputationIncrement: cfg.ReputationIncrement,
		SessionTTL:          cfg.SessionTTL,
		CookieSecure:        cfg.CookieSecure,
		AllowedOrigins:      cfg.AllowedOrigins,
	})
	if err != nil {
		return fmt.Errorf("init api: %w", err)
	}

	routes, err := apiServer.Routes()
	if err != nil {
		return fmt.Errorf("build routes: %w", err)
	}

	gateway, err := chat.NewServer(authority, apiServer, apiServer, log.Logger)
	if err != nil {
		return fmt.Errorf("init chat gateway: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", gateway.Handler())
	mux.Handle("/", routes)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           otelMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("shutdown server")
		}
	}()

	log.Info().Str("addr", cfg.Addr).Msg("starting skillswap-api")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// newDenylist backs token revocation with redis when configured, falling
// back to the in-process store for single-node development.
func newDenylist(ctx context.Context, redisURL string) (api.Denylist, func(), error) {
	if redisURL == "" {
		log.Warn().Msg("REDIS_URL not set, using in-process token denylist")
		return api.NewMemoryDenylist(), func() {}, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}

	denylist, err := api.NewRedisDenylist(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return denylist, func() { _ = client.Close() }, nil
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			setupLogging()

			cfg, err := loadConfig(ctx)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			pool, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer pool.Close()

			if err := db.Migrate(ctx, pool); err != nil {
				return fmt.Errorf("migrate database: %w", err)
			}

			log.Info().Msg("migrations applied")
			return nil
		},
	}
}

func newEventsCommand() *cobra.Command {
	var (
		subject string
		durable string
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Tail lifecycle events from the bus",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			setupLogging()

			cfg, err := loadConfig(ctx)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.NATSURL == "" {
				return errors.New("NATS_URL is required for events")
			}

			eventBus, err := bus.New(cfg.NATSURL)
			if err != nil {
				return fmt.Errorf("connect nats: %w", err)
			}
			defer eventBus.Close()

			sub, err := eventBus.Subscribe(ctx, subject, durable, func(ctx context.Context, data []byte) error {
				fmt.Fprintln(os.Stdout, string(data))
				return nil
			})
			if err != nil {
				return fmt.Errorf("subscribe %q: %w", subject, err)
			}
			defer sub.Close()

			log.Info().Str("subject", subject).Msg("tailing events, ctrl-c to stop")
			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "skillswap.exchanges.*", "Subject filter to tail")
	cmd.Flags().StringVar(&durable, "durable", "skillswap-events-tail", "Durable consumer name")
	return cmd
}
