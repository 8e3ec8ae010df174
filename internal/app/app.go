package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/marksync/internal/auth"
	"github.com/MrSnakeDoc/marksync/internal/backend"
	"github.com/MrSnakeDoc/marksync/internal/broadcast"
	"github.com/MrSnakeDoc/marksync/internal/config"
	"github.com/MrSnakeDoc/marksync/internal/httpserver"
	"github.com/MrSnakeDoc/marksync/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marksync/internal/logger"
	"github.com/MrSnakeDoc/marksync/internal/redis"
	"github.com/MrSnakeDoc/marksync/internal/session"
	"github.com/MrSnakeDoc/marksync/internal/store/postgres"
	redisstore "github.com/MrSnakeDoc/marksync/internal/store/redis"
	"github.com/MrSnakeDoc/marksync/internal/utils"
	"github.com/MrSnakeDoc/marksync/internal/version"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	redisClient *goredis.Client
	backend     backend.Service
	bus         broadcast.Bus
	closing     chan struct{}
}

// ConnectRedis connects to Redis, retrying until the configured deadline.
func ConnectRedis(cfg *config.Config, log logger.Logger) (*goredis.Client, error) {
	return redis.New(redis.ConnectOptions{
		Addr:           cfg.RedisAddr,
		User:           cfg.RedisUser,
		Password:       cfg.RedisPassword,
		RedisDB:        cfg.RedisDB,
		DialTimeout:    cfg.RedisDT,
		ReadTimeout:    cfg.RedisRT,
		WriteTimeout:   cfg.RedisWT,
		PoolSize:       cfg.RedisPoolSize,
		ConnectTimeout: cfg.RedisConnectTimeout,
		RetryInterval:  cfg.RedisRetryInterval,
		MaxWait:        cfg.RedisMaxWait,
		PingTimeout:    cfg.RedisPingTimeout,
		WarnThreshold:  cfg.RedisWarnThreshold,
	}, log)
}

// OpenBackend returns the configured backend service. The Postgres schema
// is applied on open.
func OpenBackend(ctx context.Context, cfg *config.Config, redisClient *goredis.Client, log logger.Logger) (backend.Service, error) {
	switch cfg.BackendDriver {
	case config.DriverPostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN, cfg.PostgresConnectTimeout, log)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			utils.CloseLogged(store, "postgres", log)
			return nil, err
		}
		return store, nil
	case config.DriverRedis:
		return redisstore.NewStore(redisClient, log), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.BackendDriver)
	}
}

// OpenBus returns the configured broadcast bus.
func OpenBus(ctx context.Context, cfg *config.Config, redisClient *goredis.Client, log logger.Logger) (broadcast.Bus, error) {
	switch cfg.BroadcastDriver {
	case config.DriverRedis:
		return broadcast.NewRedisBus(ctx, redisClient, cfg.BroadcastChannel, log)
	case config.DriverLocal:
		return broadcast.NewLocalBus(), nil
	default:
		return nil, fmt.Errorf("unknown broadcast driver %q", cfg.BroadcastDriver)
	}
}

// NewSessions builds the session layer backed by Redis.
func NewSessions(cfg *config.Config, redisClient *goredis.Client, log logger.Logger) *auth.Sessions {
	tokens := auth.NewTokens(cfg.JWTSecret, cfg.SessionTTL)
	return auth.NewSessions(tokens, auth.NewRedisStore(redisClient, log), log)
}

func New(ctx context.Context, cfg *config.Config, loggerClient logger.Logger) (*App, error) {
	// Initialize Redis early - fail fast if unavailable
	redisClient, err := ConnectRedis(cfg, loggerClient)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	loggerClient.Info("Redis initialized successfully")

	svc, err := OpenBackend(ctx, cfg, redisClient, loggerClient)
	if err != nil {
		utils.CloseLogged(redisClient, "redis", loggerClient)
		return nil, fmt.Errorf("failed to open backend: %w", err)
	}
	loggerClient.Info("backend ready", logger.String("driver", cfg.BackendDriver))

	bus, err := OpenBus(ctx, cfg, redisClient, loggerClient)
	if err != nil {
		utils.CloseLogged(svc, "backend", loggerClient)
		utils.CloseLogged(redisClient, "redis", loggerClient)
		return nil, fmt.Errorf("failed to open broadcast bus: %w", err)
	}
	loggerClient.Info("broadcast ready",
		logger.String("driver", cfg.BroadcastDriver),
		logger.String("channel", cfg.BroadcastChannel))

	sessions := NewSessions(cfg, redisClient, loggerClient)
	closing := make(chan struct{})

	// Dependencies passed to routes.
	d := deps.Deps{
		Logger:         loggerClient,
		StartTime:      time.Now(),
		Version:        version.Version,
		Commit:         version.Commit,
		BuildDate:      version.BuildDate,
		GoVersion:      version.GoVersion,
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedCIDRS:   cfg.AllowedCIDRS,
		TrustProxy:     cfg.TrustProxy,
		RedisClient:    redisClient,
		Backend:        svc,
		Sessions:       sessions,
		Views: session.Deps{
			Store:           svc,
			Bus:             bus,
			Sessions:        sessions,
			MutationTimeout: cfg.MutationTimeout,
			Log:             loggerClient,
		},
		OAuthProviders:  cfg.OAuthProviders,
		SignedOutURL:    cfg.SignedOutURL,
		SignedInURL:     cfg.SignedInURL,
		RateLimitBurst:  cfg.RateLimitBurst,
		RateLimitRefill: cfg.RateLimitRefill,
		Closing:         closing,
	}

	return &App{
		cfg:         cfg,
		logger:      loggerClient,
		server:      httpserver.New(cfg.ListenPort, d),
		redisClient: redisClient,
		backend:     svc,
		bus:         bus,
		closing:     closing,
	}, nil
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting marksync %s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Infof("marksync %s (commit=%s, built=%s, go=%s)",
		version.Version, version.Commit, version.BuildDate, version.GoVersion)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case runErr = <-errCh:
	}

	// ends every open tab
	close(a.closing)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to stop server: %w", err)
	}

	utils.CloseLogged(a.bus, "broadcast", a.logger)
	utils.CloseLogged(a.backend, "backend", a.logger)
	utils.CloseLogged(a.redisClient, "redis", a.logger)

	if runErr != nil {
		return runErr
	}
	a.logger.Info("✅ marksync stopped cleanly")
	return nil
}
