// Package server wires the contactbook server together: configuration,
// storage, identity resolution and the HTTP and gRPC listeners, and handles
// graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/contactbook/internal/logging"
	"github.com/dmitrijs2005/contactbook/internal/server/auth"
	"github.com/dmitrijs2005/contactbook/internal/server/cache"
	"github.com/dmitrijs2005/contactbook/internal/server/config"
	"github.com/dmitrijs2005/contactbook/internal/server/identity"
	"github.com/dmitrijs2005/contactbook/internal/server/mailer"
	"github.com/dmitrijs2005/contactbook/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/contactbook/internal/server/rest"
	"github.com/dmitrijs2005/contactbook/internal/server/services"
	"github.com/redis/go-redis/v9"

	gs "github.com/dmitrijs2005/contactbook/internal/server/grpc"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	memoryCacheSize     = 10_000
	healthProbeInterval = 15 * time.Second
	rateLimitPrefix     = "rate_limit:users_me"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	redis    *redis.Client
	resolver *identity.Resolver
	users    *services.UserService
	contacts *services.ContactService
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.New(c.LogBackend, c.LogLevel, os.Stdout)

	verifier, err := auth.NewVerifier(c.SecretKey, c.Algorithm)
	if err != nil {
		return nil, fmt.Errorf("jwt config error: %w", err)
	}

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db migration error: %w", err)
	}

	rdb := cache.NewRedisClient(c.RedisAddr, c.RedisPassword, c.RedisDB, c.CacheOpTimeout)

	var identities cache.IdentityCache
	switch strings.ToLower(c.CacheBackend) {
	case "memory":
		identities = cache.NewMemoryCache(memoryCacheSize, c.CacheExpire)
	default:
		identities = cache.NewRedisCache(rdb, c.CacheOpTimeout, logger)
	}

	resolver := identity.NewResolver(verifier, identities, rm.Users(db), c.CacheExpire, logger)

	mail := mailer.New(mailer.Config{
		Host:     c.SMTPHost,
		Port:     c.SMTPPort,
		Username: c.SMTPUsername,
		Password: c.SMTPPassword,
		From:     c.SMTPFrom,
		BaseURL:  c.PublicBaseURL,
	}, logger)

	us := services.NewUserService(db, rm, c, verifier, resolver, mail, services.NewAvatarStore(c), logger)
	cs := services.NewContactService(db, rm)

	return &App{
		config:   c,
		logger:   logger,
		db:       db,
		redis:    rdb,
		resolver: resolver,
		users:    us,
		contacts: cs,
	}, nil
}

// Users exposes the identity service for administrative tooling.
func (app *App) Users() *services.UserService {
	return app.users
}

func (app *App) Close() error {
	rerr := app.redis.Close()
	if err := app.db.Close(); err != nil {
		return err
	}
	return rerr
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	router := rest.NewRouter(rest.RouterOptions{
		Users:          app.users,
		Contacts:       app.contacts,
		Resolver:       app.resolver,
		RateLimiter:    rest.NewRateLimiter(app.redis, app.config.RateLimitMe, time.Minute, rateLimitPrefix, app.config.CacheOpTimeout, app.logger),
		Logger:         app.logger,
		CORSOrigins:    app.config.CORSOrigins,
		RequestTimeout: app.config.StoreOpTimeout,
	})

	if err := rest.NewHTTPServer(app.config.EndpointAddrHTTP, router, app.logger).Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewHealthServer(app.config.EndpointAddrGRPC, app.logger, healthProbeInterval, app.config.StoreOpTimeout,
		gs.Probe{Name: "postgres", Check: app.db.PingContext},
		gs.Probe{Name: "redis", Check: func(ctx context.Context) error { return app.redis.Ping(ctx).Err() }},
	)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.Close(); err != nil {
		app.logger.Error(ctx, "close error", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
