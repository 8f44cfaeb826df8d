// Package server wires the Context backend together: storage backends,
// platform clients, services, the HTTP API and the periodic sweeps, and
// runs them until the process is signalled to stop.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/boardcontext/internal/cryptox"
	"github.com/dmitrijs2005/boardcontext/internal/logging"
	"github.com/dmitrijs2005/boardcontext/internal/server/config"
	"github.com/dmitrijs2005/boardcontext/internal/server/httpapi"
	"github.com/dmitrijs2005/boardcontext/internal/server/monday"
	"github.com/dmitrijs2005/boardcontext/internal/server/ratelimit"
	"github.com/dmitrijs2005/boardcontext/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/boardcontext/internal/server/scheduler"
	"github.com/dmitrijs2005/boardcontext/internal/server/services"
	"github.com/dmitrijs2005/boardcontext/internal/server/storage"
)

// MemoryDSN selects the in-process repository manager.
const MemoryDSN = "memory"

const platformTimeout = 10 * time.Second

type App struct {
	config    *config.Config
	logger    logging.Logger
	server    *httpapi.Server
	scheduler *scheduler.Scheduler
	closers   []io.Closer
}

func NewApp(c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)
	ctx := context.Background()
	app := &App{config: c, logger: logger}

	rm, err := app.initRepositories(ctx)
	if err != nil {
		return nil, err
	}

	sealer, err := cryptox.NewSealer(c.EncryptionSecret)
	if err != nil {
		return nil, fmt.Errorf("sealer init error: %w", err)
	}

	store, err := storage.NewS3Store(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	platform := monday.NewClient(c.PlatformAPIURL, platformTimeout)
	oauth := monday.NewOAuthExchanger(monday.OAuthConfig{
		ClientID:     c.OAuthClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.OAuthRedirectURL,
		AuthURL:      c.OAuthAuthURL,
		TokenURL:     c.OAuthTokenURL,
	})

	access := services.NewAccessAuthority(rm, platform, logger)
	resolver := services.NewResolver(rm, access, sealer, logger)
	accountant := services.NewAccountant(rm)
	svc := httpapi.Services{
		Resolver: resolver,
		Access:   access,
		Usage:    accountant,
		Files:    services.NewFileService(rm, store, access, accountant, logger),
		Notes:    services.NewNoteService(rm, access, logger),
		Boards:   services.NewBoardService(rm, access, accountant, store, logger),
		Billing:  services.NewBillingService(rm, resolver, access, logger),
		Tenants:  services.NewTenantService(rm, oauth, platform, sealer, logger),
	}

	app.server = httpapi.NewServer(httpapi.Options{
		Address:     c.EndpointAddrHTTP,
		Sessions:    monday.NewSessionVerifier(c.ClientSecret),
		Webhooks:    monday.NewWebhookVerifier(c.SigningSecret),
		OAuth:       oauth,
		Limiter:     app.initLimiter(),
		RateLimit:   c.RateLimitPerMinute,
		CORSOrigins: splitList(c.CORSAllowedOrigins),
	}, svc, logger)

	if c.SchedulerEnabled {
		s := scheduler.New(logger)
		jobs := []scheduler.Job{
			{Name: "note_snapshots", Spec: c.SnapshotSchedule, Run: func(ctx context.Context, now time.Time) error {
				_, err := svc.Notes.SnapshotNotes(ctx, now)
				return err
			}},
			{Name: "recovery_purge", Spec: c.RecoveryPurgeSchedule, Run: func(ctx context.Context, now time.Time) error {
				_, err := svc.Files.PurgeExpiredRecovery(ctx, now)
				return err
			}},
		}
		for _, j := range jobs {
			if err := s.Add(j); err != nil {
				return nil, err
			}
		}
		app.scheduler = s
	}

	return app, nil
}

func (app *App) initRepositories(ctx context.Context) (repomanager.RepositoryManager, error) {
	if app.config.DatabaseDSN == MemoryDSN {
		app.logger.Warn(ctx, "using in-memory storage, state is lost on restart")
		return repomanager.NewInMemoryRepositoryManager(), nil
	}

	db, err := sql.Open("pgx", app.config.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	app.closers = append(app.closers, db)

	rm, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := rm.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("db migrations error: %w", err)
	}
	return rm, nil
}

func (app *App) initLimiter() ratelimit.Limiter {
	if app.config.RedisAddr == "" {
		return ratelimit.NewInMemory(time.Minute)
	}
	client := redis.NewClient(&redis.Options{Addr: app.config.RedisAddr})
	app.closers = append(app.closers, client)
	return ratelimit.NewRedis(client, time.Minute, app.logger)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
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
	if err := app.server.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startScheduler(ctx context.Context) {
	app.scheduler.Start()
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	app.scheduler.Stop(stopCtx)
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	if app.scheduler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.startScheduler(ctx)
		}()
	}

	wg.Wait()

	for _, c := range app.closers {
		if err := c.Close(); err != nil {
			app.logger.Warn(context.Background(), "close failed", "error", err)
		}
	}
	app.logger.Info(context.Background(), "App stopped")
}
