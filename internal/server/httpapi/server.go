package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/dmitrijs2005/boardcontext/internal/logging"
	"github.com/dmitrijs2005/boardcontext/internal/server/metrics"
	"github.com/dmitrijs2005/boardcontext/internal/server/monday"
	"github.com/dmitrijs2005/boardcontext/internal/server/ratelimit"
	"github.com/dmitrijs2005/boardcontext/internal/server/services"
)

const shutdownTimeout = 15 * time.Second

// SessionVerifier authenticates embedded-app requests.
type SessionVerifier interface {
	Verify(token string) (*monday.Session, error)
}

// WebhookVerifier authenticates platform webhooks.
type WebhookVerifier interface {
	Verify(authorization string) error
}

// OAuthFlow issues and checks the state of the install flow.
type OAuthFlow interface {
	AuthCodeURL() (string, error)
	VerifyState(state string) error
}

// Services bundles the business logic the handlers call into.
type Services struct {
	Resolver *services.Resolver
	Access   *services.AccessAuthority
	Usage    *services.Accountant
	Files    *services.FileService
	Notes    *services.NoteService
	Boards   *services.BoardService
	Billing  *services.BillingService
	Tenants  *services.TenantService
}

// Options configure a Server.
type Options struct {
	Address     string
	Sessions    SessionVerifier
	Webhooks    WebhookVerifier
	OAuth       OAuthFlow
	Limiter     ratelimit.Limiter
	RateLimit   int
	CORSOrigins []string
}

type Server struct {
	Services
	address     string
	sessions    SessionVerifier
	webhooks    WebhookVerifier
	oauth       OAuthFlow
	limiter     ratelimit.Limiter
	rateLimit   int
	corsOrigins []string
	logger      logging.Logger
	now         func() time.Time
}

func NewServer(o Options, svc Services, l logging.Logger) *Server {
	return &Server{
		Services:    svc,
		address:     o.Address,
		sessions:    o.Sessions,
		webhooks:    o.Webhooks,
		oauth:       o.OAuth,
		limiter:     o.Limiter,
		rateLimit:   o.RateLimit,
		corsOrigins: o.CORSOrigins,
		logger:      l.With("module", "http_server"),
		now:         time.Now,
	}
}

// Handler builds the router with every route and middleware attached.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(withRequestID)
	r.Use(s.withRequestLog)
	r.Use(s.withRecover)
	if len(s.corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.corsOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", requestIDHeader},
			ExposedHeaders:   []string{requestIDHeader, "Retry-After"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		Write(rw, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.withRateLimit)

		r.Get("/oauth/install", s.handleInstall)
		r.Get("/oauth/callback", s.handleOAuthCallback)
		r.Post("/webhooks/billing", s.handleBillingWebhook)

		r.Route("/api/v1", func(r chi.Router) {
			r.Use(s.authenticate)

			r.Get("/usage", s.handleUsage)
			r.Post("/billing/checkout", s.handleCheckout)
			r.Put("/settings/board-admin-delete", s.handleBoardAdminDelete)
			r.Get("/boards", s.handleListBoards)

			r.Route("/boards/{boardID}", func(r chi.Router) {
				r.Delete("/", s.handleDeleteBoard)

				r.Group(func(r chi.Router) {
					r.Use(s.withBoard)

					r.Get("/", s.handleBoardContext)

					r.Get("/note", s.handleGetNote)
					r.Put("/note", s.handleSaveNote)
					r.Get("/note/snapshots", s.handleListSnapshots)
					r.Post("/note/snapshots/{snapshotID}/restore", s.handleRestoreSnapshot)

					r.Get("/files", s.handleListFiles)
					r.Post("/files/uploads", s.handleInitUpload)
					r.Post("/files", s.handleConfirmUpload)
					r.Get("/files/{fileID}/download", s.handleDownload)
					r.Delete("/files/{fileID}", s.handleDeleteFile)

					r.Get("/recovery", s.handleListRecovery)
					r.Post("/recovery/{recordID}/restore", s.handleRestoreFile)

					r.Get("/viewers", s.handleListViewers)
					r.Put("/viewers/{userID}", s.handleSetRole)
				})
			})
		})
	})

	r.NotFound(func(rw http.ResponseWriter, _ *http.Request) {
		Write(rw, http.StatusNotFound, Response{Error: "not_found"})
	})
	r.MethodNotAllowed(func(rw http.ResponseWriter, _ *http.Request) {
		Write(rw, http.StatusMethodNotAllowed, Response{Error: "method_not_allowed"})
	})
	return r
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "http shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
