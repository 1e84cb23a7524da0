// Package rest exposes the sync server's services over HTTP/JSON.
package rest

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/dmitrijs2005/journalkeeper/internal/api"
	"github.com/dmitrijs2005/journalkeeper/internal/cryptox"
	"github.com/dmitrijs2005/journalkeeper/internal/logging"
	"github.com/dmitrijs2005/journalkeeper/internal/server/models"
	"github.com/dmitrijs2005/journalkeeper/internal/server/services"
)

type UserService interface {
	Register(ctx context.Context, req api.RegisterRequest) (*models.User, error)
	GetSalt(ctx context.Context, userName string) ([]byte, cryptox.KDFParams, error)
	Login(ctx context.Context, userName string, verifier []byte) (*services.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	GetKeys(ctx context.Context, userID string) (api.KeyMaterial, error)
	PutKeys(ctx context.Context, userID string, req api.UpdateKeysRequest) error
	Recover(ctx context.Context, userName, code string) (*services.TokenPair, error)
}

type EntryService interface {
	Create(ctx context.Context, userID string, in api.Entry) (*models.Entry, bool, error)
	Update(ctx context.Context, userID, id string, in api.Entry) (*models.Entry, error)
	Delete(ctx context.Context, userID, id string) error
	Restore(ctx context.Context, userID, id string) (*models.Entry, error)
	Sync(ctx context.Context, userID string, since int64, limit int, pushed []api.Entry) (*services.SyncPage, error)
}

type MediaService interface {
	Register(ctx context.Context, userID string, req api.MediaRegisterRequest) (*services.Registration, error)
	Complete(ctx context.Context, userID, id string) error
	DownloadURL(ctx context.Context, userID, id string) (string, error)
}

type HTTPServer struct {
	address         string
	users           UserService
	entries         EntryService
	media           MediaService
	logger          logging.Logger
	jwtSecret       []byte
	authLimiter     *multiLimiter
	shutdownTimeout time.Duration
}

// Options tune the server. Zero values fall back to the defaults below.
type Options struct {
	// AuthPerMinute is the per-client budget for /auth requests.
	AuthPerMinute   int
	ShutdownTimeout time.Duration
}

func NewHTTPServer(a string, l logging.Logger, us UserService, es EntryService, ms MediaService, secretKey string, opts Options) *HTTPServer {
	perMinute := opts.AuthPerMinute
	if perMinute <= 0 {
		perMinute = 5
	}
	shutdown := opts.ShutdownTimeout
	if shutdown <= 0 {
		shutdown = 10 * time.Second
	}
	return &HTTPServer{
		address:         a,
		logger:          l.With("module", "http_server"),
		users:           us,
		entries:         es,
		media:           ms,
		jwtSecret:       []byte(secretKey),
		authLimiter:     newMultiLimiter(rate.Limit(float64(perMinute)/60), perMinute, 10*time.Minute),
		shutdownTimeout: shutdown,
	}
}

// Handler builds the router.
func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(metricsMiddleware)
	r.Use(s.recoverer)

	r.Handle("/metrics", promhttp.Handler())

	r.Route(api.BasePath, func(r chi.Router) {
		r.Get(api.PathPing, s.ping)

		r.Group(func(r chi.Router) {
			r.Use(s.rateLimit)
			r.Post(api.PathRegister, s.register)
			r.Post(api.PathSalt, s.salt)
			r.Post(api.PathLogin, s.login)
			r.Post(api.PathRefresh, s.refresh)
			r.Post(api.PathRecover, s.recoverAccount)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.accessTokenMiddleware)
			r.Get(api.PathKeys, s.getKeys)
			r.Put(api.PathKeys, s.putKeys)

			r.Post(api.PathEntries, s.createEntry)
			r.Put(api.PathEntries+"/{id}", s.updateEntry)
			r.Delete(api.PathEntries+"/{id}", s.deleteEntry)
			r.Post(api.PathEntries+"/{id}/restore", s.restoreEntry)
			r.Post(api.PathSync, s.sync)

			r.Post(api.PathMedia, s.registerMedia)
			r.Post(api.PathMedia+"/{id}/complete", s.completeMedia)
			r.Get(api.PathMedia+"/{id}/download-url", s.mediaDownloadURL)
		})
	})

	return r
}

func (s *HTTPServer) Run(ctx context.Context) error {
	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "graceful shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
