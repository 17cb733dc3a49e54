// Package web serves the resume page, the reveal tracking endpoints the page
// script talks to, document export and the admin dashboard.
package web

import (
	"context"
	"crypto/rand"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sirmark/resume/internal/analytics"
	"github.com/sirmark/resume/internal/config"
	"github.com/sirmark/resume/internal/export"
	"github.com/sirmark/resume/internal/logger"
	"github.com/sirmark/resume/internal/metrics"
	"github.com/sirmark/resume/internal/resume"
	"github.com/sirmark/resume/internal/views"
)

const (
	readTimeout     = 15 * time.Second
	writeTimeout    = 60 * time.Second
	idleTimeout     = 60 * time.Second
	shutdownTimeout = 10 * time.Second
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static
var staticFS embed.FS

// Store is the analytics storage the handlers use.
type Store interface {
	RecordAction(ctx context.Context, viewID, action, outcome string) error
	Stats(ctx context.Context, regions []string) (*analytics.Stats, error)
	Ping(ctx context.Context) error
}

// Deps are the collaborators a Server needs. Store, Exporter and Metrics may
// be nil.
type Deps struct {
	Config   *config.Config
	Resume   *resume.Resume
	Views    *views.Registry
	Store    Store
	Hasher   *analytics.Hasher
	Exporter *export.Exporter
	Metrics  *metrics.Metrics
	Logger   logger.Logger
}

// Server is the resume HTTP server.
type Server struct {
	cfg      *config.Config
	resume   *resume.Resume
	views    *views.Registry
	store    Store
	hasher   *analytics.Hasher
	exporter *export.Exporter
	metrics  *metrics.Metrics
	log      logger.Logger

	adminToken string
	router     *gin.Engine
	httpServer *http.Server
}

// New builds the server and its routes.
func New(deps Deps) (*Server, error) {
	if deps.Config == nil || deps.Resume == nil || deps.Views == nil || deps.Hasher == nil {
		return nil, errors.New("web: config, resume, views and hasher are required")
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}

	token, err := generateToken()
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:        deps.Config,
		resume:     deps.Resume,
		views:      deps.Views,
		store:      deps.Store,
		hasher:     deps.Hasher,
		exporter:   deps.Exporter,
		metrics:    deps.Metrics,
		log:        deps.Logger,
		adminToken: token,
	}
	if err := s.setupRouter(); err != nil {
		return nil, err
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Service.Port),
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	return s, nil
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRouter() error {
	if s.cfg.Service.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	tmpl, err := template.New("").Funcs(templateFuncs()).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return fmt.Errorf("parse templates: %w", err)
	}
	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		return fmt.Errorf("static assets: %w", err)
	}

	r := gin.New()
	r.Use(RecoveryMiddleware(s.log), LoggerMiddleware(s.log))
	r.SetHTMLTemplate(tmpl)
	r.StaticFS("/static", http.FS(static))

	s.router = r
	s.setupPageRoutes(r)
	s.setupViewRoutes(r)
	s.setupActionRoutes(r)
	s.setupAdminRoutes(r)

	r.GET("/healthz", s.health)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	return nil
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Starting HTTP server", logger.String("address", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("Shutting down HTTP server", logger.Duration("timeout", shutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.log.Info("HTTP server stopped gracefully")
	return nil
}

func (s *Server) health(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "healthy", "views": s.views.Len()}
	if s.store != nil {
		if err := s.store.Ping(c.Request.Context()); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "unhealthy"
			body["error"] = err.Error()
		}
	}
	body["export"] = s.exporter.Enabled()
	c.JSON(status, body)
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate admin token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// baseURL is the canonical public address, or the one the request came in
// on, without a trailing slash.
func (s *Server) baseURL(r *http.Request) string {
	if u := strings.TrimRight(s.cfg.Service.PublicURL, "/"); u != "" {
		return u
	}
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
