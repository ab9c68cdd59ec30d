// Package server serves the atlas map page, its JSON API and live reload.
package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/conneroisu/atlas/internal/basemap"
	"github.com/conneroisu/atlas/internal/boundary"
	"github.com/conneroisu/atlas/internal/config"
	atlaserrors "github.com/conneroisu/atlas/internal/errors"
	"github.com/conneroisu/atlas/internal/logging"
	"github.com/conneroisu/atlas/internal/mapview"
	"github.com/conneroisu/atlas/internal/metrics"
	"github.com/conneroisu/atlas/internal/templates"
	"github.com/conneroisu/atlas/internal/validation"
	"github.com/conneroisu/atlas/internal/watcher"
)

// Server serves the map with live reload capability.
type Server struct {
	config     *config.Config
	logger     logging.Logger
	catalog    *basemap.Catalog
	boundaries *boundary.Manager
	maps       *mapview.Service
	templates  *templates.Manager
	tmpl       *template.Template
	hub        *Hub
	watcher    *watcher.FileWatcher
	watch      bool
	router     chi.Router

	httpServer  *http.Server
	listener    net.Listener
	serverMutex sync.RWMutex // Protects httpServer, listener and isShutdown
	isShutdown  bool
	hubCancel   context.CancelFunc
	ready       chan struct{}
	readyOnce   sync.Once
	stopped     chan struct{}
	shutdown    chan struct{} // Closed once Shutdown has finished

	shutdownOnce sync.Once
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger logging.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithCatalog uses catalog instead of loading the configured basemap file.
func WithCatalog(catalog *basemap.Catalog) Option {
	return func(s *Server) { s.catalog = catalog }
}

// WithBoundaryManager uses m instead of a manager for the configured
// boundary directory.
func WithBoundaryManager(m *boundary.Manager) Option {
	return func(s *Server) { s.boundaries = m }
}

// WithWatch overrides development.hot_reload.
func WithWatch(enabled bool) Option {
	return func(s *Server) { s.watch = enabled }
}

// New prepares a server: it loads the basemap catalog and the boundary
// overlays, ensures the page templates and builds the router. Template
// problems are logged and a built-in page is used instead.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		config:   cfg,
		logger:   logging.Discard(),
		watch:    cfg.Development.HotReload,
		ready:    make(chan struct{}),
		stopped:  make(chan struct{}),
		shutdown: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("server")
	ctx := context.Background()

	if s.catalog == nil {
		catalog, err := basemap.LoadOrDefault(cfg.Paths.BasemapFile, s.logger)
		if err != nil {
			return nil, err
		}
		s.catalog = catalog
	}
	for _, name := range s.catalog.Names() {
		if err := validation.ValidateTileURL(s.catalog.URL(name)); err != nil {
			s.logger.Warn(ctx, err, "Suspicious basemap tile URL", "basemap", name)
		}
	}

	if s.boundaries == nil {
		s.boundaries = boundary.NewManager(cfg.Paths.BoundaryDir,
			boundary.WithLogger(s.logger),
			boundary.WithExcludePatterns(cfg.Boundaries.ExcludePatterns))
	}
	if _, err := s.reloadBoundaries(ctx); err != nil {
		return nil, fmt.Errorf("load boundaries: %w", err)
	}

	s.maps = mapview.NewService(s.catalog, s.boundaries, s.logger)
	s.templates = templates.NewManager(cfg.Paths.DataDir, cfg.Paths.TemplateDir, cfg.Paths.StaticDir, s.logger)
	s.tmpl = s.loadTemplate(ctx)
	s.hub = NewHub(s.logger)
	s.router = s.routes()

	s.logger.Info(ctx, "Routes registered; app ready")
	return s, nil
}

func (s *Server) loadTemplate(ctx context.Context) *template.Template {
	if _, err := s.templates.EnsureTemplates(); err != nil {
		s.logger.Error(ctx, err, "Template creation failed")
	} else {
		s.logger.Info(ctx, "Templates ensured", "path", s.templates.TemplateDir)
	}

	tmpl, err := s.templates.Load()
	if err != nil {
		s.logger.Error(ctx, err, "Template load failed, using built-in page")
		return templates.Default()
	}
	return tmpl
}

// reloadBoundaries reloads the overlays and publishes load metrics.
func (s *Server) reloadBoundaries(ctx context.Context) (*boundary.Set, error) {
	start := time.Now()
	set, err := s.boundaries.Reload(ctx)
	if err != nil {
		return nil, err
	}
	stats := make([]metrics.LayerStat, 0, len(set.Layers))
	for _, l := range set.Layers {
		stats = append(stats, metrics.LayerStat{Name: l.Name, Features: l.FeatureCount()})
	}
	metrics.RecordBoundaryLoad(stats, len(set.Problems), time.Since(start).Seconds())
	return set, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(Recoverer(s.logger))
	r.Use(RequestContext)
	r.Use(metrics.Middleware())
	r.Use(AccessLog(s.logger))
	r.Use(SecurityHeaders)
	if s.config.RateLimit.Enabled {
		r.Use(RateLimit(s.config.RateLimit.RequestsPerMinute))
	}

	r.Get("/", s.handleIndex)
	r.Get("/api/basemaps", s.handleBasemaps)
	r.Get("/api/boundaries", s.handleBoundaries)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", s.handleWebSocket)

	staticURL := s.config.Site.StaticURLPath
	fileServer := http.StripPrefix(staticURL, http.FileServer(http.Dir(s.templates.StaticDir)))
	r.Get(staticURL+"/*", fileServer.ServeHTTP)

	return r
}

// Handler returns the HTTP handler with every route and middleware.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the live reload hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Maps returns the map service.
func (s *Server) Maps() *mapview.Service {
	return s.maps
}

// Ready is closed once the server is listening.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the address the server listens on, or the configured address
// before Start.
func (s *Server) Addr() string {
	s.serverMutex.RLock()
	defer s.serverMutex.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Addr()
}

// Port returns the listening port, which differs from the configured one
// when port 0 was requested.
func (s *Server) Port() int {
	_, portStr, err := net.SplitHostPort(s.Addr())
	if err != nil {
		return s.config.Server.Port
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return s.config.Server.Port
	}
	return port
}

// URL returns the base URL of the server.
func (s *Server) URL() string {
	scheme := "http"
	if s.config.TLSEnabled() {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, s.Addr())
}

// Start serves until Shutdown is called or ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	hubCtx, cancel := context.WithCancel(context.Background())

	s.serverMutex.Lock()
	if s.isShutdown {
		s.serverMutex.Unlock()
		cancel()
		return nil
	}
	ln, err := net.Listen("tcp", s.config.Addr())
	if err != nil {
		s.serverMutex.Unlock()
		cancel()
		return atlaserrors.NewEnhancedError("Failed to start server", err,
			atlaserrors.ServerStartError(err, &atlaserrors.SuggestionContext{
				ConfigPath:  s.config.Paths.ConfigFile,
				BasemapPath: s.config.Paths.BasemapFile,
				BoundaryDir: s.config.Paths.BoundaryDir,
				Port:        s.config.Server.Port,
			}))
	}
	s.listener = ln
	s.hubCancel = cancel
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.config.Server.ReadHeaderTimeout,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	go s.hub.Run(hubCtx)
	if s.watch {
		s.setupFileWatcher(hubCtx)
	}

	go func() {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
			defer cancel()
			if err := s.Shutdown(shutdownCtx); err != nil {
				s.logger.Warn(shutdownCtx, err, "Shutdown after cancellation failed")
			}
		case <-s.stopped:
		}
	}()

	s.logger.Info(ctx, "Server listening", "url", s.URL(), "tls", s.config.TLSEnabled())
	s.readyOnce.Do(func() { close(s.ready) })

	if s.config.TLSEnabled() {
		err = server.ServeTLS(ln, s.config.Server.CertFile, s.config.Server.KeyFile)
	} else {
		err = server.Serve(ln)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	// Serve returns as soon as the listener closes; live reload clients are
	// closed later in Shutdown.
	<-s.shutdown
	return nil
}

func (s *Server) setupFileWatcher(ctx context.Context) {
	dir := s.boundaries.Dir()
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		s.logger.Warn(ctx, err, "Boundary directory not watched", "dir", dir)
		return
	}

	fw, err := watcher.NewFileWatcher(s.config.Development.WatchDebounce, s.logger)
	if err != nil {
		s.logger.Warn(ctx, err, "Failed to create file watcher")
		return
	}
	fw.AddFilter(watcher.NoHiddenFilter)
	fw.AddFilter(boundary.IsRelevant)
	fw.AddHandler(s.handleFileChange)

	if err := fw.AddPath(dir); err != nil {
		s.logger.Warn(ctx, err, "Failed to watch path", "dir", dir)
		_ = fw.Stop()
		return
	}
	if err := fw.Start(ctx); err != nil {
		s.logger.Warn(ctx, err, "Failed to start file watcher")
		_ = fw.Stop()
		return
	}

	s.serverMutex.Lock()
	s.watcher = fw
	s.serverMutex.Unlock()
	s.logger.Info(ctx, "Watching boundary directory", "dir", dir, "debounce", s.config.Development.WatchDebounce.String())
}

// handleFileChange reloads every overlay and tells browsers to refresh.
func (s *Server) handleFileChange(ctx context.Context, events []watcher.ChangeEvent) error {
	for _, event := range events {
		s.logger.Info(ctx, "Boundary file changed", "file", event.Path, "change", event.Type.String())
	}

	set, err := s.reloadBoundaries(ctx)
	metrics.IncReload(err)
	if err != nil {
		return fmt.Errorf("reload boundaries: %w", err)
	}

	s.logger.Info(ctx, "Boundaries reloaded", "layers", len(set.Layers), "skipped", len(set.Problems))
	s.hub.Broadcast(UpdateMessage{Type: MessageFullReload, Timestamp: time.Now()})
	return nil
}

// Shutdown gracefully shuts down the server and cleans up resources. Only
// the first call does any work.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		defer close(s.shutdown)
		s.logger.Info(ctx, "Shutting down server")

		s.serverMutex.Lock()
		s.isShutdown = true
		server := s.httpServer
		fw := s.watcher
		hubCancel := s.hubCancel
		s.serverMutex.Unlock()
		close(s.stopped)

		if fw != nil {
			if err := fw.Stop(); err != nil {
				s.logger.Warn(ctx, err, "Failed to stop file watcher")
			}
			fw.Wait()
		}

		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}

		// Closing the hub closes every websocket; Shutdown does not wait
		// for hijacked connections.
		if hubCancel != nil {
			hubCancel()
			<-s.hub.done
			if err := s.hub.Wait(ctx); err != nil && shutdownErr == nil {
				shutdownErr = err
			}
		}
	})

	return shutdownErr
}
