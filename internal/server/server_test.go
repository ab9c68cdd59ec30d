package server

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/atlas/internal/basemap"
	"github.com/conneroisu/atlas/internal/config"
	atlaserrors "github.com/conneroisu/atlas/internal/errors"
	"github.com/conneroisu/atlas/internal/logging"
)

const statesGeoJSON = `{
  "type": "FeatureCollection",
  "atlas": {"title": "States", "tooltip": {"fields": ["NAME"]}, "popup": {"fields": ["POP"]}},
  "features": [{
    "type": "Feature",
    "properties": {"NAME": "Kansas", "POP": 2937880},
    "geometry": {"type": "Polygon", "coordinates": [[[-102, 37], [-94.6, 37], [-94.6, 40], [-102, 40], [-102, 37]]]}
  }]
}`

// syncBuffer is a bytes.Buffer safe for the concurrent writes of a server.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// newTestConfig lays out a data directory under t.TempDir(). The basemap
// file does not exist, so the built-in catalog is used.
func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dataDir := t.TempDir()
	boundaryDir := filepath.Join(dataDir, "boundary")
	require.NoError(t, os.MkdirAll(boundaryDir, 0o755))

	return &config.Config{
		Site: config.SiteConfig{StaticURLPath: "/static", StaticFolder: "static", TemplateFolder: "templates"},
		Server: config.ServerConfig{
			Host:              "127.0.0.1",
			Port:              0,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   5 * time.Second,
		},
		Logging:     config.LoggingConfig{Level: "debug", Format: "text"},
		Development: config.DevelopmentConfig{HotReload: false, WatchDebounce: 50 * time.Millisecond},
		RateLimit:   config.RateLimitConfig{RequestsPerMinute: 600},
		Paths: config.PathsConfig{
			DataDir:     dataDir,
			ConfigDir:   filepath.Join(dataDir, "config"),
			BasemapFile: filepath.Join(dataDir, "config", "basemaps.json"),
			BoundaryDir: boundaryDir,
			TemplateDir: filepath.Join(dataDir, "templates"),
			StaticDir:   filepath.Join(dataDir, "static"),
		},
	}
}

func newTestLogger(w *syncBuffer) logging.Logger {
	return logging.NewLogger(&logging.LoggerConfig{Level: logging.LevelDebug, Format: "text", Output: w})
}

func newTestServer(t *testing.T, cfg *config.Config, opts ...Option) (*Server, *syncBuffer) {
	t.Helper()
	logs := &syncBuffer{}
	opts = append([]Option{WithLogger(newTestLogger(logs))}, opts...)
	s, err := New(cfg, opts...)
	require.NoError(t, err)
	return s, logs
}

func get(t *testing.T, h http.Handler, target string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// startServer runs Start in the background and waits until it listens.
func startServer(t *testing.T, s *Server) <-chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(context.Background()) }()

	select {
	case <-s.Ready():
	case err := <-errCh:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}
	return errCh
}

func TestNewEnsuresTemplates(t *testing.T) {
	cfg := newTestConfig(t)
	_, logs := newTestServer(t, cfg)

	assert.FileExists(t, filepath.Join(cfg.Paths.TemplateDir, "index.html"))
	assert.FileExists(t, filepath.Join(cfg.Paths.StaticDir, "css", "style.css"))
	assert.Contains(t, logs.String(), "Routes registered; app ready")
	assert.Contains(t, logs.String(), "basemap catalog not found")
}

func TestNewTemplateFailureIsNotFatal(t *testing.T) {
	cfg := newTestConfig(t)
	// A file where the template directory should be.
	require.NoError(t, os.WriteFile(cfg.Paths.TemplateDir, []byte("x"), 0o644))

	s, logs := newTestServer(t, cfg)

	assert.Contains(t, logs.String(), "Template creation failed")
	rec := get(t, s.Handler(), "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), PageTitle)
}

func TestStartAndShutdown(t *testing.T) {
	cfg := newTestConfig(t)
	s, _ := newTestServer(t, cfg)
	errCh := startServer(t, s)

	assert.NotZero(t, s.Port())
	resp, err := http.Get(s.URL() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	require.NoError(t, <-errCh)
}

func TestStartStopsWhenContextCancelled(t *testing.T) {
	s, _ := newTestServer(t, newTestConfig(t))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(ctx) }()
	<-s.Ready()

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestStartPortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := newTestConfig(t)
	cfg.Server.Port = ln.Addr().(*net.TCPAddr).Port
	s, _ := newTestServer(t, cfg)

	err = s.Start(context.Background())

	require.Error(t, err)
	var enhanced *atlaserrors.EnhancedError
	require.True(t, errors.As(err, &enhanced))
	assert.NotEmpty(t, enhanced.Suggestions)
}

func TestShutdownBeforeStart(t *testing.T) {
	s, _ := newTestServer(t, newTestConfig(t))

	require.NoError(t, s.Shutdown(context.Background()))
	// Start after Shutdown returns immediately.
	assert.NoError(t, s.Start(context.Background()))
}

func TestConcurrentShutdown(t *testing.T) {
	s, _ := newTestServer(t, newTestConfig(t))
	errCh := startServer(t, s)

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			errs <- s.Shutdown(ctx)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	require.NoError(t, <-errCh)
}

func TestNewWarnsAboutUnsafeTileURL(t *testing.T) {
	catalog, err := basemap.New([]string{"Evil"},
		map[string]string{"Evil": "javascript:alert(1)"},
		map[string]string{"Evil": "x"},
		basemap.View{Basemap: "Evil"}, nil)
	require.NoError(t, err)

	_, logs := newTestServer(t, newTestConfig(t), WithCatalog(catalog))

	assert.Contains(t, logs.String(), "Suspicious basemap tile URL")
}
