package config

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	atlaserrors "github.com/conneroisu/atlas/internal/errors"
	"github.com/conneroisu/atlas/internal/logging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestLogger(w io.Writer) logging.Logger {
	return logging.NewLogger(&logging.LoggerConfig{Level: logging.LevelInfo, Format: "text", Output: w})
}

// newDataDir creates <tmp>/config/server_config.json with content, or only
// the directory when content is empty.
func newDataDir(t *testing.T, content string) string {
	t.Helper()
	dataDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, DefaultConfigDir), 0o755))
	if content != "" {
		path := filepath.Join(dataDir, DefaultConfigDir, DefaultConfigFile)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dataDir
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		setup       func(v *viper.Viper)
		expectError bool
		check       func(t *testing.T, cfg *Config)
	}{
		{
			name: "defaults when file is missing",
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "127.0.0.1", cfg.Server.Host)
				assert.Equal(t, 5000, cfg.Server.Port)
				assert.False(t, cfg.Server.Debug)
				assert.True(t, cfg.Server.LoadDotenv)
				assert.Equal(t, "/static", cfg.Site.StaticURLPath)
				assert.Equal(t, 5*time.Second, cfg.Server.ReadHeaderTimeout)
				assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
				assert.Equal(t, 300*time.Millisecond, cfg.Development.WatchDebounce)
				assert.True(t, cfg.Development.HotReload)
				assert.Equal(t, "info", cfg.Logging.Level)
				assert.False(t, cfg.RateLimit.Enabled)
				assert.Equal(t, 600, cfg.RateLimit.RequestsPerMinute)
			},
		},
		{
			name:    "file overrides defaults",
			content: `{"server_run": {"host": "0.0.0.0", "port": 8000}, "server_init": {"static_folder": "assets"}}`,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "0.0.0.0:8000", cfg.Addr())
				assert.Equal(t, "/assets", cfg.Site.StaticURLPath)
				assert.Equal(t, filepath.Join(cfg.Paths.DataDir, "assets"), cfg.Paths.StaticDir)
			},
		},
		{
			name:    "debug forces debug logging",
			content: `{"server_run": {"debug": true}, "logging": {"level": "warn"}}`,
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.Server.Debug)
				assert.Equal(t, "debug", cfg.Logging.Level)
			},
		},
		{
			name:    "explicit values beat the file",
			content: `{"server_run": {"port": 8000}}`,
			setup: func(v *viper.Viper) {
				v.Set("server_run.port", 9100)
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9100, cfg.Server.Port)
			},
		},
		{
			name:    "durations parse from strings",
			content: `{"server_run": {"shutdown_timeout": "2s"}, "development": {"watch_debounce": "1s"}}`,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 2*time.Second, cfg.Server.ShutdownTimeout)
				assert.Equal(t, time.Second, cfg.Development.WatchDebounce)
			},
		},
		{
			name:        "wrong type fails to decode",
			content:     `{"server_run": {"port": "not-a-port"}}`,
			expectError: true,
		},
		{
			name:        "invalid JSON is fatal",
			content:     `{ invalid json`,
			expectError: true,
		},
		{
			name:        "validation failure",
			content:     `{"server_run": {"port": 70000}}`,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			if tt.setup != nil {
				tt.setup(v)
			}

			cfg, err := Load(LoadOptions{
				DataDir:    newDataDir(t, tt.content),
				ConfigFile: DefaultConfigFile,
				Viper:      v,
			})

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, cfg)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, cfg)
			tt.check(t, cfg)
		})
	}
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("ATLAS_SERVER_RUN_PORT", "9000")

	v := viper.New()
	v.SetEnvPrefix("ATLAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg, err := Load(LoadOptions{DataDir: newDataDir(t, `{"server_run": {"port": 8000}}`), ConfigFile: DefaultConfigFile, Viper: v})
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
}

func TestLoadResolvesPaths(t *testing.T) {
	dataDir := newDataDir(t, "")
	absBoundaries := filepath.Join(t.TempDir(), "shapes")

	cfg, err := Load(LoadOptions{
		DataDir:     dataDir,
		ConfigFile:  DefaultConfigFile,
		BasemapFile: "tiles.yaml",
		BoundaryDir: absBoundaries,
		Viper:       viper.New(),
	})
	require.NoError(t, err)

	assert.Equal(t, dataDir, cfg.Paths.DataDir)
	assert.Equal(t, filepath.Join(dataDir, "config"), cfg.Paths.ConfigDir)
	assert.Equal(t, filepath.Join(dataDir, "config", "server_config.json"), cfg.Paths.ConfigFile)
	assert.Equal(t, filepath.Join(dataDir, "config", "tiles.yaml"), cfg.Paths.BasemapFile)
	assert.Equal(t, absBoundaries, cfg.Paths.BoundaryDir)
	assert.Equal(t, filepath.Join(dataDir, "templates"), cfg.Paths.TemplateDir)
	assert.Equal(t, filepath.Join(dataDir, "static"), cfg.Paths.StaticDir)
}

func TestLoadExplicitConfigPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_run:\n  port: 7070\n"), 0o644))

	cfg, err := Load(LoadOptions{DataDir: t.TempDir(), ConfigFile: DefaultConfigFile, ConfigPath: path, Viper: viper.New()})
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, path, cfg.Paths.ConfigFile)
}

func TestLoadWarnsOnMissingFile(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	_, err := Load(LoadOptions{DataDir: newDataDir(t, ""), ConfigFile: DefaultConfigFile, Viper: viper.New(), Logger: logger})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "config file not found")
}

func TestUnhandledRunOptions(t *testing.T) {
	cfg, err := Load(LoadOptions{
		DataDir:    newDataDir(t, `{"server_run": {"use_reloader": true, "certfile": "c.pem", "keyfile": "k.pem"}}`),
		ConfigFile: DefaultConfigFile,
		Viper:      viper.New(),
	})
	require.NoError(t, err)

	assert.True(t, cfg.TLSEnabled())
	assert.Equal(t,
		[]string{"exclude_patterns", "extra_files", "passthrough_errors", "processes", "threaded", "use_reloader"},
		cfg.UnhandledRunOptions())
	assert.NotContains(t, cfg.RunExtra, "use_debugger")
}

func validConfig() *Config {
	return &Config{
		Site:    SiteConfig{StaticURLPath: "/static", StaticFolder: "static", TemplateFolder: "templates"},
		Server:  ServerConfig{Host: "127.0.0.1", Port: 5000},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(c *Config)
		wantCode string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "port zero allowed", mutate: func(c *Config) { c.Server.Port = 0 }},
		{name: "port too high", mutate: func(c *Config) { c.Server.Port = 65536 }, wantCode: atlaserrors.ErrCodeConfigInvalid},
		{name: "negative port", mutate: func(c *Config) { c.Server.Port = -1 }, wantCode: atlaserrors.ErrCodeConfigInvalid},
		{name: "command injection in host", mutate: func(c *Config) { c.Server.Host = "localhost; rm -rf /" }, wantCode: atlaserrors.ErrCodeConfigInvalid},
		{name: "cert without key", mutate: func(c *Config) { c.Server.CertFile = "cert.pem" }, wantCode: atlaserrors.ErrCodeConfigInvalid},
		{name: "template traversal", mutate: func(c *Config) { c.Site.TemplateFolder = "../../etc" }, wantCode: atlaserrors.ErrCodePathTraversal},
		{name: "static traversal", mutate: func(c *Config) { c.Site.StaticFolder = ".." }, wantCode: atlaserrors.ErrCodePathTraversal},
		{name: "nested folder allowed", mutate: func(c *Config) { c.Site.StaticFolder = "web/static" }},
		{name: "static url without slash", mutate: func(c *Config) { c.Site.StaticURLPath = "static" }, wantCode: atlaserrors.ErrCodeConfigInvalid},
		{name: "unknown log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantCode: atlaserrors.ErrCodeConfigInvalid},
		{name: "bad exclude pattern", mutate: func(c *Config) { c.Boundaries.ExcludePatterns = []string{"[abc"} }, wantCode: atlaserrors.ErrCodeConfigInvalid},
		{name: "good exclude pattern", mutate: func(c *Config) { c.Boundaries.ExcludePatterns = []string{"**/draft_*.geojson"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := validateConfig(cfg)
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var ae *atlaserrors.AtlasError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tt.wantCode, ae.Code)
		})
	}
}

func TestWizardDefaults(t *testing.T) {
	var out bytes.Buffer
	tree, err := NewWizard(strings.NewReader(""), &out).Run()
	require.NoError(t, err)

	assert.Equal(t, Defaults(), tree)
	assert.Contains(t, out.String(), "Listen port [5000]")
}

func TestWizardAnswers(t *testing.T) {
	answers := strings.Join([]string{
		"0.0.0.0", // host
		"abc",     // rejected port
		"8080",    // port
		"y",       // debug
		"DEBUG",   // log level
		"json",    // log format
		"y",       // hot reload
		"nope",    // rejected debounce
		"1s",      // debounce
		"yes",     // rate limit
		"120",     // rpm
	}, "\n") + "\n"

	var out bytes.Buffer
	tree, err := NewWizard(strings.NewReader(answers), &out).Run()
	require.NoError(t, err)

	run := tree[SectionRun].(map[string]any)
	assert.Equal(t, "0.0.0.0", run["host"])
	assert.Equal(t, 8080, run["port"])
	assert.Equal(t, true, run["debug"])
	assert.Equal(t, "debug", tree[SectionLogging].(map[string]any)["level"])
	assert.Equal(t, "json", tree[SectionLogging].(map[string]any)["format"])
	assert.Equal(t, "1s", tree[SectionDevelopment].(map[string]any)["watch_debounce"])
	assert.Equal(t, 120, tree[SectionRateLimit].(map[string]any)["requests_per_minute"])
	assert.Contains(t, out.String(), "Invalid number")
	assert.Contains(t, out.String(), "Invalid duration")

	data, err := MarshalTree(tree)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"port": 8080`)
}

func TestWizardRejectsDangerousHost(t *testing.T) {
	_, err := NewWizard(strings.NewReader("bad;host\n"), &bytes.Buffer{}).Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dangerous character")
}
