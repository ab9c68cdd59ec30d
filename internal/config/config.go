// Package config loads the atlas server configuration.
//
// A configuration file (JSON or YAML) lives under <data_dir>/<config_dir>
// and is deep-merged over the built-in Defaults. The merged tree is handed to
// Viper so that command-line flags and ATLAS_ environment variables take
// precedence over the file, then unmarshalled into Config and validated.
// Template, static and boundary folders are resolved relative to the data
// directory.
package config

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/atlas/internal/logging"
)

// Config is the effective server configuration.
type Config struct {
	Site        SiteConfig        `mapstructure:"server_init" yaml:"server_init"`
	Server      ServerConfig      `mapstructure:"server_run" yaml:"server_run"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
	Development DevelopmentConfig `mapstructure:"development" yaml:"development"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit" yaml:"rate_limit"`
	Boundaries  BoundariesConfig  `mapstructure:"boundaries" yaml:"boundaries"`

	// Paths are resolved from the load options, not read from the file.
	Paths PathsConfig `mapstructure:"-" yaml:"-"`
	// RunExtra holds the server_run options that are not host, port, debug
	// or load_dotenv.
	RunExtra map[string]any `mapstructure:"-" yaml:"-"`
}

// SiteConfig mirrors the server_init section.
type SiteConfig struct {
	StaticURLPath  string `mapstructure:"static_url_path" yaml:"static_url_path"`
	StaticFolder   string `mapstructure:"static_folder" yaml:"static_folder"`
	TemplateFolder string `mapstructure:"template_folder" yaml:"template_folder"`
}

// ServerConfig mirrors the server_run section.
type ServerConfig struct {
	Host              string        `mapstructure:"host" yaml:"host"`
	Port              int           `mapstructure:"port" yaml:"port"`
	Debug             bool          `mapstructure:"debug" yaml:"debug"`
	LoadDotenv        bool          `mapstructure:"load_dotenv" yaml:"load_dotenv"`
	CertFile          string        `mapstructure:"certfile" yaml:"certfile"`
	KeyFile           string        `mapstructure:"keyfile" yaml:"keyfile"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// DevelopmentConfig controls boundary watching and browser live reload.
type DevelopmentConfig struct {
	HotReload     bool          `mapstructure:"hot_reload" yaml:"hot_reload"`
	WatchDebounce time.Duration `mapstructure:"watch_debounce" yaml:"watch_debounce"`
}

// RateLimitConfig controls per-client request limiting.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled" yaml:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// BoundariesConfig controls boundary discovery.
type BoundariesConfig struct {
	ExcludePatterns []string `mapstructure:"exclude_patterns" yaml:"exclude_patterns"`
}

// PathsConfig holds the resolved filesystem locations.
type PathsConfig struct {
	DataDir     string `yaml:"data_dir"`
	ConfigDir   string `yaml:"config_dir"`
	ConfigFile  string `yaml:"config_file"`
	BasemapFile string `yaml:"basemap_file"`
	BoundaryDir string `yaml:"boundary_dir"`
	TemplateDir string `yaml:"template_dir"`
	StaticDir   string `yaml:"static_dir"`
}

// Default names used when the CLI does not override them.
const (
	DefaultDataDir     = "data"
	DefaultConfigDir   = "config"
	DefaultConfigFile  = "server_config.json"
	DefaultBasemapFile = "basemaps.json"
	DefaultBoundaryDir = "boundary"
)

// LoadOptions locate the configuration inputs.
type LoadOptions struct {
	DataDir     string
	ConfigDir   string
	ConfigFile  string
	BasemapFile string
	BoundaryDir string

	// ConfigPath, when set, is used instead of DataDir/ConfigDir/ConfigFile.
	ConfigPath string

	// Viper defaults to the global instance so that flags bound by the CLI
	// take effect.
	Viper  *viper.Viper
	Logger logging.Logger
}

func (o *LoadOptions) applyDefaults() {
	if o.DataDir == "" {
		o.DataDir = DefaultDataDir
	}
	if o.ConfigDir == "" {
		o.ConfigDir = DefaultConfigDir
	}
	if o.BasemapFile == "" {
		o.BasemapFile = DefaultBasemapFile
	}
	if o.BoundaryDir == "" {
		o.BoundaryDir = DefaultBoundaryDir
	}
	if o.Viper == nil {
		o.Viper = viper.GetViper()
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
}

// FilePath returns the configuration file path implied by the options, or ""
// when no file is configured.
func (o LoadOptions) FilePath() string {
	if o.ConfigPath != "" {
		return o.ConfigPath
	}
	if o.ConfigFile == "" {
		return ""
	}
	return filepath.Join(o.DataDir, o.ConfigDir, o.ConfigFile)
}

// Load builds the effective configuration.
func Load(opts LoadOptions) (*Config, error) {
	opts.applyDefaults()

	merged, err := LoadFile(opts.FilePath(), Defaults(), opts.Logger)
	if err != nil {
		return nil, err
	}

	v := opts.Viper
	if err := v.MergeConfigMap(merged); err != nil {
		return nil, fmt.Errorf("merge configuration: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}

	run, _ := merged[SectionRun].(map[string]any)
	_, cfg.RunExtra = SplitRunArgs(run)

	applyDefaults(&cfg)

	if err := resolvePaths(&cfg, opts); err != nil {
		return nil, err
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Site.TemplateFolder == "" {
		cfg.Site.TemplateFolder = "templates"
	}
	if cfg.Site.StaticFolder == "" {
		cfg.Site.StaticFolder = "static"
	}
	if cfg.Site.StaticURLPath == "" {
		cfg.Site.StaticURLPath = "/" + filepath.Base(cfg.Site.StaticFolder)
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.ReadHeaderTimeout <= 0 {
		cfg.Server.ReadHeaderTimeout = 5 * time.Second
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Server.Debug {
		cfg.Logging.Level = "debug"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Development.WatchDebounce <= 0 {
		cfg.Development.WatchDebounce = 300 * time.Millisecond
	}
	if cfg.RateLimit.RequestsPerMinute <= 0 {
		cfg.RateLimit.RequestsPerMinute = 600
	}
}

func resolvePaths(cfg *Config, opts LoadOptions) error {
	dataDir, err := filepath.Abs(opts.DataDir)
	if err != nil {
		return fmt.Errorf("resolve data dir: %w", err)
	}

	cfg.Paths = PathsConfig{
		DataDir:     dataDir,
		ConfigDir:   filepath.Join(dataDir, opts.ConfigDir),
		ConfigFile:  opts.FilePath(),
		BasemapFile: underDir(dataDir, filepath.Join(opts.ConfigDir, opts.BasemapFile)),
		BoundaryDir: underDir(dataDir, opts.BoundaryDir),
		TemplateDir: underDir(dataDir, cfg.Site.TemplateFolder),
		StaticDir:   underDir(dataDir, cfg.Site.StaticFolder),
	}
	return nil
}

func underDir(dir, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(dir, p)
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// TLSEnabled reports whether both a certificate and a key are configured.
func (c *Config) TLSEnabled() bool {
	return c.Server.CertFile != "" && c.Server.KeyFile != ""
}

// UnhandledRunOptions returns the sorted names of server_run options that
// atlas accepts for compatibility but does not act on.
func (c *Config) UnhandledRunOptions() []string {
	handled := map[string]bool{
		"certfile":            true,
		"keyfile":             true,
		"read_header_timeout": true,
		"shutdown_timeout":    true,
	}
	var names []string
	for k := range c.RunExtra {
		if !handled[k] {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}
