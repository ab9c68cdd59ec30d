package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conneroisu/atlas/internal/config"
	atlaserrors "github.com/conneroisu/atlas/internal/errors"
	"github.com/conneroisu/atlas/internal/logging"
)

// pathFlags locate the data directory and the files inside it.
type pathFlags struct {
	dataDir     string
	configDir   string
	configFile  string
	basemapFile string
	boundaryDir string
}

func (p *pathFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&p.dataDir, "data-dir", config.DefaultDataDir, "data directory")
	fs.StringVar(&p.configDir, "config-dir", config.DefaultConfigDir, "configuration directory, relative to the data directory")
	fs.StringVar(&p.configFile, "config-file", config.DefaultConfigFile, "server configuration file name")
	fs.StringVar(&p.basemapFile, "basemap-file", config.DefaultBasemapFile, "basemap catalog file name")
	fs.StringVar(&p.boundaryDir, "boundary-dir", config.DefaultBoundaryDir, "boundary directory, relative to the data directory")
}

// loadOptions resolves the configuration file: --config, then
// ATLAS_CONFIG_FILE, then the path flags.
func (p *pathFlags) loadOptions(root *rootOptions, v *viper.Viper, logger logging.Logger) config.LoadOptions {
	configPath := root.configPath
	if configPath == "" {
		configPath = os.Getenv(EnvPrefix + "_CONFIG_FILE")
	}
	return config.LoadOptions{
		DataDir:     p.dataDir,
		ConfigDir:   p.configDir,
		ConfigFile:  p.configFile,
		BasemapFile: p.basemapFile,
		BoundaryDir: p.boundaryDir,
		ConfigPath:  configPath,
		Viper:       v,
		Logger:      logger,
	}
}

// loadConfig loads the configuration and applies --log-level.
func loadConfig(cmd *cobra.Command, root *rootOptions, paths *pathFlags, v *viper.Viper) (*config.Config, error) {
	opts := paths.loadOptions(root, v, bootstrapLogger(cmd.ErrOrStderr(), root.logLevel))
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, configError(err, opts.FilePath(), "")
	}
	if root.logLevel != "" {
		cfg.Logging.Level = root.logLevel
	}
	return cfg, nil
}

// configError attaches suggestions to configuration and catalog failures
// that have any.
func configError(err error, configPath, basemapPath string) error {
	var ae *atlaserrors.AtlasError
	if !errors.As(err, &ae) {
		return err
	}
	suggestions := atlaserrors.ConfigurationError(err, &atlaserrors.SuggestionContext{
		ConfigPath:  configPath,
		BasemapPath: basemapPath,
	})
	if len(suggestions) == 0 {
		return err
	}
	return atlaserrors.NewEnhancedError(err.Error(), err, suggestions)
}

// bootstrapLogger logs while the configuration itself is being read.
func bootstrapLogger(w io.Writer, level string) logging.Logger {
	if level == "" {
		level = "warn"
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.ParseLevel(level),
		Format: "text",
		Output: w,
	})
}

// newLogger builds the application logger. When logging.file is set every
// line is also appended to that file; the returned func closes it.
func newLogger(cfg *config.Config, w io.Writer) (logging.Logger, func() error, error) {
	lc := &logging.LoggerConfig{
		Level:  logging.ParseLevel(cfg.Logging.Level),
		Format: cfg.Logging.Format,
		Output: w,
	}
	console := logging.NewLogger(lc)
	if cfg.Logging.File == "" {
		return console, func() error { return nil }, nil
	}

	file, err := logging.NewFileLogger(lc, cfg.Logging.File)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return logging.NewMultiLogger(console, file), file.Close, nil
}

// logUnhandled reports server_run options that are accepted but ignored.
func logUnhandled(ctx context.Context, logger logging.Logger, cfg *config.Config) {
	if unhandled := cfg.UnhandledRunOptions(); len(unhandled) > 0 {
		logger.Debug(ctx, "Ignoring server_run options", "options", strings.Join(unhandled, ", "))
	}
}
