package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/atlas/internal/basemap"
	"github.com/conneroisu/atlas/internal/config"
	"github.com/conneroisu/atlas/internal/templates"
)

type initOptions struct {
	paths       pathFlags
	interactive bool
	force       bool
}

func newInitCmd(root *rootOptions) *cobra.Command {
	opts := &initOptions{}
	v := newViper()

	cmd := &cobra.Command{
		Use:     "init",
		Aliases: []string{"i"},
		Short:   "Create templates and example configuration in the data directory",
		Long: `Create the data directory layout:

  <data-dir>/templates/index.html     page template (always refreshed)
  <data-dir>/static/css/style.css     stylesheet (kept when present)
  <data-dir>/config/server_config.json
  <data-dir>/config/basemaps.json
  <data-dir>/boundary/

Existing configuration files are kept unless --force is given.

Examples:
  atlas init
  atlas init --interactive            # Answer questions for the server config
  atlas init --data-dir /srv/maps --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, root, opts, v)
		},
	}

	opts.paths.register(cmd.Flags())
	cmd.Flags().BoolVar(&opts.interactive, "interactive", false, "configure the server interactively")
	cmd.Flags().BoolVar(&opts.force, "force", false, "overwrite existing configuration files")
	return cmd
}

func runInit(cmd *cobra.Command, root *rootOptions, opts *initOptions, v *viper.Viper) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(cmd, root, &opts.paths, v)
	if err != nil {
		return err
	}

	tm := templates.NewManager(cfg.Paths.DataDir, cfg.Paths.TemplateDir, cfg.Paths.StaticDir, nil)
	res, err := tm.EnsureTemplates()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ Wrote %s\n", res.IndexPath)
	if res.StyleAdded {
		fmt.Fprintf(out, "✓ Wrote %s\n", res.StylePath)
	}

	if err := os.MkdirAll(cfg.Paths.BoundaryDir, 0o755); err != nil {
		return fmt.Errorf("create boundary directory: %w", err)
	}
	fmt.Fprintf(out, "✓ Boundary directory %s\n", cfg.Paths.BoundaryDir)

	tree := config.Defaults()
	if opts.interactive {
		tree, err = config.NewWizard(cmd.InOrStdin(), out).Run()
		if err != nil {
			return err
		}
	}
	configData, err := config.MarshalTree(tree)
	if err != nil {
		return err
	}
	configPath := cfg.Paths.ConfigFile
	if configPath == "" {
		configPath = filepath.Join(cfg.Paths.ConfigDir, config.DefaultConfigFile)
	}
	if err := writeExample(out, configPath, configData, opts.force || opts.interactive); err != nil {
		return err
	}

	catalogData, err := json.Marshal(basemap.Default())
	if err != nil {
		return err
	}
	var indented bytes.Buffer
	if err := json.Indent(&indented, catalogData, "", "  "); err != nil {
		return err
	}
	indented.WriteByte('\n')
	if err := writeExample(out, cfg.Paths.BasemapFile, indented.Bytes(), opts.force); err != nil {
		return err
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Add .geojson or .gpkg files to %s and run:\n", cfg.Paths.BoundaryDir)
	fmt.Fprintf(out, "  atlas serve --data-dir %s\n", opts.paths.dataDir)
	return nil
}

// writeExample writes data to path unless the file exists and overwrite is
// false.
func writeExample(out io.Writer, path string, data []byte, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			fmt.Fprintf(out, "• Kept existing %s\n", path)
			return nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(out, "✓ Wrote %s\n", path)
	return nil
}
