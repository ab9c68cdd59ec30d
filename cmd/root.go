// Package cmd provides the atlas command-line interface.
//
// Configuration is read from a JSON or YAML server configuration file in the
// data directory and can be overridden, in increasing priority, by:
//
//  1. ATLAS_<SECTION>_<OPTION> environment variables
//     (for example ATLAS_SERVER_RUN_PORT=8080)
//  2. command-line flags (--host, --port, ...)
//
// The configuration file itself is found through --config, then the
// ATLAS_CONFIG_FILE environment variable, then
// <data-dir>/<config-dir>/<config-file>.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable atlas reads.
const EnvPrefix = "ATLAS"

type rootOptions struct {
	configPath string
	logLevel   string
}

// newRootCmd builds the command tree. Every call returns a fresh tree so
// flag state never leaks between runs.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "atlas",
		Short: "Serve an interactive web map with boundary overlays",
		Long: `atlas serves an interactive Leaflet map of configurable basemaps with
GeoJSON and GeoPackage boundary overlays, live reloaded while you edit them.

Quick Start:
  atlas init                     Create templates and example configuration
  atlas serve                    Start the map server
  atlas list basemaps            Show the configured basemaps
  atlas validate                 Check configuration, catalog and boundaries`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"server configuration file (overrides --data-dir/--config-dir/--config-file, can also use ATLAS_CONFIG_FILE)")
	root.PersistentFlags().StringVarP(&opts.logLevel, "log-level", "l", "",
		"log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(opts),
		newValidateCmd(opts),
		newInitCmd(opts),
		newListCmd(opts),
		newVersionCmd(),
	)
	return root
}

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

// newViper returns a viper instance reading ATLAS_ environment variables,
// with nested keys joined by underscores.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}
