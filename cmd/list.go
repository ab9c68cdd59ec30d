package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/atlas/internal/basemap"
	"github.com/conneroisu/atlas/internal/boundary"
	"github.com/conneroisu/atlas/internal/server"
)

var listFormats = []string{"table", "json", "yaml"}

type listOptions struct {
	paths  pathFlags
	format string
}

// BasemapEntry is one row of `atlas list basemaps`.
type BasemapEntry struct {
	Name        string `json:"name" yaml:"name"`
	URL         string `json:"url" yaml:"url"`
	Attribution string `json:"attribution" yaml:"attribution"`
	Default     bool   `json:"default" yaml:"default"`
}

func newListCmd(root *rootOptions) *cobra.Command {
	opts := &listOptions{}
	v := newViper()

	cmd := &cobra.Command{
		Use:       "list basemaps|boundaries",
		Aliases:   []string{"l"},
		Short:     "List the configured basemaps or the loaded boundary overlays",
		ValidArgs: []string{"basemaps", "boundaries"},
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		Long: `List the basemaps of the catalog or the boundary overlays found in the
boundary directory.

Examples:
  atlas list basemaps                 # Table output
  atlas list boundaries -f json       # JSON output
  atlas list basemaps --format yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, root, opts, v, args[0])
		},
	}

	opts.paths.register(cmd.Flags())
	cmd.Flags().StringVarP(&opts.format, "format", "f", "table",
		"output format ("+strings.Join(listFormats, ", ")+")")
	return cmd
}

func runList(cmd *cobra.Command, root *rootOptions, opts *listOptions, v *viper.Viper, what string) error {
	format := strings.ToLower(opts.format)
	if !contains(listFormats, format) {
		return fmt.Errorf("unsupported format: %s (supported: %s)", opts.format, strings.Join(listFormats, ", "))
	}

	cfg, err := loadConfig(cmd, root, &opts.paths, v)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	switch what {
	case "basemaps":
		catalog, err := basemap.LoadOrDefault(cfg.Paths.BasemapFile, nil)
		if err != nil {
			return configError(err, cfg.Paths.ConfigFile, cfg.Paths.BasemapFile)
		}
		entries := basemapEntries(catalog)
		if format == "table" {
			return basemapTable(out, entries)
		}
		return encode(out, format, entries)

	default:
		manager := boundary.NewManager(cfg.Paths.BoundaryDir, boundary.WithExcludePatterns(cfg.Boundaries.ExcludePatterns))
		set, err := manager.Load(cmd.Context())
		if err != nil {
			return err
		}
		resp := server.DescribeBoundaries(set)
		if format == "table" {
			return boundaryTable(out, resp)
		}
		return encode(out, format, resp)
	}
}

func basemapEntries(c *basemap.Catalog) []BasemapEntry {
	entries := make([]BasemapEntry, 0, c.Len())
	for _, name := range c.Names() {
		entries = append(entries, BasemapEntry{
			Name:        name,
			URL:         c.URL(name),
			Attribution: c.Attribution(name),
			Default:     name == c.View.Basemap,
		})
	}
	return entries
}

func basemapTable(w io.Writer, entries []BasemapEntry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDEFAULT\tURL")
	for _, e := range entries {
		def := ""
		if e.Default {
			def = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Name, def, e.URL)
	}
	return tw.Flush()
}

func boundaryTable(w io.Writer, resp server.BoundariesResponse) error {
	if len(resp.Boundaries) == 0 && len(resp.Problems) == 0 {
		fmt.Fprintln(w, "No boundary files found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tTITLE\tFORMAT\tFEATURES\tVISIBLE")
	for _, b := range resp.Boundaries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%t\n", b.Name, b.Title, b.Format, b.Features, b.Visible)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, p := range resp.Problems {
		fmt.Fprintf(w, "skipped %s: %s\n", p.Source, p.Message)
	}
	return nil
}

// encode writes v as indented JSON, or as YAML with the same keys as the
// JSON form.
func encode(w io.Writer, format string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if format == "json" {
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
