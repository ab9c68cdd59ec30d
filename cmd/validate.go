package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/atlas/internal/basemap"
	"github.com/conneroisu/atlas/internal/boundary"
	atlaserrors "github.com/conneroisu/atlas/internal/errors"
	"github.com/conneroisu/atlas/internal/templates"
	"github.com/conneroisu/atlas/internal/validation"
)

type validateOptions struct {
	paths  pathFlags
	format string
}

// ValidationReport is the result of `atlas validate`.
type ValidationReport struct {
	Valid      bool                  `json:"valid"`
	ConfigFile string                `json:"config_file"`
	Basemaps   []string              `json:"basemaps"`
	Boundaries []string              `json:"boundaries"`
	Problems   []atlaserrors.Problem `json:"problems"`
}

// errValidationFailed makes the command exit non-zero after the report has
// been printed.
var errValidationFailed = errors.New("validation failed")

func newValidateCmd(root *rootOptions) *cobra.Command {
	opts := &validateOptions{}
	v := newViper()

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check configuration, basemap catalog, templates and boundaries",
		Long: `Load everything serve would load and report every problem found.

Missing optional files (configuration, catalog, templates) are warnings.
Unreadable or invalid files are errors and make the command exit non-zero.

Examples:
  atlas validate                      # Validate ./data
  atlas validate --data-dir /srv/maps
  atlas validate --format json        # Machine readable report`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, root, opts, v)
		},
	}

	opts.paths.register(cmd.Flags())
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "output format (text, json)")
	return cmd
}

func runValidate(cmd *cobra.Command, root *rootOptions, opts *validateOptions, v *viper.Viper) error {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("unsupported format: %s (supported: text, json)", opts.format)
	}

	report, err := validate(cmd, root, &opts.paths, v)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.format == "json" {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(report); err != nil {
			return err
		}
	} else {
		printReport(out, report)
	}

	if !report.Valid {
		return errValidationFailed
	}
	return nil
}

func validate(cmd *cobra.Command, root *rootOptions, paths *pathFlags, v *viper.Viper) (*ValidationReport, error) {
	problems := atlaserrors.NewCollector()
	report := &ValidationReport{Basemaps: []string{}, Boundaries: []string{}}

	cfg, err := loadConfig(cmd, root, paths, v)
	if err != nil {
		problems.Add("configuration", atlaserrors.SeverityError, err)
		report.Problems = problems.Problems()
		return report, nil
	}
	report.ConfigFile = cfg.Paths.ConfigFile

	catalog, err := basemap.Load(cfg.Paths.BasemapFile)
	switch {
	case err == nil:
		report.Basemaps = catalog.Names()
		for _, name := range catalog.Names() {
			if err := validation.ValidateTileURL(catalog.URL(name)); err != nil {
				problems.Add(filepath.Base(cfg.Paths.BasemapFile), atlaserrors.SeverityError,
					fmt.Errorf("basemap %q: %w", name, err))
			}
		}
	case isNotFound(err):
		problems.Add(filepath.Base(cfg.Paths.BasemapFile), atlaserrors.SeverityWarning,
			fmt.Errorf("not found, the built-in basemaps are used"))
		report.Basemaps = basemap.Default().Names()
	default:
		problems.Add(filepath.Base(cfg.Paths.BasemapFile), atlaserrors.SeverityError, err)
	}

	tm := templates.NewManager(cfg.Paths.DataDir, cfg.Paths.TemplateDir, cfg.Paths.StaticDir, nil)
	if _, err := tm.Load(); err != nil {
		severity := atlaserrors.SeverityError
		if isNotFound(err) {
			severity = atlaserrors.SeverityWarning
			err = fmt.Errorf("not found, run atlas init or atlas serve to create it")
		}
		problems.Add(templates.IndexFile, severity, err)
	}

	manager := boundary.NewManager(cfg.Paths.BoundaryDir, boundary.WithExcludePatterns(cfg.Boundaries.ExcludePatterns))
	set, err := manager.Load(cmd.Context())
	if err != nil {
		problems.Add(filepath.Base(cfg.Paths.BoundaryDir), atlaserrors.SeverityError, err)
	} else {
		for _, layer := range set.Layers {
			report.Boundaries = append(report.Boundaries, layer.Name)
		}
		for _, p := range set.Problems {
			problems.Add(p.Source, atlaserrors.SeverityError, errors.New(p.Message))
		}
	}

	report.Problems = problems.Problems()
	report.Valid = !problems.HasErrors()
	return report, nil
}

func isNotFound(err error) bool {
	var ae *atlaserrors.AtlasError
	return errors.As(err, &ae) && ae.Code == atlaserrors.ErrCodeFileNotFound
}

func printReport(w io.Writer, r *ValidationReport) {
	if r.ConfigFile != "" {
		fmt.Fprintf(w, "Configuration: %s\n", r.ConfigFile)
	}
	fmt.Fprintf(w, "Basemaps: %d\n", len(r.Basemaps))
	fmt.Fprintf(w, "Boundaries: %d\n", len(r.Boundaries))

	for _, p := range r.Problems {
		mark := "⚠"
		if p.Severity == atlaserrors.SeverityError {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s: %s\n", mark, p.Source, p.Message)
	}

	if r.Valid {
		fmt.Fprintln(w, "✓ Validation passed")
	} else {
		fmt.Fprintln(w, "✗ Validation failed")
	}
}

