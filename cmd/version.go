package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/atlas/internal/version"
)

func newVersionCmd() *cobra.Command {
	var (
		format string
		short  bool
	)

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display the atlas version, git commit, build time, Go version and platform.

Examples:
  atlas version                 # Version summary
  atlas version --short         # Version only
  atlas version --format json   # Output as JSON`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			info := version.GetBuildInfo()

			switch format {
			case "json":
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(info)
			case "text":
				if short {
					fmt.Fprintln(out, version.GetShortVersion())
					return nil
				}
				fmt.Fprintf(out, "atlas %s", info.Version)
				if info.GitCommit != "unknown" && len(info.GitCommit) >= 7 {
					fmt.Fprintf(out, " (%s)", info.GitCommit[:7])
				}
				fmt.Fprintln(out)
				if !info.BuildTime.IsZero() {
					fmt.Fprintf(out, "Built: %s\n", info.BuildTime.Format("2006-01-02 15:04:05 UTC"))
				}
				fmt.Fprintf(out, "Go: %s\n", info.GoVersion)
				fmt.Fprintf(out, "Platform: %s\n", info.Platform)
				return nil
			default:
				return fmt.Errorf("unsupported format: %s (supported: text, json)", format)
			}
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format (text, json)")
	cmd.Flags().BoolVar(&short, "short", false, "show the version only")
	return cmd
}
