package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/atlas/internal/server"
)

type serveOptions struct {
	paths   pathFlags
	noWatch bool
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}
	v := newViper()

	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"s"},
		Short:   "Start the map server",
		Long: `Start the map server. Boundary files are watched and open pages reload
when they change, unless --no-watch is given or development.hot_reload is off.

Examples:
  atlas serve                          # Serve ./data on 127.0.0.1:5000
  atlas serve --port 8080              # Use another port
  atlas serve --data-dir /srv/maps     # Serve another data directory
  ATLAS_SERVER_RUN_HOST=0.0.0.0 atlas serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, root, opts, v)
		},
	}

	opts.paths.register(cmd.Flags())
	cmd.Flags().String("host", "127.0.0.1", "host to bind to")
	cmd.Flags().IntP("port", "p", 5000, "port to serve on")
	cmd.Flags().BoolVar(&opts.noWatch, "no-watch", false, "disable boundary watching and live reload")

	_ = v.BindPFlag("server_run.host", cmd.Flags().Lookup("host"))
	_ = v.BindPFlag("server_run.port", cmd.Flags().Lookup("port"))
	return cmd
}

func runServe(cmd *cobra.Command, root *rootOptions, opts *serveOptions, v *viper.Viper) error {
	cfg, err := loadConfig(cmd, root, &opts.paths, v)
	if err != nil {
		return err
	}

	logger, closeLog, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logUnhandled(ctx, logger, cfg)

	srv, err := server.New(cfg,
		server.WithLogger(logger),
		server.WithWatch(cfg.Development.HotReload && !opts.noWatch),
	)
	if err != nil {
		return configError(err, cfg.Paths.ConfigFile, cfg.Paths.BasemapFile)
	}

	go announce(ctx, cmd, srv)

	if err := srv.Start(ctx); err != nil {
		return err
	}
	return nil
}

// announce prints where the map can be opened once the server listens.
func announce(ctx context.Context, cmd *cobra.Command, srv *server.Server) {
	select {
	case <-srv.Ready():
	case <-ctx.Done():
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Starting atlas at %s\n", srv.URL())
	fmt.Fprintf(out, "Available basemaps: %s\n", strings.Join(srv.Maps().AvailableBasemaps(), ", "))
	fmt.Fprintln(out, "Press Ctrl+C to stop")
}
