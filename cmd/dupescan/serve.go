package main

import (
	"errors"

	"github.com/ivoronin/dupescan/internal/server"
	"github.com/spf13/cobra"
)

// newServeCmd creates the serve subcommand.
func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [paths...]",
		Short: "Serve duplicate clusters over HTTP",
		Long: `Serves the index over HTTP until interrupted.

With paths, scans them first. Without paths, serves an existing index, which
requires --database pointing at a file written by an earlier find or serve.

Endpoints:
  GET    /clusters?page=N&page_size=M
  GET    /clusters/{hash}/{size}
  GET    /files/{path}
  DELETE /files/{path}
  GET    /static/{path}`,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			eng, closeEngine, err := a.openEngine()
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, closeEngine()) }()

			if len(args) > 0 {
				if err := eng.Scan(cmd.Context(), args); err != nil {
					return err
				}
				a.log.WithFields(statsFields(eng.Stats())).Info("index ready")
			}
			return server.New(eng, a.log).Start(cmd.Context(), a.cfg.Listen)
		},
	}

	cmd.Flags().StringVar(&a.listen, "listen", ":8080", "Listen address")
	bindScanFlags(cmd, &a.scan)

	return cmd
}
