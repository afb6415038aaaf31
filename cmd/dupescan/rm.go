package main

import (
	"errors"
	"fmt"

	"github.com/ivoronin/dupescan/internal/config"
	"github.com/spf13/cobra"
)

// newRmCmd creates the rm subcommand.
func newRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm [paths...]",
		Short: "Delete files that have a verified duplicate",
		Long: `Deletes files recorded in the index given by --database.

A file is only removed when another file with the same hash and size, at a
different real path, is still present on disk. The last copy of any content
is never removed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRm(cmd, a, args)
		},
	}
}

func runRm(cmd *cobra.Command, a *app, paths []string) (err error) {
	if a.cfg.Database == config.MemoryDatabase {
		return errors.New("rm needs a persistent index, pass --database")
	}

	eng, closeEngine, err := a.openEngine()
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, closeEngine()) }()

	var failed int
	for _, path := range paths {
		if err := eng.Delete(cmd.Context(), path); err != nil {
			failed++
			a.log.WithField("path", path).WithError(err).Error("cannot delete")
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", path)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files not removed", failed, len(paths))
	}
	return nil
}
