package main

import (
	"bufio"
	"errors"
	"fmt"

	"github.com/ivoronin/dupescan/internal/report"
	"github.com/spf13/cobra"
)

// findOptions holds CLI flags for the find command.
type findOptions struct {
	unique     bool
	template   string
	pretty     bool
	json       bool
	outputFile string
}

// newFindCmd creates the find subcommand.
func newFindCmd(a *app) *cobra.Command {
	opts := &findOptions{template: report.DefaultTemplate, outputFile: "-"}

	cmd := &cobra.Command{
		Use:   "find [paths...]",
		Short: "List duplicate (or unique) files",
		Long: `Scans the given directories and prints every file that has at least one
other file with identical content, ordered by hash, size and name.

Files are compared by size first; only files sharing a size are hashed.
Symbolic links inside the trees are not followed. Roots nested inside other
roots, or reached through a symlink to another root, are ignored.

Template variables: ${hash}, ${size}, ${fullname}, ${path}, ${abspath},
${realpath}. Unknown hashes and sizes expand to nothing.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFind(cmd, a, args, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.unique, "unique", "u", false, "List files without a duplicate instead")
	cmd.Flags().StringVarP(&opts.template, "template", "t", opts.template, "Output template")
	cmd.Flags().BoolVarP(&opts.pretty, "pretty-print", "p", false, "Group results by hash and size")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print one JSON object per line")
	cmd.Flags().StringVarP(&opts.outputFile, "output-file", "o", opts.outputFile, "Output file (- for stdout)")
	cmd.MarkFlagsMutuallyExclusive("template", "pretty-print", "json")
	bindScanFlags(cmd, &a.scan)

	return cmd
}

// runFind scans paths and writes the selected result set.
func runFind(cmd *cobra.Command, a *app, paths []string, opts *findOptions) (err error) {
	eng, closeEngine, err := a.openEngine()
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, closeEngine()) }()

	ctx := cmd.Context()
	find := eng.FindDuplicates
	if opts.unique {
		find = eng.FindUnique
	}
	records, err := find(ctx, paths)
	if err != nil {
		return err
	}

	out, closeOut, err := openOutput(opts.outputFile, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, closeOut()) }()

	var w report.Writer = report.Template{Format: opts.template}
	switch {
	case opts.pretty:
		w = report.Pretty{}
	case opts.json:
		w = report.JSON{}
	}

	buf := bufio.NewWriter(out)
	var n int
	if err := w.Write(buf, report.Count(records, &n)); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("write results: %w", err)
	}

	a.log.WithFields(statsFields(eng.Stats())).WithField("records", n).Info("results written")
	return nil
}
