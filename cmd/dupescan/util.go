package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ivoronin/dupescan/internal/cache"
	"github.com/ivoronin/dupescan/internal/config"
	"github.com/ivoronin/dupescan/internal/engine"
	"github.com/ivoronin/dupescan/internal/hasher"
	"github.com/ivoronin/dupescan/internal/index"
	"github.com/ivoronin/dupescan/internal/progress"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// globalOptions holds the persistent flags.
type globalOptions struct {
	configFile string
	database   string
	verbosity  string
	logFile    string
	logFormat  string
	noProgress bool
}

// scanOptions holds flags shared by commands that scan.
type scanOptions struct {
	workers   int
	hash      string
	cacheFile string
	excludes  []string
	minSize   string
}

// bindScanFlags registers scan flags on cmd.
func bindScanFlags(cmd *cobra.Command, opts *scanOptions) {
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "Number of parallel workers (default number of CPUs)")
	cmd.Flags().StringVar(&opts.hash, "hash", "", "Hash algorithm: md5, sha256, blake3 (default sha256)")
	cmd.Flags().StringVar(&opts.cacheFile, "cache-file", "", "Path to hash cache file (enables caching)")
	cmd.Flags().StringSliceVarP(&opts.excludes, "exclude", "e", nil, "Glob patterns to exclude")
	cmd.Flags().StringVarP(&opts.minSize, "min-size", "m", "", "Minimum file size (e.g., 100, 1K, 10M, 1G)")
}

// app carries configuration and the logger from setup to the commands.
type app struct {
	global globalOptions
	scan   scanOptions
	listen string

	cfg       *config.Config
	log       *logrus.Logger
	logCloser io.Closer
}

// setup loads the config file, applies explicitly set flags over it and
// builds the logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.global.configFile)
	if err != nil {
		return err
	}
	a.applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, closer, err := config.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	a.cfg, a.log, a.logCloser = cfg, log, closer
	return nil
}

// teardown releases the log file. It runs after the command whether or not
// it failed.
func (a *app) teardown() {
	if a.logCloser != nil {
		_ = a.logCloser.Close()
		a.logCloser = nil
	}
}

// applyFlags copies flags the user actually set into cfg.
func (a *app) applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}

	set("database", func() { cfg.Database = a.global.database })
	set("verbosity", func() { cfg.Log.Level = a.global.verbosity })
	set("log", func() { cfg.Log.File = a.global.logFile })
	set("log-format", func() { cfg.Log.Format = a.global.logFormat })
	set("no-progress", func() { cfg.NoProgress = a.global.noProgress })
	set("workers", func() { cfg.Workers = a.scan.workers })
	set("hash", func() { cfg.Hash = a.scan.hash })
	set("cache-file", func() { cfg.CacheFile = a.scan.cacheFile })
	set("exclude", func() { cfg.ExcludePatterns = a.scan.excludes })
	set("min-size", func() { cfg.MinSize = a.scan.minSize })
	set("listen", func() { cfg.Listen = a.listen })
}

// openEngine opens the index and hash cache named by the configuration.
// The returned function closes both.
func (a *app) openEngine() (*engine.Engine, func() error, error) {
	idx, err := index.Open(a.cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("open index: %w", err)
	}

	hashCache, err := cache.Open(a.cfg.CacheFile)
	if err != nil {
		_ = idx.Close()
		return nil, nil, fmt.Errorf("open cache: %w", err)
	}

	h := hasher.New(a.cfg.Algorithm(), hashCache)
	eng := engine.New(idx, h, engine.Options{
		Workers:      a.cfg.Workers,
		MinSize:      a.cfg.MinSizeBytes(),
		Excludes:     a.cfg.ExcludePatterns,
		ShowProgress: progress.Enabled(!a.cfg.NoProgress),
	}, a.log)

	closeAll := func() error {
		return errors.Join(hashCache.Close(), idx.Close())
	}
	return eng, closeAll, nil
}

// statsFields renders scan counters as log fields.
func statsFields(st engine.Stats) logrus.Fields {
	return logrus.Fields{
		"roots":       st.Roots,
		"files":       st.Files,
		"scan_errors": st.ScanErrors,
		"candidates":  st.Candidates,
		"hashed":      st.Hashed,
		"failed":      st.Failed,
	}
}

// openOutput returns stdout for "-" or "", otherwise creates the file.
func openOutput(path string, stdout io.Writer) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open output file: %w", err)
	}
	return f, f.Close, nil
}
