package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var levels = map[string]logrus.Level{
	"DEBUG":    logrus.DebugLevel,
	"INFO":     logrus.InfoLevel,
	"WARN":     logrus.WarnLevel,
	"WARNING":  logrus.WarnLevel,
	"ERROR":    logrus.ErrorLevel,
	"CRITICAL": logrus.FatalLevel,
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func parseLevel(name string) (logrus.Level, error) {
	if name == "" {
		return logrus.WarnLevel, nil
	}
	if lvl, ok := levels[strings.ToUpper(name)]; ok {
		return lvl, nil
	}
	return logrus.WarnLevel, fmt.Errorf("unknown log level %q", name)
}

// NewLogger builds a logger from c. The returned closer releases the log
// file, if any.
func NewLogger(c LogConfig) (*logrus.Logger, io.Closer, error) {
	lvl, err := parseLevel(c.Level)
	if err != nil {
		return nil, nil, err
	}

	log := logrus.New()
	log.SetLevel(lvl)

	switch strings.ToLower(c.Format) {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: c.File == ""})
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", c.Format)
	}

	if c.File == "" {
		log.SetOutput(os.Stderr)
		return log, nopCloser{}, nil
	}

	f, err := os.OpenFile(c.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	log.SetOutput(f)
	return log, f, nil
}
