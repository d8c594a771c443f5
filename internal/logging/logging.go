// Package logging constructs the process-wide structured logger from
// configuration, adapting nabbar-golib's logger package's level/formatter
// split onto a direct logrus.Logger instead of its larger hook-based
// façade: this daemon needs one configurable sink, not the pluggable
// multi-hook registry a general-purpose library consumer needs.
package logging

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/solus-project/peerdirectoryd/internal/config"
)

// New builds a *logrus.Logger from cfg.LogLevel/cfg.LogFormat, writing to
// stderr so stdout stays free for any future interactive use.
func New(cfg config.Config) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logging: invalid level %q: %w", cfg.LogLevel, err)
	}
	log.SetLevel(level)

	switch cfg.LogFormat {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	default:
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return log, nil
}
