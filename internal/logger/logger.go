/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package logger

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/doverlof/jira-bi.zone/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds the process logger. Console output in dev, JSON otherwise; when
// cfg.LogFile is set every event is also appended there as JSON. The returned
// closer releases the log file.
func New(cfg config.Config) (zerolog.Logger, io.Closer) {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var stdout io.Writer = os.Stdout
	if cfg.AppEnv == "dev" {
		stdout = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	var closer io.Closer = nopCloser{}
	out := stdout
	var fileErr error
	if cfg.LogFile != "" {
		f, err := openLogFile(cfg.LogFile)
		if err != nil {
			fileErr = err
		} else {
			out = zerolog.MultiLevelWriter(stdout, f)
			closer = f
		}
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	log.Logger = logger
	if fileErr != nil {
		logger.Warn().Err(fileErr).Str("path", cfg.LogFile).Msg("log file unavailable; logging to stdout only")
	}
	return logger, closer
}

func openLogFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
