/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
	"context"
	"fmt"

	"github.com/doverlof/jira-bi.zone/internal/adapters/jira"
	"github.com/doverlof/jira-bi.zone/internal/adapters/mail"
	"github.com/doverlof/jira-bi.zone/internal/config"
	"github.com/doverlof/jira-bi.zone/internal/jobs"
	"github.com/doverlof/jira-bi.zone/internal/logger"
	"github.com/doverlof/jira-bi.zone/internal/repo"
	"github.com/doverlof/jira-bi.zone/internal/services"
	"github.com/doverlof/jira-bi.zone/internal/state"
	"github.com/rs/zerolog"
)

type app struct {
	cfg     config.Config
	log     zerolog.Logger
	svc     *services.Service
	exec    *jobs.Executor
	closers []func()
}

// newApp loads configuration and wires adapters, history and the run lock.
// Postgres is used for run history and locking only when DB_DSN is set.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}

	log, closer := logger.New(cfg)
	a := &app{cfg: cfg, log: log}
	a.closers = append(a.closers, func() { _ = closer.Close() })

	// Adapters
	jc := jira.NewClient(cfg, log)
	mc := mail.NewClient(cfg, log)

	var history services.RunHistory
	var lock jobs.Locker = state.NewFileLock(cfg.StateDir)
	if cfg.DBDSN != "" {
		db, err := repo.Open(ctx, cfg, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		r := repo.NewRepository(db, log)
		if err := r.EnsureSchema(ctx); err != nil {
			a.Close()
			return nil, err
		}
		history = r
		lock = r
		log.Info().Msg("postgres run history and advisory lock enabled")
	}

	a.svc = services.New(cfg, log, jc, mc, history)
	a.exec = jobs.NewExecutor(a.svc, lock, log)
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
