/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/doverlof/jira-bi.zone/internal/config"
	"github.com/doverlof/jira-bi.zone/internal/domain"
	"github.com/doverlof/jira-bi.zone/internal/services"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ErrBusy means another run holds the run lock.
var ErrBusy = errors.New("another run is in progress")

type Runner interface {
	Run(ctx context.Context, opts services.RunOptions) (services.Result, error)
}

// Locker is a non-blocking run lock; release must be called when ok is true.
type Locker interface {
	TryLock(ctx context.Context) (ok bool, release func(), err error)
}

// Executor runs digests under the run lock with a retry policy.
type Executor struct {
	svc  Runner
	lock Locker
	log  zerolog.Logger
}

func NewExecutor(svc Runner, lock Locker, log zerolog.Logger) *Executor {
	return &Executor{svc: svc, lock: lock, log: log.With().Str("component", "executor").Logger()}
}

// WithLock runs fn while holding the run lock. A busy lock yields ErrBusy.
func (e *Executor) WithLock(ctx context.Context, fn func(ctx context.Context) error) error {
	ok, release, err := e.lock.TryLock(ctx)
	if err != nil {
		return err
	}
	if !ok {
		e.log.Info().Msg("run lock busy; skipping")
		return ErrBusy
	}
	defer release()
	return fn(ctx)
}

func (e *Executor) Run(ctx context.Context, opts services.RunOptions, p Policy) (services.Result, error) {
	var res services.Result
	err := e.WithLock(ctx, func(ctx context.Context) error {
		return Retry(ctx, p, e.log, func(ctx context.Context) error {
			var err error
			res, err = e.svc.Run(ctx, opts)
			return err
		})
	})
	return res, err
}

// anchorSchedule fires on the monthly report anchor, clamped to the month end.
type anchorSchedule struct {
	anchor domain.Anchor
}

func (s anchorSchedule) Next(t time.Time) time.Time {
	return services.NextAnchor(t, s.anchor)
}

type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug().Fields(kv).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error().Err(err).Fields(kv).Msg("cron: " + msg)
}

const (
	defaultLockPoll = 10 * time.Second
	defaultLockWait = 30 * time.Minute
)

type Cron struct {
	cfg    config.Config
	log    zerolog.Logger
	exec   *Executor
	c      *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// busy-lock polling interval and bound for a trigger
	lockPoll time.Duration
	lockWait time.Duration
}

func NewCron(cfg config.Config, log zerolog.Logger, exec *Executor) *Cron {
	l := log.With().Str("component", "cron").Logger()
	cl := cronLogger{log: l}
	c := cron.New(
		cron.WithLocation(cfg.Location()),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	ctx, cancel := context.WithCancel(context.Background())
	cr := &Cron{
		cfg:      cfg,
		log:      l,
		exec:     exec,
		c:        c,
		ctx:      ctx,
		cancel:   cancel,
		lockPoll: defaultLockPoll,
		lockWait: defaultLockWait,
	}
	c.Schedule(anchorSchedule{anchor: cfg.Anchor()}, cron.FuncJob(cr.scheduled))
	return cr
}

// Start begins scheduling and, when enabled, fires the startup catch-up run.
func (cr *Cron) Start() {
	cr.c.Start()
	cr.log.Info().Time("next", cr.Next()).Msg("cron: scheduler started")
	if cr.cfg.StartupRun {
		cr.wg.Add(1)
		go func() {
			defer cr.wg.Done()
			cr.startup()
		}()
	}
}

// Stop cancels in-flight retries and waits for running jobs.
func (cr *Cron) Stop() {
	cr.cancel()
	<-cr.c.Stop().Done()
	cr.wg.Wait()
}

func (cr *Cron) Next() time.Time {
	for _, e := range cr.c.Entries() {
		if !e.Next.IsZero() {
			return e.Next
		}
	}
	return services.NextAnchor(time.Now().In(cr.cfg.Location()), cr.cfg.Anchor())
}

func (cr *Cron) scheduled() {
	cr.log.Info().Msg("cron: monthly digest")
	cr.run(services.RunOptions{}, ScheduledPolicy(cr.cfg))
}

func (cr *Cron) startup() {
	defer func() {
		if r := recover(); r != nil {
			cr.log.Error().Interface("panic", r).Msg("cron: startup run panicked")
		}
	}()
	cr.log.Info().Msg("cron: startup catch-up digest")
	cr.run(services.RunOptions{Startup: true}, StartupPolicy(cr.cfg))
}

func (cr *Cron) run(opts services.RunOptions, p Policy) {
	res, err := cr.runWhenFree(opts, p)
	switch {
	case errors.Is(err, ErrBusy):
		cr.log.Error().Dur("waited", cr.lockWait).Msg("cron: run lock still busy; digest skipped")
	case err != nil:
		cr.log.Error().Err(err).Str("status", string(res.Status)).Msg("cron: digest failed; waiting for next trigger")
	default:
		cr.log.Info().Str("status", string(res.Status)).Int("fetched", res.Fetched).Int("included", res.Included).Msg("cron: digest finished")
	}
}

// runWhenFree retries a busy lock every lockPoll until lockWait has passed.
func (cr *Cron) runWhenFree(opts services.RunOptions, p Policy) (services.Result, error) {
	deadline := time.Now().Add(cr.lockWait)
	for {
		res, err := cr.exec.Run(cr.ctx, opts, p)
		if !errors.Is(err, ErrBusy) || !time.Now().Before(deadline) {
			return res, err
		}
		cr.log.Info().Dur("poll", cr.lockPoll).Msg("cron: run lock busy; waiting")
		t := time.NewTimer(cr.lockPoll)
		select {
		case <-cr.ctx.Done():
			t.Stop()
			return res, cr.ctx.Err()
		case <-t.C:
		}
	}
}
