/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doverlof/jira-bi.zone/internal/config"
	"github.com/doverlof/jira-bi.zone/internal/domain"
	"github.com/doverlof/jira-bi.zone/internal/services"
	"github.com/rs/zerolog"
)

// Policy bounds the retries of one run. Max counts retries, not attempts.
type Policy struct {
	Max   int
	Delay func(retry int) time.Duration
}

// Exponential waits base, 2*base, 4*base, ...
func Exponential(base time.Duration) func(int) time.Duration {
	return func(retry int) time.Duration { return base << retry }
}

func Fixed(d time.Duration) func(int) time.Duration {
	return func(int) time.Duration { return d }
}

func ScheduledPolicy(cfg config.Config) Policy {
	return Policy{Max: cfg.RetryMax, Delay: Exponential(cfg.RetryBase)}
}

func StartupPolicy(cfg config.Config) Policy {
	return Policy{Max: cfg.StartupRetryMax, Delay: Fixed(cfg.StartupRetryDelay)}
}

// NoRetry runs once.
var NoRetry = Policy{Delay: Fixed(0)}

// Retryable reports whether err is a transient tracker or mail failure.
func Retryable(err error) bool {
	return errors.Is(err, domain.ErrUnavailable) || errors.Is(err, services.ErrSendFailed)
}

// Retry calls fn until it succeeds, fails permanently, runs out of retries or
// ctx is done.
func Retry(ctx context.Context, p Policy, log zerolog.Logger, fn func(ctx context.Context) error) error {
	for retry := 0; ; retry++ {
		err := fn(ctx)
		if err == nil || !Retryable(err) {
			return err
		}
		if retry >= p.Max {
			if p.Max > 0 {
				return fmt.Errorf("giving up after %d retries: %w", retry, err)
			}
			return err
		}
		d := p.Delay(retry)
		log.Warn().Err(err).Int("retry", retry+1).Int("max", p.Max).Dur("delay", d).Msg("run failed; retrying")
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
