/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/doverlof/jira-bi.zone/internal/jobs"
	"github.com/doverlof/jira-bi.zone/internal/services"
	"github.com/spf13/cobra"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the monthly scheduler (and the startup catch-up run) until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			cron := jobs.NewCron(a.cfg, a.log, a.exec)
			cron.Start()
			<-ctx.Done()
			a.log.Info().Msg("shutting down...")
			cron.Stop()
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	var startup, retry bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one digest for the current reporting window now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := services.RunOptions{Startup: startup}
			policy := jobs.NoRetry
			if retry {
				policy = jobs.ScheduledPolicy(a.cfg)
				if startup {
					policy = jobs.StartupPolicy(a.cfg)
				}
			}
			res, err := a.exec.Run(ctx, opts, policy)
			if errors.Is(err, jobs.ErrBusy) {
				return err
			}
			if werr := writeJSON(cmd.OutOrStdout(), res); werr != nil {
				return werr
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&startup, "startup", false, "run with startup semantics (skip only already mailed issues, subject prefix)")
	cmd.Flags().BoolVar(&retry, "retry", false, "retry transient failures with the configured policy")
	return cmd
}

func notifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notify KEY",
		Short: "Mail the single-issue notice for one issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			key := strings.ToUpper(strings.TrimSpace(args[0]))
			var res services.Result
			err = a.exec.WithLock(ctx, func(ctx context.Context) error {
				var nerr error
				res, nerr = a.svc.Notify(ctx, key)
				return nerr
			})
			if errors.Is(err, jobs.ErrBusy) {
				return err
			}
			if werr := writeJSON(cmd.OutOrStdout(), res); werr != nil {
				return werr
			}
			return err
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print state counts, the current window and the next run as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			return writeJSON(cmd.OutOrStdout(), a.svc.Status(ctx))
		},
	}
}

func resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Forget every sent and processed issue key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.exec.WithLock(ctx, a.svc.Reset); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "state reset")
			return err
		},
	}
}
