/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
	"context"

	"github.com/doverlof/jira-bi.zone/internal/domain"
	"github.com/rs/zerolog"
)

type Sender interface {
	SendHTML(ctx context.Context, to []string, subject, html string) error
	SendText(ctx context.Context, to []string, subject, text string) error
}

// Dispatcher delivers digests to the configured recipients. Transport errors
// are logged and reported as false.
type Dispatcher struct {
	mail       Sender
	recipients []string
	log        zerolog.Logger
}

func NewDispatcher(mail Sender, recipients []string, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{mail: mail, recipients: recipients, log: log.With().Str("component", "dispatch").Logger()}
}

func (d *Dispatcher) SendDigest(ctx context.Context, dg domain.Digest) bool {
	if dg.Empty() {
		d.log.Info().Msg("empty digest; nothing sent")
		return false
	}
	if err := d.mail.SendHTML(ctx, d.recipients, dg.Subject, dg.HTML); err != nil {
		d.log.Error().Err(err).Str("subject", dg.Subject).Msg("digest send failed")
		return false
	}
	d.log.Info().Str("subject", dg.Subject).Strs("to", d.recipients).Int("issues", len(dg.Keys)).Msg("digest sent")
	return true
}

func (d *Dispatcher) SendNotice(ctx context.Context, subject, text string) bool {
	if err := d.mail.SendText(ctx, d.recipients, subject, text); err != nil {
		d.log.Error().Err(err).Str("subject", subject).Msg("notice send failed")
		return false
	}
	d.log.Info().Str("subject", subject).Strs("to", d.recipients).Msg("notice sent")
	return true
}
