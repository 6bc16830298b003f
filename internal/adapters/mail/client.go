/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package mail

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doverlof/jira-bi.zone/internal/config"
	"github.com/doverlof/jira-bi.zone/internal/domain"
	"github.com/rs/zerolog"
	gomail "github.com/wneessen/go-mail"
)

// Client delivers messages over SMTP with mandatory STARTTLS.
type Client struct {
	host    string
	port    int
	user    string
	pass    string
	from    string
	timeout time.Duration
	log     zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
	timeout := cfg.SMTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		host:    cfg.SMTPServer,
		port:    cfg.SMTPPort,
		user:    cfg.EmailUser,
		pass:    cfg.EmailPassword,
		from:    cfg.EmailFrom,
		timeout: timeout,
		log:     log.With().Str("component", "smtp").Logger(),
	}
}

// SendHTML sends a single-part text/html message to all recipients.
func (c *Client) SendHTML(ctx context.Context, to []string, subject, html string) error {
	msg, err := c.newMessage(to, subject)
	if err != nil {
		return err
	}
	msg.SetBodyString(gomail.TypeTextHTML, html)
	return c.send(ctx, msg)
}

// SendText sends a text/plain message to all recipients.
func (c *Client) SendText(ctx context.Context, to []string, subject, text string) error {
	msg, err := c.newMessage(to, subject)
	if err != nil {
		return err
	}
	msg.SetBodyString(gomail.TypeTextPlain, text)
	return c.send(ctx, msg)
}

func (c *Client) newMessage(to []string, subject string) (*gomail.Msg, error) {
	if len(to) == 0 {
		return nil, errors.New("smtp: no recipients")
	}
	msg := gomail.NewMsg(gomail.WithCharset(gomail.CharsetUTF8))
	if err := msg.From(c.from); err != nil {
		return nil, fmt.Errorf("smtp: from %q: %w", c.from, err)
	}
	if err := msg.To(to...); err != nil {
		return nil, fmt.Errorf("smtp: recipients: %w", err)
	}
	msg.Subject(subject)
	msg.SetDate()
	return msg, nil
}

func (c *Client) send(ctx context.Context, msg *gomail.Msg) error {
	if c.host == "" {
		return errors.New("smtp: empty server")
	}
	opts := []gomail.Option{
		gomail.WithPort(c.port),
		gomail.WithTLSPolicy(gomail.TLSMandatory),
		gomail.WithTimeout(c.timeout),
	}
	if c.user != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(c.user),
			gomail.WithPassword(c.pass),
		)
	}
	cl, err := gomail.NewClient(c.host, opts...)
	if err != nil {
		return fmt.Errorf("smtp: client: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := cl.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp: %w: %w", domain.ErrUnavailable, err)
	}
	c.log.Debug().Str("host", c.host).Int("port", c.port).Msg("smtp message delivered")
	return nil
}
