/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/doverlof/jira-bi.zone/internal/config"
	"github.com/doverlof/jira-bi.zone/internal/domain"
	"github.com/rs/zerolog"
)

const maxAttempts = 3

// APIError is a non-2xx answer from Jira.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jira api status=%d body=%s", e.Status, e.Body)
}

func (e *APIError) retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

type Client struct {
	baseURL string
	token   string
	user    string
	pass    string
	http    *http.Client
	log     zerolog.Logger
	backoff time.Duration
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.JiraBaseURL,
		token:   cfg.JiraPAT,
		user:    cfg.JiraUsername,
		pass:    cfg.JiraPassword,
		http:    &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "jira").Logger(),
		backoff: 300 * time.Millisecond,
	}
}

func (c *Client) apiURL(path string, q url.Values) string {
	base := strings.TrimRight(c.baseURL, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := base + path
	if len(q) > 0 {
		u = u + "?" + q.Encode()
	}
	return u
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	} else if c.user != "" && c.pass != "" {
		req.SetBasicAuth(c.user, c.pass)
	}
}

// getJSON issues a GET and decodes the body into out. 429/5xx and network
// errors are retried with exponential backoff; when attempts run out the error
// wraps domain.ErrUnavailable. 404 wraps domain.ErrNotFound.
func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	if c.baseURL == "" {
		return errors.New("jira: empty baseURL")
	}
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			wait := c.backoff * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return fmt.Errorf("jira: %w: %w", domain.ErrUnavailable, ctx.Err())
			case <-time.After(wait):
			}
		}
		err := c.do(ctx, u, out)
		if err == nil {
			return nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.retryable() {
			if apiErr.Status == http.StatusNotFound {
				return fmt.Errorf("%w: %w", domain.ErrNotFound, apiErr)
			}
			return err
		}
		lastErr = err
		c.log.Warn().Err(err).Int("attempt", attempt+1).Msg("jira request failed")
	}
	return fmt.Errorf("jira: %w: %w", domain.ErrUnavailable, lastErr)
}

func (c *Client) do(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("jira: decode %s: %w", req.URL.Path, err)
	}
	return nil
}

// Search runs a JQL query returning at most max issues with only the listed fields.
func (c *Client) Search(ctx context.Context, jql string, fields []string, max int) (*domain.SearchResult, error) {
	if jql == "" {
		return nil, errors.New("jira: empty jql")
	}
	q := url.Values{}
	q.Set("jql", jql)
	if len(fields) > 0 {
		q.Set("fields", strings.Join(fields, ","))
	}
	if max > 0 {
		q.Set("maxResults", strconv.Itoa(max))
	}
	var out domain.SearchResult
	if err := c.getJSON(ctx, c.apiURL("/rest/api/2/search", q), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Issue fetches a single issue. An empty field list asks for every field.
func (c *Client) Issue(ctx context.Context, key string, fields []string) (*domain.Issue, error) {
	if key == "" {
		return nil, errors.New("jira: empty issue key")
	}
	q := url.Values{}
	if len(fields) > 0 {
		q.Set("fields", strings.Join(fields, ","))
	}
	var out domain.Issue
	if err := c.getJSON(ctx, c.apiURL("/rest/api/2/issue/"+url.PathEscape(key), q), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Fields lists the field catalogue in tracker order.
func (c *Client) Fields(ctx context.Context) ([]domain.FieldDef, error) {
	var out []domain.FieldDef
	if err := c.getJSON(ctx, c.apiURL("/rest/api/2/field", nil), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ProjectVersions lists the fix versions of a project.
func (c *Client) ProjectVersions(ctx context.Context, projectKey string) ([]domain.Version, error) {
	if projectKey == "" {
		return nil, errors.New("jira: empty project key")
	}
	var out []domain.Version
	path := "/rest/api/2/project/" + url.PathEscape(projectKey) + "/versions"
	if err := c.getJSON(ctx, c.apiURL(path, nil), &out); err != nil {
		return nil, err
	}
	return out, nil
}
