/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/doverlof/jira-bi.zone/internal/domain"
	"github.com/rs/zerolog"
)

const jqlTimeLayout = "2006-01-02 15:04"

var baseFields = []string{"key", "summary", "assignee", "updated", "status"}

type searcher interface {
	Search(ctx context.Context, jql string, fields []string, max int) (*domain.SearchResult, error)
}

// BuildJQL selects issues of project that moved to Done inside w.
// DURING includes both bounds, so an issue finishing in the anchor minute
// matches two consecutive windows; dedup keeps it out of the second digest.
func BuildJQL(project string, w domain.ReportWindow) string {
	return fmt.Sprintf(`project = "%s" AND status CHANGED TO "Done" DURING ("%s", "%s")`,
		project, w.Start.Format(jqlTimeLayout), w.End.Format(jqlTimeLayout))
}

// FieldList is the base field set followed by every non-empty id.
func FieldList(ids ...string) []string {
	out := append([]string(nil), baseFields...)
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

type Fetcher struct {
	jira    searcher
	project string
	max     int
	log     zerolog.Logger
}

func NewFetcher(jira searcher, project string, max int, log zerolog.Logger) *Fetcher {
	if max <= 0 {
		max = 100
	}
	return &Fetcher{jira: jira, project: project, max: max, log: log.With().Str("component", "fetch").Logger()}
}

// FetchCompleted returns issues completed within w. There is no pagination:
// at most max issues come back and a warning is logged when more exist.
func (f *Fetcher) FetchCompleted(ctx context.Context, w domain.ReportWindow, releaseTitleID, changeID string) (*domain.SearchResult, error) {
	jql := BuildJQL(f.project, w)
	f.log.Info().Str("jql", jql).Msg("searching completed issues")
	res, err := f.jira.Search(ctx, jql, FieldList(releaseTitleID, changeID), f.max)
	if err != nil {
		if !errors.Is(err, domain.ErrUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
		}
		return nil, fmt.Errorf("fetch completed issues: %w", err)
	}
	if res.Total > len(res.Issues) {
		f.log.Warn().Int("total", res.Total).Int("returned", len(res.Issues)).Msg("more completed issues than the result cap; digest is truncated")
	}
	f.log.Info().Int("issues", len(res.Issues)).Msg("completed issues fetched")
	return res, nil
}
