/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package domain

import "time"

// Issue is a snapshot of a Jira issue as returned by search. Fields is keyed by
// field id (summary, status, customfield_10010, ...).
type Issue struct {
	Key    string         `json:"key"`
	Fields map[string]any `json:"fields"`
}

// Field returns the raw value of a field and whether the issue carries it at all.
func (i Issue) Field(id string) (any, bool) {
	if id == "" || i.Fields == nil {
		return nil, false
	}
	v, ok := i.Fields[id]
	return v, ok
}

type SearchResult struct {
	Issues []Issue `json:"issues"`
	Total  int     `json:"total"`
}

// FieldDef is one entry of the tracker field catalogue.
type FieldDef struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Name   string `json:"name"`
	Custom bool   `json:"custom"`
}

type Version struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Released    bool   `json:"released"`
	ReleaseDate string `json:"releaseDate"`
}

// ReportWindow spans two consecutive anchors. The search includes both bounds.
type ReportWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Anchor is the recurring day-of-month/hour/minute reporting boundary.
type Anchor struct {
	Day    int `json:"day"`
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// Digest is a rendered email. Empty Subject means there is nothing to send.
type Digest struct {
	Subject string
	HTML    string
	Keys    []string
}

func (d Digest) Empty() bool { return d.Subject == "" && d.HTML == "" }
