/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
	"time"

	"github.com/doverlof/jira-bi.zone/internal/domain"
)

// anchorIn returns the anchor occurrence in the given month. Month overflow is
// normalised (month 0 is December of the previous year) and a day past the
// month end is clamped to the last day.
func anchorIn(year int, month time.Month, a domain.Anchor, loc *time.Location) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	last := first.AddDate(0, 1, -1).Day()
	day := a.Day
	if day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return time.Date(first.Year(), first.Month(), day, a.Hour, a.Minute, 0, 0, loc)
}

// ReportWindow is the month ending at the latest anchor at or before now.
// Both bounds are in now's location.
func ReportWindow(now time.Time, a domain.Anchor) domain.ReportWindow {
	loc := now.Location()
	end := anchorIn(now.Year(), now.Month(), a, loc)
	if end.After(now) {
		end = anchorIn(now.Year(), now.Month()-1, a, loc)
	}
	start := anchorIn(end.Year(), end.Month()-1, a, loc)
	return domain.ReportWindow{Start: start, End: end}
}

// NextAnchor is the first anchor strictly after t.
func NextAnchor(t time.Time, a domain.Anchor) time.Time {
	loc := t.Location()
	next := anchorIn(t.Year(), t.Month(), a, loc)
	if !next.After(t) {
		next = anchorIn(t.Year(), t.Month()+1, a, loc)
	}
	return next
}
