/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package digest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/doverlof/jira-bi.zone/internal/config"
	"github.com/doverlof/jira-bi.zone/internal/domain"
)

// CategoryMapping translates raw classification values into display
// categories and fixes the order in which known categories are listed.
type CategoryMapping struct {
	display map[string]string
	order   []string
}

func NewMapping(cats []config.Category) CategoryMapping {
	m := CategoryMapping{display: make(map[string]string, len(cats))}
	seen := map[string]bool{}
	for _, c := range cats {
		m.display[c.Raw] = c.Display
		if !seen[c.Display] {
			seen[c.Display] = true
			m.order = append(m.order, c.Display)
		}
	}
	return m
}

func DefaultMapping() CategoryMapping { return NewMapping(config.DefaultCategories) }

// Display returns the display category for raw; unknown values pass through.
func (m CategoryMapping) Display(raw string) string {
	if d, ok := m.display[raw]; ok {
		return d
	}
	return raw
}

func (m CategoryMapping) Order() []string { return append([]string(nil), m.order...) }

// FieldText normalises a classification value to text. Option objects yield
// their "value" only, lists are joined, and nil, false, zero and blank strings
// all yield "".
func FieldText(v any) string { return fieldText(v, false) }

// DisplayText is FieldText that also accepts an option object's "name".
func DisplayText(v any) string { return fieldText(v, true) }

func fieldText(v any, nameFallback bool) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case bool:
		if !t {
			return ""
		}
		return "true"
	case float64:
		if t == 0 {
			return ""
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case map[string]any:
		if val, ok := t["value"]; ok || !nameFallback {
			return fieldText(val, nameFallback)
		}
		return fieldText(t["name"], nameFallback)
	case []any:
		vals := make([]string, 0, len(t))
		for _, it := range t {
			if s := fieldText(it, nameFallback); s != "" {
				vals = append(vals, s)
			}
		}
		return strings.Join(vals, ", ")
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// Filter keeps issues whose classification field is present and non-empty.
// An empty field id keeps nothing.
func Filter(issues []domain.Issue, changeField string) []domain.Issue {
	out := make([]domain.Issue, 0, len(issues))
	for _, is := range issues {
		v, ok := is.Field(changeField)
		if !ok {
			continue
		}
		if FieldText(v) == "" {
			continue
		}
		out = append(out, is)
	}
	return out
}

type Category struct {
	Name   string
	Issues []domain.Issue
}

// Grouping is the ordered category list of one digest.
type Grouping struct {
	Categories []Category
	Total      int
}

// First returns the first issue in display order.
func (g Grouping) First() (domain.Issue, bool) {
	for _, c := range g.Categories {
		if len(c.Issues) > 0 {
			return c.Issues[0], true
		}
	}
	return domain.Issue{}, false
}

// Keys lists issue keys in display order.
func (g Grouping) Keys() []string {
	keys := make([]string, 0, g.Total)
	for _, c := range g.Categories {
		for _, is := range c.Issues {
			keys = append(keys, is.Key)
		}
	}
	return keys
}

// Group filters issues and buckets them by display category. Known
// categories come first in mapping order, then unmapped values in the order
// they were first seen. Issue order within a category follows the input.
func Group(issues []domain.Issue, changeField string, m CategoryMapping) Grouping {
	filtered := Filter(issues, changeField)
	buckets := map[string][]domain.Issue{}
	var seen []string
	for _, is := range filtered {
		v, _ := is.Field(changeField)
		name := m.Display(FieldText(v))
		if _, ok := buckets[name]; !ok {
			seen = append(seen, name)
		}
		buckets[name] = append(buckets[name], is)
	}

	g := Grouping{Total: len(filtered)}
	known := map[string]bool{}
	for _, name := range m.order {
		known[name] = true
		if list, ok := buckets[name]; ok {
			g.Categories = append(g.Categories, Category{Name: name, Issues: list})
		}
	}
	for _, name := range seen {
		if known[name] {
			continue
		}
		g.Categories = append(g.Categories, Category{Name: name, Issues: buckets[name]})
	}
	return g
}
