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

const (
	ReleaseTitleFieldName = "Release title"
	ChangeFieldName       = "Change"
)

// ErrFieldNotFound means the tracker has no field with the requested name.
var ErrFieldNotFound = errors.New("field not found")

type fieldLister interface {
	Fields(ctx context.Context) ([]domain.FieldDef, error)
}

// FieldResolver maps human field names to tracker field ids. Configured ids
// win; otherwise the field catalogue is listed once and matched by name.
// A resolver lives for a single run.
type FieldResolver struct {
	jira      fieldLister
	overrides map[string]string
	log       zerolog.Logger

	loaded  bool
	defs    []domain.FieldDef
	loadErr error
}

func NewFieldResolver(jira fieldLister, overrides map[string]string, log zerolog.Logger) *FieldResolver {
	return &FieldResolver{jira: jira, overrides: overrides, log: log.With().Str("component", "fields").Logger()}
}

func (r *FieldResolver) catalogue(ctx context.Context) ([]domain.FieldDef, error) {
	if r.loaded {
		return r.defs, r.loadErr
	}
	r.loaded = true
	defs, err := r.jira.Fields(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
		}
		r.loadErr = fmt.Errorf("list fields: %w", err)
		return nil, r.loadErr
	}
	r.defs = defs
	r.log.Debug().Int("fields", len(defs)).Msg("field catalogue loaded")
	return defs, nil
}

// Resolve returns the field id for name. Exact case-insensitive matches beat
// substring matches; ties go to the first field in tracker order.
func (r *FieldResolver) Resolve(ctx context.Context, name string) (string, error) {
	if id := strings.TrimSpace(r.overrides[name]); id != "" {
		r.log.Info().Str("name", name).Str("id", id).Msg("using configured field id")
		return id, nil
	}
	defs, err := r.catalogue(ctx)
	if err != nil {
		return "", err
	}
	want := strings.ToLower(strings.TrimSpace(name))
	for _, d := range defs {
		if strings.ToLower(strings.TrimSpace(d.Name)) == want {
			return d.ID, nil
		}
	}
	for _, d := range defs {
		if strings.Contains(strings.ToLower(d.Name), want) {
			return d.ID, nil
		}
	}
	return "", fmt.Errorf("%q: %w", name, ErrFieldNotFound)
}

// ResolveAll resolves the release title and change fields. Failures are
// logged and yield an empty id; the run continues without that field.
func (r *FieldResolver) ResolveAll(ctx context.Context) (releaseTitleID, changeID string) {
	resolve := func(name string) string {
		id, err := r.Resolve(ctx, name)
		switch {
		case errors.Is(err, ErrFieldNotFound):
			r.log.Warn().Str("name", name).Msg("field not found in tracker")
		case err != nil:
			r.log.Error().Err(err).Str("name", name).Msg("field lookup failed")
		default:
			r.log.Info().Str("name", name).Str("id", id).Msg("field resolved")
		}
		return id
	}
	return resolve(ReleaseTitleFieldName), resolve(ChangeFieldName)
}
