/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

const (
	SentFile      = "jira_notifications_state.json"
	ProcessedFile = "jira_processed_state.json"
)

type sentDoc struct {
	SentNotifications []string `json:"sent_notifications"`
	LastUpdated       string   `json:"last_updated"`
}

type processedDoc struct {
	ProcessedIssues []string `json:"processed_issues"`
	LastUpdated     string   `json:"last_updated"`
}

// NotificationState tracks which issue keys were emailed (Sent) and which were
// considered handled (Processed). It is not safe for concurrent use; runs are
// serialised by the run lock.
type NotificationState struct {
	dir       string
	Sent      map[string]struct{}
	Processed map[string]struct{}
	log       zerolog.Logger
	now       func() time.Time
}

func New(dir string, log zerolog.Logger) *NotificationState {
	return &NotificationState{
		dir:       dir,
		Sent:      map[string]struct{}{},
		Processed: map[string]struct{}{},
		log:       log.With().Str("component", "state").Logger(),
		now:       time.Now,
	}
}

// Load reads both state files from dir. A missing file is an empty set; an
// unreadable or corrupt one is logged and also treated as empty.
func Load(dir string, log zerolog.Logger) *NotificationState {
	s := New(dir, log)
	var sd sentDoc
	if err := readJSON(filepath.Join(dir, SentFile), &sd); err != nil {
		s.log.Error().Err(err).Str("file", SentFile).Msg("load sent notifications failed; starting empty")
	} else {
		s.Sent = toSet(sd.SentNotifications)
	}
	var pd processedDoc
	if err := readJSON(filepath.Join(dir, ProcessedFile), &pd); err != nil {
		s.log.Error().Err(err).Str("file", ProcessedFile).Msg("load processed issues failed; starting empty")
	} else {
		s.Processed = toSet(pd.ProcessedIssues)
	}
	s.log.Info().Int("sent", len(s.Sent)).Int("processed", len(s.Processed)).Msg("state loaded")
	return s
}

func readJSON(path string, out any) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

func toSet(keys []string) map[string]struct{} {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k != "" {
			m[k] = struct{}{}
		}
	}
	return m
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s *NotificationState) IsSent(key string) bool {
	_, ok := s.Sent[key]
	return ok
}

func (s *NotificationState) IsProcessed(key string) bool {
	_, ok := s.Processed[key]
	return ok
}

func (s *NotificationState) MarkSent(keys ...string) {
	for _, k := range keys {
		s.Sent[k] = struct{}{}
	}
}

func (s *NotificationState) MarkProcessed(keys ...string) {
	for _, k := range keys {
		s.Processed[k] = struct{}{}
	}
}

func (s *NotificationState) Reset() {
	s.Sent = map[string]struct{}{}
	s.Processed = map[string]struct{}{}
}

// Save overwrites both files. Each file is replaced atomically, but the pair
// is not: a crash between the two writes leaves them out of step.
func (s *NotificationState) Save() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("state: mkdir %s: %w", s.dir, err)
	}
	stamp := s.now().Format(time.RFC3339)
	if err := writeJSON(filepath.Join(s.dir, SentFile), sentDoc{SentNotifications: sortedKeys(s.Sent), LastUpdated: stamp}); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(s.dir, ProcessedFile), processedDoc{ProcessedIssues: sortedKeys(s.Processed), LastUpdated: stamp}); err != nil {
		return err
	}
	s.log.Info().Int("sent", len(s.Sent)).Int("processed", len(s.Processed)).Msg("state saved")
	return nil
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("state: temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(append(b, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("state: write %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("state: sync %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("state: close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("state: rename into %s: %w", path, err)
	}
	return nil
}
