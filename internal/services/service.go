/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/doverlof/jira-bi.zone/internal/config"
	"github.com/doverlof/jira-bi.zone/internal/digest"
	"github.com/doverlof/jira-bi.zone/internal/domain"
	"github.com/doverlof/jira-bi.zone/internal/repo"
	"github.com/doverlof/jira-bi.zone/internal/state"
	"github.com/rs/zerolog"
)

// ErrSendFailed means the mail transport rejected or never received a digest.
var ErrSendFailed = errors.New("send failed")

type JiraClient interface {
	Search(ctx context.Context, jql string, fields []string, max int) (*domain.SearchResult, error)
	Fields(ctx context.Context) ([]domain.FieldDef, error)
	Issue(ctx context.Context, key string, fields []string) (*domain.Issue, error)
	ProjectVersions(ctx context.Context, projectKey string) ([]domain.Version, error)
}

// RunHistory records runs. Optional; a nil history disables recording.
type RunHistory interface {
	StartJobRun(ctx context.Context, kind string, w domain.ReportWindow) (int64, error)
	FinishJobRun(ctx context.Context, id int64, o repo.RunOutcome) error
	GetLastRun(ctx context.Context) (*repo.LastRun, error)
}

type RunStatus string

const (
	StatusSent               RunStatus = "sent"
	StatusNothingToSend      RunStatus = "nothing_to_send"
	StatusTrackerUnavailable RunStatus = "tracker_unavailable"
	StatusSendFailed         RunStatus = "send_failed"
	StatusNotFound           RunStatus = "not_found"
)

type RunOptions struct {
	Startup bool
}

func (o RunOptions) kind() string {
	if o.Startup {
		return "startup"
	}
	return "scheduled"
}

type Result struct {
	Status   RunStatus           `json:"status"`
	Message  string              `json:"message"`
	Window   domain.ReportWindow `json:"window"`
	Fetched  int                 `json:"fetched"`
	Included int                 `json:"included"`
}

// Status is the operator view printed by the status command.
type Status struct {
	Project    string              `json:"project"`
	Recipients []string            `json:"recipients"`
	StateDir   string              `json:"state_dir"`
	Sent       int                 `json:"sent_notifications"`
	Processed  int                 `json:"processed_issues"`
	Window     domain.ReportWindow `json:"current_window"`
	NextRun    time.Time           `json:"next_run"`
	LastRun    *repo.LastRun       `json:"last_run,omitempty"`
}

type Service struct {
	cfg      config.Config
	log      zerolog.Logger
	jira     JiraClient
	fetcher  *Fetcher
	renderer *digest.Renderer
	dispatch *Dispatcher
	history  RunHistory
	loc      *time.Location
	now      func() time.Time
}

// New wires the digest pipeline. jira and mail are required.
func New(cfg config.Config, log zerolog.Logger, jira JiraClient, mail Sender, history RunHistory) *Service {
	if jira == nil || mail == nil {
		panic("services: jira client and mail sender are required")
	}
	l := log.With().Str("component", "service").Logger()
	return &Service{
		cfg:      cfg,
		log:      l,
		jira:     jira,
		fetcher:  NewFetcher(jira, cfg.JiraProjectKey, cfg.JiraMaxResults, log),
		renderer: digest.NewRenderer(cfg, digest.NewMapping(cfg.Categories), log),
		dispatch: NewDispatcher(mail, cfg.Recipients, log),
		history:  history,
		loc:      cfg.Location(),
		now:      time.Now,
	}
}

func (s *Service) fieldOverrides() map[string]string {
	return map[string]string{
		ReleaseTitleFieldName: s.cfg.ReleaseTitleField,
		ChangeFieldName:       s.cfg.ChangeField,
	}
}

// Run executes one digest cycle: window, fields, fetch, dedup, render, send,
// persist. Tracker and send failures are returned wrapped in
// domain.ErrUnavailable or ErrSendFailed so callers can retry; every other
// outcome is reported through Result with a nil error.
func (s *Service) Run(ctx context.Context, opts RunOptions) (res Result, err error) {
	log := s.log.With().Str("run", opts.kind()).Logger()
	w := ReportWindow(s.now().In(s.loc), s.cfg.Anchor())
	res.Window = w
	log.Info().Time("start", w.Start).Time("end", w.End).Msg("digest run: start")

	runID := s.startRecord(ctx, opts.kind(), w)
	defer func() { s.finishRecord(ctx, runID, res, err) }()

	st := state.Load(s.cfg.StateDir, s.log)
	releaseID, changeID := NewFieldResolver(s.jira, s.fieldOverrides(), s.log).ResolveAll(ctx)

	found, err := s.fetcher.FetchCompleted(ctx, w, releaseID, changeID)
	if err != nil {
		log.Error().Err(err).Msg("tracker unavailable")
		res.Status = StatusTrackerUnavailable
		res.Message = "tracker unavailable"
		return res, err
	}
	res.Fetched = len(found.Issues)

	candidates := s.dedup(found.Issues, st, opts.Startup)
	log.Info().Int("fetched", res.Fetched).Int("candidates", len(candidates)).Msg("dedup applied")
	if len(candidates) == 0 {
		if opts.Startup && s.cfg.DedupEnabled && len(found.Issues) > 0 {
			st.MarkProcessed(issueKeys(found.Issues)...)
			if err := st.Save(); err != nil {
				log.Error().Err(err).Msg("state save failed")
			}
		}
		res.Status = StatusNothingToSend
		res.Message = "no new completed issues"
		log.Info().Msg("digest run: nothing to send")
		return res, nil
	}
	if len(digest.Filter(candidates, changeID)) == 0 {
		res.Status = StatusNothingToSend
		res.Message = "no completed issues carry a change value"
		log.Info().Msg("digest run: nothing to send")
		return res, nil
	}

	version := s.latestVersion(ctx)
	dg := s.renderer.Render(candidates, digest.Input{
		ReleaseTitleField: releaseID,
		ChangeField:       changeID,
		Version:           version,
		Startup:           opts.Startup,
	})
	if dg.Empty() {
		res.Status = StatusNothingToSend
		res.Message = "empty digest"
		return res, nil
	}

	if !s.dispatch.SendDigest(ctx, dg) {
		res.Status = StatusSendFailed
		res.Message = "digest send failed"
		return res, fmt.Errorf("digest %q: %w", dg.Subject, ErrSendFailed)
	}

	res.Included = len(dg.Keys)
	st.MarkSent(dg.Keys...)
	st.MarkProcessed(issueKeys(candidates)...)
	if err := st.Save(); err != nil {
		// the mail is out; a retry would duplicate it
		log.Error().Err(err).Msg("state save failed after send")
	}
	res.Status = StatusSent
	res.Message = dg.Subject
	log.Info().Int("included", res.Included).Str("subject", dg.Subject).Msg("digest run: done")
	return res, nil
}

// dedup drops keys already handled. Scheduled runs skip processed keys,
// startup runs skip keys that were already mailed.
func (s *Service) dedup(issues []domain.Issue, st *state.NotificationState, startup bool) []domain.Issue {
	if !s.cfg.DedupEnabled {
		return issues
	}
	out := make([]domain.Issue, 0, len(issues))
	for _, is := range issues {
		if startup && st.IsSent(is.Key) {
			continue
		}
		if !startup && st.IsProcessed(is.Key) {
			continue
		}
		out = append(out, is)
	}
	return out
}

func issueKeys(issues []domain.Issue) []string {
	keys := make([]string, 0, len(issues))
	for _, is := range issues {
		keys = append(keys, is.Key)
	}
	return keys
}

func (s *Service) latestVersion(ctx context.Context) string {
	vs, err := s.jira.ProjectVersions(ctx, s.cfg.JiraProjectKey)
	if err != nil {
		s.log.Warn().Err(err).Msg("project versions unavailable; digest without release")
		return ""
	}
	v, ok := LatestVersion(vs)
	if !ok {
		return ""
	}
	s.log.Info().Str("version", v.Name).Msg("latest release version")
	return v.Name
}

// LatestVersion picks the released version with the greatest release date.
// With nothing released it falls back to the highest numeric id.
func LatestVersion(vs []domain.Version) (domain.Version, bool) {
	var best domain.Version
	found := false
	for _, v := range vs {
		if !v.Released {
			continue
		}
		if !found || v.ReleaseDate > best.ReleaseDate {
			best, found = v, true
		}
	}
	if found {
		return best, true
	}
	bestID := int64(-1)
	for _, v := range vs {
		id, err := strconv.ParseInt(v.ID, 10, 64)
		if err != nil {
			continue
		}
		if id > bestID {
			best, bestID, found = v, id, true
		}
	}
	return best, found
}

// Notify mails the plain-text notice for a single issue and marks it sent.
func (s *Service) Notify(ctx context.Context, key string) (Result, error) {
	res := Result{}
	is, err := s.jira.Issue(ctx, key, []string{"summary"})
	if errors.Is(err, domain.ErrNotFound) {
		res.Status = StatusNotFound
		res.Message = fmt.Sprintf("issue %s not found", key)
		return res, err
	}
	if err != nil {
		if !errors.Is(err, domain.ErrUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
		}
		res.Status = StatusTrackerUnavailable
		res.Message = "tracker unavailable"
		return res, fmt.Errorf("issue %s: %w", key, err)
	}
	res.Fetched = 1

	summary, _ := is.Field("summary")
	subject, text := s.renderer.Notice(is.Key, digest.FieldText(summary))
	if !s.dispatch.SendNotice(ctx, subject, text) {
		res.Status = StatusSendFailed
		res.Message = "notice send failed"
		return res, fmt.Errorf("notice %s: %w", is.Key, ErrSendFailed)
	}

	st := state.Load(s.cfg.StateDir, s.log)
	st.MarkSent(is.Key)
	st.MarkProcessed(is.Key)
	if err := st.Save(); err != nil {
		s.log.Error().Err(err).Str("issue", is.Key).Msg("state save failed after notice")
	}
	res.Status = StatusSent
	res.Included = 1
	res.Message = subject
	return res, nil
}

func (s *Service) Status(ctx context.Context) Status {
	now := s.now().In(s.loc)
	st := state.Load(s.cfg.StateDir, s.log)
	out := Status{
		Project:    s.cfg.JiraProjectKey,
		Recipients: s.cfg.Recipients,
		StateDir:   s.cfg.StateDir,
		Sent:       len(st.Sent),
		Processed:  len(st.Processed),
		Window:     ReportWindow(now, s.cfg.Anchor()),
		NextRun:    NextAnchor(now, s.cfg.Anchor()),
	}
	if s.history != nil {
		lr, err := s.history.GetLastRun(ctx)
		if err != nil {
			s.log.Warn().Err(err).Msg("last run unavailable")
		}
		out.LastRun = lr
	}
	return out
}

// Reset forgets every sent and processed key.
func (s *Service) Reset(_ context.Context) error {
	st := state.Load(s.cfg.StateDir, s.log)
	st.Reset()
	if err := st.Save(); err != nil {
		return fmt.Errorf("reset state: %w", err)
	}
	s.log.Info().Str("dir", s.cfg.StateDir).Msg("state reset")
	return nil
}

func (s *Service) startRecord(ctx context.Context, kind string, w domain.ReportWindow) int64 {
	if s.history == nil {
		return 0
	}
	id, err := s.history.StartJobRun(ctx, kind, w)
	if err != nil {
		s.log.Error().Err(err).Msg("start job run failed")
		return 0
	}
	return id
}

func (s *Service) finishRecord(ctx context.Context, id int64, res Result, runErr error) {
	if s.history == nil || id == 0 {
		return
	}
	o := repo.RunOutcome{
		Fetched:  res.Fetched,
		Included: res.Included,
		Success:  runErr == nil,
		Status:   string(res.Status),
	}
	if runErr != nil {
		o.Error = runErr.Error()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.history.FinishJobRun(ctx, id, o); err != nil {
		s.log.Error().Err(err).Int64("run_id", id).Msg("finish job run failed")
	}
}
