package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/doverlof/jira-bi.zone/internal/config"
	"github.com/doverlof/jira-bi.zone/internal/domain"
	"github.com/doverlof/jira-bi.zone/internal/repo"
	"github.com/rs/zerolog"
)

const (
	testTitleField  = "customfield_100"
	testChangeField = "customfield_200"
)

type fakeJira struct {
	issues    []domain.Issue
	total     int
	searchErr error
	searches  int
	jql       string
	fields    []string
	max       int

	defs       []domain.FieldDef
	defsErr    error
	fieldCalls int

	versions     []domain.Version
	versionsErr  error
	versionCalls int

	issue    *domain.Issue
	issueErr error
}

func (f *fakeJira) Search(_ context.Context, jql string, fields []string, max int) (*domain.SearchResult, error) {
	f.searches++
	f.jql, f.fields, f.max = jql, fields, max
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	total := f.total
	if total == 0 {
		total = len(f.issues)
	}
	return &domain.SearchResult{Issues: f.issues, Total: total}, nil
}

func (f *fakeJira) Fields(context.Context) ([]domain.FieldDef, error) {
	f.fieldCalls++
	return f.defs, f.defsErr
}

func (f *fakeJira) Issue(_ context.Context, key string, _ []string) (*domain.Issue, error) {
	if f.issueErr != nil {
		return nil, f.issueErr
	}
	if f.issue == nil {
		return nil, domain.ErrNotFound
	}
	return f.issue, nil
}

func (f *fakeJira) ProjectVersions(context.Context, string) ([]domain.Version, error) {
	f.versionCalls++
	return f.versions, f.versionsErr
}

type sentMail struct {
	to      []string
	subject string
	body    string
}

type fakeMail struct {
	err  error
	html []sentMail
	text []sentMail
}

func (m *fakeMail) SendHTML(_ context.Context, to []string, subject, html string) error {
	if m.err != nil {
		return m.err
	}
	m.html = append(m.html, sentMail{to: to, subject: subject, body: html})
	return nil
}

func (m *fakeMail) SendText(_ context.Context, to []string, subject, text string) error {
	if m.err != nil {
		return m.err
	}
	m.text = append(m.text, sentMail{to: to, subject: subject, body: text})
	return nil
}

type fakeHistory struct {
	started  []string
	outcomes []repo.RunOutcome
	last     *repo.LastRun
}

func (h *fakeHistory) StartJobRun(_ context.Context, kind string, _ domain.ReportWindow) (int64, error) {
	h.started = append(h.started, kind)
	return int64(len(h.started)), nil
}

func (h *fakeHistory) FinishJobRun(_ context.Context, _ int64, o repo.RunOutcome) error {
	h.outcomes = append(h.outcomes, o)
	return nil
}

func (h *fakeHistory) GetLastRun(context.Context) (*repo.LastRun, error) {
	if h.last == nil {
		return nil, errors.New("no runs")
	}
	return h.last, nil
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		TZ:                "UTC",
		StateDir:          t.TempDir(),
		JiraProjectKey:    "CPT",
		JiraExternalURL:   "https://jira.example.com",
		JiraMaxResults:    100,
		ReleaseTitleField: testTitleField,
		ChangeField:       testChangeField,
		Recipients:        []string{"team@example.com", "qa@example.com"},
		ProductName:       "Continuous Pentest",
		ProjectName:       "EASM",
		ReportDay:         8,
		ReportHour:        13,
		ReportMinute:      32,
		DedupEnabled:      true,
		Categories:        append([]config.Category(nil), config.DefaultCategories...),
	}
}

func newTestService(cfg config.Config, jira *fakeJira, mail *fakeMail, history RunHistory) *Service {
	s := New(cfg, zerolog.Nop(), jira, mail, history)
	s.now = func() time.Time { return time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC) }
	return s
}

func completed(key, change, title string) domain.Issue {
	fields := map[string]any{"summary": "summary of " + key}
	if change != "" {
		fields[testChangeField] = map[string]any{"value": change}
	} else {
		fields[testChangeField] = nil
	}
	if title != "" {
		fields[testTitleField] = title
	}
	return domain.Issue{Key: key, Fields: fields}
}
