package digest

import (
	"strings"
	"testing"

	"github.com/doverlof/jira-bi.zone/internal/config"
	"github.com/doverlof/jira-bi.zone/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const titleField = "customfield_100"

func newTestRenderer() *Renderer {
	return NewRenderer(config.Config{
		ProductName:     "Continuous Pentest",
		ProjectName:     "EASM",
		JiraProjectKey:  "CPT",
		JiraExternalURL: "https://jira.example.com/",
	}, DefaultMapping(), zerolog.Nop())
}

func titled(key, change, title string) domain.Issue {
	is := issue(key, map[string]any{"value": change})
	if title != "" {
		is.Fields[titleField] = title
	}
	return is
}

func TestSubject(t *testing.T) {
	r := newTestRenderer()
	one := Group([]domain.Issue{issue("CPT-7", "Bug fixes")}, changeField, r.mapping)
	two := Group([]domain.Issue{issue("CPT-7", "Bug fixes"), issue("CPT-8", "Bug fixes")}, changeField, r.mapping)

	assert.Equal(t, "Issue CPT-7 completed", r.Subject(one, "", false))
	assert.Equal(t, "[Startup] Issue CPT-7 completed", r.Subject(one, "", true))
	assert.Equal(t, "Completed issues: 2", r.Subject(two, "", false))
	assert.Equal(t, "[Startup] Completed issues: 2", r.Subject(two, "", true))
	assert.Equal(t, "Release Continuous Pentest 2.4. Internal digest", r.Subject(one, "2.4", false))
	assert.Equal(t, "[Startup] Release Continuous Pentest 2.4. Internal digest", r.Subject(two, "2.4", true))
}

func TestRender_EmptyWhenNothingPassesFilter(t *testing.T) {
	r := newTestRenderer()
	d := r.Render([]domain.Issue{issue("CPT-1", nil), issue("CPT-2", "")}, Input{ChangeField: changeField})
	assert.True(t, d.Empty())
	assert.Empty(t, d.Subject)
	assert.Empty(t, d.HTML)

	d = r.Render(nil, Input{ChangeField: changeField})
	assert.True(t, d.Empty())
}

func TestRender_NumberedBody(t *testing.T) {
	r := newTestRenderer()
	issues := []domain.Issue{
		titled("CPT-1", "Bug fixes", "Fixed login"),
		titled("CPT-2", "New features", "Dark mode"),
		titled("CPT-3", "Bug fixes", ""),
		titled("CPT-4", "Experimental", "Beta API"),
	}

	d := r.Render(issues, Input{ReleaseTitleField: titleField, ChangeField: changeField})

	require.False(t, d.Empty())
	assert.Equal(t, "Completed issues: 4", d.Subject)
	assert.Equal(t, []string{"CPT-2", "CPT-1", "CPT-3", "CPT-4"}, d.Keys)
	assert.Contains(t, d.HTML, "Completed issues for project CPT. Total: 4")
	assert.Contains(t, d.HTML, `1. <strong>New functionality:</strong><br>`)
	assert.Contains(t, d.HTML, `1.1. <a href="https://jira.example.com/browse/CPT-2">Dark mode</a><br>`)
	assert.Contains(t, d.HTML, `2. <strong>Bug fixes:</strong><br>`)
	assert.Contains(t, d.HTML, `2.1. <a href="https://jira.example.com/browse/CPT-1">Fixed login</a><br>`)
	assert.Contains(t, d.HTML, `2.2. <a href="https://jira.example.com/browse/CPT-3">Issue without release title</a><br>`)
	assert.Contains(t, d.HTML, `3. <strong>Experimental:</strong><br>`)
	assert.Contains(t, d.HTML, `3.1. <a href="https://jira.example.com/browse/CPT-4">Beta API</a><br>`)
	assert.Contains(t, d.HTML, "EASM platform development team")

	assert.Less(t, strings.Index(d.HTML, "New functionality"), strings.Index(d.HTML, "Bug fixes"))
	assert.Less(t, strings.Index(d.HTML, "Bug fixes"), strings.Index(d.HTML, "Experimental"))
}

func TestRender_VersionGreeting(t *testing.T) {
	r := newTestRenderer()
	d := r.Render([]domain.Issue{titled("CPT-1", "Bug fixes", "x")}, Input{ReleaseTitleField: titleField, ChangeField: changeField, Version: "3.1", Startup: true})
	assert.Equal(t, "[Startup] Release Continuous Pentest 3.1. Internal digest", d.Subject)
	assert.Contains(t, d.HTML, "New version Continuous Pentest 3.1 released")
}

func TestRender_NoReleaseTitleField(t *testing.T) {
	r := newTestRenderer()
	d := r.Render([]domain.Issue{titled("CPT-1", "Bug fixes", "ignored")}, Input{ChangeField: changeField})
	assert.Contains(t, d.HTML, ">Issue without release title</a>")
}

func TestRender_EscapesText(t *testing.T) {
	r := newTestRenderer()
	d := r.Render([]domain.Issue{titled("CPT-1", "<b>Hot</b>", "A & B <script>")}, Input{ReleaseTitleField: titleField, ChangeField: changeField})
	assert.NotContains(t, d.HTML, "<script>")
	assert.Contains(t, d.HTML, "A &amp; B &lt;script&gt;")
	assert.Contains(t, d.HTML, "&lt;b&gt;Hot&lt;/b&gt;")
}

func TestRender_ByteIdentical(t *testing.T) {
	r := newTestRenderer()
	issues := []domain.Issue{
		titled("CPT-1", "Zeta", "z"),
		titled("CPT-2", "Other changes", "o"),
		titled("CPT-3", "Alpha", "a"),
	}
	in := Input{ReleaseTitleField: titleField, ChangeField: changeField}
	assert.Equal(t, r.Render(issues, in).HTML, r.Render(issues, in).HTML)
}

func TestNotice(t *testing.T) {
	subject, body := newTestRenderer().Notice("CPT-9", "Rotate keys")
	assert.Equal(t, "Issue CPT-9 completed", subject)
	assert.Contains(t, body, "Issue completed: CPT-9 - Rotate keys")
	assert.Contains(t, body, "Link: https://jira.example.com/browse/CPT-9")
}
