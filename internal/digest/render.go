/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package digest

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/doverlof/jira-bi.zone/internal/config"
	"github.com/doverlof/jira-bi.zone/internal/domain"
	"github.com/rs/zerolog"
)

const (
	StartupPrefix  = "[Startup] "
	NoReleaseTitle = "Issue without release title"
)

var bodyTmpl = template.Must(template.New("digest").Parse(`<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333; margin: 20px;">
<p>Hello!</p>
<p>{{.Greeting}}</p>
<p><strong>What's new:</strong></p>
{{range .Categories}}{{.Num}}. <strong>{{.Name}}:</strong><br>
{{range .Items}}{{.Num}}. <a href="{{.URL}}">{{.Title}}</a><br>
{{end}}<br>
{{end}}<br>
<p style="color: #888888; font-size: 14px;">Best regards,<br>
{{.Team}}</p>
</body>
</html>
`))

type bodyView struct {
	Greeting   string
	Team       string
	Categories []categoryView
}

type categoryView struct {
	Num   int
	Name  string
	Items []itemView
}

type itemView struct {
	Num   string
	URL   string
	Title string
}

// Input carries the per-run parameters of a digest.
type Input struct {
	ReleaseTitleField string
	ChangeField       string
	Version           string
	Startup           bool
}

type Renderer struct {
	product     string
	projectKey  string
	projectName string
	externalURL string
	mapping     CategoryMapping
	log         zerolog.Logger
}

func NewRenderer(cfg config.Config, m CategoryMapping, log zerolog.Logger) *Renderer {
	return &Renderer{
		product:     cfg.ProductName,
		projectKey:  cfg.JiraProjectKey,
		projectName: cfg.ProjectName,
		externalURL: strings.TrimRight(cfg.JiraExternalURL, "/"),
		mapping:     m,
		log:         log.With().Str("component", "digest").Logger(),
	}
}

func (r *Renderer) IssueURL(key string) string {
	return r.externalURL + "/browse/" + key
}

// Subject picks the mail subject for a grouping.
func (r *Renderer) Subject(g Grouping, version string, startup bool) string {
	prefix := ""
	if startup {
		prefix = StartupPrefix
	}
	if version != "" {
		return fmt.Sprintf("%sRelease %s %s. Internal digest", prefix, r.product, version)
	}
	if g.Total == 1 {
		if first, ok := g.First(); ok {
			return fmt.Sprintf("%sIssue %s completed", prefix, first.Key)
		}
	}
	return fmt.Sprintf("%sCompleted issues: %d", prefix, g.Total)
}

func (r *Renderer) greeting(version string, total int) string {
	if version != "" {
		return fmt.Sprintf("New version %s %s released", r.product, version)
	}
	return fmt.Sprintf("Completed issues for project %s. Total: %d", r.projectKey, total)
}

func (r *Renderer) releaseTitle(is domain.Issue, field string) string {
	if field == "" {
		return NoReleaseTitle
	}
	v, ok := is.Field(field)
	if !ok {
		r.log.Debug().Str("issue", is.Key).Str("field", field).Msg("release title missing")
		return NoReleaseTitle
	}
	if s := DisplayText(v); s != "" {
		return s
	}
	return NoReleaseTitle
}

// Render filters and groups issues and produces the digest. When no issue
// carries a classification value the digest is empty and must not be sent.
func (r *Renderer) Render(issues []domain.Issue, in Input) domain.Digest {
	g := Group(issues, in.ChangeField, r.mapping)
	if g.Total == 0 {
		r.log.Info().Int("issues", len(issues)).Msg("no issues with a classification value; empty digest")
		return domain.Digest{}
	}

	view := bodyView{
		Greeting: r.greeting(in.Version, g.Total),
		Team:     strings.TrimSpace(r.projectName + " platform development team"),
	}
	for i, c := range g.Categories {
		cv := categoryView{Num: i + 1, Name: c.Name}
		for j, is := range c.Issues {
			cv.Items = append(cv.Items, itemView{
				Num:   fmt.Sprintf("%d.%d", i+1, j+1),
				URL:   r.IssueURL(is.Key),
				Title: r.releaseTitle(is, in.ReleaseTitleField),
			})
		}
		view.Categories = append(view.Categories, cv)
	}

	var buf bytes.Buffer
	if err := bodyTmpl.Execute(&buf, view); err != nil {
		// the template is static; a failure here is a programming error
		panic(fmt.Sprintf("digest: render: %v", err))
	}
	subject := r.Subject(g, in.Version, in.Startup)
	r.log.Info().Str("subject", subject).Int("categories", len(g.Categories)).Int("issues", g.Total).Msg("digest rendered")
	return domain.Digest{Subject: subject, HTML: buf.String(), Keys: g.Keys()}
}

// Notice renders the plain-text single-issue notification.
func (r *Renderer) Notice(key, summary string) (string, string) {
	subject := fmt.Sprintf("Issue %s completed", key)
	var b strings.Builder
	b.WriteString("Hello!\n\n")
	fmt.Fprintf(&b, "Issue completed: %s - %s\n\n", key, summary)
	fmt.Fprintf(&b, "Link: %s\n\n", r.IssueURL(key))
	b.WriteString("Best regards,\n")
	b.WriteString(strings.TrimSpace(r.projectName + " platform development team"))
	b.WriteString("\n")
	return subject, b.String()
}
