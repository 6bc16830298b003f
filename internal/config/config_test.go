package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("JIRA_URL", "https://jira.internal/")
	t.Setenv("JIRA_TOKEN", "pat")
	t.Setenv("JIRA_PROJECT_KEY", "CPT")
	t.Setenv("SMTP_SERVER", "smtp.example.com")
	t.Setenv("EMAIL_USER", "bot@example.com")
	t.Setenv("EMAIL_RECIPIENTS", "a@example.com, b@example.com,,")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "Europe/Moscow", cfg.TZ)
	assert.Equal(t, "logs/jira_monitor.log", cfg.LogFile)
	assert.Equal(t, "data", cfg.StateDir)
	assert.Equal(t, "https://jira.internal", cfg.JiraBaseURL)
	assert.Equal(t, cfg.JiraBaseURL, cfg.JiraExternalURL)
	assert.Equal(t, "bot@example.com", cfg.EmailFrom)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.Recipients)
	assert.Equal(t, 100, cfg.JiraMaxResults)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 587, cfg.SMTPPort)
	assert.Equal(t, 30*time.Second, cfg.SMTPTimeout)
	assert.Equal(t, 8, cfg.ReportDay)
	assert.Equal(t, 13, cfg.ReportHour)
	assert.Equal(t, 32, cfg.ReportMinute)
	assert.True(t, cfg.DedupEnabled)
	assert.Equal(t, 3, cfg.RetryMax)
	assert.Equal(t, time.Minute, cfg.RetryBase)
	assert.Equal(t, 2, cfg.StartupRetryMax)
	assert.Equal(t, 30*time.Second, cfg.StartupRetryDelay)
	assert.True(t, cfg.StartupRun)
	assert.Equal(t, DefaultCategories, cfg.Categories)
}

func TestLoad_EnvOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("JIRA_EXTERNAL_URL", "https://jira.example.com/")
	t.Setenv("EMAIL_FROM", "digest@example.com")
	t.Setenv("REPORT_DAY_OF_MONTH", "31")
	t.Setenv("REPORT_HOUR", "9")
	t.Setenv("REPORT_MINUTE", "0")
	t.Setenv("DEDUP_ENABLED", "false")
	t.Setenv("RETRY_BASE", "5s")
	t.Setenv("JIRA_MAX_RESULTS", "0")
	t.Setenv("JIRA_CHANGE_FIELD_ID", "customfield_200")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://jira.example.com", cfg.JiraExternalURL)
	assert.Equal(t, "digest@example.com", cfg.EmailFrom)
	assert.Equal(t, 31, cfg.ReportDay)
	assert.Equal(t, 9, cfg.ReportHour)
	assert.Equal(t, 0, cfg.ReportMinute)
	assert.False(t, cfg.DedupEnabled)
	assert.Equal(t, 5*time.Second, cfg.RetryBase)
	assert.Equal(t, 100, cfg.JiraMaxResults)
	assert.Equal(t, "customfield_200", cfg.ChangeField)
}

func TestLoad_YAMLFileUnderEnv(t *testing.T) {
	setRequired(t)
	t.Setenv("PRODUCT_NAME", "From Env")
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `product_name: From File
project_name: EASM
email_recipients:
  - x@example.com
  - y@example.com
categories:
  - raw: Feature
    display: Features
  - raw: Fix
    display: Fixes
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	t.Setenv("EMAIL_RECIPIENTS", "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "From Env", cfg.ProductName)
	assert.Equal(t, "EASM", cfg.ProjectName)
	assert.Equal(t, []string{"x@example.com", "y@example.com"}, cfg.Recipients)
	assert.Equal(t, []Category{{Raw: "Feature", Display: "Features"}, {Raw: "Fix", Display: "Fixes"}}, cfg.Categories)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate_ReportsEverything(t *testing.T) {
	cfg := Config{
		TZ:         "Nowhere/Atlantis",
		ReportDay:  32,
		ReportHour: 24,
		SMTPPort:   0,
		Categories: []Category{{Raw: "x"}},
	}
	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		"JIRA_URL", "JIRA_PROJECT_KEY", "SMTP_SERVER", "EMAIL_FROM", "JIRA_TOKEN",
		"EMAIL_RECIPIENTS", "REPORT_DAY_OF_MONTH", "REPORT_HOUR", "SMTP_PORT", "categories[0]", "APP_TZ",
		"HTTP_TIMEOUT", "SMTP_TIMEOUT", "RETRY_BASE", "STARTUP_RETRY_DELAY",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestValidate_BasicAuthAccepted(t *testing.T) {
	cfg := Config{
		TZ:             "UTC",
		JiraBaseURL:    "https://jira",
		JiraUsername:   "u",
		JiraPassword:   "p",
		JiraProjectKey: "CPT",
		SMTPServer:     "smtp",
		SMTPPort:       587,
		EmailFrom:      "bot@example.com",
		Recipients:     []string{"a@example.com"},
		ReportDay:      8,
		Categories:     DefaultCategories,

		HTTPTimeout:       30 * time.Second,
		SMTPTimeout:       30 * time.Second,
		RetryBase:         time.Minute,
		StartupRetryDelay: 30 * time.Second,
	}
	assert.NoError(t, cfg.Validate())
}

func TestValidate_RejectsUnitlessDurations(t *testing.T) {
	setRequired(t)
	t.Setenv("RETRY_BASE", "60")
	t.Setenv("SMTP_TIMEOUT", "500ms")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 60*time.Nanosecond, cfg.RetryBase)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RETRY_BASE must be at least 1s")
	assert.Contains(t, err.Error(), "SMTP_TIMEOUT must be at least 1s")
	assert.NotContains(t, err.Error(), "HTTP_TIMEOUT")
}

func TestAnchorAndLocation(t *testing.T) {
	cfg := Config{ReportDay: 8, ReportHour: 13, ReportMinute: 32, TZ: "bogus"}
	a := cfg.Anchor()
	assert.Equal(t, 8, a.Day)
	assert.Equal(t, 13, a.Hour)
	assert.Equal(t, 32, a.Minute)
	assert.Equal(t, time.UTC, cfg.Location())
}
