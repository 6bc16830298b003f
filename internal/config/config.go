/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/doverlof/jira-bi.zone/internal/domain"
	"github.com/spf13/viper"
)

type Config struct {
	AppEnv   string
	TZ       string
	LogLevel string
	LogFile  string
	StateDir string

	DBDSN string

	JiraBaseURL       string
	JiraExternalURL   string
	JiraPAT           string
	JiraUsername      string
	JiraPassword      string
	JiraProjectKey    string
	ReleaseTitleField string
	ChangeField       string
	JiraMaxResults    int
	HTTPTimeout       time.Duration

	SMTPServer    string
	SMTPPort      int
	SMTPTimeout   time.Duration
	EmailUser     string
	EmailPassword string
	EmailFrom     string
	Recipients    []string

	ProductName string
	ProjectName string

	ReportDay    int
	ReportHour   int
	ReportMinute int

	DedupEnabled      bool
	RetryMax          int
	RetryBase         time.Duration
	StartupRetryMax   int
	StartupRetryDelay time.Duration
	StartupRun        bool

	// Categories maps raw "Change" values to display names; order is display order.
	Categories []Category
}

type Category struct {
	Raw     string `mapstructure:"raw"`
	Display string `mapstructure:"display"`
}

// DefaultCategories is the built-in classification table.
var DefaultCategories = []Category{
	{Raw: "New features", Display: "New functionality"},
	{Raw: "Functionality update", Display: "Updates to existing functionality"},
	{Raw: "Performance enhancements", Display: "Performance and technical improvements"},
	{Raw: "Bug fixes", Display: "Bug fixes"},
	{Raw: "Other changes", Display: "Other changes"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_env", "dev")
	v.SetDefault("app_tz", "Europe/Moscow")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "logs/jira_monitor.log")
	v.SetDefault("state_dir", "data")
	v.SetDefault("db_dsn", "")

	v.SetDefault("jira_max_results", 100)
	v.SetDefault("http_timeout", 30*time.Second)

	v.SetDefault("smtp_port", 587)
	v.SetDefault("smtp_timeout", 30*time.Second)

	v.SetDefault("report_day_of_month", 8)
	v.SetDefault("report_hour", 13)
	v.SetDefault("report_minute", 32)

	v.SetDefault("dedup_enabled", true)
	v.SetDefault("retry_max", 3)
	v.SetDefault("retry_base", 60*time.Second)
	v.SetDefault("startup_retry_max", 2)
	v.SetDefault("startup_retry_delay", 30*time.Second)
	v.SetDefault("startup_run", true)
}

// keys lists every setting that may come from the environment. viper only
// consults AutomaticEnv for keys it already knows about, so keys without a
// default are bound explicitly.
var keys = []string{
	"jira_url", "jira_external_url", "jira_token", "jira_username", "jira_password",
	"jira_project_key", "jira_release_title_field_id", "jira_change_field_id",
	"smtp_server", "email_user", "email_password", "email_from", "email_recipients",
	"product_name", "project_name",
}

func parseStrings(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// stringList accepts a comma separated string (env) or a YAML list.
func stringList(v *viper.Viper, key string) []string {
	if s, ok := v.Get(key).(string); ok {
		return parseStrings(s)
	}
	return parseStrings(strings.Join(v.GetStringSlice(key), ","))
}

// Load reads settings from the environment, then the optional YAML file at
// path, then defaults. An empty path skips the file.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg := Config{
		AppEnv:   v.GetString("app_env"),
		TZ:       v.GetString("app_tz"),
		LogLevel: v.GetString("log_level"),
		LogFile:  v.GetString("log_file"),
		StateDir: v.GetString("state_dir"),

		DBDSN: v.GetString("db_dsn"),

		JiraBaseURL:       strings.TrimRight(v.GetString("jira_url"), "/"),
		JiraExternalURL:   strings.TrimRight(v.GetString("jira_external_url"), "/"),
		JiraPAT:           v.GetString("jira_token"),
		JiraUsername:      v.GetString("jira_username"),
		JiraPassword:      v.GetString("jira_password"),
		JiraProjectKey:    v.GetString("jira_project_key"),
		ReleaseTitleField: v.GetString("jira_release_title_field_id"),
		ChangeField:       v.GetString("jira_change_field_id"),
		JiraMaxResults:    v.GetInt("jira_max_results"),
		HTTPTimeout:       v.GetDuration("http_timeout"),

		SMTPServer:    v.GetString("smtp_server"),
		SMTPPort:      v.GetInt("smtp_port"),
		SMTPTimeout:   v.GetDuration("smtp_timeout"),
		EmailUser:     v.GetString("email_user"),
		EmailPassword: v.GetString("email_password"),
		EmailFrom:     v.GetString("email_from"),
		Recipients:    stringList(v, "email_recipients"),

		ProductName: v.GetString("product_name"),
		ProjectName: v.GetString("project_name"),

		ReportDay:    v.GetInt("report_day_of_month"),
		ReportHour:   v.GetInt("report_hour"),
		ReportMinute: v.GetInt("report_minute"),

		DedupEnabled:      v.GetBool("dedup_enabled"),
		RetryMax:          v.GetInt("retry_max"),
		RetryBase:         v.GetDuration("retry_base"),
		StartupRetryMax:   v.GetInt("startup_retry_max"),
		StartupRetryDelay: v.GetDuration("startup_retry_delay"),
		StartupRun:        v.GetBool("startup_run"),
	}

	// external links fall back to the API base when both are the same host
	if cfg.JiraExternalURL == "" {
		cfg.JiraExternalURL = cfg.JiraBaseURL
	}
	if cfg.EmailFrom == "" {
		cfg.EmailFrom = cfg.EmailUser
	}
	if cfg.JiraMaxResults <= 0 {
		cfg.JiraMaxResults = 100
	}

	if v.IsSet("categories") {
		var cats []Category
		if err := v.UnmarshalKey("categories", &cats); err != nil {
			return Config{}, fmt.Errorf("config: categories: %w", err)
		}
		cfg.Categories = cats
	} else {
		cfg.Categories = append([]Category(nil), DefaultCategories...)
	}

	return cfg, nil
}

// Validate reports every missing or out-of-range setting at once.
func (c Config) Validate() error {
	var errs []error
	req := func(val, name string) {
		if strings.TrimSpace(val) == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}
	req(c.JiraBaseURL, "JIRA_URL")
	req(c.JiraProjectKey, "JIRA_PROJECT_KEY")
	req(c.SMTPServer, "SMTP_SERVER")
	req(c.EmailFrom, "EMAIL_FROM or EMAIL_USER")
	if c.JiraPAT == "" && (c.JiraUsername == "" || c.JiraPassword == "") {
		errs = append(errs, errors.New("JIRA_TOKEN or JIRA_USERNAME/JIRA_PASSWORD is required"))
	}
	if len(c.Recipients) == 0 {
		errs = append(errs, errors.New("EMAIL_RECIPIENTS must list at least one address"))
	}
	if c.ReportDay < 1 || c.ReportDay > 31 {
		errs = append(errs, fmt.Errorf("REPORT_DAY_OF_MONTH out of range: %d", c.ReportDay))
	}
	if c.ReportHour < 0 || c.ReportHour > 23 {
		errs = append(errs, fmt.Errorf("REPORT_HOUR out of range: %d", c.ReportHour))
	}
	if c.ReportMinute < 0 || c.ReportMinute > 59 {
		errs = append(errs, fmt.Errorf("REPORT_MINUTE out of range: %d", c.ReportMinute))
	}
	if c.SMTPPort <= 0 {
		errs = append(errs, fmt.Errorf("SMTP_PORT out of range: %d", c.SMTPPort))
	}
	// a bare number parses as nanoseconds
	for _, d := range []struct {
		name string
		val  time.Duration
	}{
		{"HTTP_TIMEOUT", c.HTTPTimeout},
		{"SMTP_TIMEOUT", c.SMTPTimeout},
		{"RETRY_BASE", c.RetryBase},
		{"STARTUP_RETRY_DELAY", c.StartupRetryDelay},
	} {
		if d.val < time.Second {
			errs = append(errs, fmt.Errorf("%s must be at least 1s, with a unit such as 60s: got %s", d.name, d.val))
		}
	}
	for i, cat := range c.Categories {
		if cat.Raw == "" || cat.Display == "" {
			errs = append(errs, fmt.Errorf("categories[%d]: raw and display are required", i))
		}
	}
	if _, err := time.LoadLocation(c.TZ); err != nil {
		errs = append(errs, fmt.Errorf("APP_TZ: %w", err))
	}
	return errors.Join(errs...)
}

func (c Config) Anchor() domain.Anchor {
	return domain.Anchor{Day: c.ReportDay, Hour: c.ReportHour, Minute: c.ReportMinute}
}

// Location returns the configured report timezone, UTC when it cannot be loaded.
func (c Config) Location() *time.Location {
	if loc, err := time.LoadLocation(c.TZ); err == nil {
		return loc
	}
	return time.UTC
}
