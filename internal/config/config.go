package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"history-calendar-loadtest/internal/calendar"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DefaultEnvFiles are loaded, when present, before the environment is parsed.
var DefaultEnvFiles = []string{".env", ".env.local"}

type Config struct {
	// Target
	TargetURL         string        `env:"TARGET_URL"`
	AccessToken       string        `env:"ACCESS_TOKEN"`
	AppVersion        string        `env:"APP_VERSION" envDefault:"V2"`
	Year              string        `env:"CALENDAR_YEAR" envDefault:"2025"`
	Month             string        `env:"CALENDAR_MONTH" envDefault:"10"`
	MonthList         string        `env:"MONTH_LIST"`
	LegacyResultShape string        `env:"LEGACY_RESULT_SHAPE" envDefault:"either"`
	HTTPTimeout       time.Duration `env:"HTTP_TIMEOUT" envDefault:"60s"`

	// Outputs
	SummaryPath string `env:"SUMMARY_PATH" envDefault:"history-calendar-summary.json"`
	ResultsBin  string `env:"RESULTS_BIN"`
	MetricsAddr string `env:"METRICS_ADDR"`

	// Run history
	HistoryRedisURL    string `env:"HISTORY_REDIS_URL"`
	HistoryDatabaseURL string `env:"HISTORY_DATABASE_URL"`

	// Mock server
	Port          string        `env:"PORT" envDefault:"9000"`
	JWTSecret     string        `env:"JWT_SECRET"`
	MockLatency   time.Duration `env:"MOCK_LATENCY" envDefault:"0s"`
	MockErrorRate float64       `env:"MOCK_ERROR_RATE" envDefault:"0"`
	FrontendURL   string        `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`
}

// Load reads the optional env files and then the process environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = DefaultEnvFiles
	}
	if _, err := LoadEnv(envFiles); err != nil {
		return nil, fmt.Errorf("failed to load env files: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	cfg.MonthList = strings.TrimSpace(cfg.MonthList)
	return cfg, nil
}

// LoadEnv loads the env files that exist and reports how many were found.
func LoadEnv(envFiles []string) (int, error) {
	existing := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if fi, err := os.Stat(file); err == nil && !fi.IsDir() {
			existing = append(existing, file)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// Validate checks the settings a load test run depends on.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.TargetURL) == "" {
		errs = append(errs, errors.New("TARGET_URL is required"))
	}
	if strings.TrimSpace(c.AccessToken) == "" {
		errs = append(errs, errors.New("ACCESS_TOKEN is required"))
	}
	if _, err := calendar.ParseAppVersion(c.AppVersion); err != nil {
		errs = append(errs, err)
	}
	if _, err := calendar.ParseLegacyShape(c.LegacyResultShape); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.Year) == "" || strings.TrimSpace(c.Month) == "" {
		errs = append(errs, errors.New("CALENDAR_YEAR and CALENDAR_MONTH must not be empty"))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("HTTP_TIMEOUT must be positive, got %s", c.HTTPTimeout))
	}
	return errors.Join(errs...)
}

// Version returns the parsed app-version tag, defaulting to V2.
func (c *Config) Version() calendar.AppVersion {
	v, err := calendar.ParseAppVersion(c.AppVersion)
	if err != nil {
		return calendar.AppVersionV2
	}
	return v
}

// LegacyShape returns the parsed legacy result shape, defaulting to either.
func (c *Config) LegacyShape() calendar.LegacyShape {
	s, err := calendar.ParseLegacyShape(c.LegacyResultShape)
	if err != nil {
		return calendar.LegacyShapeEither
	}
	return s
}

// AuthHeader returns the access token as an Authorization header value.
func (c *Config) AuthHeader() string {
	return NormalizeBearer(c.AccessToken)
}

// Months returns the months visited by the month sweep.
func (c *Config) Months() []string {
	return ParseMonthList(c.MonthList, c.Month)
}

const bearerPrefix = "Bearer "

// NormalizeBearer prefixes the token with "Bearer " unless it already
// carries the scheme in any letter casing, in which case only the scheme's
// casing is canonicalized.
func NormalizeBearer(token string) string {
	t := strings.TrimSpace(token)
	if strings.HasPrefix(strings.ToLower(t), strings.ToLower(bearerPrefix)) {
		return bearerPrefix + t[len(bearerPrefix):]
	}
	return bearerPrefix + t
}

// ParseMonthList splits a comma separated month list, trimming entries and
// dropping empties. An empty result falls back to the default month.
func ParseMonthList(list, defaultMonth string) []string {
	months := make([]string, 0)
	for _, m := range strings.Split(list, ",") {
		if m = strings.TrimSpace(m); m != "" {
			months = append(months, m)
		}
	}
	if len(months) == 0 {
		return []string{defaultMonth}
	}
	return months
}
