package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RunStatus string

const (
	RunStatusPassed      RunStatus = "passed"
	RunStatusFailed      RunStatus = "failed"
	RunStatusInterrupted RunStatus = "interrupted"
)

// RunRecord is one finished load test run against /calendar.
type RunRecord struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	TargetURL  string    `json:"target_url" gorm:"not null"`
	AppVersion string    `json:"app_version" gorm:"size:8;index"`
	Year       string    `json:"year"`
	Month      string    `json:"month"`
	MonthList  string    `json:"month_list"`
	Scenarios  string    `json:"scenarios"` // comma separated
	Status     RunStatus `json:"status" gorm:"index"`

	// Headline figures
	Requests     int64   `json:"requests"`
	FailRate     float64 `json:"fail_rate"`
	Rate4xx      float64 `json:"rate_4xx"`
	Rate5xx      float64 `json:"rate_5xx"`
	P95LatencyMs float64 `json:"p95_latency_ms"`
	ChecksFailed int64   `json:"checks_failed"`

	ThresholdsPassed bool     `json:"thresholds_passed"`
	FailedThresholds []string `json:"failed_thresholds,omitempty" gorm:"serializer:json"`

	StartedAt  time.Time `json:"started_at" gorm:"index"`
	FinishedAt time.Time `json:"finished_at"`

	// Full summary document as written to the summary file.
	Summary string `json:"-" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the table name for RunRecord
func (RunRecord) TableName() string {
	return "loadtest_runs"
}

// BeforeCreate assigns an id and an empty summary when missing
func (r *RunRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Summary == "" {
		r.Summary = "{}"
	}
	return nil
}

// Duration is the wall time of the run.
func (r *RunRecord) Duration() time.Duration {
	if r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Passed reports whether the run finished with every threshold met
func (r *RunRecord) Passed() bool {
	return r.Status == RunStatusPassed
}

// ScenarioList splits Scenarios back into names.
func (r *RunRecord) ScenarioList() []string {
	if r.Scenarios == "" {
		return nil
	}
	return strings.Split(r.Scenarios, ",")
}

// StatusFor derives the run status from its outcome.
func StatusFor(thresholdsPassed, interrupted bool) RunStatus {
	switch {
	case interrupted:
		return RunStatusInterrupted
	case thresholdsPassed:
		return RunStatusPassed
	default:
		return RunStatusFailed
	}
}
