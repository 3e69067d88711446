package performance

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"history-calendar-loadtest/internal/metrics"
)

// RunInfo identifies what a run targeted.
type RunInfo struct {
	TargetURL  string `json:"targetUrl"`
	AppVersion string `json:"appVersion"`
	Year       string `json:"year"`
	Month      string `json:"month"`
	MonthList  string `json:"monthList,omitempty"`
}

// Figures are the headline numbers of a run. Missing metrics read as zero.
type Figures struct {
	Requests   float64 `json:"requests"`
	FailRate   float64 `json:"failRate"`
	Rate4xx    float64 `json:"rate4xx"`
	Rate5xx    float64 `json:"rate5xx"`
	P95Latency float64 `json:"p95LatencyMs"`
}

// ExtractFigures reads the headline numbers from snap.
func ExtractFigures(snap metrics.Snapshot) Figures {
	return Figures{
		Requests:   snap.ValueOr(MetricHTTPReqs, "count", 0),
		FailRate:   snap.ValueOr(MetricHTTPReqFailed, "rate", 0),
		Rate5xx:    snap.ValueOr(MetricHTTP5xxRate, "rate", 0),
		Rate4xx:    snap.ValueOr(MetricHTTP4xxRate, "rate", 0),
		P95Latency: snap.ValueOr(MetricHTTPReqDuration, "p(95)", 0),
	}
}

// RenderText renders the human summary block.
func RenderText(info RunInfo, f Figures) string {
	list := ""
	if info.MonthList != "" {
		list = " [LIST=" + info.MonthList + "]"
	}
	lines := []string{
		"=== /calendar load test Summary ===",
		"Target URL  : " + info.TargetURL,
		"App Version : " + info.AppVersion,
		"Year/Month  : " + info.Year + "/" + info.Month + list,
		"Requests    : " + strconv.FormatFloat(f.Requests, 'f', -1, 64),
		fmt.Sprintf("Fail Rate   : %.2f%%", f.FailRate*100),
		fmt.Sprintf("4xx Rate    : %.3f%%", f.Rate4xx*100),
		fmt.Sprintf("5xx Rate    : %.3f%%", f.Rate5xx*100),
		fmt.Sprintf("p95 Latency : %.1f ms", f.P95Latency),
		"",
	}
	return strings.Join(lines, "\n")
}

// SummaryState describes how the run ended.
type SummaryState struct {
	TestRunDurationMs float64 `json:"testRunDurationMs"`
	Interrupted       bool    `json:"interrupted"`
	ThresholdsPassed  bool    `json:"thresholdsPassed"`
}

type RootGroup struct {
	Name   string       `json:"name"`
	Checks []CheckCount `json:"checks"`
}

// SummaryData is the full machine readable outcome of a run.
type SummaryData struct {
	Run       RunInfo                          `json:"run"`
	Options   Options                          `json:"options"`
	State     SummaryState                     `json:"state"`
	RootGroup RootGroup                        `json:"root_group"`
	Metrics   map[string]metrics.MetricSummary `json:"metrics"`
}

func NewSummaryData(info RunInfo, opts Options, snap metrics.Snapshot, checks []CheckCount, elapsed time.Duration, interrupted, passed bool) *SummaryData {
	if checks == nil {
		checks = []CheckCount{}
	}
	return &SummaryData{
		Run:     info,
		Options: opts,
		State: SummaryState{
			TestRunDurationMs: float64(elapsed) / float64(time.Millisecond),
			Interrupted:       interrupted,
			ThresholdsPassed:  passed,
		},
		RootGroup: RootGroup{Checks: checks},
		Metrics:   snap.Metrics,
	}
}

// Encode writes the summary as indented JSON.
func (d *SummaryData) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

// WriteFile writes the summary JSON to path.
func (d *SummaryData) WriteFile(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	if err := d.Encode(file); err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	return nil
}
