package performance

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"history-calendar-loadtest/internal/metrics"
)

func TestExtractFiguresDefaultsToZero(t *testing.T) {
	f := ExtractFigures(metrics.Snapshot{})
	assert.Equal(t, Figures{}, f)
}

func TestExtractFigures(t *testing.T) {
	reg := metrics.NewRegistry()
	reg.Counter(MetricHTTPReqs, metrics.Default).Add(4, nil)
	failed := reg.Rate(MetricHTTPReqFailed)
	failed.Add(true, nil)
	failed.Add(false, nil)
	reg.Trend(MetricHTTPReqDuration, metrics.Time).Add(120, nil)

	f := ExtractFigures(reg.Snapshot(time.Second))
	assert.Equal(t, 4.0, f.Requests)
	assert.Equal(t, 0.5, f.FailRate)
	assert.Equal(t, 120.0, f.P95Latency)
	assert.Zero(t, f.Rate4xx)
	assert.Zero(t, f.Rate5xx)
}

func TestRenderText(t *testing.T) {
	info := RunInfo{TargetURL: "https://api.example.com", AppVersion: "V2", Year: "2025", Month: "10", MonthList: "09,10"}
	f := Figures{Requests: 1234, FailRate: 0.0042, Rate4xx: 0.001, Rate5xx: 0, P95Latency: 187.26}

	expected := "=== /calendar load test Summary ===\n" +
		"Target URL  : https://api.example.com\n" +
		"App Version : V2\n" +
		"Year/Month  : 2025/10 [LIST=09,10]\n" +
		"Requests    : 1234\n" +
		"Fail Rate   : 0.42%\n" +
		"4xx Rate    : 0.100%\n" +
		"5xx Rate    : 0.000%\n" +
		"p95 Latency : 187.3 ms\n"
	assert.Equal(t, expected, RenderText(info, f))

	info.MonthList = ""
	assert.Contains(t, RenderText(info, f), "Year/Month  : 2025/10\n")
}

func TestSummaryDataFile(t *testing.T) {
	reg := metrics.NewRegistry()
	reg.Counter(MetricHTTPReqs, metrics.Default).Add(2, nil)

	data := NewSummaryData(RunInfo{AppVersion: "V2"}, DefaultOptions("V2"), reg.Snapshot(2*time.Second), nil, 1500*time.Millisecond, false, true)

	path := filepath.Join(t.TempDir(), "history-calendar-summary.json")
	require.NoError(t, data.WriteFile(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Contains(t, decoded, "metrics")
	assert.Contains(t, decoded, "options")

	state := decoded["state"].(map[string]interface{})
	assert.Equal(t, 1500.0, state["testRunDurationMs"])
	assert.Equal(t, true, state["thresholdsPassed"])

	root := decoded["root_group"].(map[string]interface{})
	assert.Equal(t, []interface{}{}, root["checks"])

	var buf bytes.Buffer
	require.NoError(t, data.Encode(&buf))
	assert.JSONEq(t, string(raw), buf.String())
}

func TestSummaryDataWriteFileError(t *testing.T) {
	data := NewSummaryData(RunInfo{}, Options{}, metrics.Snapshot{}, nil, 0, false, true)
	assert.Error(t, data.WriteFile(filepath.Join(t.TempDir(), "missing", "summary.json")))
}
