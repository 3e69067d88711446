package performance

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	vegeta "github.com/tsenart/vegeta/v12/lib"

	"history-calendar-loadtest/internal/metrics"
)

// Built-in HTTP metric names.
const (
	MetricHTTPReqs        = "http_reqs"
	MetricHTTPReqDuration = "http_req_duration"
	MetricHTTPReqFailed   = "http_req_failed"
	MetricDataReceived    = "data_received"
)

// Response is the outcome of one request. Status is 0 on transport errors.
type Response struct {
	Status   int
	Body     []byte
	Duration time.Duration
	Err      error
}

// Client performs requests and records the built-in HTTP metrics for each.
type Client struct {
	http     *http.Client
	registry *metrics.Registry
	results  *ResultRecorder
}

// NewClient builds a client with the given per-request timeout. results may
// be nil.
func NewClient(timeout time.Duration, registry *metrics.Registry, results *ResultRecorder) *Client {
	return &Client{
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        200,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		registry: registry,
		results:  results,
	}
}

// Get issues a GET and never returns an error: transport failures are
// reported through Response.Err and the http_req_failed metric.
func (c *Client) Get(ctx context.Context, url string, header http.Header, tags metrics.Tags) *Response {
	start := time.Now()
	res := &Response{}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		res.Err = fmt.Errorf("build request: %w", err)
		res.Duration = time.Since(start)
		c.record(url, start, res, tags)
		return res
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := c.http.Do(req)
	if err != nil {
		res.Err = err
		res.Duration = time.Since(start)
		c.record(url, start, res, tags)
		return res
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	res.Duration = time.Since(start)
	res.Status = resp.StatusCode
	res.Body = body
	if err != nil {
		res.Err = fmt.Errorf("read body: %w", err)
	}
	c.record(url, start, res, tags)
	return res
}

func (c *Client) record(url string, start time.Time, res *Response, tags metrics.Tags) {
	failed := res.Status < 200 || res.Status >= 400

	c.registry.Counter(MetricHTTPReqs, metrics.Default).Add(1, tags)
	c.registry.Trend(MetricHTTPReqDuration, metrics.Time).AddDuration(res.Duration, tags)
	c.registry.Rate(MetricHTTPReqFailed).Add(failed, tags)
	c.registry.Counter(MetricDataReceived, metrics.Data).Add(float64(len(res.Body)), tags)

	if res.Err != nil {
		logrus.WithError(res.Err).WithField("url", url).Debug("Request failed")
	}

	if c.results != nil {
		r := &vegeta.Result{
			Attack:    tags["scenario"],
			Code:      uint16(res.Status),
			Timestamp: start,
			Latency:   res.Duration,
			BytesIn:   uint64(len(res.Body)),
			Method:    http.MethodGet,
			URL:       url,
		}
		if res.Err != nil {
			r.Error = res.Err.Error()
		} else if failed {
			r.Error = http.StatusText(res.Status)
		}
		c.results.Record(r)
	}
}

// ResultRecorder appends raw request results in vegeta's binary format and
// keeps aggregate vegeta metrics for the text report.
type ResultRecorder struct {
	mu      sync.Mutex
	enc     vegeta.Encoder
	closer  io.Closer
	metrics vegeta.Metrics
	seq     atomic.Uint64
	closed  bool
}

// NewResultRecorder creates a recorder writing to w; w may be nil
func NewResultRecorder(w io.Writer) *ResultRecorder {
	r := &ResultRecorder{}
	if w != nil {
		r.enc = vegeta.NewEncoder(w)
	}
	return r
}

// OpenResultFile creates path and records into it. An empty path keeps only
// the in-memory aggregates.
func OpenResultFile(path string) (*ResultRecorder, error) {
	if path == "" {
		return NewResultRecorder(nil), nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create results file: %w", err)
	}
	r := NewResultRecorder(f)
	r.closer = f
	return r, nil
}

func (r *ResultRecorder) Record(res *vegeta.Result) {
	res.Seq = r.seq.Add(1) - 1

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.metrics.Add(res)
	if r.enc != nil {
		if err := r.enc.Encode(res); err != nil {
			logrus.WithError(err).Error("Failed to encode result")
		}
	}
}

// Close finalises the aggregates and closes the underlying file.
func (r *ResultRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.metrics.Close()
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// Report writes the vegeta text report. Call after Close.
func (r *ResultRecorder) Report(w io.Writer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return vegeta.NewTextReporter(&r.metrics).Report(w)
}

// Requests returns the number of recorded results.
func (r *ResultRecorder) Requests() uint64 {
	return r.seq.Load()
}
