package testutils

import (
	"net/http"
	"net/http/httptest"
	"sync"
)

// RecordedRequest is what the mock calendar server saw.
type RecordedRequest struct {
	Path   string
	Query  map[string]string
	Header http.Header
}

// MockCalendarServer answers every request with a configurable status and
// body and records what it received.
type MockCalendarServer struct {
	*httptest.Server

	mu       sync.Mutex
	status   int
	body     string
	requests []RecordedRequest
}

// NewMockCalendarServer starts a server that replies 200 with BodyV2OK.
func NewMockCalendarServer() *MockCalendarServer {
	mock := &MockCalendarServer{status: http.StatusOK, body: BodyV2OK}

	mock.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := map[string]string{}
		for k := range r.URL.Query() {
			q[k] = r.URL.Query().Get(k)
		}

		mock.mu.Lock()
		mock.requests = append(mock.requests, RecordedRequest{
			Path:   r.URL.Path,
			Query:  q,
			Header: r.Header.Clone(),
		})
		status, body := mock.status, mock.body
		mock.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	return mock
}

// SetResponse changes the reply for subsequent requests.
func (m *MockCalendarServer) SetResponse(status int, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = status
	m.body = body
}

func (m *MockCalendarServer) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of every recorded request in arrival order.
func (m *MockCalendarServer) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecordedRequest(nil), m.requests...)
}

// LastRequest returns the most recent request, or nil.
func (m *MockCalendarServer) LastRequest() *RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	r := m.requests[len(m.requests)-1]
	return &r
}

// Reset clears the recorded requests and restores the default reply.
func (m *MockCalendarServer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.status = http.StatusOK
	m.body = BodyV2OK
}

// GetURL returns the base URL of the mock server.
func (m *MockCalendarServer) GetURL() string {
	return m.Server.URL
}
