// Package metrics holds process-wide atomic counters for request
// volume, error rates, and latency, recorded by the dispatcher on every
// completed request.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/minumserver/minum/internal/response"
)

// Metrics is safe for concurrent use; every field is updated with
// atomic operations rather than a lock.
type Metrics struct {
	RequestsTotal     atomic.Int64
	ActiveConnections atomic.Int64
	ErrorsTotal       atomic.Int64
	Errors4xx         atomic.Int64
	Errors5xx         atomic.Int64

	totalLatencyNs atomic.Int64
}

// New returns a zeroed Metrics.
func New() *Metrics {
	return &Metrics{}
}

// RecordRequest records one completed request's status code and
// latency.
func (m *Metrics) RecordRequest(statusCode response.StatusCode, duration time.Duration) {
	m.RequestsTotal.Add(1)
	m.totalLatencyNs.Add(duration.Nanoseconds())

	switch {
	case statusCode.IsServerError():
		m.Errors5xx.Add(1)
		m.ErrorsTotal.Add(1)
	case statusCode.IsClientError():
		m.Errors4xx.Add(1)
	}
}

// ConnectionOpened increments ActiveConnections. Call once per accepted
// connection, paired with ConnectionClosed.
func (m *Metrics) ConnectionOpened() {
	m.ActiveConnections.Add(1)
}

// ConnectionClosed decrements ActiveConnections.
func (m *Metrics) ConnectionClosed() {
	m.ActiveConnections.Add(-1)
}

// AverageLatency returns the mean latency across every recorded
// request, or 0 if none have been recorded yet.
func (m *Metrics) AverageLatency() time.Duration {
	total := m.RequestsTotal.Load()
	if total == 0 {
		return 0
	}
	return time.Duration(m.totalLatencyNs.Load() / total)
}

// Snapshot is a point-in-time copy of the counters, safe to log or
// serve from a status endpoint without holding any lock.
type Snapshot struct {
	RequestsTotal     int64
	ActiveConnections int64
	ErrorsTotal       int64
	Errors4xx         int64
	Errors5xx         int64
	AverageLatency    time.Duration
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		RequestsTotal:     m.RequestsTotal.Load(),
		ActiveConnections: m.ActiveConnections.Load(),
		ErrorsTotal:       m.ErrorsTotal.Load(),
		Errors4xx:         m.Errors4xx.Load(),
		Errors5xx:         m.Errors5xx.Load(),
		AverageLatency:    m.AverageLatency(),
	}
}
