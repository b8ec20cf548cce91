// Package metrics provides application-level metrics collection using
// atomic counters. Counters cover node RPC traffic, the transaction write
// path, and inbound HTTP requests.
package metrics

import (
	"sync/atomic"
	"time"
)

// Metrics holds service metrics using atomic counters for thread safety.
type Metrics struct {
	// Node RPC metrics
	rpcCallsTotal   atomic.Int64
	rpcErrorsTotal  atomic.Int64
	rpcLatencyNanos atomic.Int64

	// Transaction write-path metrics
	txSubmitted atomic.Int64
	txConfirmed atomic.Int64
	txFailed    atomic.Int64

	// Inbound HTTP metrics
	httpRequests      atomic.Int64
	httpRequestErrors atomic.Int64
}

// Global is the process-wide metrics instance.
//
//nolint:gochecknoglobals // Intentional global for metrics access
var Global = &Metrics{}

// RecordRPCCall records a node RPC call with its duration and outcome.
func (m *Metrics) RecordRPCCall(duration time.Duration, err error) {
	m.rpcCallsTotal.Add(1)
	m.rpcLatencyNanos.Add(duration.Nanoseconds())

	if err != nil {
		m.rpcErrorsTotal.Add(1)
	}
}

// RecordTxSubmitted records a transaction accepted by the node.
func (m *Metrics) RecordTxSubmitted() {
	m.txSubmitted.Add(1)
}

// RecordTxConfirmed records a transaction confirmed on-chain.
func (m *Metrics) RecordTxConfirmed() {
	m.txConfirmed.Add(1)
}

// RecordTxFailed records a write request that reached a terminal failure.
func (m *Metrics) RecordTxFailed() {
	m.txFailed.Add(1)
}

// RecordHTTPRequest records an inbound API request and whether it failed.
func (m *Metrics) RecordHTTPRequest(statusCode int) {
	m.httpRequests.Add(1)
	if statusCode >= 500 {
		m.httpRequestErrors.Add(1)
	}
}

// Snapshot is a point-in-time copy of all metrics.
type Snapshot struct {
	RPCCallsTotal     int64
	RPCErrorsTotal    int64
	RPCLatencyNanos   int64
	TxSubmitted       int64
	TxConfirmed       int64
	TxFailed          int64
	HTTPRequests      int64
	HTTPRequestErrors int64
}

// GetSnapshot returns a consistent-enough snapshot of all counters.
func (m *Metrics) GetSnapshot() Snapshot {
	return Snapshot{
		RPCCallsTotal:     m.rpcCallsTotal.Load(),
		RPCErrorsTotal:    m.rpcErrorsTotal.Load(),
		RPCLatencyNanos:   m.rpcLatencyNanos.Load(),
		TxSubmitted:       m.txSubmitted.Load(),
		TxConfirmed:       m.txConfirmed.Load(),
		TxFailed:          m.txFailed.Load(),
		HTTPRequests:      m.httpRequests.Load(),
		HTTPRequestErrors: m.httpRequestErrors.Load(),
	}
}

// Reset zeroes all counters. Intended for tests.
func (m *Metrics) Reset() {
	m.rpcCallsTotal.Store(0)
	m.rpcErrorsTotal.Store(0)
	m.rpcLatencyNanos.Store(0)
	m.txSubmitted.Store(0)
	m.txConfirmed.Store(0)
	m.txFailed.Store(0)
	m.httpRequests.Store(0)
	m.httpRequestErrors.Store(0)
}
