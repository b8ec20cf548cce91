package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetrics_RecordRPCCall(t *testing.T) {
	t.Parallel()

	m := &Metrics{}
	m.RecordRPCCall(10*time.Millisecond, nil)
	m.RecordRPCCall(20*time.Millisecond, errors.New("boom"))

	snap := m.GetSnapshot()
	assert.Equal(t, int64(2), snap.RPCCallsTotal)
	assert.Equal(t, int64(1), snap.RPCErrorsTotal)
	assert.Equal(t, (30 * time.Millisecond).Nanoseconds(), snap.RPCLatencyNanos)
}

func TestMetrics_TxLifecycle(t *testing.T) {
	t.Parallel()

	m := &Metrics{}
	m.RecordTxSubmitted()
	m.RecordTxSubmitted()
	m.RecordTxConfirmed()
	m.RecordTxFailed()

	snap := m.GetSnapshot()
	assert.Equal(t, int64(2), snap.TxSubmitted)
	assert.Equal(t, int64(1), snap.TxConfirmed)
	assert.Equal(t, int64(1), snap.TxFailed)
}

func TestMetrics_HTTPStatusClassification(t *testing.T) {
	t.Parallel()

	m := &Metrics{}
	m.RecordHTTPRequest(200)
	m.RecordHTTPRequest(404)
	m.RecordHTTPRequest(502)

	snap := m.GetSnapshot()
	assert.Equal(t, int64(3), snap.HTTPRequests)
	assert.Equal(t, int64(1), snap.HTTPRequestErrors, "only 5xx counts as a server error")
}

func TestMetrics_ConcurrentUpdates(t *testing.T) {
	t.Parallel()

	m := &Metrics{}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.RecordTxSubmitted()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1000), m.GetSnapshot().TxSubmitted)
}

func TestMetrics_Reset(t *testing.T) {
	t.Parallel()

	m := &Metrics{}
	m.RecordTxSubmitted()
	m.RecordHTTPRequest(500)
	m.Reset()

	assert.Equal(t, Snapshot{}, m.GetSnapshot())
}
