package eth

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddress = "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"

func TestNonceManager_SingleAddressProgression(t *testing.T) {
	t.Parallel()

	nm := NewNonceManager()

	// The node reports 0 pending; local tracking takes over
	assert.Equal(t, uint64(0), nm.Next(testAddress, 0))
	assert.Equal(t, uint64(1), nm.Next(testAddress, 0))
	assert.Equal(t, uint64(2), nm.Next(testAddress, 0))

	// The node caught up past our tracking
	assert.Equal(t, uint64(5), nm.Next(testAddress, 5))
	assert.Equal(t, uint64(6), nm.Next(testAddress, 5))
}

func TestNonceManager_CaseInsensitiveAddressKey(t *testing.T) {
	t.Parallel()

	nm := NewNonceManager()

	lower := "0x742d35cc6634c0532925a3b844bc454e4438f44e"

	assert.Equal(t, uint64(0), nm.Next(testAddress, 0))
	// The same account in lowercase form must share the counter
	assert.Equal(t, uint64(1), nm.Next(lower, 0))
}

func TestNonceManager_IndependentAddresses(t *testing.T) {
	t.Parallel()

	nm := NewNonceManager()
	other := "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

	assert.Equal(t, uint64(0), nm.Next(testAddress, 0))
	assert.Equal(t, uint64(3), nm.Next(other, 3))
	assert.Equal(t, uint64(1), nm.Next(testAddress, 0))
	assert.Equal(t, uint64(4), nm.Next(other, 3))
}

func TestNonceManager_Reset(t *testing.T) {
	t.Parallel()

	nm := NewNonceManager()

	nm.Next(testAddress, 0)
	nm.Next(testAddress, 0)
	nm.Reset(testAddress)

	// After reset the node-reported nonce wins again
	assert.Equal(t, uint64(0), nm.Next(testAddress, 0))
}

// For k concurrent requests from one caller the assigned set must be exactly
// {next, ..., next+k-1}: no duplicates, no gaps.
func TestNonceManager_ConcurrentNoDuplicatesNoGaps(t *testing.T) {
	t.Parallel()

	nm := NewNonceManager()

	const k = 64
	const rpcNonce = 10

	nonces := make([]uint64, k)
	var wg sync.WaitGroup
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			nonces[i] = nm.Next(testAddress, rpcNonce)
		}(i)
	}
	wg.Wait()

	sort.Slice(nonces, func(i, j int) bool { return nonces[i] < nonces[j] })

	for i := 0; i < k; i++ {
		require.Equal(t, uint64(rpcNonce+i), nonces[i],
			"nonce set must be contiguous starting at %d", rpcNonce)
	}
}
