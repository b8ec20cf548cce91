package eth

import (
	"strings"
	"sync"
)

// NonceManager hands out strictly increasing nonces per sender so that
// concurrent marketplace writes from the same credential never collide, even
// before earlier submissions become visible in the node's mempool.
type NonceManager struct {
	mu    sync.Mutex
	local map[string]uint64 // lowercased address -> next nonce to hand out
}

// NewNonceManager creates a new NonceManager.
func NewNonceManager() *NonceManager {
	return &NonceManager{
		local: make(map[string]uint64),
	}
}

// Next returns the next nonce to use for the given address, reconciling the
// node-reported pending nonce with local tracking: the higher of the two wins,
// and the local counter advances past it. Addresses are compared
// case-insensitively so checksummed and lowercase forms share one counter.
func (nm *NonceManager) Next(address string, rpcNonce uint64) uint64 {
	key := strings.ToLower(address)

	nm.mu.Lock()
	defer nm.mu.Unlock()

	nonce := rpcNonce
	if tracked, ok := nm.local[key]; ok && tracked > rpcNonce {
		// The node has not caught up with our recent sends yet
		nonce = tracked
	}

	nm.local[key] = nonce + 1

	return nonce
}

// Reset clears the local tracking for an address. Called after a rejected
// submission, when the local counter may have advanced past a nonce the
// chain will never see.
func (nm *NonceManager) Reset(address string) {
	key := strings.ToLower(address)

	nm.mu.Lock()
	defer nm.mu.Unlock()
	delete(nm.local, key)
}
