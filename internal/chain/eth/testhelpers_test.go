package eth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/snaillabs/snailmarket/internal/chain"
)

// fakeNode is a scriptable JSON-RPC node for tests. Each method maps to a
// handler invoked per call, so tests can vary responses over time.
type fakeNode struct {
	t  *testing.T
	mu sync.Mutex

	srv      *httptest.Server
	handlers map[string]func(callNum int, params []json.RawMessage) (any, *rpcErrorBody)
	calls    map[string]int
}

type rpcErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func newFakeNode(t *testing.T) *fakeNode {
	t.Helper()

	n := &fakeNode{
		t:        t,
		handlers: map[string]func(int, []json.RawMessage) (any, *rpcErrorBody){},
		calls:    map[string]int{},
	}

	// Every client detects the chain ID on connect
	n.handle("eth_chainId", func(int, []json.RawMessage) (any, *rpcErrorBody) {
		return "0x539", nil
	})

	n.srv = httptest.NewServer(http.HandlerFunc(n.serve))
	t.Cleanup(n.srv.Close)
	return n
}

func (n *fakeNode) handle(method string, fn func(callNum int, params []json.RawMessage) (any, *rpcErrorBody)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[method] = fn
}

// result registers a constant successful response for a method.
func (n *fakeNode) result(method string, value any) {
	n.handle(method, func(int, []json.RawMessage) (any, *rpcErrorBody) {
		return value, nil
	})
}

// fail registers a constant node-level error for a method.
func (n *fakeNode) fail(method string, code int, message string) {
	n.handle(method, func(int, []json.RawMessage) (any, *rpcErrorBody) {
		return nil, &rpcErrorBody{Code: code, Message: message}
	})
}

func (n *fakeNode) callCount(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

func (n *fakeNode) serve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
		ID     uint64            `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	n.calls[req.Method]++
	callNum := n.calls[req.Method]
	handler, ok := n.handlers[req.Method]
	n.mu.Unlock()

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if !ok {
		resp["error"] = &rpcErrorBody{Code: -32601, Message: "method not found: " + req.Method}
	} else if result, rpcErr := handler(callNum, req.Params); rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}

	_ = json.NewEncoder(w).Encode(resp)
}

// client returns an eth client wired to the fake node with fast test timings.
func (n *fakeNode) client() *Client {
	c, err := NewClient(n.srv.URL, &ClientOptions{
		RetryConfig: &chain.RetryConfig{
			MaxAttempts: 2,
			BaseDelay:   time.Millisecond,
			MaxDelay:    2 * time.Millisecond,
		},
		RateLimiter:         chain.NewRateLimiter(10000, 10000),
		ConfirmPollInterval: 5 * time.Millisecond,
	})
	if err != nil {
		n.t.Fatalf("creating client: %v", err)
	}
	n.t.Cleanup(c.Close)
	return c
}
