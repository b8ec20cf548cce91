// Package eth implements the Ethereum node client used by the marketplace:
// contract reads, balance and nonce queries, gas estimation, raw submission,
// and bounded confirmation waiting.
package eth

import (
	"context"
	"math/big"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/snaillabs/snailmarket/internal/chain"
	"github.com/snaillabs/snailmarket/internal/chain/eth/rpc"
	"github.com/snaillabs/snailmarket/internal/metrics"
	mkterr "github.com/snaillabs/snailmarket/pkg/errors"
)

// defaultConfirmPollInterval is how often the receipt is polled while waiting
// for inclusion.
const defaultConfirmPollInterval = 500 * time.Millisecond

// addressRegex validates Ethereum addresses.
var addressRegex = regexp.MustCompile("^0x[0-9a-fA-F]{40}$")

// ClientOptions contains optional configuration for the ETH client.
type ClientOptions struct {
	// ChainID overrides the default chain ID detection.
	ChainID *big.Int
	// Transport overrides the default HTTP transport for the underlying RPC client.
	Transport http.RoundTripper
	// RetryConfig overrides the read-path retry configuration.
	RetryConfig *chain.RetryConfig
	// RateLimiter overrides the default per-method RPC rate limiter.
	RateLimiter *chain.RateLimiter
	// ConfirmPollInterval overrides the receipt polling interval.
	ConfirmPollInterval time.Duration
}

// Client provides Ethereum node operations. It is immutable after the first
// successful connect and safe for concurrent use.
type Client struct {
	rpcURL       string
	rpcClient    *rpc.Client
	chainID      *big.Int
	transport    http.RoundTripper
	retryCfg     chain.RetryConfig
	limiter      *chain.RateLimiter
	nonceManager *NonceManager
	pollInterval time.Duration

	mu      sync.Mutex
	initErr error
}

// NewClient creates a new ETH client. The connection is established lazily on
// first use so construction never blocks.
func NewClient(rpcURL string, opts *ClientOptions) (*Client, error) {
	if rpcURL == "" {
		return nil, mkterr.WithDetails(mkterr.ErrConfigInvalid, map[string]string{
			"field": "rpc_url",
		})
	}

	c := &Client{
		rpcURL:       rpcURL,
		retryCfg:     chain.DefaultRetryConfig(),
		limiter:      chain.DefaultRateLimiter(),
		nonceManager: NewNonceManager(),
		pollInterval: defaultConfirmPollInterval,
	}

	if opts != nil {
		if opts.ChainID != nil {
			c.chainID = opts.ChainID
		}
		if opts.Transport != nil {
			c.transport = opts.Transport
		}
		if opts.RetryConfig != nil {
			c.retryCfg = *opts.RetryConfig
		}
		if opts.RateLimiter != nil {
			c.limiter = opts.RateLimiter
		}
		if opts.ConfirmPollInterval > 0 {
			c.pollInterval = opts.ConfirmPollInterval
		}
	}

	return c, nil
}

// ChainID returns the chain ID, detecting it from the node if necessary.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c.chainID, nil
}

// GetBalance retrieves the ETH balance for an address in wei.
// Read-only: transient transport failures are retried with backoff.
func (c *Client) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	if err := c.ValidateAddress(address); err != nil {
		return nil, err
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	return retryRead(ctx, c, "eth_getBalance", func() (*big.Int, error) {
		return c.rpcClient.GetBalance(ctx, address, "latest")
	})
}

// Query performs a read-only contract call and returns the raw return data.
// Idempotent; retried with backoff on transport failure.
func (c *Client) Query(ctx context.Context, contractAddress string, data []byte) ([]byte, error) {
	if err := c.ValidateAddress(contractAddress); err != nil {
		return nil, err
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	msg := rpc.CallMsg{To: contractAddress, Data: data}
	return retryRead(ctx, c, "eth_call", func() ([]byte, error) {
		return c.rpcClient.EthCall(ctx, msg, "latest")
	})
}

// GetNonce returns the next usable nonce for an address. The node-reported
// pending count is reconciled with locally tracked sends that may not yet be
// visible in the mempool.
func (c *Client) GetNonce(ctx context.Context, address string) (uint64, error) {
	if err := c.ValidateAddress(address); err != nil {
		return 0, err
	}

	if err := c.connect(ctx); err != nil {
		return 0, err
	}

	rpcNonce, err := retryRead(ctx, c, "eth_getTransactionCount", func() (uint64, error) {
		return c.rpcClient.GetTransactionCount(ctx, address, "pending")
	})
	if err != nil {
		return 0, err
	}

	return c.nonceManager.Next(address, rpcNonce), nil
}

// ResetNonce drops local nonce tracking for an address. Called after a
// rejected submission so the next send re-queries the node.
func (c *Client) ResetNonce(address string) {
	c.nonceManager.Reset(address)
}

// SubmitSigned broadcasts a raw signed transaction. One-shot: admission
// failures are classified as SubmissionRejected, transport failures as
// NodeUnavailable. Never retried here.
func (c *Client) SubmitSigned(ctx context.Context, rawTx []byte) (string, error) {
	if err := c.connect(ctx); err != nil {
		return "", err
	}

	if err := c.limiter.Wait(ctx, "eth_sendRawTransaction"); err != nil {
		return "", err
	}

	start := time.Now()
	hash, err := c.rpcClient.SendRawTransaction(ctx, rawTx)
	metrics.Global.RecordRPCCall(time.Since(start), err)
	if err != nil {
		return "", classifySubmissionError(err)
	}

	return hash, nil
}

// AwaitConfirmation polls for the transaction receipt until the transaction
// is included or the timeout elapses. Returns ExecutionReverted when the
// receipt reports failure status and ConfirmationTimeout on elapse; both
// carry the transaction hash in their details.
func (c *Client) AwaitConfirmation(ctx context.Context, txHash string, timeout time.Duration) (*rpc.Receipt, error) {
	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.getReceipt(ctx, txHash)
		if err != nil && !chain.IsRetryable(err) {
			return nil, err
		}

		if receipt != nil {
			if receipt.Status == 0 {
				return receipt, mkterr.WithDetails(mkterr.ErrExecutionReverted, map[string]string{
					"tx_hash": txHash,
				})
			}
			metrics.Global.RecordTxConfirmed()
			return receipt, nil
		}

		if time.Now().After(deadline) {
			return nil, mkterr.WithDetails(mkterr.ErrConfirmationTimeout, map[string]string{
				"tx_hash": txHash,
				"timeout": timeout.String(),
			})
		}

		select {
		case <-ctx.Done():
			return nil, mkterr.WithDetails(mkterr.ErrConfirmationTimeout, map[string]string{
				"tx_hash": txHash,
				"reason":  "request canceled",
			})
		case <-ticker.C:
		}
	}
}

// GetReceipt returns the receipt for a transaction, or nil if not yet mined.
// Used by the status-lookup endpoint.
func (c *Client) GetReceipt(ctx context.Context, txHash string) (*rpc.Receipt, error) {
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c.getReceipt(ctx, txHash)
}

func (c *Client) getReceipt(ctx context.Context, txHash string) (*rpc.Receipt, error) {
	if err := c.limiter.Wait(ctx, "eth_getTransactionReceipt"); err != nil {
		return nil, err
	}

	start := time.Now()
	receipt, err := c.rpcClient.GetTransactionReceipt(ctx, txHash)
	metrics.Global.RecordRPCCall(time.Since(start), err)
	return receipt, err
}

// ValidateAddress checks if an address is valid for Ethereum. Mixed-case
// addresses additionally have their EIP-55 checksum verified.
func (c *Client) ValidateAddress(address string) error {
	if !addressRegex.MatchString(address) {
		return mkterr.WithDetails(mkterr.ErrInvalidAddress, map[string]string{
			"address": address,
		})
	}

	if err := ValidateChecksumAddress(address); err != nil {
		return err
	}

	return nil
}

// Close closes the client connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rpcClient != nil {
		c.rpcClient.Close()
		c.rpcClient = nil
	}
}

// connect establishes the RPC connection if not already connected.
// Thread-safe; allows retries after transient failures.
func (c *Client) connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rpcClient != nil && c.initErr == nil {
		return nil
	}

	var rpcOpts *rpc.ClientOptions
	if c.transport != nil {
		rpcOpts = &rpc.ClientOptions{Transport: c.transport}
	}
	c.rpcClient = rpc.NewClientWithOptions(c.rpcURL, rpcOpts)

	// Detect chain ID if not pinned by config
	if c.chainID == nil {
		chainID, err := c.rpcClient.ChainID(ctx)
		if err != nil {
			c.rpcClient.Close()
			c.rpcClient = nil
			c.initErr = mkterr.Wrap(err, "getting chain ID")
			return c.initErr
		}
		c.chainID = chainID
	}

	c.initErr = nil
	return nil
}

// retryRead runs a read-only RPC operation under the rate limiter with
// bounded backoff. Node-reported errors (e.g. execution reverts on eth_call)
// are not retried; only transport failures are.
func retryRead[T any](ctx context.Context, c *Client, method string, op func() (T, error)) (T, error) {
	return chain.RetryWithConfig(ctx, c.retryCfg, func() (T, error) {
		var zero T
		if err := c.limiter.Wait(ctx, method); err != nil {
			return zero, err
		}

		start := time.Now()
		result, err := op()
		metrics.Global.RecordRPCCall(time.Since(start), err)
		return result, err
	})
}
