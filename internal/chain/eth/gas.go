package eth

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/snaillabs/snailmarket/internal/chain"
	"github.com/snaillabs/snailmarket/internal/chain/eth/rpc"
	"github.com/snaillabs/snailmarket/internal/metrics"
	mkterr "github.com/snaillabs/snailmarket/pkg/errors"
)

// GasStrategy selects how aggressively the service prices gas.
type GasStrategy string

const (
	// GasStrategySlow uses a lower gas price for cheaper, slower confirmation.
	GasStrategySlow GasStrategy = "slow"
	// GasStrategyMedium uses the node's suggested gas price.
	GasStrategyMedium GasStrategy = "medium"
	// GasStrategyFast pays a premium for faster confirmation.
	GasStrategyFast GasStrategy = "fast"

	// slowMultiplier reduces gas price by 20% for slow transactions.
	slowMultiplier = 0.8
	// fastMultiplier increases gas price by 20% for fast transactions.
	fastMultiplier = 1.2

	// gasLimitMarginPercent is the safety margin added to node estimates,
	// covering state drift between estimation and inclusion.
	gasLimitMarginPercent = 20
)

// GasStrategies lists the accepted strategy values, used for config
// validation and typo suggestions.
//
//nolint:gochecknoglobals // Fixed vocabulary
var GasStrategies = []string{"slow", "medium", "fast"}

// ParseGasStrategy parses a string into a GasStrategy.
func ParseGasStrategy(s string) (GasStrategy, error) {
	switch s {
	case "slow":
		return GasStrategySlow, nil
	case "", "medium":
		return GasStrategyMedium, nil
	case "fast":
		return GasStrategyFast, nil
	default:
		return "", mkterr.WithDetails(mkterr.ErrConfigInvalid, map[string]string{
			"field":   "gas_strategy",
			"value":   s,
			"allowed": "slow, medium, or fast",
		})
	}
}

// EstimateGas asks the node how much gas a call needs and adds a fixed safety
// margin. A node-reported estimation failure means the call would revert
// on-chain and is surfaced as GasEstimationFailed, before any value is spent.
func (c *Client) EstimateGas(ctx context.Context, from, to string, value *big.Int, data []byte) (uint64, error) {
	if err := c.connect(ctx); err != nil {
		return 0, err
	}

	msg := rpc.CallMsg{
		From:  from,
		To:    to,
		Value: value,
		Data:  data,
	}

	limit, err := chain.RetryWithConfig(ctx, c.retryCfg, func() (uint64, error) {
		if err := c.limiter.Wait(ctx, "eth_estimateGas"); err != nil {
			return 0, err
		}

		start := time.Now()
		n, callErr := c.rpcClient.EstimateGas(ctx, msg)
		metrics.Global.RecordRPCCall(time.Since(start), callErr)
		return n, callErr
	})
	if err != nil {
		var rpcErr *rpc.Error
		if errors.As(err, &rpcErr) {
			// The node simulated the call and it reverted
			return 0, mkterr.WithCause(mkterr.ErrGasEstimationFailed, err)
		}
		return 0, err
	}

	return limit + limit*gasLimitMarginPercent/100, nil
}

// SuggestGasPrice returns the gas price for the configured strategy, or the
// pinned price when one is configured. Pinning is the explicit fallback for
// nodes with unreliable eth_gasPrice; it applies to every write path alike.
func (c *Client) SuggestGasPrice(ctx context.Context, strategy GasStrategy, pinned *big.Int) (*big.Int, error) {
	if pinned != nil && pinned.Sign() > 0 {
		return pinned, nil
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	suggested, err := retryRead(ctx, c, "eth_gasPrice", func() (*big.Int, error) {
		return c.rpcClient.GasPrice(ctx)
	})
	if err != nil {
		return nil, err
	}

	switch strategy {
	case GasStrategySlow:
		return multiplyBigInt(suggested, slowMultiplier), nil
	case GasStrategyFast:
		return multiplyBigInt(suggested, fastMultiplier), nil
	case GasStrategyMedium:
		return suggested, nil
	default:
		return suggested, nil
	}
}

// multiplyBigInt multiplies a big.Int by a float multiplier.
func multiplyBigInt(n *big.Int, multiplier float64) *big.Int {
	f := new(big.Float).SetInt(n)
	m := new(big.Float).SetFloat64(multiplier)
	f.Mul(f, m)

	result, _ := f.Int(nil)
	return result
}

// nonceStalePhrases are the node error messages that indicate the submitted
// nonce is no longer usable. Matching is deliberately substring-based: the
// exact wording varies between geth, ganache, and hosted providers.
//
//nolint:gochecknoglobals // Fixed vocabulary
var nonceStalePhrases = []string{
	"nonce too low",
	"already known",
	"replacement transaction underpriced",
	"same nonce",
}

// classifySubmissionError maps a raw submission failure onto the error
// taxonomy. Node-level admission errors become SubmissionRejected; anything
// without a JSON-RPC error attached is a transport failure.
func classifySubmissionError(err error) error {
	var rpcErr *rpc.Error
	if errors.As(err, &rpcErr) {
		return mkterr.WithCause(mkterr.ErrSubmissionRejected, err)
	}

	if errors.Is(err, mkterr.ErrNodeUnavailable) {
		return err
	}

	return mkterr.WithCause(mkterr.ErrNodeUnavailable, err)
}

// IsNonceStale reports whether a submission rejection was caused by a stale
// nonce. The orchestrator retries exactly once with a fresh nonce in that
// case; every other rejection is terminal.
func IsNonceStale(err error) bool {
	var rpcErr *rpc.Error
	if !errors.As(err, &rpcErr) {
		return false
	}

	msg := strings.ToLower(rpcErr.Message)
	for _, phrase := range nonceStalePhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}
