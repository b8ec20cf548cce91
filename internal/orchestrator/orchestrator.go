// Package orchestrator drives a contract write through its full lifecycle:
// gas estimation, nonce acquisition, building, signing, submission, and
// bounded confirmation waiting. Submissions from the same sender are
// serialized so each transaction gets a distinct nonce; the lock is released
// before confirmation waiting so a slow block never blocks the next send.
package orchestrator

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/snaillabs/snailmarket/internal/chain/eth"
	"github.com/snaillabs/snailmarket/internal/chain/eth/rpc"
	"github.com/snaillabs/snailmarket/internal/contract"
	"github.com/snaillabs/snailmarket/internal/keystore"
	"github.com/snaillabs/snailmarket/internal/metrics"
	mkterr "github.com/snaillabs/snailmarket/pkg/errors"
)

// defaultConfirmTimeout bounds how long a request waits for inclusion before
// giving up and returning the hash for later lookup.
const defaultConfirmTimeout = 60 * time.Second

// Status is the terminal state of an orchestrated transaction.
type Status string

const (
	// StatusConfirmed means the transaction was mined and succeeded.
	StatusConfirmed Status = "confirmed"
	// StatusReverted means the transaction was mined but the contract
	// rejected it.
	StatusReverted Status = "reverted"
	// StatusRejected means the node refused to admit the transaction.
	StatusRejected Status = "rejected"
	// StatusTimedOut means the transaction was submitted but not mined
	// within the confirmation window. It may still confirm later.
	StatusTimedOut Status = "timed_out"
)

// Result reports the outcome of an orchestrated write. TxHash is set as soon
// as the node accepts the submission, so reverted and timed-out results still
// carry the hash for later lookup.
type Result struct {
	TxHash  string
	Status  Status
	Receipt *rpc.Receipt
}

// ChainBackend is the node-facing dependency of the orchestrator,
// satisfied by *eth.Client.
type ChainBackend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	GetNonce(ctx context.Context, address string) (uint64, error)
	ResetNonce(address string)
	EstimateGas(ctx context.Context, from, to string, value *big.Int, data []byte) (uint64, error)
	SuggestGasPrice(ctx context.Context, strategy eth.GasStrategy, pinned *big.Int) (*big.Int, error)
	SubmitSigned(ctx context.Context, rawTx []byte) (string, error)
	AwaitConfirmation(ctx context.Context, txHash string, timeout time.Duration) (*rpc.Receipt, error)
}

// Options tunes the orchestrator. Zero values fall back to medium gas
// strategy, node-suggested pricing, and the default confirmation window.
type Options struct {
	// GasStrategy selects the pricing aggressiveness.
	GasStrategy eth.GasStrategy
	// PinnedGasPrice, when positive, bypasses eth_gasPrice entirely.
	PinnedGasPrice *big.Int
	// ConfirmTimeout bounds the receipt wait per transaction.
	ConfirmTimeout time.Duration
}

// Orchestrator executes contract writes. Safe for concurrent use; concurrent
// writes from distinct senders proceed in parallel.
type Orchestrator struct {
	backend        ChainBackend
	gasStrategy    eth.GasStrategy
	pinnedGasPrice *big.Int
	confirmTimeout time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an orchestrator over a chain backend.
func New(backend ChainBackend, opts *Options) *Orchestrator {
	o := &Orchestrator{
		backend:        backend,
		gasStrategy:    eth.GasStrategyMedium,
		confirmTimeout: defaultConfirmTimeout,
		locks:          make(map[string]*sync.Mutex),
	}

	if opts != nil {
		if opts.GasStrategy != "" {
			o.gasStrategy = opts.GasStrategy
		}
		if opts.PinnedGasPrice != nil && opts.PinnedGasPrice.Sign() > 0 {
			o.pinnedGasPrice = opts.PinnedGasPrice
		}
		if opts.ConfirmTimeout > 0 {
			o.confirmTimeout = opts.ConfirmTimeout
		}
	}

	return o
}

// Execute runs a contract write end to end and waits for confirmation.
//
// Failure mapping: a pre-flight simulation failure is GasEstimationFailed
// (nothing was signed), a node admission failure is SubmissionRejected, a
// mined-but-failed transaction is ExecutionReverted, and an expired
// confirmation window is ConfirmationTimeout. The last two return a Result
// carrying the transaction hash alongside the error.
func (o *Orchestrator) Execute(ctx context.Context, cred *keystore.Credential, call contract.CallData) (*Result, error) {
	from := cred.Address()

	// Pre-flight: estimate before acquiring the lock or touching the nonce.
	// A call that would revert fails here without spending anything.
	gasLimit, err := o.backend.EstimateGas(ctx, from, call.To, call.Value, call.Data)
	if err != nil {
		return nil, err
	}

	gasPrice, err := o.backend.SuggestGasPrice(ctx, o.gasStrategy, o.pinnedGasPrice)
	if err != nil {
		return nil, err
	}

	chainID, err := o.backend.ChainID(ctx)
	if err != nil {
		return nil, err
	}

	key := cred.PrivateKey()
	defer eth.ZeroPrivateKey(key)

	txHash, err := o.submitLocked(ctx, from, key, call, gasLimit, gasPrice, chainID)
	if err != nil {
		metrics.Global.RecordTxFailed()
		return nil, err
	}

	metrics.Global.RecordTxSubmitted()

	receipt, err := o.backend.AwaitConfirmation(ctx, txHash, o.confirmTimeout)
	switch {
	case err == nil:
		return &Result{TxHash: txHash, Status: StatusConfirmed, Receipt: receipt}, nil
	case mkterr.Code(err) == mkterr.ErrExecutionReverted.Code:
		metrics.Global.RecordTxFailed()
		return &Result{TxHash: txHash, Status: StatusReverted, Receipt: receipt}, err
	case mkterr.Code(err) == mkterr.ErrConfirmationTimeout.Code:
		// Not a tx failure: the transaction may still confirm later
		return &Result{TxHash: txHash, Status: StatusTimedOut}, err
	default:
		return &Result{TxHash: txHash, Status: StatusTimedOut}, err
	}
}

// submitLocked acquires the sender's submit lock, assigns a nonce, signs, and
// broadcasts. The lock spans nonce acquisition through submission only.
func (o *Orchestrator) submitLocked(ctx context.Context, from string, key []byte, call contract.CallData, gasLimit uint64, gasPrice, chainID *big.Int) (string, error) {
	lock := o.senderLock(from)
	lock.Lock()
	defer lock.Unlock()

	txHash, err := o.signAndSubmit(ctx, from, key, call, gasLimit, gasPrice, chainID)
	if err == nil {
		return txHash, nil
	}

	// A stale nonce means our local tracking diverged from the chain,
	// usually after an external send from the same account. Refresh and
	// retry exactly once; any other rejection is terminal.
	if !eth.IsNonceStale(err) {
		o.backend.ResetNonce(from)
		return "", err
	}

	o.backend.ResetNonce(from)
	return o.signAndSubmit(ctx, from, key, call, gasLimit, gasPrice, chainID)
}

func (o *Orchestrator) signAndSubmit(ctx context.Context, from string, key []byte, call contract.CallData, gasLimit uint64, gasPrice, chainID *big.Int) (string, error) {
	nonce, err := o.backend.GetNonce(ctx, from)
	if err != nil {
		return "", err
	}

	tx, err := eth.BuildTransaction(&eth.TxParams{
		From:     from,
		To:       call.To,
		Value:    call.Value,
		GasLimit: gasLimit,
		GasPrice: gasPrice,
		Nonce:    nonce,
		ChainID:  chainID,
		Data:     call.Data,
	})
	if err != nil {
		return "", err
	}

	signed, err := eth.SignTransaction(tx, key, chainID)
	if err != nil {
		return "", err
	}

	raw, err := eth.EncodeSigned(signed)
	if err != nil {
		return "", err
	}

	return o.backend.SubmitSigned(ctx, raw)
}

// senderLock returns the submit lock for an address, creating it on first
// use. Addresses are compared as supplied; credentials always carry the
// checksummed form.
func (o *Orchestrator) senderLock(address string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()

	lock, ok := o.locks[address]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[address] = lock
	}
	return lock
}
