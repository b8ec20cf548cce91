package orchestrator

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snaillabs/snailmarket/internal/chain/eth"
	"github.com/snaillabs/snailmarket/internal/chain/eth/rpc"
	"github.com/snaillabs/snailmarket/internal/contract"
	"github.com/snaillabs/snailmarket/internal/keystore"
	mkterr "github.com/snaillabs/snailmarket/pkg/errors"
)

// First ganache --deterministic account.
const ganacheKeyHex = "4f3edf983ac636a65a842ce7c78d9aa706d3b113bce9c46f30d7d21715b23b1d"

const contractAddr = "0xCfEB869F69431e42cdB54A4F4f105C19C080A601"

// fakeBackend is a scriptable ChainBackend. Nonces are handed out
// sequentially per address; submissions record the decoded transaction.
type fakeBackend struct {
	mu sync.Mutex

	nonces    map[string]uint64
	submitted []*types.Transaction

	estimateErr error
	gasPriceErr error

	// submitErrs is consumed one per submission attempt; nil entries succeed.
	submitErrs []error
	submits    int

	awaitReceipt *rpc.Receipt
	awaitErr     error

	resetCalls int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		nonces:       map[string]uint64{},
		awaitReceipt: &rpc.Receipt{Status: 1, GasUsed: 21000},
	}
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	return big.NewInt(1337), nil
}

func (f *fakeBackend) GetNonce(_ context.Context, address string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.nonces[address]
	f.nonces[address] = n + 1
	return n, nil
}

func (f *fakeBackend) ResetNonce(string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetCalls++
}

func (f *fakeBackend) EstimateGas(_ context.Context, _, _ string, _ *big.Int, _ []byte) (uint64, error) {
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return 120000, nil
}

func (f *fakeBackend) SuggestGasPrice(_ context.Context, _ eth.GasStrategy, pinned *big.Int) (*big.Int, error) {
	if f.gasPriceErr != nil {
		return nil, f.gasPriceErr
	}
	if pinned != nil && pinned.Sign() > 0 {
		return pinned, nil
	}
	return big.NewInt(20_000_000_000), nil
}

func (f *fakeBackend) SubmitSigned(_ context.Context, rawTx []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	attempt := f.submits
	f.submits++
	if attempt < len(f.submitErrs) && f.submitErrs[attempt] != nil {
		return "", f.submitErrs[attempt]
	}

	var tx types.Transaction
	if err := tx.UnmarshalBinary(rawTx); err != nil {
		return "", err
	}
	f.submitted = append(f.submitted, &tx)
	return tx.Hash().Hex(), nil
}

func (f *fakeBackend) AwaitConfirmation(_ context.Context, txHash string, _ time.Duration) (*rpc.Receipt, error) {
	if f.awaitErr != nil {
		var receipt *rpc.Receipt
		if mkterr.Code(f.awaitErr) == mkterr.ErrExecutionReverted.Code {
			receipt = &rpc.Receipt{TxHash: txHash, Status: 0}
		}
		return receipt, f.awaitErr
	}
	r := *f.awaitReceipt
	r.TxHash = txHash
	return &r, nil
}

func testCredential(t *testing.T) *keystore.Credential {
	t.Helper()

	ks, err := keystore.New(keystore.Source{HexKey: ganacheKeyHex}, keystore.Source{})
	require.NoError(t, err)

	cred, err := ks.Resolve(keystore.RoleOwner)
	require.NoError(t, err)
	return cred
}

func testCall() contract.CallData {
	return contract.CallData{
		To:    contractAddr,
		Data:  []byte{0x01, 0x02, 0x03, 0x04},
		Value: big.NewInt(20_000_000_000_000_000),
	}
}

func TestExecute_Confirmed(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	o := New(backend, nil)

	result, err := o.Execute(context.Background(), testCredential(t), testCall())
	require.NoError(t, err)

	assert.Equal(t, StatusConfirmed, result.Status)
	assert.NotEmpty(t, result.TxHash)
	require.NotNil(t, result.Receipt)
	assert.Equal(t, uint64(1), result.Receipt.Status)

	// The signed transaction carries the server-computed value and nonce 0
	require.Len(t, backend.submitted, 1)
	tx := backend.submitted[0]
	assert.Equal(t, 0, tx.Value().Cmp(big.NewInt(20_000_000_000_000_000)))
	assert.Equal(t, uint64(0), tx.Nonce())
	assert.Equal(t, uint64(120000), tx.Gas())
}

func TestExecute_EstimationFailureIsPreFlight(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.estimateErr = mkterr.WithCause(mkterr.ErrGasEstimationFailed,
		&rpc.Error{Code: 3, Message: "execution reverted: Not enough stock"})
	o := New(backend, nil)

	result, err := o.Execute(context.Background(), testCredential(t), testCall())
	require.Error(t, err)
	assert.ErrorIs(t, err, mkterr.ErrGasEstimationFailed)
	assert.Nil(t, result)
	assert.Zero(t, backend.submits, "nothing may be signed or submitted after a failed estimate")
}

func TestExecute_PinnedGasPrice(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	pinned := big.NewInt(7_000_000_000)
	o := New(backend, &Options{PinnedGasPrice: pinned})

	_, err := o.Execute(context.Background(), testCredential(t), testCall())
	require.NoError(t, err)

	require.Len(t, backend.submitted, 1)
	assert.Equal(t, 0, backend.submitted[0].GasPrice().Cmp(pinned))
}

func TestExecute_RejectionIsTerminal(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.submitErrs = []error{
		mkterr.WithCause(mkterr.ErrSubmissionRejected,
			&rpc.Error{Code: -32000, Message: "insufficient funds for gas * price + value"}),
	}
	o := New(backend, nil)

	result, err := o.Execute(context.Background(), testCredential(t), testCall())
	require.Error(t, err)
	assert.ErrorIs(t, err, mkterr.ErrSubmissionRejected)
	assert.Nil(t, result)
	assert.Equal(t, 1, backend.submits, "non-nonce rejections must not be retried")
	assert.Equal(t, 1, backend.resetCalls, "local nonce tracking is dropped after a rejection")
}

func TestExecute_StaleNonceRetriedOnce(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	staleErr := mkterr.WithCause(mkterr.ErrSubmissionRejected,
		&rpc.Error{Code: -32000, Message: "the tx doesn't have the correct nonce: nonce too low"})
	backend.submitErrs = []error{staleErr}
	o := New(backend, nil)

	result, err := o.Execute(context.Background(), testCredential(t), testCall())
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, result.Status)
	assert.Equal(t, 2, backend.submits)
	require.Len(t, backend.submitted, 1)
	assert.Equal(t, uint64(1), backend.submitted[0].Nonce(), "retry must use a freshly assigned nonce")
}

func TestExecute_StaleNonceNotRetriedTwice(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	staleErr := mkterr.WithCause(mkterr.ErrSubmissionRejected,
		&rpc.Error{Code: -32000, Message: "nonce too low"})
	backend.submitErrs = []error{staleErr, staleErr}
	o := New(backend, nil)

	_, err := o.Execute(context.Background(), testCredential(t), testCall())
	require.Error(t, err)
	assert.ErrorIs(t, err, mkterr.ErrSubmissionRejected)
	assert.Equal(t, 2, backend.submits, "exactly one nonce-refresh retry")
}

func TestExecute_RevertCarriesHash(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.awaitErr = mkterr.WithDetails(mkterr.ErrExecutionReverted, map[string]string{
		"tx_hash": "0xdead",
	})
	o := New(backend, nil)

	result, err := o.Execute(context.Background(), testCredential(t), testCall())
	require.Error(t, err)
	assert.ErrorIs(t, err, mkterr.ErrExecutionReverted)
	require.NotNil(t, result)
	assert.Equal(t, StatusReverted, result.Status)
	assert.NotEmpty(t, result.TxHash)
}

func TestExecute_TimeoutCarriesHash(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.awaitErr = mkterr.WithDetails(mkterr.ErrConfirmationTimeout, map[string]string{
		"tx_hash": "0xdead",
	})
	o := New(backend, nil)

	result, err := o.Execute(context.Background(), testCredential(t), testCall())
	require.Error(t, err)
	assert.ErrorIs(t, err, mkterr.ErrConfirmationTimeout)
	require.NotNil(t, result)
	assert.Equal(t, StatusTimedOut, result.Status)
	assert.NotEmpty(t, result.TxHash, "a timed-out submission must still report its hash")
}

// Concurrent writes from one sender must each get a distinct nonce.
func TestExecute_ConcurrentSendsDistinctNonces(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	o := New(backend, nil)
	cred := testCredential(t)

	const n = 8
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.Execute(context.Background(), cred, testCall())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, backend.submitted, n)
	seen := make(map[uint64]bool, n)
	for _, tx := range backend.submitted {
		assert.False(t, seen[tx.Nonce()], "nonce %d assigned twice", tx.Nonce())
		seen[tx.Nonce()] = true
	}
}
