package eth

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mkterr "github.com/snaillabs/snailmarket/pkg/errors"
)

// Well-known ganache development key (account 0 of the default seed).
const (
	ganacheKeyHex  = "4f3edf983ac636a65a842ce7c78d9aa706d3b113bce9c46f30d7d21715b23b1d"
	ganacheAddress = "0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1"
)

func validParams() *TxParams {
	return &TxParams{
		From:     ganacheAddress,
		To:       testAddress,
		Value:    big.NewInt(0),
		GasLimit: 100000,
		GasPrice: big.NewInt(20_000_000_000),
		Nonce:    3,
		ChainID:  big.NewInt(1337),
		Data:     []byte{0xa9, 0x05, 0x9c, 0xbb},
	}
}

func TestTxParams_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*TxParams)
	}{
		{"bad from", func(p *TxParams) { p.From = "xyz" }},
		{"bad to", func(p *TxParams) { p.To = "" }},
		{"nil value", func(p *TxParams) { p.Value = nil }},
		{"nil gas price", func(p *TxParams) { p.GasPrice = nil }},
		{"zero gas price", func(p *TxParams) { p.GasPrice = big.NewInt(0) }},
		{"zero gas limit", func(p *TxParams) { p.GasLimit = 0 }},
		{"nil chain id", func(p *TxParams) { p.ChainID = nil }},
	}

	require.NoError(t, validParams().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := validParams()
			tt.mutate(p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestBuildTransaction(t *testing.T) {
	t.Parallel()

	params := validParams()
	tx, err := BuildTransaction(params)
	require.NoError(t, err)

	assert.Equal(t, uint64(3), tx.Nonce())
	assert.Equal(t, uint64(100000), tx.Gas())
	assert.Equal(t, 0, tx.GasPrice().Cmp(params.GasPrice))
	assert.Equal(t, params.Data, tx.Data())
	require.NotNil(t, tx.To())
	assert.Equal(t, testAddress, ToChecksumAddress(tx.To().Hex()))
}

func TestSignTransaction_RecoversSender(t *testing.T) {
	t.Parallel()

	key, err := hex.DecodeString(ganacheKeyHex)
	require.NoError(t, err)

	tx, err := BuildTransaction(validParams())
	require.NoError(t, err)

	chainID := big.NewInt(1337)
	signed, err := SignTransaction(tx, key, chainID)
	require.NoError(t, err)

	signer := types.NewEIP155Signer(chainID)
	sender, err := types.Sender(signer, signed)
	require.NoError(t, err)
	assert.Equal(t, ganacheAddress, ToChecksumAddress(sender.Hex()))
}

func TestSignTransaction_BadKey(t *testing.T) {
	t.Parallel()

	tx, err := BuildTransaction(validParams())
	require.NoError(t, err)

	_, err = SignTransaction(tx, []byte{0x01, 0x02}, big.NewInt(1337))
	require.Error(t, err)
	assert.ErrorIs(t, err, mkterr.ErrCredentialNotFound)
	assert.NotContains(t, err.Error(), "0102", "error must not echo key bytes")
}

func TestEncodeSigned_RoundTrips(t *testing.T) {
	t.Parallel()

	key, err := hex.DecodeString(ganacheKeyHex)
	require.NoError(t, err)

	tx, err := BuildTransaction(validParams())
	require.NoError(t, err)

	signed, err := SignTransaction(tx, key, big.NewInt(1337))
	require.NoError(t, err)

	raw, err := EncodeSigned(signed)
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	var decoded types.Transaction
	require.NoError(t, decoded.UnmarshalBinary(raw))
	assert.Equal(t, signed.Hash(), decoded.Hash())
}

func TestDeriveAddress(t *testing.T) {
	t.Parallel()

	key, err := hex.DecodeString(ganacheKeyHex)
	require.NoError(t, err)

	addr, err := DeriveAddress(key)
	require.NoError(t, err)
	assert.Equal(t, ganacheAddress, addr)
}

func TestZeroPrivateKey(t *testing.T) {
	t.Parallel()

	key := []byte{0x01, 0x02, 0x03}
	ZeroPrivateKey(key)
	assert.Equal(t, []byte{0x00, 0x00, 0x00}, key)
}
