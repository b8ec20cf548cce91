package eth

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	mkterr "github.com/snaillabs/snailmarket/pkg/errors"
)

// TxParams contains everything needed to build an unsigned contract
// transaction. All fields are mandatory except Data and Value.
type TxParams struct {
	From     string   // Sender address
	To       string   // Contract address
	Value    *big.Int // Attached value in wei (zero for non-payable calls)
	GasLimit uint64   // Gas limit
	GasPrice *big.Int // Gas price in wei
	Nonce    uint64   // Transaction nonce, already reserved for this request
	ChainID  *big.Int // Network chain ID
	Data     []byte   // ABI-encoded call data
}

// Validate checks that the transaction parameters are complete.
func (p *TxParams) Validate() error {
	if !IsValidAddress(p.From) {
		return mkterr.WithDetails(mkterr.ErrInvalidAddress, map[string]string{
			"field":   "from",
			"address": p.From,
		})
	}
	if !IsValidAddress(p.To) {
		return mkterr.WithDetails(mkterr.ErrInvalidAddress, map[string]string{
			"field":   "to",
			"address": p.To,
		})
	}
	if p.Value == nil {
		return mkterr.WithDetails(mkterr.ErrInvalidAmount, map[string]string{
			"reason": "value cannot be nil",
		})
	}
	if p.GasPrice == nil || p.GasPrice.Sign() <= 0 {
		return mkterr.WithDetails(mkterr.ErrConfigInvalid, map[string]string{
			"reason": "gas price must be positive",
		})
	}
	if p.GasLimit == 0 {
		return mkterr.WithDetails(mkterr.ErrConfigInvalid, map[string]string{
			"reason": "gas limit cannot be zero",
		})
	}
	if p.ChainID == nil {
		return mkterr.WithDetails(mkterr.ErrConfigInvalid, map[string]string{
			"reason": "chain ID cannot be nil",
		})
	}
	return nil
}

// BuildTransaction creates an unsigned legacy transaction from parameters.
// Nonce assignment happens before this point, under the caller's submit lock.
func BuildTransaction(params *TxParams) (*types.Transaction, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	toAddr := common.HexToAddress(params.To)

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    params.Nonce,
		To:       &toAddr,
		Value:    params.Value,
		Gas:      params.GasLimit,
		GasPrice: params.GasPrice,
		Data:     params.Data,
	})

	return tx, nil
}

// SignTransaction signs a transaction with the provided private key using
// EIP-155 replay protection. The key bytes never enter the error path.
func SignTransaction(tx *types.Transaction, privateKey []byte, chainID *big.Int) (*types.Transaction, error) {
	key, err := crypto.ToECDSA(privateKey)
	if err != nil {
		// Deliberately not wrapping err: its text could echo key material
		return nil, mkterr.WithDetails(mkterr.ErrCredentialNotFound, map[string]string{
			"reason": "private key is not a valid secp256k1 scalar",
		})
	}

	signer := types.NewEIP155Signer(chainID)

	signedTx, err := types.SignTx(tx, signer, key)
	if err != nil {
		return nil, mkterr.Wrap(err, "signing transaction")
	}

	return signedTx, nil
}

// EncodeSigned serializes a signed transaction to the raw RLP form expected
// by eth_sendRawTransaction.
func EncodeSigned(tx *types.Transaction) ([]byte, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, mkterr.Wrap(err, "encoding transaction")
	}
	return raw, nil
}

// DeriveAddress derives the EIP-55 checksummed address controlled by a
// private key.
func DeriveAddress(privateKey []byte) (string, error) {
	key, err := crypto.ToECDSA(privateKey)
	if err != nil {
		return "", mkterr.WithDetails(mkterr.ErrCredentialNotFound, map[string]string{
			"reason": "private key is not a valid secp256k1 scalar",
		})
	}

	address := crypto.PubkeyToAddress(key.PublicKey)
	return ToChecksumAddress(address.Hex()), nil
}

// ZeroPrivateKey zeros out a private key byte slice once it is no longer
// needed.
func ZeroPrivateKey(key []byte) {
	for i := range key {
		key[i] = 0
	}
}
