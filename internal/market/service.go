// Package market implements the marketplace operations exposed over the API:
// listing and fetching snails, adding stock, purchasing, balance lookup, and
// withdrawal. All request validation happens here; amounts cross this
// boundary as decimal ETH strings and travel as wei everywhere below it.
package market

import (
	"context"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/snaillabs/snailmarket/internal/chain"
	"github.com/snaillabs/snailmarket/internal/chain/eth/rpc"
	"github.com/snaillabs/snailmarket/internal/contract"
	"github.com/snaillabs/snailmarket/internal/keystore"
	"github.com/snaillabs/snailmarket/internal/orchestrator"
	mkterr "github.com/snaillabs/snailmarket/pkg/errors"
)

// maxNameLength caps snail names; anything longer is a client mistake.
const maxNameLength = 100

var txHashRegex = regexp.MustCompile("^0x[0-9a-fA-F]{64}$")

// Catalog is the contract read/encode dependency, satisfied by
// *contract.Gateway.
type Catalog interface {
	ListAll(ctx context.Context) ([]contract.Item, error)
	GetByID(ctx context.Context, id uint64) (contract.Item, error)
	EncodeAdd(name string, priceWei *big.Int, stock uint64) (contract.CallData, error)
	EncodePurchase(ctx context.Context, id, quantity uint64) (contract.CallData, contract.Item, error)
	EncodeWithdraw() (contract.CallData, error)
	ContractBalance(ctx context.Context) (*big.Int, error)
}

// Executor runs contract writes, satisfied by *orchestrator.Orchestrator.
type Executor interface {
	Execute(ctx context.Context, cred *keystore.Credential, call contract.CallData) (*orchestrator.Result, error)
}

// CredentialResolver supplies signing credentials by role, satisfied by
// *keystore.Keystore.
type CredentialResolver interface {
	Resolve(role keystore.Role) (*keystore.Credential, error)
}

// ReceiptSource looks up receipts for the status endpoint, satisfied by
// *eth.Client.
type ReceiptSource interface {
	GetReceipt(ctx context.Context, txHash string) (*rpc.Receipt, error)
}

// Logger is the minimal logging surface the service needs.
type Logger interface {
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

// Snail is a listing as served to clients. Price is decimal ETH.
type Snail struct {
	ID    uint64 `json:"id"`
	Name  string `json:"name"`
	Price string `json:"price"`
	Stock uint64 `json:"stock"`
}

// TxOutcome reports the result of a write operation.
type TxOutcome struct {
	TransactionHash string `json:"transactionHash"`
	Status          string `json:"status"`
}

// Balance is the contract's ETH holdings in both units.
type Balance struct {
	Wei string `json:"wei"`
	Eth string `json:"eth"`
}

// TxStatus is the state of a previously submitted transaction.
type TxStatus struct {
	TransactionHash string `json:"transactionHash"`
	Status          string `json:"status"`
	BlockNumber     uint64 `json:"blockNumber,omitempty"`
	GasUsed         uint64 `json:"gasUsed,omitempty"`
}

// AddRequest creates a new listing. Price is decimal ETH per unit.
type AddRequest struct {
	Name  string `json:"name"`
	Price string `json:"price"`
	Stock uint64 `json:"stock"`
}

// BuyRequest purchases from a listing. Value is the decimal ETH the client
// expects to pay in total; it is validated against the on-chain price and
// never attached to the transaction as-is.
type BuyRequest struct {
	SnailID  uint64 `json:"snailId"`
	Quantity uint64 `json:"quantity"`
	Value    string `json:"value"`
}

// Service implements the marketplace operations.
type Service struct {
	catalog  Catalog
	executor Executor
	creds    CredentialResolver
	receipts ReceiptSource
	log      Logger
}

// NewService wires the marketplace service.
func NewService(catalog Catalog, executor Executor, creds CredentialResolver, receipts ReceiptSource, log Logger) *Service {
	return &Service{
		catalog:  catalog,
		executor: executor,
		creds:    creds,
		receipts: receipts,
		log:      log,
	}
}

// ListSnails returns every listing on the market.
func (s *Service) ListSnails(ctx context.Context) ([]Snail, error) {
	items, err := s.catalog.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	snails := make([]Snail, 0, len(items))
	for _, item := range items {
		snails = append(snails, toSnail(item))
	}
	return snails, nil
}

// GetSnail returns a single listing by id.
func (s *Service) GetSnail(ctx context.Context, id uint64) (Snail, error) {
	item, err := s.catalog.GetByID(ctx, id)
	if err != nil {
		return Snail{}, err
	}
	return toSnail(item), nil
}

// AddSnail creates a listing. Owner-only; signed with the owner credential.
func (s *Service) AddSnail(ctx context.Context, req AddRequest) (TxOutcome, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return TxOutcome{}, invalidField("name", "must not be empty")
	}
	if len(name) > maxNameLength {
		return TxOutcome{}, invalidField("name", fmt.Sprintf("must be at most %d characters", maxNameLength))
	}

	priceWei, err := chain.ToWei(req.Price)
	if err != nil {
		return TxOutcome{}, mkterr.WithDetails(mkterr.ErrInvalidAmount, map[string]string{
			"field": "price",
			"value": req.Price,
		})
	}
	if priceWei.Sign() <= 0 {
		return TxOutcome{}, invalidField("price", "must be positive")
	}

	if req.Stock == 0 {
		return TxOutcome{}, invalidField("stock", "must be at least 1")
	}

	call, err := s.catalog.EncodeAdd(name, priceWei, req.Stock)
	if err != nil {
		return TxOutcome{}, err
	}

	cred, err := s.creds.Resolve(keystore.RoleOwner)
	if err != nil {
		return TxOutcome{}, err
	}

	s.log.Infof("adding snail %q price=%s wei stock=%d", name, priceWei, req.Stock)
	return s.execute(ctx, cred, call)
}

// BuySnails purchases quantity units of a listing. The attached value is
// computed from the on-chain price; the client-declared value must agree with
// it exactly, which catches stale price views before any gas is spent.
func (s *Service) BuySnails(ctx context.Context, req BuyRequest) (TxOutcome, error) {
	if req.Quantity == 0 {
		return TxOutcome{}, invalidField("quantity", "must be at least 1")
	}
	if req.Value == "" {
		return TxOutcome{}, invalidField("value", "must not be empty")
	}

	declaredWei, err := chain.ToWei(req.Value)
	if err != nil {
		return TxOutcome{}, mkterr.WithDetails(mkterr.ErrInvalidAmount, map[string]string{
			"field": "value",
			"value": req.Value,
		})
	}

	call, item, err := s.catalog.EncodePurchase(ctx, req.SnailID, req.Quantity)
	if err != nil {
		return TxOutcome{}, err
	}

	// Out-of-stock is caught here as a client error; a concurrent purchase
	// that drains stock between this check and inclusion still surfaces as
	// an on-chain revert.
	if req.Quantity > item.Stock {
		return TxOutcome{}, mkterr.WithDetails(mkterr.ErrInvalidRequest, map[string]string{
			"reason":    "not enough stock",
			"stock":     fmt.Sprintf("%d", item.Stock),
			"requested": fmt.Sprintf("%d", req.Quantity),
		})
	}

	if declaredWei.Cmp(call.Value) != 0 {
		return TxOutcome{}, mkterr.WithDetails(mkterr.ErrInvalidRequest, map[string]string{
			"reason":   "declared value does not match price x quantity",
			"declared": req.Value,
			"expected": chain.FromWei(call.Value),
		})
	}

	cred, err := s.creds.Resolve(keystore.RoleBuyer)
	if err != nil {
		return TxOutcome{}, err
	}

	s.log.Infof("buying %d of snail %d for %s ETH", req.Quantity, req.SnailID, chain.FromWei(call.Value))
	return s.execute(ctx, cred, call)
}

// ContractBalance returns the ETH held by the contract.
func (s *Service) ContractBalance(ctx context.Context) (Balance, error) {
	wei, err := s.catalog.ContractBalance(ctx)
	if err != nil {
		return Balance{}, err
	}

	return Balance{
		Wei: wei.String(),
		Eth: chain.FromWei(wei),
	}, nil
}

// Withdraw moves the contract balance to the owner. Owner-only.
func (s *Service) Withdraw(ctx context.Context) (TxOutcome, error) {
	call, err := s.catalog.EncodeWithdraw()
	if err != nil {
		return TxOutcome{}, err
	}

	cred, err := s.creds.Resolve(keystore.RoleOwner)
	if err != nil {
		return TxOutcome{}, err
	}

	s.log.Infof("withdrawing contract balance to %s", cred.Address())
	return s.execute(ctx, cred, call)
}

// LookupTransaction returns the current state of a submitted transaction:
// pending when no receipt exists yet, otherwise confirmed or reverted.
func (s *Service) LookupTransaction(ctx context.Context, txHash string) (TxStatus, error) {
	if !txHashRegex.MatchString(txHash) {
		return TxStatus{}, invalidField("hash", "must be a 0x-prefixed 32-byte hex hash")
	}

	receipt, err := s.receipts.GetReceipt(ctx, txHash)
	if err != nil {
		return TxStatus{}, err
	}

	if receipt == nil {
		return TxStatus{TransactionHash: txHash, Status: "pending"}, nil
	}

	status := string(orchestrator.StatusConfirmed)
	if receipt.Status == 0 {
		status = string(orchestrator.StatusReverted)
	}

	var blockNumber uint64
	if receipt.BlockNumber != nil {
		blockNumber = receipt.BlockNumber.Uint64()
	}

	return TxStatus{
		TransactionHash: txHash,
		Status:          status,
		BlockNumber:     blockNumber,
		GasUsed:         receipt.GasUsed,
	}, nil
}

// execute runs a write and shapes the outcome. Reverts and timeouts carry a
// hash; the error still propagates so the API maps the right status code.
func (s *Service) execute(ctx context.Context, cred *keystore.Credential, call contract.CallData) (TxOutcome, error) {
	result, err := s.executor.Execute(ctx, cred, call)
	if err != nil {
		if result != nil && result.TxHash != "" {
			s.log.Errorf("transaction %s failed: %v", result.TxHash, err)
			return TxOutcome{TransactionHash: result.TxHash, Status: string(result.Status)}, err
		}
		s.log.Errorf("transaction failed before submission: %v", err)
		return TxOutcome{}, err
	}

	s.log.Infof("transaction %s confirmed", result.TxHash)
	return TxOutcome{
		TransactionHash: result.TxHash,
		Status:          string(result.Status),
	}, nil
}

func toSnail(item contract.Item) Snail {
	return Snail{
		ID:    item.ID,
		Name:  item.Name,
		Price: chain.FromWei(item.PriceWei),
		Stock: item.Stock,
	}
}

func invalidField(field, reason string) error {
	return mkterr.WithDetails(mkterr.ErrInvalidRequest, map[string]string{
		"field":  field,
		"reason": reason,
	})
}
