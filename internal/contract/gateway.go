package contract

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/snaillabs/snailmarket/internal/chain/eth/rpc"
	mkterr "github.com/snaillabs/snailmarket/pkg/errors"
)

// Contract function names, matching the SnailMarket ABI.
const (
	fnGetAllSnails    = "getAllSnails"
	fnGetSnailDetails = "getSnailDetails"
	fnAddSnail        = "addSnail"
	fnBuySnails       = "buySnails"
	fnWithdraw        = "withdraw"
)

// Item is a snail listing as stored on-chain. Prices are kept in wei inside
// the service; conversion to decimal ETH happens at the API boundary only.
type Item struct {
	ID       uint64
	Name     string
	PriceWei *big.Int
	Stock    uint64
}

// CallData is an encoded contract call ready for the orchestrator: target
// address, ABI-encoded arguments, and the value to attach.
type CallData struct {
	To    string
	Data  []byte
	Value *big.Int
}

// Querier is the read-side chain dependency of the gateway.
type Querier interface {
	Query(ctx context.Context, contractAddress string, data []byte) ([]byte, error)
	GetBalance(ctx context.Context, address string) (*big.Int, error)
}

// Gateway encodes and decodes calls against the deployed SnailMarket
// contract. Immutable after construction.
type Gateway struct {
	artifact *Artifact
	querier  Querier
}

// NewGateway creates a gateway bound to a deployed contract.
func NewGateway(artifact *Artifact, querier Querier) *Gateway {
	return &Gateway{
		artifact: artifact,
		querier:  querier,
	}
}

// Address returns the deployed contract address.
func (g *Gateway) Address() string {
	return g.artifact.Address
}

// ListAll fetches every snail on the market. The contract returns parallel
// arrays (ids, names, prices, stocks); mismatched lengths are a protocol
// violation and reported as UpstreamReadError, never silently truncated.
func (g *Gateway) ListAll(ctx context.Context) ([]Item, error) {
	data, err := g.artifact.ABI.Pack(fnGetAllSnails)
	if err != nil {
		return nil, mkterr.WithCause(mkterr.ErrUpstreamRead, err)
	}

	raw, err := g.querier.Query(ctx, g.artifact.Address, data)
	if err != nil {
		return nil, err
	}

	out, err := g.artifact.ABI.Unpack(fnGetAllSnails, raw)
	if err != nil {
		return nil, mkterr.WithCause(mkterr.ErrUpstreamRead, err)
	}
	if len(out) != 4 {
		return nil, mkterr.WithDetails(mkterr.ErrUpstreamRead, map[string]string{
			"reason": fmt.Sprintf("getAllSnails returned %d values, want 4", len(out)),
		})
	}

	ids, ok1 := out[0].([]*big.Int)
	names, ok2 := out[1].([]string)
	prices, ok3 := out[2].([]*big.Int)
	stocks, ok4 := out[3].([]*big.Int)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, mkterr.WithDetails(mkterr.ErrUpstreamRead, map[string]string{
			"reason": "getAllSnails returned unexpected types",
		})
	}

	if len(names) != len(ids) || len(prices) != len(ids) || len(stocks) != len(ids) {
		return nil, mkterr.WithDetails(mkterr.ErrUpstreamRead, map[string]string{
			"reason": "parallel arrays have inconsistent lengths",
			"lengths": fmt.Sprintf("ids=%d names=%d prices=%d stocks=%d",
				len(ids), len(names), len(prices), len(stocks)),
		})
	}

	items := make([]Item, 0, len(ids))
	for i := range ids {
		items = append(items, Item{
			ID:       ids[i].Uint64(),
			Name:     names[i],
			PriceWei: prices[i],
			Stock:    stocks[i].Uint64(),
		})
	}

	return items, nil
}

// GetByID fetches a single snail. The contract signals an unknown id either
// by reverting or by returning a zero-valued record; both map to ItemNotFound.
func (g *Gateway) GetByID(ctx context.Context, id uint64) (Item, error) {
	data, err := g.artifact.ABI.Pack(fnGetSnailDetails, new(big.Int).SetUint64(id))
	if err != nil {
		return Item{}, mkterr.WithCause(mkterr.ErrUpstreamRead, err)
	}

	raw, err := g.querier.Query(ctx, g.artifact.Address, data)
	if err != nil {
		if isCallRevert(err) {
			return Item{}, notFound(id)
		}
		return Item{}, err
	}

	out, err := g.artifact.ABI.Unpack(fnGetSnailDetails, raw)
	if err != nil {
		return Item{}, mkterr.WithCause(mkterr.ErrUpstreamRead, err)
	}
	if len(out) != 3 {
		return Item{}, mkterr.WithDetails(mkterr.ErrUpstreamRead, map[string]string{
			"reason": fmt.Sprintf("getSnailDetails returned %d values, want 3", len(out)),
		})
	}

	name, ok1 := out[0].(string)
	price, ok2 := out[1].(*big.Int)
	stock, ok3 := out[2].(*big.Int)
	if !ok1 || !ok2 || !ok3 {
		return Item{}, mkterr.WithDetails(mkterr.ErrUpstreamRead, map[string]string{
			"reason": "getSnailDetails returned unexpected types",
		})
	}

	// An all-zero record is the contract's way of saying the id is unknown
	if name == "" && price.Sign() == 0 && stock.Sign() == 0 {
		return Item{}, notFound(id)
	}

	return Item{
		ID:       id,
		Name:     name,
		PriceWei: price,
		Stock:    stock.Uint64(),
	}, nil
}

// EncodeAdd encodes an addSnail call. priceWei is the per-unit price; no
// value is attached (owner-only, non-payable).
func (g *Gateway) EncodeAdd(name string, priceWei *big.Int, stock uint64) (CallData, error) {
	data, err := g.artifact.ABI.Pack(fnAddSnail, name, priceWei, new(big.Int).SetUint64(stock))
	if err != nil {
		return CallData{}, mkterr.WithCause(mkterr.ErrUpstreamRead, err)
	}

	return CallData{
		To:    g.artifact.Address,
		Data:  data,
		Value: big.NewInt(0),
	}, nil
}

// EncodePurchase encodes a buySnails call. The attached value is computed
// here as price(id) x quantity from current chain state; whatever number the
// client supplied never reaches the transaction.
func (g *Gateway) EncodePurchase(ctx context.Context, id, quantity uint64) (CallData, Item, error) {
	item, err := g.GetByID(ctx, id)
	if err != nil {
		return CallData{}, Item{}, err
	}

	data, err := g.artifact.ABI.Pack(fnBuySnails,
		new(big.Int).SetUint64(id), new(big.Int).SetUint64(quantity))
	if err != nil {
		return CallData{}, Item{}, mkterr.WithCause(mkterr.ErrUpstreamRead, err)
	}

	value := new(big.Int).Mul(item.PriceWei, new(big.Int).SetUint64(quantity))

	return CallData{
		To:    g.artifact.Address,
		Data:  data,
		Value: value,
	}, item, nil
}

// EncodeWithdraw encodes a withdraw call (owner-only, non-payable).
func (g *Gateway) EncodeWithdraw() (CallData, error) {
	data, err := g.artifact.ABI.Pack(fnWithdraw)
	if err != nil {
		return CallData{}, mkterr.WithCause(mkterr.ErrUpstreamRead, err)
	}

	return CallData{
		To:    g.artifact.Address,
		Data:  data,
		Value: big.NewInt(0),
	}, nil
}

// ContractBalance returns the ETH held by the contract, in wei.
func (g *Gateway) ContractBalance(ctx context.Context) (*big.Int, error) {
	return g.querier.GetBalance(ctx, g.artifact.Address)
}

// isCallRevert reports whether a read failed because the node simulated the
// call and it reverted, as opposed to a transport or decoding failure.
func isCallRevert(err error) bool {
	var rpcErr *rpc.Error
	return errors.As(err, &rpcErr)
}

func notFound(id uint64) error {
	return mkterr.WithDetails(mkterr.ErrItemNotFound, map[string]string{
		"snail_id": fmt.Sprintf("%d", id),
	})
}
