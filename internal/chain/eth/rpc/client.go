// Package rpc provides a minimal JSON-RPC 2.0 client for Ethereum nodes.
package rpc

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"

	mkterr "github.com/snaillabs/snailmarket/pkg/errors"
)

var (
	// ErrInvalidHexNumber indicates an invalid hex number in a node response.
	ErrInvalidHexNumber = &mkterr.MarketError{
		Code:       "RPC_INVALID_HEX",
		Message:    "invalid hex number in RPC response",
		HTTPStatus: 502,
	}
)

// Error represents a JSON-RPC error returned by the node. Submission-time
// rejections (nonce too low, insufficient funds, underpriced) arrive as these
// and are classified by the caller; transport failures never produce one.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// Client is a minimal Ethereum JSON-RPC client.
type Client struct {
	url        string
	httpClient *http.Client
	idCounter  atomic.Uint64
}

// ClientOptions contains optional configuration for the RPC client.
type ClientOptions struct {
	// Transport overrides the default HTTP transport.
	Transport http.RoundTripper
}

// NewClient creates a new RPC client.
func NewClient(url string) *Client {
	return NewClientWithOptions(url, nil)
}

// NewClientWithOptions creates a new RPC client with custom options.
func NewClientWithOptions(url string, opts *ClientOptions) *Client {
	hc := &http.Client{}
	if opts != nil && opts.Transport != nil {
		hc.Transport = opts.Transport
	}
	return &Client{
		url:        url,
		httpClient: hc,
	}
}

// request represents a JSON-RPC 2.0 request.
type request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      uint64 `json:"id"`
}

// response represents a JSON-RPC 2.0 response.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *Error          `json:"error,omitempty"`
}

// Call performs a JSON-RPC call. Transport failures are returned wrapped in
// ErrNodeUnavailable; node-reported errors are returned as *Error.
func (c *Client) Call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}

	req := request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.idCounter.Add(1),
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, mkterr.WithCause(mkterr.ErrNodeUnavailable, err)
	}
	// Body.Close error is intentionally ignored as it only fails if the
	// connection is already broken, and there's no recovery action.
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, mkterr.WithCause(mkterr.ErrNodeUnavailable, err)
	}

	var resp response
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, mkterr.WithCause(mkterr.ErrUpstreamRead,
			fmt.Errorf("unmarshaling response: %w", err))
	}

	if resp.Error != nil {
		return nil, resp.Error
	}

	return resp.Result, nil
}

// ChainID returns the chain ID.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	return c.callBigInt(ctx, "eth_chainId")
}

// GetBalance returns the balance of an address in wei.
func (c *Client) GetBalance(ctx context.Context, address, block string) (*big.Int, error) {
	if block == "" {
		block = "latest"
	}
	return c.callBigInt(ctx, "eth_getBalance", address, block)
}

// GetTransactionCount returns the nonce for an address.
func (c *Client) GetTransactionCount(ctx context.Context, address, block string) (uint64, error) {
	if block == "" {
		block = "pending"
	}

	n, err := c.callBigInt(ctx, "eth_getTransactionCount", address, block)
	if err != nil {
		return 0, err
	}
	return n.Uint64(), nil
}

// GasPrice returns the current gas price in wei.
func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	return c.callBigInt(ctx, "eth_gasPrice")
}

// CallMsg represents the parameters for eth_call and eth_estimateGas.
type CallMsg struct {
	From  string   `json:"from,omitempty"`
	To    string   `json:"to"`
	Gas   uint64   `json:"gas,omitempty"`
	Value *big.Int `json:"value,omitempty"`
	Data  []byte   `json:"data,omitempty"`
}

// MarshalJSON implements custom JSON marshaling for CallMsg.
func (m CallMsg) MarshalJSON() ([]byte, error) {
	type callMsgJSON struct {
		From  string `json:"from,omitempty"`
		To    string `json:"to"`
		Gas   string `json:"gas,omitempty"`
		Value string `json:"value,omitempty"`
		Data  string `json:"data,omitempty"`
	}

	msg := callMsgJSON{
		From: m.From,
		To:   m.To,
	}

	if m.Gas > 0 {
		msg.Gas = fmt.Sprintf("0x%x", m.Gas)
	}
	if m.Value != nil && m.Value.Sign() > 0 {
		msg.Value = "0x" + m.Value.Text(16)
	}
	if len(m.Data) > 0 {
		msg.Data = "0x" + hex.EncodeToString(m.Data)
	}

	return json.Marshal(msg)
}

// EthCall performs an eth_call.
func (c *Client) EthCall(ctx context.Context, msg CallMsg, block string) ([]byte, error) {
	if block == "" {
		block = "latest"
	}

	result, err := c.Call(ctx, "eth_call", msg, block)
	if err != nil {
		return nil, err
	}

	var hexVal string
	if err := json.Unmarshal(result, &hexVal); err != nil {
		return nil, mkterr.WithCause(mkterr.ErrUpstreamRead,
			fmt.Errorf("parsing call result: %w", err))
	}

	return parseHexBytes(hexVal)
}

// EstimateGas estimates the gas needed for a transaction.
func (c *Client) EstimateGas(ctx context.Context, msg CallMsg) (uint64, error) {
	result, err := c.Call(ctx, "eth_estimateGas", msg)
	if err != nil {
		return 0, err
	}

	var hexVal string
	if unmarshalErr := json.Unmarshal(result, &hexVal); unmarshalErr != nil {
		return 0, mkterr.WithCause(mkterr.ErrUpstreamRead,
			fmt.Errorf("parsing gas estimate: %w", unmarshalErr))
	}

	n, err := parseHexBigInt(hexVal)
	if err != nil {
		return 0, err
	}

	return n.Uint64(), nil
}

// SendRawTransaction sends a signed transaction.
// Returns the transaction hash.
func (c *Client) SendRawTransaction(ctx context.Context, signedTx []byte) (string, error) {
	hexTx := "0x" + hex.EncodeToString(signedTx)

	result, err := c.Call(ctx, "eth_sendRawTransaction", hexTx)
	if err != nil {
		return "", err
	}

	var txHash string
	if err := json.Unmarshal(result, &txHash); err != nil {
		return "", mkterr.WithCause(mkterr.ErrUpstreamRead,
			fmt.Errorf("parsing tx hash: %w", err))
	}

	return txHash, nil
}

// Receipt is the decoded form of an eth_getTransactionReceipt result.
// Status follows EIP-658: 1 means success, 0 means the execution reverted.
type Receipt struct {
	TxHash      string
	BlockHash   string
	BlockNumber *big.Int
	GasUsed     uint64
	Status      uint64
}

// receiptJSON is the wire form of a transaction receipt.
type receiptJSON struct {
	TransactionHash string `json:"transactionHash"`
	BlockHash       string `json:"blockHash"`
	BlockNumber     string `json:"blockNumber"`
	GasUsed         string `json:"gasUsed"`
	Status          string `json:"status"`
}

// GetTransactionReceipt returns the receipt for a transaction hash, or
// (nil, nil) if the transaction is not yet included in a block.
func (c *Client) GetTransactionReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	result, err := c.Call(ctx, "eth_getTransactionReceipt", txHash)
	if err != nil {
		return nil, err
	}

	// The node returns JSON null for pending or unknown transactions
	if len(result) == 0 || string(result) == "null" {
		return nil, nil
	}

	var raw receiptJSON
	if err := json.Unmarshal(result, &raw); err != nil {
		return nil, mkterr.WithCause(mkterr.ErrUpstreamRead,
			fmt.Errorf("parsing receipt: %w", err))
	}

	blockNumber, err := parseHexBigInt(raw.BlockNumber)
	if err != nil {
		return nil, mkterr.WithCause(mkterr.ErrUpstreamRead, err)
	}
	gasUsed, err := parseHexBigInt(raw.GasUsed)
	if err != nil {
		return nil, mkterr.WithCause(mkterr.ErrUpstreamRead, err)
	}
	status, err := parseHexBigInt(raw.Status)
	if err != nil {
		return nil, mkterr.WithCause(mkterr.ErrUpstreamRead, err)
	}

	return &Receipt{
		TxHash:      raw.TransactionHash,
		BlockHash:   raw.BlockHash,
		BlockNumber: blockNumber,
		GasUsed:     gasUsed.Uint64(),
		Status:      status.Uint64(),
	}, nil
}

// parseHexBigInt parses a hex string (with or without 0x prefix) to big.Int.
func parseHexBigInt(s string) (*big.Int, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return big.NewInt(0), nil
	}

	n := new(big.Int)
	if _, ok := n.SetString(s, 16); !ok {
		return nil, ErrInvalidHexNumber
	}

	return n, nil
}

// parseHexBytes parses a hex string to bytes.
func parseHexBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return []byte{}, nil
	}
	return hex.DecodeString(s)
}

// callBigInt performs a call whose result is a single hex quantity.
func (c *Client) callBigInt(ctx context.Context, method string, params ...any) (*big.Int, error) {
	result, err := c.Call(ctx, method, params...)
	if err != nil {
		return nil, err
	}

	var hexVal string
	if err := json.Unmarshal(result, &hexVal); err != nil {
		return nil, mkterr.WithCause(mkterr.ErrUpstreamRead,
			fmt.Errorf("parsing %s result: %w", method, err))
	}

	return parseHexBigInt(hexVal)
}

// Close closes the client.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
