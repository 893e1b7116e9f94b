package rpcclient

import (
	"context"
	"encoding/json"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/andreirk/bscwatch/internal/domain/model"
)

// GetReceipt fetches a transaction receipt by hash (C2: get_receipt).
// Returns model.ErrNotFound when the node has no receipt for the hash yet
// (result is JSON null, e.g. the tx hasn't been mined).
func (c *Client) GetReceipt(ctx context.Context, txHash string) (*model.ReceiptRecord, error) {
	raw, err := c.call(ctx, "eth_getTransactionReceipt", []any{txHash})
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return nil, model.ErrNotFound
	}

	var wire struct {
		TransactionHash string `json:"transactionHash"`
		Status          string `json:"status"`
		GasUsed         string `json:"gasUsed"`
		Logs            []struct {
			Address string   `json:"address"`
			Topics  []string `json:"topics"`
			Data    string   `json:"data"`
		} `json:"logs"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, &model.DecodeError{Reason: "malformed receipt: " + err.Error()}
	}

	statusCode, err := hexutil.DecodeUint64(orDefault(wire.Status, "0x0"))
	if err != nil {
		statusCode = 0
	}
	gasUsed, err := hexutil.DecodeUint64(orDefault(wire.GasUsed, "0x0"))
	if err != nil {
		gasUsed = 0
	}

	rec := &model.ReceiptRecord{
		TxHash:  wire.TransactionHash,
		Status:  statusCode == 1,
		GasUsed: gasUsed,
		Logs:    make([]model.LogEntry, 0, len(wire.Logs)),
	}
	for _, l := range wire.Logs {
		rec.Logs = append(rec.Logs, model.LogEntry{Address: l.Address, Topics: l.Topics, Data: l.Data})
	}
	return rec, nil
}

// GetTransactionValue fetches the native BNB value attached to a
// transaction (eth_getTransactionByHash), used to price a Fourmeme proxy
// buy made with plain BNB instead of a WBNB Transfer leg.
func (c *Client) GetTransactionValue(ctx context.Context, txHash string) (*big.Int, error) {
	raw, err := c.call(ctx, "eth_getTransactionByHash", []any{txHash})
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return nil, model.ErrNotFound
	}
	var wire struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, &model.DecodeError{Reason: "malformed transaction: " + err.Error()}
	}
	trimmed := strings.TrimPrefix(orDefault(wire.Value, "0x0"), "0x")
	v, ok := new(big.Int).SetString(trimmed, 16)
	if !ok {
		return nil, &model.DecodeError{Reason: "bad transaction value"}
	}
	return v, nil
}

// EthCall performs a read-only contract call against the given address
// with the given calldata at the given block tag ("latest" if empty),
// returning the raw hex result.
func (c *Client) EthCall(ctx context.Context, to, data, block string) (string, error) {
	if block == "" {
		block = "latest"
	}
	raw, err := c.call(ctx, "eth_call", []any{
		map[string]string{"to": to, "data": data},
		block,
	})
	if err != nil {
		return "", err
	}
	var result string
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", &model.DecodeError{Reason: "malformed eth_call result: " + err.Error()}
	}
	return result, nil
}

// BlockNumber returns the current chain head height.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	raw, err := c.call(ctx, "eth_blockNumber", []any{})
	if err != nil {
		return 0, err
	}
	var hex string
	if err := json.Unmarshal(raw, &hex); err != nil {
		return 0, &model.DecodeError{Reason: "malformed blockNumber result: " + err.Error()}
	}
	return hexutil.DecodeUint64(hex)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
