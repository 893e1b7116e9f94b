package decode

import (
	"encoding/json"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/andreirk/bscwatch/internal/domain/model"
)

// Decoder turns raw WebSocket frames into domain events. It holds no
// mutable state beyond the address registry, so one Decoder is shared by
// every caller.
type Decoder struct {
	registry *Registry
}

// New creates a Decoder bound to the given address registry.
func New(registry *Registry) *Decoder {
	return &Decoder{registry: registry}
}

// DecodeSubscribeAck extracts the subscription id from an eth_subscribe
// response frame.
func (d *Decoder) DecodeSubscribeAck(raw []byte) (reqID int, subID string, err error) {
	var ack subscribeAck
	if jsonErr := json.Unmarshal(raw, &ack); jsonErr != nil {
		return 0, "", &model.DecodeError{Reason: "malformed subscribe ack: " + jsonErr.Error()}
	}
	if ack.Error != nil {
		return ack.ID, "", &model.DecodeError{Reason: "subscribe rejected: " + ack.Error.Message}
	}
	var subscriptionID string
	if err := json.Unmarshal(ack.Result, &subscriptionID); err != nil {
		return ack.ID, "", &model.DecodeError{Reason: "subscribe ack result not a string"}
	}
	return ack.ID, subscriptionID, nil
}

// RawLog is a log's address/tx-hash/log-index identity, extracted without
// committing to any particular decode strategy. Callers use it to decide
// between the topic0-keyed AMM decode (DecodeLogEvent) and the
// receipt-based Fourmeme decode (DecodeFourmemeEvent) before paying for
// either.
type RawLog struct {
	Address         string
	TransactionHash string
	LogIndex        uint64
	BlockNumber     uint64
	Topic0          string
}

// PeekLog extracts a log's routing identity from a raw eth_subscription
// frame without decoding its data payload.
func (d *Decoder) PeekLog(raw []byte) (*RawLog, string, error) {
	var frame subscriptionFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, "", &model.DecodeError{Reason: "malformed subscription frame: " + err.Error()}
	}
	var lf logFrame
	if err := json.Unmarshal(frame.Params.Result, &lf); err != nil {
		return nil, frame.Params.Subscription, &model.DecodeError{Reason: "malformed log result: " + err.Error()}
	}
	if len(lf.Topics) == 0 {
		return nil, frame.Params.Subscription, &model.DecodeError{Reason: "log has no topics"}
	}
	blockNum, _ := hexutil.DecodeUint64(orZeroHex(lf.BlockNumber))
	logIndex, _ := hexutil.DecodeUint64(orZeroHex(lf.LogIndex))
	return &RawLog{
		Address:         strings.ToLower(lf.Address),
		TransactionHash: lf.TransactionHash,
		LogIndex:        logIndex,
		BlockNumber:     blockNum,
		Topic0:          lf.Topics[0],
	}, frame.Params.Subscription, nil
}

// IsFourmemeAddress reports whether addr is a configured Fourmeme
// router/proxy address. Logs from these addresses never carry a
// Swap-shaped payload and must be decoded via DecodeFourmemeEvent instead
// of DecodeLogEvent.
func (d *Decoder) IsFourmemeAddress(addr string) bool {
	return d.registry != nil && d.registry.isFourmemeAddress(addr)
}

// DecodeLogEvent decodes an eth_subscription push into a SwapEvent. It
// returns (nil, subID, nil) for recognized-but-irrelevant logs (topic0 not
// in the known set), which the caller should drop with a counter bump, and
// a *model.DecodeError for malformed frames. Callers must route Fourmeme
// proxy addresses to DecodeFourmemeEvent before calling this.
func (d *Decoder) DecodeLogEvent(raw []byte) (*model.SwapEvent, string, error) {
	var frame subscriptionFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, "", &model.DecodeError{Reason: "malformed subscription frame: " + err.Error()}
	}
	var lf logFrame
	if err := json.Unmarshal(frame.Params.Result, &lf); err != nil {
		return nil, frame.Params.Subscription, &model.DecodeError{Reason: "malformed log result: " + err.Error()}
	}
	if len(lf.Topics) == 0 {
		return nil, frame.Params.Subscription, &model.DecodeError{Reason: "log has no topics"}
	}

	topic0 := common.HexToHash(lf.Topics[0])
	var event *model.SwapEvent
	var err error

	switch topic0 {
	case TopicV2Swap:
		event, err = d.decodeV2Swap(&lf)
	case TopicERC20Transfer:
		// Transfer alone never carries enough information to build a
		// SwapEvent (no pair context); dropped here, left to callers
		// that correlate it with a Swap in the same receipt if needed.
		return nil, frame.Params.Subscription, nil
	default:
		return nil, frame.Params.Subscription, nil
	}
	if err != nil {
		return nil, frame.Params.Subscription, err
	}

	event.Origin = model.OriginExternal
	return event, frame.Params.Subscription, nil
}

// DecodeFourmemeEvent builds a SwapEvent for a log emitted by a configured
// Fourmeme router/proxy address. The proxy routes the call onward rather
// than emitting a Swap log itself, so the quote and target legs are
// recovered from the transaction's full receipt: the quote leg is whichever
// recognized quote asset (WBNB/USDT/USDC) was transferred into the proxy,
// or the transaction's own native BNB value when no such Transfer exists;
// the target leg is the largest token transferred out of the proxy.
func (d *Decoder) DecodeFourmemeEvent(rl *RawLog, receipt *model.ReceiptRecord, nativeValue *big.Int) (*model.SwapEvent, error) {
	proxy := rl.Address

	var quoteToken string
	var quoteAmount *big.Int
	targetAmounts := make(map[string]*big.Int)

	for _, entry := range receipt.Logs {
		if len(entry.Topics) < 3 || common.HexToHash(entry.Topics[0]) != TopicERC20Transfer {
			continue
		}
		from := addressFromTopic(entry.Topics[1])
		to := addressFromTopic(entry.Topics[2])
		token := strings.ToLower(entry.Address)
		value := valueFromData(entry.Data)

		switch {
		case to == proxy && d.registry.IsQuoteAsset(token):
			quoteToken = token
			quoteAmount = addBig(quoteAmount, value)
		case from == proxy && !d.registry.IsQuoteAsset(token):
			targetAmounts[token] = addBig(targetAmounts[token], value)
		}
	}

	if (quoteAmount == nil || quoteAmount.Sign() == 0) && nativeValue != nil && nativeValue.Sign() > 0 {
		quoteToken = d.registry.nativeQuoteAsset()
		quoteAmount = nativeValue
	}
	if quoteToken == "" || quoteAmount == nil || quoteAmount.Sign() == 0 {
		return nil, &model.DecodeError{Reason: "fourmeme receipt has no recognizable quote leg"}
	}

	targetToken, targetAmount := largestAmount(targetAmounts)
	if targetToken == "" {
		return nil, &model.DecodeError{Reason: "fourmeme receipt has no recognizable target leg"}
	}

	kind := model.EventFourmemeProxy
	if d.registry.isPrimaryFourmemeAddress(proxy) {
		kind = model.EventFourmemeRouter
	}

	return &model.SwapEvent{
		TxHash:      rl.TransactionHash,
		LogIndex:    rl.LogIndex,
		Pair:        proxy,
		Token0:      quoteToken,
		Token1:      targetToken,
		Amount0In:   bigToFloat(quoteAmount),
		Amount1Out:  bigToFloat(targetAmount),
		BlockNumber: rl.BlockNumber,
		Timestamp:   time.Now(),
		Kind:        kind,
		Origin:      model.OriginInternal,
	}, nil
}

func addressFromTopic(topic string) string {
	trimmed := strings.TrimPrefix(topic, "0x")
	if len(trimmed) < 40 {
		return "0x" + strings.ToLower(trimmed)
	}
	return "0x" + strings.ToLower(trimmed[len(trimmed)-40:])
}

func valueFromData(data string) *big.Int {
	trimmed := strings.TrimPrefix(data, "0x")
	if trimmed == "" {
		return big.NewInt(0)
	}
	v, ok := new(big.Int).SetString(trimmed, 16)
	if !ok {
		return big.NewInt(0)
	}
	return v
}

func addBig(a, b *big.Int) *big.Int {
	if a == nil {
		return new(big.Int).Set(b)
	}
	return new(big.Int).Add(a, b)
}

func largestAmount(amounts map[string]*big.Int) (string, *big.Int) {
	var bestToken string
	var best *big.Int
	for token, amount := range amounts {
		if best == nil || amount.Cmp(best) > 0 {
			bestToken, best = token, amount
		}
	}
	return bestToken, best
}

func bigToFloat(v *big.Int) float64 {
	f := new(big.Float).SetInt(v)
	out, _ := f.Float64()
	return out
}

// decodeV2Swap decodes a Swap(address,uint256,uint256,uint256,uint256,address)
// log: data holds the four uint256 amounts as four 32-byte words, in order
// amount0In, amount1In, amount0Out, amount1Out.
func (d *Decoder) decodeV2Swap(lf *logFrame) (*model.SwapEvent, error) {
	words, err := splitWords(lf.Data, 4)
	if err != nil {
		return nil, &model.DecodeError{Reason: "swap data layout mismatch: " + err.Error()}
	}

	blockNum, err := hexutil.DecodeUint64(orZeroHex(lf.BlockNumber))
	if err != nil {
		return nil, &model.DecodeError{Reason: "bad blockNumber: " + err.Error()}
	}
	logIndex, err := hexutil.DecodeUint64(orZeroHex(lf.LogIndex))
	if err != nil {
		return nil, &model.DecodeError{Reason: "bad logIndex: " + err.Error()}
	}

	return &model.SwapEvent{
		TxHash:      lf.TransactionHash,
		LogIndex:    logIndex,
		Pair:        strings.ToLower(lf.Address),
		Amount0In:   wordToFloat(words[0]),
		Amount1In:   wordToFloat(words[1]),
		Amount0Out:  wordToFloat(words[2]),
		Amount1Out:  wordToFloat(words[3]),
		BlockNumber: blockNum,
		Timestamp:   time.Now(),
		Kind:        model.EventPancakeV2Swap,
	}, nil
}

// splitWords splits a 0x-prefixed hex data blob into n 32-byte words,
// erroring if the length does not match exactly.
func splitWords(data string, n int) ([][]byte, error) {
	trimmed := strings.TrimPrefix(data, "0x")
	raw, err := hexDecode(trimmed)
	if err != nil {
		return nil, err
	}
	if len(raw) != n*32 {
		return nil, &lengthErr{want: n * 32, got: len(raw)}
	}
	words := make([][]byte, n)
	for i := 0; i < n; i++ {
		words[i] = raw[i*32 : (i+1)*32]
	}
	return words, nil
}

type lengthErr struct{ want, got int }

func (e *lengthErr) Error() string {
	return "expected " + strconv.Itoa(e.want) + " bytes, got " + strconv.Itoa(e.got)
}

func hexDecode(s string) ([]byte, error) {
	return hexutil.Decode("0x" + s)
}

func wordToFloat(word []byte) float64 {
	i := new(big.Int).SetBytes(word)
	f := new(big.Float).SetInt(i)
	v, _ := f.Float64()
	return v
}

func orZeroHex(s string) string {
	if s == "" {
		return "0x0"
	}
	return s
}

// NormalizeAmount converts a raw integer token amount (as decoded from a
// log word) into a human-scale value using the token's decimals.
func NormalizeAmount(raw float64, decimals int) float64 {
	if !model.ValidDecimals(decimals) {
		return 0
	}
	scale := new(big.Float).SetFloat64(1)
	ten := big.NewFloat(10)
	for i := 0; i < decimals; i++ {
		scale.Mul(scale, ten)
	}
	s, _ := scale.Float64()
	if s == 0 {
		return 0
	}
	return raw / s
}
