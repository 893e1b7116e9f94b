package app

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/andreirk/bscwatch/internal/decode"
	"github.com/andreirk/bscwatch/internal/domain/model"
	"github.com/andreirk/bscwatch/internal/domain/service"
)

// ABI selectors, matching the ones the metadata resolver issues.
const (
	selectorToken0   = "0x0dfe1681"
	selectorToken1   = "0xd21220a7"
	selectorDecimals = "0x313ce567"
)

const (
	quoteAddr  = "0x000000000000000000000000000000000000001a"
	targetAddr = "0x000000000000000000000000000000000000002b"
	pairAddr   = "0x000000000000000000000000000000000000003c"
	wbnbAddr   = "0x000000000000000000000000000000000000dead"
	proxyAddr  = "0x000000000000000000000000000000000000004e"
	senderAddr = "0x000000000000000000000000000000000000005f"
)

func weiAmount(whole int64) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return new(big.Int).Mul(big.NewInt(whole), scale)
}

func weiWord(n *big.Int) string {
	b := n.Bytes()
	word := make([]byte, 32)
	copy(word[32-len(b):], b)
	return hex.EncodeToString(word)
}

func zeroWord() string { return strings.Repeat("0", 64) }

func addrWord(addr string) string {
	trimmed := strings.TrimPrefix(strings.ToLower(addr), "0x")
	return "0x" + strings.Repeat("0", 64-len(trimmed)) + trimmed
}

type wireLog struct {
	Address         string   `json:"address"`
	Topics          []string `json:"topics"`
	Data            string   `json:"data"`
	BlockNumber     string   `json:"blockNumber"`
	TransactionHash string   `json:"transactionHash"`
	LogIndex        string   `json:"logIndex"`
}

type wireFrame struct {
	Method string `json:"method"`
	Params struct {
		Subscription string  `json:"subscription"`
		Result       wireLog `json:"result"`
	} `json:"params"`
}

// buildSwapFrame builds a raw eth_subscription push for a PancakeV2 Swap
// log where amount0In is the quote-asset leg coming in and amount1Out is
// the target-token leg going out (a "buy").
func buildSwapFrame(t *testing.T, logAddr, txHash string, logIndex uint64, amount0In, amount1Out *big.Int) []byte {
	t.Helper()
	data := "0x" + weiWord(amount0In) + zeroWord() + zeroWord() + weiWord(amount1Out)
	var frame wireFrame
	frame.Method = "eth_subscription"
	frame.Params.Subscription = "0xsub1"
	frame.Params.Result = wireLog{
		Address:         logAddr,
		Topics:          []string{decode.TopicV2Swap.Hex()},
		Data:            data,
		BlockNumber:     "0x1",
		TransactionHash: txHash,
		LogIndex:        fmt.Sprintf("0x%x", logIndex),
	}
	raw, err := json.Marshal(frame)
	require.NoError(t, err)
	return raw
}

// buildFourmemeFrame builds a raw eth_subscription push for a log emitted
// by a configured Fourmeme router/proxy address. Its own topics/data carry
// no swap information - decodeFourmemeFrame recovers the swap from the
// transaction's receipt instead.
func buildFourmemeFrame(t *testing.T, logAddr, txHash string, logIndex uint64) []byte {
	t.Helper()
	var frame wireFrame
	frame.Method = "eth_subscription"
	frame.Params.Subscription = "0xsub2"
	frame.Params.Result = wireLog{
		Address:         logAddr,
		Topics:          []string{decode.TopicERC20Transfer.Hex()},
		Data:            "0x",
		BlockNumber:     "0x1",
		TransactionHash: txHash,
		LogIndex:        fmt.Sprintf("0x%x", logIndex),
	}
	raw, err := json.Marshal(frame)
	require.NoError(t, err)
	return raw
}

// transferLog builds a receipt log entry for Transfer(from, to, amount)
// emitted by token.
func transferLog(token, from, to string, amount *big.Int) model.LogEntry {
	return model.LogEntry{
		Address: token,
		Topics:  []string{decode.TopicERC20Transfer.Hex(), addrWord(from), addrWord(to)},
		Data:    "0x" + weiWord(amount),
	}
}

// fourmemeReceipt builds a receipt for a Fourmeme proxy buy: quoteAmt of
// the quote asset moves into proxyAddr, targetAmt of the target token
// moves out.
func fourmemeReceipt(txHash string, quoteAmt, targetAmt *big.Int) *model.ReceiptRecord {
	return &model.ReceiptRecord{
		TxHash: txHash,
		Status: true,
		Logs: []model.LogEntry{
			transferLog(quoteAddr, senderAddr, proxyAddr, quoteAmt),
			transferLog(targetAddr, proxyAddr, senderAddr, targetAmt),
		},
	}
}

func pairRPCResponses() map[string]string {
	return map[string]string{
		pairAddr + "|" + selectorToken0:   addrWord(quoteAddr),
		pairAddr + "|" + selectorToken1:   addrWord(targetAddr),
		quoteAddr + "|" + selectorDecimals: "0x12", // 18
		targetAddr + "|" + selectorDecimals: "0x12", // 18
	}
}

// pipelineHarness bundles a fully wired Pipeline and the fakes backing it,
// exercising the decode -> dedup -> metadata -> layer1 -> layer2 ->
// cooldown -> dispatch data flow with concrete production types end to end.
type pipelineHarness struct {
	pipeline  *Pipeline
	notifier  *fakeNotifier
	sink      *fakeSink
	kv        *fakeKV
	rpc       *fakeRPCClient
	dispatch  *Dispatcher
	stats     *fakeStatsAPI
	launchpad *fakeLaunchpadAPI
}

func newPipelineHarness(t *testing.T, fourmemeAddrs []string, internalRise, externalRise float64, statPriceChange float64) *pipelineHarness {
	t.Helper()

	registry := decode.NewRegistry(fourmemeAddrs, []string{quoteAddr}, wbnbAddr)
	decoder := decode.New(registry)
	dedup := service.NewSeenTxSet(10 * time.Minute)

	kv := newFakeKV()
	rpc := &fakeRPCClient{
		responses: pairRPCResponses(),
		receipts:  make(map[string]*model.ReceiptRecord),
		txValues:  make(map[string]*big.Int),
	}
	launchpad := &fakeLaunchpadAPI{fourmeme: map[string]bool{}}
	resolver := service.NewMetadataResolver(nil, rpc, kv, launchpad, []string{quoteAddr}, nil)

	stats := &fakeStatsAPI{byWindow: map[model.Window]*model.PriceStat{
		model.Window1m: {Window: model.Window1m, PriceChange: statPriceChange, Completeness: model.CompletenessComplete},
	}}
	filter := service.NewFilterEngine(5*time.Minute, stats, launchpad, nil, kv, nil)
	cooldown := service.NewCooldownService(kv, 180*time.Second, 30*time.Second)

	notifier := newFakeNotifier()
	sink := &fakeSink{}
	dispatcher := NewDispatcher(1, 8, cooldown, notifier, sink, nil, nil, kv, nil, testLogger())

	cfg := model.DefaultMonitorConfig()
	rise := internalRise
	cfg.InternalRules.PriceChange.RisePercent = &rise
	extRise := externalRise
	cfg.ExternalRules.PriceChange.RisePercent = &extRise

	pipeline := NewPipeline(
		decoder, dedup, resolver, filter, cooldown, dispatcher,
		rpc, nil, nil, nil, wbnbAddr, []string{quoteAddr},
		func() *model.MonitorConfig { return cfg },
		nil, testLogger(),
	)

	return &pipelineHarness{pipeline: pipeline, notifier: notifier, sink: sink, kv: kv, rpc: rpc, dispatch: dispatcher, stats: stats, launchpad: launchpad}
}

// TestPipeline_EndToEnd_FourmemeProxySwapClearsBothLayersAndDispatches
// exercises the receipt-based decode path: the inbound frame is a log
// emitted by a configured Fourmeme proxy address, carrying no swap data
// itself, and the swap is reconstructed from the transaction's receipt
// (a quote-asset Transfer into the proxy, a target-token Transfer out).
func TestPipeline_EndToEnd_FourmemeProxySwapClearsBothLayersAndDispatches(t *testing.T) {
	h := newPipelineHarness(t, []string{proxyAddr}, 30, 50, 50)
	h.rpc.receipts["0xtxF"] = &model.ReceiptRecord{
		TxHash: "0xtxF",
		Status: true,
		Logs: []model.LogEntry{
			transferLog(quoteAddr, senderAddr, proxyAddr, weiAmount(1000)),
			transferLog(targetAddr, proxyAddr, senderAddr, weiAmount(5000)),
		},
	}

	raw := buildFourmemeFrame(t, proxyAddr, "0xtxF", 0)
	h.pipeline.HandleFrame(raw)

	select {
	case alert := <-h.notifier.sentCh:
		require.Equal(t, targetAddr, alert.Token)
		require.Equal(t, model.OriginInternal, alert.Origin)
		require.Contains(t, alert.Reasons, "price_rise")
	case <-time.After(time.Second):
		t.Fatal("expected an alert to be dispatched")
	}
}

func TestPipeline_Dedup_SecondIdenticalFrameIsDropped(t *testing.T) {
	h := newPipelineHarness(t, []string{proxyAddr}, 30, 50, 50)
	h.rpc.receipts["0xtx1"] = fourmemeReceipt("0xtx1", weiAmount(1000), weiAmount(5000))

	raw := buildFourmemeFrame(t, proxyAddr, "0xtx1", 0)
	h.pipeline.HandleFrame(raw)
	<-h.notifier.sentCh

	h.pipeline.HandleFrame(raw)

	select {
	case <-h.notifier.sentCh:
		t.Fatal("a duplicate (tx_hash, log_index) must not be dispatched twice")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPipeline_Layer1Rejection_BelowThresholdAndCumulative(t *testing.T) {
	h := newPipelineHarness(t, []string{proxyAddr}, 30, 50, 50)
	// 10 USD notional clears neither MinUSDInternal (200) nor, alone,
	// CumulativeMinUSD (1000).
	h.rpc.receipts["0xtx2"] = fourmemeReceipt("0xtx2", weiAmount(10), weiAmount(50))

	raw := buildFourmemeFrame(t, proxyAddr, "0xtx2", 0)
	h.pipeline.HandleFrame(raw)

	select {
	case <-h.notifier.sentCh:
		t.Fatal("an event below both the direct and cumulative thresholds must not dispatch")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPipeline_Layer2Rejection_PriceChangeBelowRiseThreshold(t *testing.T) {
	// statPriceChange of 10 never clears the 30% internal rise rule.
	h := newPipelineHarness(t, []string{proxyAddr}, 30, 50, 10)
	h.rpc.receipts["0xtx3"] = fourmemeReceipt("0xtx3", weiAmount(1000), weiAmount(5000))

	raw := buildFourmemeFrame(t, proxyAddr, "0xtx3", 0)
	h.pipeline.HandleFrame(raw)

	select {
	case <-h.notifier.sentCh:
		t.Fatal("an event that clears layer 1 but fails layer 2 must not dispatch")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPipeline_CooldownRejection_SecondEventForSameTokenWhileActive(t *testing.T) {
	h := newPipelineHarness(t, []string{proxyAddr}, 30, 50, 50)
	h.rpc.receipts["0xtx4"] = fourmemeReceipt("0xtx4", weiAmount(1000), weiAmount(5000))
	h.rpc.receipts["0xtx5"] = fourmemeReceipt("0xtx5", weiAmount(1000), weiAmount(5000))

	first := buildFourmemeFrame(t, proxyAddr, "0xtx4", 0)
	h.pipeline.HandleFrame(first)
	select {
	case <-h.notifier.sentCh:
	case <-time.After(time.Second):
		t.Fatal("expected the first event to dispatch")
	}

	second := buildFourmemeFrame(t, proxyAddr, "0xtx5", 0)
	h.pipeline.HandleFrame(second)

	select {
	case <-h.notifier.sentCh:
		t.Fatal("a second event for the same target token under an active cooldown must not dispatch")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPipeline_ExternalOriginFourmemeGate_RejectsUnclassifiedToken(t *testing.T) {
	// No fourmeme-classified log-emitting addresses, so the Swap log is
	// classified OriginExternal; the target token was not issued via the
	// launchpad, so the external-origin gate must drop it before layer 2.
	h := newPipelineHarness(t, nil, 30, 50, 50)
	h.launchpad.fourmeme[targetAddr] = false

	raw := buildSwapFrame(t, pairAddr, "0xtx6", 0, weiAmount(1000), weiAmount(5000))
	h.pipeline.HandleFrame(raw)

	select {
	case <-h.notifier.sentCh:
		t.Fatal("an external-origin event on a non-launchpad token must not dispatch")
	case <-time.After(100 * time.Millisecond):
	}
}
