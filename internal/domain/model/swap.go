// Package model holds the domain entities shared by every layer of the
// engine. Types here are plain data; behavior lives in domain/service.
package model

import (
	"strconv"
	"time"
)

// Origin classifies how a swap reached the chain.
type Origin string

const (
	OriginInternal Origin = "internal" // routed through a Fourmeme router/proxy
	OriginExternal Origin = "external" // routed directly through a DEX pair
)

// EventKind identifies the decoded log type.
type EventKind string

const (
	EventPancakeV2Swap  EventKind = "pancake_v2_swap"
	EventERC20Transfer  EventKind = "erc20_transfer"
	EventFourmemeRouter EventKind = "fourmeme_router"
	EventFourmemeProxy  EventKind = "fourmeme_proxy"
)

// SwapEvent is the immutable, decoded representation of one on-chain swap
// log. Exactly one side of (In, Out) is nonzero per token; the base side is
// the quote asset (WBNB/USDT/USDC) and the other is the target token.
type SwapEvent struct {
	TxHash      string
	LogIndex    uint64
	Pair        string
	Token0      string
	Token1      string
	Amount0In   float64
	Amount0Out  float64
	Amount1In   float64
	Amount1Out  float64
	BlockNumber uint64
	Timestamp   time.Time
	Kind        EventKind
	Origin      Origin
}

// Key identifies a SwapEvent for dedup purposes: (tx_hash, log_index).
func (e *SwapEvent) Key() string {
	return e.TxHash + ":" + strconv.FormatUint(e.LogIndex, 10)
}

// TargetAmount returns the nonzero amount on the non-quote side along with
// the token address it belongs to. isBuy is true when the target leg flows
// out of the pool (the trader bought the target) and false when it flows
// into the pool.
func (e *SwapEvent) TargetAmount(quote string) (token string, amount float64, isBuy bool) {
	switch quote {
	case e.Token0:
		if e.Amount1In > 0 {
			return e.Token1, e.Amount1In, false
		}
		return e.Token1, e.Amount1Out, true
	case e.Token1:
		if e.Amount0In > 0 {
			return e.Token0, e.Amount0In, false
		}
		return e.Token0, e.Amount0Out, true
	default:
		return "", 0, false
	}
}

// QuoteAmount returns the amount moved on the quote-asset side of the swap.
func (e *SwapEvent) QuoteAmount(quote string) float64 {
	switch quote {
	case e.Token0:
		if e.Amount0In > 0 {
			return e.Amount0In
		}
		return e.Amount0Out
	case e.Token1:
		if e.Amount1In > 0 {
			return e.Amount1In
		}
		return e.Amount1Out
	default:
		return 0
	}
}
