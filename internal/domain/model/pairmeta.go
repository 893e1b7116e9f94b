package model

import "time"

// Tri-state classification of whether a pair's target token was issued
// through the Fourmeme launchpad. Unknown means "never resolved"; it must
// never be cached, only Yes/No may persist.
type LaunchpadState int

const (
	LaunchpadUnknown LaunchpadState = iota
	LaunchpadYes
	LaunchpadNo
)

// PairMeta describes a resolved DEX pair. Mutated only by the metadata
// resolver under a per-pair single-flight guard.
type PairMeta struct {
	Pair            string
	Token0          string
	Token1          string
	Decimals0       int
	Decimals1       int
	IsFourmeme      LaunchpadState
	LastResolvedAt  time.Time
}

// QuoteToken returns which of Token0/Token1 is the recognized quote asset,
// or "" if neither side is a known stable/WBNB address.
func (m *PairMeta) QuoteToken(quoteAssets map[string]bool) string {
	if quoteAssets[m.Token0] {
		return m.Token0
	}
	if quoteAssets[m.Token1] {
		return m.Token1
	}
	return ""
}

// TargetToken returns the non-quote side of the pair.
func (m *PairMeta) TargetToken(quote string) string {
	if quote == m.Token0 {
		return m.Token1
	}
	return m.Token0
}

// DecimalsOf returns the decimals for the given token address, or -1 if the
// token is neither side of the pair or decimals are malformed.
func (m *PairMeta) DecimalsOf(token string) int {
	d := -1
	switch token {
	case m.Token0:
		d = m.Decimals0
	case m.Token1:
		d = m.Decimals1
	}
	if !ValidDecimals(d) {
		return -1
	}
	return d
}

// ValidDecimals rejects negative decimals or decimals > 36, guarding
// against malformed on-chain metadata.
func ValidDecimals(d int) bool {
	return d >= 0 && d <= 36
}
