package model

import "time"

// Completeness describes how much data backs a PriceStat window.
type Completeness string

const (
	CompletenessComplete Completeness = "complete"
	CompletenessPartial  Completeness = "partial"
	CompletenessEmpty    Completeness = "empty"
)

// Window is one of the supported statistics intervals.
type Window string

const (
	Window1m Window = "1m"
	Window5m Window = "5m"
	Window1h Window = "1h"
)

// FallbackWindow returns the next wider window, {1m->5m, 5m->1h}, and
// false if w has no wider fallback.
func FallbackWindow(w Window) (Window, bool) {
	switch w {
	case Window1m:
		return Window5m, true
	case Window5m:
		return Window1h, true
	default:
		return "", false
	}
}

// PriceStat is the external statistics-API response for one token/window,
// fetched on-demand by Layer-2 and cached briefly.
type PriceStat struct {
	Token        string
	Window       Window
	PriceChange  float64 // percent, signed
	Volume       float64 // USD
	TxCount      int
	Top10Pct     float64 // percent of supply held by top 10 holders
	Completeness Completeness
	UpdatedAt    time.Time
}

// IsUsable reports whether the stat carries real data, i.e. is not the
// negative-cache sentinel for an empty pair.
func (s *PriceStat) IsUsable() bool {
	return s != nil && s.Completeness != CompletenessEmpty
}
