package model

// RuleConfig is one enabled/disabled threshold rule for Layer-2.
type RuleConfig struct {
	Enabled         bool
	RisePercent     *float64
	FallPercent     *float64
	VolumeThreshold *float64
	Top10MaxPercent *float64
}

// EventsConfig bundles the Layer-2 rules for one origin (internal/external).
type EventsConfig struct {
	PriceChange RuleConfig
	Volume      RuleConfig
	Holders     RuleConfig
	Window      Window // base window to query before fallback widening
	Logic       string // "any" or "all"
}

// MonitorConfig is the snapshot of thresholds and rule templates read from
// the KV store once at startup. The process has no refresh path: the
// snapshot stays in place until restart, so every event reads the same one.
type MonitorConfig struct {
	MinUSDInternal       float64
	MinUSDExternal       float64
	CumulativeMinUSD     float64
	CumulativeWindowSecs int64

	InternalRules EventsConfig
	ExternalRules EventsConfig

	CooldownSeconds int
	JitterSeconds   int

	DedupTTLSeconds int

	WBNBDefaultPrice    float64
	WBNBDefaultEnabled  bool
}

// DefaultMonitorConfig mirrors the fallback values hardcoded in the original
// monitor (bsc_websocket_monitor.py) before any Redis override is applied.
func DefaultMonitorConfig() *MonitorConfig {
	rise30 := 30.0
	rise50 := 50.0
	vol5k := 5000.0
	vol20k := 20000.0
	return &MonitorConfig{
		MinUSDInternal:       200,
		MinUSDExternal:       400,
		CumulativeMinUSD:     1000,
		CumulativeWindowSecs: 300,
		InternalRules: EventsConfig{
			PriceChange: RuleConfig{Enabled: true, RisePercent: &rise30},
			Volume:      RuleConfig{Enabled: true, VolumeThreshold: &vol5k},
			Window:      Window1m,
			Logic:       "any",
		},
		ExternalRules: EventsConfig{
			PriceChange: RuleConfig{Enabled: true, RisePercent: &rise50},
			Volume:      RuleConfig{Enabled: true, VolumeThreshold: &vol20k},
			Window:      Window1m,
			Logic:       "any",
		},
		CooldownSeconds:    180,
		JitterSeconds:      30,
		DedupTTLSeconds:    600,
		WBNBDefaultPrice:   600,
		WBNBDefaultEnabled: false,
	}
}

// RulesFor selects the events config for the given origin.
func (c *MonitorConfig) RulesFor(origin Origin) EventsConfig {
	if origin == OriginInternal {
		return c.InternalRules
	}
	return c.ExternalRules
}

// MinUSDFor selects the Layer-1 USD notional threshold for the given origin.
func (c *MonitorConfig) MinUSDFor(origin Origin) float64 {
	if origin == OriginInternal {
		return c.MinUSDInternal
	}
	return c.MinUSDExternal
}
