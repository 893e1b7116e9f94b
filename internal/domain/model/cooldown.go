package model

import "time"

// Cooldown records a per-token suppression window. The engine never reads
// this struct directly for claim/release decisions — those are atomic KV
// operations — but it is used to report remaining TTL to callers and tests.
type Cooldown struct {
	Token     string
	ExpiresAt time.Time
}

// SeenTx is a dedup horizon entry keyed by (tx_hash, log_index).
type SeenTx struct {
	TxHash   string
	LogIndex uint64
}

// Alert is the payload built by the dispatcher and handed to the notifier,
// the Kafka mirror, and the durable alert sink.
type Alert struct {
	Token          string
	Pair           string
	TxHash         string
	LogIndex       uint64
	USDValue       float64
	Origin         Origin
	TriggeredRules []string
	Reasons        []string
	CreatedAt      time.Time
}

// RetryEntry is a KV-backed row in the retry queue (bsc:retry:{token}).
type RetryEntry struct {
	Token         string
	Alert         Alert
	Attempt       int
	NextAttemptAt time.Time
}
