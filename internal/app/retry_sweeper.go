package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/andreirk/bscwatch/internal/domain/repository"
)

// maxRetryAttempts bounds how many times a failed alert is retried
// before it moves to the dead-letter sink.
const maxRetryAttempts = 3

// RetrySweeper periodically re-dispatches due entries from the KV-backed
// retry queue, moving exhausted entries to the dead-letter table.
type RetrySweeper struct {
	kv         repository.KVStore
	dispatcher *Dispatcher
	sink       repository.AlertSink
	interval   time.Duration
	log        *slog.Logger
}

// NewRetrySweeper builds a sweeper polling the retry queue every interval.
func NewRetrySweeper(kv repository.KVStore, dispatcher *Dispatcher, sink repository.AlertSink, interval time.Duration, log *slog.Logger) *RetrySweeper {
	return &RetrySweeper{kv: kv, dispatcher: dispatcher, sink: sink, interval: interval, log: log}
}

// Run polls until ctx is cancelled. Cancellation is checked at the next
// interval boundary.
func (s *RetrySweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *RetrySweeper) sweep(ctx context.Context) {
	due, err := s.kv.DueRetries(ctx, time.Now())
	if err != nil {
		s.log.Error("retry sweep failed to list due entries", "err", err)
		return
	}
	for _, entry := range due {
		if entry.Attempt >= maxRetryAttempts {
			if s.sink != nil {
				if err := s.sink.SaveDeadLetter(ctx, &entry.Alert, "retries_exhausted", entry.Attempt); err != nil {
					s.log.Error("failed to save dead letter", "token", entry.Token, "err", err)
				}
			}
			if err := s.kv.DeleteRetry(ctx, entry.Token); err != nil {
				s.log.Error("failed to delete exhausted retry entry", "token", entry.Token, "err", err)
			}
			continue
		}

		entry.Attempt++
		if err := s.dispatcher.RetrySend(ctx, &entry.Alert); err != nil {
			entry.NextAttemptAt = time.Now().Add(5 * time.Minute)
			if err := s.kv.EnqueueRetry(ctx, entry); err != nil {
				s.log.Error("failed to re-enqueue retry entry", "token", entry.Token, "err", err)
			}
			continue
		}
		if err := s.kv.DeleteRetry(ctx, entry.Token); err != nil {
			s.log.Error("failed to delete completed retry entry", "token", entry.Token, "err", err)
		}
	}
}
