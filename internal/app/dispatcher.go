package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/andreirk/bscwatch/internal/domain/model"
	"github.com/andreirk/bscwatch/internal/domain/repository"
	"github.com/andreirk/bscwatch/internal/observability"
)

// Dispatcher is C7: a fixed-size worker pool where submission blocks when
// saturated, giving the WS reader natural backpressure instead of a drop
// path. Each worker delivers an alert already built by the pipeline to
// the notifier, the alert sink, the Kafka mirror, and the broadcaster.
type Dispatcher struct {
	work        chan dispatchJob
	cooldown    cooldownReleaser
	notifier    repository.Notifier
	sink        repository.AlertSink
	mirror      repository.AlertMirror
	broadcaster alertBroadcaster
	kv          repository.KVStore
	metrics     *observability.Registry
	log         *slog.Logger
	wg          sync.WaitGroup
}

type cooldownReleaser interface {
	Release(ctx context.Context, token string) error
}

// alertBroadcaster fans an admitted alert out to connected dashboard
// clients. Nil-safe: a nil broadcaster simply skips the fan-out.
type alertBroadcaster interface {
	BroadcastAlert(alert *model.Alert)
}

type dispatchJob struct {
	alert *model.Alert
}

// NewDispatcher builds a dispatcher with workerCount goroutines reading
// from a bounded channel; Submit blocks once that channel is full.
func NewDispatcher(workerCount, bufferSize int, cooldown cooldownReleaser, notifier repository.Notifier, sink repository.AlertSink, mirror repository.AlertMirror, broadcaster alertBroadcaster, kv repository.KVStore, metrics *observability.Registry, log *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		work:        make(chan dispatchJob, bufferSize),
		cooldown:    cooldown,
		notifier:    notifier,
		sink:        sink,
		mirror:      mirror,
		broadcaster: broadcaster,
		kv:          kv,
		metrics:     metrics,
		log:         log,
	}
	d.wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go d.worker(i)
	}
	return d
}

// Submit enqueues an alert for dispatch, blocking if every worker is
// busy and the buffer is full. The cooldown for alert.Token must already
// be claimed by the caller; the worker releases it on any failure. Submit
// must not be called after Shutdown starts draining.
func (d *Dispatcher) Submit(alert *model.Alert) {
	d.work <- dispatchJob{alert: alert}
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for job := range d.work {
		d.handle(job.alert)
	}
}

// Shutdown stops accepting new work and waits up to the given context's
// deadline for every in-flight and already-queued alert to finish
// dispatching. The caller must ensure no further Submit calls happen once
// Shutdown is invoked.
func (d *Dispatcher) Shutdown(ctx context.Context) {
	close(d.work)
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		d.log.Warn("dispatcher shutdown timed out with workers still draining")
	}
}

// RetrySend re-attempts delivery for a queued retry entry, used by
// RetrySweeper. Unlike handle, it never touches the cooldown (the
// original claim's TTL has typically already expired by the time a
// retry fires) and reports success/failure directly to the caller so
// the sweeper can manage attempt counts and dead-lettering.
func (d *Dispatcher) RetrySend(ctx context.Context, alert *model.Alert) error {
	err := d.notifier.Send(ctx, alert)
	if err != nil {
		if d.metrics != nil {
			d.metrics.AlertsTotal.WithLabelValues("failure").Inc()
		}
		return err
	}
	if d.metrics != nil {
		d.metrics.AlertsTotal.WithLabelValues("success").Inc()
	}
	if d.sink != nil {
		_ = d.sink.SaveAlert(ctx, alert, "success")
	}
	if d.mirror != nil {
		_ = d.mirror.Publish(ctx, alert)
	}
	if d.broadcaster != nil {
		d.broadcaster.BroadcastAlert(alert)
	}
	return nil
}

// handle never lets a panic or error escape the worker: all failures are
// caught, logged, counted, and release the token's cooldown before
// returning.
func (d *Dispatcher) handle(alert *model.Alert) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("dispatch worker panic recovered", "token", alert.Token, "panic", r)
			d.releaseAndCount(alert, "panic")
		}
	}()

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := d.notifier.Send(ctx, alert)
	if d.metrics != nil {
		d.metrics.ProcessingDuration.Observe(time.Since(start).Seconds())
	}

	if err != nil {
		d.log.Warn("notifier delivery failed", "token", alert.Token, "err", err)
		d.releaseAndCount(alert, "notifier_error")
		d.enqueueRetry(ctx, alert)
		if d.sink != nil {
			_ = d.sink.SaveAlert(ctx, alert, "failure")
		}
		return
	}

	if d.metrics != nil {
		d.metrics.AlertsTotal.WithLabelValues("success").Inc()
	}
	if d.sink != nil {
		if err := d.sink.SaveAlert(ctx, alert, "success"); err != nil {
			d.log.Warn("alert sink write failed", "token", alert.Token, "err", err)
		}
	}
	if d.mirror != nil {
		if err := d.mirror.Publish(ctx, alert); err != nil {
			d.log.Warn("alert mirror publish failed", "token", alert.Token, "err", err)
		}
	}
	if d.broadcaster != nil {
		d.broadcaster.BroadcastAlert(alert)
	}
}

func (d *Dispatcher) releaseAndCount(alert *model.Alert, reason string) {
	if d.metrics != nil {
		d.metrics.AlertsTotal.WithLabelValues("failure").Inc()
	}
	releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.cooldown.Release(releaseCtx, alert.Token); err != nil {
		d.log.Error("cooldown release failed", "token", alert.Token, "reason", reason, "err", err)
	}
}

// enqueueRetry appends alert to the KV-backed retry queue, due in 5
// minutes. RetrySweeper retries it at a fixed 5 minute interval, up to
// maxRetryAttempts times.
func (d *Dispatcher) enqueueRetry(ctx context.Context, alert *model.Alert) {
	if d.kv == nil {
		return
	}
	entry := &model.RetryEntry{
		Token:         alert.Token,
		Alert:         *alert,
		Attempt:       0,
		NextAttemptAt: time.Now().Add(5 * time.Minute),
	}
	if err := d.kv.EnqueueRetry(ctx, entry); err != nil {
		d.log.Error("failed to enqueue retry", "token", alert.Token, "err", err)
	}
	if d.metrics != nil {
		d.metrics.RetryQueueDepth.Inc()
	}
}
