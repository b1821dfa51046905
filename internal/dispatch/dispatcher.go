// Lanwarden - Smart Environment Security Monitoring and Attack Detection
// Copyright 2026 Lanwarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lanwarden/lanwarden

// Package dispatch routes incoming events to per-device evaluation
// workers. Each device gets exactly one long-lived worker goroutine
// owning that device's RuleEngine, created lazily on the first event.
// All shared mutation is confined to the worker map; evaluation itself
// runs lock-free on the owning worker.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lanwarden/lanwarden/internal/detection"
	"github.com/lanwarden/lanwarden/internal/logging"
	"github.com/lanwarden/lanwarden/internal/metrics"
)

// ErrClosed is returned by Submit after shutdown has begun.
var ErrClosed = errors.New("dispatch: dispatcher closed")

// Record pairs an evaluated event with its verdict. Exactly one record
// is produced per submitted event, in the order events were dequeued
// for the device.
type Record struct {
	ID          string            `json:"id"`
	Device      string            `json:"device"`
	Event       *detection.Event  `json:"event"`
	Verdict     detection.Verdict `json:"verdict"`
	EvaluatedAt time.Time         `json:"evaluated_at"`
}

// Sink consumes verdict records. Implementations must not block for
// long: delivery happens on the device worker goroutine.
type Sink interface {
	Deliver(rec Record)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(rec Record)

// Deliver calls f(rec).
func (f SinkFunc) Deliver(rec Record) { f(rec) }

// Config holds dispatcher tuning.
type Config struct {
	// DrainTimeout bounds backlog draining when the dispatcher is shut
	// down through its supervised Serve loop.
	DrainTimeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		DrainTimeout: 10 * time.Second,
	}
}

// Dispatcher owns the device→worker map and the workers' lifecycle.
type Dispatcher struct {
	registry *detection.Registry
	flag     *detection.Flag
	sink     Sink
	config   Config

	mu      sync.Mutex
	workers map[string]*worker
	closed  bool

	wg        sync.WaitGroup
	submitted atomic.Int64
	processed atomic.Int64
}

// New creates a dispatcher. The registry and flag are shared with every
// rule engine it creates; every verdict is handed to sink.
func New(registry *detection.Registry, flag *detection.Flag, sink Sink, config Config) *Dispatcher {
	if config.DrainTimeout <= 0 {
		config.DrainTimeout = DefaultConfig().DrainTimeout
	}
	return &Dispatcher{
		registry: registry,
		flag:     flag,
		sink:     sink,
		config:   config,
		workers:  make(map[string]*worker),
	}
}

// Submit enqueues an event for the worker of its origin device,
// creating the worker if this is the device's first event. Submission
// never blocks on evaluation. Exactly one worker is created per device
// even when first events race.
func (d *Dispatcher) Submit(event *detection.Event) error {
	if event == nil {
		return errors.New("dispatch: nil event")
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	w := d.workers[event.OriginAddress]
	if w == nil {
		w = newWorker(event.OriginAddress, detection.NewRuleEngine(event.OriginAddress, d.registry, d.flag))
		d.workers[event.OriginAddress] = w
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			w.run(d)
		}()
		metrics.DeviceWorkers.Set(float64(len(d.workers)))
		logging.Debug().Str("device", event.OriginAddress).Msg("created device worker")
	}
	d.mu.Unlock()

	if err := w.enqueue(event); err != nil {
		return err
	}
	d.submitted.Add(1)
	metrics.EventsSubmitted.Inc()
	metrics.QueueDepth.Set(float64(d.TotalQueueDepth()))
	return nil
}

// QueueDepth returns the pending event count for one device, 0 when the
// device has no worker. Diagnostic only; the value is eventually
// consistent.
func (d *Dispatcher) QueueDepth(address string) int {
	d.mu.Lock()
	w := d.workers[address]
	d.mu.Unlock()
	if w == nil {
		return 0
	}
	return w.depth()
}

// TotalQueueDepth returns the pending event count summed across all
// devices.
func (d *Dispatcher) TotalQueueDepth() int {
	d.mu.Lock()
	workers := make([]*worker, 0, len(d.workers))
	for _, w := range d.workers {
		workers = append(workers, w)
	}
	d.mu.Unlock()

	total := 0
	for _, w := range workers {
		total += w.depth()
	}
	return total
}

// QueueDepths returns the pending count per device address.
func (d *Dispatcher) QueueDepths() map[string]int {
	d.mu.Lock()
	workers := make(map[string]*worker, len(d.workers))
	for addr, w := range d.workers {
		workers[addr] = w
	}
	d.mu.Unlock()

	depths := make(map[string]int, len(workers))
	for addr, w := range workers {
		depths[addr] = w.depth()
	}
	return depths
}

// WorkerCount returns the number of device workers created so far.
func (d *Dispatcher) WorkerCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.workers)
}

// EventsSubmitted returns the total accepted event count.
func (d *Dispatcher) EventsSubmitted() int64 { return d.submitted.Load() }

// EventsProcessed returns the total evaluated event count.
func (d *Dispatcher) EventsProcessed() int64 { return d.processed.Load() }

// Shutdown stops all workers and waits for them to drain their
// backlogs until the context's deadline. It returns true only when
// every worker processed its whole backlog and terminated in time; a
// false result is a degraded-completion signal, not a failure.
// Subsequent Submit calls return ErrClosed.
func (d *Dispatcher) Shutdown(ctx context.Context) bool {
	d.mu.Lock()
	alreadyClosed := d.closed
	d.closed = true
	workers := make([]*worker, 0, len(d.workers))
	for _, w := range d.workers {
		workers = append(workers, w)
	}
	d.mu.Unlock()

	if !alreadyClosed {
		for _, w := range workers {
			w.stop()
		}
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Info().Int("workers", len(workers)).Msg("dispatcher drained and stopped")
		return true
	case <-ctx.Done():
		logging.Warn().
			Int("pending", d.TotalQueueDepth()).
			Msg("dispatcher shutdown deadline expired before drain completed")
		return false
	}
}

// Serve runs the dispatcher under a supervisor: it blocks until the
// context is canceled, then performs a bounded-drain shutdown.
func (d *Dispatcher) Serve(ctx context.Context) error {
	logging.Info().Msg("dispatcher started")
	<-ctx.Done()

	drainCtx, cancel := context.WithTimeout(context.Background(), d.config.DrainTimeout)
	defer cancel()
	d.Shutdown(drainCtx)
	return ctx.Err()
}
