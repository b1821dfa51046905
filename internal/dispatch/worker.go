// Lanwarden - Smart Environment Security Monitoring and Attack Detection
// Copyright 2026 Lanwarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lanwarden/lanwarden

package dispatch

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lanwarden/lanwarden/internal/detection"
	"github.com/lanwarden/lanwarden/internal/logging"
	"github.com/lanwarden/lanwarden/internal/metrics"
)

// worker evaluates one device's events strictly in order. The queue is
// unbounded so Submit never blocks; backpressure is reported through
// the queue depth gauge instead.
type worker struct {
	device string
	engine *detection.RuleEngine

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*detection.Event
	stopped bool
}

func newWorker(device string, engine *detection.RuleEngine) *worker {
	w := &worker{
		device: device,
		engine: engine,
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// enqueue appends the event and wakes the worker. It fails only after
// the worker has been stopped.
func (w *worker) enqueue(event *detection.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return ErrClosed
	}
	w.queue = append(w.queue, event)
	w.cond.Signal()
	return nil
}

func (w *worker) depth() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

// stop signals the worker to exit once its backlog is drained. The stop
// signal is only acted on between events, never mid-evaluation.
func (w *worker) stop() {
	w.mu.Lock()
	w.stopped = true
	w.cond.Broadcast()
	w.mu.Unlock()
}

// run is the worker loop. It exits when stopped and the queue is empty,
// so a stop request always lets the backlog drain first.
func (w *worker) run(d *Dispatcher) {
	for {
		w.mu.Lock()
		for len(w.queue) == 0 && !w.stopped {
			w.cond.Wait()
		}
		if len(w.queue) == 0 {
			w.mu.Unlock()
			return
		}
		event := w.queue[0]
		w.queue = w.queue[1:]
		w.mu.Unlock()

		w.process(d, event)
	}
}

// process evaluates one event and delivers the verdict record. A panic
// during evaluation is recovered here: it fails the single event, not
// the worker, so subsequent events for the device keep flowing.
func (w *worker) process(d *Dispatcher, event *detection.Event) {
	defer func() {
		if r := recover(); r != nil {
			metrics.EvaluationPanics.Inc()
			logging.Error().
				Str("device", w.device).
				Str("event_id", event.ID).
				Interface("panic", r).
				Msg("recovered panic while evaluating event")
		}
	}()

	start := time.Now()
	verdict := w.engine.Evaluate(event)
	metrics.EvaluationDuration.Observe(time.Since(start).Seconds())

	d.processed.Add(1)
	metrics.EventsProcessed.Inc()
	metrics.VerdictsTotal.WithLabelValues(string(verdict.Rule), boolLabel(verdict.Suspicious)).Inc()

	if d.sink != nil {
		d.sink.Deliver(Record{
			ID:          uuid.NewString(),
			Device:      w.device,
			Event:       event,
			Verdict:     verdict,
			EvaluatedAt: time.Now().UTC(),
		})
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
