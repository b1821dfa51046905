// Lanwarden - Smart Environment Security Monitoring and Attack Detection
// Copyright 2026 Lanwarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lanwarden/lanwarden

package detection

import "time"

// timeWindow is a sliding window of event timestamps. Entries older
// than maxAge relative to the newest observation are evicted as new
// timestamps arrive. Windows are owned by a single rule engine and are
// not safe for concurrent use; the dispatcher's one-worker-per-device
// model makes that ownership exclusive.
type timeWindow struct {
	maxAge  time.Duration
	entries []time.Time
}

func newTimeWindow(maxAge time.Duration) *timeWindow {
	return &timeWindow{maxAge: maxAge}
}

// observe appends ts and evicts expired entries, returning the
// resulting window size.
func (w *timeWindow) observe(ts time.Time) int {
	w.entries = append(w.entries, ts)
	w.evict(ts)
	return len(w.entries)
}

func (w *timeWindow) evict(now time.Time) {
	cut := 0
	for cut < len(w.entries) && now.Sub(w.entries[cut]) > w.maxAge {
		cut++
	}
	if cut > 0 {
		w.entries = append(w.entries[:0], w.entries[cut:]...)
	}
}

func (w *timeWindow) len() int {
	return len(w.entries)
}

// sample is one measured value with its observation time.
type sample struct {
	value float64
	ts    time.Time
}

// sampleWindow is a sliding window of (value, timestamp) samples with
// the same eviction semantics as timeWindow.
type sampleWindow struct {
	maxAge  time.Duration
	samples []sample
}

func newSampleWindow(maxAge time.Duration) *sampleWindow {
	return &sampleWindow{maxAge: maxAge}
}

// evict drops samples older than maxAge relative to now.
func (w *sampleWindow) evict(now time.Time) {
	cut := 0
	for cut < len(w.samples) && now.Sub(w.samples[cut].ts) > w.maxAge {
		cut++
	}
	if cut > 0 {
		w.samples = append(w.samples[:0], w.samples[cut:]...)
	}
}

func (w *sampleWindow) append(v float64, ts time.Time) {
	w.samples = append(w.samples, sample{value: v, ts: ts})
}

func (w *sampleWindow) len() int {
	return len(w.samples)
}

// mean returns the arithmetic mean of the held values, 0 when empty.
func (w *sampleWindow) mean() float64 {
	if len(w.samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range w.samples {
		sum += s.value
	}
	return sum / float64(len(w.samples))
}

// allAtLeast reports whether every held value is >= threshold.
func (w *sampleWindow) allAtLeast(threshold float64) bool {
	for _, s := range w.samples {
		if s.value < threshold {
			return false
		}
	}
	return true
}
