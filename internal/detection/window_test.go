// Lanwarden - Smart Environment Security Monitoring and Attack Detection
// Copyright 2026 Lanwarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lanwarden/lanwarden

package detection

import (
	"testing"
	"time"
)

func TestTimeWindow_EvictsExpiredEntries(t *testing.T) {
	w := newTimeWindow(60 * time.Second)
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		w.observe(base.Add(time.Duration(i) * 10 * time.Second))
	}
	if w.len() != 5 {
		t.Fatalf("len = %d, want 5", w.len())
	}

	// 100s after base: entries at 0s and 30s have aged out.
	if got := w.observe(base.Add(100 * time.Second)); got != 4 {
		t.Fatalf("observe after expiry = %d, want 4", got)
	}
}

func TestTimeWindow_BoundaryEntryKept(t *testing.T) {
	w := newTimeWindow(60 * time.Second)
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	w.observe(base)
	// Exactly at max age is not older than the window.
	if got := w.observe(base.Add(60 * time.Second)); got != 2 {
		t.Fatalf("observe at boundary = %d, want 2", got)
	}
}

func TestSampleWindow_MeanAndThreshold(t *testing.T) {
	w := newSampleWindow(5 * time.Minute)
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	for i, v := range []float64{10, 20, 30} {
		w.append(v, base.Add(time.Duration(i)*time.Second))
	}

	if got := w.mean(); got != 20 {
		t.Fatalf("mean = %v, want 20", got)
	}
	if !w.allAtLeast(10) {
		t.Error("allAtLeast(10) = false, want true")
	}
	if w.allAtLeast(15) {
		t.Error("allAtLeast(15) = true, want false")
	}
}

func TestSampleWindow_EvictKeepsOrder(t *testing.T) {
	w := newSampleWindow(90 * time.Second)
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		w.append(float64(i), base.Add(time.Duration(i)*30*time.Second))
	}
	w.evict(base.Add(9 * 30 * time.Second))

	// Only samples within 90s of the newest remain: 180s..270s.
	if w.len() != 4 {
		t.Fatalf("len = %d, want 4", w.len())
	}
	if w.samples[0].value != 6 {
		t.Fatalf("oldest surviving value = %v, want 6", w.samples[0].value)
	}
}

func TestSampleWindow_EmptyMean(t *testing.T) {
	w := newSampleWindow(time.Minute)
	if got := w.mean(); got != 0 {
		t.Fatalf("mean of empty window = %v, want 0", got)
	}
	if !w.allAtLeast(0.5) {
		t.Error("allAtLeast on empty window should be vacuously true")
	}
}
