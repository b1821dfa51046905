// Lanwarden - Smart Environment Security Monitoring and Attack Detection
// Copyright 2026 Lanwarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lanwarden/lanwarden

// Package audit persists an append-only record of every verdict for
// later analysis. BadgerDB gives durable fsync'd appends with ordered
// keys, so "most recent N alerts" is a reverse key scan.
package audit

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/lanwarden/lanwarden/internal/dispatch"
	"github.com/lanwarden/lanwarden/internal/logging"
	"github.com/lanwarden/lanwarden/internal/metrics"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("audit: store closed")

// recordPrefix namespaces verdict records inside the database.
var recordPrefix = []byte("rec:")

// Config holds audit store settings.
type Config struct {
	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path string

	// InMemory runs the store without disk persistence, for tests.
	InMemory bool

	// Retention is the maximum record age; older records are removed
	// by the sweeper. Zero disables retention.
	Retention time.Duration

	// SweepInterval is how often the retention sweeper runs.
	SweepInterval time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Path:          "/data/lanwarden/audit",
		Retention:     90 * 24 * time.Hour,
		SweepInterval: time.Hour,
	}
}

// Stats summarizes store contents.
type Stats struct {
	Records     int `json:"records"`
	Alerts      int `json:"alerts"`
	UniqueRules int `json:"unique_rules"`
}

// Store is the append-only verdict record store.
type Store struct {
	db     *badger.DB
	config Config
	seq    atomic.Uint64
	closed atomic.Bool
}

// Open opens (or creates) the store.
func Open(config Config) (*Store, error) {
	opts := badger.DefaultOptions(config.Path).
		WithLogger(nil)
	if config.InMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("audit: open store: %w", err)
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultConfig().SweepInterval
	}
	return &Store{db: db, config: config}, nil
}

// recordKey builds a key that sorts by evaluation time, with a
// process-local sequence to keep same-nanosecond appends distinct.
func (s *Store) recordKey(at time.Time) []byte {
	key := make([]byte, len(recordPrefix)+16)
	copy(key, recordPrefix)
	binary.BigEndian.PutUint64(key[len(recordPrefix):], uint64(at.UnixNano()))
	binary.BigEndian.PutUint64(key[len(recordPrefix)+8:], s.seq.Add(1))
	return key
}

// Append persists one verdict record.
func (s *Store) Append(rec dispatch.Record) error {
	if s.closed.Load() {
		return ErrClosed
	}

	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("audit: marshal record: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.recordKey(rec.EvaluatedAt), value)
	})
	if err != nil {
		return fmt.Errorf("audit: append record: %w", err)
	}
	metrics.AuditRecords.Inc()
	return nil
}

// Recent returns up to limit records, newest first. With alertsOnly
// set, only suspicious verdicts are returned.
func (s *Store) Recent(limit int, alertsOnly bool) ([]dispatch.Record, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 50
	}

	var records []dispatch.Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = recordPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts from the highest key under the
		// prefix; seek past it to land on the newest record.
		seek := append(append([]byte{}, recordPrefix...), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
		for it.Seek(seek); it.Valid() && len(records) < limit; it.Next() {
			var rec dispatch.Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			if alertsOnly && !rec.Verdict.Suspicious {
				continue
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("audit: scan records: %w", err)
	}
	return records, nil
}

// Stats counts stored records, alerts, and distinct matched rules.
func (s *Store) Stats() (Stats, error) {
	if s.closed.Load() {
		return Stats{}, ErrClosed
	}

	stats := Stats{}
	rules := map[string]struct{}{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = recordPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(recordPrefix); it.Valid(); it.Next() {
			var rec dispatch.Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			stats.Records++
			if rec.Verdict.Suspicious {
				stats.Alerts++
				rules[string(rec.Verdict.Rule)] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("audit: count records: %w", err)
	}
	stats.UniqueRules = len(rules)
	return stats, nil
}

// sweep removes records older than the retention cutoff.
func (s *Store) sweep(now time.Time) (int, error) {
	if s.config.Retention <= 0 {
		return 0, nil
	}
	cutoff := uint64(now.Add(-s.config.Retention).UnixNano())

	var expired [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = recordPrefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(recordPrefix); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			ts := binary.BigEndian.Uint64(key[len(recordPrefix):])
			if ts >= cutoff {
				break
			}
			expired = append(expired, key)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("audit: scan expired: %w", err)
	}

	for _, key := range expired {
		if err := s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(key)
		}); err != nil {
			return 0, fmt.Errorf("audit: delete expired: %w", err)
		}
	}
	return len(expired), nil
}

// Serve runs the retention sweeper until the context is canceled,
// making the store a supervisable service.
func (s *Store) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			removed, err := s.sweep(time.Now())
			if err != nil {
				logging.Err(err).Msg("audit retention sweep failed")
				continue
			}
			if removed > 0 {
				logging.Info().Int("removed", removed).Msg("audit retention sweep completed")
			}
		}
	}
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}
