// Imaginears Web - Community Management and Session Security Analytics
// Copyright 2026 Imaginears Club
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/imaginearsclub/imaginears-web

// Package alertstate persists the moderation status of impossible travel
// alerts in BadgerDB. Alerts are recomputed on every scan with stable IDs,
// so only the status needs to survive between scans and restarts.
package alertstate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/imaginearsclub/imaginears-web-sub001/internal/config"
	"github.com/imaginearsclub/imaginears-web-sub001/internal/detection"
	"github.com/imaginearsclub/imaginears-web-sub001/internal/logging"
)

const alertKeyPrefix = "alert_status:"

// trackBatchSize keeps each write transaction well below badger's size limit.
const trackBatchSize = 1000

// DefaultRetention applies when no retention is configured.
const DefaultRetention = 30 * 24 * time.Hour

// record is the stored value for one alert.
type record struct {
	Status    detection.AlertStatus `json:"status"`
	FirstSeen time.Time             `json:"first_seen"`
	LastSeen  time.Time             `json:"last_seen"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// Store implements detection.AlertStatusStore.
type Store struct {
	db        *badger.DB
	ownsDB    bool
	inMemory  bool
	retention time.Duration
	now       func() time.Time
}

var _ detection.AlertStatusStore = (*Store)(nil)

// Open opens the BadgerDB described by cfg. The returned store owns the
// database and closes it in Close.
func Open(cfg config.AlertStateConfig) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithLogger(newBadgerLogger())

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db for alert state: %w", err)
	}

	s := NewStore(db, cfg.Retention)
	s.ownsDB = true
	s.inMemory = cfg.InMemory
	logging.Info().Str("path", cfg.Path).Bool("in_memory", cfg.InMemory).Msg("alert state store opened")
	return s, nil
}

// NewStore wraps an already open database. retention <= 0 selects
// DefaultRetention.
func NewStore(db *badger.DB, retention time.Duration) *Store {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Store{db: db, retention: retention, now: time.Now}
}

func alertKey(id string) []byte {
	return []byte(alertKeyPrefix + id)
}

func (s *Store) entry(id string, rec *record) (*badger.Entry, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal alert state: %w", err)
	}
	return badger.NewEntry(alertKey(id), data).WithTTL(s.retention), nil
}

func getRecord(txn *badger.Txn, id string) (*record, error) {
	item, err := txn.Get(alertKey(id))
	if err != nil {
		return nil, err
	}
	var rec record
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal alert state %s: %w", id, err)
	}
	return &rec, nil
}

// Statuses returns the stored status for each known ID.
func (s *Store) Statuses(ctx context.Context, ids []string) (map[string]detection.AlertStatus, error) {
	statuses := make(map[string]detection.AlertStatus, len(ids))

	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec, err := getRecord(txn, id)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			statuses[id] = rec.Status
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read alert states: %w", err)
	}
	return statuses, nil
}

// Track records ids as pending unless they already have a status. Known
// IDs get their last-seen time and retention refreshed.
func (s *Store) Track(ctx context.Context, ids []string) error {
	for start := 0; start < len(ids); start += trackBatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+trackBatchSize, len(ids))
		if err := s.trackBatch(ids[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) trackBatch(ids []string) error {
	now := s.now().UTC()

	return s.db.Update(func(txn *badger.Txn) error {
		for _, id := range ids {
			rec, err := getRecord(txn, id)
			switch {
			case errors.Is(err, badger.ErrKeyNotFound):
				rec = &record{
					Status:    detection.AlertStatusPending,
					FirstSeen: now,
					UpdatedAt: now,
				}
			case err != nil:
				return err
			}
			rec.LastSeen = now

			e, err := s.entry(id, rec)
			if err != nil {
				return err
			}
			if err := txn.SetEntry(e); err != nil {
				return fmt.Errorf("track alert %s: %w", id, err)
			}
		}
		return nil
	})
}

// SetStatus changes the status of a tracked alert.
func (s *Store) SetStatus(ctx context.Context, id string, status detection.AlertStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", detection.ErrInvalidStatus, status)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		rec, err := getRecord(txn, id)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", detection.ErrAlertNotFound, id)
		}
		if err != nil {
			return err
		}

		rec.Status = status
		rec.UpdatedAt = s.now().UTC()

		e, err := s.entry(id, rec)
		if err != nil {
			return err
		}
		return txn.SetEntry(e)
	})
}

// Count returns the number of tracked alerts.
func (s *Store) Count(ctx context.Context) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(alertKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	return count, err
}

// Close closes the database if the store opened it.
func (s *Store) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}
