// Imaginears Web - Community Management and Session Security Analytics
// Copyright 2026 Imaginears Club
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/imaginearsclub/imaginears-web

package alertstate

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/imaginearsclub/imaginears-web-sub001/internal/logging"
)

// DefaultGCInterval is how often the value log is compacted.
const DefaultGCInterval = 10 * time.Minute

// gcDiscardRatio rewrites a value log file once half of it is stale.
const gcDiscardRatio = 0.5

// GCService periodically runs badger value log garbage collection. It
// implements suture.Service.
type GCService struct {
	store    *Store
	interval time.Duration
}

// NewGCService creates the service. interval <= 0 selects DefaultGCInterval.
func NewGCService(store *Store, interval time.Duration) *GCService {
	if interval <= 0 {
		interval = DefaultGCInterval
	}
	return &GCService{store: store, interval: interval}
}

// Serve runs until ctx is cancelled.
func (g *GCService) Serve(ctx context.Context) error {
	if g.store.inMemory {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			g.collect()
		}
	}
}

// collect runs GC until badger reports nothing left to rewrite.
func (g *GCService) collect() {
	rewrites := 0
	for {
		err := g.store.db.RunValueLogGC(gcDiscardRatio)
		if err != nil {
			if !errors.Is(err, badger.ErrNoRewrite) &&
				!errors.Is(err, badger.ErrRejected) &&
				!errors.Is(err, badger.ErrGCInMemoryMode) {
				logging.Warn().Err(err).Msg("alert state value log GC failed")
			}
			break
		}
		rewrites++
	}
	if rewrites > 0 {
		logging.Debug().Int("rewrites", rewrites).Msg("alert state value log GC complete")
	}
}

func (g *GCService) String() string {
	return "alert-state-gc"
}
