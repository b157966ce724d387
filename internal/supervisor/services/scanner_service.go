// Imaginears Web - Community Management and Session Security Analytics
// Copyright 2026 Imaginears Club
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/imaginearsclub/imaginears-web

package services

import (
	"context"
	"time"

	"github.com/imaginearsclub/imaginears-web-sub001/internal/logging"
)

// DefaultReadyTimeout bounds how long the first scan waits for its
// consumers before running anyway.
const DefaultReadyTimeout = 30 * time.Second

// ScanLoop is satisfied by *detection.Scanner.
type ScanLoop interface {
	// RunWithContext scans periodically and returns when ctx is cancelled.
	RunWithContext(ctx context.Context) error
}

// ScannerService runs the background security scan under supervision so a
// panic or storage failure restarts the loop instead of ending it.
//
// New alerts are announced exactly once, on the scan that first tracks
// them. When events are enabled the first scan must therefore not run
// before the audit consumer has subscribed, or those announcements are
// dropped by the in-process bus. WaitFor gates the loop on that:
//
//  1. Serve blocks until the ready channel is closed
//  2. If the timeout elapses first, a warning is logged and scanning starts
//  3. Cancellation while waiting returns ctx.Err() without scanning
//
// Example usage:
//
//	audit := eventbus.NewAuditService(bus.Subscriber(), bus.Logger())
//	svc := services.NewScannerService(scanner).WaitFor(audit.Running(), 0)
//	tree.AddAnalyticsService(svc)
type ScannerService struct {
	scanner      ScanLoop
	name         string
	ready        <-chan struct{}
	readyTimeout time.Duration
}

// NewScannerService wraps scanner.
func NewScannerService(scanner ScanLoop) *ScannerService {
	return &ScannerService{
		scanner: scanner,
		name:    "security-scanner",
	}
}

// WaitFor delays the first scan until ready is closed or timeout elapses.
// A non-positive timeout means DefaultReadyTimeout. Once ready is closed,
// supervisor restarts start scanning immediately.
func (s *ScannerService) WaitFor(ready <-chan struct{}, timeout time.Duration) *ScannerService {
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}
	s.ready = ready
	s.readyTimeout = timeout
	return s
}

// Serve implements suture.Service.
func (s *ScannerService) Serve(ctx context.Context) error {
	if s.ready != nil {
		timer := time.NewTimer(s.readyTimeout)
		defer timer.Stop()

		select {
		case <-s.ready:
		case <-timer.C:
			logging.Warn().Dur("timeout", s.readyTimeout).Msg("event consumers not ready, starting security scan anyway")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.scanner.RunWithContext(ctx)
}

func (s *ScannerService) String() string {
	return s.name
}
