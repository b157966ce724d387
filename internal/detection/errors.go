// Imaginears Web - Community Management and Session Security Analytics
// Copyright 2026 Imaginears Club
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/imaginearsclub/imaginears-web

package detection

import "errors"

var (
	// ErrInvalidStatus is returned for an unknown alert status.
	ErrInvalidStatus = errors.New("invalid alert status")

	// ErrAlertNotFound is returned when moderating an alert that was never
	// produced by a scan.
	ErrAlertNotFound = errors.New("alert not found")
)
