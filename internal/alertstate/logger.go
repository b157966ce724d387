// Imaginears Web - Community Management and Session Security Analytics
// Copyright 2026 Imaginears Club
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/imaginearsclub/imaginears-web

package alertstate

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/imaginearsclub/imaginears-web-sub001/internal/logging"
)

// badgerLogger routes badger's internal logging through zerolog. Badger is
// chatty at info level so its info and debug output is demoted to debug.
type badgerLogger struct {
	logger zerolog.Logger
}

func newBadgerLogger() *badgerLogger {
	return &badgerLogger{logger: logging.WithComponent("badger")}
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msg(trimMessage(format, args))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn().Msg(trimMessage(format, args))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug().Msg(trimMessage(format, args))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug().Msg(trimMessage(format, args))
}

func trimMessage(format string, args []interface{}) string {
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}
