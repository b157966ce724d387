// Imaginears Web - Community Management and Session Security Analytics
// Copyright 2026 Imaginears Club
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/imaginearsclub/imaginears-web

/*
Package main is the entry point for the session security analytics server.

The server reads authenticated sessions from DuckDB, resolves their IP
addresses to locations, and reports impossible travel, threat categories
and per-user risk over a small HTTP API.

# Application Architecture

	RootSupervisor ("imaginears")
	├── storage-layer
	│   └── alert-state-gc (Badger value log GC)
	├── analytics-layer
	│   ├── security-scanner (periodic background scans)
	│   └── security-audit (watermill consumer, optional)
	└── api-layer
	    └── http-server (chi router)

Initialization order:

 1. Configuration: koanf v2 (defaults, config.yaml, environment)
 2. Logging: zerolog, JSON or console
 3. Session store: DuckDB
 4. Geolocation: static table, MaxMind GeoLite web service, ip-api.com
 5. Detection: aggregator and scanner
 6. Alert state: BadgerDB moderation status
 7. Event bus: watermill gochannel (EVENTS_ENABLED)
 8. Supervisor tree and HTTP server

# Signal Handling

SIGINT and SIGTERM cancel the root context. The HTTP server drains within
SERVER_SHUTDOWN_TIMEOUT, then the stores are closed in reverse order.
*/
package main
