// Imaginears Web - Community Management and Session Security Analytics
// Copyright 2026 Imaginears Club
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/imaginearsclub/imaginears-web

package main

import (
	"github.com/imaginearsclub/imaginears-web-sub001/internal/config"
	"github.com/imaginearsclub/imaginears-web-sub001/internal/detection"
)

func aggregatorConfig(cfg *config.DetectionConfig) detection.AggregatorConfig {
	return detection.AggregatorConfig{
		MaxPlausibleSpeedKmh: cfg.MaxPlausibleSpeedKmh,
		MaxObservations:      cfg.MaxObservations,
		GeoConcurrency:       cfg.GeoConcurrency,
		BurstWindow:          cfg.BurstWindow,
		BurstThreshold:       cfg.BurstThreshold,
		RecurrenceWindow:     cfg.RecurrenceWindow,
		RecurrenceThreshold:  cfg.RecurrenceThreshold,
		ConcurrencyThreshold: cfg.ConcurrencyThreshold,
	}
}

func scannerConfig(cfg *config.DetectionConfig) detection.ScannerConfig {
	return detection.ScannerConfig{
		LookbackWindow: cfg.LookbackWindow,
		ScanInterval:   cfg.ScanInterval,
		ScanTimeout:    cfg.ScanTimeout,
	}
}

func alertStateLocation(cfg *config.AlertStateConfig) string {
	if cfg.InMemory {
		return "memory"
	}
	return cfg.Path
}
