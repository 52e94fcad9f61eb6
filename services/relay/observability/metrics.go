// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability exports the relay's Prometheus metrics.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ==============================================================================
// Prometheus Metrics
// ==============================================================================

var (
	// sessionsActive tracks currently attached client sessions
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "orrery_sessions_active",
		Help: "Currently attached client sessions",
	})

	// sessionsTotal counts sessions over the process lifetime
	sessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orrery_sessions_total",
		Help: "Total client sessions accepted",
	})

	// messagesInTotal counts inbound client requests
	messagesInTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orrery_messages_in_total",
		Help: "Total inbound protocol requests",
	})

	// bundlesOutTotal counts outbound bundles actually sent
	bundlesOutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orrery_bundles_out_total",
		Help: "Total outbound bundles sent",
	})

	// bundleBytesTotal counts outbound bundle payload bytes
	bundleBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orrery_bundle_bytes_total",
		Help: "Total outbound bundle bytes",
	})

	// bundlesDroppedTotal counts bundles dropped by slow sessions
	bundlesDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orrery_bundles_dropped_total",
		Help: "Total bundles dropped because a session could not keep up",
	})

	// protocolErrorsTotal counts requests that failed to decode
	protocolErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orrery_protocol_errors_total",
		Help: "Total inbound requests that failed to decode",
	})

	// ticksTotal counts completed simulation ticks
	ticksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orrery_ticks_total",
		Help: "Total completed simulation ticks",
	})

	// tickDuration tracks wall time per simulation tick
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "orrery_tick_duration_seconds",
		Help:    "Wall time spent per simulation tick",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12), // 0.1ms to ~400ms
	})
)

// Metrics implements the session layer's metrics hooks and the engine's
// tick observer against the package's collectors.
type Metrics struct{}

// NewMetrics returns the shared collector front. Collectors are package
// level, so every instance reports into the same series.
func NewMetrics() *Metrics { return &Metrics{} }

func (Metrics) SessionOpened() {
	sessionsActive.Inc()
	sessionsTotal.Inc()
}

func (Metrics) SessionClosed() { sessionsActive.Dec() }

func (Metrics) MessageIn() { messagesInTotal.Inc() }

func (Metrics) BundleOut(bytes int) {
	bundlesOutTotal.Inc()
	bundleBytesTotal.Add(float64(bytes))
}

func (Metrics) BundleDropped() { bundlesDroppedTotal.Inc() }

func (Metrics) ProtocolError() { protocolErrorsTotal.Inc() }

// ObserveTick records one completed tick. Wire it to engine.Config.OnTick.
func (Metrics) ObserveTick(elapsed time.Duration) {
	ticksTotal.Inc()
	tickDuration.Observe(elapsed.Seconds())
}
