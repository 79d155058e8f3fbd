// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package jobs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shelfwatch",
		Subsystem: "jobs",
		Name:      "enqueued_total",
		Help:      "Jobs published onto a queue.",
	}, []string{"queue", "kind"})

	jobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shelfwatch",
		Subsystem: "jobs",
		Name:      "processed_total",
		Help:      "Jobs that finished processing, by outcome.",
	}, []string{"queue", "kind", "status"})

	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "shelfwatch",
		Subsystem: "jobs",
		Name:      "queue_depth",
		Help:      "Jobs published but not yet finished, per queue.",
	}, []string{"queue"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "shelfwatch",
		Subsystem: "jobs",
		Name:      "duration_seconds",
		Help:      "Handler run time per job.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"queue", "kind"})
)
