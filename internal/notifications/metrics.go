// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package notifications

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "shelfwatch",
	Subsystem: "notifications",
	Name:      "deliveries_total",
	Help:      "Notification delivery attempts, by platform and outcome.",
}, []string{"platform", "status"})
