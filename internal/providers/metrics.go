// Shelfwatch - Personal Media and Fitness Tracking Server
// Copyright 2026 Shelfwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwatch/shelfwatch

package providers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var callFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "shelfwatch",
	Subsystem: "providers",
	Name:      "call_failures_total",
	Help:      "Upstream catalog calls that failed, by provider.",
}, []string{"provider"})
