// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metrics exposes Prometheus counters and histograms for the
// Executor's call rate, document-parse outcomes, and Lua delegate
// dispatch via github.com/prometheus/client_golang.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "papuga",
		Subsystem: "executor",
		Name:      "calls_total",
		Help:      "Number of scheduled method calls executed, by class and outcome.",
	}, []string{"class", "method", "outcome"})

	CallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "papuga",
		Subsystem: "executor",
		Name:      "call_duration_seconds",
		Help:      "Wall time spent inside one scheduled method call.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"class", "method"})

	DocumentParsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "papuga",
		Subsystem: "document",
		Name:      "parses_total",
		Help:      "Number of documents opened for parsing, by content type and outcome.",
	}, []string{"content_type", "outcome"})

	DelegateDispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "papuga",
		Subsystem: "luahandler",
		Name:      "delegate_dispatch_total",
		Help:      "Number of delegate requests dispatched from send(), by backend and outcome.",
	}, []string{"backend", "outcome"})

	ContextPoolHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "papuga",
		Subsystem: "reqcontext",
		Name:      "pool_total",
		Help:      "RequestContextPool lookups, by whether the base context was cached or built.",
	}, []string{"result"})
)

// Handler exposes the process's registered metrics for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
