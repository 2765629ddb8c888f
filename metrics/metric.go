// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

// Package metrics holds the Prometheus surface for a session-map daemon:
// version-lineage gauges, dirty-set depth, session counts by state, and
// save/load latency histograms.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "sessionmap"

var (
	Registry = prometheus.NewRegistry()

	Version = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "version",
		Help:      "Current value of a version-lineage counter.",
	}, []string{"rank", "counter"})

	DirtyDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "dirty_sessions",
		Help:      "Number of sessions currently staged for upsert on the next save.",
	}, []string{"rank"})

	NullDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "null_sessions",
		Help:      "Number of sessions currently staged for delete on the next save.",
	}, []string{"rank"})

	SessionsByState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions",
		Help:      "Number of live sessions, by state.",
	}, []string{"rank", "state"})

	SaveLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "save_latency_seconds",
		Help:      "Time from save() submission to its commit completion.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"rank"})

	LoadLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "load_latency_seconds",
		Help:      "Time from load() submission to waiter release.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"rank"})

	LoadPages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "load_pages_total",
		Help:      "Number of omap_get_vals pages fetched while loading.",
	}, []string{"rank"})
)

func init() {
	Registry.MustRegister(
		Version,
		DirtyDepth,
		NullDepth,
		SessionsByState,
		SaveLatency,
		LoadLatency,
		LoadPages,
	)
}
