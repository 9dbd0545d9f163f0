// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package telemetry is the opt-in Prometheus exporter for the stream
// backend: append admission outcomes, commit batch sizes, broadcast lag,
// and registry spawn/eviction counts. Safe to call on hot paths — every
// exported function is a no-op until Enable has been called.
package telemetry

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var enabled atomic.Bool

var (
	appendsAdmittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "streamkeeper_appends_admitted_total",
		Help: "Total append batches that passed admission checks",
	})
	appendsRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "streamkeeper_appends_rejected_total",
		Help: "Total append batches rejected, labeled by error kind",
	}, []string{"kind"})
	recordsCommittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "streamkeeper_records_committed_total",
		Help: "Total records durably committed across all commit batches",
	})
	recordsPerBatch = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "streamkeeper_records_per_commit_batch",
		Help:    "Distribution of record counts per commit batch",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1024},
	})
	commitErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "streamkeeper_commit_errors_total",
		Help: "Total commit batches that failed against the durable store",
	})
	batchesAbortedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "streamkeeper_batches_aborted_total",
		Help: "Total pipelined batches aborted due to an earlier in-flight failure",
	})
	broadcastLaggedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "streamkeeper_broadcast_lagged_total",
		Help: "Total times a tailing subscriber fell behind the broadcast ring buffer",
	})
	streamersSpawnedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "streamkeeper_streamers_spawned_total",
		Help: "Total Streamer instances spawned by the registry",
	})
	streamersEvictedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "streamkeeper_streamers_evicted_total",
		Help: "Total Streamer instances evicted for idleness",
	})
	activeStreamers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "streamkeeper_active_streamers",
		Help: "Number of Streamer instances currently live in the registry",
	})
)

func init() {
	prometheus.MustRegister(
		appendsAdmittedTotal,
		appendsRejectedTotal,
		recordsCommittedTotal,
		recordsPerBatch,
		commitErrorsTotal,
		batchesAbortedTotal,
		broadcastLaggedTotal,
		streamersSpawnedTotal,
		streamersEvictedTotal,
		activeStreamers,
	)
}

// Enable turns on telemetry recording. Call once at process startup.
func Enable() {
	enabled.Store(true)
}

// Enabled reports whether telemetry recording is active.
func Enabled() bool {
	return enabled.Load()
}

// ObserveAppendAdmitted records a successfully admitted append batch.
func ObserveAppendAdmitted() {
	if !enabled.Load() {
		return
	}
	appendsAdmittedTotal.Inc()
}

// ObserveAppendRejected records an append batch rejected for the given
// error kind (see internal/streamerr).
func ObserveAppendRejected(kind string) {
	if !enabled.Load() {
		return
	}
	appendsRejectedTotal.WithLabelValues(kind).Inc()
}

// ObserveCommit records a successful commit batch of n records.
func ObserveCommit(n int) {
	if !enabled.Load() || n <= 0 {
		return
	}
	recordsCommittedTotal.Add(float64(n))
	recordsPerBatch.Observe(float64(n))
}

// ObserveCommitError records a commit batch that failed against the store.
func ObserveCommitError() {
	if !enabled.Load() {
		return
	}
	commitErrorsTotal.Inc()
}

// ObserveBatchAborted records a pipelined batch that was aborted due to an
// earlier in-flight failure in the same generation.
func ObserveBatchAborted() {
	if !enabled.Load() {
		return
	}
	batchesAbortedTotal.Inc()
}

// ObserveBroadcastLagged records a tailing subscriber falling behind.
func ObserveBroadcastLagged() {
	if !enabled.Load() {
		return
	}
	broadcastLaggedTotal.Inc()
}

// ObserveStreamerSpawned records the registry spawning a new Streamer.
func ObserveStreamerSpawned() {
	if !enabled.Load() {
		return
	}
	streamersSpawnedTotal.Inc()
	activeStreamers.Inc()
}

// ObserveStreamerEvicted records the registry evicting an idle Streamer.
func ObserveStreamerEvicted() {
	if !enabled.Load() {
		return
	}
	streamersEvictedTotal.Inc()
	activeStreamers.Dec()
}

// StartMetricsEndpoint exposes /metrics on addr in a background goroutine,
// on its own mux so the service can run a separate metrics listener
// alongside the main HTTP API without sharing a port.
func StartMetricsEndpoint(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = server.ListenAndServe()
	}()
	return server
}
