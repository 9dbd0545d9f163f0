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

// Package main provides the entry point for streamd, the durable-log
// streaming backend's HTTP-facing process: it wires a kv.Store backend, a
// config.Source, a Registry of per-stream Streamers, and the httpapi.Server
// in front of them, then waits for SIGINT/SIGTERM to drain and exit.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"streamkeeper/internal/config"
	"streamkeeper/internal/httpapi"
	"streamkeeper/internal/kv"
	"streamkeeper/internal/kv/memkv"
	"streamkeeper/internal/kv/postgreskv"
	"streamkeeper/internal/kv/rediskv"
	"streamkeeper/internal/logx"
	"streamkeeper/internal/registry"
	"streamkeeper/internal/streamer"
	"streamkeeper/internal/telemetry"
	"streamkeeper/pkg/stream"
)

func main() {
	backend := flag.String("kv_backend", "memory", "Durable store backend: memory, redis, or postgres")
	redisAddr := flag.String("redis_addr", "127.0.0.1:6379", "Redis address, used when kv_backend=redis")
	redisNamespace := flag.String("redis_namespace", "streamkeeper", "Key namespace prefix, used when kv_backend=redis")
	postgresDSN := flag.String("postgres_dsn", "", "Postgres DSN, required when kv_backend=postgres")

	httpAddr := flag.String("http_addr", ":8080", "HTTP listen address for the append/read/check_tail/reconfigure/delete_stream API")
	metricsAddr := flag.String("metrics_addr", "", "If non-empty, expose Prometheus /metrics on this address (e.g., :9090)")

	// Pipelining is off (depth 1) unless PIPELINE_ENABLED=true, which
	// raises the default depth to 8; the flag overrides either default.
	defaultPipelineDepth := 1
	if os.Getenv("PIPELINE_ENABLED") == "true" {
		defaultPipelineDepth = 8
	}
	pipelineDepth := flag.Int("pipeline_depth", defaultPipelineDepth, "Default bound on concurrent in-flight commit batches per stream")
	maxRecords := flag.Int("max_records_per_batch", streamer.DefaultLimits.MaxRecords, "Maximum records accepted in a single append batch")
	maxBatchBytes := flag.Int("max_batch_bytes", streamer.DefaultLimits.MaxBatchBytes, "Maximum total bytes (bodies plus header names and values) accepted in a single append batch")
	maxRecordBytes := flag.Int("max_record_bytes", streamer.DefaultLimits.MaxRecordBytes, "Maximum bytes (body plus header names and values) accepted for a single record")

	idleAfter := flag.Duration("idle_after", 10*time.Minute, "Evict a stream's Streamer after this long with no admitted append (live tail subscriptions do not count as activity); 0 disables eviction")
	evictInterval := flag.Duration("evict_interval", 30*time.Second, "How often to scan for idle Streamers")

	devLog := flag.Bool("dev_log", false, "Use a human-readable console logger instead of JSON")
	logLevel := flag.String("log_level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	logger := logx.NewOrDie(*devLog, *logLevel)
	defer logger.Sync()

	store, closeStore, err := openStore(*backend, *redisAddr, *redisNamespace, *postgresDSN)
	if err != nil {
		logger.Fatal("failed to open kv store", zap.Error(err))
	}
	defer closeStore()

	if *metricsAddr != "" {
		telemetry.Enable()
		metricsServer := telemetry.StartMetricsEndpoint(*metricsAddr)
		defer metricsServer.Close()
		logger.Sugar().Infof("metrics listening on %s", *metricsAddr)
	}

	cfgSource := config.NewKVSource(store)

	reg := registry.New(registry.Options{
		Store:         store,
		Config:        cfgSource,
		PipelineDepth: *pipelineDepth,
		Limits: streamer.Limits{
			MaxRecords:     *maxRecords,
			MaxBatchBytes:  *maxBatchBytes,
			MaxRecordBytes: *maxRecordBytes,
		},
		IdleAfter:     *idleAfter,
		EvictInterval: *evictInterval,
		Logger:        logger,
	})
	reg.StartEvictionLoop()

	core := stream.New(store, cfgSource, reg)
	apiServer := httpapi.NewServer(core, logger)

	// Built here rather than inside httpapi.Server.ListenAndServe so main
	// can call Shutdown with a timeout below.
	mux := http.NewServeMux()
	apiServer.RegisterRoutes(mux)
	httpServer := &http.Server{
		Addr:         *httpAddr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second, // tailing reads can legitimately hold a connection open
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Sugar().Infof("streamkeeper HTTP API listening on %s", *httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("HTTP server exited unexpectedly", zap.Error(err))
	}

	// Stop accepting new requests first, then drain every live Streamer's
	// pending work before the process exits.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	reg.ShutdownAll()

	logger.Info("streamd stopped")
}

// openStore constructs the kv.Store backend named by backend, returning a
// matching close function. memory has nothing to close; redis and postgres
// close the underlying client/connection pool.
func openStore(backend, redisAddr, redisNamespace, postgresDSN string) (kv.Store, func(), error) {
	switch backend {
	case "memory", "":
		return memkv.New(), func() {}, nil

	case "redis":
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		store := rediskv.New(client, redisNamespace)
		return store, func() { client.Close() }, nil

	case "postgres":
		if postgresDSN == "" {
			return nil, nil, fmt.Errorf("postgres_dsn is required when kv_backend=postgres")
		}
		db, err := sql.Open("postgres", postgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("opening postgres: %w", err)
		}
		return postgreskv.New(db), func() { db.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown kv_backend %q (want memory, redis, or postgres)", backend)
	}
}
