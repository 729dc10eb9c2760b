// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of vast.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vast-io/vast/internal/accountant"
	"github.com/vast-io/vast/internal/config"
	"github.com/vast-io/vast/internal/ingestor"
	"github.com/vast-io/vast/internal/partition"
	"github.com/vast-io/vast/internal/segment"
	"github.com/vast-io/vast/internal/transport"
	"github.com/vast-io/vast/pkg/log"
)

const version = "0.1.0"

var (
	metricSegmentsIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vast_segments_ingested_total",
		Help: "Segments acked into the local archive.",
	})
	metricEventsIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vast_events_ingested_total",
		Help: "Events indexed across all segments.",
	})
)

// archive is the in-process receiver: every segment the ingestor hands
// over is indexed into the active partition, flushed, and acked.
type archive struct {
	part *partition.Partition
	acct *accountant.Accountant
	aid  uint64
	ack  func(id uuid.UUID)
}

func (a *archive) Send(seg *segment.Segment) error {
	start := time.Now()
	if err := a.part.Ingest(seg); err != nil {
		return err
	}
	metricSegmentsIngested.Inc()
	metricEventsIngested.Add(float64(seg.EventCount()))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := a.acct.PerformanceReport(ctx, a.aid, accountant.PerfEntry{
		Key:      "archive.ingest",
		Events:   uint64(seg.EventCount()),
		Duration: time.Since(start),
	}); err != nil {
		log.Warnf("vastd: telemetry report failed: %v", err)
	}
	a.ack(seg.ID)
	return nil
}

func main() {
	cliInit()

	if flagVersion {
		fmt.Printf("vastd version %s\n", version)
		os.Exit(0)
	}

	log.Init(flagLogLevel, flagLogDateTime)

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("vastd: loading .env: %v", err)
	}

	cfg, err := config.Load(flagConfigFile)
	if err != nil {
		log.Fatalf("vastd: %v", err)
	}
	if flagDir != "" {
		cfg.Dir = flagDir
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Component run loops get a background context: shutdown is driven by
	// explicit Shutdown messages below so the ingestor keeps its ack grace
	// period and the accountant its final flush, even on SIGINT.
	acct := accountant.New(cfg.Dir)
	acctDone := make(chan error, 1)
	go func() { acctDone <- acct.Run(context.Background()) }()

	part, err := openPartition(cfg)
	if err != nil {
		log.Fatalf("vastd: %v", err)
	}

	var in *ingestor.Ingestor
	if cfg.Nats != nil {
		// The out-of-process receiver replaces the local archive; acks
		// come back over the wire instead of from partition ingest.
		client, err := transport.NewClient(transport.ClientConfig{
			Address:       cfg.Nats.Address,
			Username:      cfg.Nats.Username,
			Password:      cfg.Nats.Password,
			CredsFilePath: cfg.Nats.CredsFilePath,
		})
		if err != nil {
			log.Fatalf("vastd: %v", err)
		}
		defer client.Close()

		out, err := transport.NewNatsMailbox(client, "vast.segments", 64)
		if err != nil {
			log.Fatalf("vastd: %v", err)
		}
		acks, err := transport.NewNatsMailbox(client, "vast.segments.ack", 64)
		if err != nil {
			log.Fatalf("vastd: %v", err)
		}
		sender := transport.NewSegmentSender(out, acks, func(id uuid.UUID) { in.Ack(id) })
		go sender.Run()
		in = ingestor.New(cfg.Dir, sender, cfg.MaxEventsPerChunk, cfg.MaxSegmentSize)
	} else {
		recv := &archive{part: part, acct: acct, aid: acct.NextSenderID()}
		acct.Announce(recv.aid, "archive")
		in = ingestor.New(cfg.Dir, recv, cfg.MaxEventsPerChunk, cfg.MaxSegmentSize)
		recv.ack = in.Ack
	}

	inDone := make(chan error, 1)
	go func() { inDone <- in.Run(context.Background()) }()
	in.SubmitOrphans()

	if flagMetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(metricSegmentsIngested, metricEventsIngested)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: flagMetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorf("vastd: metrics server: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
	}

	log.Infof("vastd %s: node %q serving from %s", version, cfg.ID, cfg.Dir)

	<-ctx.Done()
	log.Infof("vastd: shutting down")

	in.Shutdown(nil)
	if err := <-inDone; err != nil {
		log.Errorf("vastd: ingestor exit: %v", err)
	}

	if err := part.Flush(); err != nil {
		log.Errorf("vastd: partition flush: %v", err)
	}
	if err := part.Close(); err != nil {
		log.Errorf("vastd: partition close: %v", err)
	}

	acct.Shutdown()
	if err := <-acctDone; err != nil {
		log.Errorf("vastd: accountant exit: %v", err)
	}
}

// openPartition reuses the most recently modified partition directory if
// one exists, or creates a fresh one.
func openPartition(cfg config.Keys) (*partition.Partition, error) {
	root := filepath.Join(cfg.Dir, "partitions")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}

	id := uuid.New()
	var latest time.Time
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		existing, err := uuid.Parse(entry.Name())
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(latest) {
			latest = info.ModTime()
			id = existing
		}
	}

	return partition.New(filepath.Join(root, id.String()), id, partition.Config{
		BatchSize: cfg.BatchSize,
	})
}
