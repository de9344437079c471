// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RemoteRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "galleryd_remote_requests_total",
		Help: "Remote API and image requests by kind and outcome",
	}, []string{"kind", "outcome"})

	PagesDownloaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "galleryd_pages_downloaded_total",
		Help: "Total number of pages written to disk",
	})

	PagesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "galleryd_pages_skipped_total",
		Help: "Pages already present on disk when a download step ran",
	})

	BytesDownloaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "galleryd_download_bytes_total",
		Help: "Total page bytes downloaded",
	})

	GalleriesFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "galleryd_galleries_finished_total",
		Help: "Galleries that reached a terminal state",
	}, []string{"status"})

	WorkerRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "galleryd_worker_runs_total",
		Help: "Scheduler job runs by job and result",
	}, []string{"job", "result"})

	StepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "galleryd_download_step_duration_seconds",
		Help:    "Duration of one orchestration worker step",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "galleryd_queue_depth",
		Help: "Entries currently held in the in-memory download queue",
	})

	PageFetchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "galleryd_pagefetch_attempts_total",
		Help: "Sequential page fetch attempts by outcome",
	}, []string{"outcome"})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "galleryd_notifications_total",
		Help: "Notification deliveries by event and outcome",
	}, []string{"event", "outcome"})

	Exports = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "galleryd_exports_total",
		Help: "Archive exports by result",
	}, []string{"result"})
)

// Outcome labels shared by the counters above.
const (
	OutcomeOK        = "ok"
	OutcomeTransient = "transient"
	OutcomeFatal     = "fatal"
	OutcomeDropped   = "dropped"
)
