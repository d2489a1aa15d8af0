/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "grimnir_playout"

var (
	// PlayoutBuildsTotal counts builds by mode and outcome.
	PlayoutBuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "builds_total",
		Help:      "Playout builds by mode and outcome.",
	}, []string{"mode", "outcome"})

	// ScheduleBuildDuration tracks wall time of a full build pass.
	ScheduleBuildDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "build_duration_seconds",
		Help:      "Duration of playout build passes.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
	}, []string{"mode"})

	// PlayoutItemsEmitted counts items placed on timelines by filler kind.
	PlayoutItemsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "items_emitted_total",
		Help:      "Playout items emitted by filler kind.",
	}, []string{"filler_kind"})

	// PlayoutWarningsTotal counts skipped or suspicious content.
	PlayoutWarningsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "warnings_total",
		Help:      "Data quality warnings raised during builds.",
	}, []string{"kind"})

	// FillerPredictionMismatches counts filler end-time predictions that missed.
	FillerPredictionMismatches = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "filler_prediction_mismatches_total",
		Help:      "Filler duration predictions that differed from the scheduled result by more than a second.",
	})

	// SchedulerTicksTotal counts rolling scheduler iterations.
	SchedulerTicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scheduler_ticks_total",
		Help:      "Rolling scheduler ticks.",
	})

	// SchedulerErrorsTotal counts scheduler failures per playout and stage.
	SchedulerErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scheduler_errors_total",
		Help:      "Rolling scheduler errors.",
	}, []string{"playout", "stage"})

	// CacheRequestsTotal counts cache lookups.
	CacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_requests_total",
		Help:      "Cache lookups by kind and result.",
	}, []string{"kind", "result"})

	// BuildLockContention counts build lock acquisitions that found the lock held.
	BuildLockContention = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "build_lock_contention_total",
		Help:      "Build lock attempts that found the channel already locked.",
	}, []string{"backend"})

	// LeaderElectionStatus is 1 while this instance leads the scheduler.
	LeaderElectionStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "leader_election_status",
		Help:      "Whether this instance holds scheduler leadership.",
	}, []string{"instance"})

	// LeaderElectionChanges counts leadership transitions.
	LeaderElectionChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "leader_election_changes_total",
		Help:      "Leadership transitions.",
	}, []string{"instance", "change"})

	// EventBusMessagesTotal counts bridged event bus traffic.
	EventBusMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "eventbus_messages_total",
		Help:      "Messages crossing the NATS bridge by direction.",
	}, []string{"direction", "type"})

	// WebhookDeliveriesTotal counts webhook attempts by event and result.
	WebhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_deliveries_total",
		Help:      "Webhook delivery attempts by event and result.",
	}, []string{"event", "result"})

	// DatabaseQueryDuration tracks gorm statement latency.
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "db_query_duration_seconds",
		Help:      "Database statement latency by operation and table.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// DatabaseErrorsTotal counts failed gorm statements.
	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "db_errors_total",
		Help:      "Failed database statements by operation.",
	}, []string{"operation"})

	// DatabaseConnectionsOpen tracks the connection pool size.
	DatabaseConnectionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "db_connections_open",
		Help:      "Open database connections.",
	})

	// APIRequestsTotal counts operations server requests.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Operations server requests.",
	}, []string{"method", "endpoint", "status"})

	// APIRequestDuration tracks operations server latency.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Operations server request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	// APIActiveConnections tracks in-flight requests.
	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "http_active_requests",
		Help:      "In-flight operations server requests.",
	})
)

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
