package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuditTracks треки, обработанные аудитом, по итогу (updated, unchanged, skipped)
	AuditTracks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trail_audit_tracks_total",
		Help: "Number of tracks processed by the audit, by outcome",
	}, []string{"outcome"})

	// AuditSkips пропущенные треки по причине
	AuditSkips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trail_audit_skips_total",
		Help: "Number of tracks skipped by the audit, by reason",
	}, []string{"reason"})

	// AuditRuns завершенные запуски аудита
	AuditRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trail_audit_runs_total",
		Help: "Number of completed audit runs",
	})

	// AuditTrackDuration время пересчета одного трека
	AuditTrackDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trail_audit_track_duration_seconds",
		Help:    "Time spent recomputing stats for a single track",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	// AuditGainDelta абсолютное изменение набора высоты при пересчете
	AuditGainDelta = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trail_audit_gain_delta_meters",
		Help:    "Absolute elevation gain difference between stored and recomputed stats",
		Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000},
	})
)
