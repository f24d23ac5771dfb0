// Package observability holds the Prometheus collectors shared by the stores and services.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"example.com/studytrack/internal/domain"
)

var (
	activitiesLogged = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "studytrack",
		Subsystem: "persistence",
		Name:      "activities_logged_total",
		Help:      "Number of study activities persisted.",
	})
	minutesLogged = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "studytrack",
		Subsystem: "persistence",
		Name:      "minutes_logged_total",
		Help:      "Study minutes carried by persisted activities.",
	})
	sessionsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "studytrack",
		Subsystem: "persistence",
		Name:      "sessions_created_total",
		Help:      "Number of study sessions created.",
	})
	lastActivityGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "studytrack",
		Subsystem: "persistence",
		Name:      "last_activity_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity persisted.",
	})
	storeErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "studytrack",
		Subsystem: "persistence",
		Name:      "store_errors_total",
		Help:      "Failed store writes grouped by backend and operation.",
	}, []string{"backend", "op"})
	streaksProjected = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "studytrack",
		Subsystem: "progress",
		Name:      "projected_streak_days",
		Help:      "Distribution of streak lengths computed by the projector.",
		Buckets:   []float64{0, 1, 3, 7, 14, 30, 90, 365},
	})
)

func init() {
	prometheus.MustRegister(activitiesLogged, minutesLogged, sessionsCreated, lastActivityGauge, storeErrors, streaksProjected)
}

// RecordActivityLogged counts a persisted activity and moves the watermark gauge.
func RecordActivityLogged(a domain.Activity) {
	activitiesLogged.Inc()
	minutesLogged.Add(float64(a.DurationMinutes))
	if a.CreatedAt.IsZero() {
		return
	}
	lastActivityGauge.Set(float64(a.CreatedAt.Unix()))
}

// RecordSessionCreated counts a new session.
func RecordSessionCreated() {
	sessionsCreated.Inc()
}

// RecordStoreError counts a failed write.
func RecordStoreError(backend, op string) {
	storeErrors.WithLabelValues(backend, op).Inc()
}

// RecordStreakProjected observes a streak computed for the projection table.
func RecordStreakProjected(days int) {
	streaksProjected.Observe(float64(days))
}
