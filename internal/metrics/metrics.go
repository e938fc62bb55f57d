package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels completed operations.
	OutcomeSuccess = "success"
	// OutcomeError labels failed operations (backend or dependency issues).
	OutcomeError = "error"
	// OutcomeStale labels fetch cycles whose result was superseded by a newer one.
	OutcomeStale = "stale"
	// OutcomeSkipped labels work that was intentionally not done (duplicates, no device).
	OutcomeSkipped = "skipped"
)

var (
	fetchCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "equipment_monitor",
			Name:      "fetch_cycles_total",
			Help:      "Total number of fetch cycles, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	fetchCycleSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "equipment_monitor",
			Name:      "fetch_cycle_seconds",
			Help:      "Fetch cycle latency in seconds, backend call plus analytics.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 10},
		},
	)

	anomaliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "equipment_monitor",
			Name:      "anomalies_total",
			Help:      "Anomalies raised by committed fetch cycles, partitioned by severity.",
		},
		[]string{"severity"},
	)

	healthScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "equipment_monitor",
			Name:      "health_score",
			Help:      "Latest composite health score (0-100) per device.",
		},
		[]string{"device"},
	)

	seriesPoints = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "equipment_monitor",
			Name:      "series_points",
			Help:      "Number of repaired data points in the latest snapshot per device.",
		},
		[]string{"device"},
	)

	vocabularyReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "equipment_monitor",
			Name:      "vocabulary_reloads_total",
			Help:      "Parameter vocabulary reloads, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "equipment_monitor",
			Name:      "notifications_total",
			Help:      "Anomaly notifications handed to the broker, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	websocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "equipment_monitor",
			Name:      "websocket_clients",
			Help:      "Currently connected WebSocket clients.",
		},
	)
)

// Register attaches equipment-monitor collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		fetchCyclesTotal,
		fetchCycleSeconds,
		anomaliesTotal,
		healthScore,
		seriesPoints,
		vocabularyReloadsTotal,
		notificationsTotal,
		websocketClients,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveFetchCycle records a fetch-cycle duration and outcome label.
func ObserveFetchCycle(duration time.Duration, outcome string) {
	switch outcome {
	case OutcomeError, OutcomeStale, OutcomeSkipped:
	default:
		outcome = OutcomeSuccess
	}
	fetchCyclesTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomeSkipped {
		return
	}
	if duration < 0 {
		duration = 0
	}
	fetchCycleSeconds.Observe(duration.Seconds())
}

// ObserveSnapshot records the per-device gauges and anomaly counters of a committed cycle.
func ObserveSnapshot(device string, score, points int, severities map[string]int) {
	healthScore.WithLabelValues(device).Set(float64(score))
	seriesPoints.WithLabelValues(device).Set(float64(points))
	for severity, count := range severities {
		if count > 0 {
			anomaliesTotal.WithLabelValues(severity).Add(float64(count))
		}
	}
}

// ObserveVocabularyReload counts a vocabulary reload attempt.
func ObserveVocabularyReload(outcome string) {
	if outcome != OutcomeError {
		outcome = OutcomeSuccess
	}
	vocabularyReloadsTotal.WithLabelValues(outcome).Inc()
}

// ObserveNotification counts a notification attempt.
func ObserveNotification(outcome string) {
	switch outcome {
	case OutcomeError, OutcomeSkipped:
	default:
		outcome = OutcomeSuccess
	}
	notificationsTotal.WithLabelValues(outcome).Inc()
}

// SetWebsocketClients reports the connected client count.
func SetWebsocketClients(n int) {
	websocketClients.Set(float64(n))
}
