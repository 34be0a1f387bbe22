// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TurnsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_turns_processed_total",
			Help: "Total number of conversational turns processed",
		},
		[]string{"outcome"},
	)

	TurnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "chat_turn_duration_seconds",
			Help: "Duration of turn processing in seconds",
		},
	)

	QueriesExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrollment_queries_executed_total",
			Help: "Total number of confirmed enrollment queries executed",
		},
		[]string{"result"},
	)

	DatasetReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrollment_dataset_reloads_total",
			Help: "Total number of dataset snapshot reloads",
		},
		[]string{"status"},
	)

	InvalidDomainValues = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extraction_invalid_values_total",
			Help: "Extracted values discarded for being outside the value domain",
		},
		[]string{"field"},
	)

	ConversationsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "conversations_active",
			Help: "Number of conversations currently held in the state store",
		},
	)
)
