package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()
	once     sync.Once

	sagaEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_events_handled_total",
			Help: "Inbound saga events applied by the orchestrator.",
		},
		[]string{"saga_name", "event_type", "event_outcome"},
	)
	sagaDuplicates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_duplicate_events_total",
			Help: "Redelivered saga events whose history row already existed.",
		},
		[]string{"saga_name"},
	)
	sagaPersistRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_persist_retries_total",
			Help: "Retried saga step writes.",
		},
		[]string{"saga_name"},
	)
	sagaCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_completed_total",
			Help: "Sagas that reached a terminal status.",
		},
		[]string{"saga_name", "status"},
	)
	publishFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_publish_failures_total",
			Help: "Events that could not be published.",
		},
		[]string{"topic"},
	)
	ledgerReplays = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "command_ledger_replays_total",
			Help: "Commands answered from the ledger without repeating the mutation.",
		},
		[]string{"event_type"},
	)
	purgedRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_purge_deleted_rows_total",
			Help: "Rows removed by the retention purge.",
		},
		[]string{"table"},
	)
	scheduledRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_runs_total",
			Help: "Scheduled job runs by result (executed, skipped, failed).",
		},
		[]string{"job", "result"},
	)
)

// Init регистрирует метрики в реестре один раз
func Init() {
	once.Do(func() {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			sagaEvents,
			sagaDuplicates,
			sagaPersistRetries,
			sagaCompleted,
			publishFailures,
			ledgerReplays,
			purgedRows,
			scheduledRuns,
		)
	})
}

// Handler отдает метрики в формате Prometheus
func Handler() http.Handler {
	Init()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func IncSagaEvent(sagaName, eventType, outcome string) {
	Init()
	sagaEvents.WithLabelValues(sagaName, eventType, outcome).Inc()
}

func IncSagaDuplicate(sagaName string) {
	Init()
	sagaDuplicates.WithLabelValues(sagaName).Inc()
}

func IncSagaPersistRetry(sagaName string) {
	Init()
	sagaPersistRetries.WithLabelValues(sagaName).Inc()
}

func IncSagaCompleted(sagaName, status string) {
	Init()
	sagaCompleted.WithLabelValues(sagaName, status).Inc()
}

func IncPublishFailure(topic string) {
	Init()
	publishFailures.WithLabelValues(topic).Inc()
}

func IncLedgerReplay(eventType string) {
	Init()
	ledgerReplays.WithLabelValues(eventType).Inc()
}

func AddPurgedRows(table string, n int64) {
	Init()
	purgedRows.WithLabelValues(table).Add(float64(n))
}

func IncScheduledRun(job, result string) {
	Init()
	scheduledRuns.WithLabelValues(job, result).Inc()
}
