// Package metrics exposes Prometheus counters for probe runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "galaxyprobe"

var (
	// jobsTotal counts submissions by tool and outcome.
	// Labels: tool, outcome (submitted, rejected, ok, error, paused)
	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "jobs_total",
		Help:      "Jobs by tool and outcome",
	}, []string{"tool", "outcome"})

	// combinationsTotal counts generated combinations by tool.
	combinationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "combinations_total",
		Help:      "Generated parameter combinations by tool",
	}, []string{"tool"})

	// pollSeconds measures time from submission to a terminal state.
	pollSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "poll_seconds",
		Help:      "Time until a job reached a terminal state",
		Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	}, []string{"tool"})

	// transportRetriesTotal counts recovered connectivity failures.
	// Labels: stage (poll, watch)
	transportRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transport_retries_total",
		Help:      "Transport failures recovered by waiting and retrying",
	}, []string{"stage"})

	// buildAttemptsTotal counts partial-state build calls.
	// Labels: result (ok, failure)
	buildAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "partial",
		Name:      "build_attempts_total",
		Help:      "Build calls made while probing for a partial state",
	}, []string{"result"})

	// journalEntriesTotal counts entries written to error journals.
	journalEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "journal",
		Name:      "entries_total",
		Help:      "Error journal entries written by tool",
	}, []string{"tool"})

	// toolsTotal counts first-seen tools by what the watcher did with them.
	// Labels: outcome (spawned, skipped, failed)
	toolsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "watcher",
		Name:      "tools_total",
		Help:      "Discovered tools by outcome",
	}, []string{"outcome"})

	// workersActive is the number of running combinatorial workers.
	workersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "watcher",
		Name:      "workers_active",
		Help:      "Running combinatorial workers",
	})

	// worklistSize is the number of unresolved artifacts in the last round.
	worklistSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "watcher",
		Name:      "worklist_size",
		Help:      "Unresolved artifacts carried into the next round",
	})
)

// JobOutcome records a submission or terminal job state.
func JobOutcome(tool, outcome string) {
	jobsTotal.WithLabelValues(tool, outcome).Inc()
}

// Combinations records the size of a generated matrix.
func Combinations(tool string, n int) {
	combinationsTotal.WithLabelValues(tool).Add(float64(n))
}

// PollDuration records how long a job took to finish.
func PollDuration(tool string, seconds float64) {
	pollSeconds.WithLabelValues(tool).Observe(seconds)
}

// TransportRetry records a recovered connectivity failure.
func TransportRetry(stage string) {
	transportRetriesTotal.WithLabelValues(stage).Inc()
}

// BuildAttempt records one partial-state build call.
func BuildAttempt(ok bool) {
	result := "failure"
	if ok {
		result = "ok"
	}
	buildAttemptsTotal.WithLabelValues(result).Inc()
}

// JournalEntry records a written journal entry.
func JournalEntry(tool string) {
	journalEntriesTotal.WithLabelValues(tool).Inc()
}

// ToolDiscovered records what happened to a first-seen tool.
func ToolDiscovered(outcome string) {
	toolsTotal.WithLabelValues(outcome).Inc()
}

// WorkerStarted and WorkerDone track running workers.
func WorkerStarted() { workersActive.Inc() }
func WorkerDone()    { workersActive.Dec() }

// Worklist records the size of the watcher's worklist.
func Worklist(n int) {
	worklistSize.Set(float64(n))
}
