package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestJobOutcome(t *testing.T) {
	before := testutil.ToFloat64(jobsTotal.WithLabelValues("cat1", "error"))
	JobOutcome("cat1", "error")
	JobOutcome("cat1", "error")
	assert.Equal(t, before+2, testutil.ToFloat64(jobsTotal.WithLabelValues("cat1", "error")))
}

func TestBuildAttempt(t *testing.T) {
	ok := testutil.ToFloat64(buildAttemptsTotal.WithLabelValues("ok"))
	fail := testutil.ToFloat64(buildAttemptsTotal.WithLabelValues("failure"))
	BuildAttempt(true)
	BuildAttempt(false)
	BuildAttempt(false)
	assert.Equal(t, ok+1, testutil.ToFloat64(buildAttemptsTotal.WithLabelValues("ok")))
	assert.Equal(t, fail+2, testutil.ToFloat64(buildAttemptsTotal.WithLabelValues("failure")))
}

func TestWorkerGauge(t *testing.T) {
	before := testutil.ToFloat64(workersActive)
	WorkerStarted()
	WorkerStarted()
	WorkerDone()
	assert.Equal(t, before+1, testutil.ToFloat64(workersActive))
	WorkerDone()

	Worklist(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(worklistSize))
}
