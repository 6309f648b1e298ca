package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersIncrement(t *testing.T) {
	Init()

	startEvents := testutil.ToFloat64(sagaEvents.WithLabelValues("MACRO_CREATE_SAGA", "CREATE_MACRO", "MACRO_CREATED"))
	startPurged := testutil.ToFloat64(purgedRows.WithLabelValues("sagas"))

	IncSagaEvent("MACRO_CREATE_SAGA", "CREATE_MACRO", "MACRO_CREATED")
	AddPurgedRows("sagas", 3)

	assert.Equal(t, startEvents+1, testutil.ToFloat64(sagaEvents.WithLabelValues("MACRO_CREATE_SAGA", "CREATE_MACRO", "MACRO_CREATED")))
	assert.Equal(t, startPurged+3, testutil.ToFloat64(purgedRows.WithLabelValues("sagas")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	IncScheduledRun("purge_old_saga_records", "executed")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "scheduler_runs_total")
}
