package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loadceiling/internal/runner"
	"loadceiling/internal/stats"
)

func TestRecorder_Observe(t *testing.T) {
	r := NewRecorder()

	r.Observe(5, runner.QueryOutcome{QueryName: "top_brands", Status: runner.StatusSuccess, Duration: 20 * time.Millisecond})
	r.Observe(5, runner.QueryOutcome{QueryName: "top_brands", Status: runner.StatusConnectionFailure, Err: "reset"})
	r.Observe(5, runner.QueryOutcome{QueryName: "top_brands", Status: runner.StatusSuccess, Duration: 30 * time.Millisecond})

	assert.Equal(t, 2.0, testutil.ToFloat64(r.queries.WithLabelValues("top_brands", "5", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.queries.WithLabelValues("top_brands", "5", "connection_failure")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.duration))
}

func TestRecorder_StageLifecycle(t *testing.T) {
	r := NewRecorder()

	r.StageStarted(15, 50)
	r.StageFinished(stats.StageResult{Workers: 15, SuccessRate: 60, ConnectionFailures: 3, AvgSuccessDuration: 250 * time.Millisecond}, true)
	r.Halted(runner.Breakpoint{Level: 15, LastGood: runner.LevelOf(10)})

	assert.Equal(t, 15.0, testutil.ToFloat64(r.workers))
	assert.Equal(t, 60.0, testutil.ToFloat64(r.successRate))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.connFailures))
	assert.Equal(t, 0.25, testutil.ToFloat64(r.avgDuration))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stagesTotal.WithLabelValues("stop")))
	assert.Equal(t, 15.0, testutil.ToFloat64(r.breakingPoint))
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder()
	r.StageStarted(5, 50)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "loadceiling_stage_workers 5"), body)
}
