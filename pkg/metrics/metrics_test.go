package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	Register()
	Register()

	before := testutil.ToFloat64(ticksCounter)
	RecordTick()
	assert.Equal(t, before+1, testutil.ToFloat64(ticksCounter))

	beforeArrivals := testutil.ToFloat64(arrivalsCounter.WithLabelValues("A2"))
	RecordArrival("A2")
	RecordArrival("A2")
	assert.Equal(t, beforeArrivals+2, testutil.ToFloat64(arrivalsCounter.WithLabelValues("A2")))

	beforeReleased := testutil.ToFloat64(releasedCounter.WithLabelValues("B1"))
	RecordReleased("B1", 0)
	RecordReleased("B1", 3)
	assert.Equal(t, beforeReleased+3, testutil.ToFloat64(releasedCounter.WithLabelValues("B1")))

	RecordLaneState("A2", 11, true)
	assert.Equal(t, 11.0, testutil.ToFloat64(queueLength.WithLabelValues("A2")))
	assert.Equal(t, 1.0, testutil.ToFloat64(priorityActive.WithLabelValues("A2")))
	RecordLaneState("A2", 4, false)
	assert.Equal(t, 0.0, testutil.ToFloat64(priorityActive.WithLabelValues("A2")))

	RecordSignalGreen([]string{"north", "east"}, "east")
	assert.Equal(t, 0.0, testutil.ToFloat64(signalGreen.WithLabelValues("north")))
	assert.Equal(t, 1.0, testutil.ToFloat64(signalGreen.WithLabelValues("east")))

	RecordSelection("north", "round_robin", 4*time.Second)
	assert.Equal(t, 1, testutil.CollectAndCount(selectionsCounter.WithLabelValues("north", "round_robin")))
}

func TestHandler(t *testing.T) {
	Register()
	RecordTick()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "junction_scheduler_ticks_total"))
}
