package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordWidgetFetch(t *testing.T) {
	counter := widgetFetchesTotal.With(prometheus.Labels{"widget": "metrics-test", "outcome": "loaded"})
	before := testutil.ToFloat64(counter)

	RecordWidgetFetch("metrics-test", "loaded", 120*time.Millisecond)
	RecordWidgetFetch("metrics-test", "loaded", 80*time.Millisecond)

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
}

func TestRecordDroppedTick(t *testing.T) {
	counter := widgetTicksDroppedTotal.With(prometheus.Labels{"widget": "metrics-test", "trigger": "tick"})
	before := testutil.ToFloat64(counter)

	RecordDroppedTick("metrics-test", "tick")

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestSetWidgetState(t *testing.T) {
	states := []string{"loading", "loaded", "broken"}

	SetWidgetState("state-test", "loading", states)
	SetWidgetState("state-test", "broken", states)

	assert.Equal(t, 0.0, testutil.ToFloat64(widgetState.With(prometheus.Labels{"widget": "state-test", "state": "loading"})))
	assert.Equal(t, 0.0, testutil.ToFloat64(widgetState.With(prometheus.Labels{"widget": "state-test", "state": "loaded"})))
	assert.Equal(t, 1.0, testutil.ToFloat64(widgetState.With(prometheus.Labels{"widget": "state-test", "state": "broken"})))
}

func TestWebSocketConnectionGauge(t *testing.T) {
	gauge := websocketConnectionsActive.With(prometheus.Labels{"room": "gauge-test"})

	RecordWebSocketConnection("gauge-test")
	RecordWebSocketConnection("gauge-test")
	RecordWebSocketDisconnection("gauge-test")

	assert.Equal(t, 1.0, testutil.ToFloat64(gauge))
}
