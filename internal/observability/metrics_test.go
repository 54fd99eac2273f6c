package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("GET", "/healthz", 200, 3*time.Millisecond)
	ConnectionOpened("user")
	ConnectionClosed("user")
	RecordEvent("message", "ok")
	RecordDroppedFrame("closed")

	before := testutil.ToFloat64(calls.WithLabelValues("timeout"))
	RecordCall("timeout")
	if got := testutil.ToFloat64(calls.WithLabelValues("timeout")); got != before+1 {
		t.Fatalf("timeout transitions = %v, want %v", got, before+1)
	}
}
