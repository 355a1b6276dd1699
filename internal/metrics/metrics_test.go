package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordHelpers(t *testing.T) {
	before := testutil.ToFloat64(MessagesSent.WithLabelValues("true"))
	RecordMessageSent(true)
	assert.Equal(t, before+1, testutil.ToFloat64(MessagesSent.WithLabelValues("true")))

	beforeReq := testutil.ToFloat64(HTTPRequests.WithLabelValues("POST", "201"))
	RecordHTTPRequest("POST", 201)
	assert.Equal(t, beforeReq+1, testutil.ToFloat64(HTTPRequests.WithLabelValues("POST", "201")))

	ObserveStoreCall("test.op", time.Now())
	assert.GreaterOrEqual(t, testutil.CollectAndCount(StoreCallDuration, "messaging_store_call_duration_seconds"), 1)
}
