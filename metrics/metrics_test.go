package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(orderTransitions.WithLabelValues("picked"))
	OrderTransition("picked")
	assert.Equal(t, before+1, testutil.ToFloat64(orderTransitions.WithLabelValues("picked")))

	before = testutil.ToFloat64(codeMismatches)
	CodeMismatch()
	assert.Equal(t, before+1, testutil.ToFloat64(codeMismatches))

	SetLiveSubscribers(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(liveSubscribers))
}

func TestHandlerExposesCanteenMetrics(t *testing.T) {
	ObserveHTTP(http.MethodGet, "/api/canteens", http.StatusOK, 10*time.Millisecond)
	OrderPlaced()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(body, "canteen_http_requests_total"))
	assert.True(t, strings.Contains(body, "canteen_orders_placed_total"))
}
