package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveStorage(t *testing.T) {
	up := testutil.ToFloat64(StorageBytesDelta.WithLabelValues("up"))
	down := testutil.ToFloat64(StorageBytesDelta.WithLabelValues("down"))

	ObserveStorage(100)
	ObserveStorage(-40)
	ObserveStorage(0)

	assert.Equal(t, up+100, testutil.ToFloat64(StorageBytesDelta.WithLabelValues("up")))
	assert.Equal(t, down+40, testutil.ToFloat64(StorageBytesDelta.WithLabelValues("down")))
}

func TestHandler_ExposesRegistry(t *testing.T) {
	LimitHits.WithLabelValues("boards").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `boardcontext_plan_limit_hits_total{kind="boards"}`))
	assert.Contains(t, body, "go_goroutines")
}
