package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	var inFlight float64
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inFlight = testutil.ToFloat64(m.RequestsNow)
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))

	for _, path := range []string{"/", "/missing", "/missing"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 1.0, inFlight)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RequestsNow))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("200")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues("404")))
}

func TestFallbackServed(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.FallbackServed()
	m.FallbackServed()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FallbackPages))
}

func TestUpdateMemory(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.UpdateMemory()
	assert.Greater(t, testutil.ToFloat64(m.AllocatedMemory), 0.0)
}

func TestObserveStops(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		m.Observe(ctx, time.Millisecond)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Observe did not return after cancel")
	}
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.FallbackServed()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "pagesrv_fallback_pages_total 1"), body)
}
