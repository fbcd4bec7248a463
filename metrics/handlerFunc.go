package metrics

import (
	"context"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/cpu"

	"github.com/pelageech/pagesrv/timer"
)

type Metrics struct {
	CPU              prometheus.Gauge
	AllocatedMemory  prometheus.Gauge
	RequestsNow      prometheus.Gauge
	Requests         *prometheus.CounterVec
	FallbackPages    prometheus.Counter
	ResponseBodySize prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CPU: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pagesrv_cpu_usage",
			Help: "CPU usage of the host, percent",
		}),
		AllocatedMemory: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pagesrv_allocated_memory",
			Help: "Bytes of allocated heap objects",
		}),
		RequestsNow: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pagesrv_requests_in_flight",
			Help: "How many requests are being processed",
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pagesrv_requests_total",
			Help: "How many requests were processed, by status code",
		}, []string{"code"}),
		FallbackPages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pagesrv_fallback_pages_total",
			Help: "How many not-found responses carried the site's 404.html",
		}),
		ResponseBodySize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pagesrv_response_body_size_bytes",
			Help:    "Size of response bodies",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8),
		}),
	}
	reg.MustRegister(
		m.CPU,
		m.AllocatedMemory,
		m.RequestsNow,
		m.Requests,
		m.FallbackPages,
		m.ResponseBodySize,
	)
	return m
}

func (m *Metrics) UpdateCPU() {
	p, err := cpu.Percent(0, false)
	if err == nil && len(p) > 0 {
		m.CPU.Set(p[0])
	}
}

func (m *Metrics) UpdateMemory() {
	s := runtime.MemStats{}
	runtime.ReadMemStats(&s)
	m.AllocatedMemory.Set(float64(s.Alloc))
}

// Observe samples CPU and memory every period until ctx is done.
func (m *Metrics) Observe(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.UpdateCPU()
			m.UpdateMemory()
		}
	}
}

// FallbackServed counts one 404.html response.
func (m *Metrics) FallbackServed() {
	m.FallbackPages.Inc()
}

// Saver records status and body size of finished requests.
func (m *Metrics) Saver() timer.Saver {
	return func(_ *http.Request, status int, size int64, _ time.Duration) {
		m.Requests.WithLabelValues(strconv.Itoa(status)).Inc()
		m.ResponseBodySize.Observe(float64(size))
	}
}

// Middleware counts requests passing through next.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	tracked := timer.Track(next, m.Saver())
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		m.RequestsNow.Inc()
		defer m.RequestsNow.Dec()
		tracked.ServeHTTP(rw, req)
	})
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
