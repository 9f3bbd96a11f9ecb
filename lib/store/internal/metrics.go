package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/ValentinKolb/scdb/lib/store"
)

// Metrics holds the metrics of one store handle
type Metrics struct {
	set    *metrics.Set
	handle string
}

// NewMetrics creates an empty metric set for a handle of the given kind ("blocking", "async")
func NewMetrics(handle string) *Metrics {
	return &Metrics{
		set:    metrics.NewSet(),
		handle: handle,
	}
}

// Observe records one finished operation that started at start
func (m *Metrics) Observe(op Op, start time.Time, err error) {
	m.set.GetOrCreateCounter(fmt.Sprintf(`scdb_operations_total{handle=%q,op=%q}`, m.handle, op)).Inc()
	m.set.GetOrCreateHistogram(fmt.Sprintf(`scdb_operation_duration_seconds{handle=%q,op=%q}`, m.handle, op)).UpdateDuration(start)
	if err != nil {
		m.set.GetOrCreateCounter(fmt.Sprintf(`scdb_operation_errors_total{handle=%q,op=%q,code=%q}`, m.handle, op, errorCode(err))).Inc()
	}
}

// PendingGauge registers the gauge of queued async operations
func (m *Metrics) PendingGauge(pending func() float64) {
	m.set.GetOrCreateGauge(fmt.Sprintf(`scdb_async_pending_operations{handle=%q}`, m.handle), pending)
}

// WritePrometheus writes all metrics in Prometheus text format
func (m *Metrics) WritePrometheus(w io.Writer) {
	m.set.WritePrometheus(w)
}

func errorCode(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "Cancelled"
	}
	return store.CodeOf(err).String()
}
