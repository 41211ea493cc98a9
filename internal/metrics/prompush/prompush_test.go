package prompush

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"co2load/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func readCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()

	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("Counter.Write() error = %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestNewBackend(t *testing.T) {
	t.Parallel()

	if _, err := NewBackend("job", ""); err == nil {
		t.Fatalf("NewBackend with empty URL: want error")
	}

	b, err := NewBackend("", "http://pushgateway:9091")
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	if b.jobName != "co2load" {
		t.Fatalf("jobName = %q, want co2load", b.jobName)
	}
}

func TestIncCounter_Routing(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("co2load", "http://example.com")
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}

	b.IncCounter(metrics.StepTotal, 3, metrics.Labels{"step": "flush", "status": "success"})
	b.IncCounter(metrics.RecordsTotal, 5, metrics.Labels{"kind": "rejected"})
	b.IncCounter(metrics.BatchesTotal, 2, nil)
	b.IncCounter("unknown_metric", 10, nil)

	if got := readCounterValue(t, b.stepCounter.WithLabelValues("flush", "success")); got != 3 {
		t.Fatalf("step counter = %v, want 3", got)
	}
	if got := readCounterValue(t, b.recordCounter.WithLabelValues("rejected")); got != 5 {
		t.Fatalf("record counter = %v, want 5", got)
	}
	if got := readCounterValue(t, b.batchCounter); got != 2 {
		t.Fatalf("batch counter = %v, want 2", got)
	}
}

func TestIncCounter_NilCollectors(t *testing.T) {
	t.Parallel()

	b := &Backend{}
	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "s", "status": "ok"})
	b.IncCounter(metrics.RecordsTotal, 1, metrics.Labels{"kind": "processed"})
	b.IncCounter(metrics.BatchesTotal, 1, nil)
	b.ObserveHistogram(metrics.StepDurationSeconds, 1, nil)
}

func TestFlush_PushesToGateway(t *testing.T) {
	t.Parallel()

	var bodyLen atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodyLen.Store(int64(len(body)))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	b, err := NewBackend("co2load", srv.URL)
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	b.IncCounter(metrics.BatchesTotal, 1, nil)

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if bodyLen.Load() == 0 {
		t.Fatalf("push body is empty")
	}
}

func TestRun_PushesUntilCanceled(t *testing.T) {
	t.Parallel()

	var pushes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pushes.Add(1)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	b, err := NewBackend("co2load", srv.URL)
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx, 10*time.Millisecond) }()

	deadline := time.Now().Add(2 * time.Second)
	for pushes.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if pushes.Load() < 2 {
		t.Fatalf("pushes = %d, want >= 2", pushes.Load())
	}
}
