package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewTimerStartsImmediately(t *testing.T) {
	timer := NewTimer()
	if timer.start.IsZero() {
		t.Error("NewTimer() start time is zero")
	}
}

func TestTimerDurationIncreasesMonotonically(t *testing.T) {
	timer := NewTimer()
	time.Sleep(10 * time.Millisecond)
	first := timer.Duration()
	time.Sleep(10 * time.Millisecond)
	second := timer.Duration()

	if second <= first {
		t.Errorf("Duration should be monotonically increasing: first=%v, second=%v", first, second)
	}
}

func TestTimerObserveDurationDoesNotPanic(t *testing.T) {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "test_ringdb_duration_seconds",
		Help: "test histogram",
	})
	timer := NewTimer()
	timer.ObserveDuration(histogram)
}

func TestTimerObserveDurationVecDoesNotPanic(t *testing.T) {
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "test_ringdb_duration_vec_seconds",
		Help: "test histogram vec",
	}, []string{"kind"})
	timer := NewTimer()
	timer.ObserveDurationVec(vec, "read")
}

func TestHandlerIsNotNil(t *testing.T) {
	if Handler() == nil {
		t.Fatal("Handler() returned nil")
	}
}
