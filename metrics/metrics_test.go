package metrics

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}

	return nil
}

func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name string, attr attribute.KeyValue) int64 {
	t.Helper()

	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}

	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not an int64 sum", name)
	}

	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attr.Key); ok && v.Emit() == attr.Value.Emit() {
			total += dp.Value
		}
	}

	return total
}

func TestMetrics(t *testing.T) {
	t.Run("blocks are counted per mode", func(t *testing.T) {
		m, reader := newTestMetrics(t)
		ctx := context.Background()

		m.RecordBlock(ctx, "classifying")
		m.RecordBlock(ctx, "classifying")
		m.RecordBlock(ctx, "calibrating")

		rm := collect(t, reader)

		if got := sumFor(t, rm, "voice_drive.blocks", attribute.String("mode", "classifying")); got != 2 {
			t.Errorf("expected 2, got %d", got)
		}

		if got := sumFor(t, rm, "voice_drive.blocks", attribute.String("mode", "calibrating")); got != 1 {
			t.Errorf("expected 1, got %d", got)
		}
	})

	t.Run("capture faults carry their kind", func(t *testing.T) {
		m, reader := newTestMetrics(t)

		m.RecordCaptureFault(context.Background(), "overflow")

		if got := sumFor(t, collect(t, reader), "voice_drive.capture.faults", attribute.String("kind", "overflow")); got != 1 {
			t.Errorf("expected 1, got %d", got)
		}
	})

	t.Run("calibration steps record the timeout flag", func(t *testing.T) {
		m, reader := newTestMetrics(t)

		m.RecordCalibrationStep(context.Background(), "CLAP", true)

		if got := sumFor(t, collect(t, reader), "voice_drive.calibration.steps", attribute.Bool("timed_out", true)); got != 1 {
			t.Errorf("expected 1, got %d", got)
		}
	})

	t.Run("active lines go up and down", func(t *testing.T) {
		m, reader := newTestMetrics(t)
		ctx := context.Background()

		m.RecordActiveLines(ctx, 2)
		m.RecordActiveLines(ctx, -1)
		m.RecordActiveLines(ctx, 0)

		met := findMetric(collect(t, reader), "voice_drive.active_lines")
		if met == nil {
			t.Fatalf("metric not found")
		}

		sum := met.Data.(metricdata.Sum[int64])
		if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 1 {
			t.Errorf("expected a single point of 1, got %+v", sum.DataPoints)
		}
	})

	t.Run("extraction latency is recorded in seconds", func(t *testing.T) {
		m, reader := newTestMetrics(t)

		m.RecordExtraction(context.Background(), 2*time.Millisecond)

		met := findMetric(collect(t, reader), "voice_drive.extraction.duration")
		if met == nil {
			t.Fatalf("metric not found")
		}

		hist, ok := met.Data.(metricdata.Histogram[float64])
		if !ok || len(hist.DataPoints) == 0 {
			t.Fatalf("expected histogram data")
		}

		if hist.DataPoints[0].Count != 1 || hist.DataPoints[0].Sum != 0.002 {
			t.Errorf("expected one sample of 0.002, got %d and %g", hist.DataPoints[0].Count, hist.DataPoints[0].Sum)
		}
	})
}
