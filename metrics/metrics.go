// Package metrics exposes the pipeline's OpenTelemetry instruments.
//
// Tests should build Metrics with NewMetrics over their own MeterProvider;
// InitProvider wires the global provider to a Prometheus exporter so the
// same instruments can be scraped from /metrics.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "voice-drive"

// Metrics holds every instrument. All fields are safe for concurrent use.
type Metrics struct {
	// Blocks counts processed audio blocks. Attribute: mode.
	Blocks metric.Int64Counter

	// CaptureFaults counts failed reads. Attribute: kind (overflow|read|malformed).
	CaptureFaults metric.Int64Counter

	// Commands counts committed command changes. Attribute: command.
	Commands metric.Int64Counter

	// Triggers counts trigger pulses.
	Triggers metric.Int64Counter

	// CalibrationSteps counts completed calibration steps. Attributes: step, timed_out.
	CalibrationSteps metric.Int64Counter

	// ExtractionDuration tracks per-block feature extraction latency.
	ExtractionDuration metric.Float64Histogram

	// ActiveLines tracks how many held lines are asserted.
	ActiveLines metric.Int64UpDownCounter
}

// extractionBuckets are in seconds; a 1024-sample block lasts about 23 ms.
var extractionBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025,
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Blocks, err = m.Int64Counter("voice_drive.blocks",
		metric.WithDescription("Audio blocks processed by mode."),
	); err != nil {
		return nil, err
	}
	if met.CaptureFaults, err = m.Int64Counter("voice_drive.capture.faults",
		metric.WithDescription("Audio capture faults by kind."),
	); err != nil {
		return nil, err
	}
	if met.Commands, err = m.Int64Counter("voice_drive.commands",
		metric.WithDescription("Held command changes by command."),
	); err != nil {
		return nil, err
	}
	if met.Triggers, err = m.Int64Counter("voice_drive.triggers",
		metric.WithDescription("Trigger pulses fired."),
	); err != nil {
		return nil, err
	}
	if met.CalibrationSteps, err = m.Int64Counter("voice_drive.calibration.steps",
		metric.WithDescription("Completed calibration steps by step."),
	); err != nil {
		return nil, err
	}
	if met.ExtractionDuration, err = m.Float64Histogram("voice_drive.extraction.duration",
		metric.WithDescription("Latency of feature extraction per block."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(extractionBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActiveLines, err = m.Int64UpDownCounter("voice_drive.active_lines",
		metric.WithDescription("Held command lines currently asserted."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordBlock counts one processed block in the given mode.
func (m *Metrics) RecordBlock(ctx context.Context, mode string) {
	m.Blocks.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}

func (m *Metrics) RecordCaptureFault(ctx context.Context, kind string) {
	m.CaptureFaults.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) RecordCommand(ctx context.Context, command string) {
	m.Commands.Add(ctx, 1, metric.WithAttributes(attribute.String("command", command)))
}

func (m *Metrics) RecordTrigger(ctx context.Context) {
	m.Triggers.Add(ctx, 1)
}

func (m *Metrics) RecordCalibrationStep(ctx context.Context, step string, timedOut bool) {
	m.CalibrationSteps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("step", step),
		attribute.Bool("timed_out", timedOut),
	))
}

func (m *Metrics) RecordExtraction(ctx context.Context, d time.Duration) {
	m.ExtractionDuration.Record(ctx, d.Seconds())
}

// RecordActiveLines applies the change in asserted held lines.
func (m *Metrics) RecordActiveLines(ctx context.Context, delta int64) {
	if delta != 0 {
		m.ActiveLines.Add(ctx, delta)
	}
}
