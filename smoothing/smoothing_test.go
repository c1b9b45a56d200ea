package smoothing

import (
	"testing"

	"voice-drive/classifier"
	"voice-drive/feature_extraction"
)

func TestStats(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		median float64
		mean   float64
		max    float64
	}{
		{"empty", nil, 0, 0, 0},
		{"single", []float64{4}, 4, 4, 4},
		{"odd count", []float64{100, 120, 110}, 110, 110, 120},
		{"even count averages the middle pair", []float64{4, 1, 3, 2}, 2.5, 2.5, 4},
		{"impulse", []float64{200, 18000, 300}, 300, 6166.666666666667, 18000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Median(tt.values); got != tt.median {
				t.Errorf("median: expected %g, got %g", tt.median, got)
			}

			if got := Mean(tt.values); got != tt.mean {
				t.Errorf("mean: expected %g, got %g", tt.mean, got)
			}

			if got := Max(tt.values); got != tt.max {
				t.Errorf("max: expected %g, got %g", tt.max, got)
			}
		})
	}

	t.Run("median does not reorder its input", func(t *testing.T) {
		values := []float64{3, 1, 2}
		Median(values)

		if values[0] != 3 || values[1] != 1 || values[2] != 2 {
			t.Errorf("input was modified: %v", values)
		}
	})
}

func TestFeatureSmoother_Push(t *testing.T) {
	t.Run("the first push falls back to the raw value", func(t *testing.T) {
		s := NewFeatureSmoother(5)

		raw := feature_extraction.FeatureVector{Volume: 700, PitchBandEnergy: 3, ZCR: 0.2}
		if got := s.Push(raw); got != raw {
			t.Errorf("expected %+v, got %+v", raw, got)
		}
	})

	t.Run("a single-block spike is removed", func(t *testing.T) {
		s := NewFeatureSmoother(5)

		var got feature_extraction.FeatureVector
		for i, v := range []float64{500, 510, 30000, 505, 495} {
			got = s.Push(feature_extraction.FeatureVector{Volume: v, HighBandEnergy: float64(i)})
		}

		if got.Volume != 505 {
			t.Errorf("expected median volume 505, got %g", got.Volume)
		}

		if got.HighBandEnergy != 2 {
			t.Errorf("expected median high band 2, got %g", got.HighBandEnergy)
		}
	})

	t.Run("the oldest value is evicted at capacity", func(t *testing.T) {
		s := NewFeatureSmoother(3)

		for _, v := range []float64{9000, 9000, 9000, 1, 1} {
			s.Push(feature_extraction.FeatureVector{SpectralCentroid: v})
		}

		got := s.Push(feature_extraction.FeatureVector{SpectralCentroid: 1})
		if got.SpectralCentroid != 1 {
			t.Errorf("expected 1 once the old values left the window, got %g", got.SpectralCentroid)
		}
	})

	t.Run("a window below one is treated as one", func(t *testing.T) {
		s := NewFeatureSmoother(0)

		s.Push(feature_extraction.FeatureVector{Volume: 1})
		got := s.Push(feature_extraction.FeatureVector{Volume: 2})

		if s.Window() != 1 || got.Volume != 2 {
			t.Errorf("expected pass-through with window 1, got %g (window %d)", got.Volume, s.Window())
		}
	})

	t.Run("reset forgets the history", func(t *testing.T) {
		s := NewFeatureSmoother(5)

		s.Push(feature_extraction.FeatureVector{Volume: 100})
		s.Push(feature_extraction.FeatureVector{Volume: 100})
		s.Reset()

		if got := s.Push(feature_extraction.FeatureVector{Volume: 7}); got.Volume != 7 {
			t.Errorf("expected 7, got %g", got.Volume)
		}
	})
}

func TestCommandSmoother_Push(t *testing.T) {
	t.Run("a brief misclassification is outvoted", func(t *testing.T) {
		s := NewCommandSmoother(5)

		var got classifier.Command
		for _, c := range []classifier.Command{
			classifier.Brake, classifier.Brake, classifier.Accelerate, classifier.Brake, classifier.Brake,
		} {
			got = s.Push(c)
		}

		if got != classifier.Brake {
			t.Errorf("expected brake, got %s", got)
		}
	})

	t.Run("a tie goes to the most recent value", func(t *testing.T) {
		s := NewCommandSmoother(4)

		var got classifier.Command
		for _, c := range []classifier.Command{
			classifier.SteerLeft, classifier.SteerRight, classifier.SteerLeft, classifier.SteerRight,
		} {
			got = s.Push(c)
		}

		if got != classifier.SteerRight {
			t.Errorf("expected steer-right, got %s", got)
		}
	})

	t.Run("a new majority takes over", func(t *testing.T) {
		s := NewCommandSmoother(5)

		for i := 0; i < 5; i++ {
			s.Push(classifier.Idle)
		}

		var got classifier.Command
		for i := 0; i < 3; i++ {
			got = s.Push(classifier.Accelerate)
		}

		if got != classifier.Accelerate {
			t.Errorf("expected accelerate, got %s", got)
		}
	})
}
