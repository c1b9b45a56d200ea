package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"voice-drive/feature_extraction"
)

func TestDefault(t *testing.T) {
	t.Run("the defaults are valid", func(t *testing.T) {
		if err := Validate(Default()); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("the extractor gets an order 8 high-pass at 100 Hz", func(t *testing.T) {
		cfg := Default().ExtractorConfig()

		if cfg.HighPass == nil || cfg.HighPass.Order != 8 || cfg.HighPass.CutoffHz != 100 {
			t.Errorf("unexpected high-pass %+v", cfg.HighPass)
		}

		if _, err := feature_extraction.New(cfg); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestLoadFromReader(t *testing.T) {
	t.Run("values override the defaults and the rest is kept", func(t *testing.T) {
		cfg, err := LoadFromReader(strings.NewReader(`
audio:
  sample_rate: 48000
  high_pass:
    enabled: false
features:
  variant: centroid
classifier:
  dwell: 200ms
  vowel_accelerates: false
thresholds:
  silence_volume: 800
  trigger_volume: 12000
  pitch_gate: 900
  ratio_vowel: 1.2
  ratio_fricative: 2.5
  zcr_gate: 0.2
  vowel_centroid_split: 1400
  fricative_centroid_split: 4200
`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.Audio.SampleRate != 48000 || cfg.Audio.BlockSize != 1024 {
			t.Errorf("unexpected audio section %+v", cfg.Audio)
		}

		if cfg.ExtractorConfig().HighPass != nil {
			t.Errorf("expected the high-pass to be disabled")
		}

		if cfg.Features.Variant != feature_extraction.VariantCentroid {
			t.Errorf("expected centroid, got %s", cfg.Features.Variant)
		}

		if cfg.Classifier.Dwell != 200*time.Millisecond || cfg.Classifier.VowelAccelerates {
			t.Errorf("unexpected classifier section %+v", cfg.Classifier)
		}

		if cfg.Thresholds.SilenceVolume != 800 || cfg.Thresholds.FricativeCentroidSplit != 4200 {
			t.Errorf("unexpected thresholds %+v", cfg.Thresholds)
		}

		if cfg.Calibration.StepSamples != 50 {
			t.Errorf("expected the calibration defaults, got %+v", cfg.Calibration)
		}
	})

	t.Run("an empty document yields the defaults", func(t *testing.T) {
		cfg, err := LoadFromReader(strings.NewReader(""))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.Thresholds != Default().Thresholds {
			t.Errorf("expected default thresholds")
		}
	})

	t.Run("unknown keys are rejected", func(t *testing.T) {
		if _, err := LoadFromReader(strings.NewReader("audio:\n  samplerate: 44100\n")); err == nil {
			t.Errorf("expected an error")
		}
	})

	invalid := []struct {
		name string
		yaml string
		want string
	}{
		{"a block size that is not a power of two", "audio:\n  block_size: 1000\n", "audio.block_size"},
		{"a zero block size", "audio:\n  block_size: 0\n", "audio.block_size"},
		{"a sample rate out of range", "audio:\n  sample_rate: 100\n", "audio.sample_rate"},
		{"a cutoff above nyquist", "audio:\n  sample_rate: 8000\n  high_pass:\n    cutoff_hz: 5000\n", "cutoff_hz"},
		{"silence at or above the trigger", "thresholds:\n  silence_volume: 20000\n", "silence_volume"},
		{"an unknown variant", "features:\n  variant: cepstrum\n", "features.variant"},
		{"an http sink without a url", "output:\n  sink: http\n", "bridge_url"},
		{"a step that can never end", "calibration:\n  step_samples: 0\n  step_duration: 0s\n", "calibration.step_samples"},
		{"a bad log level", "log:\n  level: loud\n", "log.level"},
	}

	for _, tt := range invalid {
		t.Run(tt.name+" is rejected", func(t *testing.T) {
			_, err := LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatalf("expected an error")
			}

			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected the error to mention %q, got %v", tt.want, err)
			}
		})
	}

	t.Run("every failure is reported at once", func(t *testing.T) {
		_, err := LoadFromReader(strings.NewReader("audio:\n  block_size: 3\n  gain: -1\nfeatures:\n  smoothing_window: 0\n"))
		if err == nil {
			t.Fatalf("expected an error")
		}

		for _, want := range []string{"audio.block_size", "audio.gain", "features.smoothing_window"} {
			if !strings.Contains(err.Error(), want) {
				t.Errorf("expected the error to mention %q, got %v", want, err)
			}
		}
	})
}

func TestLoadAndSave(t *testing.T) {
	t.Run("a saved config loads back unchanged", func(t *testing.T) {
		fs := afero.NewMemMapFs()

		cfg := Default()
		cfg.Thresholds.TriggerVolume = 14400
		cfg.Output.Sink = SinkHTTP
		cfg.Output.BridgeURL = "http://localhost:8765"

		if err := Save(fs, "voice-drive.yaml", cfg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		loaded, err := Load(fs, "voice-drive.yaml")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if *loaded != *cfg {
			t.Errorf("expected %+v, got %+v", cfg, loaded)
		}
	})

	t.Run("a missing file is an error", func(t *testing.T) {
		if _, err := Load(afero.NewMemMapFs(), "nope.yaml"); err == nil {
			t.Errorf("expected an error")
		}
	})
}
