package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"voice-drive/feature_extraction"
)

const (
	minSampleRate = 8000
	maxSampleRate = 192000
	minBlockSize  = 64
	maxBlockSize  = 65536
)

// Load reads and validates the YAML file at path on fs.
func Load(fs afero.Fs, path string) (*Config, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}

	return cfg, nil
}

// LoadFromReader decodes YAML from r over the defaults and validates the
// result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes cfg as YAML to path on fs.
func Save(fs afero.Fs, path string, cfg *Config) error {
	var buf bytes.Buffer

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)

	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("config: encode yaml: %w", err)
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("config: encode yaml: %w", err)
	}

	if err := afero.WriteFile(fs, path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("config: write %q: %w", path, err)
	}

	return nil
}

// Validate reports every incoherent value. Nothing is clamped.
func Validate(cfg *Config) error {
	var errs []error

	// audio
	if cfg.Audio.SampleRate < minSampleRate || cfg.Audio.SampleRate > maxSampleRate {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is out of range [%d, %d]", cfg.Audio.SampleRate, minSampleRate, maxSampleRate))
	}
	if cfg.Audio.BlockSize < minBlockSize || cfg.Audio.BlockSize > maxBlockSize || cfg.Audio.BlockSize&(cfg.Audio.BlockSize-1) != 0 {
		errs = append(errs, fmt.Errorf("audio.block_size %d must be a power of two in [%d, %d]", cfg.Audio.BlockSize, minBlockSize, maxBlockSize))
	}
	if !positive(cfg.Audio.Gain) {
		errs = append(errs, fmt.Errorf("audio.gain %g must be a positive number", cfg.Audio.Gain))
	}
	if cfg.Audio.Device < -1 {
		errs = append(errs, fmt.Errorf("audio.device %d is invalid; use -1 for the default input", cfg.Audio.Device))
	}
	if cfg.Audio.MaxCaptureFaults < 1 {
		errs = append(errs, fmt.Errorf("audio.max_capture_faults %d must be at least 1", cfg.Audio.MaxCaptureFaults))
	}
	if hp := cfg.Audio.HighPass; hp.Enabled {
		if hp.Order < 1 || hp.Order > 16 {
			errs = append(errs, fmt.Errorf("audio.high_pass.order %d is out of range [1, 16]", hp.Order))
		}
		if !positive(hp.CutoffHz) || hp.CutoffHz >= float64(cfg.Audio.SampleRate)/2 {
			errs = append(errs, fmt.Errorf("audio.high_pass.cutoff_hz %g must be between 0 and half the sample rate", hp.CutoffHz))
		}
	}

	// features
	if !cfg.Features.Variant.IsValid() {
		errs = append(errs, fmt.Errorf("features.variant %q is invalid; valid values: band, centroid", cfg.Features.Variant))
	}
	if cfg.Features.SmoothingWindow < 1 {
		errs = append(errs, fmt.Errorf("features.smoothing_window %d must be at least 1", cfg.Features.SmoothingWindow))
	}
	if cfg.Features.CommandWindow < 0 {
		errs = append(errs, fmt.Errorf("features.command_window %d must not be negative", cfg.Features.CommandWindow))
	}

	// classifier
	if cfg.Classifier.Dwell < 0 {
		errs = append(errs, fmt.Errorf("classifier.dwell %s must not be negative", cfg.Classifier.Dwell))
	}
	if cfg.Classifier.TriggerRearm < 0 {
		errs = append(errs, fmt.Errorf("classifier.trigger_rearm %s must not be negative", cfg.Classifier.TriggerRearm))
	}
	if !positive(cfg.Classifier.SafetyCeiling) {
		errs = append(errs, fmt.Errorf("classifier.safety_ceiling %g must be a positive number", cfg.Classifier.SafetyCeiling))
	}

	// thresholds
	if err := cfg.Thresholds.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("thresholds: %w", err))
	}

	// calibration
	c := cfg.Calibration
	if c.StepSamples < 0 || c.StepDuration < 0 || (c.StepSamples == 0 && c.StepDuration == 0) {
		errs = append(errs, fmt.Errorf("calibration.step_samples and calibration.step_duration must not be negative and at least one must be set"))
	}
	if c.StepTimeout <= 0 {
		errs = append(errs, fmt.Errorf("calibration.step_timeout %s must be positive", c.StepTimeout))
	}
	if c.Countdown < 0 {
		errs = append(errs, fmt.Errorf("calibration.countdown %s must not be negative", c.Countdown))
	}
	for name, v := range map[string]float64{
		"silence_floor":      c.SilenceFloor,
		"silence_factor":     c.SilenceFactor,
		"vowel_pitch_factor": c.PitchFactor,
		"clap_factor":        c.ClapFactor,
	} {
		if !positive(v) {
			errs = append(errs, fmt.Errorf("calibration.%s %g must be a positive number", name, v))
		}
	}

	// output
	switch cfg.Output.Sink {
	case SinkLog:
	case SinkHTTP:
		if cfg.Output.BridgeURL == "" {
			errs = append(errs, fmt.Errorf("output.bridge_url is required when output.sink is http"))
		}
	default:
		errs = append(errs, fmt.Errorf("output.sink %q is invalid; valid values: log, http", cfg.Output.Sink))
	}
	if cfg.Output.Timeout < 0 {
		errs = append(errs, fmt.Errorf("output.timeout %s must not be negative", cfg.Output.Timeout))
	}

	// log
	if _, err := log.ParseLevel(cfg.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level %q is invalid; valid values: debug, info, warn, error", cfg.Log.Level))
	}

	if cfg.Audio.SampleRate < 20000 && cfg.Features.Variant == feature_extraction.VariantBand {
		log.Warnf("config: audio.sample_rate %d cannot represent the high band up to 10 kHz", cfg.Audio.SampleRate)
	}

	return errors.Join(errs...)
}

func positive(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
