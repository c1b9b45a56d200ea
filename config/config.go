// Package config defines the YAML configuration of the voice-drive binary.
package config

import (
	"time"

	"voice-drive/audio_source"
	"voice-drive/calibration"
	"voice-drive/classifier"
	"voice-drive/feature_extraction"
	"voice-drive/listener"
	"voice-drive/smoothing"
	"voice-drive/thresholds"
)

// Sink names accepted in output.sink.
const (
	SinkLog  = "log"
	SinkHTTP = "http"
)

type Config struct {
	Audio       Audio          `yaml:"audio"`
	Features    Features       `yaml:"features"`
	Classifier  Classifier     `yaml:"classifier"`
	Thresholds  thresholds.Set `yaml:"thresholds"`
	Calibration Calibration    `yaml:"calibration"`
	Output      Output         `yaml:"output"`
	Metrics     Metrics        `yaml:"metrics"`
	Recording   Recording      `yaml:"recording"`
	Log         Log            `yaml:"log"`
}

type Audio struct {
	SampleRate int     `yaml:"sample_rate"`
	BlockSize  int     `yaml:"block_size"`
	Gain       float64 `yaml:"gain"`
	// Device is an index from `voice-drive devices`; -1 is the default input.
	Device   int      `yaml:"device"`
	HighPass HighPass `yaml:"high_pass"`
	// MaxCaptureFaults consecutive read failures force the idle mode.
	MaxCaptureFaults int `yaml:"max_capture_faults"`
	// ResumeAfterFaults leaves the forced idle mode on the next good block.
	ResumeAfterFaults bool `yaml:"resume_after_faults"`
}

type HighPass struct {
	Enabled  bool    `yaml:"enabled"`
	Order    int     `yaml:"order"`
	CutoffHz float64 `yaml:"cutoff_hz"`
}

type Features struct {
	Variant         feature_extraction.Variant `yaml:"variant"`
	SmoothingWindow int                        `yaml:"smoothing_window"`
	// CommandWindow of 0 or 1 disables the command vote.
	CommandWindow int `yaml:"command_window"`
}

type Classifier struct {
	Dwell            time.Duration `yaml:"dwell"`
	TriggerRearm     time.Duration `yaml:"trigger_rearm"`
	SafetyCeiling    float64       `yaml:"safety_ceiling"`
	VowelAccelerates bool          `yaml:"vowel_accelerates"`
	SwapSteering     bool          `yaml:"swap_steering"`
}

type Calibration struct {
	StepSamples   int           `yaml:"step_samples"`
	StepDuration  time.Duration `yaml:"step_duration"`
	StepTimeout   time.Duration `yaml:"step_timeout"`
	Countdown     time.Duration `yaml:"countdown"`
	SilenceFloor  float64       `yaml:"silence_floor"`
	SilenceFactor float64       `yaml:"silence_factor"`
	PitchFactor   float64       `yaml:"vowel_pitch_factor"`
	ClapFactor    float64       `yaml:"clap_factor"`
}

type Output struct {
	Sink      string        `yaml:"sink"`
	BridgeURL string        `yaml:"bridge_url"`
	Timeout   time.Duration `yaml:"timeout"`
}

type Metrics struct {
	// ListenAddr serves /metrics when set, e.g. ":9464".
	ListenAddr string `yaml:"listen_addr"`
}

type Recording struct {
	// Dir receives a WAV copy of every live session when set.
	Dir string `yaml:"dir"`
}

type Log struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is given. Values not
// present in a loaded file keep these defaults.
func Default() *Config {
	return &Config{
		Audio: Audio{
			SampleRate: feature_extraction.DefaultSampleRate,
			BlockSize:  feature_extraction.DefaultBlockSize,
			Gain:       feature_extraction.DefaultGain,
			Device:     audio_source.DefaultDevice,
			HighPass: HighPass{
				Enabled:  true,
				Order:    8,
				CutoffHz: 100,
			},
			MaxCaptureFaults:  listener.DefaultMaxCaptureFaults,
			ResumeAfterFaults: true,
		},
		Features: Features{
			Variant:         feature_extraction.VariantBand,
			SmoothingWindow: smoothing.DefaultWindow,
			CommandWindow:   0,
		},
		Classifier: Classifier{
			Dwell:            classifier.DefaultDwell,
			TriggerRearm:     classifier.DefaultTriggerRearm,
			SafetyCeiling:    classifier.DefaultSafetyCeiling,
			VowelAccelerates: true,
		},
		Thresholds: thresholds.Defaults(),
		Calibration: Calibration{
			StepSamples:   calibration.DefaultStepSamples,
			StepDuration:  calibration.DefaultStepDuration,
			StepTimeout:   calibration.DefaultStepTimeout,
			Countdown:     3 * time.Second,
			SilenceFloor:  calibration.DefaultSilenceFloor,
			SilenceFactor: calibration.DefaultSilenceFactor,
			PitchFactor:   calibration.DefaultPitchFactor,
			ClapFactor:    calibration.DefaultClapFactor,
		},
		Output: Output{
			Sink:    SinkLog,
			Timeout: 200 * time.Millisecond,
		},
		Log: Log{
			Level: "info",
		},
	}
}

func (c *Config) ExtractorConfig() *feature_extraction.Config {
	cfg := &feature_extraction.Config{
		SampleRate: c.Audio.SampleRate,
		BlockSize:  c.Audio.BlockSize,
		Gain:       c.Audio.Gain,
	}

	if c.Audio.HighPass.Enabled {
		cfg.HighPass = &feature_extraction.HighPassConfig{
			Order:    c.Audio.HighPass.Order,
			CutoffHz: c.Audio.HighPass.CutoffHz,
		}
	}

	return cfg
}

func (c *Config) ClassifierConfig() *classifier.Config {
	return &classifier.Config{
		Variant:       c.Features.Variant,
		Dwell:         c.Classifier.Dwell,
		TriggerRearm:  c.Classifier.TriggerRearm,
		SafetyCeiling: c.Classifier.SafetyCeiling,
		SwapSteering:  c.Classifier.SwapSteering,
	}
}

func (c *Config) CalibrationConfig(store *thresholds.Store, onProgress func(calibration.Progress)) *calibration.Config {
	return &calibration.Config{
		Store:         store,
		StepSamples:   c.Calibration.StepSamples,
		StepDuration:  c.Calibration.StepDuration,
		StepTimeout:   c.Calibration.StepTimeout,
		SilenceFloor:  c.Calibration.SilenceFloor,
		SilenceFactor: c.Calibration.SilenceFactor,
		PitchFactor:   c.Calibration.PitchFactor,
		ClapFactor:    c.Calibration.ClapFactor,
		OnProgress:    onProgress,
	}
}
