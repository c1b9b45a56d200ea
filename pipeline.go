package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"voice-drive/audio_source"
	"voice-drive/classifier"
	"voice-drive/clients/input_bridge"
	"voice-drive/command_output"
	"voice-drive/config"
	"voice-drive/feature_extraction"
	"voice-drive/listener"
	"voice-drive/metrics"
	"voice-drive/smoothing"
	"voice-drive/thresholds"
)

type pipelineOptions struct {
	fs          afero.Fs
	input       string
	realtime    bool
	device      int
	recordDir   string
	metrics     *metrics.Metrics
	initialMode listener.Mode
}

type pipeline struct {
	source   audio_source.Interface
	store    *thresholds.Store
	emitter  *command_output.Emitter
	listener listener.Interface
}

// buildPipeline wires every stage from cfg. The source is started so a WAV
// file's sample rate can drive the extractor.
func buildPipeline(cfg *config.Config, opts pipelineOptions) (*pipeline, error) {
	source, err := buildSource(cfg, opts)
	if err != nil {
		return nil, err
	}

	err = source.Start()
	if err != nil {
		return nil, fmt.Errorf("starting audio source: %w", err)
	}

	p, err := buildStages(cfg, opts, source)
	if err != nil {
		source.Close()
		return nil, err
	}

	return p, nil
}

func buildSource(cfg *config.Config, opts pipelineOptions) (audio_source.Interface, error) {
	var (
		source audio_source.Interface
		err    error
	)

	if opts.input != "" {
		source, err = audio_source.NewWavFile(&audio_source.WavFileConfig{
			FileSys:   opts.fs,
			Path:      opts.input,
			BlockSize: cfg.Audio.BlockSize,
			Realtime:  opts.realtime,
		})
	} else {
		source, err = audio_source.NewPortAudio(&audio_source.PortAudioConfig{
			DeviceIndex: opts.device,
			SampleRate:  cfg.Audio.SampleRate,
			BlockSize:   cfg.Audio.BlockSize,
		})
	}

	if err != nil {
		return nil, err
	}

	if opts.recordDir == "" {
		return source, nil
	}

	return audio_source.NewRecorder(&audio_source.RecorderConfig{
		Source:  source,
		FileSys: opts.fs,
		Dir:     opts.recordDir,
	})
}

func buildStages(cfg *config.Config, opts pipelineOptions, source audio_source.Interface) (*pipeline, error) {
	extractorCfg := cfg.ExtractorConfig()
	if rate := source.SampleRate(); rate > 0 && rate != extractorCfg.SampleRate {
		log.Infof("using the source sample rate %d Hz instead of %d Hz", rate, extractorCfg.SampleRate)
		extractorCfg.SampleRate = rate
	}

	extractor, err := feature_extraction.New(extractorCfg)
	if err != nil {
		return nil, fmt.Errorf("error with feature_extraction.New: %w", err)
	}

	classifierCfg := cfg.ClassifierConfig()
	if cfg.Features.CommandWindow > 1 {
		classifierCfg.Voter = smoothing.NewCommandSmoother(cfg.Features.CommandWindow)
	}

	c, err := classifier.New(classifierCfg)
	if err != nil {
		return nil, fmt.Errorf("error with classifier.New: %w", err)
	}

	store, err := thresholds.NewStore(cfg.Thresholds)
	if err != nil {
		return nil, err
	}

	sink, err := buildSink(cfg)
	if err != nil {
		return nil, err
	}

	emitter, err := command_output.NewEmitter(&command_output.Config{
		Sink:             sink,
		VowelAccelerates: cfg.Classifier.VowelAccelerates,
	})
	if err != nil {
		return nil, err
	}

	l, err := listener.New(&listener.Config{
		Source:            source,
		Extractor:         extractor,
		Smoother:          smoothing.NewFeatureSmoother(cfg.Features.SmoothingWindow),
		Classifier:        c,
		Store:             store,
		Emitter:           emitter,
		Metrics:           opts.metrics,
		Telemetry:         logFrame,
		InitialMode:       opts.initialMode,
		MaxCaptureFaults:  cfg.Audio.MaxCaptureFaults,
		ResumeAfterFaults: cfg.Audio.ResumeAfterFaults,
	})
	if err != nil {
		return nil, fmt.Errorf("error with listener.New: %w", err)
	}

	return &pipeline{
		source:   source,
		store:    store,
		emitter:  emitter,
		listener: l,
	}, nil
}

func buildSink(cfg *config.Config) (command_output.Sink, error) {
	if cfg.Output.Sink != config.SinkHTTP {
		return command_output.LogSink{}, nil
	}

	client, err := input_bridge.NewClient(&input_bridge.Config{
		ApiHost: cfg.Output.BridgeURL,
		Timeout: cfg.Output.Timeout,
	})
	if err != nil {
		return nil, err
	}

	return command_output.NewBridgeSink(client)
}

func logFrame(f listener.Frame) {
	if !log.IsLevelEnabled(log.DebugLevel) {
		return
	}

	log.WithFields(log.Fields{
		"mode":     f.Mode,
		"volume":   f.Smoothed.Volume,
		"pitch":    f.Smoothed.PitchBandEnergy,
		"vowel":    f.Smoothed.VowelRatio(),
		"fric":     f.Smoothed.FricativeRatio(),
		"zcr":      f.Smoothed.ZCR,
		"centroid": f.Smoothed.SpectralCentroid,
		"raw":      f.Decision.Raw.String(),
		"command":  f.Decision.Command.String(),
	}).Debug("block")
}
