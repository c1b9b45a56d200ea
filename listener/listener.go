// Package listener runs the pipeline worker: it reads audio blocks, extracts
// and smooths features, then either classifies them into commands or feeds
// them to a calibration session, depending on the current mode.
package listener

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"voice-drive/audio_source"
	"voice-drive/calibration"
	"voice-drive/classifier"
	"voice-drive/command_output"
	"voice-drive/feature_extraction"
	"voice-drive/metrics"
	"voice-drive/smoothing"
	"voice-drive/thresholds"
)

type Mode string

const (
	ModeIdle        Mode = "idle"
	ModeClassifying Mode = "classifying"
	ModeCalibrating Mode = "calibrating"
)

const (
	DefaultMaxCaptureFaults = 3
	DefaultTickInterval     = 100 * time.Millisecond

	releaseTimeout = time.Second
)

// readerStopTimeout bounds how long shutdown waits for a Read that ignores Close.
var readerStopTimeout = time.Second

var errSourcePanicked = errors.New("audio source panicked")

// Frame is the per-block telemetry handed to Config.Telemetry.
type Frame struct {
	At       time.Time
	Mode     Mode
	Raw      feature_extraction.FeatureVector
	Smoothed feature_extraction.FeatureVector
	Decision classifier.Decision
	Lines    classifier.Lines
	Fault    error
}

type readResult struct {
	block []int16
	err   error
}

type voiceImpl struct {
	source            audio_source.Interface
	extractor         feature_extraction.Interface
	smoother          *smoothing.FeatureSmoother
	classifier        *classifier.Classifier
	store             *thresholds.Store
	emitter           *command_output.Emitter
	metrics           *metrics.Metrics
	telemetry         func(Frame)
	now               func() time.Time
	maxFaults         int
	resumeAfterFaults bool
	tickInterval      time.Duration

	mu          sync.Mutex
	mode        Mode
	resumeMode  Mode
	calibration *calibration.Engine
	// faultMode is the mode to restore once reads recover, empty when the
	// idle mode was not forced by faults.
	faultMode Mode

	// owned by the worker
	activeMode Mode
	faults     int
	lastHeld   classifier.Command
}

type Config struct {
	Source     audio_source.Interface
	Extractor  feature_extraction.Interface
	Smoother   *smoothing.FeatureSmoother
	Classifier *classifier.Classifier
	Store      *thresholds.Store
	Emitter    *command_output.Emitter

	Metrics   *metrics.Metrics
	Telemetry func(Frame)
	Now       func() time.Time

	// InitialMode defaults to ModeClassifying.
	InitialMode Mode
	// MaxCaptureFaults consecutive faults force ModeIdle.
	MaxCaptureFaults int
	// ResumeAfterFaults restores the previous mode on the first good block
	// after a forced idle. Otherwise the idle mode holds until the host
	// calls StartClassifying.
	ResumeAfterFaults bool
	// TickInterval is how often a calibration step is checked for timeout.
	TickInterval time.Duration
}

func New(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	switch {
	case cfg.Source == nil:
		return nil, fmt.Errorf("source is nil")
	case cfg.Extractor == nil:
		return nil, fmt.Errorf("extractor is nil")
	case cfg.Smoother == nil:
		return nil, fmt.Errorf("smoother is nil")
	case cfg.Classifier == nil:
		return nil, fmt.Errorf("classifier is nil")
	case cfg.Store == nil:
		return nil, fmt.Errorf("threshold store is nil")
	case cfg.Emitter == nil:
		return nil, fmt.Errorf("emitter is nil")
	}

	mode := cfg.InitialMode
	switch mode {
	case "":
		mode = ModeClassifying
	case ModeIdle, ModeClassifying:
	default:
		return nil, fmt.Errorf("invalid initial mode %q", mode)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	maxFaults := cfg.MaxCaptureFaults
	if maxFaults <= 0 {
		maxFaults = DefaultMaxCaptureFaults
	}

	tickInterval := cfg.TickInterval
	if tickInterval <= 0 {
		tickInterval = DefaultTickInterval
	}

	return &voiceImpl{
		source:            cfg.Source,
		extractor:         cfg.Extractor,
		smoother:          cfg.Smoother,
		classifier:        cfg.Classifier,
		store:             cfg.Store,
		emitter:           cfg.Emitter,
		metrics:           cfg.Metrics,
		telemetry:         cfg.Telemetry,
		now:               now,
		maxFaults:         maxFaults,
		resumeAfterFaults: cfg.ResumeAfterFaults,
		tickInterval:      tickInterval,
		mode:              mode,
		activeMode:        ModeIdle,
	}, nil
}

// ListenLoop runs until ctx is cancelled or the source ends. Every exit path
// releases the held lines before the source is torn down.
func (v *voiceImpl) ListenLoop(ctx context.Context) error {
	err := v.source.Start()
	if err != nil {
		return err
	}

	audioC := make(chan readResult, 1)
	done := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		v.readLoop(audioC, done)
	}()

	defer v.shutdown(done, &wg)

	ticker := time.NewTicker(v.tickInterval)
	defer ticker.Stop()

	log.Infof("listener: starting in %s mode", v.Mode())

	for {
		select {
		case <-ctx.Done():
			log.Infof("listener: exiting gracefully")

			return nil
		case r := <-audioC:
			if errors.Is(r.err, audio_source.ErrEndOfStream) {
				log.Infof("listener: audio source ended")

				return nil
			}

			if errors.Is(r.err, errSourcePanicked) {
				log.Errorf("listener: %v", r.err)

				return r.err
			}

			v.process(ctx, r)
		case <-ticker.C:
			v.tick()
		}
	}
}

// shutdown releases the lines first, then closes the source and waits a
// bounded time for the reader goroutine.
func (v *voiceImpl) shutdown(done chan struct{}, wg *sync.WaitGroup) {
	v.releaseAll()

	close(done)

	if err := v.source.Close(); err != nil {
		log.Warnf("listener: closing audio source: %v", err)
	}

	stopped := make(chan struct{})
	go func() {
		wg.Wait()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(readerStopTimeout):
		log.Warnf("listener: audio reader still blocked after %s, leaving it behind", readerStopTimeout)
	}
}

func (v *voiceImpl) readLoop(audioC chan<- readResult, done <-chan struct{}) {
	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("%w: %v", errSourcePanicked, p)

			select {
			case audioC <- readResult{err: err}:
			case <-done:
			}
		}
	}()

	for {
		block, err := v.source.Read()

		select {
		case audioC <- readResult{block: block, err: err}:
		case <-done:
			return
		}

		if errors.Is(err, audio_source.ErrEndOfStream) {
			return
		}
	}
}

func (v *voiceImpl) process(ctx context.Context, r readResult) {
	now := v.now()
	frame := Frame{At: now}

	raw, fault := v.extract(ctx, r)
	frame.Raw = raw
	frame.Fault = fault

	if fault != nil {
		v.faults++
		log.Warnf("listener: capture fault %d of %d: %v", v.faults, v.maxFaults, fault)

		if v.faults == v.maxFaults {
			v.forceIdle()
		}
	} else {
		v.faults = 0
		v.recoverFromFaults()
	}

	mode, engine := v.syncMode()
	frame.Mode = mode

	if v.metrics != nil {
		v.metrics.RecordBlock(ctx, string(mode))
	}

	switch mode {
	case ModeClassifying:
		v.classify(ctx, raw, now, &frame)
	case ModeCalibrating:
		if fault == nil {
			p, err := engine.Push(raw, now)
			if err != nil {
				log.Debugf("listener: calibration did not take the block: %v", err)
			}
			v.afterCalibration(ctx, engine, p)
		}
	}

	frame.Lines = v.emitter.Lines()

	if v.telemetry != nil {
		v.telemetry(frame)
	}
}

// extract turns a read into a feature vector. Any fault yields the zero vector.
func (v *voiceImpl) extract(ctx context.Context, r readResult) (feature_extraction.FeatureVector, error) {
	if r.err != nil && !errors.Is(r.err, audio_source.ErrOverflow) {
		v.recordFault(ctx, "read")
		return feature_extraction.FeatureVector{}, r.err
	}

	if r.err != nil {
		v.recordFault(ctx, "overflow")
		log.Warnf("listener: %v", r.err)
	}

	start := time.Now()
	vec, err := v.extractor.Extract(r.block)
	if v.metrics != nil {
		v.metrics.RecordExtraction(ctx, time.Since(start))
	}

	if err != nil {
		v.recordFault(ctx, "malformed")
		return feature_extraction.FeatureVector{}, err
	}

	return vec, nil
}

func (v *voiceImpl) classify(ctx context.Context, raw feature_extraction.FeatureVector, now time.Time, frame *Frame) {
	smoothed := v.smoother.Push(raw)
	d := v.classifier.ClassifyBlock(raw, smoothed, v.store.Load(), now)

	frame.Smoothed = smoothed
	frame.Decision = d

	if d.Held != v.lastHeld {
		log.Debugf("listener: %s -> %s", v.lastHeld, d.Held)
		v.lastHeld = d.Held

		if v.metrics != nil {
			v.metrics.RecordCommand(ctx, d.Held.String())
		}
	}

	if d.Triggered() {
		log.Debugf("listener: trigger")

		if v.metrics != nil {
			v.metrics.RecordTrigger(ctx)
		}
	}

	before := v.emitter.Lines().Count()

	err := v.emitter.Apply(ctx, d)
	if err != nil {
		log.Warnf("listener: emitting %s: %v", d.Command, err)
	}

	if v.metrics != nil {
		v.metrics.RecordActiveLines(ctx, int64(v.emitter.Lines().Count()-before))
	}
}

func (v *voiceImpl) tick() {
	mode, engine := v.syncMode()
	if mode != ModeCalibrating {
		return
	}

	p, completed := engine.Tick(v.now())
	if completed || engine.Done() {
		v.afterCalibration(context.Background(), engine, p)
	}
}

func (v *voiceImpl) afterCalibration(ctx context.Context, engine *calibration.Engine, p calibration.Progress) {
	if p.Result != nil && v.metrics != nil {
		v.metrics.RecordCalibrationStep(ctx, p.Result.Step.String(), p.Result.TimedOut)
	}

	if !engine.Done() {
		return
	}

	v.mu.Lock()
	if v.calibration == engine {
		v.mode = v.resumeMode
		v.calibration = nil
	}
	next := v.mode
	v.mu.Unlock()

	log.Infof("listener: calibration %s, resuming %s mode", engine.State(), next)
}

// syncMode applies a pending mode change on the worker side: leaving
// classification releases the lines and clears the per-mode state.
func (v *voiceImpl) syncMode() (Mode, *calibration.Engine) {
	v.mu.Lock()
	mode, engine := v.mode, v.calibration
	v.mu.Unlock()

	if mode == v.activeMode {
		return mode, engine
	}

	log.Infof("listener: %s -> %s", v.activeMode, mode)

	if v.activeMode == ModeClassifying || v.emitter.Lines().Any() {
		v.releaseAll()
	}

	v.smoother.Reset()
	v.classifier.Reset()
	v.extractor.Reset()
	v.lastHeld = classifier.Idle
	v.activeMode = mode

	return mode, engine
}

func (v *voiceImpl) forceIdle() {
	v.mu.Lock()
	engine := v.calibration
	previous := v.mode
	if previous == ModeCalibrating {
		previous = v.resumeMode
	}
	v.mode = ModeIdle
	v.calibration = nil
	if v.resumeAfterFaults && previous != ModeIdle {
		v.faultMode = previous
	}
	v.mu.Unlock()

	if engine != nil {
		engine.Abort()
	}

	if v.resumeAfterFaults {
		log.Warnf("listener: %d consecutive capture faults, idle until the audio recovers", v.faults)
	} else {
		log.Errorf("listener: %d consecutive capture faults, classification stopped until restarted", v.faults)
	}

	v.releaseAll()
}

// recoverFromFaults restores the mode a fault streak interrupted.
func (v *voiceImpl) recoverFromFaults() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.faultMode == "" {
		return
	}

	if v.mode == ModeIdle {
		log.Infof("listener: audio recovered, resuming %s mode", v.faultMode)
		v.mode = v.faultMode
	}

	v.faultMode = ""
}

func (v *voiceImpl) releaseAll() {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	before := v.emitter.Lines().Count()

	err := v.emitter.ReleaseAll(ctx)
	if err != nil {
		log.Errorf("listener: releasing lines: %v", err)
	}

	if v.metrics != nil {
		v.metrics.RecordActiveLines(ctx, int64(v.emitter.Lines().Count()-before))
	}
}

func (v *voiceImpl) recordFault(ctx context.Context, kind string) {
	if v.metrics != nil {
		v.metrics.RecordCaptureFault(ctx, kind)
	}
}

func (v *voiceImpl) StartClassifying() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.faultMode = ""

	if v.mode == ModeCalibrating {
		v.resumeMode = ModeClassifying
		log.Infof("listener: classification resumes after calibration")

		return
	}

	v.mode = ModeClassifying
}

// StartCalibration routes blocks to engine until its session is over, then
// returns to the previous mode.
func (v *voiceImpl) StartCalibration(engine *calibration.Engine) error {
	if engine == nil {
		return fmt.Errorf("calibration engine is nil")
	}

	if engine.Done() {
		return calibration.ErrFinished
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.mode == ModeCalibrating {
		return fmt.Errorf("a calibration session is already running")
	}

	v.resumeMode = v.mode
	if v.faultMode != "" {
		v.resumeMode = v.faultMode
		v.faultMode = ""
	}
	v.mode = ModeCalibrating
	v.calibration = engine

	return nil
}

// Halt stops classification and aborts a running calibration session.
func (v *voiceImpl) Halt() {
	v.mu.Lock()
	engine := v.calibration
	v.mode = ModeIdle
	v.calibration = nil
	v.faultMode = ""
	v.mu.Unlock()

	if engine != nil {
		engine.Abort()
	}

	log.Infof("listener: halted")
}

func (v *voiceImpl) Mode() Mode {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.mode
}
