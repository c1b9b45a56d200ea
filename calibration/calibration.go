// Package calibration runs the guided recording session that derives a
// user's thresholds.
//
// The host drives the session: StartStep begins recording the next step,
// every raw feature vector is handed to Push, and Tick is called
// periodically so a step still ends when no audio arrives. A step completes
// when it holds StepSamples vectors, when StepDuration has passed, or when
// no vector arrived for StepTimeout. Derived values are computed as soon as
// their defining steps are done; the complete set is applied to the store
// once, after the last step.
package calibration

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"voice-drive/feature_extraction"
	"voice-drive/thresholds"
)

const (
	DefaultStepSamples   = 50
	DefaultStepDuration  = 2 * time.Second
	DefaultStepTimeout   = 3 * time.Second
	DefaultSilenceFloor  = 500.0
	DefaultSilenceFactor = 2.0
	DefaultPitchFactor   = 0.4
	DefaultClapFactor    = 0.8
)

var (
	ErrNotRecording = errors.New("calibration step is not recording")
	ErrFinished     = errors.New("calibration session is over")
	ErrRecording    = errors.New("calibration step already recording")
)

// Progress reports the engine's position after a call.
type Progress struct {
	Step    Step
	State   State
	Percent int
	Samples int
	// Result is set on the call that completed the step.
	Result *StepResult
}

type Config struct {
	Store *thresholds.Store

	// StepSamples ends a step once this many vectors are captured; 0 disables.
	StepSamples int
	// StepDuration ends a step after this much wall-clock time; 0 disables.
	StepDuration time.Duration
	// StepTimeout ends a step when no vector arrived for this long.
	StepTimeout time.Duration

	SilenceFloor  float64
	SilenceFactor float64
	PitchFactor   float64
	ClapFactor    float64

	// OnProgress, when set, is called after every state change and sample.
	OnProgress func(Progress)
}

type Engine struct {
	mu sync.Mutex

	store         *thresholds.Store
	stepSamples   int
	stepDuration  time.Duration
	stepTimeout   time.Duration
	silenceFloor  float64
	silenceFactor float64
	pitchFactor   float64
	clapFactor    float64
	onProgress    func(Progress)

	state     State
	index     int
	buffer    []feature_extraction.FeatureVector
	startedAt time.Time
	lastAt    time.Time

	prior   thresholds.Set
	pending thresholds.Set
	results map[Step]StepResult
}

func New(cfg *Config) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Store == nil {
		return nil, fmt.Errorf("threshold store is nil")
	}

	if cfg.StepSamples <= 0 && cfg.StepDuration <= 0 {
		return nil, fmt.Errorf("a step needs a sample count or a duration to end")
	}

	if cfg.StepTimeout <= 0 {
		return nil, fmt.Errorf("step timeout must be positive, got %s", cfg.StepTimeout)
	}

	for name, v := range map[string]float64{
		"silence floor":  cfg.SilenceFloor,
		"silence factor": cfg.SilenceFactor,
		"pitch factor":   cfg.PitchFactor,
		"clap factor":    cfg.ClapFactor,
	} {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%s must be a positive finite number, got %g", name, v)
		}
	}

	prior := cfg.Store.Load()

	return &Engine{
		store:         cfg.Store,
		stepSamples:   cfg.StepSamples,
		stepDuration:  cfg.StepDuration,
		stepTimeout:   cfg.StepTimeout,
		silenceFloor:  cfg.SilenceFloor,
		silenceFactor: cfg.SilenceFactor,
		pitchFactor:   cfg.PitchFactor,
		clapFactor:    cfg.ClapFactor,
		onProgress:    cfg.OnProgress,
		state:         AwaitingStepStart,
		prior:         prior,
		pending:       prior,
		results:       make(map[Step]StepResult, len(Steps)),
	}, nil
}

// StartStep begins recording the next step in the sequence.
func (e *Engine) StartStep(now time.Time) (Step, error) {
	e.mu.Lock()

	switch e.state {
	case Finished, Aborted:
		e.mu.Unlock()
		return 0, ErrFinished
	case Recording:
		step := Steps[e.index]
		e.mu.Unlock()
		return step, ErrRecording
	case StepComplete:
		e.index++
	}

	e.state = Recording
	e.buffer = e.buffer[:0]
	e.startedAt = now
	e.lastAt = now

	step := Steps[e.index]
	p := e.progressLocked(nil)
	e.mu.Unlock()

	log.Infof("calibration: recording %s", step)
	e.notify(p)

	return step, nil
}

// Push adds one raw feature vector to the recording step.
func (e *Engine) Push(vec feature_extraction.FeatureVector, now time.Time) (Progress, error) {
	e.mu.Lock()

	if e.state != Recording {
		p := e.progressLocked(nil)
		e.mu.Unlock()

		if p.State == Finished || p.State == Aborted {
			return p, ErrFinished
		}

		return p, ErrNotRecording
	}

	e.buffer = append(e.buffer, vec)
	e.lastAt = now

	var result *StepResult
	if (e.stepSamples > 0 && len(e.buffer) >= e.stepSamples) ||
		(e.stepDuration > 0 && now.Sub(e.startedAt) >= e.stepDuration) {
		result = e.completeLocked(false)
	}

	p := e.progressLocked(result)
	e.mu.Unlock()

	e.notify(p)

	return p, nil
}

// Tick ends the recording step when its duration has passed or the audio
// source has gone quiet for longer than the step timeout. It reports whether
// a step completed.
func (e *Engine) Tick(now time.Time) (Progress, bool) {
	e.mu.Lock()

	if e.state != Recording {
		p := e.progressLocked(nil)
		e.mu.Unlock()
		return p, false
	}

	durationUp := e.stepDuration > 0 && now.Sub(e.startedAt) >= e.stepDuration
	starved := now.Sub(e.lastAt) >= e.stepTimeout

	if !durationUp && !starved {
		p := e.progressAtLocked(now)
		e.mu.Unlock()
		return p, false
	}

	result := e.completeLocked(starved && !durationUp)
	p := e.progressLocked(result)
	e.mu.Unlock()

	e.notify(p)

	return p, true
}

// Abort ends the session without touching the store.
func (e *Engine) Abort() {
	e.mu.Lock()

	if e.state == Finished || e.state == Aborted {
		e.mu.Unlock()
		return
	}

	e.state = Aborted
	e.buffer = nil
	p := e.progressLocked(nil)
	e.mu.Unlock()

	log.Warnf("calibration: aborted at %s", p.Step)
	e.notify(p)
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state
}

// Done reports whether the session is finished or aborted.
func (e *Engine) Done() bool {
	s := e.State()
	return s == Finished || s == Aborted
}

// Results returns the summaries of completed steps in session order.
func (e *Engine) Results() []StepResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]StepResult, 0, len(e.results))
	for _, step := range Steps {
		if r, ok := e.results[step]; ok {
			out = append(out, r)
		}
	}

	return out
}

// Thresholds returns the set derived so far. After Finished it is the set
// that was applied to the store.
func (e *Engine) Thresholds() thresholds.Set {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.pending
}

func (e *Engine) completeLocked(timedOut bool) *StepResult {
	step := Steps[e.index]

	result := summarise(step, e.buffer, e.pending.SilenceVolume)
	result.TimedOut = timedOut
	e.buffer = e.buffer[:0]

	if timedOut {
		log.Warnf("calibration: %s timed out waiting for audio with %d samples", step, result.Samples)
	}

	e.derive(step, &result)
	e.results[step] = result

	log.WithFields(log.Fields{
		"step":       step.String(),
		"samples":    result.Samples,
		"accepted":   result.Accepted,
		"meanVolume": result.MeanVolume,
		"peakVolume": result.PeakVolume,
	}).Info("calibration: step complete")

	if e.index == len(Steps)-1 {
		e.finishLocked()
	} else {
		e.state = StepComplete
	}

	return &result
}

// derive updates the pending set from the steps completed so far. Missing
// data keeps the prior value of the affected fields.
func (e *Engine) derive(step Step, result *StepResult) {
	warn := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		result.Warnings = append(result.Warnings, msg)
		log.Warnf("calibration: %s", msg)
	}

	switch step {
	case StepSilence:
		if result.Samples == 0 {
			warn("no silence samples, keeping silence volume %g", e.pending.SilenceVolume)
			return
		}

		e.pending.SilenceVolume = math.Max(result.MeanVolume*e.silenceFactor, e.silenceFloor)

	case StepVowelDark:
		if result.Accepted == 0 {
			warn("no %s samples above silence volume %g", step, e.pending.SilenceVolume)
		}

	case StepVowelBright:
		if result.Accepted == 0 {
			warn("no %s samples above silence volume %g", step, e.pending.SilenceVolume)
		}

		dark := e.results[StepVowelDark]
		if dark.Accepted == 0 || result.Accepted == 0 {
			warn("vowel data incomplete, keeping pitch gate %g, vowel ratio %g and vowel centroid split %g",
				e.pending.PitchGate, e.pending.RatioVowel, e.pending.VowelCentroidSplit)
			return
		}

		e.pending.PitchGate = math.Min(dark.MedianPitch, result.MedianPitch) * e.pitchFactor
		e.pending.RatioVowel = (dark.MedianVowelRatio + result.MedianVowelRatio) / 2
		e.pending.VowelCentroidSplit = (dark.MeanCentroid + result.MeanCentroid) / 2

	case StepFricativeSoft:
		if result.Samples == 0 {
			warn("no %s samples", step)
		}

	case StepFricativeSharp:
		if result.Samples == 0 {
			warn("no %s samples", step)
		}

		soft := e.results[StepFricativeSoft]
		if soft.Samples == 0 || result.Samples == 0 {
			warn("fricative data incomplete, keeping fricative ratio %g and fricative centroid split %g",
				e.pending.RatioFricative, e.pending.FricativeCentroidSplit)
			return
		}

		e.pending.RatioFricative = (soft.MedianFricativeRatio + result.MedianFricativeRatio) / 2
		e.pending.FricativeCentroidSplit = (soft.MeanCentroid + result.MeanCentroid) / 2

		dark, bright := e.results[StepVowelDark], e.results[StepVowelBright]
		if dark.Accepted+bright.Accepted == 0 {
			warn("no vowel samples, keeping zcr gate %g", e.pending.ZCRGate)
			return
		}

		zcr := func(r StepResult) float64 { return r.MeanZCR }
		e.pending.ZCRGate = (pooledMean(dark, bright, zcr) + pooledMean(soft, *result, zcr)) / 2

	case StepImpulse:
		if result.Samples == 0 {
			warn("no %s samples, keeping trigger volume %g", step, e.pending.TriggerVolume)
			return
		}

		// the peak, since averaging a brief impulse dilutes it
		e.pending.TriggerVolume = result.PeakVolume * e.clapFactor
	}
}

// finishLocked applies the pending set. Fields that would make the set
// invalid fall back to their prior values before the set is applied.
func (e *Engine) finishLocked() {
	e.state = Finished

	if err := e.pending.Validate(); err != nil {
		log.Warnf("calibration: derived thresholds rejected (%v), restoring prior values for the offending fields", err)
		e.pending = repair(e.pending, e.prior)
	}

	if err := e.store.Apply(e.pending); err != nil {
		log.Errorf("calibration: could not apply thresholds, keeping the previous set: %v", err)
		e.pending = e.store.Load()
		return
	}

	log.WithFields(log.Fields{
		"silence":        e.pending.SilenceVolume,
		"trigger":        e.pending.TriggerVolume,
		"pitchGate":      e.pending.PitchGate,
		"ratioVowel":     e.pending.RatioVowel,
		"ratioFricative": e.pending.RatioFricative,
		"zcrGate":        e.pending.ZCRGate,
		"vowelSplit":     e.pending.VowelCentroidSplit,
		"fricativeSplit": e.pending.FricativeCentroidSplit,
	}).Info("calibration: thresholds applied")
}

func repair(next, prior thresholds.Set) thresholds.Set {
	fields := []struct {
		dst *float64
		src float64
	}{
		{&next.SilenceVolume, prior.SilenceVolume},
		{&next.TriggerVolume, prior.TriggerVolume},
		{&next.PitchGate, prior.PitchGate},
		{&next.RatioVowel, prior.RatioVowel},
		{&next.RatioFricative, prior.RatioFricative},
		{&next.ZCRGate, prior.ZCRGate},
		{&next.VowelCentroidSplit, prior.VowelCentroidSplit},
		{&next.FricativeCentroidSplit, prior.FricativeCentroidSplit},
	}

	for _, f := range fields {
		if math.IsNaN(*f.dst) || math.IsInf(*f.dst, 0) || *f.dst < 0 {
			*f.dst = f.src
		}
	}

	if next.ZCRGate > 1 {
		next.ZCRGate = prior.ZCRGate
	}

	if next.SilenceVolume >= next.TriggerVolume {
		next.TriggerVolume = prior.TriggerVolume
	}

	if next.SilenceVolume >= next.TriggerVolume {
		next.SilenceVolume = prior.SilenceVolume
	}

	return next
}

func (e *Engine) progressLocked(result *StepResult) Progress {
	p := Progress{
		Step:    Steps[e.index],
		State:   e.state,
		Samples: len(e.buffer),
		Result:  result,
	}

	switch {
	case result != nil, e.state == Finished:
		p.Percent = 100
		if result != nil {
			p.Samples = result.Samples
		}
	case e.state == Recording:
		p.Percent = e.percentLocked(e.lastAt)
	}

	return p
}

func (e *Engine) progressAtLocked(now time.Time) Progress {
	p := e.progressLocked(nil)
	if e.state == Recording {
		p.Percent = e.percentLocked(now)
	}

	return p
}

func (e *Engine) percentLocked(now time.Time) int {
	var fraction float64

	if e.stepSamples > 0 {
		fraction = float64(len(e.buffer)) / float64(e.stepSamples)
	}

	if e.stepDuration > 0 {
		fraction = math.Max(fraction, float64(now.Sub(e.startedAt))/float64(e.stepDuration))
	}

	return int(math.Min(fraction, 1) * 100)
}

func (e *Engine) notify(p Progress) {
	if e.onProgress != nil {
		e.onProgress(p)
	}
}
