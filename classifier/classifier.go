// Package classifier maps smoothed feature vectors onto discrete commands.
//
// The decision tree runs top to bottom with the first match winning: a loud
// impulse fires Trigger, a quiet block is Idle, voiced sound steers and
// unvoiced sound drives forward or brakes. An optional Voter damps the raw
// decisions, then a dwell timer holds the previous command until it has been
// in force long enough. Trigger has its own re-arm rule so a sustained loud
// sound fires once.
package classifier

import (
	"fmt"
	"time"

	"voice-drive/feature_extraction"
	"voice-drive/thresholds"
)

const (
	DefaultDwell         = 150 * time.Millisecond
	DefaultTriggerRearm  = 500 * time.Millisecond
	DefaultSafetyCeiling = 5.0
)

// Voter damps the stream of raw non-trigger decisions, for example with a
// majority vote over the last few blocks.
type Voter interface {
	Push(Command) Command
	Reset()
}

type Config struct {
	Variant feature_extraction.Variant
	// Dwell is how long a held command stays in force before another
	// non-trigger command is accepted.
	Dwell time.Duration
	// TriggerRearm is the minimum spacing between two Trigger pulses. The
	// volume must also drop below the trigger volume in between.
	TriggerRearm time.Duration
	// SafetyCeiling forces the Accelerate branch for fricatives whose
	// high/mid ratio exceeds it, whatever the calibrated boundary.
	SafetyCeiling float64
	// SwapSteering maps the bright vowel (EEE) to SteerRight instead of SteerLeft.
	SwapSteering bool
	// Voter, when set, sees every raw decision before the dwell timer.
	Voter Voter
}

// Decision is the outcome of one classification cycle.
type Decision struct {
	// Command is Trigger when a pulse fires on this block, otherwise Held.
	Command Command
	// Held is the command that governs the held lines.
	Held Command
	// Raw is the undamped result of the decision tree.
	Raw Command
}

func (d Decision) Triggered() bool {
	return d.Command == Trigger
}

type Classifier struct {
	variant       feature_extraction.Variant
	dwell         time.Duration
	rearm         time.Duration
	safetyCeiling float64
	swapSteering  bool
	voter         Voter

	lastCommand Command
	lastChange  time.Time
	armed       bool
	lastTrigger time.Time
}

func New(cfg *Config) (*Classifier, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if !cfg.Variant.IsValid() {
		return nil, fmt.Errorf("unknown feature variant %q", cfg.Variant)
	}

	if cfg.Dwell < 0 {
		return nil, fmt.Errorf("dwell must not be negative, got %s", cfg.Dwell)
	}

	if cfg.TriggerRearm < 0 {
		return nil, fmt.Errorf("trigger re-arm must not be negative, got %s", cfg.TriggerRearm)
	}

	if cfg.SafetyCeiling <= 0 {
		return nil, fmt.Errorf("safety ceiling must be positive, got %g", cfg.SafetyCeiling)
	}

	return &Classifier{
		variant:       cfg.Variant,
		dwell:         cfg.Dwell,
		rearm:         cfg.TriggerRearm,
		safetyCeiling: cfg.SafetyCeiling,
		swapSteering:  cfg.SwapSteering,
		voter:         cfg.Voter,
		lastCommand:   Idle,
		armed:         true,
	}, nil
}

// Classify runs one cycle at time now over a single vector.
func (c *Classifier) Classify(v feature_extraction.FeatureVector, t thresholds.Set, now time.Time) Decision {
	return c.ClassifyBlock(v, v, t, now)
}

// ClassifyBlock runs one cycle with the impulse test on the raw block volume
// and the rest of the tree on the smoothed vector, so a clap shorter than the
// smoothing window still fires.
func (c *Classifier) ClassifyBlock(raw, smoothed feature_extraction.FeatureVector, t thresholds.Set, now time.Time) Decision {
	if raw.Volume > t.TriggerVolume {
		fire := c.armed && (c.lastTrigger.IsZero() || now.Sub(c.lastTrigger) >= c.rearm)
		if fire {
			c.armed = false
			c.lastTrigger = now

			return Decision{Command: Trigger, Held: c.lastCommand, Raw: Trigger}
		}

		return Decision{Command: c.lastCommand, Held: c.lastCommand, Raw: Trigger}
	}

	c.armed = true

	decided := c.decide(smoothed, t)

	next := decided
	if c.voter != nil {
		next = c.voter.Push(decided)
	}

	if next != c.lastCommand {
		if c.lastChange.IsZero() || now.Sub(c.lastChange) >= c.dwell {
			c.lastCommand = next
			c.lastChange = now
		}
	}

	return Decision{Command: c.lastCommand, Held: c.lastCommand, Raw: decided}
}

func (c *Classifier) decide(v feature_extraction.FeatureVector, t thresholds.Set) Command {
	// a zero vector (capture fault) is always Idle, even with a zero floor
	if v.Volume <= 0 || v.Volume < t.SilenceVolume {
		return Idle
	}

	switch c.variant {
	case feature_extraction.VariantCentroid:
		if v.ZCR < t.ZCRGate {
			return c.steer(v.SpectralCentroid >= t.VowelCentroidSplit)
		}

		if v.SpectralCentroid >= t.FricativeCentroidSplit {
			return Accelerate
		}

		return Brake
	default:
		if v.PitchBandEnergy > t.PitchGate {
			return c.steer(v.VowelRatio() > t.RatioVowel)
		}

		ratio := v.FricativeRatio()
		if ratio > t.RatioFricative || ratio > c.safetyCeiling {
			return Accelerate
		}

		return Brake
	}
}

// steer picks the side for a bright (EEE) or dark (OOO) vowel.
func (c *Classifier) steer(bright bool) Command {
	if bright != c.swapSteering {
		return SteerLeft
	}

	return SteerRight
}

// Current returns the held command in force.
func (c *Classifier) Current() Command {
	return c.lastCommand
}

// Reset returns the machine to Idle with the dwell window and trigger cleared.
func (c *Classifier) Reset() {
	c.lastCommand = Idle
	c.lastChange = time.Time{}
	c.armed = true
	c.lastTrigger = time.Time{}

	if c.voter != nil {
		c.voter.Reset()
	}
}
