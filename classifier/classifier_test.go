package classifier

import (
	"testing"
	"time"

	"voice-drive/feature_extraction"
	"voice-drive/thresholds"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newClassifier(t *testing.T, variant feature_extraction.Variant) *Classifier {
	t.Helper()

	c, err := New(&Config{
		Variant:       variant,
		Dwell:         DefaultDwell,
		TriggerRearm:  DefaultTriggerRearm,
		SafetyCeiling: DefaultSafetyCeiling,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	return c
}

func vowel(ratio float64) feature_extraction.FeatureVector {
	return feature_extraction.FeatureVector{
		Volume:          2000,
		PitchBandEnergy: 5000,
		LowBandEnergy:   999,
		MidBandEnergy:   ratio * 1000,
		HighBandEnergy:  10,
	}
}

func fricative(ratio float64) feature_extraction.FeatureVector {
	return feature_extraction.FeatureVector{
		Volume:          2000,
		PitchBandEnergy: 10,
		LowBandEnergy:   10,
		MidBandEnergy:   999,
		HighBandEnergy:  ratio * 1000,
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"unknown variant", &Config{Variant: "mfcc", SafetyCeiling: 5}},
		{"negative dwell", &Config{Variant: feature_extraction.VariantBand, Dwell: -time.Second, SafetyCeiling: 5}},
		{"zero safety ceiling", &Config{Variant: feature_extraction.VariantBand}},
	}

	for _, tt := range tests {
		t.Run(tt.name+" is rejected", func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Errorf("expected an error")
			}
		})
	}
}

func TestClassify_BandVariant(t *testing.T) {
	th := thresholds.Defaults()

	tests := []struct {
		name     string
		vec      feature_extraction.FeatureVector
		expected Command
	}{
		{"quiet block is idle", feature_extraction.FeatureVector{Volume: 100, PitchBandEnergy: 1e6}, Idle},
		{"zero vector is idle", feature_extraction.FeatureVector{}, Idle},
		{"bright vowel steers left", vowel(3), SteerLeft},
		{"dark vowel steers right", vowel(0.5), SteerRight},
		{"sharp fricative accelerates", fricative(4), Accelerate},
		{"soft fricative brakes", fricative(1), Brake},
		{"loud impulse triggers", feature_extraction.FeatureVector{Volume: 20000}, Trigger},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClassifier(t, feature_extraction.VariantBand)

			got := c.Classify(tt.vec, th, epoch)
			if got.Command != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got.Command)
			}
		})
	}

	t.Run("the safety ceiling forces accelerate over a high calibrated boundary", func(t *testing.T) {
		c := newClassifier(t, feature_extraction.VariantBand)

		high := th
		high.RatioFricative = 50

		if got := c.Classify(fricative(6), high, epoch).Command; got != Accelerate {
			t.Errorf("expected accelerate, got %s", got)
		}

		c.Reset()

		if got := c.Classify(fricative(4), high, epoch).Command; got != Brake {
			t.Errorf("expected brake below the ceiling, got %s", got)
		}
	})

	t.Run("swapped steering maps the bright vowel right", func(t *testing.T) {
		c, _ := New(&Config{
			Variant:       feature_extraction.VariantBand,
			SafetyCeiling: DefaultSafetyCeiling,
			SwapSteering:  true,
		})

		if got := c.Classify(vowel(3), th, epoch).Command; got != SteerRight {
			t.Errorf("expected steer-right, got %s", got)
		}
	})
}

func TestClassify_CentroidVariant(t *testing.T) {
	th := thresholds.Defaults()

	tests := []struct {
		name     string
		vec      feature_extraction.FeatureVector
		expected Command
	}{
		{"dark vowel steers right", feature_extraction.FeatureVector{Volume: 2000, ZCR: 0.05, SpectralCentroid: 600}, SteerRight},
		{"bright vowel steers left", feature_extraction.FeatureVector{Volume: 2000, ZCR: 0.05, SpectralCentroid: 2500}, SteerLeft},
		{"hush brakes", feature_extraction.FeatureVector{Volume: 2000, ZCR: 0.3, SpectralCentroid: 3000}, Brake},
		{"hiss accelerates", feature_extraction.FeatureVector{Volume: 2000, ZCR: 0.4, SpectralCentroid: 6000}, Accelerate},
		{"quiet block is idle", feature_extraction.FeatureVector{Volume: 10, ZCR: 0.4, SpectralCentroid: 6000}, Idle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClassifier(t, feature_extraction.VariantCentroid)

			if got := c.Classify(tt.vec, th, epoch).Command; got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestClassify_Dwell(t *testing.T) {
	th := thresholds.Defaults()

	t.Run("a new command inside the dwell window returns the last command", func(t *testing.T) {
		c := newClassifier(t, feature_extraction.VariantBand)

		c.Classify(vowel(3), th, epoch)

		got := c.Classify(fricative(1), th, epoch.Add(50*time.Millisecond))
		if got.Command != SteerLeft {
			t.Errorf("expected steer-left to be held, got %s", got.Command)
		}

		if got.Raw != Brake {
			t.Errorf("expected raw brake, got %s", got.Raw)
		}

		got = c.Classify(fricative(1), th, epoch.Add(DefaultDwell))
		if got.Command != Brake {
			t.Errorf("expected brake once the dwell elapsed, got %s", got.Command)
		}
	})

	t.Run("silence resolves to idle once the dwell has elapsed, whatever the other fields", func(t *testing.T) {
		c := newClassifier(t, feature_extraction.VariantBand)
		c.Classify(vowel(3), th, epoch)

		quiet := []feature_extraction.FeatureVector{
			{Volume: 499, PitchBandEnergy: 1e9, MidBandEnergy: 1e9},
			{Volume: 1, HighBandEnergy: 1e9},
			{Volume: 0},
		}

		now := epoch
		for _, v := range quiet {
			now = now.Add(DefaultDwell)
			if got := c.Classify(v, th, now).Command; got != Idle {
				t.Errorf("expected idle for %+v, got %s", v, got)
			}
		}
	})

	t.Run("a steady tone yields the same command on every call", func(t *testing.T) {
		c := newClassifier(t, feature_extraction.VariantBand)

		now := epoch
		first := c.Classify(fricative(4), th, now).Command

		for i := 0; i < 50; i++ {
			now = now.Add(23 * time.Millisecond)
			if got := c.Classify(fricative(4), th, now).Command; got != first {
				t.Fatalf("call %d: expected %s, got %s", i, first, got)
			}
		}
	})

	t.Run("raising the vowel ratio past the boundary flips the decision exactly once", func(t *testing.T) {
		c := newClassifier(t, feature_extraction.VariantBand)

		now := epoch
		flips := 0
		previous := c.Classify(vowel(0.1), th, now).Command

		for ratio := 0.1; ratio < 4; ratio += 0.05 {
			now = now.Add(DefaultDwell)
			got := c.Classify(vowel(ratio), th, now).Command

			if got != previous {
				flips++
			}
			previous = got
		}

		if flips != 1 {
			t.Errorf("expected exactly one flip, got %d", flips)
		}

		if previous != SteerLeft {
			t.Errorf("expected to end on steer-left, got %s", previous)
		}
	})
}

func TestClassify_Trigger(t *testing.T) {
	th := thresholds.Defaults()
	loud := feature_extraction.FeatureVector{Volume: th.TriggerVolume * 2}

	t.Run("a sustained impulse fires exactly once", func(t *testing.T) {
		c := newClassifier(t, feature_extraction.VariantBand)

		fired := 0
		now := epoch

		for i := 0; i < 40; i++ {
			if c.Classify(loud, th, now).Triggered() {
				fired++
			}
			now = now.Add(23 * time.Millisecond)
		}

		if fired != 1 {
			t.Errorf("expected one trigger, got %d", fired)
		}
	})

	t.Run("a second impulse inside the re-arm interval does not fire", func(t *testing.T) {
		c := newClassifier(t, feature_extraction.VariantBand)

		if !c.Classify(loud, th, epoch).Triggered() {
			t.Fatalf("expected the first impulse to fire")
		}

		c.Classify(feature_extraction.FeatureVector{}, th, epoch.Add(50*time.Millisecond))

		if c.Classify(loud, th, epoch.Add(100*time.Millisecond)).Triggered() {
			t.Errorf("expected no trigger inside the re-arm interval")
		}

		c.Classify(feature_extraction.FeatureVector{}, th, epoch.Add(DefaultTriggerRearm))

		if !c.Classify(loud, th, epoch.Add(DefaultTriggerRearm+time.Millisecond)).Triggered() {
			t.Errorf("expected a trigger after re-arming")
		}
	})

	t.Run("a trigger bypasses the dwell and leaves the held command alone", func(t *testing.T) {
		c := newClassifier(t, feature_extraction.VariantBand)

		c.Classify(fricative(4), th, epoch)

		got := c.Classify(loud, th, epoch.Add(time.Millisecond))
		if !got.Triggered() {
			t.Fatalf("expected a trigger inside the dwell window")
		}

		if got.Held != Accelerate {
			t.Errorf("expected accelerate to stay held, got %s", got.Held)
		}

		if c.Current() != Accelerate {
			t.Errorf("expected current accelerate, got %s", c.Current())
		}
	})
}

// recordingVoter passes every decision through and keeps a copy.
type recordingVoter struct {
	seen   []Command
	resets int
}

func (r *recordingVoter) Push(cmd Command) Command {
	r.seen = append(r.seen, cmd)
	return cmd
}

func (r *recordingVoter) Reset() {
	r.resets++
	r.seen = nil
}

// stickyVoter answers with the first command it was given.
type stickyVoter struct {
	first *Command
}

func (s *stickyVoter) Push(cmd Command) Command {
	if s.first == nil {
		s.first = &cmd
	}
	return *s.first
}

func (s *stickyVoter) Reset() { s.first = nil }

func TestClassify_Voter(t *testing.T) {
	th := thresholds.Defaults()
	loud := feature_extraction.FeatureVector{Volume: th.TriggerVolume * 2}

	newWithVoter := func(t *testing.T, v Voter) *Classifier {
		t.Helper()

		c, err := New(&Config{
			Variant:       feature_extraction.VariantBand,
			Dwell:         DefaultDwell,
			TriggerRearm:  DefaultTriggerRearm,
			SafetyCeiling: DefaultSafetyCeiling,
			Voter:         v,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		return c
	}

	t.Run("the voter sees raw decisions inside the dwell window but never triggers", func(t *testing.T) {
		v := &recordingVoter{}
		c := newWithVoter(t, v)

		c.Classify(vowel(3), th, epoch)
		c.Classify(fricative(1), th, epoch.Add(10*time.Millisecond))
		c.Classify(loud, th, epoch.Add(20*time.Millisecond))
		c.Classify(fricative(4), th, epoch.Add(30*time.Millisecond))

		expected := []Command{SteerLeft, Brake, Accelerate}
		if len(v.seen) != len(expected) {
			t.Fatalf("expected %v, got %v", expected, v.seen)
		}
		for i := range expected {
			if v.seen[i] != expected[i] {
				t.Errorf("expected %v, got %v", expected, v.seen)
				break
			}
		}

		if c.Current() != SteerLeft {
			t.Errorf("expected steer-left held by the dwell, got %s", c.Current())
		}
	})

	t.Run("the held command follows the vote, the raw field does not", func(t *testing.T) {
		c := newWithVoter(t, &stickyVoter{})

		c.Classify(fricative(4), th, epoch)
		got := c.Classify(fricative(1), th, epoch.Add(DefaultDwell))

		if got.Held != Accelerate || got.Raw != Brake {
			t.Errorf("expected held accelerate over raw brake, got %+v", got)
		}
	})

	t.Run("reset clears the voter", func(t *testing.T) {
		v := &recordingVoter{}
		c := newWithVoter(t, v)

		c.Classify(vowel(3), th, epoch)
		c.Reset()

		if v.resets != 1 || len(v.seen) != 0 {
			t.Errorf("expected one reset and no history, got %d and %v", v.resets, v.seen)
		}
	})
}

func TestClassifyBlock(t *testing.T) {
	th := thresholds.Defaults()
	clap := feature_extraction.FeatureVector{Volume: th.TriggerVolume * 2}

	t.Run("a raw impulse fires even when the smoothed volume is quiet", func(t *testing.T) {
		c := newClassifier(t, feature_extraction.VariantBand)

		got := c.ClassifyBlock(clap, feature_extraction.FeatureVector{Volume: 100}, th, epoch)
		if !got.Triggered() {
			t.Errorf("expected a trigger, got %+v", got)
		}
	})

	t.Run("a loud smoothed vector alone does not fire", func(t *testing.T) {
		c := newClassifier(t, feature_extraction.VariantBand)

		got := c.ClassifyBlock(feature_extraction.FeatureVector{Volume: 100}, clap, th, epoch)
		if got.Triggered() {
			t.Errorf("expected no trigger, got %+v", got)
		}
	})

	t.Run("the tree below the impulse test reads the smoothed vector", func(t *testing.T) {
		c := newClassifier(t, feature_extraction.VariantBand)

		got := c.ClassifyBlock(fricative(1), vowel(3), th, epoch)
		if got.Command != SteerLeft {
			t.Errorf("expected steer-left from the smoothed vector, got %s", got.Command)
		}
	})
}

func TestLinesFor(t *testing.T) {
	tests := []struct {
		cmd      Command
		accel    bool
		expected Lines
	}{
		{SteerLeft, true, Lines{Left: true, Forward: true}},
		{SteerRight, true, Lines{Right: true, Forward: true}},
		{SteerLeft, false, Lines{Left: true}},
		{Accelerate, true, Lines{Forward: true}},
		{Brake, true, Lines{Backward: true}},
		{Idle, true, Lines{}},
		{Trigger, true, Lines{}},
	}

	for _, tt := range tests {
		t.Run(tt.cmd.String(), func(t *testing.T) {
			if got := LinesFor(tt.cmd, tt.accel); got != tt.expected {
				t.Errorf("expected %+v, got %+v", tt.expected, got)
			}
		})
	}
}
