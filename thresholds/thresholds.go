// Package thresholds holds the calibrated decision boundaries shared between
// the calibration engine (the only writer) and the classifier (the reader).
package thresholds

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

var ErrInvalid = errors.New("invalid threshold set")

// Set is one complete group of decision boundaries. The band-energy fields and
// the centroid fields are independent; a classifier only consults the group of
// its variant.
type Set struct {
	SilenceVolume float64 `yaml:"silence_volume"`
	TriggerVolume float64 `yaml:"trigger_volume"`

	// band-energy variant
	PitchGate      float64 `yaml:"pitch_gate"`
	RatioVowel     float64 `yaml:"ratio_vowel"`
	RatioFricative float64 `yaml:"ratio_fricative"`

	// centroid variant
	ZCRGate                float64 `yaml:"zcr_gate"`
	VowelCentroidSplit     float64 `yaml:"vowel_centroid_split"`
	FricativeCentroidSplit float64 `yaml:"fricative_centroid_split"`
}

// Defaults returns the conservative startup values used before any calibration.
func Defaults() Set {
	return Set{
		SilenceVolume:          500,
		TriggerVolume:          15000,
		PitchGate:              1000,
		RatioVowel:             1.5,
		RatioFricative:         3.0,
		ZCRGate:                0.15,
		VowelCentroidSplit:     1500,
		FricativeCentroidSplit: 4000,
	}
}

func (s Set) fields() []struct {
	name  string
	value float64
} {
	return []struct {
		name  string
		value float64
	}{
		{"silence_volume", s.SilenceVolume},
		{"trigger_volume", s.TriggerVolume},
		{"pitch_gate", s.PitchGate},
		{"ratio_vowel", s.RatioVowel},
		{"ratio_fricative", s.RatioFricative},
		{"zcr_gate", s.ZCRGate},
		{"vowel_centroid_split", s.VowelCentroidSplit},
		{"fricative_centroid_split", s.FricativeCentroidSplit},
	}
}

// Validate reports every field that is not finite and non-negative, and a
// silence volume that does not sit below the trigger volume.
func (s Set) Validate() error {
	var errs []error

	for _, f := range s.fields() {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			errs = append(errs, fmt.Errorf("%w: %s is not finite", ErrInvalid, f.name))
		} else if f.value < 0 {
			errs = append(errs, fmt.Errorf("%w: %s is negative (%g)", ErrInvalid, f.name, f.value))
		}
	}

	if s.SilenceVolume >= s.TriggerVolume {
		errs = append(errs, fmt.Errorf("%w: silence_volume (%g) must be below trigger_volume (%g)",
			ErrInvalid, s.SilenceVolume, s.TriggerVolume))
	}

	if s.ZCRGate > 1 {
		errs = append(errs, fmt.Errorf("%w: zcr_gate (%g) must be a fraction in [0,1]", ErrInvalid, s.ZCRGate))
	}

	return errors.Join(errs...)
}

// Store guards the live Set. Readers always get a full copy; writers replace
// the whole set at once, so a read never observes a half-applied calibration.
type Store struct {
	mu      sync.RWMutex
	current Set
	version uint64
}

func NewStore(initial Set) (*Store, error) {
	if err := initial.Validate(); err != nil {
		return nil, err
	}

	return &Store{current: initial}, nil
}

func (s *Store) Load() Set {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.current
}

// Apply validates next and swaps it in. An invalid set is rejected and the
// previous one stays in force.
func (s *Store) Apply(next Set) error {
	if err := next.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.current = next
	s.version++
	s.mu.Unlock()

	return nil
}

// Version counts successful Apply calls.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.version
}
