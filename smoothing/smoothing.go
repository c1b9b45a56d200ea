// Package smoothing damps single-block spikes in the feature stream and brief
// misclassifications in the command stream.
package smoothing

import (
	"voice-drive/classifier"
	"voice-drive/feature_extraction"
	"voice-drive/ring_buffer"
)

const DefaultWindow = 7

// FeatureSmoother keeps a rolling history per feature field and reports the
// per-field median of the current window.
type FeatureSmoother struct {
	volume   *ring_buffer.Buffer[float64]
	pitch    *ring_buffer.Buffer[float64]
	low      *ring_buffer.Buffer[float64]
	mid      *ring_buffer.Buffer[float64]
	high     *ring_buffer.Buffer[float64]
	zcr      *ring_buffer.Buffer[float64]
	centroid *ring_buffer.Buffer[float64]
}

func NewFeatureSmoother(window int) *FeatureSmoother {
	if window < 1 {
		window = 1
	}

	return &FeatureSmoother{
		volume:   ring_buffer.New[float64](window),
		pitch:    ring_buffer.New[float64](window),
		low:      ring_buffer.New[float64](window),
		mid:      ring_buffer.New[float64](window),
		high:     ring_buffer.New[float64](window),
		zcr:      ring_buffer.New[float64](window),
		centroid: ring_buffer.New[float64](window),
	}
}

// Push records raw and returns the median over whatever the window holds,
// so the first pushes are smoothed over fewer than window values.
func (s *FeatureSmoother) Push(raw feature_extraction.FeatureVector) feature_extraction.FeatureVector {
	s.volume.Add(raw.Volume)
	s.pitch.Add(raw.PitchBandEnergy)
	s.low.Add(raw.LowBandEnergy)
	s.mid.Add(raw.MidBandEnergy)
	s.high.Add(raw.HighBandEnergy)
	s.zcr.Add(raw.ZCR)
	s.centroid.Add(raw.SpectralCentroid)

	return feature_extraction.FeatureVector{
		Volume:           Median(s.volume.Read()),
		PitchBandEnergy:  Median(s.pitch.Read()),
		LowBandEnergy:    Median(s.low.Read()),
		MidBandEnergy:    Median(s.mid.Read()),
		HighBandEnergy:   Median(s.high.Read()),
		ZCR:              Median(s.zcr.Read()),
		SpectralCentroid: Median(s.centroid.Read()),
	}
}

func (s *FeatureSmoother) Window() int {
	return s.volume.Cap()
}

func (s *FeatureSmoother) Reset() {
	for _, b := range []*ring_buffer.Buffer[float64]{s.volume, s.pitch, s.low, s.mid, s.high, s.zcr, s.centroid} {
		b.Clear()
	}
}

// CommandSmoother reports the most frequent command among the last window
// decisions. Ties go to whichever tied command was seen most recently.
type CommandSmoother struct {
	history *ring_buffer.Buffer[classifier.Command]
}

func NewCommandSmoother(window int) *CommandSmoother {
	return &CommandSmoother{
		history: ring_buffer.New[classifier.Command](window),
	}
}

func (s *CommandSmoother) Push(cmd classifier.Command) classifier.Command {
	s.history.Add(cmd)

	recent := s.history.Read()
	counts := make(map[classifier.Command]int, len(recent))
	lastSeen := make(map[classifier.Command]int, len(recent))

	for i, c := range recent {
		counts[c]++
		lastSeen[c] = i
	}

	best := cmd
	for c, n := range counts {
		if n > counts[best] || (n == counts[best] && lastSeen[c] > lastSeen[best]) {
			best = c
		}
	}

	return best
}

func (s *CommandSmoother) Reset() {
	s.history.Clear()
}
