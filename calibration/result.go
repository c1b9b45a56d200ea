package calibration

import (
	"voice-drive/feature_extraction"
	"voice-drive/smoothing"
)

// StepResult summarises the samples captured by one step.
type StepResult struct {
	Step Step
	// Samples is every vector captured; Accepted is what survived the
	// silence filter (vowel steps only, otherwise equal to Samples).
	Samples  int
	Accepted int
	TimedOut bool

	MeanVolume float64
	PeakVolume float64

	MedianPitch          float64
	MedianVowelRatio     float64
	MedianFricativeRatio float64

	MeanZCR      float64
	MeanCentroid float64

	Warnings []string
}

func summarise(step Step, samples []feature_extraction.FeatureVector, silenceVolume float64) StepResult {
	accepted := samples
	if step.isVowel() {
		accepted = make([]feature_extraction.FeatureVector, 0, len(samples))
		for _, v := range samples {
			if v.Volume > silenceVolume {
				accepted = append(accepted, v)
			}
		}
	}

	volumes := make([]float64, len(samples))
	for i, v := range samples {
		volumes[i] = v.Volume
	}

	var (
		pitch     = make([]float64, len(accepted))
		vowel     = make([]float64, len(accepted))
		fricative = make([]float64, len(accepted))
		zcr       = make([]float64, len(accepted))
		centroid  = make([]float64, len(accepted))
	)

	for i, v := range accepted {
		pitch[i] = v.PitchBandEnergy
		vowel[i] = v.VowelRatio()
		fricative[i] = v.FricativeRatio()
		zcr[i] = v.ZCR
		centroid[i] = v.SpectralCentroid
	}

	return StepResult{
		Step:                 step,
		Samples:              len(samples),
		Accepted:             len(accepted),
		MeanVolume:           smoothing.Mean(volumes),
		PeakVolume:           smoothing.Max(volumes),
		MedianPitch:          smoothing.Median(pitch),
		MedianVowelRatio:     smoothing.Median(vowel),
		MedianFricativeRatio: smoothing.Median(fricative),
		MeanZCR:              smoothing.Mean(zcr),
		MeanCentroid:         smoothing.Mean(centroid),
	}
}

// pooledMean is the mean over the union of two steps' accepted samples.
func pooledMean(a, b StepResult, field func(StepResult) float64) float64 {
	n := a.Accepted + b.Accepted
	if n == 0 {
		return 0
	}

	return (field(a)*float64(a.Accepted) + field(b)*float64(b.Accepted)) / float64(n)
}
