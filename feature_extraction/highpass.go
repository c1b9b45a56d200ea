package feature_extraction

import (
	"fmt"
	"math"
)

// biquad is one second-order section in transposed direct form II. z1 and z2
// are the delay line and carry over between calls.
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
	z1, z2     float64
}

func (q *biquad) process(x float64) float64 {
	y := q.b0*x + q.z1
	q.z1 = q.b1*x - q.a1*y + q.z2
	q.z2 = q.b2*x - q.a2*y

	return y
}

// HighPass is a Butterworth high-pass filter built as a cascade of biquads.
// The state persists across Process calls so consecutive blocks are filtered
// as one continuous signal.
type HighPass struct {
	sections []biquad
}

func NewHighPass(order int, cutoffHz float64, sampleRate int) (*HighPass, error) {
	if order < 1 || order > 16 {
		return nil, fmt.Errorf("high-pass order must be in [1,16], got %d", order)
	}

	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	if cutoffHz <= 0 || cutoffHz >= float64(sampleRate)/2 {
		return nil, fmt.Errorf("high-pass cutoff must be in (0, %g), got %g", float64(sampleRate)/2, cutoffHz)
	}

	hp := &HighPass{}

	w0 := 2 * math.Pi * cutoffHz / float64(sampleRate)
	cosW0 := math.Cos(w0)
	sinW0 := math.Sin(w0)

	for k := 0; k < order/2; k++ {
		theta := math.Pi * float64(2*k+1) / float64(2*order)
		q := 1 / (2 * math.Cos(theta))
		alpha := sinW0 / (2 * q)
		a0 := 1 + alpha

		hp.sections = append(hp.sections, biquad{
			b0: (1 + cosW0) / 2 / a0,
			b1: -(1 + cosW0) / a0,
			b2: (1 + cosW0) / 2 / a0,
			a1: -2 * cosW0 / a0,
			a2: (1 - alpha) / a0,
		})
	}

	if order%2 == 1 {
		k := math.Tan(w0 / 2)
		b0 := 1 / (1 + k)

		hp.sections = append(hp.sections, biquad{
			b0: b0,
			b1: -b0,
			a1: (k - 1) / (k + 1),
		})
	}

	return hp, nil
}

// Process filters samples in place.
func (hp *HighPass) Process(samples []float64) {
	for i, x := range samples {
		for s := range hp.sections {
			x = hp.sections[s].process(x)
		}
		samples[i] = x
	}
}

func (hp *HighPass) Reset() {
	for s := range hp.sections {
		hp.sections[s].z1 = 0
		hp.sections[s].z2 = 0
	}
}
