package feature_extraction

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

const (
	DefaultSampleRate = 44100
	DefaultBlockSize  = 1024
	DefaultGain       = 5.0

	// magnitudeFloor guards the centroid division on an all-silent spectrum.
	magnitudeFloor = 1e-9
)

var ErrMalformedBlock = errors.New("malformed audio block")

type HighPassConfig struct {
	Order    int
	CutoffHz float64
}

type Config struct {
	SampleRate int
	BlockSize  int
	// Gain is a fixed linear multiplier applied before analysis.
	Gain float64
	// HighPass is optional; nil disables filtering.
	HighPass *HighPassConfig
}

type extractorImpl struct {
	sampleRate int
	blockSize  int
	gain       float64
	highPass   *HighPass
	hamming    []float64
	scratch    []float64
	windowed   []float64

	pitchBand [2]int
	lowBand   [2]int
	midBand   [2]int
	highBand  [2]int
}

func New(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", cfg.SampleRate)
	}

	if cfg.BlockSize < 2 {
		return nil, fmt.Errorf("block size must be at least 2, got %d", cfg.BlockSize)
	}

	if cfg.Gain <= 0 || math.IsNaN(cfg.Gain) || math.IsInf(cfg.Gain, 0) {
		return nil, fmt.Errorf("gain must be a positive finite number, got %g", cfg.Gain)
	}

	e := &extractorImpl{
		sampleRate: cfg.SampleRate,
		blockSize:  cfg.BlockSize,
		gain:       cfg.Gain,
		hamming:    window.Hamming(cfg.BlockSize),
		scratch:    make([]float64, cfg.BlockSize),
		windowed:   make([]float64, cfg.BlockSize),
	}

	if cfg.HighPass != nil {
		hp, err := NewHighPass(cfg.HighPass.Order, cfg.HighPass.CutoffHz, cfg.SampleRate)
		if err != nil {
			return nil, err
		}

		e.highPass = hp
	}

	bins := cfg.BlockSize/2 + 1
	e.pitchBand = e.bandBins(PitchBandLow, PitchBandHigh, bins)
	e.lowBand = e.bandBins(LowBandLow, LowBandHigh, bins)
	e.midBand = e.bandBins(MidBandLow, MidBandHigh, bins)
	e.highBand = e.bandBins(HighBandLow, HighBandHigh, bins)

	return e, nil
}

// bandBins maps [low,high) Hz to a bin range using floor(f / (rate/blockSize)).
func (e *extractorImpl) bandBins(low, high float64, bins int) [2]int {
	resolution := float64(e.sampleRate) / float64(e.blockSize)

	lo := int(math.Floor(low / resolution))
	hi := int(math.Floor(high / resolution))

	if lo > bins {
		lo = bins
	}

	if hi > bins {
		hi = bins
	}

	return [2]int{lo, hi}
}

// Extract analyses one block. A block of the wrong length yields the zero
// vector together with ErrMalformedBlock; the filter state is left untouched.
func (e *extractorImpl) Extract(block []int16) (FeatureVector, error) {
	if len(block) != e.blockSize {
		return FeatureVector{}, fmt.Errorf("%w: expected %d samples, got %d", ErrMalformedBlock, e.blockSize, len(block))
	}

	samples := e.scratch
	for i, s := range block {
		samples[i] = float64(s) * e.gain
	}

	if e.highPass != nil {
		e.highPass.Process(samples)
	}

	var (
		sumSquares float64
		crossings  int
	)

	for i, s := range samples {
		sumSquares += s * s

		if i > 0 && samples[i-1]*s < 0 {
			crossings++
		}

		e.windowed[i] = s * e.hamming[i]
	}

	spectrum := fft.FFTReal(e.windowed)
	bins := e.blockSize/2 + 1
	magnitude := make([]float64, bins)

	var (
		totalMagnitude float64
		weighted       float64
	)

	resolution := float64(e.sampleRate) / float64(e.blockSize)

	for i := 0; i < bins; i++ {
		m := cmplx.Abs(spectrum[i])
		magnitude[i] = m
		totalMagnitude += m
		weighted += float64(i) * resolution * m
	}

	vec := FeatureVector{
		Volume:          math.Sqrt(sumSquares / float64(len(samples))),
		PitchBandEnergy: sumRange(magnitude, e.pitchBand),
		LowBandEnergy:   sumRange(magnitude, e.lowBand),
		MidBandEnergy:   sumRange(magnitude, e.midBand),
		HighBandEnergy:  sumRange(magnitude, e.highBand),
		ZCR:             float64(crossings) / float64(len(samples)),
	}

	if totalMagnitude >= magnitudeFloor {
		vec.SpectralCentroid = weighted / totalMagnitude
	}

	return vec, nil
}

// Reset clears the filter delay line. Only call it between sessions, never
// between consecutive blocks of one stream.
func (e *extractorImpl) Reset() {
	if e.highPass != nil {
		e.highPass.Reset()
	}
}

func sumRange(values []float64, r [2]int) float64 {
	var sum float64

	for i := r[0]; i < r[1]; i++ {
		sum += values[i]
	}

	return sum
}
