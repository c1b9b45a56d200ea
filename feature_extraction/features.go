package feature_extraction

// Variant selects which group of features the decision logic is built against.
type Variant string

const (
	VariantBand     Variant = "band"
	VariantCentroid Variant = "centroid"
)

func (v Variant) IsValid() bool {
	return v == VariantBand || v == VariantCentroid
}

// Canonical analysis bands, in Hz. Lower bound inclusive, upper exclusive.
const (
	PitchBandLow  = 100.0
	PitchBandHigh = 300.0
	LowBandLow    = 300.0
	LowBandHigh   = 800.0
	MidBandLow    = 2000.0
	MidBandHigh   = 4000.0
	HighBandLow   = 5000.0
	HighBandHigh  = 10000.0
)

// FeatureVector is the per-block analysis result. Both variants are filled on
// every block: the band energies and the ZCR/centroid pair.
type FeatureVector struct {
	Volume float64

	PitchBandEnergy float64
	LowBandEnergy   float64
	MidBandEnergy   float64
	HighBandEnergy  float64

	// ZCR is the fraction of adjacent samples that change sign, in [0,1].
	ZCR float64
	// SpectralCentroid is the magnitude-weighted mean frequency in Hz.
	SpectralCentroid float64
}

// VowelRatio is mid/(low+1). The +1 biases silent bands toward the false
// branch of the ratio test instead of dividing by zero.
func (f FeatureVector) VowelRatio() float64 {
	return f.MidBandEnergy / (f.LowBandEnergy + 1)
}

// FricativeRatio is high/(mid+1).
func (f FeatureVector) FricativeRatio() float64 {
	return f.HighBandEnergy / (f.MidBandEnergy + 1)
}

func (f FeatureVector) IsZero() bool {
	return f == FeatureVector{}
}
