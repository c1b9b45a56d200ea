package feature_extraction

type Interface interface {
	Extract(block []int16) (FeatureVector, error)
	Reset()
}
