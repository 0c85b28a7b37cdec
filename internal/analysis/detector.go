package analysis

// Detector inspects steps as the tracer produces them and may annotate
// them. Detectors are stateful; Reset forgets everything seen so far.
type Detector interface {
	Detect(s *Step)
	Reset()
}

// DetectorChain runs multiple detectors in sequence
type DetectorChain struct {
	detectors []Detector
}

// NewDetectorChain creates a new detector chain
func NewDetectorChain(detectors ...Detector) *DetectorChain {
	return &DetectorChain{
		detectors: detectors,
	}
}

// Detect runs all detectors in sequence
func (dc *DetectorChain) Detect(s *Step) {
	for _, d := range dc.detectors {
		d.Detect(s)
	}
}

// Reset resets every detector in the chain.
func (dc *DetectorChain) Reset() {
	for _, d := range dc.detectors {
		d.Reset()
	}
}
