package attention

// Verify that StubPrimitive implements Primitive.
var _ Primitive = (*StubPrimitive)(nil)

// StubPrimitive is a deterministic in-memory Primitive for testing the
// orchestration layer without a GPU. It records the Params it sees in each
// phase and fills the primary output with a marker derived from the effective
// dropout probability, so tests can observe exactly what the core handed to
// the backend.
type StubPrimitive struct {
	// WorkspaceSize is returned by the sizing phase.
	WorkspaceSize uint64

	// SizingErr/ComputeErr, when set, fail the corresponding phase.
	SizingErr  error
	ComputeErr error

	// Snapshots of the Params seen by each phase, in call order.
	SizingCalls  []Params
	ComputeCalls []Params
}

// EstimateWorkspace records the sizing call and returns WorkspaceSize.
func (s *StubPrimitive) EstimateWorkspace(p *Params) (uint64, error) {
	s.SizingCalls = append(s.SizingCalls, *p)
	if s.SizingErr != nil {
		return 0, s.SizingErr
	}
	return s.WorkspaceSize, nil
}

// Compute records the compute call and writes deterministic markers into the
// outputs: every output element becomes dropoutMarker(p.Dropout), and the
// first normalizer element becomes the scale factor.
func (s *StubPrimitive) Compute(p *Params) error {
	s.ComputeCalls = append(s.ComputeCalls, *p)
	if s.ComputeErr != nil {
		return s.ComputeErr
	}

	marker := dropoutMarker(p.Dropout)
	out := p.Out.AsUint16()
	for i := range out {
		out[i] = marker
	}

	lse := p.SoftmaxLSE.AsFloat32()
	lse[0] = p.Scale

	if p.Softmax != nil {
		probs := p.Softmax.AsUint16()
		for i := range probs {
			probs[i] = marker
		}
	}
	return nil
}

// dropoutMarker maps an effective dropout probability to a distinct raw
// 16-bit pattern. Distinct dropout values yield distinct outputs, nothing
// else does.
func dropoutMarker(dropout float32) uint16 {
	return uint16(dropout * 1000)
}
