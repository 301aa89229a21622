package fieldbus

import "sync"

// InputSource optionally drives a Simulated driver's inputs instead of
// leaving them at whatever SetSimulatedInputs last wrote. It is polled
// once per ReadInputs/Exchange call.
type InputSource interface {
	Sample() Inputs
}

// Simulated is the in-process driver variant. It is always operational
// after Init; there is no external device to fail against.
type Simulated struct {
	mu      sync.Mutex
	inputs  Inputs
	outputs Outputs
	source  InputSource
	ready   bool
}

// NewSimulated creates a simulated driver. source may be nil, in which
// case inputs hold whatever SetSimulatedInputs last set (zero initially).
func NewSimulated(source InputSource) *Simulated {
	return &Simulated{source: source}
}

// SetSimulatedInputs overrides the current input buffer directly. Useful
// in tests that don't want to implement InputSource.
func (s *Simulated) SetSimulatedInputs(in Inputs) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs = in
}

func (s *Simulated) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = true
	return nil
}

func (s *Simulated) ReadInputs() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source != nil {
		s.inputs = s.source.Sample()
	}
	return nil
}

func (s *Simulated) WriteOutputs(out Outputs) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs = out
	return nil
}

func (s *Simulated) Exchange(out Outputs) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs = out
	if s.source != nil {
		s.inputs = s.source.Sample()
	}
	return nil
}

func (s *Simulated) GetInputs() Inputs {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inputs
}

func (s *Simulated) SetOutputs(out Outputs) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs = out
}

func (s *Simulated) IsOperational() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *Simulated) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs = Outputs{}
	s.ready = false
	return nil
}
