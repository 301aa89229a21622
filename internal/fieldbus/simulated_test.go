package fieldbus

import "testing"

type constSource struct{ in Inputs }

func (c constSource) Sample() Inputs { return c.in }

func TestSimulated_NotOperationalBeforeInit(t *testing.T) {
	s := NewSimulated(nil)
	if s.IsOperational() {
		t.Fatalf("expected not operational before init")
	}
}

func TestSimulated_OperationalAfterInit(t *testing.T) {
	s := NewSimulated(nil)
	if err := s.Init(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.IsOperational() {
		t.Fatalf("expected operational after init")
	}
}

func TestSimulated_ExchangeRoundTrips(t *testing.T) {
	s := NewSimulated(constSource{in: Inputs{Digital: 0xAA}})
	_ = s.Init()

	out := Outputs{Digital: 0x55}
	if err := s.Exchange(out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := s.GetInputs(); got.Digital != 0xAA {
		t.Fatalf("inputs not sampled from source: %v", got)
	}
}

func TestSimulated_ShutdownClearsOutputsAndOperational(t *testing.T) {
	s := NewSimulated(nil)
	_ = s.Init()
	_ = s.WriteOutputs(Outputs{Digital: 1})

	if err := s.Shutdown(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.IsOperational() {
		t.Fatalf("expected not operational after shutdown")
	}
}
