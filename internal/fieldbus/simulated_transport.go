package fieldbus

// SimulatedTransport backs a Realtime driver without real hardware. It
// echoes outputs into inputs and reports a perfect working counter,
// matching the expected-wkc calculation Realtime.Init performs.
type SimulatedTransport struct {
	peers          []Peer
	clockNs        uint64
	cycleNs        uint64
	exchangeCount  int
	faultAfter     int // 0 means never inject a wkc fault
	open           bool
}

// NewSimulatedTransport builds a transport reporting the given peers.
func NewSimulatedTransport(peers []Peer, cycleNs uint64) *SimulatedTransport {
	return &SimulatedTransport{peers: peers, cycleNs: cycleNs, open: true}
}

// FaultWkcAfter makes the transport return a wrong working counter once
// count successful exchanges have occurred, to exercise fault thresholds.
func (t *SimulatedTransport) FaultWkcAfter(count int) {
	t.faultAfter = count
}

// ExchangeCount reports how many frames have been exchanged so far.
func (t *SimulatedTransport) ExchangeCount() int {
	return t.exchangeCount
}

func (t *SimulatedTransport) Scan() ([]Peer, error) {
	return t.peers, nil
}

func (t *SimulatedTransport) SetState(BusState) error {
	return nil
}

func (t *SimulatedTransport) ReadClock() (uint64, error) {
	t.clockNs += t.cycleNs
	return t.clockNs, nil
}

func (t *SimulatedTransport) Exchange(outputs []byte, inputs []byte) (int, error) {
	n := len(outputs)
	if len(inputs) < n {
		n = len(inputs)
	}
	copy(inputs[:n], outputs[:n])

	t.exchangeCount++

	expected := 0
	for _, p := range t.peers {
		if p.InputSize > 0 {
			expected++
		}
		if p.OutputSize > 0 {
			expected += 2
		}
	}

	if t.faultAfter > 0 && t.exchangeCount > t.faultAfter {
		return expected - 1, nil
	}
	return expected, nil
}

func (t *SimulatedTransport) Close() error {
	t.open = false
	return nil
}
