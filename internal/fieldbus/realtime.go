package fieldbus

import (
	"fmt"
	"sync"
	"time"

	"github.com/scanrt/plcrt/internal/plcerr"
)

// BusState is the distributed-clock bus master's state machine, mirroring
// the peer state progression a real EtherCAT-class master drives its
// slaves through.
type BusState int

const (
	BusOffline BusState = iota
	BusInit
	BusPreOp
	BusSafeOp
	BusOp
	BusFault
)

func (s BusState) String() string {
	switch s {
	case BusOffline:
		return "offline"
	case BusInit:
		return "init"
	case BusPreOp:
		return "pre_op"
	case BusSafeOp:
		return "safe_op"
	case BusOp:
		return "op"
	case BusFault:
		return "fault"
	default:
		return "unknown"
	}
}

// Peer is one discovered bus node.
type Peer struct {
	Position   int
	Name       string
	DCCapable  bool
	InputSize  int
	OutputSize int
}

// Transport abstracts the physical frame exchange so the bus master can
// be driven by a real NIC or a simulated backend in tests.
type Transport interface {
	Scan() ([]Peer, error)
	SetState(BusState) error
	ReadClock() (uint64, error)
	Exchange(outputs []byte, inputs []byte) (workingCounter int, err error)
	Close() error
}

// RealtimeConfig configures the distributed-clock bus variant.
type RealtimeConfig struct {
	Interface         string
	ExpectedPeers     int
	DCEnabled         bool
	DCSyncCycle       time.Duration
	WkcErrorThreshold int
}

// Realtime is the distributed-clock bus driver variant. Exchange issues
// exactly one frame per call; the scheduler's period must match or evenly
// divide DCSyncCycle, which is enforced at configuration validation time,
// not here.
type Realtime struct {
	cfg       RealtimeConfig
	transport Transport

	mu                  sync.Mutex
	state               BusState
	peers               []Peer
	expectedWkc         int
	consecutiveWkcFault int
	referenceClock      int64 // DC time at the last successful exchange
	inputs              Inputs
	outputs             Outputs
}

// NewRealtime constructs a driver bound to the given transport. Pass a
// *SimulatedTransport for tests or development without hardware.
func NewRealtime(cfg RealtimeConfig, transport Transport) *Realtime {
	return &Realtime{cfg: cfg, transport: transport, state: BusOffline}
}

func (r *Realtime) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state = BusInit
	peers, err := r.transport.Scan()
	if err != nil {
		r.state = BusOffline
		return plcerr.Wrap(plcerr.KindDriverInitFault, "fieldbus: topology scan", err)
	}
	if len(peers) == 0 || (r.cfg.ExpectedPeers > 0 && len(peers) != r.cfg.ExpectedPeers) {
		r.state = BusOffline
		return plcerr.New(plcerr.KindDriverInitFault,
			fmt.Sprintf("fieldbus: peer set mismatch: got=%d want=%d", len(peers), r.cfg.ExpectedPeers))
	}
	r.peers = peers

	var expectedWkc int
	for _, p := range peers {
		if p.InputSize > 0 {
			expectedWkc++
		}
		if p.OutputSize > 0 {
			expectedWkc += 2
		}
	}
	r.expectedWkc = expectedWkc

	if err := r.transport.SetState(BusPreOp); err != nil {
		r.state = BusOffline
		return plcerr.Wrap(plcerr.KindDriverInitFault, "fieldbus: pre-op transition", err)
	}
	r.state = BusPreOp

	if r.cfg.DCEnabled {
		if _, err := r.transport.ReadClock(); err != nil {
			r.state = BusOffline
			return plcerr.Wrap(plcerr.KindDriverInitFault, "fieldbus: dc clock read", err)
		}
	}

	if err := r.transport.SetState(BusSafeOp); err != nil {
		r.state = BusOffline
		return plcerr.Wrap(plcerr.KindDriverInitFault, "fieldbus: safe-op transition", err)
	}
	r.state = BusSafeOp

	if err := r.transport.SetState(BusOp); err != nil {
		r.state = BusOffline
		return plcerr.Wrap(plcerr.KindDriverInitFault, "fieldbus: op transition", err)
	}
	r.state = BusOp

	r.consecutiveWkcFault = 0
	return nil
}

// ReadInputs is a no-op on the realtime variant: the bus is full-duplex,
// so a cycle's only wire frame is the one WriteOutputs issues, and the
// inputs that frame returns are what GetInputs reports at the next
// cycle's ingress. ReadInputs
// still checks bus state so a dropped connection surfaces at ingress
// rather than silently staying quiet until egress.
func (r *Realtime) ReadInputs() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != BusOp && r.state != BusSafeOp {
		return plcerr.New(plcerr.KindDriverTransient, fmt.Sprintf("fieldbus: exchange in state %s", r.state))
	}
	return nil
}

// WriteOutputs issues the cycle's single frame: it sends out and, in the
// same exchange, latches the inputs GetInputs reports at the next
// cycle's ingress.
func (r *Realtime) WriteOutputs(out Outputs) error {
	return r.Exchange(out)
}

// Exchange issues one frame. Inputs/outputs are packed into the same
// byte layout the process image uses: 4 bytes digital, 32 bytes analog.
func (r *Realtime) Exchange(out Outputs) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != BusOp && r.state != BusSafeOp {
		return plcerr.New(plcerr.KindDriverTransient, fmt.Sprintf("fieldbus: exchange in state %s", r.state))
	}

	r.outputs = out
	outBuf := make([]byte, 36)
	outBuf[0] = byte(out.Digital)
	outBuf[1] = byte(out.Digital >> 8)
	outBuf[2] = byte(out.Digital >> 16)
	outBuf[3] = byte(out.Digital >> 24)
	for i, v := range out.Analog {
		outBuf[4+2*i] = byte(uint16(v))
		outBuf[4+2*i+1] = byte(uint16(v) >> 8)
	}

	inBuf := make([]byte, 36)
	wkc, err := r.transport.Exchange(outBuf, inBuf)
	if err != nil {
		return plcerr.Wrap(plcerr.KindDriverTransient, "fieldbus: frame exchange", err)
	}

	if wkc != r.expectedWkc {
		r.consecutiveWkcFault++
		if r.cfg.WkcErrorThreshold > 0 && r.consecutiveWkcFault >= r.cfg.WkcErrorThreshold {
			r.state = BusFault
			return plcerr.New(plcerr.KindDriverProtocol,
				fmt.Sprintf("fieldbus: working counter threshold exceeded: consecutive=%d threshold=%d",
					r.consecutiveWkcFault, r.cfg.WkcErrorThreshold))
		}
	} else {
		r.consecutiveWkcFault = 0
	}

	var digital uint32
	digital |= uint32(inBuf[0])
	digital |= uint32(inBuf[1]) << 8
	digital |= uint32(inBuf[2]) << 16
	digital |= uint32(inBuf[3]) << 24
	var analog [16]int16
	for i := range analog {
		analog[i] = int16(uint16(inBuf[4+2*i]) | uint16(inBuf[4+2*i+1])<<8)
	}
	r.inputs = Inputs{Digital: digital, Analog: analog}

	if r.cfg.DCEnabled {
		if t, err := r.transport.ReadClock(); err == nil {
			r.referenceClock = int64(t)
		}
	}

	return nil
}

func (r *Realtime) GetInputs() Inputs {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inputs
}

func (r *Realtime) SetOutputs(out Outputs) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs = out
}

func (r *Realtime) IsOperational() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == BusOp
}

func (r *Realtime) Shutdown() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.outputs = Outputs{}
	if r.state == BusOp {
		_ = r.transport.SetState(BusSafeOp)
		r.state = BusSafeOp
	}
	if r.state == BusSafeOp {
		_ = r.transport.SetState(BusPreOp)
		r.state = BusPreOp
	}
	if err := r.transport.Close(); err != nil {
		return plcerr.Wrap(plcerr.KindDriverTransient, "fieldbus: transport close", err)
	}
	r.state = BusOffline
	return nil
}
