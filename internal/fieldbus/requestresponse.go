package fieldbus

import (
	"sync"
	"time"

	"github.com/goburrow/modbus"

	"github.com/scanrt/plcrt/internal/plcerr"
)

// Modbus exception codes, per the protocol spec. goburrow/modbus surfaces
// these through modbus.ModbusError.ExceptionCode.
const (
	excIllegalFunction       = 0x01
	excIllegalDataAddress    = 0x02
	excIllegalDataValue      = 0x03
	excServerDeviceFailure   = 0x04
	excAcknowledge           = 0x05
	excServerDeviceBusy      = 0x06
	excMemoryParityError     = 0x08
	excGatewayPathUnavail    = 0x0A
	excGatewayTargetNoRespnd = 0x0B
)

// RequestResponseConfig configures the TCP request/response variant.
type RequestResponseConfig struct {
	ServerAddress string
	UnitID        byte
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	ExponentialBackoff bool

	// InputCoilAddr/InputCoilQty describe the digital-input read (FC2).
	InputCoilAddr uint16
	InputCoilQty  uint16
	// InputRegAddr/InputRegQty describe the analog-input read (FC4).
	InputRegAddr uint16
	InputRegQty  uint16
	// OutputCoilAddr is the base address for digital-output writes (FC15).
	OutputCoilAddr uint16
	// OutputRegAddr is the base address for analog-output writes (FC16).
	OutputRegAddr uint16
}

// RequestResponse is the sequential Modbus TCP driver variant. Each
// Exchange issues a read-inputs round-trip followed by a write-outputs
// round-trip, each bounded by a per-call timeout.
type RequestResponse struct {
	cfg RequestResponseConfig

	mu          sync.Mutex
	handler     *modbus.TCPClientHandler
	client      modbus.Client
	inputs      Inputs
	outputs     Outputs
	operational bool
	degraded    bool
	retryCount  int
	retrying    bool
}

// NewRequestResponse constructs a driver in the non-connected state; call
// Init to dial and bring the peer operational.
func NewRequestResponse(cfg RequestResponseConfig) *RequestResponse {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 100 * time.Millisecond
	}
	return &RequestResponse{cfg: cfg}
}

// newRequestResponseWithClient wires a pre-built modbus.Client directly,
// bypassing TCP dialing. Used by tests against a fake client.
func newRequestResponseWithClient(cfg RequestResponseConfig, client modbus.Client) *RequestResponse {
	r := NewRequestResponse(cfg)
	r.client = client
	r.operational = true
	return r
}

func (r *RequestResponse) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := modbus.NewTCPClientHandler(r.cfg.ServerAddress)
	h.Timeout = r.cfg.Timeout
	h.SlaveId = r.cfg.UnitID

	if err := h.Connect(); err != nil {
		return plcerr.Wrap(plcerr.KindDriverInitFault, "fieldbus: connect", err)
	}

	r.handler = h
	r.client = modbus.NewClient(h)
	r.operational = true
	r.degraded = false
	r.retryCount = 0
	r.retrying = false
	return nil
}

func (r *RequestResponse) ReadInputs() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readInputsLocked()
}

func (r *RequestResponse) readInputsLocked() error {
	var digital uint32
	if r.cfg.InputCoilQty > 0 {
		bytes, err := r.client.ReadDiscreteInputs(r.cfg.InputCoilAddr, r.cfg.InputCoilQty)
		if err != nil {
			return r.classify(err)
		}
		digital = unpackBitsLE(bytes, int(r.cfg.InputCoilQty))
	}

	var analog [16]int16
	if r.cfg.InputRegQty > 0 {
		regs, err := r.client.ReadInputRegisters(r.cfg.InputRegAddr, r.cfg.InputRegQty)
		if err != nil {
			return r.classify(err)
		}
		n := len(regs) / 2
		if n > len(analog) {
			n = len(analog)
		}
		for i := 0; i < n; i++ {
			analog[i] = int16(uint16(regs[2*i])<<8 | uint16(regs[2*i+1]))
		}
	}

	r.inputs = Inputs{Digital: digital, Analog: analog}
	r.markSuccess()
	return nil
}

func (r *RequestResponse) WriteOutputs(out Outputs) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs = out
	return r.writeOutputsLocked()
}

func (r *RequestResponse) writeOutputsLocked() error {
	coils := packBitsLE(r.outputs.Digital, 32)
	if _, err := r.client.WriteMultipleCoils(r.cfg.OutputCoilAddr, 32, coils); err != nil {
		return r.classify(err)
	}

	regs := make([]byte, 32)
	for i, v := range r.outputs.Analog {
		regs[2*i] = byte(uint16(v) >> 8)
		regs[2*i+1] = byte(uint16(v))
	}
	if _, err := r.client.WriteMultipleRegisters(r.cfg.OutputRegAddr, 16, regs); err != nil {
		return r.classify(err)
	}

	r.markSuccess()
	return nil
}

func (r *RequestResponse) Exchange(out Outputs) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.outputs = out
	if err := r.readInputsLocked(); err != nil {
		return err
	}
	return r.writeOutputsLocked()
}

func (r *RequestResponse) GetInputs() Inputs {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inputs
}

func (r *RequestResponse) SetOutputs(out Outputs) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs = out
}

func (r *RequestResponse) IsOperational() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.operational && !r.degraded
}

func (r *RequestResponse) Shutdown() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.outputs = Outputs{}
	if r.client != nil {
		// Drive outputs to the safe (all-off) state before closing.
		_ = r.writeOutputsLocked()
	}
	r.operational = false

	if r.handler != nil {
		if err := r.handler.Close(); err != nil {
			return plcerr.Wrap(plcerr.KindDriverTransient, "fieldbus: close", err)
		}
	}
	return nil
}

func (r *RequestResponse) markSuccess() {
	r.degraded = false
	r.retryCount = 0
}

// classify maps a transport/protocol error to a plcerr.Kind and triggers
// the retry/reconnect policy for recoverable classes. Illegal-function and
// illegal-address are treated as fatal misconfiguration; everything else
// retryable up to the configured attempt count.
func (r *RequestResponse) classify(err error) error {
	if me, ok := err.(*modbus.ModbusError); ok {
		switch me.ExceptionCode {
		case excIllegalFunction, excIllegalDataAddress:
			r.operational = false
			return plcerr.Wrap(plcerr.KindDriverProtocol, "fieldbus: fatal exception", me)
		case excIllegalDataValue, excServerDeviceFailure, excAcknowledge,
			excServerDeviceBusy, excMemoryParityError,
			excGatewayPathUnavail, excGatewayTargetNoRespnd:
			r.enterDegraded()
			return plcerr.Wrap(plcerr.KindDriverTransient, "fieldbus: retryable exception", me)
		default:
			r.enterDegraded()
			return plcerr.Wrap(plcerr.KindDriverTransient, "fieldbus: unknown exception", me)
		}
	}

	// Socket-level error: non-operational, asynchronous retry.
	r.enterDegraded()
	return plcerr.Wrap(plcerr.KindDriverTransient, "fieldbus: transport error", err)
}

// enterDegraded marks the connection degraded and arms an off-cycle
// reconnect attempt. It never blocks: ReadInputs/WriteOutputs return to
// the cycle thread immediately with a degraded signal while the actual
// backoff wait and reconnect happen on a background goroutine.
func (r *RequestResponse) enterDegraded() {
	r.degraded = true
	r.retryCount++
	if r.retryCount > r.cfg.RetryAttempts {
		r.operational = false
	}
	if !r.retrying && r.handler != nil {
		r.retrying = true
		go r.retryReconnect(r.reconnectDelay())
	}
}

// retryReconnect waits out the backoff window off the cycle thread,
// then attempts to re-establish the connection. A successful reconnect
// clears degraded/operational state for the next exchange to pick up.
func (r *RequestResponse) retryReconnect(delay time.Duration) {
	time.Sleep(delay)

	r.mu.Lock()
	handler := r.handler
	r.mu.Unlock()

	var err error
	if handler != nil {
		err = handler.Connect()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.retrying = false
	if err == nil {
		r.degraded = false
		r.retryCount = 0
		r.operational = true
	}
}

// reconnectDelay returns the backoff for the current retry count.
func (r *RequestResponse) reconnectDelay() time.Duration {
	if !r.cfg.ExponentialBackoff {
		return r.cfg.RetryDelay
	}
	shift := r.retryCount
	if shift > 10 {
		shift = 10
	}
	return r.cfg.RetryDelay * time.Duration(1<<uint(shift))
}

func unpackBitsLE(data []byte, count int) uint32 {
	var out uint32
	for i := 0; i < count && i < 32; i++ {
		byteIdx := i / 8
		bitIdx := uint(i % 8)
		if byteIdx >= len(data) {
			break
		}
		if data[byteIdx]&(1<<bitIdx) != 0 {
			out |= 1 << uint(i)
		}
	}
	return out
}

func packBitsLE(bits uint32, count int) []byte {
	n := (count + 7) / 8
	out := make([]byte, n)
	for i := 0; i < count; i++ {
		if bits&(1<<uint(i)) != 0 {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}
