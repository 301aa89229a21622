package fieldbus

import (
	"testing"
	"time"

	"github.com/goburrow/modbus"
)

// fakeModbusClient implements modbus.Client against in-memory buffers so
// the request/response driver can be exercised without a real TCP peer.
type fakeModbusClient struct {
	discreteInputs []byte
	inputRegisters []byte
	writtenCoils   []byte
	writtenRegs    []byte
	err            error
}

func (f *fakeModbusClient) ReadCoils(address, quantity uint16) ([]byte, error) { return nil, nil }
func (f *fakeModbusClient) ReadDiscreteInputs(address, quantity uint16) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.discreteInputs, nil
}
func (f *fakeModbusClient) WriteSingleCoil(address, value uint16) ([]byte, error) { return nil, nil }
func (f *fakeModbusClient) WriteMultipleCoils(address, quantity uint16, value []byte) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.writtenCoils = value
	return nil, nil
}
func (f *fakeModbusClient) ReadInputRegisters(address, quantity uint16) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.inputRegisters, nil
}
func (f *fakeModbusClient) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	return nil, nil
}
func (f *fakeModbusClient) WriteSingleRegister(address, value uint16) ([]byte, error) {
	return nil, nil
}
func (f *fakeModbusClient) WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.writtenRegs = value
	return nil, nil
}
func (f *fakeModbusClient) ReadWriteMultipleRegisters(readAddress, readQuantity, writeAddress, writeQuantity uint16, value []byte) ([]byte, error) {
	return nil, nil
}
func (f *fakeModbusClient) MaskWriteRegister(address, andMask, orMask uint16) ([]byte, error) {
	return nil, nil
}
func (f *fakeModbusClient) ReadFIFOQueue(address uint16) ([]byte, error) { return nil, nil }

func baseRRConfig() RequestResponseConfig {
	return RequestResponseConfig{
		ServerAddress: "10.0.0.5:502",
		Timeout:       time.Second,
		InputCoilAddr: 0, InputCoilQty: 8,
		InputRegAddr: 0, InputRegQty: 16,
		OutputCoilAddr: 0,
		OutputRegAddr:  0,
		RetryDelay:     time.Millisecond,
	}
}

func TestRequestResponse_ExchangeUnpacksInputs(t *testing.T) {
	fake := &fakeModbusClient{
		discreteInputs: []byte{0xAA}, // LSB-first: bits 1,3,5,7
		inputRegisters: make([]byte, 32),
	}
	fake.inputRegisters[0], fake.inputRegisters[1] = 0x12, 0x34 // channel 0

	r := newRequestResponseWithClient(baseRRConfig(), fake)
	if err := r.Exchange(Outputs{Digital: 0xFF}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	in := r.GetInputs()
	if in.Digital != 0xAA {
		t.Fatalf("expected digital inputs 0xAA, got %#x", in.Digital)
	}
	if in.Analog[0] != 0x1234 {
		t.Fatalf("expected analog[0]=0x1234, got %#x", in.Analog[0])
	}
	if len(fake.writtenCoils) == 0 {
		t.Fatalf("expected outputs to be written")
	}
}

func TestRequestResponse_IllegalFunctionIsFatal(t *testing.T) {
	fake := &fakeModbusClient{err: &modbus.ModbusError{FunctionCode: 2, ExceptionCode: excIllegalFunction}}
	r := newRequestResponseWithClient(baseRRConfig(), fake)

	err := r.ReadInputs()
	if err == nil {
		t.Fatalf("expected error")
	}
	if r.IsOperational() {
		t.Fatalf("expected driver to leave operational state on fatal exception")
	}
}

func TestRequestResponse_ServerBusyIsRetryableNotFatal(t *testing.T) {
	fake := &fakeModbusClient{err: &modbus.ModbusError{FunctionCode: 2, ExceptionCode: excServerDeviceBusy}}
	r := newRequestResponseWithClient(baseRRConfig(), fake)

	err := r.ReadInputs()
	if err == nil {
		t.Fatalf("expected error")
	}
	// A single retryable failure within the attempt budget keeps the
	// connection's overall operational flag true; only the exchange
	// itself reports degraded via the returned error.
	if r.retryCount != 1 {
		t.Fatalf("expected retry count to increment, got %d", r.retryCount)
	}
}

func TestRequestResponse_RetryBudgetExhaustionMarksNonOperational(t *testing.T) {
	fake := &fakeModbusClient{err: &modbus.ModbusError{FunctionCode: 2, ExceptionCode: excGatewayPathUnavail}}
	cfg := baseRRConfig()
	cfg.RetryAttempts = 2
	r := newRequestResponseWithClient(cfg, fake)

	_ = r.ReadInputs()
	_ = r.ReadInputs()
	_ = r.ReadInputs()

	if r.IsOperational() {
		t.Fatalf("expected non-operational after exceeding retry budget")
	}
}

func TestRequestResponse_SuccessResetsRetryCount(t *testing.T) {
	fake := &fakeModbusClient{
		discreteInputs: []byte{0x00},
		inputRegisters: make([]byte, 32),
	}
	r := newRequestResponseWithClient(baseRRConfig(), fake)
	r.retryCount = 2
	r.degraded = true

	if err := r.ReadInputs(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.retryCount != 0 || r.degraded {
		t.Fatalf("expected success to clear degraded/retry state")
	}
}
