// Package faultlog records runtime faults for postmortem diagnosis: a
// timestamp, cause, offending cycle, and a snapshot of the last N
// process images leading up to the fault.
package faultlog

import (
	"time"

	"github.com/google/uuid"

	"github.com/scanrt/plcrt/internal/image"
	"github.com/scanrt/plcrt/internal/metrics"
)

// Cause classifies why a fault record was captured.
type Cause int

const (
	CauseNone Cause = iota
	CauseCycleOverrun
	CauseExecutionFault
	CauseFuelExhausted
	CauseUserFault
	CauseWatchdogFired
	CauseDriverInitFault
	CauseDriverProtocol
	CauseWkcError
)

func (c Cause) String() string {
	switch c {
	case CauseCycleOverrun:
		return "CYCLE_OVERRUN"
	case CauseExecutionFault:
		return "EXECUTION_FAULT"
	case CauseFuelExhausted:
		return "FUEL_EXHAUSTED"
	case CauseUserFault:
		return "USER_FAULT"
	case CauseWatchdogFired:
		return "WATCHDOG_FIRED"
	case CauseDriverInitFault:
		return "DRIVER_INIT_FAULT"
	case CauseDriverProtocol:
		return "DRIVER_PROTOCOL"
	case CauseWkcError:
		return "WKC_ERROR"
	default:
		return "NONE"
	}
}

// Record is one captured fault event.
type Record struct {
	ID      uuid.UUID
	At      time.Time
	Cause   Cause
	Cycle   uint64
	Frames  []image.Image // pre-fault ring: last N process images
	Phases  metrics.CycleRecord
}

// DefaultDepth is the default number of pre-fault process images
// retained per record.
const DefaultDepth = 64

// Recorder keeps a pre-allocated ring buffer of recent process images
// so that, on fault, the last N images can be captured without
// allocating on the real-time path, plus a bounded history of fault
// records themselves.
type Recorder struct {
	depth    int
	ring     []image.Image
	next     int
	filled   int
	faults   []Record
	maxFaults int
}

// New creates a Recorder retaining depth pre-fault frames and up to
// maxFaults historical fault records.
func New(depth, maxFaults int) *Recorder {
	if depth <= 0 {
		depth = DefaultDepth
	}
	if maxFaults <= 0 {
		maxFaults = 16
	}
	return &Recorder{
		depth:     depth,
		ring:      make([]image.Image, depth),
		maxFaults: maxFaults,
	}
}

// Observe feeds one cycle's process image into the pre-fault ring.
// Called every cycle regardless of fault state.
func (r *Recorder) Observe(img *image.Image) {
	r.ring[r.next] = *img
	r.next = (r.next + 1) % r.depth
	if r.filled < r.depth {
		r.filled++
	}
}

// Capture snapshots the pre-fault ring into a new Record and retains
// it, evicting the oldest record if over capacity.
func (r *Recorder) Capture(cause Cause, cycle uint64, phases metrics.CycleRecord) Record {
	frames := make([]image.Image, r.filled)
	start := (r.next - r.filled + r.depth) % r.depth
	for i := 0; i < r.filled; i++ {
		frames[i] = r.ring[(start+i)%r.depth]
	}

	rec := Record{
		ID:     uuid.New(),
		At:     time.Now(),
		Cause:  cause,
		Cycle:  cycle,
		Frames: frames,
		Phases: phases,
	}

	r.faults = append(r.faults, rec)
	if len(r.faults) > r.maxFaults {
		r.faults = r.faults[len(r.faults)-r.maxFaults:]
	}
	return rec
}

// History returns all retained fault records, oldest first.
func (r *Recorder) History() []Record {
	out := make([]Record, len(r.faults))
	copy(out, r.faults)
	return out
}

// Last returns the most recent fault record, if any.
func (r *Recorder) Last() (Record, bool) {
	if len(r.faults) == 0 {
		return Record{}, false
	}
	return r.faults[len(r.faults)-1], true
}
