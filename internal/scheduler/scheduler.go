// Package scheduler drives the cyclic scan: wake on the period
// boundary, pull inputs into the process image, run the logic engine's
// step, push outputs back to the fieldbus, and account for timing and
// faults. It exclusively owns the process image and the engine handle
// for the duration of each cycle.
package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/scanrt/plcrt/internal/config"
	"github.com/scanrt/plcrt/internal/engine"
	"github.com/scanrt/plcrt/internal/faultlog"
	"github.com/scanrt/plcrt/internal/fieldbus"
	"github.com/scanrt/plcrt/internal/image"
	"github.com/scanrt/plcrt/internal/logging"
	"github.com/scanrt/plcrt/internal/metrics"
	"github.com/scanrt/plcrt/internal/plcerr"
	"github.com/scanrt/plcrt/internal/state"
	"github.com/scanrt/plcrt/internal/watchdog"
)

// Scheduler phases a deterministic scan cycle across an engine and a
// fieldbus driver. Not safe for concurrent use: one dedicated goroutine
// (ideally a real-time-scheduled OS thread) owns Run.
type Scheduler struct {
	image  *image.Image
	store  *image.Store
	engine engine.LogicEngine
	driver fieldbus.Driver
	state  *state.Machine

	watchdog *watchdog.Watchdog
	metrics  *metrics.Registry
	faults   *faultlog.Recorder
	logger   zerolog.Logger

	period          time.Duration
	maxOverrun      time.Duration
	onOverrunFault  bool
	holdLastOutputs bool

	nextDeadline time.Time
	cycleCount   uint64
	firstCycle   bool
	faultHandled bool

	traceCh chan []engine.TraceEntry

	shutdownRequested  atomic.Bool
	reloadMu           sync.Mutex
	pendingReload      []byte
	pendingPreserveMem bool
	pendingReloadSet   bool
}

// Config bundles the scheduler's dependencies and tuning, taken
// straight from the runtime configuration plus the collaborators
// constructed around it.
type Config struct {
	Runtime  *config.RuntimeConfig
	Engine   engine.LogicEngine
	Driver   fieldbus.Driver
	Watchdog *watchdog.Watchdog
	Metrics  *metrics.Registry
	Faults   *faultlog.Recorder
	Logger   *zerolog.Logger
}

// New constructs a Scheduler in Boot state. Call Initialize then Start
// before RunCycle.
func New(cfg Config) *Scheduler {
	logger := logging.New("scheduler")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Scheduler{
		image:           image.New(),
		store:           image.NewStore(),
		engine:          cfg.Engine,
		driver:          cfg.Driver,
		state:           state.New(cfg.Runtime.FaultPolicy.FaultLatch),
		watchdog:        cfg.Watchdog,
		metrics:         cfg.Metrics,
		faults:          cfg.Faults,
		logger:          logger,
		period:          cfg.Runtime.CycleTime,
		maxOverrun:      cfg.Runtime.MaxOverrun,
		onOverrunFault:  cfg.Runtime.FaultPolicy.OnOverrun == "fault",
		holdLastOutputs: cfg.Runtime.FaultPolicy.SafeOutputs == "hold_last",
		traceCh:         make(chan []engine.TraceEntry, 4),
	}
}

// State returns the current runtime lifecycle state.
func (s *Scheduler) State() state.State { return s.state.Current() }

// Metrics returns the cycle timing registry.
func (s *Scheduler) Metrics() *metrics.Registry { return s.metrics }

// Faults returns the fault history recorder.
func (s *Scheduler) Faults() *faultlog.Recorder { return s.faults }

// Traces returns the channel carrying drained per-cycle trace batches.
func (s *Scheduler) Traces() <-chan []engine.TraceEntry { return s.traceCh }

// ImageSnapshot returns a copy of the current process image for
// control-plane observers, without blocking the cycle thread.
func (s *Scheduler) ImageSnapshot() [image.Size]byte { return s.store.Snapshot() }

// Initialize brings the engine and driver up and transitions Boot to
// PreOp.
func (s *Scheduler) Initialize() error {
	if err := s.driver.Init(); err != nil {
		return err
	}
	if err := s.engine.Init(); err != nil {
		return err
	}
	return s.state.Transition(state.PreOp)
}

// Start transitions PreOp to Run and arms the first cycle deadline.
func (s *Scheduler) Start() error {
	if err := s.state.Transition(state.Run); err != nil {
		return err
	}
	s.nextDeadline = time.Time{}
	s.firstCycle = true
	return nil
}

// RequestShutdown cooperatively stops the loop: the current cycle
// completes with safe-state egress, then the driver is shut down.
func (s *Scheduler) RequestShutdown() {
	s.shutdownRequested.Store(true)
}

// ShutdownRequested reports whether a shutdown was requested.
func (s *Scheduler) ShutdownRequested() bool {
	return s.shutdownRequested.Load()
}

// RequestReload queues a hot-swap for the next cycle boundary, per the
// reload signal's preserve_memory=true default.
func (s *Scheduler) RequestReload(module []byte) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()
	s.pendingReload = module
	s.pendingPreserveMem = true
	s.pendingReloadSet = true
}

// Reset clears a latched fault and returns to PreOp, if permitted.
func (s *Scheduler) Reset() error {
	s.state.Acknowledge()
	s.faultHandled = false
	if s.watchdog != nil {
		s.watchdog.Reset()
	}
	return s.state.Transition(state.PreOp)
}

// Run executes cycles while the state is Run or Fault, until a shutdown
// is requested; an error returned by a cycle is logged and the loop
// continues. It then drives the driver to a clean shutdown.
func (s *Scheduler) Run() error {
	s.logger.Info().Dur("period", s.period).Msg("entering scheduler loop")
	for s.state.Current() == state.Run || s.state.Current() == state.Fault {
		if _, err := s.RunCycle(); err != nil {
			s.logger.Error().Err(err).Msg("cycle returned an error")
		}
		if s.shutdownRequested.Load() {
			break
		}
	}
	return s.shutdown()
}

func (s *Scheduler) shutdown() error {
	s.logger.Info().Uint64("cycles", s.cycleCount).Msg("shutting down scheduler")
	_ = s.state.Transition(state.Shutdown)
	return s.driver.Shutdown()
}

// RunCycle executes exactly one Wake->Ingress->Step->Egress->Account
// cycle.
func (s *Scheduler) RunCycle() (metrics.CycleRecord, error) {
	deadline, missed := s.waitForDeadline()
	if missed > 0 {
		s.logger.Warn().Int("missed_cycles", missed).Msg("scheduler fell behind; skipped to next boundary")
	}

	wake := time.Now()
	if s.watchdog != nil {
		s.watchdog.Kick()
	}

	var rec metrics.CycleRecord
	rec.Wake = wake
	rec.Cycle = s.cycleCount

	faulting := s.state.Current() == state.Fault

	s.image.SetFlag(image.FlagFirstCycle, s.firstCycle)
	s.image.SetFlag(image.FlagFaultMode, faulting)
	s.image.SetCyclePeriodNs(uint32(s.period.Nanoseconds()))
	s.image.SetCycleCounter(s.cycleCount)
	s.image.ZeroReserved()

	t0 := time.Now()
	if err := s.driver.ReadInputs(); err != nil {
		s.logger.Warn().Err(err).Msg("ingress: driver read failed, holding stale inputs")
	} else {
		in := s.driver.GetInputs()
		s.image.SetDigitalInputs(in.Digital)
		for ch := 0; ch < 16; ch++ {
			s.image.SetAnalogInput(ch, in.Analog[ch])
		}
	}
	rec.Ingress = time.Since(t0)

	t0 = time.Now()
	var stepErr error
	if faulting {
		if !s.faultHandled {
			stepErr = s.engine.Fault()
			s.faultHandled = true
		}
	} else {
		stepErr = s.engine.Step(s.image)
	}
	rec.Step = time.Since(t0)

	if !faulting {
		if code, raised := s.engine.UserFault(); raised {
			s.image.SetFaultCode(code)
			s.triggerFault(faultlog.CauseUserFault, rec)
			faulting = true
		} else if stepErr != nil {
			cause := faultlog.CauseExecutionFault
			if plcerr.Is(stepErr, plcerr.KindFuelExhausted) {
				cause = faultlog.CauseFuelExhausted
			}
			if code, ok := plcerr.KindOf(stepErr); ok {
				s.image.SetFaultCode(uint32(code))
			}
			s.triggerFault(cause, rec)
			faulting = true
		}
	}

	select {
	case s.traceCh <- s.engine.Drain():
	default:
	}

	t0 = time.Now()
	out := fieldbus.Outputs{Digital: s.image.DigitalOutputs()}
	for ch := 0; ch < 16; ch++ {
		out.Analog[ch] = s.image.AnalogOutput(ch)
	}
	if faulting || s.shutdownRequested.Load() {
		out = s.safeOutputs(out)
		s.image.SetDigitalOutputs(out.Digital)
		for ch := 0; ch < 16; ch++ {
			s.image.SetAnalogOutput(ch, out.Analog[ch])
		}
	}
	if err := s.driver.WriteOutputs(out); err != nil {
		s.logger.Warn().Err(err).Msg("egress: driver write failed")
	}
	rec.Egress = time.Since(t0)

	end := time.Now()
	rec.Total = end.Sub(wake)
	rec.Overrun = end.After(deadline.Add(s.maxOverrun))
	if rec.Overrun {
		rec.OverrunBy = end.Sub(deadline)
		if s.onOverrunFault && !faulting {
			s.triggerFault(faultlog.CauseCycleOverrun, rec)
			faulting = true
		} else {
			s.logger.Warn().Dur("overrun_by", rec.OverrunBy).Msg("cycle overrun within tolerance")
		}
	}

	if s.watchdog != nil && s.watchdog.Triggered() {
		if !faulting {
			s.triggerFault(faultlog.CauseWatchdogFired, rec)
			faulting = true
		}
	}

	if code, ok := plcerr.KindOf(stepErr); ok {
		rec.FaultCode = uint32(code)
	}

	s.faults.Observe(s.image)
	s.metrics.Record(rec)
	snap := s.image.Snapshot()
	s.store.Publish(snap)

	s.cycleCount++
	s.firstCycle = false

	s.applyPendingReload()

	return rec, nil
}

func (s *Scheduler) safeOutputs(out fieldbus.Outputs) fieldbus.Outputs {
	if s.holdLastOutputs {
		return out
	}
	return fieldbus.Outputs{}
}

func (s *Scheduler) triggerFault(cause faultlog.Cause, rec metrics.CycleRecord) {
	wasRun := s.state.Current() == state.Run
	s.state.EnterFault()
	s.faultHandled = false
	if wasRun {
		s.faults.Capture(cause, s.cycleCount, rec)
		s.logger.Error().Str("cause", cause.String()).Uint64("cycle", s.cycleCount).Msg("entering fault state")
	}
}

// applyPendingReload performs a queued hot-swap at this cycle boundary.
// Reload validates the new module fully before the old is discarded;
// on a validation failure the old engine remains in place and the error
// is logged. The scheduler waits at most one cycle period for Reload;
// on timeout it logs and stops waiting, but the Reload call is not
// cancelled: it keeps running and can still swap the new module in
// after the timeout.
func (s *Scheduler) applyPendingReload() {
	s.reloadMu.Lock()
	if !s.pendingReloadSet {
		s.reloadMu.Unlock()
		return
	}
	module, preserve := s.pendingReload, s.pendingPreserveMem
	s.pendingReload = nil
	s.pendingReloadSet = false
	s.reloadMu.Unlock()

	result := make(chan error, 1)
	go func() { result <- s.engine.Reload(module, preserve) }()

	select {
	case err := <-result:
		if err != nil {
			s.logger.Error().Err(err).Msg("reload failed; retaining current module")
		} else {
			s.logger.Info().Bool("preserve_memory", preserve).Msg("logic module reloaded")
		}
	case <-time.After(s.period):
		s.logger.Error().Msg("reload exceeded one cycle period; no longer waiting for it")
	}
}

// waitForDeadline sleeps until the next absolute period boundary. If
// the scheduler is running behind, it skips forward to the next
// boundary in the future rather than executing back-to-back catch-up
// cycles; each skipped boundary counts toward missed.
func (s *Scheduler) waitForDeadline() (deadline time.Time, missed int) {
	now := time.Now()
	if s.nextDeadline.IsZero() {
		s.nextDeadline = now.Add(s.period)
	}
	deadline = s.nextDeadline

	for !deadline.After(now) {
		deadline = deadline.Add(s.period)
		missed++
	}

	if wait := deadline.Sub(time.Now()); wait > 0 {
		time.Sleep(wait)
	}
	s.nextDeadline = deadline.Add(s.period)
	return deadline, missed
}
