// internal/config/validate.go
package config

import "fmt"

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil")
	}
	r := cfg.Runtime

	if r.CycleTimeUs <= 0 {
		return fmt.Errorf("runtime.cycle_time_us must be > 0")
	}

	// max_overrun is strictly less than watchdog_timeout, which is
	// strictly greater than one period. Equal period/watchdog is
	// rejected outright.
	if r.WatchdogTimeoutUs <= r.CycleTimeUs {
		return fmt.Errorf(
			"runtime.watchdog_timeout_us (%d) must be strictly greater than cycle_time_us (%d)",
			r.WatchdogTimeoutUs, r.CycleTimeUs,
		)
	}
	if r.MaxOverrunUs < 0 {
		return fmt.Errorf("runtime.max_overrun_us must be >= 0")
	}
	if r.MaxOverrunUs >= r.WatchdogTimeoutUs {
		return fmt.Errorf(
			"runtime.max_overrun_us (%d) must be strictly less than watchdog_timeout_us (%d)",
			r.MaxOverrunUs, r.WatchdogTimeoutUs,
		)
	}

	switch r.FaultPolicy.OnOverrun {
	case "", "warn", "fault":
	default:
		return fmt.Errorf("runtime.fault_policy.on_overrun: unknown value %q", r.FaultPolicy.OnOverrun)
	}
	switch r.FaultPolicy.SafeOutputs {
	case "", "all_off", "hold_last":
	default:
		return fmt.Errorf("runtime.fault_policy.safe_outputs: unknown value %q", r.FaultPolicy.SafeOutputs)
	}

	switch r.Fieldbus.Driver {
	case "", "simulated", "request_response", "realtime":
	default:
		return fmt.Errorf("runtime.fieldbus.driver: unknown value %q", r.Fieldbus.Driver)
	}

	if r.Fieldbus.Driver == "request_response" {
		if r.Fieldbus.RequestResponse.ServerAddress == "" {
			return fmt.Errorf("runtime.fieldbus.request_response.server_address required")
		}
		if r.Fieldbus.RequestResponse.TimeoutMs <= 0 {
			return fmt.Errorf("runtime.fieldbus.request_response.timeout_ms must be > 0")
		}
	}

	if r.Fieldbus.Driver == "realtime" {
		rt := r.Fieldbus.Realtime
		if rt.Interface == "" {
			return fmt.Errorf("runtime.fieldbus.realtime.interface required")
		}
		if rt.ExpectedPeers <= 0 {
			return fmt.Errorf("runtime.fieldbus.realtime.expected_peers must be > 0")
		}
		if rt.WkcErrorThreshold < 0 {
			return fmt.Errorf("runtime.fieldbus.realtime.wkc_error_threshold must be >= 0")
		}
		if rt.DCEnabled {
			if rt.DCSync0CycleUs <= 0 {
				return fmt.Errorf("runtime.fieldbus.realtime.dc_sync0_cycle_us must be > 0 when dc_enabled")
			}
			// scheduler period must match or evenly divide the sync cycle
			if rt.DCSync0CycleUs%r.CycleTimeUs != 0 {
				return fmt.Errorf(
					"runtime.cycle_time_us (%d) must match or evenly divide dc_sync0_cycle_us (%d)",
					r.CycleTimeUs, rt.DCSync0CycleUs,
				)
			}
		}
	}

	for _, p := range r.Metrics.Percentiles {
		if p <= 0 || p >= 1 {
			return fmt.Errorf("runtime.metrics.percentiles: %v out of (0,1) range", p)
		}
	}

	switch r.Realtime.Policy {
	case "", "fifo", "round-robin", "other":
	default:
		return fmt.Errorf("runtime.realtime.policy: unknown value %q", r.Realtime.Policy)
	}
	if r.Realtime.Enabled && (r.Realtime.Priority < 1 || r.Realtime.Priority > 99) {
		return fmt.Errorf("runtime.realtime.priority must be in [1, 99], got %d", r.Realtime.Priority)
	}

	return nil
}
