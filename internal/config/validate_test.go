// internal/config/validate_test.go
package config

import "testing"

func baseValid() *Config {
	return &Config{
		Runtime: RuntimeConfig{
			CycleTimeUs:       1000,
			WatchdogTimeoutUs: 5000,
			MaxOverrunUs:      500,
			FaultPolicy: FaultPolicyConfig{
				OnOverrun:   "warn",
				SafeOutputs: "all_off",
			},
			Fieldbus: FieldbusConfig{Driver: "simulated"},
		},
	}
}

func TestValidate_BaselineOK(t *testing.T) {
	if err := Validate(baseValid()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_ZeroCycleTimeRejected(t *testing.T) {
	cfg := baseValid()
	cfg.Runtime.CycleTimeUs = 0
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for zero cycle time")
	}
}

func TestValidate_WatchdogEqualToPeriodRejected(t *testing.T) {
	cfg := baseValid()
	cfg.Runtime.WatchdogTimeoutUs = cfg.Runtime.CycleTimeUs
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error: watchdog_timeout == cycle_time must be rejected")
	}
}

func TestValidate_WatchdogLessThanPeriodRejected(t *testing.T) {
	cfg := baseValid()
	cfg.Runtime.WatchdogTimeoutUs = cfg.Runtime.CycleTimeUs - 1
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error: watchdog_timeout < cycle_time must be rejected")
	}
}

func TestValidate_MaxOverrunMustBeLessThanWatchdog(t *testing.T) {
	cfg := baseValid()
	cfg.Runtime.MaxOverrunUs = cfg.Runtime.WatchdogTimeoutUs
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error: max_overrun >= watchdog_timeout must be rejected")
	}
}

func TestValidate_UnknownFaultPolicyRejected(t *testing.T) {
	cfg := baseValid()
	cfg.Runtime.FaultPolicy.OnOverrun = "ignore"
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for unknown on_overrun value")
	}
}

func TestValidate_RequestResponseRequiresServerAddress(t *testing.T) {
	cfg := baseValid()
	cfg.Runtime.Fieldbus.Driver = "request_response"
	cfg.Runtime.Fieldbus.RequestResponse.TimeoutMs = 100
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error: missing server_address")
	}
}

func TestValidate_RealtimePeriodMustDivideDcSync(t *testing.T) {
	cfg := baseValid()
	cfg.Runtime.Fieldbus.Driver = "realtime"
	cfg.Runtime.Fieldbus.Realtime = RealtimeBusConfig{
		Interface:      "eth0",
		ExpectedPeers:  6,
		DCEnabled:      true,
		DCSync0CycleUs: 700, // does not divide/evenly multiply 1000us
	}
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error: cycle_time_us must match or evenly divide dc_sync0_cycle_us")
	}
}

func TestValidate_RealtimePeriodDividingDcSyncOK(t *testing.T) {
	cfg := baseValid()
	cfg.Runtime.Fieldbus.Driver = "realtime"
	cfg.Runtime.Fieldbus.Realtime = RealtimeBusConfig{
		Interface:      "eth0",
		ExpectedPeers:  6,
		DCEnabled:      true,
		DCSync0CycleUs: 2000, // the 1000us period divides it evenly
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_PercentileOutOfRangeRejected(t *testing.T) {
	cfg := baseValid()
	cfg.Runtime.Metrics.Percentiles = []float64{0.5, 1.5}
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for percentile out of (0,1)")
	}
}
