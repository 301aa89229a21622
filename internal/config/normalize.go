// internal/config/normalize.go
package config

import "time"

// defaultHistogramSize is used when Metrics.HistogramSize is unset.
const defaultHistogramSize = 4096

// defaultFuelPerCycle is used when Engine.FuelPerCycle is unset.
const defaultFuelPerCycle = 500_000

// defaultMaxMemoryBytes is used when Engine.MaxMemoryBytes is unset.
const defaultMaxMemoryBytes = 1 << 20 // 1 MiB

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	r := &cfg.Runtime

	r.CycleTime = time.Duration(r.CycleTimeUs) * time.Microsecond
	r.WatchdogTimeout = time.Duration(r.WatchdogTimeoutUs) * time.Microsecond
	r.MaxOverrun = time.Duration(r.MaxOverrunUs) * time.Microsecond

	if r.FaultPolicy.OnOverrun == "" {
		r.FaultPolicy.OnOverrun = "warn"
	}
	if r.FaultPolicy.SafeOutputs == "" {
		r.FaultPolicy.SafeOutputs = "all_off"
	}

	if r.Fieldbus.Driver == "" {
		r.Fieldbus.Driver = "simulated"
	}
	if r.Fieldbus.RequestResponse.RetryAttempts == 0 {
		r.Fieldbus.RequestResponse.RetryAttempts = 3
	}
	if r.Fieldbus.RequestResponse.RetryBackoff == "" {
		r.Fieldbus.RequestResponse.RetryBackoff = "fixed"
	}

	if r.Metrics.HistogramSize == 0 {
		r.Metrics.HistogramSize = defaultHistogramSize
	}
	if len(r.Metrics.Percentiles) == 0 {
		r.Metrics.Percentiles = []float64{0.5, 0.9, 0.99}
	}

	if r.Engine.FuelPerCycle == 0 {
		r.Engine.FuelPerCycle = defaultFuelPerCycle
	}
	if r.Engine.MaxMemoryBytes == 0 {
		r.Engine.MaxMemoryBytes = defaultMaxMemoryBytes
	}

	if r.Realtime.Policy == "" {
		r.Realtime.Policy = "fifo"
	}
}
