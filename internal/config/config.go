// Package config holds the runtime's passive configuration structs.
//
// Configuration is ingested from the CLI driver collaborator (parsed
// YAML/TOML) and treated here purely as data: this package never reads
// flags or environment variables itself.
package config

import "time"

// Config is the top-level runtime configuration.
type Config struct {
	Runtime RuntimeConfig `yaml:"runtime"`
}

// RuntimeConfig mirrors the recognized configuration surface.
type RuntimeConfig struct {
	CycleTimeUs       int `yaml:"cycle_time_us"`
	WatchdogTimeoutUs int `yaml:"watchdog_timeout_us"`
	MaxOverrunUs      int `yaml:"max_overrun_us"`

	// Computed by Normalize; not read from YAML directly.
	CycleTime       time.Duration `yaml:"-"`
	WatchdogTimeout time.Duration `yaml:"-"`
	MaxOverrun      time.Duration `yaml:"-"`

	Realtime    RealtimeConfig    `yaml:"realtime"`
	FaultPolicy FaultPolicyConfig `yaml:"fault_policy"`
	Fieldbus    FieldbusConfig    `yaml:"fieldbus"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Engine      EngineConfig      `yaml:"engine"`
}

// RealtimeConfig controls OS-level real-time scheduling.
type RealtimeConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Policy            string `yaml:"policy"` // fifo | round-robin | other
	Priority          int    `yaml:"priority"`
	CPUAffinity       []int  `yaml:"cpu_affinity"`
	LockMemory        bool   `yaml:"lock_memory"`
	PrefaultStackSize int    `yaml:"prefault_stack_size"`
}

// FaultPolicyConfig controls deadline and safe-state behavior.
type FaultPolicyConfig struct {
	OnOverrun   string `yaml:"on_overrun"`   // warn | fault
	SafeOutputs string `yaml:"safe_outputs"` // all_off | hold_last
	FaultLatch  bool   `yaml:"fault_latch"`
	FailFast    bool   `yaml:"fail_fast"`
}

// FieldbusConfig selects a driver and carries its per-variant settings.
type FieldbusConfig struct {
	Driver          string                `yaml:"driver"` // simulated | request_response | realtime
	RequestResponse RequestResponseConfig `yaml:"request_response"`
	Realtime        RealtimeBusConfig     `yaml:"realtime"`
}

// RequestResponseConfig configures the TCP request/response driver.
type RequestResponseConfig struct {
	ServerAddress string `yaml:"server_address"`
	UnitID        uint8  `yaml:"unit_id"`
	TimeoutMs     int    `yaml:"timeout_ms"`
	RetryAttempts int    `yaml:"retry_attempts"`
	RetryDelayMs  int    `yaml:"retry_delay_ms"`
	RetryBackoff  string `yaml:"retry_backoff"` // fixed | exponential
}

// RealtimeBusConfig configures the distributed-clock realtime driver.
type RealtimeBusConfig struct {
	Interface         string `yaml:"interface"`
	DCEnabled         bool   `yaml:"dc_enabled"`
	DCSync0CycleUs    int    `yaml:"dc_sync0_cycle_us"`
	WkcErrorThreshold int    `yaml:"wkc_error_threshold"`
	ExpectedPeers     int    `yaml:"expected_peers"`
}

// MetricsConfig controls in-process metrics collection.
type MetricsConfig struct {
	Enabled       bool      `yaml:"enabled"`
	HistogramSize int       `yaml:"histogram_size"`
	Percentiles   []float64 `yaml:"percentiles"`
}

// EngineConfig controls the sandboxed logic engine.
type EngineConfig struct {
	MaxMemoryBytes int64  `yaml:"max_memory_bytes"`
	FuelPerCycle   uint64 `yaml:"fuel_per_cycle"`
}
