// Command plcrtd is the soft-PLC cyclic runtime: it loads a runtime
// configuration and a sandboxed logic module, then drives the
// wake/ingress/step/egress/account scan until asked to stop.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scanrt/plcrt/internal/config"
	"github.com/scanrt/plcrt/internal/engine"
	"github.com/scanrt/plcrt/internal/faultlog"
	"github.com/scanrt/plcrt/internal/fieldbus"
	"github.com/scanrt/plcrt/internal/logging"
	"github.com/scanrt/plcrt/internal/metrics"
	"github.com/scanrt/plcrt/internal/rtsched"
	"github.com/scanrt/plcrt/internal/scheduler"
	"github.com/scanrt/plcrt/internal/watchdog"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: plcrtd <config.yaml> <module.wasm> [realtime.toml]")
		os.Exit(1)
	}
	cfgPath, modulePath := os.Args[1], os.Args[2]
	var rtProfilePath string
	if len(os.Args) > 3 {
		rtProfilePath = os.Args[3]
	}

	logger := logging.New("plcrtd")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("config load failed")
	}
	if err := config.LoadRealtimeProfile(cfg, rtProfilePath); err != nil {
		logger.Fatal().Err(err).Msg("realtime profile load failed")
	}

	moduleBytes, err := os.ReadFile(modulePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("logic module read failed")
	}

	if status, err := rtsched.Apply(rtsched.Config{
		Enabled:           cfg.Runtime.Realtime.Enabled,
		Policy:            cfg.Runtime.Realtime.Policy,
		Priority:          cfg.Runtime.Realtime.Priority,
		CPUAffinity:       cfg.Runtime.Realtime.CPUAffinity,
		LockMemory:        cfg.Runtime.Realtime.LockMemory,
		PrefaultStackSize: cfg.Runtime.Realtime.PrefaultStackSize,
	}); err != nil {
		logger.Fatal().Err(err).Msg("real-time scheduling setup failed")
	} else {
		logger.Info().
			Bool("memory_locked", status.MemoryLocked).
			Str("policy", status.Policy).
			Int("priority", status.Priority).
			Ints("cpu_affinity", status.CPUAffinity).
			Msg("real-time setup applied")
	}

	eng := engine.NewHost(engine.Config{
		MaxMemoryBytes: uint64(cfg.Runtime.Engine.MaxMemoryBytes),
		FuelPerCycle:   cfg.Runtime.Engine.FuelPerCycle,
	})
	if err := eng.Load(moduleBytes); err != nil {
		logger.Fatal().Err(err).Msg("logic module load failed")
	}

	driver, err := buildDriver(cfg.Runtime.Fieldbus)
	if err != nil {
		logger.Fatal().Err(err).Msg("fieldbus driver build failed")
	}

	wd := watchdog.New(cfg.Runtime.WatchdogTimeout)
	wd.Start()
	defer wd.Stop()

	sched := scheduler.New(scheduler.Config{
		Runtime:  &cfg.Runtime,
		Engine:   eng,
		Driver:   driver,
		Watchdog: wd,
		Metrics:  metrics.New(metricsConfig(cfg.Runtime.Metrics)),
		Faults:   faultlog.New(faultlog.DefaultDepth, faultlog.DefaultDepth),
		Logger:   &logger,
	})

	if err := sched.Initialize(); err != nil {
		logger.Fatal().Err(err).Msg("scheduler initialize failed")
	}
	if err := sched.Start(); err != nil {
		logger.Fatal().Err(err).Msg("scheduler start failed")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	go func() {
		for sig := range sigCh {
			switch sig {
			case syscall.SIGHUP:
				logger.Info().Msg("reload requested")
				data, err := os.ReadFile(modulePath)
				if err != nil {
					logger.Error().Err(err).Msg("reload: read module failed")
					continue
				}
				sched.RequestReload(data)
			default:
				logger.Info().Str("signal", sig.String()).Msg("shutdown requested")
				sched.RequestShutdown()
			}
		}
	}()

	traces := sched.Traces()
	go func() {
		for entries := range traces {
			for _, e := range entries {
				logger.Debug().Bytes("trace", e.Data).Msg("module trace")
			}
		}
	}()

	if err := sched.Run(); err != nil {
		logger.Fatal().Err(err).Msg("scheduler run failed")
	}
}

func metricsConfig(cfg config.MetricsConfig) metrics.Config {
	mc := metrics.DefaultConfig()
	if cfg.HistogramSize > 0 {
		mc.HistogramSize = cfg.HistogramSize
	}
	if len(cfg.Percentiles) > 0 {
		mc.Percentiles = cfg.Percentiles
	}
	return mc
}

func buildDriver(cfg config.FieldbusConfig) (fieldbus.Driver, error) {
	switch cfg.Driver {
	case "", "simulated":
		return fieldbus.NewSimulated(nil), nil
	case "request_response":
		rr := cfg.RequestResponse
		return fieldbus.NewRequestResponse(fieldbus.RequestResponseConfig{
			ServerAddress:      rr.ServerAddress,
			UnitID:             rr.UnitID,
			Timeout:            time.Duration(rr.TimeoutMs) * time.Millisecond,
			RetryAttempts:      rr.RetryAttempts,
			RetryDelay:         time.Duration(rr.RetryDelayMs) * time.Millisecond,
			ExponentialBackoff: rr.RetryBackoff == "exponential",
			InputCoilQty:       32,
			InputRegQty:        16,
		}), nil
	case "realtime":
		rt := cfg.Realtime
		transport := fieldbus.NewSimulatedTransport(nil, uint64(rt.DCSync0CycleUs)*1000)
		return fieldbus.NewRealtime(fieldbus.RealtimeConfig{
			Interface:         rt.Interface,
			ExpectedPeers:     rt.ExpectedPeers,
			DCEnabled:         rt.DCEnabled,
			DCSyncCycle:       time.Duration(rt.DCSync0CycleUs) * time.Microsecond,
			WkcErrorThreshold: rt.WkcErrorThreshold,
		}, transport), nil
	default:
		return nil, fmt.Errorf("unknown fieldbus driver %q", cfg.Driver)
	}
}
