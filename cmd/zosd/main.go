// Command zosd is the Zero OS daemon: the composition root wiring
// KernelInterior, SysLog, CommitLog, the commit Exchange, the Axiom
// Gateway, a HAL backend chosen by config, the Supervisor poll loop, and
// the metrics collector, then running until signaled — in the teacher's
// cmd/containerd daemon-process shape, minus the plugin registry (Zero OS
// has no plugin surface to register against).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/containerd/log"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/zeroos/zeroos/cmd/zosd/config"
	"github.com/zeroos/zeroos/core/axiom"
	"github.com/zeroos/zeroos/core/commit"
	"github.com/zeroos/zeroos/core/events"
	"github.com/zeroos/zeroos/core/hal"
	"github.com/zeroos/zeroos/core/hal/baremetal"
	"github.com/zeroos/zeroos/core/hal/qemuhal"
	"github.com/zeroos/zeroos/core/hal/simhal"
	"github.com/zeroos/zeroos/core/kernel"
	"github.com/zeroos/zeroos/core/metrics"
	"github.com/zeroos/zeroos/core/supervisor"
	"github.com/zeroos/zeroos/core/syslog"
)

func main() {
	app := &cli.App{
		Name:  "zosd",
		Usage: "Zero OS daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to zosd's TOML configuration",
				Value: "/etc/zeroos/config.toml",
			},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.L.WithError(err).Fatal("zosd: exiting")
	}
}

func run(cliCtx *cli.Context) error {
	// bootID tags every log line this process emits for the rest of its
	// life, so a reader correlating commit log entries against daemon
	// output across restarts can tell which boot produced which line.
	bootID := uuid.NewString()
	log.L = log.L.WithField("boot_id", bootID)

	cfg, err := config.Load(cliCtx.String("config"))
	if err != nil {
		log.L.WithError(err).Warn("zosd: no config file found, using defaults")
		cfg = config.Default()
	}

	h, err := buildHAL(cfg)
	if err != nil {
		return fmt.Errorf("zosd: construct HAL: %w", err)
	}

	commitLog, err := commit.Open(cfg.CommitLog.Path)
	if err != nil {
		return fmt.Errorf("zosd: open commit log: %w", err)
	}
	defer commitLog.Close()

	sysLog := syslog.New(cfg.SysLog.Capacity)
	exchange := events.NewExchange()
	defer exchange.Close()

	interior := kernel.New(h.NowMonotonicNs)
	gateway := axiom.New(interior, sysLog, commitLog, exchange, halClock{h})

	sup := supervisor.New(gateway, h)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if !cfg.Metrics.Disabled {
		collector := metrics.New()
		go collector.Run(ctx, exchange, func() int {
			return countLive(interior.ListProcesses())
		}, func() int {
			return len(interior.ListEndpoints())
		})
	}

	if simH, ok := h.(*simhal.HAL); ok {
		registerInitProgram(simH)
	}

	if _, err := sup.BootstrapInit(ctx, h, []byte("init")); err != nil {
		return fmt.Errorf("zosd: bootstrap init: %w", err)
	}

	log.L.Info("zosd: boot complete, entering supervisor loop")
	return sup.Run(ctx)
}

func countLive(procs []kernel.Process) int {
	n := 0
	for _, p := range procs {
		if p.State != kernel.StateZombie {
			n++
		}
	}
	return n
}

// halClock adapts hal.HAL to axiom.Clock.
type halClock struct{ h hal.HAL }

func (c halClock) NowNs() uint64 { return c.h.NowMonotonicNs() }

// registerInitProgram installs the minimal PID 1 policy loop simhal needs
// to let BootstrapInit's Spawn succeed. The spec leaves Init's concrete
// grant/kill policy to userspace; this stand-in only keeps the isolate
// alive and cooperatively yielding so the supervisor's poll loop and the
// bootstrap path can be exercised end to end.
func registerInitProgram(h *simhal.HAL) {
	h.RegisterProgram("init", func(rt *simhal.IsolateRuntime) {
		for {
			if _, ok := rt.RecvBytes(context.Background()); !ok {
				return
			}
			rt.Yield()
		}
	})
}

func buildHAL(cfg *config.Config) (hal.HAL, error) {
	switch cfg.HAL {
	case "", "sim":
		return simhal.New(), nil
	case "qemu":
		return qemuhal.New(qemuhal.Config{AgentSocketPath: cfg.Qemu.AgentSocketPath}), nil
	case "baremetal":
		return baremetal.New(), nil
	default:
		return nil, fmt.Errorf("unknown hal backend %q", cfg.HAL)
	}
}
