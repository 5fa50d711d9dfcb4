package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jordanhubbard/inanna/internal/companion"
	"github.com/jordanhubbard/inanna/internal/delivery"
	"github.com/jordanhubbard/inanna/internal/eventlog"
	"github.com/jordanhubbard/inanna/internal/logging"
	"github.com/jordanhubbard/inanna/internal/messagebus"
	"github.com/jordanhubbard/inanna/internal/metrics"
	"github.com/jordanhubbard/inanna/internal/telemetry"
	"github.com/jordanhubbard/inanna/pkg/config"
	"github.com/jordanhubbard/inanna/pkg/messages"
)

const httpShutdownTimeout = 5 * time.Second

func newRunCommand() *cobra.Command {
	var noConsole bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the companion core",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(noConsole)
		},
	}
	cmd.Flags().BoolVar(&noConsole, "no-console", false, "Do not read input from stdin")
	return cmd
}

func run(noConsole bool) error {
	cfg, found, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	var logs logging.Bootstrap
	logMgr, err := logs.Init(logging.Options{Level: cfg.General.LogLevel, File: cfg.General.LogFile})
	if err != nil {
		log.Printf("[Main] Warning: log file unavailable: %v", err)
	}
	defer logs.Close()
	if !found {
		log.Printf("[Main] %s not found, using defaults", configPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.InitTelemetry(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.Endpoint, version)
		if err != nil {
			log.Printf("[Main] Warning: failed to initialize telemetry: %v", err)
		} else {
			defer func() {
				if err := shutdownTelemetry(context.Background()); err != nil {
					log.Printf("[Main] Error shutting down telemetry: %v", err)
				}
			}()
		}
	}
	instruments, err := telemetry.NewInstruments()
	if err != nil {
		log.Printf("[Main] Warning: telemetry instruments unavailable: %v", err)
		instruments = nil
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.NewMetrics()
	}

	collab := companion.DefaultRegistry().Build(cfg)
	sinks := delivery.NewMultiSink(delivery.SessionFilter{
		Sink:  delivery.NewWriterSink(os.Stdout, "Inanna"),
		Match: func(sessionID string) bool { return sessionID == messages.ConsoleSession },
	})
	collab.Sink = sinks

	if cfg.Redis.Enabled {
		rs, err := delivery.NewRedisSink(ctx, cfg.Redis.URL, cfg.Redis.ResponsePrefix)
		if err != nil {
			log.Printf("[Main] Warning: Redis delivery disabled: %v", err)
		} else {
			defer rs.Close()
			sinks.Add(rs)
		}
	}

	core, err := companion.New(cfg, collab, companion.WithMetrics(m), companion.WithInstruments(instruments))
	if err != nil {
		return err
	}

	var checks []healthCheck
	if cfg.NATS.Enabled {
		if bus := attachNATS(cfg, core, sinks, collab.Events); bus != nil {
			defer func() {
				if err := bus.Close(); err != nil {
					log.Printf("[Main] Error closing NATS: %v", err)
				}
			}()
			checks = append(checks, healthCheck{name: "nats", probe: bus.Health})
		}
	}

	if cfg.Metrics.Enabled {
		srv := newHTTPServer(cfg.Metrics.Addr, core, logMgr, checks...)
		go func() {
			log.Printf("[Main] Metrics listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("[Main] Error: metrics server: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// Shutdown goes through core.Stop so queued envelopes are drained
	// before the loops exit.
	if err := core.Start(context.Background()); err != nil {
		return err
	}

	if cfg.HotReload.Enabled && found {
		w, err := config.NewWatcher(configPath, cfg.HotReload.Debounce, func(next *config.Config) {
			if err := next.Validate(); err != nil {
				log.Printf("[Main] Warning: ignoring reloaded configuration: %v", err)
				return
			}
			logMgr.SetLevel(next.General.LogLevel)
			n := core.Reconfigure(next)
			log.Printf("[Main] Configuration reloaded, %d jobs scheduled", n)
		})
		if err != nil {
			log.Printf("[Main] Warning: hot reload disabled: %v", err)
		} else if err := w.Start(ctx); err != nil {
			log.Printf("[Main] Warning: hot reload disabled: %v", err)
		} else {
			defer w.Stop()
		}
	}

	if !noConsole {
		if err := core.Welcome(ctx, messages.ConsoleSession, messages.ConsoleOrigin); err != nil {
			log.Printf("[Main] Warning: welcome not delivered: %v", err)
		}
		go readConsole(os.Stdin, core, stop)
	}

	<-ctx.Done()
	log.Printf("[Main] Shutting down")
	core.Stop()
	return nil
}

// attachNATS connects the bus, starts the inbound bridge and mirrors
// responses and events onto it. It returns nil when NATS is unavailable.
func attachNATS(cfg *config.Config, core *companion.Core, sinks *delivery.MultiSink, events companion.EventLog) *messagebus.NatsMessageBus {
	bus, err := messagebus.NewNatsMessageBus(messagebus.Config{
		URL:           cfg.NATS.URL,
		SubjectPrefix: cfg.NATS.SubjectPrefix,
		Timeout:       cfg.NATS.Timeout,
	})
	if err != nil {
		log.Printf("[Main] Warning: NATS bridge disabled: %v", err)
		return nil
	}

	bridge := messagebus.NewBridge(bus, core)
	bridge.LimitSessions(cfg.NATS.MaxSessions, cfg.NATS.SessionTTL)
	if err := bridge.Start(); err != nil {
		log.Printf("[Main] Warning: NATS bridge disabled: %v", err)
		_ = bus.Close()
		return nil
	}
	sinks.Add(bridge)
	if el, ok := events.(*eventlog.Log); ok {
		el.AddMirror(bridge)
	}
	return bus
}
