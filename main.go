// main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"botradar/config"
	"botradar/counters"
	"botradar/fanout"
	"botradar/sensor"
	"botradar/sink"
	"botradar/ui"
	"botradar/utility"

	"github.com/cilium/ebpf/rlimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run wires the sensor and returns the process exit code: 1 only when the
// configuration is invalid or the sensor cannot start.
func run(args []string) int {
	cfg, err := config.Load(args)
	if errors.Is(err, config.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "[!] %v\n", err)
		return 1
	}

	// Handle graceful shutdown on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Pick {
		iface, err := ui.SelectNetworkInterface(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[!] %v\n", err)
			return 1
		}
		cfg.Interface = iface
	}

	// Diagnostics go to stderr, or to the dashboard's Diagnostics pane
	var dash *ui.Dashboard
	var diagOut zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
	if cfg.TUI {
		dash = ui.NewDashboard(cfg.Interface, cfg.Thresholds())
		diagOut = ui.ChannelWriter{Ch: dash.SysChan}
	}
	log := newLogger(cfg.LogLevel, diagOut)
	defer log.Sync()

	counterSrc, closeCounters, err := newCounterSource(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[!] counter source initialization failed: %v\n", err)
		return 1
	}
	defer closeCounters()

	// Events go to stdout unless the dashboard owns the terminal
	var out io.Writer = os.Stdout
	if dash != nil {
		out = nil
	}
	sinks := sink.Multi{sink.NewJSONLines(out, cfg.LogFile)}
	if dash != nil {
		sinks = append(sinks, dash)
	}

	var srv *http.Server
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		sinks = append(sinks, sink.NewPrometheus(reg, cfg.Interface))

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	}

	eng := sensor.New(cfg.Sensor(), counterSrc, newFanoutSource(cfg, log), sinks, sensor.WithLogger(log))
	if err := eng.Initialize(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "[!] %v\n", err)
		return 1
	}

	g, gctx := errgroup.WithContext(ctx)
	engineCtx, cancelEngine := context.WithCancel(gctx)
	defer cancelEngine()
	engineDone := make(chan struct{})

	// Run the sampling loop in its own goroutine
	g.Go(func() error {
		defer close(engineDone)
		log.Debug("[sensor] run loop starting", zap.String("interface", cfg.Interface))
		err := eng.Run(engineCtx, cfg.Once)
		if dash != nil {
			log.Info("[sensor] stopped, press q to quit")
		}
		return err
	})

	if srv != nil {
		g.Go(func() error {
			log.Info("[metrics] serving", zap.String("addr", cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("[metrics] server failed", zap.Error(err))
			}
			return nil
		})
		g.Go(func() error {
			<-engineDone
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if dash != nil {
		g.Go(func() error {
			// Quitting the dashboard counts as a user interrupt
			defer cancelEngine()
			return dash.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "[!] %v\n", err)
		return 1
	}
	return 0
}

func newLogger(level string, out zapcore.WriteSyncer) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout(time.TimeOnly)
	return zap.New(zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), out, lvl))
}

func newCounterSource(cfg *config.Config) (sensor.CounterSource, func(), error) {
	if cfg.CounterSource != config.CounterSourceXDP {
		return counters.NewGopsutil(nil), func() {}, nil
	}

	// Remove memory lock limits for eBPF
	if err := rlimit.RemoveMemlock(); err != nil {
		return nil, nil, fmt.Errorf("remove memlock limit: %w", err)
	}
	obj, err := utility.ResolveNextToExecutable(cfg.XDPObject)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve XDP object: %w", err)
	}
	x, err := counters.NewXDP(cfg.Interface, obj, nil)
	if err != nil {
		return nil, nil, err
	}
	return x, x.Close, nil
}

func newFanoutSource(cfg *config.Config, log *zap.Logger) sensor.FanoutSource {
	switch cfg.FanoutSource {
	case config.FanoutSourceSS:
		return fanout.NewSS(cfg.FanoutTimeout, log)
	case config.FanoutSourceNone:
		return fanout.Disabled{}
	default:
		return fanout.NewGopsutil(cfg.FanoutTimeout, log)
	}
}
