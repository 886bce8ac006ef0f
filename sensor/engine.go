// sensor/engine.go
// Package sensor turns periodic counter and fan-out snapshots into classified
// events. One Engine samples one interface from a single goroutine.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"botradar/counters"
	"botradar/fanout"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

var (
	// ErrTerminated is returned by Tick once the monitored interface is lost.
	ErrTerminated = errors.New("sensor terminated")
	// ErrNotRunning is returned by Tick before Initialize or after termination.
	ErrNotRunning = errors.New("sensor not running")
)

// CounterSource supplies cumulative packet counters for an interface.
type CounterSource interface {
	Sample(ctx context.Context, iface string) (counters.Snapshot, error)
}

// FanoutSource supplies UDP fan-out. It never fails; it returns zeros instead.
type FanoutSource interface {
	Sample(ctx context.Context) fanout.Snapshot
}

// State is the lifecycle position of an Engine.
type State int

const (
	StateInit State = iota
	StateRunning
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config is what an Engine samples and how it judges the result.
type Config struct {
	Interface  string
	Interval   time.Duration
	Thresholds Thresholds
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock used for the interval wait and timestamps.
func WithClock(clk clock.Clock) Option {
	return func(e *Engine) { e.clock = clk }
}

// WithLogger sets the diagnostic logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// Engine drives the sample, evaluate, emit cycle.
type Engine struct {
	cfg      Config
	counters CounterSource
	fanout   FanoutSource
	sink     EventSink
	clock    clock.Clock
	log      *zap.Logger

	state    State
	baseline counters.Snapshot // previous tick's counters, owned by the loop
}

// New returns an engine in StateInit.
func New(cfg Config, cs CounterSource, fs FanoutSource, sink EventSink, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		counters: cs,
		fanout:   fs,
		sink:     sink,
		clock:    clock.New(),
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.fanout == nil {
		e.fanout = fanout.Disabled{}
	}
	return e
}

// State reports the current lifecycle state.
func (e *Engine) State() State { return e.state }

// Initialize takes the first baseline. An error here means the interface is
// missing or the counter table is unreadable; the caller decides how to exit.
func (e *Engine) Initialize(ctx context.Context) error {
	if e.state != StateInit {
		return fmt.Errorf("initialize: engine is %s", e.state)
	}

	snap, err := e.counters.Sample(ctx, e.cfg.Interface)
	if err != nil {
		return fmt.Errorf("initialize sensor on %q: %w", e.cfg.Interface, err)
	}
	e.baseline = snap
	e.state = StateRunning

	e.emit(Event{
		Time:      e.clock.Now(),
		Kind:      KindStarted,
		Severity:  SeverityInfo,
		Message:   fmt.Sprintf("Starting botradar on interface %s", e.cfg.Interface),
		Interface: e.cfg.Interface,
		Settings:  &Settings{Interval: e.cfg.Interval, Thresholds: e.cfg.Thresholds},
	})
	return nil
}

// Tick waits one interval, samples, evaluates and emits one event. It returns
// ctx.Err() when cancelled during the wait and wraps ErrTerminated when the
// counter source fails. Once sampling has begun the tick runs to completion.
func (e *Engine) Tick(ctx context.Context) error {
	if e.state != StateRunning {
		return fmt.Errorf("tick: %w (%s)", ErrNotRunning, e.state)
	}
	if err := e.wait(ctx); err != nil {
		return err
	}

	sctx := context.WithoutCancel(ctx)
	current, err := e.counters.Sample(sctx, e.cfg.Interface)
	if err != nil {
		e.state = StateTerminated
		e.emit(e.lostEvent(err))
		return fmt.Errorf("%w: %w", ErrTerminated, err)
	}

	ev := e.evaluate(current, e.fanout.Sample(sctx))
	e.emit(ev)
	e.baseline = current
	return nil
}

// Run ticks until once is set (after exactly one tick), the interface is lost
// or ctx is cancelled. Cancellation emits a final INFO event. Every one of
// these is a normal return.
func (e *Engine) Run(ctx context.Context, once bool) error {
	defer func() { e.state = StateTerminated }()

	for {
		err := e.Tick(ctx)
		switch {
		case err == nil:
		case errors.Is(err, ErrTerminated):
			return nil
		case ctx.Err() != nil && errors.Is(err, ctx.Err()):
			e.emitStopped()
			return nil
		default:
			return err
		}

		if once {
			return nil
		}
	}
}

func (e *Engine) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := e.clock.Timer(e.cfg.Interval)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (e *Engine) evaluate(current counters.Snapshot, fo fanout.Snapshot) Event {
	// Unsigned subtraction wraps, so the conversion yields the signed delta.
	rx := int64(current.RxPackets - e.baseline.RxPackets)
	tx := int64(current.TxPackets - e.baseline.TxPackets)
	pps := Rate(rx, tx, e.cfg.Interval)

	reasons := e.cfg.Thresholds.Evaluate(pps, fo)
	msg := fmt.Sprintf("Traffic sample on %s", e.cfg.Interface)
	if len(reasons) > 0 {
		msg = fmt.Sprintf("Potential high-volume or distributed activity detected on %s", e.cfg.Interface)
	}

	e.log.Debug("[tick] sampled",
		zap.Int64("rx_delta", rx),
		zap.Int64("tx_delta", tx),
		zap.Float64("pps", pps),
		zap.Int("alerts", len(reasons)),
	)

	return Event{
		Time:      e.clock.Now(),
		Kind:      KindSample,
		Severity:  severityFor(reasons),
		Message:   msg,
		Interface: e.cfg.Interface,
		Sample: &Sample{
			RxDelta:          rx,
			TxDelta:          tx,
			PacketsPerSecond: pps,
			Fanout:           fo,
			Reasons:          reasons,
		},
	}
}

// Rate returns combined packets per second over interval. A negative total
// (counter wrap or reset) counts as no traffic.
func Rate(rxDelta, txDelta int64, interval time.Duration) float64 {
	total := rxDelta + txDelta
	if total < 0 {
		total = 0
	}
	if interval <= 0 {
		return 0
	}
	return float64(total) / interval.Seconds()
}

func (e *Engine) lostEvent(err error) Event {
	msg := fmt.Sprintf("Interface %s disappeared from the counter table", e.cfg.Interface)
	if !errors.Is(err, counters.ErrInterfaceNotFound) {
		msg = fmt.Sprintf("Counter source for %s became unreadable: %v", e.cfg.Interface, err)
	}
	return Event{
		Time:      e.clock.Now(),
		Kind:      KindInterfaceLost,
		Severity:  SeverityError,
		Message:   msg,
		Interface: e.cfg.Interface,
	}
}

func (e *Engine) emitStopped() {
	e.state = StateTerminated
	e.emit(Event{
		Time:      e.clock.Now(),
		Kind:      KindStopped,
		Severity:  SeverityInfo,
		Message:   "botradar stopped by user",
		Interface: e.cfg.Interface,
	})
}

func (e *Engine) emit(ev Event) {
	if e.sink == nil {
		return
	}
	if err := e.sink.Emit(ev); err != nil {
		e.log.Warn("[sink] event write failed", zap.Stringer("kind", ev.Kind), zap.Error(err))
	}
}
