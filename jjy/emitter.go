// Package jjy contains the emission engine: the real-time loop that
// keys the JJY minute frame onto the carrier driver, second by
// second, synchronized to a drift-compensated time source.
package jjy

import (
	"context"
	"log/slog"
	"time"

	"github.com/valerio/go-jjy/jjy/backend"
	"github.com/valerio/go-jjy/jjy/clock"
	"github.com/valerio/go-jjy/jjy/frame"
	"github.com/valerio/go-jjy/jjy/modulate"
	"github.com/valerio/go-jjy/jjy/timesource"
	"github.com/valerio/go-jjy/jjy/timing"
)

// State is the scheduler state. Unsynced holds the carrier off;
// Resyncing is a self-loop of Emitting during which emission
// continues on extrapolated time.
type State int

const (
	StateUnsynced State = iota
	StateSynced
	StateEmitting
	StateResyncing
)

func (s State) String() string {
	switch s {
	case StateUnsynced:
		return "unsynced"
	case StateSynced:
		return "synced"
	case StateEmitting:
		return "emitting"
	case StateResyncing:
		return "resyncing"
	default:
		return "unknown"
	}
}

// FetchFunc fetches a fresh UTC instant. It runs on its own goroutine
// and must honor the context deadline.
type FetchFunc func(ctx context.Context) (time.Time, error)

// EmitterConfig holds scheduler timing. Zero fields take defaults.
type EmitterConfig struct {
	Fetch FetchFunc

	// ResyncInterval is the steady-state period between fixes.
	ResyncInterval time.Duration

	// RetryInterval applies while unsynchronized, when there is no
	// signal to protect and syncing is urgent.
	RetryInterval time.Duration

	// FetchTimeout bounds one fetch. It stays under a second so a
	// straggling fetch resolves before the next symbol.
	FetchTimeout time.Duration
}

const (
	defaultResyncInterval = time.Hour
	defaultRetryInterval  = 5 * time.Second
	defaultFetchTimeout   = 800 * time.Millisecond
)

type resyncResult struct {
	utc time.Time
	err error
}

// Emitter is the emission scheduler. Not goroutine-safe: everything
// except the fetch runs on the Run loop's goroutine, and fetch
// results come back over a buffered channel.
type Emitter struct {
	config EmitterConfig
	clk    clock.Clock
	source *timesource.Source
	driver backend.Driver
	pacer  timing.Pacer

	state State

	minuteFrame frame.Frame
	hasFrame    bool
	frameMinute int64 // unix minute the cached frame was built for

	second    int
	symbol    frame.Symbol
	envelope  modulate.Envelope
	carrierOn bool

	fetchInFlight bool
	fetchEverRan  bool
	lastFetchTick time.Duration
	results       chan resyncResult
	pending       *resyncResult // finished fetch awaiting a symbol boundary
}

// NewEmitter wires a scheduler to an already-initialized driver. The
// driver is owned exclusively by the emitter until Run returns.
func NewEmitter(config EmitterConfig, clk clock.Clock, source *timesource.Source, driver backend.Driver, pacer timing.Pacer) *Emitter {
	if config.ResyncInterval <= 0 {
		config.ResyncInterval = defaultResyncInterval
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = defaultRetryInterval
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = defaultFetchTimeout
	}
	return &Emitter{
		config:  config,
		clk:     clk,
		source:  source,
		driver:  driver,
		pacer:   pacer,
		state:   StateUnsynced,
		second:  -1,
		results: make(chan resyncResult, 1),
	}
}

// State returns the current scheduler state.
func (e *Emitter) State() State {
	return e.state
}

// Run drives the loop until ctx is canceled. On exit the carrier is
// forced off; the caller cleans up the driver.
func (e *Emitter) Run(ctx context.Context) error {
	defer e.pacer.Stop()
	defer e.silence()

	slog.Info("Emission scheduler started",
		"resync_interval", e.config.ResyncInterval,
		"retry_interval", e.config.RetryInterval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Emission scheduler stopping")
			return ctx.Err()
		default:
		}
		e.tick()
		e.pacer.WaitForNextTick()
	}
}

// tick is one pass of the loop: collect any finished resync, start
// one if due, then derive the carrier gate for this instant. Exposed
// to the package tests, which drive it under a manual clock.
func (e *Emitter) tick() {
	e.collectResyncResult()
	e.maybeStartFetch()

	if !e.source.Synced() {
		// Nothing is on air yet: a first fix applies immediately.
		e.applyPendingResync()
	}

	now, err := e.source.Now()
	if err != nil {
		// Never synchronized: no signal is better than a wrong one.
		e.state = StateUnsynced
		e.carrierOn = false
		e.updateDriver(backend.Status{
			State:  e.state.String(),
			Synced: false,
		})
		return
	}
	if e.state == StateUnsynced {
		e.state = StateSynced
		slog.Info("Time source synchronized, starting emission")
	}

	second := now.Second()
	if second != e.second && e.pending != nil {
		// The in-flight symbol has run to completion: fold the fix in
		// before selecting the next symbol, so an anchor step can
		// never move an edge a receiver is already timing.
		e.applyPendingResync()
		now, _ = e.source.Now()
		second = now.Second()
	}
	offset := time.Duration(now.Nanosecond())

	// Frames are immutable for the minute they govern. Rebuilding on
	// the minute key (not on second==0) keeps the second-0 symbol
	// atomic with the rollover even if ticks were missed.
	minute := now.Unix() / 60
	if !e.hasFrame || minute != e.frameMinute {
		e.minuteFrame = frame.Encode(frame.TimePointOf(now))
		e.hasFrame = true
		e.frameMinute = minute
		slog.Debug("Minute frame rebuilt",
			"time", now.Format("15:04"),
			"frame", e.minuteFrame.String())
	}

	if second != e.second {
		e.second = second
		e.symbol = e.minuteFrame[second]
		e.envelope = modulate.For(e.symbol)
		if e.state == StateSynced {
			e.state = StateEmitting
		}
		slog.Debug("Symbol start",
			"second", second,
			"symbol", e.symbol.String(),
			"high_for", e.envelope.HighFor)
	}

	e.carrierOn = e.envelope.On(offset)

	st := e.source.State()
	e.updateDriver(backend.Status{
		State:     e.state.String(),
		CarrierOn: e.carrierOn,
		Synced:    true,
		Now:       now,
		Second:    second,
		Offset:    offset,
		Frame:     e.minuteFrame,
		Syncs:     st.Syncs,
		Failures:  st.Failures,
		DriftPPM:  st.DriftPPM,
	})
}

// collectResyncResult drains a finished fetch into the pending slot.
// Application waits for a symbol boundary (applyPendingResync).
func (e *Emitter) collectResyncResult() {
	select {
	case r := <-e.results:
		e.fetchInFlight = false
		e.pending = &r
	default:
	}
}

// applyPendingResync folds the buffered fetch outcome into the time
// source. Failures are absorbed: emission continues on extrapolated
// time.
func (e *Emitter) applyPendingResync() {
	if e.pending == nil {
		return
	}
	r := *e.pending
	e.pending = nil
	if e.state == StateResyncing {
		e.state = StateEmitting
	}
	if err := e.source.Resync(r.utc, r.err); err != nil {
		slog.Warn("Resync failed, continuing on extrapolated time", "error", err)
		return
	}
	st := e.source.State()
	slog.Info("Resynchronized",
		"utc", st.LastSyncUTC.Format(time.RFC3339),
		"syncs", st.Syncs,
		"drift_ppm", st.DriftPPM)
}

// maybeStartFetch launches a fetch when one is due. While emitting,
// the launch is deferred off marker seconds so a fix never lands
// around a position marker's critical transition.
func (e *Emitter) maybeStartFetch() {
	if e.fetchInFlight || e.pending != nil || e.config.Fetch == nil {
		return
	}

	tick := e.clk.Now()
	if e.fetchEverRan {
		interval := e.config.ResyncInterval
		if !e.source.Synced() {
			interval = e.config.RetryInterval
		}
		if tick-e.lastFetchTick < interval {
			return
		}
	}
	if e.state == StateEmitting && frame.IsMarkerSecond(e.second) {
		return
	}

	e.fetchInFlight = true
	e.fetchEverRan = true
	e.lastFetchTick = tick
	if e.state == StateEmitting {
		e.state = StateResyncing
	}

	timeout := e.config.FetchTimeout
	fetch := e.config.Fetch
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		utc, err := fetch(ctx)
		if err != nil && ctx.Err() != nil {
			err = timesource.ErrResyncTimeout
		}
		e.results <- resyncResult{utc: utc, err: err}
	}()
}

// silence forces the carrier off, e.g. on shutdown.
func (e *Emitter) silence() {
	e.carrierOn = false
	e.updateDriver(backend.Status{
		State:  e.state.String(),
		Synced: e.source.Synced(),
	})
}

func (e *Emitter) updateDriver(status backend.Status) {
	if err := e.driver.Update(status); err != nil {
		slog.Error("Driver update failed", "error", err)
	}
}
