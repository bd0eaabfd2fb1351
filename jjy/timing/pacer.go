// Package timing paces the emission loop. Envelope edges must land
// within ±10 ms of the true boundary, so the loop ticks well below
// that and derives all timing from the time source on each tick.
package timing

import "time"

// DefaultTickInterval keeps edge jitter to a fraction of the ±10 ms
// receiver tolerance.
const DefaultTickInterval = 2 * time.Millisecond

// Pacer controls the cadence of the emission loop.
type Pacer interface {
	// WaitForNextTick blocks until the next tick is due.
	WaitForNextTick()

	// Stop releases any underlying timer.
	Stop()
}

// TickerPacer uses time.Ticker for simple, consistent pacing. The
// loop never counts ticks, so occasional coalesced ticks only delay a
// single edge, they never accumulate.
type TickerPacer struct {
	ticker *time.Ticker
	ch     <-chan time.Time
}

func NewTickerPacer(interval time.Duration) *TickerPacer {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	ticker := time.NewTicker(interval)
	return &TickerPacer{
		ticker: ticker,
		ch:     ticker.C,
	}
}

func (t *TickerPacer) WaitForNextTick() {
	<-t.ch
}

func (t *TickerPacer) Stop() {
	t.ticker.Stop()
}

// NewNoOpPacer returns a pacer that never waits, for tests that step
// a manual clock instead.
func NewNoOpPacer() Pacer {
	return &noOpPacer{}
}

type noOpPacer struct{}

func (n *noOpPacer) WaitForNextTick() {}
func (n *noOpPacer) Stop()            {}
