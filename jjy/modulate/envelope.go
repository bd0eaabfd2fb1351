// Package modulate maps JJY symbols to the amplitude envelope keyed
// onto the carrier within each one-second window.
package modulate

import (
	"time"

	"github.com/valerio/go-jjy/jjy/frame"
)

// Symbol pulse widths: the carrier runs at full amplitude from the
// second boundary for the width, then drops to the low level for the
// rest of the second.
const (
	MarkWidth = 200 * time.Millisecond
	Bit1Width = 500 * time.Millisecond
	Bit0Width = 800 * time.Millisecond
)

// Envelope is the keying pattern for one second. The boundary is
// exact in this model; jitter tolerance (±10 ms) is budgeted entirely
// to the layer driving real hardware.
type Envelope struct {
	HighFor time.Duration
}

// For returns the envelope of a symbol.
func For(s frame.Symbol) Envelope {
	switch s {
	case frame.Mark:
		return Envelope{HighFor: MarkWidth}
	case frame.Bit1:
		return Envelope{HighFor: Bit1Width}
	default:
		return Envelope{HighFor: Bit0Width}
	}
}

// On reports whether the carrier is at full amplitude at the given
// offset into the second. Offsets at or past one second read as the
// low level; the next second starts a new envelope.
func (e Envelope) On(offset time.Duration) bool {
	return offset >= 0 && offset < e.HighFor
}
