// Package backend defines the carrier driver interface. Drivers own
// the output hardware (or its simulation); the emission engine is the
// only caller, once per scheduler tick.
package backend

import (
	"time"

	"github.com/valerio/go-jjy/jjy/frame"
)

// Driver is a complete output platform for the JJY signal. Drivers
// are responsible for:
// - turning carrier gating into their specific output (GPIO lines and
//   a hardware PWM channel, a terminal display, a recording)
// - handling driver-specific features (snapshots, monitor UI, quit keys)
type Driver interface {
	// Init configures the driver. The carrier frequency is fixed
	// here; there is no mid-run retune.
	Init(config Config) error

	// Update is called on every scheduler tick with the current
	// emission status. Drivers must treat CarrierOn edge-triggered:
	// real hardware is touched only when the gate changes.
	Update(status Status) error

	// Cleanup releases hardware and restores the idle state.
	Cleanup() error
}

// Config holds driver configuration. Drivers may ignore fields that
// do not apply to them.
type Config struct {
	CarrierHz int // 40000 or 60000

	// GPIO control lines mirroring the envelope, for an external
	// carrier generator. Offsets on Chip.
	Chip      string
	CtrlLines []int
	Consumer  string // line consumer label shown in gpioinfo

	// Hardware PWM channel generating the carrier itself.
	// PWMChip < 0 disables the onboard carrier (control-line-only rigs).
	PWMChip    int
	PWMChannel int

	Callbacks Callbacks
}

// Callbacks allows drivers to communicate with the emission engine.
type Callbacks struct {
	OnQuit func() // driver requests shutdown (quit key, run complete)
}

// Status is one tick's view of the emission engine, passed to
// Update. When Synced is false only State and CarrierOn are
// meaningful (and CarrierOn is always false).
type Status struct {
	State     string
	CarrierOn bool
	Synced    bool

	Now    time.Time // extrapolated JST time
	Second int       // second-of-minute, index into Frame
	Offset time.Duration

	Frame frame.Frame

	Syncs    int
	Failures int
	DriftPPM float64
}
