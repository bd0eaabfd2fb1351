// Package timesource turns occasional NTP fixes into a continuous
// wall-clock reading. Between fixes the current time is extrapolated
// from the monotonic clock with a smoothed drift estimate, so the
// emission loop never sees a step in the middle of a minute.
package timesource

import (
	"errors"
	"fmt"
	"time"

	"github.com/valerio/go-jjy/jjy/clock"
	"github.com/valerio/go-jjy/jjy/frame"
)

// JST is the broadcast zone. The NTP collaborator yields UTC; the
// offset is applied exactly once, here.
var JST = time.FixedZone("JST", 9*60*60)

var (
	// ErrUnsynchronized means no fix has ever been applied. The
	// scheduler holds the carrier off while this is returned.
	ErrUnsynchronized = errors.New("timesource: never synchronized")

	// ErrResyncFailed wraps an explicit failure from the fetch
	// collaborator. Non-fatal: extrapolation continues.
	ErrResyncFailed = errors.New("timesource: resync failed")

	// ErrResyncTimeout marks a fetch that missed its deadline.
	ErrResyncTimeout = errors.New("timesource: resync timed out")

	// ErrInvalidTimePoint marks a fetched instant outside the
	// plausible range; it is rejected rather than applied.
	ErrInvalidTimePoint = errors.New("timesource: implausible instant")
)

// Fixes earlier than this are rejected outright.
var minPlausible = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// A fix further than this from the extrapolation is assumed bogus.
const maxPlausibleSkew = 365 * 24 * time.Hour

// Weight of the newest drift observation in the moving average.
const driftSmoothing = 0.3

// State is the synchronization anchor. It is owned by Source and
// mutated only by a successful Resync.
type State struct {
	LastSyncUTC  time.Time
	LastSyncTick time.Duration // monotonic reading at the last fix
	DriftPPM     float64       // smoothed local clock drift, parts per million
	Syncs        int
	Failures     int
}

// Source derives current local time from the last fix plus monotonic
// elapsed time. It is not goroutine-safe: the emission loop is the
// single reader and the single writer, with resync results handed to
// it over a channel.
type Source struct {
	clk    clock.Clock
	loc    *time.Location
	synced bool
	state  State
}

// New returns an unsynchronized source reporting time in JST.
func New(clk clock.Clock) *Source {
	return &Source{clk: clk, loc: JST}
}

// Synced reports whether at least one fix has been applied.
func (s *Source) Synced() bool {
	return s.synced
}

// State returns a copy of the current anchor, for logs and the
// terminal monitor.
func (s *Source) State() State {
	return s.state
}

// Now returns the extrapolated current time in the broadcast zone.
// It fails only with ErrUnsynchronized.
func (s *Source) Now() (time.Time, error) {
	if !s.synced {
		return time.Time{}, ErrUnsynchronized
	}
	return s.extrapolate(s.clk.Now()).In(s.loc), nil
}

// TimePoint is Now decomposed for the frame encoder.
func (s *Source) TimePoint() (frame.TimePoint, error) {
	t, err := s.Now()
	if err != nil {
		return frame.TimePoint{}, err
	}
	return frame.TimePointOf(t), nil
}

func (s *Source) extrapolate(tick time.Duration) time.Time {
	elapsed := tick - s.state.LastSyncTick
	skew := time.Duration(float64(elapsed) * s.state.DriftPPM / 1e6)
	return s.state.LastSyncUTC.Add(elapsed + skew)
}

// Resync applies the outcome of one fetch. A nil fetchErr with a
// plausible utc updates the anchor and folds the observed drift into
// the moving average; anything else leaves the state untouched and
// returns the reason. In-flight frames are unaffected either way:
// only future Now readings see the new anchor.
func (s *Source) Resync(utc time.Time, fetchErr error) error {
	if fetchErr != nil {
		s.state.Failures++
		if errors.Is(fetchErr, ErrResyncTimeout) {
			return fetchErr
		}
		return fmt.Errorf("%w: %w", ErrResyncFailed, fetchErr)
	}

	tick := s.clk.Now()
	utc = utc.UTC()

	if utc.Before(minPlausible) {
		s.state.Failures++
		return fmt.Errorf("%w: %v before %v", ErrInvalidTimePoint, utc, minPlausible)
	}

	if s.synced {
		predicted := s.extrapolate(tick)
		delta := utc.Sub(predicted)
		if delta > maxPlausibleSkew || delta < -maxPlausibleSkew {
			s.state.Failures++
			return fmt.Errorf("%w: %v off by %v", ErrInvalidTimePoint, utc, delta)
		}
		if elapsed := tick - s.state.LastSyncTick; elapsed > 0 {
			observed := delta.Seconds() / elapsed.Seconds() * 1e6
			s.state.DriftPPM += driftSmoothing * (observed - s.state.DriftPPM)
		}
	}

	s.state.LastSyncUTC = utc
	s.state.LastSyncTick = tick
	s.state.Syncs++
	s.synced = true
	return nil
}
