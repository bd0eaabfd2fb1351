package timesource

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valerio/go-jjy/jjy/clock"
)

var testEpoch = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func TestNow_Unsynchronized(t *testing.T) {
	s := New(clock.NewManual())

	_, err := s.Now()
	assert.ErrorIs(t, err, ErrUnsynchronized)

	_, err = s.TimePoint()
	assert.ErrorIs(t, err, ErrUnsynchronized)
	assert.False(t, s.Synced())
}

func TestNow_ExtrapolatesFromLastFix(t *testing.T) {
	clk := clock.NewManual()
	s := New(clk)

	require.NoError(t, s.Resync(testEpoch, nil))

	clk.Advance(1500 * time.Millisecond)
	now, err := s.Now()
	require.NoError(t, err)

	assert.WithinDuration(t, testEpoch.Add(1500*time.Millisecond), now, 0)
	assert.Equal(t, "JST", now.Location().String(), "readings are in the broadcast zone")
	assert.Equal(t, 21, now.Hour(), "12:00 UTC is 21:00 JST")
}

func TestResync_FailureLeavesStateUntouched(t *testing.T) {
	clk := clock.NewManual()
	s := New(clk)
	require.NoError(t, s.Resync(testEpoch, nil))
	before := s.State()

	clk.Advance(time.Second)
	err := s.Resync(time.Time{}, errors.New("network unreachable"))
	assert.ErrorIs(t, err, ErrResyncFailed)

	after := s.State()
	assert.Equal(t, before.LastSyncUTC, after.LastSyncUTC)
	assert.Equal(t, before.LastSyncTick, after.LastSyncTick)
	assert.Equal(t, 1, after.Failures)
}

func TestResync_TimeoutPassesThrough(t *testing.T) {
	s := New(clock.NewManual())

	err := s.Resync(time.Time{}, ErrResyncTimeout)
	assert.ErrorIs(t, err, ErrResyncTimeout)
	assert.False(t, s.Synced(), "a timed-out first fetch must not synchronize")
}

func TestResync_RejectsImplausibleInstants(t *testing.T) {
	clk := clock.NewManual()
	s := New(clk)

	err := s.Resync(time.Date(1999, 12, 31, 23, 59, 59, 0, time.UTC), nil)
	assert.ErrorIs(t, err, ErrInvalidTimePoint)
	assert.False(t, s.Synced())

	require.NoError(t, s.Resync(testEpoch, nil))

	// A fix a decade away from the extrapolation is bogus and must
	// not be applied.
	clk.Advance(time.Minute)
	err = s.Resync(testEpoch.AddDate(10, 0, 0), nil)
	assert.ErrorIs(t, err, ErrInvalidTimePoint)

	now, nowErr := s.Now()
	require.NoError(t, nowErr)
	assert.Equal(t, 2024, now.Year(), "bad fix must not poison the anchor")
}

func TestResync_RepeatedFailuresKeepExtrapolating(t *testing.T) {
	clk := clock.NewManual()
	s := New(clk)
	require.NoError(t, s.Resync(testEpoch, nil))

	for i := 0; i < 5; i++ {
		clk.Advance(time.Minute)
		err := s.Resync(time.Time{}, errors.New("no route to host"))
		assert.ErrorIs(t, err, ErrResyncFailed)
	}

	assert.True(t, s.Synced(), "failures never revert to unsynchronized")
	assert.Equal(t, 5, s.State().Failures)

	now, err := s.Now()
	require.NoError(t, err)
	assert.WithinDuration(t, testEpoch.Add(5*time.Minute), now, 0)
}

func TestResync_SmoothsDriftEstimate(t *testing.T) {
	clk := clock.NewManual()
	s := New(clk)
	require.NoError(t, s.Resync(testEpoch, nil))
	assert.Zero(t, s.State().DriftPPM)

	// The local clock ran 100 s while truth advanced 100 s + 10 ms:
	// an observed drift of 100 ppm, folded in at the smoothing weight
	// rather than applied as a step.
	clk.Advance(100 * time.Second)
	require.NoError(t, s.Resync(testEpoch.Add(100*time.Second+10*time.Millisecond), nil))

	assert.InDelta(t, driftSmoothing*100, s.State().DriftPPM, 1e-6)

	// Future extrapolation now includes the drift correction.
	clk.Advance(100 * time.Second)
	now, err := s.Now()
	require.NoError(t, err)

	base := testEpoch.Add(100*time.Second + 10*time.Millisecond).Add(100 * time.Second)
	skew := time.Duration(100 * float64(time.Second) * s.State().DriftPPM / 1e6)
	assert.WithinDuration(t, base.Add(skew), now, time.Microsecond)
}

func TestResync_CountsSyncs(t *testing.T) {
	clk := clock.NewManual()
	s := New(clk)

	require.NoError(t, s.Resync(testEpoch, nil))
	clk.Advance(time.Hour)
	require.NoError(t, s.Resync(testEpoch.Add(time.Hour), nil))

	st := s.State()
	assert.Equal(t, 2, st.Syncs)
	assert.Zero(t, st.Failures)
}

func TestTimePoint_DecomposesInJST(t *testing.T) {
	clk := clock.NewManual()
	s := New(clk)

	// 2023-12-31 14:59:59 UTC is one second before New Year in JST.
	require.NoError(t, s.Resync(time.Date(2023, 12, 31, 14, 59, 59, 0, time.UTC), nil))

	tp, err := s.TimePoint()
	require.NoError(t, err)
	assert.Equal(t, 2023, tp.Year)
	assert.Equal(t, 365, tp.YearDay)
	assert.Equal(t, 23, tp.Hour)
	assert.Equal(t, 59, tp.Minute)
	assert.Equal(t, 59, tp.Second)

	// One second later the date (and year day count) must roll over.
	clk.Advance(time.Second)
	tp, err = s.TimePoint()
	require.NoError(t, err)
	assert.Equal(t, 2024, tp.Year)
	assert.Equal(t, 1, tp.YearDay)
	assert.Equal(t, 0, tp.Hour)
	assert.Equal(t, 0, tp.Minute)
	assert.Equal(t, 0, tp.Second)
}
