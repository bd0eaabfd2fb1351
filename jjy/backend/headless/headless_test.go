package headless_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valerio/go-jjy/jjy/backend"
	"github.com/valerio/go-jjy/jjy/backend/headless"
	"github.com/valerio/go-jjy/jjy/frame"
)

func syncedStatus(second int, on bool) backend.Status {
	return backend.Status{
		State:     "emitting",
		CarrierOn: on,
		Synced:    true,
		Now:       time.Date(2024, 1, 1, 9, 0, second, 0, time.UTC),
		Second:    second,
		Frame:     frame.Encode(frame.TimePoint{Year: 2024, YearDay: 1, Hour: 9}),
	}
}

func TestHeadlessDriver(t *testing.T) {
	t.Run("quit after max seconds", func(t *testing.T) {
		quits := 0
		h := headless.New(3, headless.SnapshotConfig{})
		require.NoError(t, h.Init(backend.Config{
			CarrierHz: 40000,
			Callbacks: backend.Callbacks{OnQuit: func() { quits++ }},
		}))

		for second := 0; second < 5; second++ {
			assert.NoError(t, h.Update(syncedStatus(second, true)))
			if second < 2 {
				assert.Zero(t, quits, "must not quit before reaching max seconds")
			}
		}
		assert.Equal(t, 1, quits, "quit requested exactly once")
		assert.NoError(t, h.Cleanup())
	})

	t.Run("records carrier transitions", func(t *testing.T) {
		h := headless.New(0, headless.SnapshotConfig{})
		require.NoError(t, h.Init(backend.Config{CarrierHz: 40000}))

		require.NoError(t, h.Update(syncedStatus(0, true)))
		require.NoError(t, h.Update(syncedStatus(0, true))) // no edge, no record
		require.NoError(t, h.Update(syncedStatus(0, false)))

		trans := h.Transitions()
		require.Len(t, trans, 2)
		assert.True(t, trans[0].On)
		assert.False(t, trans[1].On)

		require.NoError(t, h.Update(syncedStatus(1, true)))
		assert.True(t, h.CarrierOn())
	})

	t.Run("saves snapshots", func(t *testing.T) {
		dir := t.TempDir()
		snap, err := headless.CreateSnapshotConfig(2, dir)
		require.NoError(t, err)

		h := headless.New(0, snap)
		require.NoError(t, h.Init(backend.Config{CarrierHz: 40000}))

		for second := 0; second < 4; second++ {
			require.NoError(t, h.Update(syncedStatus(second, true)))
		}

		files, err := filepath.Glob(filepath.Join(dir, "frame_*.txt"))
		require.NoError(t, err)
		assert.Len(t, files, 2, "one snapshot every two seconds")

		data, err := os.ReadFile(files[0])
		require.NoError(t, err)
		assert.Contains(t, string(data), "JJY minute frame snapshot")
		assert.Contains(t, string(data), "M")
	})
}
