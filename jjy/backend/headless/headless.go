// Package headless implements the driver interface for automated
// runs and tests: no hardware is touched, carrier transitions are
// recorded, and the frame can be dumped to snapshot files.
package headless

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/valerio/go-jjy/jjy/backend"
)

// Transition is one recorded carrier gate change.
type Transition struct {
	On     bool
	Second int           // second-of-minute when it happened
	Offset time.Duration // offset into that second
	At     time.Time     // extrapolated JST time, zero if unsynced
}

var _ backend.Driver = (*Driver)(nil)

// Driver records emission instead of producing it.
type Driver struct {
	config         backend.Config
	maxSeconds     int
	snapshotConfig SnapshotConfig

	carrierOn   bool
	lastSecond  int
	secondCount int
	done        bool

	transitions []Transition
	symbols     []string // symbol per emitted second, for assertions
}

// SnapshotConfig holds configuration for frame snapshots.
type SnapshotConfig struct {
	Enabled   bool
	Interval  int    // save a snapshot every N seconds
	Directory string // directory to save snapshots
}

// New returns a driver that requests shutdown after maxSeconds of
// emission. maxSeconds <= 0 runs unbounded (tests drive ticks
// directly).
func New(maxSeconds int, snapshotConfig SnapshotConfig) *Driver {
	return &Driver{
		maxSeconds:     maxSeconds,
		snapshotConfig: snapshotConfig,
		lastSecond:     -1,
	}
}

func (h *Driver) Init(config backend.Config) error {
	h.config = config
	if h.maxSeconds > 0 {
		slog.Info("Running headless",
			"seconds", h.maxSeconds,
			"snapshot_interval", h.snapshotConfig.Interval,
			"snapshot_dir", h.snapshotConfig.Directory)
	}
	return nil
}

func (h *Driver) Update(status backend.Status) error {
	if status.CarrierOn != h.carrierOn {
		h.carrierOn = status.CarrierOn
		h.transitions = append(h.transitions, Transition{
			On:     status.CarrierOn,
			Second: status.Second,
			Offset: status.Offset,
			At:     status.Now,
		})
	}

	if !status.Synced || status.Second == h.lastSecond {
		return nil
	}
	h.lastSecond = status.Second
	h.secondCount++
	h.symbols = append(h.symbols, status.Frame[status.Second].String())

	if h.snapshotConfig.Enabled && h.secondCount%h.snapshotConfig.Interval == 0 {
		h.saveSnapshot(status)
	}

	if h.secondCount%10 == 0 {
		slog.Info("Emission progress", "seconds", h.secondCount, "total", h.maxSeconds)
	}

	if h.maxSeconds > 0 && h.secondCount >= h.maxSeconds && !h.done {
		h.done = true
		slog.Info("Headless run completed", "seconds", h.secondCount)
		if h.config.Callbacks.OnQuit != nil {
			h.config.Callbacks.OnQuit()
		}
	}
	return nil
}

func (h *Driver) Cleanup() error {
	return nil
}

// Transitions returns the recorded gate changes.
func (h *Driver) Transitions() []Transition {
	return h.transitions
}

// Symbols returns the symbol emitted for each completed second.
func (h *Driver) Symbols() []string {
	return h.symbols
}

// CarrierOn reports the current gate state.
func (h *Driver) CarrierOn() bool {
	return h.carrierOn
}

// CreateSnapshotConfig builds a snapshot configuration from CLI
// parameters, creating the directory if needed.
func CreateSnapshotConfig(interval int, directory string) (SnapshotConfig, error) {
	config := SnapshotConfig{
		Enabled:  interval > 0,
		Interval: interval,
	}
	if !config.Enabled {
		return config, nil
	}

	if directory == "" {
		tempDir, err := os.MkdirTemp("", "jjytx-snapshots-*")
		if err != nil {
			return config, fmt.Errorf("failed to create snapshot directory: %v", err)
		}
		config.Directory = tempDir
	} else {
		if err := os.MkdirAll(directory, 0o755); err != nil {
			return config, fmt.Errorf("failed to create snapshot directory: %v", err)
		}
		config.Directory = directory
	}
	return config, nil
}

// saveSnapshot writes a text dump of the current frame and position.
func (h *Driver) saveSnapshot(status backend.Status) {
	name := fmt.Sprintf("frame_%s.txt", status.Now.Format("20060102T150405"))
	path := filepath.Join(h.snapshotConfig.Directory, name)

	file, err := os.Create(path)
	if err != nil {
		slog.Error("Failed to save snapshot", "path", path, "error", err)
		return
	}
	defer file.Close()

	fmt.Fprintf(file, "# JJY minute frame snapshot\n")
	fmt.Fprintf(file, "# Time: %s  second: %02d  carrier: %v\n",
		status.Now.Format(time.RFC3339), status.Second, status.CarrierOn)
	fmt.Fprintf(file, "# Legend: M=marker 0=bit0 1=bit1\n")
	fmt.Fprintf(file, "%s\n", status.Frame)

	slog.Info("Saved frame snapshot", "path", path)
}
