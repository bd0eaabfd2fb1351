package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli"

	"github.com/valerio/go-jjy/jjy"
	"github.com/valerio/go-jjy/jjy/backend"
	"github.com/valerio/go-jjy/jjy/backend/gpio"
	"github.com/valerio/go-jjy/jjy/backend/headless"
	"github.com/valerio/go-jjy/jjy/backend/terminal"
	"github.com/valerio/go-jjy/jjy/clock"
	"github.com/valerio/go-jjy/jjy/ntp"
	"github.com/valerio/go-jjy/jjy/timesource"
	"github.com/valerio/go-jjy/jjy/timing"
)

func main() {
	app := cli.NewApp()
	app.Name = "jjytx"
	app.Description = "A JJY longwave time-signal transmitter"
	app.Usage = "jjytx [options]"
	app.Version = "1.0.0"
	app.Flags = []cli.Flag{
		cli.IntFlag{
			Name:  "freq",
			Usage: "Carrier frequency in Hz (40000 or 60000)",
			Value: 40000,
		},
		cli.StringFlag{
			Name:  "ntp-host",
			Usage: "NTP server (host:port)",
			Value: "pool.ntp.org:123",
		},
		cli.DurationFlag{
			Name:  "resync-interval",
			Usage: "Time between NTP resyncs while emitting",
			Value: time.Hour,
		},
		cli.StringFlag{
			Name:  "chip",
			Usage: "GPIO chip for the envelope control lines",
			Value: "gpiochip0",
		},
		cli.IntSliceFlag{
			Name:  "ctrl-line",
			Usage: "GPIO line offset mirroring the envelope (repeatable, default 3)",
		},
		cli.IntFlag{
			Name:  "pwmchip",
			Usage: "sysfs PWM chip index generating the carrier (-1 to disable)",
			Value: 0,
		},
		cli.IntFlag{
			Name:  "pwm-channel",
			Usage: "PWM channel on the selected chip",
			Value: 0,
		},
		cli.BoolFlag{
			Name:  "terminal",
			Usage: "Run the terminal monitor instead of driving hardware",
		},
		cli.BoolFlag{
			Name:  "headless",
			Usage: "Run without any output hardware (for testing and batch runs)",
		},
		cli.IntFlag{
			Name:  "seconds",
			Usage: "Number of seconds to emit in headless mode (required for headless)",
			Value: 0,
		},
		cli.IntFlag{
			Name:  "snapshot-interval",
			Usage: "Save frame snapshots every N seconds in headless mode (0 = disabled)",
			Value: 0,
		},
		cli.StringFlag{
			Name:  "snapshot-dir",
			Usage: "Directory to save frame snapshots (default: temp directory)",
		},
		cli.BoolFlag{
			Name:  "debug",
			Usage: "Enable debug logging",
		},
	}
	app.Action = runTransmitter

	err := app.Run(os.Args)
	if err != nil {
		slog.Error("Error running transmitter", "error", err)
		os.Exit(1)
	}
}

func runTransmitter(c *cli.Context) error {
	freq := c.Int("freq")
	if freq != 40000 && freq != 60000 {
		return fmt.Errorf("unsupported carrier frequency %d Hz (JJY uses 40000 or 60000)", freq)
	}

	if c.Bool("debug") || c.Bool("headless") {
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
		slog.SetDefault(slog.New(handler))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ctrlLines := c.IntSlice("ctrl-line")
	if len(ctrlLines) == 0 {
		ctrlLines = []int{3}
	}

	config := backend.Config{
		CarrierHz:  freq,
		Chip:       c.String("chip"),
		CtrlLines:  ctrlLines,
		Consumer:   "jjytx",
		PWMChip:    c.Int("pwmchip"),
		PWMChannel: c.Int("pwm-channel"),
		Callbacks:  backend.Callbacks{OnQuit: cancel},
	}

	var driver backend.Driver
	switch {
	case c.Bool("headless"):
		seconds := c.Int("seconds")
		if seconds <= 0 {
			return errors.New("headless mode requires --seconds with a positive value")
		}
		snapshotConfig, err := headless.CreateSnapshotConfig(c.Int("snapshot-interval"), c.String("snapshot-dir"))
		if err != nil {
			return err
		}
		driver = headless.New(seconds, snapshotConfig)
	case c.Bool("terminal"):
		driver = terminal.New()
	default:
		driver = gpio.New()
	}

	if err := driver.Init(config); err != nil {
		return err
	}
	defer func() {
		if err := driver.Cleanup(); err != nil {
			slog.Error("Driver cleanup failed", "error", err)
		}
	}()

	clk := clock.NewSystem()
	source := timesource.New(clk)
	host := c.String("ntp-host")

	emitter := jjy.NewEmitter(jjy.EmitterConfig{
		Fetch: func(ctx context.Context) (time.Time, error) {
			return ntp.Fetch(ctx, host)
		},
		ResyncInterval: c.Duration("resync-interval"),
	}, clk, source, driver, timing.NewTickerPacer(timing.DefaultTickInterval))

	slog.Info("Starting JJY emission",
		"carrier_hz", freq,
		"ntp_host", host,
		"zone", timesource.JST.String())

	err := emitter.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
