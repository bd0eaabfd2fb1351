// Package gpio drives real output hardware: one or more GPIO control
// lines carrying the envelope, plus an optional hardware PWM channel
// generating the 40/60 kHz carrier. The PWM peripheral keeps
// oscillating on its own timer; this driver only gates it, so carrier
// purity does not depend on scheduler latency.
package gpio

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"github.com/valerio/go-jjy/jjy/backend"
)

var _ backend.Driver = (*Driver)(nil)

// Driver implements backend.Driver on the Linux GPIO character device
// and the sysfs PWM interface.
type Driver struct {
	config backend.Config

	lines *gpiocdev.Lines
	pwm   *pwmChannel

	carrierOn bool
}

func New() *Driver {
	return &Driver{}
}

func (d *Driver) Init(config backend.Config) error {
	d.config = config

	if len(config.CtrlLines) == 0 && config.PWMChip < 0 {
		return fmt.Errorf("gpio: no control lines and no PWM channel configured")
	}

	if len(config.CtrlLines) > 0 {
		consumer := config.Consumer
		if consumer == "" {
			consumer = "jjytx"
		}
		initial := make([]int, len(config.CtrlLines))
		lines, err := gpiocdev.RequestLines(config.Chip, config.CtrlLines,
			gpiocdev.AsOutput(initial...),
			gpiocdev.WithConsumer(consumer))
		if err != nil {
			return fmt.Errorf("gpio: request lines %v on %s: %w", config.CtrlLines, config.Chip, err)
		}
		d.lines = lines
	}

	if config.PWMChip >= 0 {
		pwm, err := openPWM(config.PWMChip, config.PWMChannel, config.CarrierHz)
		if err != nil {
			d.closeLines()
			return err
		}
		d.pwm = pwm
	}

	slog.Info("GPIO driver ready",
		"carrier_hz", config.CarrierHz,
		"chip", config.Chip,
		"ctrl_lines", config.CtrlLines,
		"pwm", config.PWMChip >= 0)
	return nil
}

func (d *Driver) Update(status backend.Status) error {
	if status.CarrierOn == d.carrierOn {
		return nil
	}
	d.carrierOn = status.CarrierOn

	if d.lines != nil {
		values := make([]int, len(d.config.CtrlLines))
		if status.CarrierOn {
			for i := range values {
				values[i] = 1
			}
		}
		if err := d.lines.SetValues(values); err != nil {
			return fmt.Errorf("gpio: set control lines: %w", err)
		}
	}

	if d.pwm != nil {
		if err := d.pwm.enable(status.CarrierOn); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) Cleanup() error {
	var firstErr error
	if d.pwm != nil {
		if err := d.pwm.close(); err != nil && firstErr == nil {
			firstErr = err
		}
		d.pwm = nil
	}
	if d.lines != nil {
		values := make([]int, len(d.config.CtrlLines))
		if err := d.lines.SetValues(values); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("gpio: idle control lines: %w", err)
		}
		d.closeLines()
	}
	return firstErr
}

func (d *Driver) closeLines() {
	if d.lines != nil {
		d.lines.Close()
		d.lines = nil
	}
}

// pwmChannel wraps one exported sysfs PWM channel. The kernel PWM
// framework has no third-party Go binding in common use, so this
// talks to /sys/class/pwm directly.
type pwmChannel struct {
	dir     string
	enabled bool
}

func openPWM(chip, channel, carrierHz int) (*pwmChannel, error) {
	chipDir := fmt.Sprintf("/sys/class/pwm/pwmchip%d", chip)
	dir := filepath.Join(chipDir, fmt.Sprintf("pwm%d", channel))

	if _, err := os.Stat(dir); err != nil {
		if err := os.WriteFile(filepath.Join(chipDir, "export"), []byte(fmt.Sprint(channel)), 0o644); err != nil {
			return nil, fmt.Errorf("gpio: export pwm%d on chip %d: %w", channel, chip, err)
		}
	}

	p := &pwmChannel{dir: dir}

	// Period rounds to whole nanoseconds: 25000 ns at 40 kHz, 16667 ns
	// at 60 kHz (59998.8 Hz, far inside receiver tolerance).
	period := time.Second.Nanoseconds() / int64(carrierHz)
	if err := p.writeAttr("period", period); err != nil {
		return nil, err
	}
	if err := p.writeAttr("duty_cycle", period/2); err != nil {
		return nil, err
	}
	if err := p.enable(false); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *pwmChannel) writeAttr(name string, value int64) error {
	path := filepath.Join(p.dir, name)
	if err := os.WriteFile(path, []byte(fmt.Sprint(value)), 0o644); err != nil {
		return fmt.Errorf("gpio: write %s: %w", path, err)
	}
	return nil
}

func (p *pwmChannel) enable(on bool) error {
	v := int64(0)
	if on {
		v = 1
	}
	if err := p.writeAttr("enable", v); err != nil {
		return err
	}
	p.enabled = on
	return nil
}

func (p *pwmChannel) close() error {
	return p.enable(false)
}
