// Package terminal implements a tcell monitor driver: no RF output,
// just a live view of the emission engine. Useful for checking frame
// contents and sync health before wiring real hardware.
package terminal

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/valerio/go-jjy/jjy/backend"
	"github.com/valerio/go-jjy/jjy/frame"
)

const redrawInterval = 100 * time.Millisecond

var _ backend.Driver = (*Driver)(nil)

// Driver implements backend.Driver on a tcell screen.
type Driver struct {
	config backend.Config
	screen tcell.Screen

	lastDraw time.Time
	last     backend.Status
}

func New() *Driver {
	return &Driver{}
}

func (t *Driver) Init(config backend.Config) error {
	t.config = config

	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("terminal: %v", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("terminal: %v", err)
	}
	t.screen = screen

	// Event pump: the scheduler owns the tick loop, so key handling
	// runs on its own goroutine and only signals quit.
	go t.pumpEvents()
	return nil
}

func (t *Driver) pumpEvents() {
	for {
		ev := t.screen.PollEvent()
		if ev == nil {
			return // screen finalized
		}
		switch ev := ev.(type) {
		case *tcell.EventKey:
			if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC ||
				(ev.Key() == tcell.KeyRune && ev.Rune() == 'q') {
				if t.config.Callbacks.OnQuit != nil {
					t.config.Callbacks.OnQuit()
				}
			}
		case *tcell.EventResize:
			t.screen.Sync()
		}
	}
}

func (t *Driver) Update(status backend.Status) error {
	now := time.Now()
	secondChanged := status.Second != t.last.Second || status.Synced != t.last.Synced
	carrierChanged := status.CarrierOn != t.last.CarrierOn
	if !secondChanged && !carrierChanged && now.Sub(t.lastDraw) < redrawInterval {
		return nil
	}
	t.lastDraw = now
	t.last = status

	t.draw(status)
	return nil
}

func (t *Driver) Cleanup() error {
	if t.screen != nil {
		t.screen.Fini()
		t.screen = nil
	}
	return nil
}

func (t *Driver) draw(status backend.Status) {
	s := t.screen
	s.Clear()

	header := tcell.StyleDefault.Bold(true)
	dim := tcell.StyleDefault.Foreground(tcell.ColorGray)
	on := tcell.StyleDefault.Foreground(tcell.ColorGreen).Bold(true)
	off := tcell.StyleDefault.Foreground(tcell.ColorRed)

	drawText(s, 0, 0, header, fmt.Sprintf("jjytx %d Hz", t.config.CarrierHz))
	drawText(s, 0, 1, tcell.StyleDefault, fmt.Sprintf("state: %s", status.State))

	if status.Synced {
		drawText(s, 0, 2, tcell.StyleDefault,
			fmt.Sprintf("JST %s  second %02d  +%03dms",
				status.Now.Format("2006-01-02 15:04:05"),
				status.Second,
				status.Offset.Milliseconds()))
	} else {
		drawText(s, 0, 2, dim, "waiting for first time fix")
	}

	carrierStyle, carrierText := off, "carrier ----"
	if status.CarrierOn {
		carrierStyle, carrierText = on, "carrier ████"
	}
	drawText(s, 0, 3, carrierStyle, carrierText)

	if status.Synced {
		// Frame laid out one decade per row, current second highlighted.
		for row := 0; row < 6; row++ {
			for col := 0; col < 10; col++ {
				i := row*10 + col
				style := tcell.StyleDefault
				if status.Frame[i] == frame.Mark {
					style = dim
				}
				if i == status.Second {
					style = style.Reverse(true)
				}
				drawText(s, col*2, 5+row, style, status.Frame[i].String())
			}
		}
		drawText(s, 0, 12, dim, fmt.Sprintf("syncs %d  failures %d  drift %+.1f ppm",
			status.Syncs, status.Failures, status.DriftPPM))
	}

	drawText(s, 0, 14, dim, "q / Esc to quit")
	s.Show()
}

func drawText(s tcell.Screen, x, y int, style tcell.Style, text string) {
	for i, r := range text {
		s.SetContent(x+i, y, r, nil, style)
	}
}
