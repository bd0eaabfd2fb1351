package clock

import (
	"testing"
	"time"
)

func TestManual(t *testing.T) {
	m := NewManual()
	if m.Now() != 0 {
		t.Errorf("fresh manual clock reads %v; want 0", m.Now())
	}

	m.Advance(250 * time.Millisecond)
	m.Advance(750 * time.Millisecond)
	if m.Now() != time.Second {
		t.Errorf("after advancing 1s, Now() = %v; want 1s", m.Now())
	}

	m.Set(500 * time.Millisecond)
	if m.Now() != time.Second {
		t.Errorf("Set must never move the clock backward; got %v", m.Now())
	}

	m.Set(2 * time.Second)
	if m.Now() != 2*time.Second {
		t.Errorf("Set forward failed; got %v", m.Now())
	}
}

func TestSystemMonotonic(t *testing.T) {
	s := NewSystem()
	a := s.Now()
	b := s.Now()
	if b < a {
		t.Errorf("system clock went backward: %v then %v", a, b)
	}
}
