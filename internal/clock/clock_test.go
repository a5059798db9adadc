package clock

import (
	"testing"
	"time"
)

func TestManual(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewManual(start)

	c.Advance(7 * 24 * time.Hour)
	if got := c.Now(); !got.Equal(start.Add(168 * time.Hour)) {
		t.Fatalf("Now() = %v", got)
	}

	c.Set(start)
	if got := c.Now(); !got.Equal(start) {
		t.Fatalf("Now() after Set = %v", got)
	}
}

func TestMonotonic(t *testing.T) {
	mark := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	behind := NewManual(mark.Add(-time.Hour))
	if got := Monotonic(behind, mark); !got.Equal(mark) {
		t.Fatalf("clock behind mark: got %v, want %v", got, mark)
	}

	ahead := NewManual(mark.Add(time.Hour))
	if got := Monotonic(ahead, mark); !got.Equal(mark.Add(time.Hour)) {
		t.Fatalf("clock ahead of mark: got %v", got)
	}
}

func TestSystemIsUTC(t *testing.T) {
	if loc := (System{}).Now().Location(); loc != time.UTC {
		t.Fatalf("System.Now() location = %v", loc)
	}
}
