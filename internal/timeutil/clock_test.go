package timeutil

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestRealClock(t *testing.T) {
	var c Clock = RealClock{}
	start := c.Now()
	select {
	case <-c.After(5 * time.Millisecond):
	case <-time.After(time.Second):
		t.Fatal("After did not fire")
	}
	if c.Since(start) < 5*time.Millisecond {
		t.Error("Since too small")
	}

	tk := c.NewTicker(time.Millisecond)
	defer tk.Stop()
	select {
	case <-tk.C():
	case <-time.After(time.Second):
		t.Fatal("ticker did not fire")
	}
}

func TestMockClockAfter(t *testing.T) {
	c := NewMockClock(epoch)
	ch := c.After(10 * time.Second)

	c.Advance(9 * time.Second)
	select {
	case <-ch:
		t.Fatal("fired early")
	default:
	}

	c.Advance(time.Second)
	select {
	case got := <-ch:
		if !got.Equal(epoch.Add(10 * time.Second)) {
			t.Errorf("fired at %v", got)
		}
	default:
		t.Fatal("did not fire at deadline")
	}

	if c.Since(epoch) != 10*time.Second {
		t.Errorf("Since = %v", c.Since(epoch))
	}
	select {
	case <-c.After(0):
	default:
		t.Error("After(0) should fire immediately")
	}
}

func TestMockClockTicker(t *testing.T) {
	c := NewMockClock(epoch)
	tk := c.NewTicker(40 * time.Millisecond)

	for i := 0; i < 3; i++ {
		c.Advance(40 * time.Millisecond)
		select {
		case <-tk.C():
		default:
			t.Fatalf("tick %d missing", i)
		}
	}

	c.Advance(10 * time.Millisecond)
	select {
	case <-tk.C():
		t.Fatal("ticked between periods")
	default:
	}

	tk.Stop()
	c.Advance(time.Second)
	select {
	case <-tk.C():
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestMockClockBlockUntil(t *testing.T) {
	c := NewMockClock(epoch)
	done := make(chan struct{})
	go func() {
		<-c.After(time.Second)
		close(done)
	}()

	c.BlockUntil(1)
	c.Advance(time.Second)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter not released")
	}
}
