package clock

import (
	"testing"
	"time"
)

func TestFake_TickerFiresOnAdvance(t *testing.T) {
	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	f := NewFake(start)
	tk := f.NewTicker(time.Minute)
	defer tk.Stop()

	select {
	case <-tk.C():
		t.Fatalf("ticker fired before advance")
	default:
	}

	f.Advance(90 * time.Second)
	select {
	case got := <-tk.C():
		if !got.Equal(start.Add(time.Minute)) {
			t.Fatalf("tick at %s, want %s", got, start.Add(time.Minute))
		}
	default:
		t.Fatalf("expected a tick")
	}

	// Several periods at once collapse into a single pending tick.
	f.Advance(5 * time.Minute)
	<-tk.C()
	select {
	case <-tk.C():
		t.Fatalf("expected only one buffered tick")
	default:
	}
}

func TestFake_StoppedTickerIsSilent(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	tk := f.NewTicker(time.Second)
	tk.Stop()
	f.Advance(time.Minute)
	select {
	case <-tk.C():
		t.Fatalf("stopped ticker fired")
	default:
	}
}

func TestFake_After(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	c := f.After(10 * time.Second)

	f.Advance(5 * time.Second)
	select {
	case <-c:
		t.Fatalf("timer fired early")
	default:
	}

	f.Advance(5 * time.Second)
	select {
	case <-c:
	default:
		t.Fatalf("timer did not fire")
	}
}

func TestFake_BlockUntil(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	done := make(chan struct{})
	go func() {
		f.BlockUntil(1)
		close(done)
	}()

	f.NewTicker(time.Second)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("BlockUntil did not return")
	}
}
