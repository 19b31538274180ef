package session

import (
	"testing"
)

func (p *scheduler) cursor() int64 { return p.next }

// silence returns n samples of PCM16 silence.
func silence(n int) []byte { return make([]byte, n*2) }

func TestScheduler_BackToBackWithoutGaps(t *testing.T) {
	t.Parallel()

	out := &fakeOutput{}
	p := newScheduler(out, func(uint64) {})

	// 1.0 s arrives at 0, 0.5 s at 0.3 s, 0.25 s at 1.2 s (24 kHz clock).
	steps := []struct {
		now       int64
		samples   int
		wantStart int64
	}{
		{now: 0, samples: 24000, wantStart: 0},
		{now: 7200, samples: 12000, wantStart: 24000},
		{now: 28800, samples: 6000, wantStart: 36000},
	}
	var prev PlaybackUnit
	for i, st := range steps {
		out.setPosition(st.now)
		unit, err := p.enqueue(silence(st.samples))
		if err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
		if unit.Start != st.wantStart {
			t.Errorf("unit %d start = %d, want %d", i, unit.Start, st.wantStart)
		}
		if i > 0 && unit.Start != prev.End() {
			t.Errorf("unit %d starts at %d, previous ended at %d", i, unit.Start, prev.End())
		}
		prev = unit
	}
	if p.cursor() != 42000 {
		t.Errorf("cursor = %d, want 42000", p.cursor())
	}
	if !p.speaking() {
		t.Error("speaking = false with units in flight")
	}
}

func TestScheduler_LatePayloadStartsNow(t *testing.T) {
	t.Parallel()

	out := &fakeOutput{}
	p := newScheduler(out, func(uint64) {})

	if _, err := p.enqueue(silence(24000)); err != nil {
		t.Fatal(err)
	}
	out.setPosition(48000) // cursor (24000) is in the past
	unit, err := p.enqueue(silence(100))
	if err != nil {
		t.Fatal(err)
	}
	if unit.Start != 48000 {
		t.Errorf("start = %d, want 48000", unit.Start)
	}
}

func TestScheduler_InterruptStopsEverythingAndResetsCursor(t *testing.T) {
	t.Parallel()

	out := &fakeOutput{}
	p := newScheduler(out, func(uint64) {})

	for i := 0; i < 3; i++ {
		if _, err := p.enqueue(silence(12000)); err != nil {
			t.Fatal(err)
		}
	}
	out.setPosition(5000)
	p.interrupt()

	for i := 0; i < 3; i++ {
		if got := out.stoppedCount(i); got != 1 {
			t.Errorf("source %d stopped %d times, want 1", i, got)
		}
	}
	if p.speaking() {
		t.Error("speaking after interrupt")
	}
	if p.cursor() != 0 {
		t.Errorf("cursor = %d, want 0", p.cursor())
	}

	unit, err := p.enqueue(silence(100))
	if err != nil {
		t.Fatal(err)
	}
	if unit.Start != 5000 {
		t.Errorf("first unit after interrupt starts at %d, want live clock 5000", unit.Start)
	}
}

func TestScheduler_FinishTracksInFlightSet(t *testing.T) {
	t.Parallel()

	out := &fakeOutput{}
	var ended []uint64
	p := newScheduler(out, func(id uint64) { ended = append(ended, id) })

	a, _ := p.enqueue(silence(10))
	b, _ := p.enqueue(silence(10))

	out.finish(0)
	if len(ended) != 1 || ended[0] != a.ID {
		t.Fatalf("ended = %v, want [%d]", ended, a.ID)
	}
	p.finish(a.ID)
	if !p.speaking() {
		t.Error("not speaking with b in flight")
	}
	p.finish(b.ID)
	if p.speaking() {
		t.Error("speaking with nothing in flight")
	}
	p.finish(b.ID)
	if p.speaking() {
		t.Error("finishing an unknown unit changed the in-flight set")
	}
}

func TestScheduler_EmptyPayload(t *testing.T) {
	t.Parallel()

	p := newScheduler(&fakeOutput{}, func(uint64) {})
	if _, err := p.enqueue(nil); err == nil {
		t.Error("expected error for empty payload")
	}
	if p.cursor() != 0 {
		t.Errorf("cursor moved to %d", p.cursor())
	}
}
