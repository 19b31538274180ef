package audio

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu     sync.Mutex
	blocks [][]float32
}

func (s *recordingSink) WriteAudio(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks = append(s.blocks, PCM16ToFloat32(pcm))
	return nil
}

func (s *recordingSink) samples() []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []float32
	for _, b := range s.blocks {
		out = append(out, b...)
	}
	return out
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blocks)
}

// 1ms quanta at 8 kHz are 8 samples.
func newTestContext(sink Sink, opts ...PlaybackOption) *PlaybackContext {
	return NewPlaybackContext(PCM16Mono8K, sink, append([]PlaybackOption{WithQuantum(time.Millisecond)}, opts...)...)
}

func constant(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestPlaybackContext_BackToBack(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	pc := newTestContext(sink)

	var ended []int
	if _, err := pc.Schedule(constant(12, 0.25), 0, func() { ended = append(ended, 1) }); err != nil {
		t.Fatal(err)
	}
	if _, err := pc.Schedule(constant(4, 0.5), 12, func() { ended = append(ended, 2) }); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if err := pc.Render(); err != nil {
			t.Fatal(err)
		}
	}

	got := sink.samples()
	if len(got) != 16 {
		t.Fatalf("rendered %d samples, want 16", len(got))
	}
	for i, v := range got {
		want := float32(0.25)
		if i >= 12 {
			want = 0.5
		}
		if v != want {
			t.Errorf("sample %d = %v, want %v", i, v, want)
		}
	}
	if len(ended) != 2 || ended[0]+ended[1] != 3 {
		t.Errorf("ended = %v, want both sources", ended)
	}
	if pc.Position() != 16 {
		t.Errorf("Position = %d, want 16", pc.Position())
	}
	if pc.Active() != 0 {
		t.Errorf("Active = %d, want 0", pc.Active())
	}
}

func TestPlaybackContext_PastStartClampsToPosition(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	pc := newTestContext(sink)
	_ = pc.Render() // position 8

	if _, err := pc.Schedule(constant(8, 0.5), 2, nil); err != nil {
		t.Fatal(err)
	}
	_ = pc.Render()

	got := sink.samples()[8:]
	for i, v := range got {
		if v != 0.5 {
			t.Fatalf("sample %d = %v, want 0.5", i, v)
		}
	}
}

func TestPlaybackContext_StopSuppressesEnded(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	pc := newTestContext(sink)

	called := false
	src, err := pc.Schedule(constant(16, 0.5), 0, func() { called = true })
	if err != nil {
		t.Fatal(err)
	}
	_ = pc.Render()
	src.Stop()
	src.Stop()
	_ = pc.Render()
	_ = pc.Render()

	if called {
		t.Error("ended callback ran for a stopped source")
	}
	got := sink.samples()
	for i := 8; i < len(got); i++ {
		if got[i] != 0 {
			t.Fatalf("sample %d = %v after Stop, want silence", i, got[i])
		}
	}
}

func TestPlaybackContext_WithoutSilence(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	pc := newTestContext(sink, WithoutSilence())

	_ = pc.Render()
	if sink.count() != 0 {
		t.Fatalf("silent quantum was written")
	}
	if _, err := pc.Schedule(constant(4, 0.5), pc.Position(), nil); err != nil {
		t.Fatal(err)
	}
	_ = pc.Render()
	_ = pc.Render()
	if sink.count() != 1 {
		t.Errorf("writes = %d, want 1", sink.count())
	}
	if pc.Position() != 24 {
		t.Errorf("Position = %d, want 24", pc.Position())
	}
}

func TestPlaybackContext_Close(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	pc := newTestContext(sink)
	pc.Start()

	called := false
	if _, err := pc.Schedule(constant(8000, 0.5), 0, func() { called = true }); err != nil {
		t.Fatal(err)
	}
	if err := pc.Close(); err != nil {
		t.Fatal(err)
	}
	if err := pc.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
	if !pc.Closed() {
		t.Error("Closed = false")
	}
	if _, err := pc.Schedule(constant(1, 0), 0, nil); !errors.Is(err, ErrContextClosed) {
		t.Errorf("Schedule after Close = %v, want ErrContextClosed", err)
	}
	if err := pc.Render(); !errors.Is(err, ErrContextClosed) {
		t.Errorf("Render after Close = %v, want ErrContextClosed", err)
	}
	if called {
		t.Error("ended callback ran after Close")
	}
}

func TestSinkSpeaker(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	out, err := SinkSpeaker{Sink: sink, Quantum: time.Millisecond}.Open(PCM16Mono24K)
	if err != nil {
		t.Fatal(err)
	}
	defer out.Close()

	if out.Format() != PCM16Mono24K {
		t.Errorf("Format = %v", out.Format())
	}
	deadline := time.Now().Add(time.Second)
	for out.Position() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if out.Position() == 0 {
		t.Error("paced context never advanced")
	}
}
