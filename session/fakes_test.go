package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/room4-2/livevoice/audio"
	"github.com/room4-2/livevoice/live"
)

// fakeOutput is an Output whose clock and completions are driven by the test.
type fakeOutput struct {
	mu        sync.Mutex
	pos       int64
	scheduled []*fakeSource
	closes    int
}

type fakeSource struct {
	out     *fakeOutput
	at      int64
	n       int
	ended   func()
	stopped int
}

func (s *fakeSource) Stop() {
	s.out.mu.Lock()
	defer s.out.mu.Unlock()
	s.stopped++
}

func (o *fakeOutput) Format() audio.Format { return audio.PCM16Mono24K }

func (o *fakeOutput) Position() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pos
}

func (o *fakeOutput) setPosition(p int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pos = p
}

func (o *fakeOutput) Schedule(samples []float32, at int64, ended func()) (audio.Source, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	src := &fakeSource{out: o, at: at, n: len(samples), ended: ended}
	o.scheduled = append(o.scheduled, src)
	return src, nil
}

func (o *fakeOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closes++
	return nil
}

func (o *fakeOutput) source(i int) *fakeSource {
	o.mu.Lock()
	defer o.mu.Unlock()
	if i >= len(o.scheduled) {
		return nil
	}
	return o.scheduled[i]
}

func (o *fakeOutput) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.scheduled)
}

func (o *fakeOutput) stoppedCount(i int) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.scheduled[i].stopped
}

func (o *fakeOutput) closeCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closes
}

// finish plays source i to completion.
func (o *fakeOutput) finish(i int) {
	o.source(i).ended()
}

type fakeSpeaker struct {
	out   *fakeOutput
	err   error
	opens atomic.Int32
}

func (s *fakeSpeaker) Open(audio.Format) (audio.Output, error) {
	s.opens.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.out, nil
}

type fakeMic struct {
	track audio.Track
	err   error
	opens atomic.Int32
}

func (m *fakeMic) Open(context.Context, audio.Format) (audio.Track, error) {
	m.opens.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return m.track, nil
}

type recvItem struct {
	events []live.Event
	err    error
}

type fakeStream struct {
	// gate, when set, holds every SendAudio until it is closed or the
	// stream is closed.
	gate      chan struct{}
	sent      chan []byte
	recv      chan recvItem
	closed    chan struct{}
	closeOnce sync.Once
	closes    atomic.Int32
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		sent:   make(chan []byte, 64),
		recv:   make(chan recvItem, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeStream) SendAudio(pcm []byte) error {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-f.closed:
			return live.ErrClosed
		}
	}
	select {
	case f.sent <- append([]byte(nil), pcm...):
	default:
	}
	return nil
}

func (f *fakeStream) Receive() ([]live.Event, error) {
	select {
	case it := <-f.recv:
		return it.events, it.err
	case <-f.closed:
		return nil, live.ErrClosed
	}
}

func (f *fakeStream) Close() error {
	f.closes.Add(1)
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeStream) deliver(events ...live.Event) {
	f.recv <- recvItem{events: events}
}

func (f *fakeStream) fail(err error) {
	f.recv <- recvItem{err: err}
}

type fakeConnector struct {
	stream *fakeStream
	err    error
	block  bool
	calls  atomic.Int32

	mu  sync.Mutex
	cfg live.Config
}

func (c *fakeConnector) Connect(ctx context.Context, cfg live.Config) (live.Stream, error) {
	c.calls.Add(1)
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
	if c.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if c.err != nil {
		return nil, c.err
	}
	return c.stream, nil
}

// recorder collects observer updates.
type recorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *recorder) record(u Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recorder) all() []Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Update(nil), r.updates...)
}

func (r *recorder) has(match func(Update) bool) bool {
	for _, u := range r.all() {
		if match(u) {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

type harness struct {
	session   *Session
	mic       *fakeMic
	track     *audio.PushTrack
	speaker   *fakeSpeaker
	output    *fakeOutput
	connector *fakeConnector
	stream    *fakeStream
	updates   *recorder
}

func newHarness(t *testing.T, frameSize int) *harness {
	t.Helper()
	h := &harness{
		track:   audio.NewPushTrack(0),
		output:  &fakeOutput{},
		stream:  newFakeStream(),
		updates: &recorder{},
	}
	h.mic = &fakeMic{track: h.track}
	h.speaker = &fakeSpeaker{out: h.output}
	h.connector = &fakeConnector{stream: h.stream}

	s, err := New(Options{
		ID:                "test-session",
		Voice:             live.VoiceKore,
		SystemInstruction: "be brief",
		FrameSize:         frameSize,
		Connector:         h.connector,
		Microphone:        h.mic,
		Speaker:           h.speaker,
		OnUpdate:          h.updates.record,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.session = s
	t.Cleanup(s.Stop)
	return h
}
