package audio

import (
	"errors"
	"log"
	"sync"
	"time"
)

// ErrContextClosed is returned when scheduling on a closed playback context.
var ErrContextClosed = errors.New("playback context closed")

const defaultQuantum = 20 * time.Millisecond

// Output is a playback audio context: a sample clock plus the ability to
// schedule buffers against it.
type Output interface {
	Format() Format
	// Position is the output clock in samples. It never decreases.
	Position() int64
	// Schedule plays samples starting at sample position at. A start in the
	// past begins immediately. ended runs once after the last sample has
	// been played, unless the source was stopped first.
	Schedule(samples []float32, at int64, ended func()) (Source, error)
	// Close stops every source and releases the context. Idempotent.
	Close() error
}

// Source is one scheduled buffer.
type Source interface {
	// Stop halts playback immediately, even mid-buffer. The ended callback
	// does not run for a stopped source.
	Stop()
}

// Speaker opens playback contexts.
type Speaker interface {
	Open(f Format) (Output, error)
}

// Sink receives rendered PCM16 audio.
type Sink interface {
	WriteAudio(pcm []byte) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(pcm []byte) error

func (f SinkFunc) WriteAudio(pcm []byte) error { return f(pcm) }

// SinkSpeaker opens paced PlaybackContexts that render into Sink.
type SinkSpeaker struct {
	Sink    Sink
	Quantum time.Duration
	// SkipSilence drops quanta in which nothing plays, for network sinks.
	SkipSilence bool
}

// Open creates and starts a PlaybackContext.
func (s SinkSpeaker) Open(f Format) (Output, error) {
	var opts []PlaybackOption
	if s.Quantum > 0 {
		opts = append(opts, WithQuantum(s.Quantum))
	}
	if s.SkipSilence {
		opts = append(opts, WithoutSilence())
	}
	c := NewPlaybackContext(f, s.Sink, opts...)
	c.Start()
	return c, nil
}

// PlaybackOption configures a PlaybackContext.
type PlaybackOption func(*PlaybackContext)

// WithQuantum sets the render block length. Default 20 ms.
func WithQuantum(d time.Duration) PlaybackOption {
	return func(c *PlaybackContext) { c.interval = d }
}

// WithoutSilence skips the sink write for quanta in which nothing plays.
// The clock still advances.
func WithoutSilence() PlaybackOption {
	return func(c *PlaybackContext) { c.silence = false }
}

// PlaybackContext mixes scheduled sources into fixed render quanta and
// writes them to a Sink. Position advances by one quantum per Render, so
// the clock counts samples handed to the sink. Start paces Render in real
// time; tests call Render directly.
type PlaybackContext struct {
	format   Format
	sink     Sink
	interval time.Duration
	quantum  int64
	silence  bool // write quanta with no source playing

	mu       sync.Mutex
	position int64
	sources  map[*source]struct{}
	closed   bool

	startOnce  sync.Once
	warnedSink sync.Once
	stop       chan struct{}
	wg         sync.WaitGroup
}

var _ Output = (*PlaybackContext)(nil)

// NewPlaybackContext creates a stopped context; call Start to render in
// real time.
func NewPlaybackContext(f Format, sink Sink, opts ...PlaybackOption) *PlaybackContext {
	c := &PlaybackContext{
		format:   f,
		sink:     sink,
		interval: defaultQuantum,
		silence:  true,
		sources:  make(map[*source]struct{}),
		stop:     make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	c.quantum = f.Samples(c.interval)
	if c.quantum <= 0 {
		c.quantum = 1
	}
	return c
}

type source struct {
	ctx     *PlaybackContext
	samples []float32
	start   int64
	ended   func()
	done    bool // guarded by ctx.mu
}

func (s *source) end() int64 { return s.start + int64(len(s.samples)) }

func (s *source) Stop() {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	delete(s.ctx.sources, s)
}

// Format returns the context's sample format.
func (c *PlaybackContext) Format() Format { return c.format }

// Position returns the number of samples rendered so far.
func (c *PlaybackContext) Position() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

// Schedule implements Output.
func (c *PlaybackContext) Schedule(samples []float32, at int64, ended func()) (Source, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrContextClosed
	}
	if at < c.position {
		at = c.position
	}
	s := &source{ctx: c, samples: samples, start: at, ended: ended}
	c.sources[s] = struct{}{}
	return s, nil
}

// Active returns the number of sources scheduled or playing.
func (c *PlaybackContext) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sources)
}

// Render mixes one quantum, advances the clock and writes the block to the
// sink. Ended callbacks run after the write, outside the lock.
func (c *PlaybackContext) Render() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrContextClosed
	}
	from := c.position
	to := from + c.quantum
	mix := make([]float32, c.quantum)
	var finished []*source
	audible := false
	for s := range c.sources {
		lo, hi := max(from, s.start), min(to, s.end())
		if lo < hi {
			audible = true
		}
		for t := lo; t < hi; t++ {
			mix[t-from] += s.samples[t-s.start]
		}
		if s.end() <= to {
			s.done = true
			delete(c.sources, s)
			finished = append(finished, s)
		}
	}
	c.position = to
	c.mu.Unlock()

	var err error
	if audible || c.silence {
		err = c.sink.WriteAudio(Float32ToPCM16(mix))
	}
	for _, s := range finished {
		if s.ended != nil {
			s.ended()
		}
	}
	return err
}

// Start begins rendering one quantum per interval on a background
// goroutine until Close.
func (c *PlaybackContext) Start() {
	c.startOnce.Do(func() {
		c.wg.Add(1)
		go c.pace()
	})
}

func (c *PlaybackContext) pace() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if err := c.Render(); err != nil {
				if errors.Is(err, ErrContextClosed) {
					return
				}
				c.warnedSink.Do(func() {
					log.Printf("⚠️ Playback sink write failed: %v", err)
				})
			}
		}
	}
}

// Close stops all sources and the render goroutine. Idempotent.
func (c *PlaybackContext) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for s := range c.sources {
		s.done = true
	}
	clear(c.sources)
	c.mu.Unlock()

	close(c.stop)
	c.wg.Wait()
	return nil
}

// Closed reports whether Close has been called.
func (c *PlaybackContext) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
