package audio

import (
	"context"
	"errors"
	"io"
	"sync"
)

var (
	// ErrPermissionDenied is returned by Microphone.Open when the user or
	// the platform refuses microphone access.
	ErrPermissionDenied = errors.New("microphone permission denied")

	// ErrDeviceUnavailable is returned by Microphone.Open when no capture
	// device exists or it could not be acquired.
	ErrDeviceUnavailable = errors.New("capture device unavailable")

	// ErrBufferFull is returned by PushTrack.Push when the unread backlog
	// would exceed the track's limit.
	ErrBufferFull = errors.New("audio buffer full")
)

// Microphone acquires capture tracks.
type Microphone interface {
	// Open blocks until access is granted or refused. The returned track
	// delivers mono samples at f's sample rate.
	Open(ctx context.Context, f Format) (Track, error)
}

// Track is a live capture source. Read returns io.EOF once the track has
// been stopped and drained.
type Track interface {
	Read(p []float32) (int, error)
	// Stop releases the underlying device and unblocks pending reads.
	// Safe to call more than once.
	Stop() error
}

// PushTrack is a Track fed by a producer such as a network connection.
// Pushed chunks are held in order until read; the unread backlog is capped
// at maxSamples.
type PushTrack struct {
	mu         sync.Mutex
	cond       *sync.Cond
	chunks     [][]float32
	head       int // read offset into chunks[0]
	total      int
	maxSamples int
	stopped    bool
}

// NewPushTrack creates a track that rejects pushes once more than
// maxSamples are waiting to be read. maxSamples <= 0 means unbounded.
func NewPushTrack(maxSamples int) *PushTrack {
	t := &PushTrack{maxSamples: maxSamples}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Push appends samples to the track. It returns io.ErrClosedPipe after Stop
// and ErrBufferFull when the backlog limit would be exceeded.
func (t *PushTrack) Push(samples []float32) error {
	if len(samples) == 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return io.ErrClosedPipe
	}
	if t.maxSamples > 0 && t.total+len(samples) > t.maxSamples {
		return ErrBufferFull
	}
	t.chunks = append(t.chunks, samples)
	t.total += len(samples)
	t.cond.Signal()
	return nil
}

// PushPCM16 converts little-endian PCM16 bytes and pushes them.
func (t *PushTrack) PushPCM16(pcm []byte) error {
	return t.Push(PCM16ToFloat32(pcm))
}

// Read copies buffered samples into p, blocking until at least one sample
// is available or the track is stopped.
func (t *PushTrack) Read(p []float32) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	for t.total == 0 && !t.stopped {
		t.cond.Wait()
	}
	if t.total == 0 {
		return 0, io.EOF
	}

	n := 0
	for n < len(p) && len(t.chunks) > 0 {
		c := t.chunks[0][t.head:]
		k := copy(p[n:], c)
		n += k
		t.head += k
		if t.head == len(t.chunks[0]) {
			t.chunks[0] = nil
			t.chunks = t.chunks[1:]
			t.head = 0
		}
	}
	t.total -= n
	return n, nil
}

// Buffered returns the number of unread samples.
func (t *PushTrack) Buffered() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// Stop marks the track finished and discards unread samples. Pending and
// later reads return io.EOF.
func (t *PushTrack) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return nil
	}
	t.stopped = true
	t.chunks = nil
	t.head = 0
	t.total = 0
	t.cond.Broadcast()
	return nil
}

// Stopped reports whether Stop has been called.
func (t *PushTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// ReadFrame fills frame completely from r. If the track ends first the
// partial frame is discarded and the track's error (usually io.EOF) returned.
func ReadFrame(r Track, frame []float32) error {
	n := 0
	for n < len(frame) {
		k, err := r.Read(frame[n:])
		n += k
		if err != nil {
			if n == len(frame) {
				return nil
			}
			return err
		}
	}
	return nil
}
