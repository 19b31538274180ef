package session

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"

	"github.com/room4-2/livevoice/audio"
)

// DefaultFrameSize is the number of samples per captured frame.
const DefaultFrameSize = 4096

// Frame is one captured chunk ready for transmission. Seq is its capture
// order, starting at 1.
type Frame struct {
	Seq uint64
	PCM []byte
}

// capture is the capture audio context: it cuts the track into fixed-size
// frames, converts them to PCM16 and hands them to the driver in order.
type capture struct {
	track     audio.Track
	frameSize int
	out       chan<- Frame

	cancel    context.CancelFunc
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
}

func newCapture(track audio.Track, frameSize int, out chan<- Frame) *capture {
	if frameSize <= 0 {
		frameSize = DefaultFrameSize
	}
	return &capture{
		track:     track,
		frameSize: frameSize,
		out:       out,
		done:      make(chan struct{}),
	}
}

// start begins producing frames until the track ends or ctx is cancelled.
func (c *capture) start(ctx context.Context) {
	c.startOnce.Do(func() {
		ctx, c.cancel = context.WithCancel(ctx)
		go c.run(ctx)
	})
}

func (c *capture) run(ctx context.Context) {
	defer close(c.done)

	frame := make([]float32, c.frameSize)
	var seq uint64
	for {
		if err := audio.ReadFrame(c.track, frame); err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				log.Printf("⚠️ Capture read failed: %v", err)
			}
			return
		}
		seq++
		select {
		case c.out <- Frame{Seq: seq, PCM: audio.Float32ToPCM16(frame)}:
		case <-ctx.Done():
			return
		}
	}
}

// close disconnects the capture context and waits for the producer to exit.
// The track must already be stopped, or blocked reads will not return.
func (c *capture) close() {
	c.closeOnce.Do(func() {
		c.startOnce.Do(func() { close(c.done) })
		if c.cancel != nil {
			c.cancel()
		}
		<-c.done
	})
}
