package audio

import (
	"errors"
	"io"
	"testing"
	"time"
)

func TestPushTrack_ReadInOrder(t *testing.T) {
	t.Parallel()

	tr := NewPushTrack(0)
	if err := tr.Push([]float32{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if err := tr.Push([]float32{4, 5}); err != nil {
		t.Fatal(err)
	}

	buf := make([]float32, 4)
	n, err := tr.Read(buf)
	if err != nil || n != 4 {
		t.Fatalf("Read = %d, %v; want 4, nil", n, err)
	}
	for i, want := range []float32{1, 2, 3, 4} {
		if buf[i] != want {
			t.Errorf("buf[%d] = %v, want %v", i, buf[i], want)
		}
	}
	if got := tr.Buffered(); got != 1 {
		t.Errorf("Buffered = %d, want 1", got)
	}
}

func TestPushTrack_BufferFull(t *testing.T) {
	t.Parallel()

	tr := NewPushTrack(4)
	if err := tr.Push([]float32{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if err := tr.Push([]float32{4, 5}); !errors.Is(err, ErrBufferFull) {
		t.Fatalf("Push over limit = %v, want ErrBufferFull", err)
	}
	if got := tr.Buffered(); got != 3 {
		t.Errorf("Buffered = %d, want 3", got)
	}
}

func TestPushTrack_StopUnblocksRead(t *testing.T) {
	t.Parallel()

	tr := NewPushTrack(0)
	errc := make(chan error, 1)
	go func() {
		_, err := tr.Read(make([]float32, 8))
		errc <- err
	}()

	time.Sleep(10 * time.Millisecond)
	if err := tr.Stop(); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-errc:
		if !errors.Is(err, io.EOF) {
			t.Errorf("Read after Stop = %v, want io.EOF", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Read did not unblock after Stop")
	}

	if err := tr.Push([]float32{1}); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("Push after Stop = %v, want io.ErrClosedPipe", err)
	}
	if err := tr.Stop(); err != nil {
		t.Errorf("second Stop = %v", err)
	}
	if !tr.Stopped() {
		t.Error("Stopped = false")
	}
}

func TestPushTrack_StopDiscardsBacklog(t *testing.T) {
	t.Parallel()

	tr := NewPushTrack(0)
	_ = tr.Push([]float32{1, 2})
	_ = tr.Stop()
	if _, err := tr.Read(make([]float32, 2)); !errors.Is(err, io.EOF) {
		t.Errorf("Read = %v, want io.EOF", err)
	}
}

func TestReadFrame(t *testing.T) {
	t.Parallel()

	tr := NewPushTrack(0)
	_ = tr.Push([]float32{1, 2})
	_ = tr.Push([]float32{3})
	_ = tr.Push([]float32{4, 5})

	frame := make([]float32, 4)
	if err := ReadFrame(tr, frame); err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	for i, want := range []float32{1, 2, 3, 4} {
		if frame[i] != want {
			t.Errorf("frame[%d] = %v, want %v", i, frame[i], want)
		}
	}

	// One sample left: the partial frame is dropped when the track ends.
	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = tr.Stop()
	}()
	if err := ReadFrame(tr, frame); !errors.Is(err, io.EOF) {
		t.Errorf("ReadFrame on ended track = %v, want io.EOF", err)
	}
}
