// Package sox provides a local microphone and speaker backed by the SoX
// rec and play commands.
package sox

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"

	"github.com/room4-2/livevoice/audio"
)

var (
	_ audio.Microphone = Microphone{}
	_ audio.Speaker    = Speaker{}
)

func rawArgs(f audio.Format) []string {
	return []string{
		"-q",
		"-t", "raw",
		"-r", strconv.Itoa(f.SampleRate()),
		"-b", "16",
		"-c", "1",
		"-e", "signed-integer",
	}
}

// Microphone captures from the default input device with `rec`.
type Microphone struct {
	// Binary overrides the capture command. Defaults to "rec".
	Binary string
}

// Open starts the capture process. A missing binary or a process that
// fails to start is reported as audio.ErrDeviceUnavailable.
func (m Microphone) Open(ctx context.Context, f audio.Format) (audio.Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bin := m.Binary
	if bin == "" {
		bin = "rec"
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", audio.ErrDeviceUnavailable, err)
	}

	cmd := exec.Command(path, append(rawArgs(f), "-")...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", audio.ErrDeviceUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", audio.ErrDeviceUnavailable, err)
	}
	return &track{cmd: cmd, r: stdout}, nil
}

type track struct {
	cmd *exec.Cmd
	r   io.ReadCloser
	buf []byte

	stopOnce sync.Once
}

func (t *track) Read(p []float32) (int, error) {
	need := len(p) * 2
	if cap(t.buf) < need {
		t.buf = make([]byte, need)
	}
	buf := t.buf[:need]

	n, err := t.r.Read(buf)
	if n%2 == 1 {
		k, ferr := io.ReadFull(t.r, buf[n:n+1])
		n += k
		if ferr != nil && err == nil {
			err = ferr
		}
	}
	samples := audio.PCM16ToFloat32(buf[:n-n%2])
	copy(p, samples)
	if err != nil && len(samples) > 0 {
		return len(samples), nil
	}
	return len(samples), err
}

func (t *track) Stop() error {
	t.stopOnce.Do(func() {
		if t.cmd.Process != nil {
			_ = t.cmd.Process.Kill()
		}
		_ = t.cmd.Wait()
	})
	return nil
}

// Speaker plays to the default output device with `play`.
type Speaker struct {
	// Binary overrides the playback command. Defaults to "play".
	Binary string
}

// Open starts the playback process and a paced PlaybackContext that feeds
// its stdin.
func (s Speaker) Open(f audio.Format) (audio.Output, error) {
	bin := s.Binary
	if bin == "" {
		bin = "play"
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", audio.ErrDeviceUnavailable, err)
	}

	cmd := exec.Command(path, append(rawArgs(f), "-")...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("sox stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", audio.ErrDeviceUnavailable, err)
	}

	pc := audio.NewPlaybackContext(f, audio.SinkFunc(func(pcm []byte) error {
		_, err := stdin.Write(pcm)
		return err
	}))
	pc.Start()
	return &output{PlaybackContext: pc, cmd: cmd, stdin: stdin}, nil
}

type output struct {
	*audio.PlaybackContext
	cmd   *exec.Cmd
	stdin io.WriteCloser

	closeOnce sync.Once
}

func (o *output) Close() error {
	o.closeOnce.Do(func() {
		_ = o.PlaybackContext.Close()
		_ = o.stdin.Close()
		_ = o.cmd.Wait()
	})
	return nil
}
