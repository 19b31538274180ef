// Package audio holds the local audio primitives a voice session runs on:
// PCM formats and conversions, microphone tracks, and a software playback
// context that schedules buffers against a sample clock.
package audio

import (
	"fmt"
	"time"
)

const (
	// PCM16Mono16K is the capture format: 16-bit signed little-endian, mono, 16 kHz.
	PCM16Mono16K Format = iota
	// PCM16Mono24K is the playback format: 16-bit signed little-endian, mono, 24 kHz.
	PCM16Mono24K
	// PCM16Mono8K is telephone-rate PCM used before mu-law encoding.
	PCM16Mono8K
)

// Format is a mono 16-bit PCM layout identified by its sample rate.
type Format int

// SampleRate returns the sample rate in Hz.
func (f Format) SampleRate() int {
	switch f {
	case PCM16Mono16K:
		return 16000
	case PCM16Mono24K:
		return 24000
	case PCM16Mono8K:
		return 8000
	}
	panic("audio: invalid format")
}

// Channels is always 1; every format in this package is mono.
func (f Format) Channels() int { return 1 }

// Duration returns how long n samples last at this format's rate.
func (f Format) Duration(samples int64) time.Duration {
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate())
}

// Samples returns the number of samples that fit in d, rounded down.
func (f Format) Samples(d time.Duration) int64 {
	return int64(d) * int64(f.SampleRate()) / int64(time.Second)
}

// BytesPerSample is 2 for 16-bit mono PCM.
func (f Format) BytesPerSample() int { return 2 }

// MIMEType returns the descriptor the Live API expects, e.g. "audio/pcm;rate=16000".
func (f Format) MIMEType() string {
	return fmt.Sprintf("audio/pcm;rate=%d", f.SampleRate())
}

func (f Format) String() string {
	return fmt.Sprintf("pcm16/mono/%dHz", f.SampleRate())
}
