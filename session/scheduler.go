package session

import (
	"fmt"

	"github.com/room4-2/livevoice/audio"
)

// PlaybackUnit describes one scheduled synthesized-audio buffer. Start and
// Samples are in output-clock samples.
type PlaybackUnit struct {
	ID      uint64
	Start   int64
	Samples int64
}

// End is the sample position right after the unit's last sample.
func (u PlaybackUnit) End() int64 { return u.Start + u.Samples }

// scheduler places inbound audio on the output clock back to back. It is
// owned by the session driver and never touched from other goroutines.
type scheduler struct {
	out      audio.Output
	onEnded  func(id uint64)
	next     int64 // next available start time; zero after an interruption
	seq      uint64
	inflight map[uint64]audio.Source
}

func newScheduler(out audio.Output, onEnded func(id uint64)) *scheduler {
	return &scheduler{
		out:      out,
		onEnded:  onEnded,
		inflight: make(map[uint64]audio.Source),
	}
}

// enqueue decodes PCM16 and schedules it at max(now, next).
func (p *scheduler) enqueue(pcm []byte) (PlaybackUnit, error) {
	samples := audio.PCM16ToFloat32(pcm)
	if len(samples) == 0 {
		return PlaybackUnit{}, fmt.Errorf("empty audio payload")
	}

	start := max(p.out.Position(), p.next)
	p.seq++
	id := p.seq
	src, err := p.out.Schedule(samples, start, func() { p.onEnded(id) })
	if err != nil {
		return PlaybackUnit{}, fmt.Errorf("schedule playback: %w", err)
	}

	unit := PlaybackUnit{ID: id, Start: start, Samples: int64(len(samples))}
	p.next = unit.End()
	p.inflight[id] = src
	return unit, nil
}

// finish removes a unit that played to completion.
func (p *scheduler) finish(id uint64) {
	delete(p.inflight, id)
}

// interrupt stops every in-flight unit, clears the set and resets the
// cursor so the next utterance is placed relative to the live clock.
func (p *scheduler) interrupt() {
	p.stopAll()
	p.next = 0
}

func (p *scheduler) stopAll() {
	for id, src := range p.inflight {
		src.Stop()
		delete(p.inflight, id)
	}
}

// speaking reports whether any unit is still in flight.
func (p *scheduler) speaking() bool { return len(p.inflight) > 0 }
