// Package session implements the live voice session: microphone capture
// streamed to a conversational endpoint, gap-free playback of the
// synthesized reply with barge-in, and turn-by-turn transcripts.
//
// Each Session runs a single driver goroutine that consumes three
// channels (transport events, captured frames, playback completions), so
// session state is only ever mutated from one place.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/room4-2/livevoice/audio"
	"github.com/room4-2/livevoice/live"
)

const (
	eventBufferSize    = 64
	frameBufferSize    = 16
	outboundBufferSize = 32
)

// State is the streaming lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Status is the coarse indicator shown to the user.
type Status string

const (
	StatusInactive Status = "inactive"
	StatusActive   Status = "active"
	StatusSpeaking Status = "speaking"
)

// UpdateKind says which part of an Update is meaningful.
type UpdateKind int

const (
	UpdateState UpdateKind = iota + 1
	UpdateTranscript
	UpdateTurn
	UpdateError
	// UpdateInterrupted reports barge-in: every scheduled unit was stopped.
	UpdateInterrupted
)

// Update is pushed to the observer whenever user-visible session state
// changes.
type Update struct {
	SessionID string
	Kind      UpdateKind
	State     State
	Status    Status
	User      string // in-progress user text, for UpdateTranscript
	Model     string // in-progress model text, for UpdateTranscript
	Turn      Turn   // for UpdateTurn
	Err       *Error // for UpdateError
}

// Options configures a Session.
type Options struct {
	ID                string
	Voice             live.Voice
	SystemInstruction string
	// FrameSize is the capture frame length in samples. Default 4096.
	FrameSize int

	Connector  live.Connector
	Microphone audio.Microphone
	Speaker    audio.Speaker

	// OnUpdate is called from session goroutines, one call at a time. It
	// must not block and must not call Stop.
	OnUpdate func(Update)
}

// Session is one voice conversation. The voice is fixed for its lifetime.
type Session struct {
	ID          string
	voice       live.Voice
	instruction string
	frameSize   int

	connector live.Connector
	mic       audio.Microphone
	speaker   audio.Speaker
	onUpdate  func(Update)

	state      atomic.Int32
	speaking   atomic.Bool
	framesSent atomic.Uint64
	framesDrop atomic.Uint64
	transcript *Transcript

	// Owned resources. Each is acquired in Start and released exactly once
	// by teardown, whatever the exit path.
	track   audio.Track  // mic.Open / track.Stop
	output  audio.Output // speaker.Open / output.Close
	stream  live.Stream  // connector.Connect / stream.Close
	capture *capture     // newCapture / capture.close
	player  *scheduler   // in-flight playback set / player.stopAll

	events   chan inbound
	frames   chan Frame
	ended    chan uint64
	outbound chan Frame

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	started      bool
	err          *Error
	done         chan struct{}
	teardownOnce sync.Once
	workers      sync.WaitGroup
}

type inbound struct {
	ev  live.Event
	err error // set on the last message of a stream
}

// New validates opts and returns an idle session.
func New(opts Options) (*Session, error) {
	if opts.Connector == nil {
		return nil, errors.New("session: connector is required")
	}
	if opts.Microphone == nil {
		return nil, errors.New("session: microphone is required")
	}
	if opts.Speaker == nil {
		return nil, errors.New("session: speaker is required")
	}
	voice, err := live.ParseVoice(string(opts.Voice))
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	frameSize := opts.FrameSize
	if frameSize <= 0 {
		frameSize = DefaultFrameSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:          opts.ID,
		voice:       voice,
		instruction: opts.SystemInstruction,
		frameSize:   frameSize,
		connector:   opts.Connector,
		mic:         opts.Microphone,
		speaker:     opts.Speaker,
		onUpdate:    opts.OnUpdate,
		transcript:  NewTranscript(),
		events:      make(chan inbound, eventBufferSize),
		frames:      make(chan Frame, frameBufferSize),
		ended:       make(chan uint64, eventBufferSize),
		outbound:    make(chan Frame, outboundBufferSize),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	return s, nil
}

// Start acquires the microphone and the playback context, connects the
// stream and begins capturing. On failure every acquired resource is
// released, the session is Closed and the classified *Error is returned.
// If Stop interrupts Start, ErrStopped is returned.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		if s.State() == StateClosed {
			return ErrStopped
		}
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	startCtx, cancelStart := context.WithCancel(ctx)
	defer cancelStart()
	stopWatch := context.AfterFunc(s.ctx, cancelStart)
	defer stopWatch()

	track, err := s.mic.Open(startCtx, audio.PCM16Mono16K)
	if err != nil {
		return s.abort(deviceError(err))
	}
	s.track = track

	output, err := s.speaker.Open(audio.PCM16Mono24K)
	if err != nil {
		return s.abort(err)
	}
	s.output = output
	s.player = newScheduler(output, s.playbackEnded)

	s.setState(StateConnecting)
	stream, err := s.connector.Connect(startCtx, live.Config{
		Voice:               s.voice,
		SystemInstruction:   s.instruction,
		InputTranscription:  true,
		OutputTranscription: true,
	})
	if err != nil {
		return s.abort(err)
	}
	s.stream = stream
	if s.ctx.Err() != nil {
		return s.abort(ErrStopped)
	}

	s.capture = newCapture(track, s.frameSize, s.frames)
	s.setState(StateOpen)

	s.workers.Add(2)
	go s.receive()
	go s.sendPump()
	s.capture.start(s.ctx)
	go s.run()
	return nil
}

// deviceError files a microphone failure: permission refusal stays
// PermissionDenied and anything else is DeviceUnavailable, whatever its text.
func deviceError(err error) error {
	if errors.Is(err, audio.ErrPermissionDenied) || errors.Is(err, context.Canceled) {
		return err
	}
	return &Error{Kind: DeviceUnavailable, Err: err}
}

// abort ends a failed Start.
func (s *Session) abort(err error) error {
	if s.ctx.Err() != nil {
		s.teardown()
		return ErrStopped
	}
	if errors.Is(err, context.Canceled) {
		s.teardown()
		return err
	}
	e := Classify(err)
	s.fail(e)
	return e
}

func (s *Session) fail(e *Error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = e
	}
	s.mu.Unlock()

	log.Printf("❌ [%s] Session error: %v", shortID(s.ID), e)
	s.teardown()
	s.notify(Update{Kind: UpdateError, State: s.State(), Status: s.Status(), Err: e})
}

// Stop ends the session from any state and waits until every resource has
// been released. Calling it again is a no-op.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.started {
		s.started = true
		s.mu.Unlock()
		s.teardown()
		return
	}
	s.mu.Unlock()

	s.cancel()
	<-s.done
}

// Done is closed once the session is Closed and torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the error that closed the session, or nil for a normal stop
// or an orderly close by the endpoint.
func (s *Session) Err() *Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// State returns the lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Status reports inactive, active or speaking.
func (s *Session) Status() Status {
	switch s.State() {
	case StateConnecting, StateOpen:
		if s.speaking.Load() {
			return StatusSpeaking
		}
		return StatusActive
	}
	return StatusInactive
}

// Voice returns the session's voice.
func (s *Session) Voice() live.Voice { return s.voice }

// Transcript returns the live transcript and turn history.
func (s *Session) Transcript() *Transcript { return s.transcript }

// FramesSent returns how many captured frames were handed to the stream.
func (s *Session) FramesSent() uint64 { return s.framesSent.Load() }

// FramesDropped returns how many captured frames were discarded because the
// stream could not keep up.
func (s *Session) FramesDropped() uint64 { return s.framesDrop.Load() }

// run is the driver. It is the only goroutine that touches the scheduler
// and the transcript accumulators while the session is open.
func (s *Session) run() {
	defer s.teardown()

	for {
		select {
		case <-s.ctx.Done():
			return

		case in := <-s.events:
			if in.err != nil {
				if errors.Is(in.err, live.ErrClosed) {
					log.Printf("🔌 [%s] Stream closed by endpoint", shortID(s.ID))
					return
				}
				s.fail(Classify(in.err))
				return
			}
			s.handle(in.ev)

		case f := <-s.frames:
			s.forward(f)

		case id := <-s.ended:
			s.player.finish(id)
			if !s.player.speaking() {
				s.setSpeaking(false)
			}
		}
	}
}

func (s *Session) handle(ev live.Event) {
	switch ev.Kind {
	case live.EventAudio:
		if _, err := s.player.enqueue(ev.Audio); err != nil {
			log.Printf("⚠️ [%s] Dropping audio payload: %v", shortID(s.ID), err)
			return
		}
		s.setSpeaking(true)

	case live.EventInterrupted:
		s.player.interrupt()
		s.setSpeaking(false)
		s.notify(Update{Kind: UpdateInterrupted, State: s.State(), Status: s.Status()})

	case live.EventInputTranscript:
		s.transcript.AppendUser(ev.Text)
		s.notifyTranscript()

	case live.EventOutputTranscript:
		s.transcript.AppendModel(ev.Text)
		s.notifyTranscript()

	case live.EventTurnComplete:
		turn := s.transcript.Complete()
		s.notify(Update{Kind: UpdateTurn, State: s.State(), Status: s.Status(), Turn: turn})
		s.notifyTranscript()
	}
}

// forward queues a frame for sendPump without blocking the driver. When the
// stream falls behind, the oldest queued frame is discarded.
func (s *Session) forward(f Frame) {
	select {
	case s.outbound <- f:
		return
	default:
	}
	select {
	case old := <-s.outbound:
		if n := s.framesDrop.Add(1); n == 1 || n%100 == 0 {
			log.Printf("⚠️ [%s] Stream is behind, dropped frame %d (%d dropped)", shortID(s.ID), old.Seq, n)
		}
	default:
	}
	select {
	case s.outbound <- f:
	default:
		s.framesDrop.Add(1)
	}
}

// receive pumps transport messages into the driver in delivery order.
func (s *Session) receive() {
	defer s.workers.Done()

	for {
		events, err := s.stream.Receive()
		if err != nil {
			select {
			case s.events <- inbound{err: err}:
			case <-s.ctx.Done():
			}
			return
		}
		for _, ev := range events {
			select {
			case s.events <- inbound{ev: ev}:
			case <-s.ctx.Done():
				return
			}
		}
	}
}

// sendPump transmits frames in capture order without holding up the driver.
func (s *Session) sendPump() {
	defer s.workers.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case f := <-s.outbound:
			if err := s.stream.SendAudio(f.PCM); err != nil {
				if s.ctx.Err() == nil {
					log.Printf("⚠️ [%s] Failed to send frame %d: %v", shortID(s.ID), f.Seq, err)
				}
				continue
			}
			s.framesSent.Add(1)
		}
	}
}

// playbackEnded runs on the output's render goroutine.
func (s *Session) playbackEnded(id uint64) {
	select {
	case s.ended <- id:
	case <-s.ctx.Done():
	}
}

// teardown releases every owned resource once, in any state.
func (s *Session) teardown() {
	s.teardownOnce.Do(func() {
		s.cancel()

		if s.stream != nil {
			if err := s.stream.Close(); err != nil {
				log.Printf("⚠️ [%s] Stream close: %v", shortID(s.ID), err)
			}
		}
		if s.track != nil {
			_ = s.track.Stop()
		}
		if s.capture != nil {
			s.capture.close()
		}
		if s.player != nil {
			s.player.stopAll()
		}
		if s.output != nil {
			_ = s.output.Close()
		}
		s.workers.Wait()

		s.speaking.Store(false)
		s.setState(StateClosed)
		close(s.done)
	})
}

func (s *Session) setState(st State) {
	if State(s.state.Swap(int32(st))) == st {
		return
	}
	s.notify(Update{Kind: UpdateState, State: st, Status: s.Status()})
}

func (s *Session) setSpeaking(v bool) {
	if s.speaking.Swap(v) == v {
		return
	}
	s.notify(Update{Kind: UpdateState, State: s.State(), Status: s.Status()})
}

func (s *Session) notifyTranscript() {
	user, model := s.transcript.Live()
	s.notify(Update{Kind: UpdateTranscript, State: s.State(), Status: s.Status(), User: user, Model: model})
}

func (s *Session) notify(u Update) {
	if s.onUpdate != nil {
		u.SessionID = s.ID
		s.onUpdate(u)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
