package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/room4-2/livevoice/audio"
	"github.com/room4-2/livevoice/config"
	"github.com/room4-2/livevoice/live"
)

// ErrMaxSessions is returned by CreateSession when the registry is full.
var ErrMaxSessions = errors.New("maximum sessions reached")

const (
	persistTimeout   = 2 * time.Second
	persistQueueSize = 64
)

type turnRecord struct {
	id   string
	turn Turn
}

// Request describes the devices and voice of a new session.
type Request struct {
	Voice      live.Voice // empty selects the configured default
	Source     string
	Microphone audio.Microphone
	Speaker    audio.Speaker
	OnUpdate   func(Update)
}

type entry struct {
	session      *Session
	info         Info
	lastActivity atomic.Int64 // unix nanos
}

func (e *entry) touch() { e.lastActivity.Store(time.Now().UnixNano()) }

func (e *entry) idle(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, e.lastActivity.Load()))
}

// Manager manages all live sessions
type Manager struct {
	sessions  map[string]*entry
	mu        sync.RWMutex
	store     HistoryStore
	connector live.Connector
	config    *config.Config

	// Turns are written by persistLoop so a slow store never stalls a
	// session driver.
	turns        chan turnRecord
	quit         chan struct{}
	persistDone  chan struct{}
	shutdownOnce sync.Once
}

// NewManager creates a session manager backed by Redis, falling back to an
// in-memory store when Redis is unavailable.
func NewManager(ctx context.Context, cfg *config.Config, connector live.Connector) *Manager {
	var store HistoryStore
	redisStore, err := NewRedisStore(ctx, cfg.RedisURL, cfg.RedisPassword, cfg.SessionTimeout)
	if err != nil {
		log.Printf("⚠️ Redis unavailable, keeping turn history in memory: %v", err)
		store = NewMemoryStore(cfg.SessionTimeout)
	} else {
		log.Printf("🗄️ Connected to Redis at %s", cfg.RedisURL)
		store = redisStore
	}
	return NewManagerWithStore(cfg, connector, store)
}

// NewManagerWithStore creates a session manager using the given store.
func NewManagerWithStore(cfg *config.Config, connector live.Connector, store HistoryStore) *Manager {
	sm := &Manager{
		sessions:    make(map[string]*entry),
		store:       store,
		connector:   connector,
		config:      cfg,
		turns:       make(chan turnRecord, persistQueueSize),
		quit:        make(chan struct{}),
		persistDone: make(chan struct{}),
	}
	go sm.persistLoop()
	return sm
}

// CreateSession registers a new idle session. The caller starts it; the
// manager forgets it once it is Closed.
func (sm *Manager) CreateSession(req Request) (*Session, error) {
	voice := req.Voice
	if voice == "" {
		voice = live.Voice(sm.config.DefaultVoice)
	}

	sm.mu.Lock()
	if len(sm.sessions) >= sm.config.MaxSessions {
		sm.mu.Unlock()
		return nil, ErrMaxSessions
	}

	id := uuid.New().String()
	e := &entry{info: Info{ID: id, Voice: string(voice), Source: req.Source, CreatedAt: time.Now()}}
	e.touch()

	s, err := New(Options{
		ID:                id,
		Voice:             voice,
		SystemInstruction: sm.config.SystemInstruction,
		FrameSize:         sm.config.CaptureFrameSize,
		Connector:         sm.connector,
		Microphone:        req.Microphone,
		Speaker:           req.Speaker,
		OnUpdate: func(u Update) {
			e.touch()
			if u.Kind == UpdateTurn {
				sm.queueTurn(id, u.Turn)
			}
			if req.OnUpdate != nil {
				req.OnUpdate(u)
			}
		},
	})
	if err != nil {
		sm.mu.Unlock()
		return nil, err
	}
	e.session = s
	sm.sessions[id] = e
	sm.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	if err := sm.store.Register(ctx, e.info); err != nil {
		log.Printf("⚠️ [%s] Failed to register session: %v", shortID(id), err)
	}
	cancel()

	go func() {
		<-s.Done()
		sm.forget(id)
	}()

	log.Printf("✅ [%s] Session created (voice=%s, source=%s)", shortID(id), voice, req.Source)
	return s, nil
}

// queueTurn hands a turn to persistLoop without blocking the caller.
func (sm *Manager) queueTurn(id string, turn Turn) {
	select {
	case sm.turns <- turnRecord{id: id, turn: turn}:
	default:
		log.Printf("⚠️ [%s] History queue full, dropping turn", shortID(id))
	}
}

func (sm *Manager) persistLoop() {
	defer close(sm.persistDone)
	for {
		select {
		case rec := <-sm.turns:
			sm.persistTurn(rec.id, rec.turn)
		case <-sm.quit:
			for {
				select {
				case rec := <-sm.turns:
					sm.persistTurn(rec.id, rec.turn)
				default:
					return
				}
			}
		}
	}
}

func (sm *Manager) persistTurn(id string, turn Turn) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := sm.store.AppendTurn(ctx, id, turn); err != nil {
		log.Printf("⚠️ [%s] Failed to persist turn: %v", shortID(id), err)
	}
}

func (sm *Manager) forget(id string) {
	sm.mu.Lock()
	_, ok := sm.sessions[id]
	delete(sm.sessions, id)
	sm.mu.Unlock()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := sm.store.Unregister(ctx, id); err != nil {
		log.Printf("⚠️ [%s] Failed to unregister session: %v", shortID(id), err)
	}
	log.Printf("🧹 [%s] Session removed", shortID(id))
}

// GetSession retrieves a session by ID
func (sm *Manager) GetSession(id string) (*Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	e, ok := sm.sessions[id]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// Turns returns the persisted turns of a session, live or finished.
func (sm *Manager) Turns(ctx context.Context, id string) ([]Turn, error) {
	return sm.store.Turns(ctx, id)
}

// GetActiveSessionCount returns current session count
func (sm *Manager) GetActiveSessionCount() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// CleanupInactiveSessions stops sessions with no update for longer than
// the session timeout.
func (sm *Manager) CleanupInactiveSessions() {
	now := time.Now()
	var stale []*Session

	sm.mu.RLock()
	for _, e := range sm.sessions {
		if e.idle(now) > sm.config.SessionTimeout {
			stale = append(stale, e.session)
		}
	}
	sm.mu.RUnlock()

	for _, s := range stale {
		log.Printf("⏰ [%s] Session inactive, stopping", shortID(s.ID))
		s.Stop()
	}
}

// StartCleanupRoutine starts periodic cleanup of inactive sessions
func (sm *Manager) StartCleanupRoutine(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sm.CleanupInactiveSessions()
			if p, ok := sm.store.(interface{ Prune(time.Time) int }); ok {
				if n := p.Prune(time.Now()); n > 0 {
					log.Printf("🧹 Pruned %d expired session histories", n)
				}
			}
		}
	}
}

// Shutdown stops all sessions, flushes queued turns and closes the store.
// Calling it again is a no-op.
func (sm *Manager) Shutdown() {
	sm.shutdownOnce.Do(sm.shutdown)
}

func (sm *Manager) shutdown() {
	sm.mu.RLock()
	all := make([]*Session, 0, len(sm.sessions))
	for _, e := range sm.sessions {
		all = append(all, e.session)
	}
	sm.mu.RUnlock()

	var wg sync.WaitGroup
	for _, s := range all {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Stop()
		}(s)
	}
	wg.Wait()

	close(sm.quit)
	<-sm.persistDone

	if err := sm.store.Close(); err != nil {
		log.Printf("⚠️ Failed to close history store: %v", err)
	}
}
