package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

const activeSessionsKey = "active_sessions"

// Info describes a registered session.
type Info struct {
	ID        string    `json:"id"`
	Voice     string    `json:"voice"`
	Source    string    `json:"source"` // "browser", "twilio" or "local"
	CreatedAt time.Time `json:"created_at"`
}

// HistoryStore persists session metadata and finalized turns.
type HistoryStore interface {
	Register(ctx context.Context, info Info) error
	AppendTurn(ctx context.Context, id string, turn Turn) error
	Turns(ctx context.Context, id string) ([]Turn, error)
	// Unregister drops the session from the active set. Its turns stay
	// readable until they expire.
	Unregister(ctx context.Context, id string) error
	Close() error
}

// RedisStore keeps session hashes and turn lists in Redis.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to Redis and pings it.
func NewRedisStore(ctx context.Context, addr, password string, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

func sessionKey(id string) string { return "session:" + id }
func turnsKey(id string) string   { return "session:" + id + ":turns" }

func (r *RedisStore) Register(ctx context.Context, info Info) error {
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, sessionKey(info.ID), map[string]interface{}{
		"voice":      info.Voice,
		"source":     info.Source,
		"created_at": info.CreatedAt.Format(time.RFC3339),
		"status":     "active",
	})
	pipe.SAdd(ctx, activeSessionsKey, info.ID)
	pipe.Expire(ctx, sessionKey(info.ID), r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("register session %s: %w", info.ID, err)
	}
	return nil
}

func (r *RedisStore) AppendTurn(ctx context.Context, id string, turn Turn) error {
	data, err := sonic.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshal turn: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, turnsKey(id), data)
	pipe.Expire(ctx, turnsKey(id), r.ttl)
	pipe.HSet(ctx, sessionKey(id), "last_activity", turn.At.Format(time.RFC3339))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append turn for %s: %w", id, err)
	}
	return nil
}

func (r *RedisStore) Turns(ctx context.Context, id string) ([]Turn, error) {
	raw, err := r.client.LRange(ctx, turnsKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read turns for %s: %w", id, err)
	}
	turns := make([]Turn, 0, len(raw))
	for _, item := range raw {
		var t Turn
		if err := sonic.UnmarshalString(item, &t); err != nil {
			return nil, fmt.Errorf("decode turn for %s: %w", id, err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

func (r *RedisStore) Unregister(ctx context.Context, id string) error {
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, sessionKey(id), "status", "closed")
	pipe.SRem(ctx, activeSessionsKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("unregister session %s: %w", id, err)
	}
	return nil
}

func (r *RedisStore) Close() error { return r.client.Close() }

// MemoryStore is the in-process fallback used when Redis is unreachable.
// A session's history expires ttl after its last write or its close,
// whichever is later, and never while the session is active. A zero ttl
// keeps everything.
type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	info    map[string]Info
	turns   map[string][]Turn
	active  map[string]struct{}
	expires map[string]time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		now:     time.Now,
		info:    make(map[string]Info),
		turns:   make(map[string][]Turn),
		active:  make(map[string]struct{}),
		expires: make(map[string]time.Time),
	}
}

func (m *MemoryStore) Register(_ context.Context, info Info) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.prune(now)
	m.info[info.ID] = info
	m.active[info.ID] = struct{}{}
	m.expires[info.ID] = now.Add(m.ttl)
	return nil
}

func (m *MemoryStore) AppendTurn(_ context.Context, id string, turn Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns[id] = append(m.turns[id], turn)
	m.expires[id] = m.now().Add(m.ttl)
	return nil
}

func (m *MemoryStore) Turns(_ context.Context, id string) ([]Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.expired(id, m.now()) {
		return []Turn{}, nil
	}
	out := make([]Turn, len(m.turns[id]))
	copy(out, m.turns[id])
	return out, nil
}

func (m *MemoryStore) Unregister(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, id)
	now := m.now()
	if _, ok := m.expires[id]; ok {
		m.expires[id] = now.Add(m.ttl)
	}
	m.prune(now)
	return nil
}

// Active reports whether id is registered and not yet unregistered.
func (m *MemoryStore) Active(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.active[id]
	return ok
}

// Len returns the number of sessions whose history is still held.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.expires)
}

// Prune drops histories that expired before now and returns how many.
func (m *MemoryStore) Prune(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prune(now)
}

func (m *MemoryStore) expired(id string, now time.Time) bool {
	if m.ttl <= 0 {
		return false
	}
	if _, ok := m.active[id]; ok {
		return false
	}
	at, ok := m.expires[id]
	return ok && now.After(at)
}

func (m *MemoryStore) prune(now time.Time) int {
	n := 0
	for id := range m.expires {
		if m.expired(id, now) {
			delete(m.info, id)
			delete(m.turns, id)
			delete(m.expires, id)
			n++
		}
	}
	return n
}

func (m *MemoryStore) Close() error { return nil }
