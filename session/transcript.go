package session

import (
	"strings"
	"sync"
	"time"
)

// Turn is one finalized exchange.
type Turn struct {
	User  string    `json:"user"`
	Model string    `json:"model"`
	At    time.Time `json:"at"`
}

// Transcript accumulates the in-progress user and model text and the
// finalized turn history. The session driver is the only writer; readers
// on other goroutines get copies.
type Transcript struct {
	mu      sync.RWMutex
	user    strings.Builder
	model   strings.Builder
	history []Turn
	now     func() time.Time
}

// NewTranscript returns an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{now: time.Now}
}

// AppendUser adds a fragment of the user's speech to the current turn.
func (t *Transcript) AppendUser(fragment string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.user.WriteString(fragment)
}

// AppendModel adds a fragment of the model's speech to the current turn.
func (t *Transcript) AppendModel(fragment string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.model.WriteString(fragment)
}

// Complete finalizes the current turn from the fragments received so far,
// appends it to the history and clears both accumulators.
func (t *Transcript) Complete() Turn {
	t.mu.Lock()
	defer t.mu.Unlock()

	turn := Turn{User: t.user.String(), Model: t.model.String(), At: t.now()}
	t.history = append(t.history, turn)
	t.user.Reset()
	t.model.Reset()
	return turn
}

// Live returns the in-progress user and model text.
func (t *Transcript) Live() (user, model string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.user.String(), t.model.String()
}

// History returns a copy of the finalized turns, oldest first.
func (t *Transcript) History() []Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Turn, len(t.history))
	copy(out, t.history)
	return out
}

// Len returns the number of finalized turns.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.history)
}
