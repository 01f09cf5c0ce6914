package api

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

const stateTTL = 10 * time.Minute

// stateRegistry issues and verifies the OAuth anti-forgery state values.
// Entries are single-use and expire after stateTTL.
type stateRegistry struct {
	mu     sync.Mutex
	states map[string]time.Time
}

func newStateRegistry() *stateRegistry {
	return &stateRegistry{states: make(map[string]time.Time)}
}

// Issue generates a random state value and records it.
func (r *stateRegistry) Issue() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	state := hex.EncodeToString(buf)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[state] = time.Now().Add(stateTTL)
	return state
}

// Consume verifies a state value and removes it so it cannot be replayed.
func (r *stateRegistry) Consume(state string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	expiry, ok := r.states[state]
	if !ok {
		return false
	}
	delete(r.states, state)

	// Sweep anything else that has expired while we hold the lock.
	now := time.Now()
	for s, exp := range r.states {
		if now.After(exp) {
			delete(r.states, s)
		}
	}

	return now.Before(expiry)
}
