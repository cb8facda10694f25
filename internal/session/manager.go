// Package session tracks which account is expected to type a follow-up value,
// such as a promo code or a custom attempt count, after pressing a button.
package session

import (
	"sync"
	"time"
)

// State is the pending-input state of an account.
type State string

const (
	StateIdle                 State = "idle"
	StateAwaitingPromoCode    State = "awaiting_promo_code"
	StateAwaitingAttemptCount State = "awaiting_attempt_count"
)

const (
	defaultTTL        = 10 * time.Minute
	defaultMaxEntries = 10000
)

type entry struct {
	state   State
	started time.Time
}

// Manager holds pending-input states with expiry and a size bound.
// When full, beginning a new session evicts the oldest one.
type Manager struct {
	mu      sync.Mutex
	entries map[int64]entry
	ttl     time.Duration
	max     int
	now     func() time.Time
}

// NewManager creates a Manager. Non-positive arguments use the defaults.
func NewManager(ttl time.Duration, maxEntries int) *Manager {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &Manager{
		entries: make(map[int64]entry),
		ttl:     ttl,
		max:     maxEntries,
		now:     time.Now,
	}
}

// Begin puts the account into state. StateIdle clears it.
func (m *Manager) Begin(accountID int64, state State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state == StateIdle {
		delete(m.entries, accountID)
		return
	}
	if _, ok := m.entries[accountID]; !ok && len(m.entries) >= m.max {
		m.sweepLocked()
		if len(m.entries) >= m.max {
			m.evictOldestLocked()
		}
	}
	m.entries[accountID] = entry{state: state, started: m.now()}
}

// State returns the pending state without clearing it.
func (m *Manager) State(accountID int64) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookupLocked(accountID)
}

// Consume returns the pending state and resets the account to idle.
func (m *Manager) Consume(accountID int64) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := m.lookupLocked(accountID)
	delete(m.entries, accountID)
	return state
}

// Len returns the number of tracked sessions, expired ones included until swept.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Sweep drops expired sessions and returns how many were removed.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweepLocked()
}

func (m *Manager) lookupLocked(accountID int64) State {
	e, ok := m.entries[accountID]
	if !ok {
		return StateIdle
	}
	if m.expired(e) {
		delete(m.entries, accountID)
		return StateIdle
	}
	return e.state
}

func (m *Manager) expired(e entry) bool {
	return m.now().Sub(e.started) >= m.ttl
}

func (m *Manager) sweepLocked() int {
	removed := 0
	for id, e := range m.entries {
		if m.expired(e) {
			delete(m.entries, id)
			removed++
		}
	}
	return removed
}

func (m *Manager) evictOldestLocked() {
	var (
		oldestID int64
		oldest   time.Time
		found    bool
	)
	for id, e := range m.entries {
		if !found || e.started.Before(oldest) {
			oldestID, oldest, found = id, e.started, true
		}
	}
	if found {
		delete(m.entries, oldestID)
	}
}
