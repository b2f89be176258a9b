// Package arbiter serialises exclusive use of the shared radio: scanning and
// connect/read/write cannot overlap, so every caller touching the channel
// acquires or waits on one Mutex.
package arbiter

import (
	"context"
	"sync"
	"time"

	"github.com/1ureka/nearchat/internal/util"
)

// DefaultTimeout is how long a holder may keep the lock before it is released
// on its behalf.
const DefaultTimeout = 20 * time.Second

// Mutex is a binary lock whose hold time is bounded. A holder that never calls
// Unlock loses the lock once its deadline passes.
type Mutex struct {
	timeout time.Duration

	mu       sync.Mutex
	locked   bool
	deadline time.Time
	gen      uint64        // bumped on every acquisition
	released chan struct{} // closed and replaced whenever the lock frees up
	timer    *time.Timer
}

// Token identifies one acquisition of a Mutex. The zero Token never matches.
type Token uint64

// New creates an unlocked Mutex. A non-positive timeout selects DefaultTimeout.
func New(timeout time.Duration) *Mutex {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Mutex{
		timeout:  timeout,
		released: make(chan struct{}),
	}
}

// Lock blocks until the lock is free or ctx is done. The returned Token must
// be passed to Unlock.
func (m *Mutex) Lock(ctx context.Context) (Token, error) {
	for {
		m.mu.Lock()
		m.expireLocked()
		if !m.locked {
			m.locked = true
			m.gen++
			gen := m.gen
			m.deadline = time.Now().Add(m.timeout)
			m.timer = time.AfterFunc(m.timeout, func() { m.expire(gen) })
			m.mu.Unlock()
			return Token(gen), nil
		}
		wait := m.released
		m.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// Unlock frees the acquisition named by tok and wakes the waiters; one of them
// acquires it. It is a no-op once tok's hold has expired, even if someone else
// holds the lock by now.
func (m *Mutex) Unlock(tok Token) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked()
	if !m.locked || uint64(tok) != m.gen {
		return
	}
	m.releaseLocked()
}

// WaitUntilUnlocked blocks until nobody holds the lock, without taking it.
func (m *Mutex) WaitUntilUnlocked(ctx context.Context) error {
	for {
		m.mu.Lock()
		m.expireLocked()
		if !m.locked {
			m.mu.Unlock()
			return nil
		}
		wait := m.released
		m.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Locked reports whether the lock is currently held.
func (m *Mutex) Locked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked()
	return m.locked
}

// expire is the timer callback for acquisition gen.
func (m *Mutex) expire(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked && m.gen == gen {
		util.LogWarning("channel lock held longer than %v, releasing", m.timeout)
		m.releaseLocked()
	}
}

// expireLocked applies the deadline when the timer has not fired yet.
func (m *Mutex) expireLocked() {
	if m.locked && !time.Now().Before(m.deadline) {
		util.LogWarning("channel lock held longer than %v, releasing", m.timeout)
		m.releaseLocked()
	}
}

func (m *Mutex) releaseLocked() {
	m.locked = false
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	close(m.released)
	m.released = make(chan struct{})
}
