package transfer

import (
	"sync"
	"sync/atomic"
	"time"
)

// Sent is an outbound transfer kept around so repeat requests can be served.
type Sent struct {
	*Transfer
	Peer string // address or device id the transfer was submitted to

	pumping atomic.Bool

	addrMu sync.Mutex
	addr   string // last address the peer was seen at
}

// BeginPump claims the right to emit this transfer's lines. It returns false
// when another pump is already running.
func (s *Sent) BeginPump() bool { return s.pumping.CompareAndSwap(false, true) }

// EndPump releases the claim taken by BeginPump.
func (s *Sent) EndPump() { s.pumping.Store(false) }

// Address returns the last known address of the peer.
func (s *Sent) Address() string {
	s.addrMu.Lock()
	defer s.addrMu.Unlock()
	return s.addr
}

// SetAddress records where the peer was last heard from.
func (s *Sent) SetAddress(addr string) {
	s.addrMu.Lock()
	s.addr = addr
	s.addrMu.Unlock()
}

// Archive is the sender-side store of transfers, keyed by id. Ids are unique
// within one archive.
type Archive struct {
	mu      sync.Mutex
	entries map[string]*Sent
}

// NewArchive creates an empty archive.
func NewArchive() *Archive {
	return &Archive{entries: make(map[string]*Sent)}
}

// Add stores t for peer. It returns false when the id is already taken.
func (a *Archive) Add(peer string, t *Transfer) (*Sent, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, taken := a.entries[t.ID()]; taken {
		return nil, false
	}
	s := &Sent{Transfer: t, Peer: peer, addr: peer}
	a.entries[t.ID()] = s
	return s, true
}

// Get returns the sent transfer with the given id.
func (a *Archive) Get(id string) (*Sent, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.entries[id]
	return s, ok
}

// Remove forgets a sent transfer.
func (a *Archive) Remove(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.entries[id]
	delete(a.entries, id)
	return ok
}

// EvictStale forgets transfers idle for at least window and returns how many
// were dropped.
func (a *Archive) EvictStale(window time.Duration) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for id, s := range a.entries {
		if s.IsStale(window) {
			delete(a.entries, id)
			n++
		}
	}
	return n
}

// Len returns the number of archived transfers.
func (a *Archive) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}
