package transfer

import (
	"sync"
	"time"
)

type key struct {
	peer string
	id   string
}

// tombstone remembers a delivered transfer so late replays of its lines are
// not mistaken for a new transfer.
type tombstone struct {
	t  *Transfer
	at time.Time
}

// Table is the receiver-side route table from (peer, transfer id) to the
// Transfer being reassembled. One mutex guards every entry because the
// duplicate scan walks all of them.
type Table struct {
	mu         sync.Mutex
	entries    map[key]*Transfer
	tombstones map[key]tombstone
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		entries:    make(map[key]*Transfer),
		tombstones: make(map[key]tombstone),
	}
}

// Get looks up the transfer id in flight from peer.
func (tb *Table) Get(peer, id string) (*Transfer, bool) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	t, ok := tb.entries[key{peer, id}]
	return t, ok
}

// Put registers a transfer with a valid header. Inert transfers are refused.
func (tb *Table) Put(peer string, t *Transfer) bool {
	if t == nil || !t.ValidHeader() {
		return false
	}
	tb.mu.Lock()
	defer tb.mu.Unlock()
	k := key{peer, t.ID()}
	tb.entries[k] = t
	delete(tb.tombstones, k)
	return true
}

// Remove drops the transfer without leaving a tombstone, so the same id can
// start over (used after a checksum failure).
func (tb *Table) Remove(peer, id string) {
	tb.mu.Lock()
	delete(tb.entries, key{peer, id})
	tb.mu.Unlock()
}

// Retire removes a delivered transfer and leaves a tombstone in its place.
func (tb *Table) Retire(peer string, t *Transfer) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	k := key{peer, t.ID()}
	delete(tb.entries, k)
	tb.tombstones[k] = tombstone{t: t, at: time.Now()}
}

// Retired reports whether line is a replay of a transfer from peer that was
// already delivered. Only lines that transfer consumed match; anything else
// under the same id belongs to a new transfer.
func (tb *Table) Retired(peer, id, line string) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	ts, ok := tb.tombstones[key{peer, id}]
	if !ok {
		return false
	}
	return ts.t.HasSeen(line)
}

// ContainsLine reports whether any tracked transfer already consumed line.
// The scan is linear in transfers; their number is small and bounded.
func (tb *Table) ContainsLine(line string) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	for _, t := range tb.entries {
		if t.HasSeen(line) {
			return true
		}
	}
	return false
}

// AnyActive reports whether some inbound transfer was touched within window.
func (tb *Table) AnyActive(window time.Duration) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	for _, t := range tb.entries {
		if t.IsStillActive(window) {
			return true
		}
	}
	return false
}

// Entry pairs a tracked transfer with the peer sending it.
type Entry struct {
	Peer string
	*Transfer
}

// Idle returns the transfers that have not been touched within window.
func (tb *Table) Idle(window time.Duration) []Entry {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	var idle []Entry
	for k, t := range tb.entries {
		if !t.IsStillActive(window) {
			idle = append(idle, Entry{Peer: k.peer, Transfer: t})
		}
	}
	return idle
}

// EvictStale drops transfers and tombstones idle for at least window and
// returns the evicted transfers.
func (tb *Table) EvictStale(window time.Duration) []*Transfer {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	var evicted []*Transfer
	for k, t := range tb.entries {
		if t.IsStale(window) {
			evicted = append(evicted, t)
			delete(tb.entries, k)
		}
	}
	for k, ts := range tb.tombstones {
		if time.Since(ts.at) >= window {
			delete(tb.tombstones, k)
		}
	}
	return evicted
}

// Len returns the number of transfers being reassembled.
func (tb *Table) Len() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return len(tb.entries)
}
