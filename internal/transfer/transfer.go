// Package transfer holds the state of in-flight multi-parcel messages on both
// the sending and the receiving side, and the tables that track them.
package transfer

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/1ureka/nearchat/internal/protocol"
)

// Role tells which side of a transfer this process plays.
type Role uint8

const (
	RoleSender Role = iota + 1
	RoleReceiver
)

func (r Role) String() string {
	switch r {
	case RoleSender:
		return "sender"
	case RoleReceiver:
		return "receiver"
	default:
		return "unknown"
	}
}

// Transfer is one in-flight package. All methods are safe for concurrent use;
// none of them panic on malformed peer input.
type Transfer struct {
	mu sync.Mutex

	id       string
	role     Role
	command  protocol.Command
	originID string
	checksum string
	header   string // encoded header line

	slots  []*string // nil = not yet received
	cursor int       // -1 = header not yet emitted (sender only)

	seen         map[string]struct{} // raw lines already consumed (receiver only)
	lastActivity time.Time
	validHeader  bool
}

// NewSender prepares payload for transmission under a fresh id.
func NewSender(cmd protocol.Command, payload, originID string, chunkSize int) (*Transfer, error) {
	if cmd == protocol.CommandNone {
		return nil, fmt.Errorf("cannot send command %s", cmd)
	}
	if strings.Contains(originID, protocol.Separator) {
		return nil, fmt.Errorf("origin id %q must not contain %q", originID, protocol.Separator)
	}
	sum, err := protocol.Checksum(payload)
	if err != nil {
		return nil, err
	}

	chunks := protocol.Chunk(payload, chunkSize)
	if len(chunks) > protocol.MaxParcels {
		return nil, fmt.Errorf("payload needs %d parcels (max %d)", len(chunks), protocol.MaxParcels)
	}

	slots := make([]*string, len(chunks))
	for i := range chunks {
		slots[i] = &chunks[i]
	}

	t := &Transfer{
		id:           NewID(),
		role:         RoleSender,
		command:      cmd,
		originID:     originID,
		checksum:     sum,
		slots:        slots,
		cursor:       -1,
		lastActivity: time.Now(),
		validHeader:  true,
	}
	t.header = t.encodeHeader()
	return t, nil
}

// NewReceiver builds a receiving transfer from a header line. If the line is
// not a usable header the result is inert and ValidHeader reports false.
func NewReceiver(headerLine string) *Transfer {
	h, err := protocol.DecodeHeader(headerLine)
	if err != nil || h.TotalParcels == 0 {
		return &Transfer{role: RoleReceiver, cursor: -1}
	}

	return &Transfer{
		id:           h.ID,
		role:         RoleReceiver,
		command:      h.Command,
		originID:     h.OriginID,
		checksum:     h.Checksum,
		header:       headerLine,
		slots:        make([]*string, h.TotalParcels),
		cursor:       -1,
		seen:         map[string]struct{}{headerLine: {}},
		lastActivity: time.Now(),
		validHeader:  true,
	}
}

func (t *Transfer) encodeHeader() string {
	return protocol.EncodeHeader(protocol.Header{
		ID:           t.id,
		TotalParcels: len(t.slots),
		Checksum:     t.checksum,
		Command:      t.command,
		OriginID:     t.originID,
	})
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

func (t *Transfer) ID() string                { return t.id }
func (t *Transfer) Role() Role                { return t.role }
func (t *Transfer) Command() protocol.Command { return t.command }
func (t *Transfer) OriginID() string          { return t.originID }
func (t *Transfer) Checksum() string          { return t.checksum }
func (t *Transfer) TotalParcels() int         { return len(t.slots) }
func (t *Transfer) ValidHeader() bool         { return t.validHeader }

// HeaderLine returns the encoded header of this transfer.
func (t *Transfer) HeaderLine() string { return t.header }

// ---------------------------------------------------------------------------
// Sender side
// ---------------------------------------------------------------------------

// NextOutboundParcel returns the next line to emit: the header on the first
// call, then each parcel in order. It returns false once everything is out.
func (t *Transfer) NextOutboundParcel() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastActivity = time.Now()

	if t.cursor < 0 {
		t.cursor = 0
		return t.header, true
	}
	if t.cursor >= len(t.slots) {
		return "", false
	}

	i := t.cursor
	t.cursor++
	var text string
	if t.slots[i] != nil {
		text = *t.slots[i]
	}
	return protocol.EncodeParcel(t.id, i, text), true
}

// ResetCursor rewinds the transfer so the header and every parcel are sent again.
func (t *Transfer) ResetCursor() {
	t.mu.Lock()
	t.cursor = -1
	t.mu.Unlock()
}

// Drained reports whether every line has been handed out.
func (t *Transfer) Drained() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cursor >= len(t.slots)
}

// SpecificParcel returns the encoded line for a 1-based parcel index, as used
// by repeat requests. Index 0 names the header line.
func (t *Transfer) SpecificParcel(index1Based int) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if index1Based == 0 {
		return t.header, t.validHeader
	}
	i := index1Based - 1
	if i < 0 || i >= len(t.slots) || t.slots[i] == nil {
		return "", false
	}
	return protocol.EncodeParcel(t.id, i, *t.slots[i]), true
}

// ---------------------------------------------------------------------------
// Receiver side
// ---------------------------------------------------------------------------

// ReceiveParcel stores the text of a parcel line in its slot. Lines for another
// transfer, unparsable lines and out-of-range indexes are not stored.
func (t *Transfer) ReceiveParcel(line string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	index, text, err := protocol.DecodeParcel(line, t.id)
	if err != nil {
		return err
	}
	t.lastActivity = time.Now()

	if index < 0 || index >= len(t.slots) {
		return fmt.Errorf("%w: index %d out of range [0,%d)", protocol.ErrInvalidParcel, index, len(t.slots))
	}

	t.slots[index] = &text
	if t.seen == nil {
		t.seen = make(map[string]struct{})
	}
	t.seen[line] = struct{}{}
	return nil
}

// HasSeen reports whether line was already consumed by this transfer.
func (t *Transfer) HasSeen(line string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.seen[line]
	return ok
}

// Full reports whether every slot holds text, whatever the checksum says.
func (t *Transfer) Full() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.full()
}

func (t *Transfer) full() bool {
	for _, s := range t.slots {
		if s == nil {
			return false
		}
	}
	return len(t.slots) > 0
}

// IsComplete reports whether every slot is filled and the reassembled payload
// matches the checksum announced in the header.
func (t *Transfer) IsComplete() bool {
	return t.Verify() == nil
}

// Verify returns nil for a complete transfer and ErrChecksumMismatch when all
// slots are filled but the digest is wrong.
func (t *Transfer) Verify() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.full() {
		return fmt.Errorf("transfer %s is missing parcels", t.id)
	}
	sum, err := protocol.Checksum(t.payload())
	if err != nil {
		return err
	}
	if sum != t.checksum {
		return fmt.Errorf("%w: transfer %s got %s want %s", protocol.ErrChecksumMismatch, t.id, sum, t.checksum)
	}
	return nil
}

// Payload concatenates the filled slots in order.
func (t *Transfer) Payload() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.payload()
}

func (t *Transfer) payload() string {
	var b strings.Builder
	for _, s := range t.slots {
		if s != nil {
			b.WriteString(*s)
		}
	}
	return b.String()
}

// HasGap reports whether a slot below the highest filled one is still empty.
// Parcels that simply have not arrived yet at the tail are not gaps.
func (t *Transfer) HasGap() bool {
	return t.GapCount() > 0
}

// GapCount returns the number of empty slots below the highest filled slot.
func (t *Transfer) GapCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	last := -1
	for i, s := range t.slots {
		if s != nil {
			last = i
		}
	}

	gaps := 0
	for i := 0; i < last; i++ {
		if t.slots[i] == nil {
			gaps++
		}
	}
	return gaps
}

// MissingCount returns the number of empty slots, trailing ones included.
func (t *Transfer) MissingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, s := range t.slots {
		if s == nil {
			n++
		}
	}
	return n
}

// FirstGapIndex returns the lowest empty slot index.
func (t *Transfer) FirstGapIndex() (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, s := range t.slots {
		if s == nil {
			return i, true
		}
	}
	return 0, false
}

// ---------------------------------------------------------------------------
// Liveness
// ---------------------------------------------------------------------------

// Touch marks the transfer as active now.
func (t *Transfer) Touch() {
	t.mu.Lock()
	t.lastActivity = time.Now()
	t.mu.Unlock()
}

// LastActivity returns the time of the last send or receive.
func (t *Transfer) LastActivity() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastActivity
}

// IsStillActive reports whether the transfer was touched within window.
func (t *Transfer) IsStillActive(window time.Duration) bool {
	return time.Since(t.LastActivity()) < window
}

// IsStale reports whether the transfer has been idle for at least window.
func (t *Transfer) IsStale(window time.Duration) bool {
	return !t.IsStillActive(window)
}
