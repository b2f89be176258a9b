package engine

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/1ureka/nearchat/internal/config"
	"github.com/1ureka/nearchat/internal/protocol"
	"github.com/1ureka/nearchat/internal/transfer"
)

// Compile-time interface checks.
var (
	_ Transport     = (*recordingTransport)(nil)
	_ Transport     = (*mockLink)(nil)
	_ PeerDirectory = (*fakeDirectory)(nil)
	_ Application   = (*recordingApp)(nil)
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.DeviceID = "dev"
	cfg.ChunkSize = 4
	cfg.SendInterval = 2 * time.Millisecond
	cfg.ParcelDelay = 2 * time.Millisecond
	cfg.ActivityWindow = 20 * time.Millisecond
	cfg.NudgeAfter = 40 * time.Millisecond
	cfg.JanitorInterval = 10 * time.Millisecond
	cfg.StaleAfter = time.Minute
	cfg.LockTimeout = time.Second
	return cfg
}

func newTestEngine(t *testing.T, cfg *config.Config, tr Transport, opts ...Option) *Engine {
	t.Helper()
	e, err := New(cfg, tr, opts...)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

// senderLines returns the header and parcel lines of a fresh transfer.
func senderLines(t *testing.T, cmd protocol.Command, payload string, chunk int) (string, []string) {
	t.Helper()
	s, err := transfer.NewSender(cmd, payload, "remote", chunk)
	require.NoError(t, err)
	var lines []string
	for {
		line, ok := s.NextOutboundParcel()
		if !ok {
			return s.ID(), lines
		}
		lines = append(lines, line)
	}
}

// drainQueue pops every queued line without sending it.
func drainQueue(e *Engine) []outbound {
	var items []outbound
	for {
		item, ok := e.queue.pop()
		if !ok {
			return items
		}
		items = append(items, item)
	}
}

func queuedLines(e *Engine) []string {
	var lines []string
	for _, item := range drainQueue(e) {
		lines = append(lines, item.line)
	}
	return lines
}

// ---------------------------------------------------------------------------
// recordingTransport
// ---------------------------------------------------------------------------

type recordingTransport struct {
	mu    sync.Mutex
	sent  []outbound
	err   error
	delay time.Duration
}

func (r *recordingTransport) SendLine(ctx context.Context, peer, line string) error {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, outbound{peer: peer, line: line})
	return nil
}

func (r *recordingTransport) lines() []outbound {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]outbound(nil), r.sent...)
}

var errLinkDown = errors.New("link down")

// ---------------------------------------------------------------------------
// mockLink
// ---------------------------------------------------------------------------

// mockLink implements Transport for in-process testing. Two linked mockLinks
// simulate a lossy radio: each line sent by one side reaches the other side's
// handler after a random delay in [0, 3ms), unless drop says otherwise.
type mockLink struct {
	name string // address the other side sees this side as

	mu      sync.RWMutex
	handler func(peer, line string)
	other   *mockLink
	drop    func(line string) bool
}

func mockLinks(a, b string) (*mockLink, *mockLink) {
	la := &mockLink{name: a}
	lb := &mockLink{name: b}
	la.other = lb
	lb.other = la
	return la, lb
}

func (m *mockLink) OnLine(fn func(peer, line string)) {
	m.mu.Lock()
	m.handler = fn
	m.mu.Unlock()
}

func (m *mockLink) SendLine(ctx context.Context, peer, line string) error {
	if m.drop != nil && m.drop(line) {
		return nil
	}
	go func() {
		time.Sleep(time.Duration(rand.Int64N(3000)) * time.Microsecond)

		m.other.mu.RLock()
		fn := m.other.handler
		m.other.mu.RUnlock()
		if fn != nil {
			fn(m.name, line)
		}
	}()
	return nil
}

// dropFirstTime loses each distinct data line with the given probability the
// first time it is sent. Control lines always get through.
func dropFirstTime(rate float64) func(string) bool {
	var mu sync.Mutex
	seen := make(map[string]bool)
	return func(line string) bool {
		if protocol.IsControl(line) {
			return false
		}
		mu.Lock()
		defer mu.Unlock()
		if seen[line] {
			return false
		}
		seen[line] = true
		return rand.Float64() < rate
	}
}

// ---------------------------------------------------------------------------
// fakeDirectory / recordingApp
// ---------------------------------------------------------------------------

type fakeDirectory struct {
	mu       sync.Mutex
	addrs    map[string]string
	observed []string
}

func (d *fakeDirectory) ResolveCurrentAddress(deviceID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	addr, ok := d.addrs[deviceID]
	return addr, ok
}

func (d *fakeDirectory) Observe(peer, payload string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observed = append(d.observed, peer+"="+payload)
}

type delivery struct {
	origin  string
	cmd     protocol.Command
	payload string
}

type recordingApp struct {
	mu        sync.Mutex
	delivered []delivery
	profiles  []string
	acks      []string
}

func (a *recordingApp) OnDelivered(originID string, cmd protocol.Command, payload string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.delivered = append(a.delivered, delivery{originID, cmd, payload})
}

func (a *recordingApp) OnProfileRequest(peer string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.profiles = append(a.profiles, peer)
}

func (a *recordingApp) OnAcknowledged(peer, transferID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks = append(a.acks, transferID)
}

func (a *recordingApp) deliveries() []delivery {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]delivery(nil), a.delivered...)
}

func (a *recordingApp) acked() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.acks...)
}
