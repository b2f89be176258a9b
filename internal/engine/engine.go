// Package engine runs the transfer protocol for one radio. It turns submitted
// messages into paced header and parcel lines, reassembles what peers send,
// asks for repeats when lines go missing and keeps outbound traffic off the
// channel while an inbound transfer is still arriving.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/1ureka/nearchat/internal/arbiter"
	"github.com/1ureka/nearchat/internal/config"
	"github.com/1ureka/nearchat/internal/protocol"
	"github.com/1ureka/nearchat/internal/transfer"
	"github.com/1ureka/nearchat/internal/util"
)

// ErrIDExhausted is returned when no free transfer id could be drawn.
var ErrIDExhausted = errors.New("no free transfer id")

const idAttempts = 16

// Engine owns the inbound table, the outbound archive and the send queue.
type Engine struct {
	cfg *config.Config
	tr  Transport
	dir PeerDirectory
	app Application
	arb *arbiter.Mutex

	inbound  *transfer.Table
	outbound *transfer.Archive
	queue    *queue
	stats    *util.Stats

	// ingressMu serialises reassembly so a line is checked and stored in one
	// step. Application callbacks run after it is released.
	ingressMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

// Option customises an Engine.
type Option func(*Engine)

// WithPeerDirectory sets the directory used to resolve rotating addresses.
func WithPeerDirectory(d PeerDirectory) Option {
	return func(e *Engine) { e.dir = d }
}

// WithApplication sets the receiver of delivered messages.
func WithApplication(a Application) Option {
	return func(e *Engine) { e.app = a }
}

// WithArbiter shares a channel arbiter with other users of the radio.
func WithArbiter(m *arbiter.Mutex) Option {
	return func(e *Engine) { e.arb = m }
}

// New creates an Engine writing through tr. Call Run to start sending.
func New(cfg *config.Config, tr Transport, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if tr == nil {
		return nil, errors.New("transport is nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:      cfg,
		tr:       tr,
		dir:      nopDirectory{},
		app:      nopApplication{},
		inbound:  transfer.NewTable(),
		outbound: transfer.NewArchive(),
		queue:    newQueue(cfg.QueueLimit),
		stats:    &util.Stats{},
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.arb == nil {
		e.arb = arbiter.New(cfg.LockTimeout)
	}
	return e, nil
}

// Run drives the send scheduler and the janitor. It blocks until ctx is done,
// after which pending parcel timers stop as well.
func (e *Engine) Run(ctx context.Context) error {
	defer e.cancel()

	go func() {
		select {
		case <-ctx.Done():
			e.cancel()
		case <-e.ctx.Done():
		}
	}()

	go e.runJanitor(e.ctx)
	e.runScheduler(e.ctx)
	return nil
}

// Close stops an engine that is not running.
func (e *Engine) Close() { e.cancel() }

// Arbiter returns the lock guarding the radio.
func (e *Engine) Arbiter() *arbiter.Mutex { return e.arb }

// Stats returns the engine's traffic counters.
func (e *Engine) Stats() *util.Stats { return e.stats }

// Submit chunks payload into a new transfer addressed to peer and starts
// pumping its lines. originID defaults to the local device id. It returns
// the transfer id.
func (e *Engine) Submit(peer string, cmd protocol.Command, payload, originID string) (string, error) {
	if originID == "" {
		originID = e.cfg.DeviceID
	}

	for range idAttempts {
		t, err := transfer.NewSender(cmd, payload, originID, e.cfg.ChunkSize)
		if err != nil {
			return "", err
		}
		s, ok := e.outbound.Add(peer, t)
		if !ok {
			continue
		}
		s.SetAddress(e.resolve(peer, peer))
		util.LogDebug("[%s] submitted %s to %s in %d parcel(s)", t.ID(), cmd, peer, t.TotalParcels())
		e.pump(s)
		return t.ID(), nil
	}
	return "", ErrIDExhausted
}

// Ping announces the local device id to peer.
func (e *Engine) Ping(peer string) {
	e.enqueue(e.resolve(peer, peer), protocol.PingLine(e.cfg.DeviceID))
}

// RequestProfile asks peer for its profile text.
func (e *Engine) RequestProfile(peer string) {
	e.enqueue(e.resolve(peer, peer), protocol.ProfileRequestLine())
}

// resolve returns the current address for a device id, or fallback when the
// directory does not know it.
func (e *Engine) resolve(deviceID, fallback string) string {
	if addr, ok := e.dir.ResolveCurrentAddress(deviceID); ok && addr != "" {
		return addr
	}
	return fallback
}

// runJanitor evicts stale state and nudges idle incomplete transfers.
func (e *Engine) runJanitor(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.sweep()
		}
	}
}

func (e *Engine) sweep() {
	for _, t := range e.inbound.EvictStale(e.cfg.StaleAfter) {
		util.LogDebug("[%s] evicted stale inbound transfer", t.ID())
	}
	if n := e.outbound.EvictStale(e.cfg.StaleAfter); n > 0 {
		util.LogDebug("evicted %d stale outbound transfer(s)", n)
	}
	if e.cfg.NudgeAfter > 0 {
		for _, idle := range e.inbound.Idle(e.cfg.NudgeAfter) {
			e.nudge(idle.Peer, idle.Transfer)
		}
	}
}
