package engine

import (
	"context"
	"sync"
	"time"

	"github.com/1ureka/nearchat/internal/util"
)

// outbound is one line waiting for the channel.
type outbound struct {
	peer string
	line string
}

// queue is the FIFO of lines waiting for a scheduler tick. A line already
// pending for the same peer is not queued twice, so repeated repeat requests
// collapse into one.
type queue struct {
	mu      sync.Mutex
	items   []outbound
	pending map[outbound]struct{}
	limit   int
}

func newQueue(limit int) *queue {
	return &queue{
		pending: make(map[outbound]struct{}),
		limit:   limit,
	}
}

// push appends a line. It returns false when the line is already pending or
// the queue is full.
func (q *queue) push(peer, line string) bool {
	item := outbound{peer: peer, line: line}

	q.mu.Lock()
	defer q.mu.Unlock()
	if _, dup := q.pending[item]; dup {
		return false
	}
	if len(q.items) >= q.limit {
		util.LogWarning("outbound queue full (%d), dropping line for %s", q.limit, peer)
		return false
	}
	q.items = append(q.items, item)
	q.pending[item] = struct{}{}
	return true
}

// pop removes the oldest line.
func (q *queue) pop() (outbound, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return outbound{}, false
	}
	item := q.items[0]
	q.items[0] = outbound{}
	q.items = q.items[1:]
	delete(q.pending, item)
	return item, true
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// enqueue hands a line to the scheduler.
func (e *Engine) enqueue(peer, line string) bool {
	return e.queue.push(peer, line)
}

// runScheduler drains the queue at SendInterval until ctx is done.
func (e *Engine) runScheduler(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.SendInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// tick sends at most one queued line. While any inbound transfer is still
// active the tick is skipped so the half-duplex channel stays free for it.
func (e *Engine) tick(ctx context.Context) bool {
	if e.queue.len() == 0 {
		return false
	}
	if e.inbound.AnyActive(e.cfg.ActivityWindow) {
		util.LogDebug("inbound transfer active, holding %d queued line(s)", e.queue.len())
		return false
	}

	item, ok := e.queue.pop()
	if !ok {
		return false
	}
	e.send(ctx, item)
	return true
}

// send writes one line while holding the channel arbiter. Failures are logged
// and counted; recovery is left to the receiver's repeat requests.
func (e *Engine) send(ctx context.Context, item outbound) {
	lockCtx, cancel := context.WithTimeout(ctx, e.cfg.LockTimeout)
	defer cancel()

	tok, err := e.arb.Lock(lockCtx)
	if err != nil {
		util.LogWarning("channel busy, dropping line for %s: %v", item.peer, err)
		e.stats.AddSendError()
		return
	}
	defer e.arb.Unlock(tok)

	if err := e.tr.SendLine(ctx, item.peer, item.line); err != nil {
		util.LogWarning("send to %s failed: %v", item.peer, err)
		e.stats.AddSendError()
		return
	}
	e.stats.AddSent(len(item.line))
	util.LogDebug("-> %s %s", item.peer, item.line)
}
