package engine

import (
	"time"

	"github.com/1ureka/nearchat/internal/transfer"
)

// pump feeds a sent transfer's lines into the queue, one every ParcelDelay.
// Only one pump runs per transfer; rewinding the cursor while it runs makes
// the running pump start over.
func (e *Engine) pump(s *transfer.Sent) {
	if !s.BeginPump() {
		return
	}
	e.pumpNext(s)
}

func (e *Engine) pumpNext(s *transfer.Sent) {
	if e.ctx.Err() != nil {
		s.EndPump()
		return
	}

	line, ok := s.NextOutboundParcel()
	if !ok {
		s.EndPump()
		// A rewind may have landed between the last line and EndPump.
		if !s.Drained() && s.BeginPump() {
			time.AfterFunc(e.cfg.ParcelDelay, func() { e.pumpNext(s) })
		}
		return
	}

	e.enqueue(e.resolve(s.Peer, s.Address()), line)
	time.AfterFunc(e.cfg.ParcelDelay, func() { e.pumpNext(s) })
}
