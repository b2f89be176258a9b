package transport

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/nearchat/internal/util"
)

const (
	highWaterMark  = 16 * 1024 // pause sending when bufferedAmount exceeds this
	lowWaterMark   = 4 * 1024  // resume sending when bufferedAmount drops below this
	sendBufferSize = 64        // outgoing line channel capacity
)

// sender is a goroutine-based line writer that serializes all writes to a
// single DataChannel, adding open-gate and backpressure control.
type sender struct {
	inbox       chan string
	drainSignal chan struct{}
}

// newSender creates a sender, wires the backpressure callbacks on dc, and
// starts the background loop. The loop exits when ctx is cancelled.
func newSender(ctx context.Context, dc *webrtc.DataChannel, openSignal <-chan struct{}) *sender {
	s := &sender{
		inbox:       make(chan string, sendBufferSize),
		drainSignal: make(chan struct{}, 1),
	}

	dc.SetBufferedAmountLowThreshold(uint64(lowWaterMark))
	dc.OnBufferedAmountLow(func() {
		select {
		case s.drainSignal <- struct{}{}:
		default:
		}
	})

	go s.loop(ctx, dc, openSignal)

	return s
}

// loop is the single-writer goroutine. It waits for the DataChannel to open,
// then drains the inbox with backpressure awareness.
func (s *sender) loop(ctx context.Context, dc *webrtc.DataChannel, openSignal <-chan struct{}) {
	select {
	case <-openSignal:
	case <-ctx.Done():
		return
	}

	for {
		select {
		case line := <-s.inbox:
			if dc.BufferedAmount() > uint64(highWaterMark) {
				select {
				case <-s.drainSignal:
				case <-ctx.Done():
					return
				}
			}

			if err := dc.SendText(line); err != nil {
				util.LogError("failed to send line %q: %v", line, err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// send enqueues a line. It blocks while the buffer is full and fails once
// either context is done.
func (s *sender) send(ctx, life context.Context, line string) error {
	select {
	case s.inbox <- line:
		return nil
	case <-life.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}
