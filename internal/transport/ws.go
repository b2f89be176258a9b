package transport

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/nearchat/internal/util"
)

const wsWriteTimeout = 5 * time.Second

// WebSocket carries one line per text message over a gorilla connection.
// The connection is reliable, so it is usually wrapped in Lossy when used to
// exercise recovery.
type WebSocket struct {
	conn *websocket.Conn
	peer string

	writeMu sync.Mutex

	mu      sync.RWMutex
	handler func(peer, line string)

	ctx    context.Context
	cancel context.CancelFunc
}

var _ LineTransport = (*WebSocket)(nil)

// NewWebSocket wraps conn and starts its read loop.
func NewWebSocket(ctx context.Context, conn *websocket.Conn) *WebSocket {
	wCtx, wCancel := context.WithCancel(ctx)
	w := &WebSocket{
		conn:   conn,
		peer:   conn.RemoteAddr().String(),
		ctx:    wCtx,
		cancel: wCancel,
	}

	go func() {
		<-wCtx.Done()
		conn.Close()
	}()
	go w.readLoop()

	return w
}

func (w *WebSocket) readLoop() {
	defer w.cancel()
	for {
		kind, data, err := w.conn.ReadMessage()
		if err != nil {
			if w.ctx.Err() == nil {
				util.LogDebug("WebSocket read ended: %v", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		w.mu.RLock()
		fn := w.handler
		w.mu.RUnlock()
		if fn != nil {
			fn(w.peer, string(data))
		}
	}
}

// SendLine writes line as one text message.
func (w *WebSocket) SendLine(ctx context.Context, _ string, line string) error {
	if w.ctx.Err() != nil {
		return ErrClosed
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	deadline := time.Now().Add(wsWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := w.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return w.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

// OnLine registers the inbound line callback.
func (w *WebSocket) OnLine(fn func(peer, line string)) {
	w.mu.Lock()
	w.handler = fn
	w.mu.Unlock()
}

// Done is closed when the connection ends.
func (w *WebSocket) Done() <-chan struct{} { return w.ctx.Done() }

// Close sends a close frame and tears the connection down.
func (w *WebSocket) Close() error {
	w.writeMu.Lock()
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	w.writeMu.Unlock()
	w.cancel()
	return nil
}
