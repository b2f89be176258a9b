package signaling

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"
)

// Connect dials the host's WebSocket URL. The URL carries the PIN as a query
// parameter, e.g.:
//
//	ws://192.168.1.20:40123/ws?pin=1234
func Connect(ctx context.Context, url string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WS server: %w", err)
	}
	return conn, nil
}
