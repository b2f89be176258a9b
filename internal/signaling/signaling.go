package signaling

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/nearchat/internal/transport"
	"github.com/1ureka/nearchat/internal/util"
)

// UpgradeAsHost negotiates a DataChannel over an accepted WebSocket. The host
// sends the offer. The WebSocket is closed once the channel is open.
func UpgradeAsHost(ctx context.Context, conn *websocket.Conn) (*transport.DataChannel, error) {
	return upgrade(ctx, conn, true)
}

// UpgradeAsClient answers the host's offer over conn.
func UpgradeAsClient(ctx context.Context, conn *websocket.Conn) (*transport.DataChannel, error) {
	return upgrade(ctx, conn, false)
}

func upgrade(ctx context.Context, conn *websocket.Conn, offer bool) (*transport.DataChannel, error) {
	defer conn.Close()

	dc, err := transport.NewDataChannel(ctx, conn.RemoteAddr().String())
	if err != nil {
		return nil, fmt.Errorf("failed to create DataChannel: %w", err)
	}

	s := &sender{dc: dc, conn: conn}
	r := &receiver{dc: dc, conn: conn, sender: s}

	dc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c != nil {
			// Best effort: a lost candidate only narrows the choice of paths.
			_ = s.sendCandidate(c)
		}
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- r.watch() // exits when conn is closed (deferred above)
	}()

	if offer {
		if err := s.sendOffer(); err != nil {
			dc.Close()
			return nil, fmt.Errorf("failed to send offer: %w", err)
		}
	}

	select {
	case <-dc.Ready():
		util.LogDebug("WebRTC DataChannel established, closing WS")
		return dc, nil

	case err := <-errCh:
		dc.Close()
		return nil, fmt.Errorf("signaling failed: %w", err)

	case <-ctx.Done():
		dc.Close()
		return nil, ctx.Err()
	}
}
