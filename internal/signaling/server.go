package signaling

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server is the host-side WebSocket endpoint. It accepts exactly one client
// presenting the right PIN.
type Server struct {
	pin      string
	listener net.Listener
	srv      *http.Server
	connCh   chan *websocket.Conn
}

// NewServer creates a server that requires pin from its client.
func NewServer(pin string) *Server {
	return &Server{
		pin:    pin,
		connCh: make(chan *websocket.Conn, 1),
	}
}

// Start begins listening on addr ("host:0" picks a free port) and returns the
// bound address.
func (s *Server) Start(addr string) (string, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to start WS server: %w", err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	s.srv = &http.Server{Handler: mux}

	go func() {
		_ = s.srv.Serve(listener)
	}()

	return listener.Addr().String(), nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("pin") != s.pin {
		http.Error(w, "Invalid PIN", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	// Only accept the first client.
	select {
	case s.connCh <- conn:
	default:
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "already connected"))
		conn.Close()
	}
}

// WaitForClient blocks until a client connects or ctx is cancelled.
func (s *Server) WaitForClient(ctx context.Context) (*websocket.Conn, error) {
	select {
	case conn := <-s.connCh:
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting new connections. Connections already handed out stay
// open.
func (s *Server) Close() {
	if s.srv != nil {
		s.srv.Close()
	}
}

// GeneratePIN returns a random numeric PIN of the given length.
func GeneratePIN(length int) string {
	digits := make([]byte, length)
	for i := range digits {
		n, _ := rand.Int(rand.Reader, big.NewInt(10))
		digits[i] = byte('0') + byte(n.Int64())
	}
	return string(digits)
}
