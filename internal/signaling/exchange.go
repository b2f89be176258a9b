package signaling

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/nearchat/internal/transport"
)

// sender serializes outgoing signaling messages to the WebSocket.
type sender struct {
	dc   *transport.DataChannel
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *sender) send(msg message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(msg)
}

// sendOffer creates an SDP offer, sets it as local description, and sends it.
func (s *sender) sendOffer() error {
	offer, err := s.dc.CreateOffer()
	if err != nil {
		return fmt.Errorf("CreateOffer: %w", err)
	}
	if err := s.dc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("SetLocalDescription: %w", err)
	}
	return s.send(message{Type: msgTypeOffer, SDP: offer.SDP})
}

// sendAnswer creates an SDP answer, sets it as local description, and sends it.
func (s *sender) sendAnswer() error {
	answer, err := s.dc.CreateAnswer()
	if err != nil {
		return fmt.Errorf("CreateAnswer: %w", err)
	}
	if err := s.dc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("SetLocalDescription: %w", err)
	}
	return s.send(message{Type: msgTypeAnswer, SDP: answer.SDP})
}

func (s *sender) sendCandidate(c *webrtc.ICECandidate) error {
	data, err := json.Marshal(c.ToJSON())
	if err != nil {
		return err
	}
	return s.send(message{Type: msgTypeCandidate, Candidate: string(data)})
}

// receiver applies the peer's signaling messages to the DataChannel.
type receiver struct {
	dc     *transport.DataChannel
	conn   *websocket.Conn
	sender *sender
}

// watch reads messages until the WebSocket fails or is closed.
func (r *receiver) watch() error {
	for {
		var msg message
		if err := r.conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("failed to read WS message: %w", err)
		}

		switch msg.Type {
		case msgTypeOffer:
			if err := r.dc.SetRemoteDescription(webrtc.SessionDescription{
				Type: webrtc.SDPTypeOffer, SDP: msg.SDP,
			}); err != nil {
				return err
			}
			if err := r.sender.sendAnswer(); err != nil {
				return err
			}

		case msgTypeAnswer:
			if err := r.dc.SetRemoteDescription(webrtc.SessionDescription{
				Type: webrtc.SDPTypeAnswer, SDP: msg.SDP,
			}); err != nil {
				return err
			}

		case msgTypeCandidate:
			var init webrtc.ICECandidateInit
			if err := json.Unmarshal([]byte(msg.Candidate), &init); err != nil {
				return fmt.Errorf("failed to parse ICE candidate: %w", err)
			}
			if err := r.dc.AddICECandidate(init); err != nil {
				return err
			}
		}
	}
}
