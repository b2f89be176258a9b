package transport

import (
	"github.com/pion/webrtc/v4"
)

// STUN servers for ICE candidate gathering. No TURN: peers are expected to be
// reachable directly.
var stunServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// newPeerConnection creates a PeerConnection configured with Google STUN servers.
func newPeerConnection() (*webrtc.PeerConnection, error) {
	config := webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: stunServers},
		},
	}
	return webrtc.NewPeerConnection(config)
}

// newDataChannel creates a pre-negotiated DataChannel that behaves like a
// radio link: unordered and never retransmitted, so lines arrive out of order
// or not at all and the protocol above has to cope.
func newDataChannel(pc *webrtc.PeerConnection) (*webrtc.DataChannel, error) {
	ordered := false
	negotiated := true
	id := uint16(0)
	maxRetransmits := uint16(0)

	return pc.CreateDataChannel("lines", &webrtc.DataChannelInit{
		Ordered:        &ordered,
		Negotiated:     &negotiated,
		ID:             &id,
		MaxRetransmits: &maxRetransmits,
	})
}
