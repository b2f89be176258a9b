package transport

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/nearchat/internal/util"
)

// DataChannel carries lines over a WebRTC DataChannel configured to drop
// rather than retransmit. It stands in for a BLE link between two machines.
//
// Its lifecycle is governed by the DataChannel state and the context passed
// at construction time.
type DataChannel struct {
	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	sender     *sender
	openSignal chan struct{}
	peer       string

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	pcState webrtc.PeerConnectionState
}

var _ LineTransport = (*DataChannel)(nil)

// NewDataChannel creates a PeerConnection with a pre-negotiated DataChannel.
// The caller performs signaling through the exposed methods and then uses
// SendLine / OnLine. peer names the remote side in OnLine callbacks.
func NewDataChannel(ctx context.Context, peer string) (*DataChannel, error) {
	pc, err := newPeerConnection()
	if err != nil {
		return nil, err
	}

	dc, err := newDataChannel(pc)
	if err != nil {
		pc.Close()
		return nil, err
	}

	tCtx, tCancel := context.WithCancel(ctx)

	t := &DataChannel{
		pc:         pc,
		dc:         dc,
		openSignal: make(chan struct{}),
		peer:       peer,
		ctx:        tCtx,
		cancel:     tCancel,
		pcState:    webrtc.PeerConnectionStateNew,
	}

	var openOnce sync.Once
	dc.OnOpen(func() {
		openOnce.Do(func() { close(t.openSignal) })
	})

	dc.OnClose(func() {
		util.LogDebug("DataChannel closed")
		tCancel()
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("PeerConnection state: %s", state.String())
		t.mu.Lock()
		t.pcState = state
		t.mu.Unlock()
	})

	t.sender = newSender(tCtx, dc, t.openSignal)

	return t, nil
}

// Ready returns a channel that is closed when the DataChannel is open.
func (t *DataChannel) Ready() <-chan struct{} {
	return t.openSignal
}

// Done returns a channel that is closed when the DataChannel shuts down.
func (t *DataChannel) Done() <-chan struct{} {
	return t.ctx.Done()
}

// Close shuts down the DataChannel and PeerConnection.
func (t *DataChannel) Close() error {
	t.cancel()
	return errors.Join(t.dc.Close(), t.pc.Close())
}

// ConnectionState returns the last observed PeerConnection state.
func (t *DataChannel) ConnectionState() webrtc.PeerConnectionState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pcState
}

// ---------------------------------------------------------------------------
// Signaling
// ---------------------------------------------------------------------------

func (t *DataChannel) CreateOffer() (webrtc.SessionDescription, error) {
	return t.pc.CreateOffer(nil)
}

func (t *DataChannel) CreateAnswer() (webrtc.SessionDescription, error) {
	return t.pc.CreateAnswer(nil)
}

func (t *DataChannel) SetLocalDescription(sdp webrtc.SessionDescription) error {
	return t.pc.SetLocalDescription(sdp)
}

func (t *DataChannel) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	return t.pc.SetRemoteDescription(sdp)
}

// OnICECandidate registers a callback invoked whenever a new local ICE
// candidate is gathered. A nil candidate signals the end of gathering.
func (t *DataChannel) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	t.pc.OnICECandidate(fn)
}

func (t *DataChannel) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return t.pc.AddICECandidate(candidate)
}

// ---------------------------------------------------------------------------
// Data
// ---------------------------------------------------------------------------

// SendLine enqueues a line for the single writer goroutine.
func (t *DataChannel) SendLine(ctx context.Context, _ string, line string) error {
	return t.sender.send(ctx, t.ctx, line)
}

// OnLine registers a callback invoked for every inbound DataChannel message.
func (t *DataChannel) OnLine(fn func(peer, line string)) {
	t.dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		fn(t.peer, string(msg.Data))
	})
}
