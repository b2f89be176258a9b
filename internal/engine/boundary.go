package engine

import (
	"context"

	"github.com/1ureka/nearchat/internal/protocol"
)

// Transport writes one line to a peer. Implementations deliver whole lines or
// nothing; loss is expected and recovered by the engine.
type Transport interface {
	SendLine(ctx context.Context, peer, line string) error
}

// PeerDirectory maps stable device ids to the address a peer currently uses.
// Radios rotate addresses, so retransmissions look the peer up again.
type PeerDirectory interface {
	ResolveCurrentAddress(deviceID string) (string, bool)
	Observe(peer, payload string)
}

// Application receives the results of the protocol.
type Application interface {
	OnDelivered(originID string, cmd protocol.Command, payload string)
	OnProfileRequest(peer string)
	OnAcknowledged(peer, transferID string)
}

type nopDirectory struct{}

func (nopDirectory) ResolveCurrentAddress(string) (string, bool) { return "", false }
func (nopDirectory) Observe(string, string)                      {}

type nopApplication struct{}

func (nopApplication) OnDelivered(string, protocol.Command, string) {}
func (nopApplication) OnProfileRequest(string)                      {}
func (nopApplication) OnAcknowledged(string, string)                {}
