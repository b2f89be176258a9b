package engine

import (
	"github.com/1ureka/nearchat/internal/protocol"
	"github.com/1ureka/nearchat/internal/transfer"
	"github.com/1ureka/nearchat/internal/util"
)

// handleControl acts on a line starting with '>'.
func (e *Engine) handleControl(peer, line string) {
	c, err := protocol.ParseControl(line)
	if err != nil {
		util.LogDebug("ignoring control line from %s: %v", peer, err)
		return
	}

	switch c.Kind {
	case protocol.ControlRepeatPackage:
		s, ok := e.outbound.Get(c.TransferID)
		if !ok {
			util.LogDebug("[%s] repeat requested for unknown transfer", c.TransferID)
			return
		}
		if !e.redirect(s, peer) {
			return
		}
		util.LogInfo("[%s] %s asked for the whole transfer again", c.TransferID, peer)
		s.ResetCursor()
		e.pump(s)

	case protocol.ControlRepeatParcel:
		s, ok := e.outbound.Get(c.TransferID)
		if !ok {
			util.LogDebug("[%s] repeat requested for unknown transfer", c.TransferID)
			return
		}
		if !e.redirect(s, peer) {
			return
		}
		out, ok := s.SpecificParcel(c.Index)
		if !ok {
			util.LogDebug("[%s] no parcel %d to repeat", c.TransferID, c.Index)
			return
		}
		util.LogDebug("[%s] repeating parcel %d for %s", c.TransferID, c.Index, peer)
		s.Touch()
		e.enqueue(e.resolve(s.Peer, s.Address()), out)

	case protocol.ControlPing:
		e.dir.Observe(peer, c.Payload)

	case protocol.ControlProfileRequest:
		e.app.OnProfileRequest(peer)

	case protocol.ControlAck:
		if e.outbound.Remove(c.TransferID) {
			util.LogDebug("[%s] acknowledged by %s", c.TransferID, peer)
			e.app.OnAcknowledged(peer, c.TransferID)
		}
	}
}

// redirect points s at the requester of a repeat. A requester is refused when
// the directory places the recipient at another address; otherwise it may be
// the recipient after an address change.
func (e *Engine) redirect(s *transfer.Sent, peer string) bool {
	if peer == s.Address() {
		return true
	}
	if addr, ok := e.dir.ResolveCurrentAddress(s.Peer); ok && addr != "" && addr != peer {
		util.LogDebug("[%s] ignoring repeat request from %s, recipient is at %s", s.ID(), peer, addr)
		return false
	}
	s.SetAddress(peer)
	return true
}
