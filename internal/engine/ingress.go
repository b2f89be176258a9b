package engine

import (
	"errors"
	"strings"

	"github.com/1ureka/nearchat/internal/protocol"
	"github.com/1ureka/nearchat/internal/transfer"
	"github.com/1ureka/nearchat/internal/util"
)

// OnLineReceived is the single entry point for lines coming off the channel.
// Lines may arrive in any order, duplicated, or not at all.
func (e *Engine) OnLineReceived(peer, line string) {
	e.stats.AddRecv(len(line))

	if len(line) < protocol.IDLength || !strings.Contains(line, protocol.Separator) {
		util.LogDebug("dropping malformed line from %s: %q", peer, line)
		return
	}

	e.ingressMu.Lock()
	if e.inbound.ContainsLine(line) {
		e.ingressMu.Unlock()
		e.stats.AddDuplicate()
		util.LogDebug("dropping duplicate line from %s: %q", peer, line)
		return
	}
	if protocol.IsControl(line) {
		e.ingressMu.Unlock()
		e.handleControl(peer, line)
		return
	}
	done := e.assemble(peer, line)
	e.ingressMu.Unlock()

	if done != nil {
		util.LogSuccess("[%s] received %s from %s", done.ID(), done.Command(), done.OriginID())
		e.app.OnDelivered(done.OriginID(), done.Command(), done.Payload())
	}
}

// assemble routes a header or parcel line to its transfer and returns the
// transfer once it is complete and verified. Callers hold ingressMu.
func (e *Engine) assemble(peer, line string) *transfer.Transfer {
	id := protocol.TransferID(line)

	t, ok := e.inbound.Get(peer, id)
	if !ok {
		return e.begin(peer, id, line)
	}

	if err := t.ReceiveParcel(line); err != nil {
		util.LogDebug("[%s] ignoring line %q: %v", id, line, err)
		return nil
	}

	if t.Full() {
		if err := t.Verify(); err != nil {
			if errors.Is(err, protocol.ErrChecksumMismatch) {
				util.LogWarning("[%s] checksum mismatch, requesting the whole transfer", id)
			}
			e.inbound.Remove(peer, id)
			e.requestRepeat(peer, protocol.RepeatPackageLine(id))
			return nil
		}
		e.inbound.Retire(peer, t)
		e.stats.AddDelivered()
		if e.cfg.AckDelivered {
			e.enqueue(peer, protocol.AckLine(id))
		}
		return t
	}

	if t.HasGap() {
		e.requestGap(peer, t, t.GapCount())
	}
	return nil
}

// begin handles the first line seen for an unknown transfer id. A valid
// header opens a transfer; anything else asks the sender for the header.
func (e *Engine) begin(peer, id, line string) *transfer.Transfer {
	t := transfer.NewReceiver(line)

	if e.inbound.Retired(peer, id, line) {
		e.stats.AddDuplicate()
		util.LogDebug("[%s] dropping replay of a delivered transfer", id)
		return nil
	}

	if t.ValidHeader() {
		e.inbound.Put(peer, t)
		util.LogDebug("[%s] header from %s: %s, %d parcel(s)", id, peer, t.Command(), t.TotalParcels())
		return nil
	}

	if !validID(id) {
		util.LogDebug("dropping line with unusable transfer id from %s: %q", peer, line)
		return nil
	}
	util.LogDebug("[%s] no header yet, requesting it", id)
	e.requestRepeat(peer, protocol.RepeatParcelLine(id, 0))
	return nil
}

// requestGap asks for the first missing parcel when few are missing and for
// the whole transfer otherwise.
func (e *Engine) requestGap(peer string, t *transfer.Transfer, missing int) {
	if missing > e.cfg.GapRepeatThreshold {
		e.requestRepeat(peer, protocol.RepeatPackageLine(t.ID()))
		return
	}
	if i, ok := t.FirstGapIndex(); ok {
		e.requestRepeat(peer, protocol.RepeatParcelLine(t.ID(), i+1))
	}
}

// nudge re-requests what an idle transfer is still missing. Trailing parcels
// lost at the end of a transfer leave no gap to detect on arrival.
func (e *Engine) nudge(peer string, t *transfer.Transfer) {
	if t.Full() {
		return
	}
	util.LogDebug("[%s] idle with %d parcel(s) missing", t.ID(), t.MissingCount())
	e.requestGap(peer, t, t.MissingCount())
}

func (e *Engine) requestRepeat(peer, line string) {
	if e.enqueue(peer, line) {
		e.stats.AddRepeat()
	}
}

// validID reports whether id could have been produced by a sender.
func validID(id string) bool {
	if len(id) != protocol.IDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 'A' || id[i] > 'Z' {
			return false
		}
	}
	return true
}
