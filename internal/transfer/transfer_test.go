package transfer

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/nearchat/internal/protocol"
)

// drain collects every line a sender transfer emits.
func drain(t *testing.T, tr *Transfer) []string {
	t.Helper()
	var lines []string
	for {
		line, ok := tr.NextOutboundParcel()
		if !ok {
			return lines
		}
		lines = append(lines, line)
	}
}

func TestNewID(t *testing.T) {
	for range 100 {
		id := NewID()
		assert.Regexp(t, `^[A-Z]{2}$`, id)
	}
}

// Scenario A: a single-parcel payload.
func TestSingleParcelTransfer(t *testing.T) {
	sender, err := NewSender(protocol.CommandChat, "HELLO", "device-1", 10)
	require.NoError(t, err)

	lines := drain(t, sender)
	require.Len(t, lines, 2)

	id := sender.ID()
	assert.Equal(t, id+":001:IOAA:CHAT:device-1", lines[0])
	assert.Equal(t, id+"000:HELLO", lines[1])

	receiver := NewReceiver(lines[0])
	require.True(t, receiver.ValidHeader())
	assert.Equal(t, id, receiver.ID())
	assert.Equal(t, "device-1", receiver.OriginID())
	assert.Equal(t, protocol.CommandChat, receiver.Command())
	assert.False(t, receiver.IsComplete())

	require.NoError(t, receiver.ReceiveParcel(lines[1]))
	assert.True(t, receiver.IsComplete())
	assert.NoError(t, receiver.Verify())
	assert.Equal(t, "HELLO", receiver.Payload())
}

// Scenario B: parcel 1 of 3 is lost, then arrives late.
func TestGapRecovery(t *testing.T) {
	sender, err := NewSender(protocol.CommandGeneric, "aaaabbbbcc", "me", 4)
	require.NoError(t, err)
	lines := drain(t, sender)
	require.Len(t, lines, 4)

	receiver := NewReceiver(lines[0])
	require.True(t, receiver.ValidHeader())
	require.Equal(t, 3, receiver.TotalParcels())

	require.NoError(t, receiver.ReceiveParcel(lines[1]))
	assert.False(t, receiver.HasGap(), "trailing parcels not yet sent are not gaps")

	require.NoError(t, receiver.ReceiveParcel(lines[3]))
	assert.True(t, receiver.HasGap())
	assert.Equal(t, 1, receiver.GapCount())
	idx, ok := receiver.FirstGapIndex()
	require.True(t, ok)
	assert.Equal(t, 1, idx)
	assert.False(t, receiver.IsComplete())

	require.NoError(t, receiver.ReceiveParcel(lines[2]))
	assert.False(t, receiver.HasGap())
	_, ok = receiver.FirstGapIndex()
	assert.False(t, ok)
	assert.True(t, receiver.IsComplete())
	assert.Equal(t, "aaaabbbbcc", receiver.Payload())
}

func TestGapWithIndexTwoWithheld(t *testing.T) {
	sender, err := NewSender(protocol.CommandChat, strings.Repeat("x", 25), "me", 5)
	require.NoError(t, err)
	lines := drain(t, sender)

	receiver := NewReceiver(lines[0])
	for _, i := range []int{4, 0, 3, 1} {
		require.NoError(t, receiver.ReceiveParcel(lines[i+1]))
	}
	assert.True(t, receiver.HasGap())
	idx, _ := receiver.FirstGapIndex()
	assert.Equal(t, 2, idx)

	require.NoError(t, receiver.ReceiveParcel(lines[3]))
	assert.False(t, receiver.HasGap())
	assert.True(t, receiver.IsComplete())
}

// Scenario D: a header with four fields never makes a usable transfer.
func TestInvalidHeader(t *testing.T) {
	receiver := NewReceiver("AB:001:IOAA:CHAT")
	assert.False(t, receiver.ValidHeader())
	assert.Equal(t, 0, receiver.TotalParcels())
	assert.False(t, receiver.IsComplete())

	tb := NewTable()
	assert.False(t, tb.Put("peer", receiver))
	assert.Equal(t, 0, tb.Len())
}

func TestOversizedParcelCountIsInvalid(t *testing.T) {
	receiver := NewReceiver("AB:1000000000000:ABCD:CHAT:dev")
	assert.False(t, receiver.ValidHeader())
	assert.Equal(t, 0, receiver.TotalParcels())
}

func TestZeroParcelHeaderIsInvalid(t *testing.T) {
	assert.False(t, NewReceiver("AB:000:AAAA:CHAT:dev").ValidHeader())
}

func TestChecksumMismatch(t *testing.T) {
	receiver := NewReceiver("AB:001:ZZZZ:CHAT:dev")
	require.True(t, receiver.ValidHeader())
	require.NoError(t, receiver.ReceiveParcel("AB000:HELLO"))

	assert.True(t, receiver.Full())
	assert.False(t, receiver.IsComplete())
	assert.ErrorIs(t, receiver.Verify(), protocol.ErrChecksumMismatch)
}

func TestReceiveParcelIgnoresBadInput(t *testing.T) {
	receiver := NewReceiver("AB:002:AAAA:CHAT:dev")
	require.True(t, receiver.ValidHeader())

	assert.ErrorIs(t, receiver.ReceiveParcel("AB005:out of range"), protocol.ErrInvalidParcel)
	assert.ErrorIs(t, receiver.ReceiveParcel("CD000:other transfer"), protocol.ErrInvalidParcel)
	assert.ErrorIs(t, receiver.ReceiveParcel("garbage"), protocol.ErrInvalidParcel)
	assert.ErrorIs(t, receiver.ReceiveParcel(receiver.HeaderLine()), protocol.ErrInvalidParcel)

	_, ok := receiver.FirstGapIndex()
	assert.True(t, ok)
	assert.False(t, receiver.HasGap())
	assert.False(t, receiver.HasSeen("AB005:out of range"))
}

func TestSenderIteratorAndReset(t *testing.T) {
	sender, err := NewSender(protocol.CommandBroadcast, "abcdef", "me", 2)
	require.NoError(t, err)

	first := drain(t, sender)
	require.Len(t, first, 4)
	assert.True(t, sender.Drained())

	_, ok := sender.NextOutboundParcel()
	assert.False(t, ok)

	sender.ResetCursor()
	assert.False(t, sender.Drained())
	assert.Equal(t, first, drain(t, sender))
}

func TestSpecificParcel(t *testing.T) {
	sender, err := NewSender(protocol.CommandChat, "abcdef", "me", 2)
	require.NoError(t, err)
	id := sender.ID()

	line, ok := sender.SpecificParcel(0)
	require.True(t, ok)
	assert.Equal(t, sender.HeaderLine(), line)

	line, ok = sender.SpecificParcel(1)
	require.True(t, ok)
	assert.Equal(t, id+"000:ab", line)

	line, ok = sender.SpecificParcel(3)
	require.True(t, ok)
	assert.Equal(t, id+"002:ef", line)

	_, ok = sender.SpecificParcel(4)
	assert.False(t, ok)
	_, ok = sender.SpecificParcel(-1)
	assert.False(t, ok)
}

func TestNewSenderRejects(t *testing.T) {
	_, err := NewSender(protocol.CommandChat, "", "me", 10)
	assert.ErrorIs(t, err, protocol.ErrEmptyPayload)

	_, err = NewSender(protocol.CommandNone, "x", "me", 10)
	assert.Error(t, err)

	_, err = NewSender(protocol.CommandChat, "x", "bad:origin", 10)
	assert.Error(t, err)

	_, err = NewSender(protocol.CommandChat, strings.Repeat("x", protocol.MaxParcels+1), "me", 1)
	assert.Error(t, err)
}

func TestLiveness(t *testing.T) {
	tr := NewReceiver("AB:001:IOAA:CHAT:dev")
	assert.True(t, tr.IsStillActive(time.Second))

	tr.lastActivity = time.Now().Add(-2 * time.Second)
	assert.False(t, tr.IsStillActive(time.Second))
	assert.True(t, tr.IsStale(time.Second))

	tr.Touch()
	assert.True(t, tr.IsStillActive(time.Second))

	before := tr.LastActivity()
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, tr.ReceiveParcel("AB000:HELLO"))
	assert.True(t, tr.LastActivity().After(before))
}

func TestMultiByteRoundTrip(t *testing.T) {
	payload := "héllo wörld ✓ ünïcödé"
	sender, err := NewSender(protocol.CommandChat, payload, "me", 3)
	require.NoError(t, err)
	lines := drain(t, sender)

	receiver := NewReceiver(lines[0])
	for i := len(lines) - 1; i >= 1; i-- {
		require.NoError(t, receiver.ReceiveParcel(lines[i]))
	}
	assert.True(t, receiver.IsComplete())
	assert.Equal(t, payload, receiver.Payload())
}
