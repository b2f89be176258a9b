package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/nearchat/internal/protocol"
)

// submitAndDrain submits payload and waits until its pump has queued every
// line, then empties the queue.
func submitAndDrain(t *testing.T, e *Engine, payload string) string {
	t.Helper()
	id, err := e.Submit("peer", protocol.CommandChat, payload, "")
	require.NoError(t, err)
	s, ok := e.outbound.Get(id)
	require.True(t, ok)
	require.Eventually(t, func() bool { return s.Drained() && e.queue.len() == s.TotalParcels()+1 },
		time.Second, time.Millisecond)
	drainQueue(e)
	return id
}

func TestRepeatParcel(t *testing.T) {
	e := newTestEngine(t, testConfig(), &recordingTransport{})
	id := submitAndDrain(t, e, "HELLOWORLD")

	e.OnLineReceived("peer-new-addr", protocol.RepeatParcelLine(id, 2))
	items := drainQueue(e)
	require.Len(t, items, 1)
	assert.Equal(t, outbound{"peer-new-addr", id + "001:OWOR"}, items[0])

	e.OnLineReceived("peer", protocol.RepeatParcelLine(id, 0))
	items = drainQueue(e)
	require.Len(t, items, 1)
	assert.Equal(t, id, protocol.TransferID(items[0].line))
	assert.Contains(t, items[0].line, ":003:")

	e.OnLineReceived("peer", protocol.RepeatParcelLine(id, 9))
	assert.Equal(t, 0, e.queue.len(), "out of range")
}

func TestRepeatPackage(t *testing.T) {
	e := newTestEngine(t, testConfig(), &recordingTransport{})
	id := submitAndDrain(t, e, "HELLOWORLD")

	e.OnLineReceived("peer", protocol.RepeatPackageLine(id))
	require.Eventually(t, func() bool { return e.queue.len() == 4 }, time.Second, time.Millisecond)

	lines := queuedLines(e)
	assert.Contains(t, lines[0], ":003:")
	assert.Equal(t, []string{id + "000:HELL", id + "001:OWOR", id + "002:LD"}, lines[1:])
}

func TestRepeatFromOtherDeviceIgnored(t *testing.T) {
	dir := &fakeDirectory{addrs: map[string]string{"dev-b": "AA:01"}}
	e := newTestEngine(t, testConfig(), &recordingTransport{}, WithPeerDirectory(dir))

	id, err := e.Submit("dev-b", protocol.CommandChat, "HELLOWORLD", "")
	require.NoError(t, err)
	s, ok := e.outbound.Get(id)
	require.True(t, ok)
	require.Eventually(t, func() bool { return s.Drained() && e.queue.len() == 4 }, time.Second, time.Millisecond)
	drainQueue(e)

	e.OnLineReceived("AA:66", protocol.RepeatParcelLine(id, 1))
	e.OnLineReceived("AA:66", protocol.RepeatPackageLine(id))
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, e.queue.len())
	assert.Equal(t, "AA:01", s.Address(), "a stranger cannot redirect the transfer")

	e.OnLineReceived("AA:01", protocol.RepeatParcelLine(id, 1))
	assert.Equal(t, []outbound{{"AA:01", id + "000:HELL"}}, drainQueue(e))
}

func TestRepeatForUnknownTransferIgnored(t *testing.T) {
	e := newTestEngine(t, testConfig(), &recordingTransport{})

	e.OnLineReceived("peer", protocol.RepeatPackageLine("ZZ"))
	e.OnLineReceived("peer", protocol.RepeatParcelLine("ZZ", 1))
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, e.queue.len())
}

func TestPingObservesPeer(t *testing.T) {
	dir := &fakeDirectory{}
	e := newTestEngine(t, testConfig(), &recordingTransport{}, WithPeerDirectory(dir))

	e.OnLineReceived("AA:BB", protocol.PingLine("dev-b"))
	assert.Equal(t, []string{"AA:BB=dev-b"}, dir.observed)
}

func TestProfileRequestReachesApplication(t *testing.T) {
	app := &recordingApp{}
	e := newTestEngine(t, testConfig(), &recordingTransport{}, WithApplication(app))

	e.OnLineReceived("peer", protocol.ProfileRequestLine())
	assert.Equal(t, []string{"peer"}, app.profiles)

	e.RequestProfile("peer")
	assert.Equal(t, []string{">BIO:"}, queuedLines(e))
}

func TestAckReleasesArchive(t *testing.T) {
	app := &recordingApp{}
	e := newTestEngine(t, testConfig(), &recordingTransport{}, WithApplication(app))
	id := submitAndDrain(t, e, "HI")

	e.OnLineReceived("peer", protocol.AckLine(id))
	e.OnLineReceived("peer", protocol.AckLine(id))

	assert.Equal(t, []string{id}, app.acked())
	assert.Equal(t, 0, e.outbound.Len())
}

func TestUnknownDirectiveIgnored(t *testing.T) {
	app := &recordingApp{}
	e := newTestEngine(t, testConfig(), &recordingTransport{}, WithApplication(app))

	e.OnLineReceived("peer", ">FOO:bar")
	e.OnLineReceived("peer", ">B:X")
	assert.Equal(t, 0, e.queue.len())
	assert.Empty(t, app.deliveries())
}
