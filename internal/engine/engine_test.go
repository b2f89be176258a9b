package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/nearchat/internal/protocol"
)

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.ChunkSize = 0
	_, err := New(cfg, &recordingTransport{})
	assert.Error(t, err)

	_, err = New(testConfig(), nil)
	assert.Error(t, err)
}

func TestSubmitPumpsHeaderThenParcels(t *testing.T) {
	tr := &recordingTransport{}
	e := newTestEngine(t, testConfig(), tr)

	id, err := e.Submit("peer", protocol.CommandChat, "HELLOWORLD", "")
	require.NoError(t, err)
	require.Regexp(t, `^[A-Z]{2}$`, id)

	require.Eventually(t, func() bool { return e.queue.len() == 4 }, time.Second, time.Millisecond)

	ctx := context.Background()
	for range 4 {
		require.True(t, e.tick(ctx))
	}
	assert.False(t, e.tick(ctx), "queue is empty")

	sum, err := protocol.Checksum("HELLOWORLD")
	require.NoError(t, err)
	want := []outbound{
		{"peer", fmt.Sprintf("%s:003:%s:CHAT:dev", id, sum)},
		{"peer", id + "000:HELL"},
		{"peer", id + "001:OWOR"},
		{"peer", id + "002:LD"},
	}
	assert.Equal(t, want, tr.lines())

	snap := e.Stats().Snapshot()
	assert.EqualValues(t, 4, snap.LinesSent)
}

func TestSubmitRejectsBadInput(t *testing.T) {
	e := newTestEngine(t, testConfig(), &recordingTransport{})

	_, err := e.Submit("peer", protocol.CommandChat, "", "")
	assert.ErrorIs(t, err, protocol.ErrEmptyPayload)

	_, err = e.Submit("peer", protocol.CommandNone, "hi", "")
	assert.Error(t, err)
}

func TestSubmitResolvesDeviceID(t *testing.T) {
	dir := &fakeDirectory{addrs: map[string]string{"dev-b": "AA:BB:CC"}}
	e := newTestEngine(t, testConfig(), &recordingTransport{}, WithPeerDirectory(dir))

	_, err := e.Submit("dev-b", protocol.CommandChat, "HI", "")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return e.queue.len() == 2 }, time.Second, time.Millisecond)

	for _, item := range drainQueue(e) {
		assert.Equal(t, "AA:BB:CC", item.peer)
	}
}

func TestBackPressureHoldsOutbound(t *testing.T) {
	tr := &recordingTransport{}
	e := newTestEngine(t, testConfig(), tr)
	ctx := context.Background()

	_, lines := senderLines(t, protocol.CommandChat, "HELLOWORLD", 4)
	e.OnLineReceived("peer", lines[0])
	e.Ping("peer")

	assert.False(t, e.tick(ctx), "inbound transfer is active")
	assert.Empty(t, tr.lines())

	require.Eventually(t, func() bool { return e.tick(ctx) }, time.Second, 2*time.Millisecond)
	require.Len(t, tr.lines(), 1)
	assert.Equal(t, ">PING:dev", tr.lines()[0].line)
}

func TestQueueCollapsesPendingDuplicates(t *testing.T) {
	e := newTestEngine(t, testConfig(), &recordingTransport{})

	e.requestRepeat("peer", protocol.RepeatPackageLine("AB"))
	e.requestRepeat("peer", protocol.RepeatPackageLine("AB"))
	e.requestRepeat("other", protocol.RepeatPackageLine("AB"))

	assert.Equal(t, 2, e.queue.len())
	assert.EqualValues(t, 2, e.Stats().Snapshot().Repeats)

	drainQueue(e)
	e.requestRepeat("peer", protocol.RepeatPackageLine("AB"))
	assert.Equal(t, 1, e.queue.len(), "a sent line may be queued again")
}

func TestQueueLimit(t *testing.T) {
	cfg := testConfig()
	cfg.QueueLimit = 2
	e := newTestEngine(t, cfg, &recordingTransport{})

	assert.True(t, e.enqueue("p", "a:1"))
	assert.True(t, e.enqueue("p", "a:2"))
	assert.False(t, e.enqueue("p", "a:3"))
	assert.Equal(t, []string{"a:1", "a:2"}, queuedLines(e))
}

func TestSendErrorIsCounted(t *testing.T) {
	tr := &recordingTransport{err: errLinkDown}
	e := newTestEngine(t, testConfig(), tr)

	e.Ping("peer")
	require.True(t, e.tick(context.Background()))
	assert.EqualValues(t, 1, e.Stats().Snapshot().SendErrors)
	assert.Equal(t, 0, e.queue.len(), "failed lines are not retried")
}

func TestSendWaitsForArbiter(t *testing.T) {
	tr := &recordingTransport{}
	e := newTestEngine(t, testConfig(), tr)
	ctx := context.Background()

	tok, err := e.Arbiter().Lock(ctx)
	require.NoError(t, err)
	e.Ping("peer")

	done := make(chan struct{})
	go func() {
		e.tick(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, tr.lines(), "send must wait for the channel")

	e.Arbiter().Unlock(tok)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("send did not resume after unlock")
	}
	assert.Len(t, tr.lines(), 1)
	assert.False(t, e.Arbiter().Locked())
}

func TestRunStopsOnCancel(t *testing.T) {
	tr := &recordingTransport{}
	e := newTestEngine(t, testConfig(), tr)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx) }()

	e.Ping("peer")
	require.Eventually(t, func() bool { return len(tr.lines()) == 1 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}
