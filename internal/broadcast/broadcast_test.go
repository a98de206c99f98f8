package broadcast

import (
	"bufio"
	"net"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/tailserver/internal/metrics"
)

// pipeClient returns a client whose peer end is returned for reading.
func pipeClient(t *testing.T, queueSize int, writeTimeout time.Duration) (*Client, net.Conn) {
	t.Helper()
	server, peer := net.Pipe()
	t.Cleanup(func() { _ = peer.Close() })
	c := NewClient(server, queueSize, writeTimeout)
	t.Cleanup(c.Close)
	return c, peer
}

func startWriter(c *Client) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- c.WriteLoop() }()
	return errCh
}

func readLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	type result struct {
		s   string
		err error
	}
	ch := make(chan result, 1)
	go func() {
		s, err := r.ReadString('\n')
		ch <- result{s, err}
	}()
	select {
	case res := <-ch:
		require.NoError(t, res.err)
		return res.s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a line")
		return ""
	}
}

func TestClient_WriteLoopDeliversInOrder(t *testing.T) {
	c, peer := pipeClient(t, 8, time.Second)
	errCh := startWriter(c)

	for _, l := range []string{"one\n", "two\n", "three\n"} {
		require.NoError(t, c.Enqueue(l))
	}
	r := bufio.NewReader(peer)
	assert.Equal(t, "one\n", readLine(t, r))
	assert.Equal(t, "two\n", readLine(t, r))
	assert.Equal(t, "three\n", readLine(t, r))

	c.Close()
	assert.NoError(t, <-errCh)
	select {
	case <-c.Done():
	default:
		t.Fatal("Done should be closed after Close")
	}
}

func TestClient_EnqueueFullQueue(t *testing.T) {
	c, _ := pipeClient(t, 1, 0)
	assert.Equal(t, 1, c.QueueSize())
	assert.NoError(t, c.Enqueue("a\n"))
	assert.ErrorIs(t, c.Enqueue("b\n"), ErrQueueFull)

	// closed clients report that instead of a full queue
	c.Close()
	assert.ErrorIs(t, c.Enqueue("c\n"), ErrClientClosed)
	c.Close()
}

func TestClient_WriteLoopReportsPeerGone(t *testing.T) {
	c, peer := pipeClient(t, 4, time.Second)
	require.NoError(t, peer.Close())

	errCh := startWriter(c)
	require.NoError(t, c.Enqueue("lost\n"))
	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("WriteLoop did not fail")
	}
}

func TestClient_WriteTimeout(t *testing.T) {
	c, _ := pipeClient(t, 4, 50*time.Millisecond)
	errCh := startWriter(c)
	require.NoError(t, c.Enqueue("nobody reads this\n"))

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, os.ErrDeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("write deadline was not applied")
	}
}

func TestRegistry_AddRemove(t *testing.T) {
	r := NewRegistry(nil)
	a, _ := pipeClient(t, 1, 0)
	b, _ := pipeClient(t, 1, 0)

	assert.True(t, r.Add(a))
	assert.False(t, r.Add(a), "a client is registered at most once")
	assert.True(t, r.Add(b))
	assert.Equal(t, 2, r.Len())

	before := r.Snapshot()
	assert.True(t, r.Remove(a, ReasonPeerClosed))
	assert.False(t, r.Remove(a, ReasonWriteError), "removal is idempotent")

	// an earlier snapshot is unaffected by later removals
	assert.Equal(t, []*Client{a, b}, before)
	assert.Equal(t, []*Client{b}, r.Snapshot())

	select {
	case <-a.Done():
	default:
		t.Fatal("removed client should be closed")
	}
}

func TestRegistry_CloseAll(t *testing.T) {
	r := NewRegistry(nil)
	a, _ := pipeClient(t, 1, 0)
	b, _ := pipeClient(t, 1, 0)
	require.True(t, r.Add(a))
	require.True(t, r.Add(b))

	r.CloseAll()
	assert.Equal(t, 0, r.Len())
	for _, c := range []*Client{a, b} {
		select {
		case <-c.Done():
		default:
			t.Fatal("client should be closed")
		}
	}

	late, _ := pipeClient(t, 1, 0)
	assert.False(t, r.Add(late))
	assert.False(t, r.Remove(a, ReasonShutdown))
}

func TestBroadcaster_DropsStalledClientOnly(t *testing.T) {
	r := NewRegistry(nil)
	bc := NewBroadcaster(r, nil)

	fast, fastPeer := pipeClient(t, 16, time.Second)
	startWriter(fast)
	// no writer and a single-slot queue: the second line overflows
	slow, _ := pipeClient(t, 1, time.Second)

	require.True(t, r.Add(fast))
	require.True(t, r.Add(slow))

	bc.Broadcast("first")
	bc.Broadcast("second")
	bc.Broadcast("third")

	assert.Equal(t, []*Client{fast}, r.Snapshot())
	select {
	case <-slow.Done():
	default:
		t.Fatal("stalled client should have been dropped")
	}

	rd := bufio.NewReader(fastPeer)
	assert.Equal(t, "first\n", readLine(t, rd))
	assert.Equal(t, "second\n", readLine(t, rd))
	assert.Equal(t, "third\n", readLine(t, rd))
}

func TestBroadcaster_NoClients(t *testing.T) {
	bc := NewBroadcaster(NewRegistry(nil), nil)
	assert.NotPanics(t, func() { bc.Broadcast("into the void") })
}

func deliveredTotal(t *testing.T, reg *prometheus.Registry) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == "tailserver_lines_delivered_total" {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatal("tailserver_lines_delivered_total not gathered")
	return 0
}

func TestBroadcaster_ClosedClientNotCounted(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, metrics.Register(reg))

	r := NewRegistry(nil)
	bc := NewBroadcaster(r, nil)

	open, openPeer := pipeClient(t, 4, time.Second)
	startWriter(open)
	// closed but not yet removed, as when its writer has just failed
	gone, _ := pipeClient(t, 4, time.Second)
	require.True(t, r.Add(open))
	require.True(t, r.Add(gone))
	gone.Close()

	before := deliveredTotal(t, reg)
	bc.Broadcast("only once")
	assert.Equal(t, before+1, deliveredTotal(t, reg))
	assert.Len(t, r.Snapshot(), 2, "closed clients are removed by their handler, not by the broadcaster")

	assert.Equal(t, "only once\n", readLine(t, bufio.NewReader(openPeer)))
}
