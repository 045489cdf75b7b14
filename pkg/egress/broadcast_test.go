package egress

import (
	"bufio"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylink-labs/acarsrouter/pkg/message"
	"github.com/skylink-labs/acarsrouter/pkg/metrics"
	"github.com/skylink-labs/acarsrouter/pkg/queue"
)

func startBroadcast(t *testing.T, in *queue.Queue, opts ...Option) (*BroadcastServer, chan struct{}) {
	t.Helper()
	s, err := ListenBroadcast("127.0.0.1:0", message.ACARS, in, opts...)
	require.NoError(t, err)

	stopped := make(chan struct{})
	go func() {
		s.Run()
		close(stopped)
	}()
	t.Cleanup(func() {
		in.Close()
		<-stopped
	})
	return s, stopped
}

func readLine(t *testing.T, r *bufio.Reader) message.Message {
	t.Helper()
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	msg, err := message.Parse([]byte(line[:len(line)-1]))
	require.NoError(t, err)
	return msg
}

func TestListenBroadcast_BindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	_, err = ListenBroadcast(ln.Addr().String(), message.ACARS, queue.New(1))
	assert.Error(t, err)
}

func TestBroadcastServer_FansOutInOrderAndDrainsOnShutdown(t *testing.T) {
	const (
		peers    = 50
		messages = 100
	)
	in := queue.New(messages)
	m := metrics.New()
	s, stopped := startBroadcast(t, in, WithMetrics(m))

	readers := make([]*bufio.Reader, peers)
	for i := range readers {
		conn, err := net.Dial("tcp", s.Addr())
		require.NoError(t, err)
		defer func() { _ = conn.Close() }()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		readers[i] = bufio.NewReader(conn)
	}
	require.Eventually(t, func() bool { return s.PeerCount() == peers }, 2*time.Second, 5*time.Millisecond)

	for i := 0; i < messages; i++ {
		require.NoError(t, in.TryPush(message.New(map[string]any{"seq": i})))
	}

	var wg sync.WaitGroup
	errs := make(chan error, peers)
	for _, r := range readers {
		wg.Add(1)
		go func(r *bufio.Reader) {
			defer wg.Done()
			for i := 0; i < messages; i++ {
				line, err := r.ReadString('\n')
				if err != nil {
					errs <- err
					return
				}
				var got struct{ Seq int }
				if err := json.Unmarshal([]byte(line), &got); err != nil {
					errs <- err
					return
				}
				if got.Seq != i {
					errs <- assert.AnError
					return
				}
			}
		}(r)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	in.Close()
	select {
	case <-stopped:
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop after its queue closed")
	}
	assert.Equal(t, 0, s.PeerCount())
	assert.Equal(t, float64(messages), testutil.ToFloat64(m.ForwardedCounter(message.ACARS, s.Name())))
	assert.Zero(t, testutil.ToFloat64(m.DroppedCounter(message.ACARS, s.Name(), metrics.ReasonPeerFull)))

	_, err := net.DialTimeout("tcp", s.Addr(), 200*time.Millisecond)
	assert.Error(t, err, "listener should be closed")
}

func TestBroadcastServer_DisconnectedPeerIsRemoved(t *testing.T) {
	in := queue.New(8)
	s, _ := startBroadcast(t, in)

	leaver, err := net.Dial("tcp", s.Addr())
	require.NoError(t, err)
	stayer, err := net.Dial("tcp", s.Addr())
	require.NoError(t, err)
	defer func() { _ = stayer.Close() }()
	require.Eventually(t, func() bool { return s.PeerCount() == 2 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, leaver.Close())
	require.Eventually(t, func() bool { return s.PeerCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, in.TryPush(message.New(map[string]any{"flight": "BA123"})))

	require.NoError(t, stayer.SetReadDeadline(time.Now().Add(2*time.Second)))
	got := readLine(t, bufio.NewReader(stayer))
	assert.Equal(t, "BA123", got.Value().(map[string]any)["flight"])
}

func TestBroadcastServer_BurstKeepsPeerRegistered(t *testing.T) {
	in := queue.New(64)
	m := metrics.New()
	s, _ := startBroadcast(t, in, WithPeerBuffer(1), WithMetrics(m))

	conn, err := net.Dial("tcp", s.Addr())
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	require.Eventually(t, func() bool { return s.PeerCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	for i := 0; i < 50; i++ {
		require.NoError(t, in.TryPush(message.New(map[string]any{"seq": i})))
	}
	require.Eventually(t, func() bool {
		forwarded := testutil.ToFloat64(m.ForwardedCounter(message.ACARS, s.Name()))
		dropped := testutil.ToFloat64(m.DroppedCounter(message.ACARS, s.Name(), metrics.ReasonPeerFull))
		return forwarded+dropped == 50
	}, 2*time.Second, 5*time.Millisecond)

	// the client is still registered and receives later traffic
	assert.Equal(t, 1, s.PeerCount())
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	got := readLine(t, bufio.NewReader(conn))
	_, ok := got.Field("seq")
	assert.True(t, ok)
}

func TestBroadcastServer_NoClientsIsNotForwarded(t *testing.T) {
	in := queue.New(4)
	m := metrics.New()
	s, stopped := startBroadcast(t, in, WithMetrics(m))

	for i := 0; i < 3; i++ {
		require.NoError(t, in.TryPush(message.New(map[string]any{"seq": i})))
	}
	in.Close()
	select {
	case <-stopped:
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop after its queue closed")
	}

	assert.Zero(t, testutil.ToFloat64(m.ForwardedCounter(message.ACARS, s.Name())))
}
