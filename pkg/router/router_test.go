package router

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylink-labs/acarsrouter/pkg/config"
	"github.com/skylink-labs/acarsrouter/pkg/message"
	"github.com/skylink-labs/acarsrouter/pkg/queue"
	"github.com/skylink-labs/acarsrouter/pkg/reconnect"
)

type fixedBackoff time.Duration

func (f fixedBackoff) Next() time.Duration { return time.Duration(f) }

func fast() reconnect.Backoff { return fixedBackoff(10 * time.Millisecond) }

func freePort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return strconv.Itoa(port)
}

func TestRouter_StartBuildsConfiguredSinks(t *testing.T) {
	udpDest, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = udpDest.Close() }()

	tcpDest, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = tcpDest.Close() }()

	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = busy.Close() }()
	busyPort := strconv.Itoa(busy.Addr().(*net.TCPAddr).Port)

	servePort := freePort(t)
	pubsubPort := freePort(t)

	cfg := config.Default()
	cfg.ServeHost = "127.0.0.1"
	cfg.ACARS.SendUDP = []string{udpDest.LocalAddr().String()}
	cfg.ACARS.SendTCP = []string{tcpDest.Addr().String()}
	cfg.ACARS.ServeTCP = []string{servePort}
	cfg.VDLM2.ServeTCP = []string{busyPort}
	cfg.VDLM2.ServePubSub = []string{pubsubPort}

	acars, vdlm2 := queue.New(8), queue.New(8)
	r := New(cfg, WithSchedule(fast))
	require.NoError(t, r.Start(acars.C(), vdlm2.C()))
	assert.ErrorIs(t, r.Start(acars.C(), vdlm2.C()), ErrAlreadyStarted)

	summary := r.Summary()
	assert.Equal(t, []string{
		"udp",
		"tcp-send " + tcpDest.Addr().String(),
		"tcp-serve 127.0.0.1:" + servePort,
	}, summary[message.ACARS])
	// the busy serve port is left out, the pub/sub endpoint still starts
	assert.Equal(t, []string{"pubsub-serve 127.0.0.1:" + pubsubPort}, summary[message.VDLM2])

	require.NoError(t, acars.TryPush(message.New(map[string]any{"flight": "AF447"})))

	require.NoError(t, udpDest.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1024)
	n, _, err := udpDest.ReadFrom(buf)
	require.NoError(t, err)
	assert.JSONEq(t, `{"flight":"AF447"}`, string(buf[:n]))

	conn, err := tcpDest.Accept()
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.JSONEq(t, `{"flight":"AF447"}`, line)

	acars.Close()
	vdlm2.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))
}

func TestRouter_ShutdownGivesUpOnUnreachableSender(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	unreachable := ln.Addr().String()
	require.NoError(t, ln.Close())

	cfg := config.Default()
	cfg.ACARS.SendTCP = []string{unreachable}

	acars := queue.New(8)
	r := New(cfg, WithSchedule(func() reconnect.Backoff { return fixedBackoff(time.Hour) }))
	require.NoError(t, r.Start(acars.C(), nil))
	assert.NotContains(t, r.Summary(), message.VDLM2)

	require.NoError(t, acars.TryPush(message.New(map[string]any{"n": 1})))
	acars.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- r.Shutdown(ctx) }()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(3 * time.Second):
		t.Fatal("Shutdown hung on a sender stuck in backoff")
	}
}

func TestRouter_StartSourcesFeedsProcessedQueue(t *testing.T) {
	feeder, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = feeder.Close() }()

	go func() {
		conn, err := feeder.Accept()
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		_, _ = conn.Write([]byte("{\"tail\":\"G-EUPT\"}\r\n"))
		// keep the session open until the test ends
		_, _ = bufio.NewReader(conn).ReadString('\n')
	}()

	cfg := config.Default()
	cfg.VDLM2.ReceiveTCP = []string{feeder.Addr().String()}

	vdlm2 := queue.New(8)
	r := New(cfg, WithSchedule(fast))

	ctx, cancel := context.WithCancel(context.Background())
	r.StartSources(ctx, nil, vdlm2)

	select {
	case msg := <-vdlm2.C():
		assert.Equal(t, "G-EUPT", msg.Value().(map[string]any)["tail"])
	case <-time.After(3 * time.Second):
		t.Fatal("no message ingested")
	}

	cancel()
	stopped := make(chan struct{})
	go func() {
		r.WaitSources()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(3 * time.Second):
		t.Fatal("sources did not stop after cancel")
	}
}

func TestRouter_StartSourcesBindsListeners(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	udpPort := strconv.Itoa(pc.LocalAddr().(*net.UDPAddr).Port)
	require.NoError(t, pc.Close())

	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = busy.Close() }()
	busyPort := strconv.Itoa(busy.Addr().(*net.TCPAddr).Port)

	cfg := config.Default()
	cfg.ServeHost = "127.0.0.1"
	cfg.ACARS.ListenUDP = []string{udpPort}
	cfg.ACARS.ListenTCP = []string{busyPort}

	acars := queue.New(8)
	r := New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	r.StartSources(ctx, acars, nil)

	conn, err := net.Dial("udp", net.JoinHostPort("127.0.0.1", udpPort))
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	for _, datagram := range []string{`{"label":`, `"H1"}`} {
		_, err := conn.Write([]byte(datagram))
		require.NoError(t, err)
	}

	select {
	case msg := <-acars.C():
		assert.Equal(t, "H1", msg.Value().(map[string]any)["label"])
	case <-time.After(3 * time.Second):
		t.Fatal("no datagram ingested")
	}

	cancel()
	stopped := make(chan struct{})
	go func() {
		r.WaitSources()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(3 * time.Second):
		t.Fatal("listeners did not stop after cancel")
	}
}
