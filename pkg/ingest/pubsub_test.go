package ingest

import (
	"context"
	"encoding/json"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylink-labs/acarsrouter/pkg/egress"
	"github.com/skylink-labs/acarsrouter/pkg/message"
	"github.com/skylink-labs/acarsrouter/pkg/queue"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestPubSubSource_ReceivesPublishedFrames(t *testing.T) {
	port := freePort(t)
	pub, err := egress.ListenPubSub(port, message.ACARS)
	require.NoError(t, err)
	defer func() { _ = pub.Close() }()

	out := queue.New(8)
	src := NewPubSubSource("127.0.0.1:"+strconv.Itoa(port), message.ACARS, out, WithSchedule(fast))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		src.Run(ctx)
		close(stopped)
	}()
	defer func() {
		cancel()
		<-stopped
	}()

	// publish until the subscription is in place; frames before it are lost
	var got []message.Message
	require.Eventually(t, func() bool {
		_ = pub.WriteMessage([]byte(`{"label":"H1"}`))
		_ = pub.WriteMessage([]byte(`not-json`))
		got = append(got, drain(out)...)
		return len(got) > 0
	}, 5*time.Second, 50*time.Millisecond)

	for _, m := range got {
		assert.Equal(t, message.New(map[string]any{"label": "H1"}), m)
	}
}

func TestPubSubSource_RetriesUntilEndpointAppears(t *testing.T) {
	port := freePort(t)
	out := queue.New(8)
	src := NewPubSubSource("127.0.0.1:"+strconv.Itoa(port), message.VDLM2, out, WithSchedule(fast))
	assert.Equal(t, "pubsub-receive 127.0.0.1:"+strconv.Itoa(port), src.Name())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		src.Run(ctx)
		close(stopped)
	}()
	defer func() {
		cancel()
		<-stopped
	}()

	time.Sleep(50 * time.Millisecond)
	pub, err := egress.ListenPubSub(port, message.VDLM2)
	require.NoError(t, err)
	defer func() { _ = pub.Close() }()

	require.Eventually(t, func() bool {
		_ = pub.WriteMessage([]byte(`{"n":7}`))
		return out.Len() > 0
	}, 5*time.Second, 50*time.Millisecond)

	msg := <-out.C()
	assert.Equal(t, json.Number("7"), msg.Value().(map[string]any)["n"])
}
