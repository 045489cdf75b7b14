package egress

import (
	"net"
	"strconv"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylink-labs/acarsrouter/pkg/message"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func subscribe(t *testing.T, addr, topic string) <-chan []byte {
	t.Helper()
	got := make(chan []byte, 8)
	opts := paho.NewClientOptions().
		AddBroker("tcp://" + addr).
		SetClientID("egress-test-" + strconv.FormatInt(time.Now().UnixNano(), 36))
	client := paho.NewClient(opts)

	token := client.Connect()
	require.True(t, token.WaitTimeout(5*time.Second))
	require.NoError(t, token.Error())
	t.Cleanup(func() { client.Disconnect(100) })

	token = client.Subscribe(topic, 0, func(_ paho.Client, m paho.Message) {
		got <- m.Payload()
	})
	require.True(t, token.WaitTimeout(5*time.Second))
	require.NoError(t, token.Error())
	return got
}

func TestPubSubWriter_PublishesOnFamilyTopic(t *testing.T) {
	w, err := ListenPubSub(freePort(t), message.VDLM2)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	assert.Equal(t, "vdlm2", w.Topic())
	frames := subscribe(t, w.Addr(), w.Topic())

	require.NoError(t, w.WriteMessage([]byte(`{"freq":136.975}`)))

	select {
	case frame := <-frames:
		assert.JSONEq(t, `{"freq":136.975}`, string(frame))
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber received nothing")
	}
}

func TestPubSubWriter_BindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	_, err = ListenPubSub(ln.Addr().(*net.TCPAddr).Port, message.ACARS)
	assert.Error(t, err)
}

func TestPubSubWriter_WriteAfterClose(t *testing.T) {
	w, err := ListenPubSub(freePort(t), message.ACARS)
	require.NoError(t, err)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.WriteMessage([]byte(`{}`)), ErrWriterClosed)
}
