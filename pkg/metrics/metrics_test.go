package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylink-labs/acarsrouter/pkg/message"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.Received(message.ACARS, "tcp-receive x:1")
		m.Forwarded(message.ACARS, "udp")
		m.Dropped(message.VDLM2, "tcp-send x:1", ReasonQueueFull)
		m.PeerConnected(message.ACARS, ":5550")
		m.PeerDisconnected(message.ACARS, ":5550")
		m.ReconnectAttempt("x:1")
	})
	assert.Nil(t, m.Registry())
}

func TestCounters(t *testing.T) {
	m := New()

	m.Forwarded(message.ACARS, "udp")
	m.Forwarded(message.ACARS, "udp")
	m.Forwarded(message.VDLM2, "udp")
	m.Dropped(message.ACARS, "tcp-send a:1", ReasonQueueFull)
	m.Received(message.VDLM2, "tcp-receive b:2")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ForwardedCounter(message.ACARS, "udp")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ForwardedCounter(message.VDLM2, "udp")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DroppedCounter(message.ACARS, "tcp-send a:1", ReasonQueueFull)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.DroppedCounter(message.ACARS, "tcp-send a:1", ReasonQueueClosed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReceivedCounter(message.VDLM2, "tcp-receive b:2")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.Forwarded(message.ACARS, "udp")
	m.PeerConnected(message.ACARS, "0.0.0.0:15550")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.True(t, strings.Contains(text, `acarsrouter_messages_forwarded_total{family="ACARS",sink="udp"} 1`), text)
	assert.True(t, strings.Contains(text, `acarsrouter_broadcast_peers{addr="0.0.0.0:15550",family="ACARS"} 1`), text)
	assert.True(t, strings.Contains(text, "go_goroutines"))
}
