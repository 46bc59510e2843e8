package gateway

import (
	"bufio"
	"bytes"
	"context"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolrun/pkg/eventbus"
)

func TestWriteSSE(t *testing.T) {
	var buf bytes.Buffer
	err := writeSSE(&buf, eventbus.Event{
		Kind: eventbus.KindRunError,
		Seq:  7,
		Data: eventbus.RunError{RunID: "r1", Error: "boom"},
	})
	require.NoError(t, err)
	assert.Equal(t, "event: run:error\nid: 7\ndata: {\"runId\":\"r1\",\"error\":\"boom\"}\n\n", buf.String())

	buf.Reset()
	require.NoError(t, writeSSE(&buf, eventbus.Event{Kind: eventbus.KindHello, Data: eventbus.Hello{Time: 1}}))
	assert.Equal(t, "event: hello\ndata: {\"time\":1}\n\n", buf.String())
}

// readFrame reads one SSE frame and returns its field lines
func readFrame(t *testing.T, r *bufio.Reader) map[string]string {
	t.Helper()
	frame := map[string]string{}
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if line == "" {
			return frame
		}
		key, value, _ := strings.Cut(line, ": ")
		frame[key] = value
	}
}

func TestServer_SSE(t *testing.T) {
	ts := newTestServer(t, func(c *Config) { c.Keepalive = time.Hour })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.url("/events"), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	hello := readFrame(t, r)
	assert.Equal(t, "hello", hello["event"])
	assert.Contains(t, hello["data"], `"time":`)
	assert.Equal(t, float64(1), testutil.ToFloat64(ts.metrics.PushSubscribers))

	ts.bus.Publish(eventbus.KindRunResume, "r1", "", eventbus.RunResume{RunID: "r1"})
	ev := ts.bus.Publish(eventbus.KindRunFinished, "r1", "sum", eventbus.RunFinished{RunID: "r1", Result: 5})

	frame := readFrame(t, r)
	assert.Equal(t, "run:finished", frame["event"], "run:resume is not pushed")
	assert.Equal(t, strconv.FormatInt(ev.Seq, 10), frame["id"])
	assert.JSONEq(t, `{"runId":"r1","result":5}`, frame["data"])

	cancel()
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(ts.metrics.PushSubscribers) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_SSEKeepalive(t *testing.T) {
	ts := newTestServer(t, func(c *Config) { c.Keepalive = 20 * time.Millisecond })

	resp, err := http.Get(ts.url("/events"))
	require.NoError(t, err)
	defer resp.Body.Close()

	r := bufio.NewReader(resp.Body)
	assert.Equal(t, "hello", readFrame(t, r)["event"])
	assert.Equal(t, "hello", readFrame(t, r)["event"], "keepalive repeats hello")
}

func TestServer_WebSocket(t *testing.T) {
	ts := newTestServer(t, func(c *Config) { c.Keepalive = time.Hour })

	wsURL := "ws" + strings.TrimPrefix(ts.url("/ws"), "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var hello EventMessage
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "event", hello.Type)
	assert.Equal(t, eventbus.KindHello, hello.Event)

	ts.bus.Publish(eventbus.KindUIOpen, "r2", "form", eventbus.UIHint{RunID: "r2", Tool: "form", Payload: "x"})

	var msg EventMessage
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "event", msg.Type)
	assert.Equal(t, eventbus.KindUIOpen, msg.Event)
	assert.Equal(t, "r2", msg.RunID)
	assert.Equal(t, "form", msg.Tool)
	assert.Positive(t, msg.Seq)
	assert.Equal(t, map[string]any{"runId": "r2", "tool": "form", "payload": "x"}, msg.Data)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		return ts.bus.Len() == 0
	}, 2*time.Second, 10*time.Millisecond, "subscription released on close")
}
