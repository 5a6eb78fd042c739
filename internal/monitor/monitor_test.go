package monitor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analogpad/internal/gamepad"
	"analogpad/internal/health"
	"analogpad/internal/mapping"
	"analogpad/internal/profile"
)

func testSources() Sources {
	p := profile.Default(time.Unix(0, 0))
	compiled := profile.Compile(&p, "Movement")
	return Sources{
		Report:  func() gamepad.Report { return gamepad.Report{LeftY: 16383, Buttons: gamepad.BitA} },
		Metrics: func() mapping.Metrics { return mapping.Metrics{Active: true, TargetHz: 120, Frames: 5} },
		Profile: func() *profile.Compiled { return compiled },
	}
}

func TestRoutes(t *testing.T) {
	checker := health.NewChecker()
	checker.SetReady(true)
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "analogpad_engine_frames_total 5\n")
	})
	srv := New(Config{}, nil, metrics, checker.HealthHandler(), checker.ReadinessHandler(), nil)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	for path, want := range map[string]int{
		"/metrics": http.StatusOK,
		"/healthz": http.StatusOK,
		"/readyz":  http.StatusOK,
		"/ws":      http.StatusNotFound,
		"/other":   http.StatusNotFound,
	} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err, path)
		resp.Body.Close()
		assert.Equal(t, want, resp.StatusCode, path)
	}

	resp, err := http.Post(ts.URL+"/metrics", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestWebSocketStream(t *testing.T) {
	streamer := NewStreamer(testSources())
	srv := New(Config{}, streamer, nil, nil, nil, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return streamer.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)
	streamer.Broadcast()
	streamer.Broadcast()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first, second Frame
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &first))
	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &second))

	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, uint64(2), second.Seq)
	assert.Equal(t, int16(16383), first.Report.LeftY)
	assert.Equal(t, 120, first.Metrics.TargetHz)
	require.NotNil(t, first.Profile)
	assert.Equal(t, "Movement", first.Profile.SubProfileName)

	conn.Close()
	require.Eventually(t, func() bool { return streamer.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestSlowClientDropped(t *testing.T) {
	s := NewStreamer(Sources{})
	c := &client{streamer: s, send: make(chan []byte, clientBuffer)}
	s.register(c)

	for i := 0; i < clientBuffer; i++ {
		s.Broadcast()
	}
	assert.Equal(t, 1, s.Clients())
	s.Broadcast()
	assert.Zero(t, s.Clients())
	assert.Equal(t, uint64(1), s.Dropped())

	n := 0
	for range c.send {
		n++
	}
	assert.Equal(t, clientBuffer, n, "queued frames stay readable after the drop")
}

func TestFrameWithoutProfile(t *testing.T) {
	s := NewStreamer(Sources{Profile: func() *profile.Compiled { return nil }})
	data, err := json.Marshal(s.frame(3))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"profile":null`)
	assert.Contains(t, string(data), `"seq":3`)
}

func TestStartShutdown(t *testing.T) {
	streamer := NewStreamer(testSources())
	srv := New(Config{ListenAddr: "127.0.0.1:0", StreamInterval: 5 * time.Millisecond}, streamer, nil, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, srv.Start(ctx))
	require.NotNil(t, srv.Addr())

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr().String()+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err, "the stream ticks without an explicit broadcast")
	assert.Contains(t, string(data), `"seq"`)

	shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
	defer done()
	require.NoError(t, srv.Shutdown(shutdownCtx))
	assert.NoError(t, srv.Shutdown(shutdownCtx))
	assert.Zero(t, streamer.Clients())
}
