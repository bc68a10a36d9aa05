package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-tutor/core/transport"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu    sync.Mutex
	calls []string
}

func (h *recordingHandler) record(format string, args ...any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, fmt.Sprintf(format, args...))
}

func (h *recordingHandler) snapshot() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.calls)
}

func (h *recordingHandler) connectivity() []string {
	states := []string{}
	for _, call := range h.snapshot() {
		if state, ok := strings.CutPrefix(call, "connectivity:"); ok {
			states = append(states, state)
		}
	}
	return states
}

func (h *recordingHandler) OnConnectivityChanged(state transport.ConnectivityState) {
	h.record("connectivity:%s", state)
}
func (h *recordingHandler) OnAudioStarted(id int64)   { h.record("audio_started:%d", id) }
func (h *recordingHandler) OnAudioDataChunk(id int64) { h.record("audio_chunk:%d", id) }
func (h *recordingHandler) OnAudioStopped(id int64)   { h.record("audio_stopped:%d", id) }
func (h *recordingHandler) OnTranscriptDelta(id int64, chunk string) {
	h.record("transcript_delta:%d:%s", id, chunk)
}
func (h *recordingHandler) OnTranscriptComplete(id int64, text string) {
	h.record("transcript_complete:%d:%s", id, text)
}
func (h *recordingHandler) OnResponseDone(id int64)         { h.record("response_done:%d", id) }
func (h *recordingHandler) OnSpeakingChanged(speaking bool) { h.record("speaking:%v", speaking) }

func newRealtimeTestServer(t *testing.T, handler func(attempt int, conn *websocket.Conn)) string {
	t.Helper()

	var attempts atomic.Int32
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempt := int(attempts.Add(1))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handler(attempt, conn)
	}))
	t.Cleanup(server.Close)

	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func acceptSession(t *testing.T, conn *websocket.Conn) sessionStart {
	t.Helper()

	var start sessionStart
	if err := conn.ReadJSON(&start); err != nil {
		t.Errorf("failed to read session start: %v", err)
		return start
	}
	_ = conn.WriteJSON(map[string]any{"type": typeSessionReady, "session_id": start.SessionID})
	return start
}

func testRequest() transport.Request {
	return transport.Request{
		SessionID:        "session-1",
		ScenarioID:       "cafe-ordering",
		ProficiencyLevel: "beginner",
		UserContext:      map[string]string{"name": "Ana"},
	}
}

func TestDialDeliversResponseEvents(t *testing.T) {
	starts := make(chan sessionStart, 1)
	url := newRealtimeTestServer(t, func(_ int, conn *websocket.Conn) {
		defer conn.Close()
		starts <- acceptSession(t, conn)

		frames := []map[string]any{
			{"type": typeAudioStarted, "response_id": 1},
			{"type": typeAudioDelta, "response_id": 1, "audio": []byte{1, 2, 3}},
			{"type": typeTranscriptDelta, "response_id": 1, "delta": "Hello"},
			{"type": typeTranscriptDone, "response_id": 1, "text": "Hello!"},
			{"type": typeResponseDone, "response_id": 1},
			{"type": typeAudioStopped, "response_id": 1},
			{"type": typeSpeaking, "speaking": false},
			{"type": "something.new"},
		}
		for _, frame := range frames {
			_ = conn.WriteJSON(frame)
		}
		_, _, _ = conn.ReadMessage()
	})

	var sunk [][]byte
	var sunkMu sync.Mutex
	dialer, err := NewDialer(url, WithAudioSink(func(_ int64, pcm []byte) {
		sunkMu.Lock()
		defer sunkMu.Unlock()
		sunk = append(sunk, pcm)
	}))
	require.NoError(t, err)

	handler := &recordingHandler{}
	conn, err := dialer.Dial(context.Background(), testRequest(), handler)
	require.NoError(t, err)
	defer conn.Close()

	start := <-starts
	require.Equal(t, typeSessionStart, start.Type)
	require.Equal(t, "session-1", start.SessionID)
	require.Equal(t, "cafe-ordering", start.ScenarioID)
	require.Equal(t, "Ana", start.UserContext["name"])
	require.False(t, start.Resume)

	expected := []string{
		"connectivity:connecting",
		"connectivity:connected",
		"audio_started:1",
		"audio_chunk:1",
		"transcript_delta:1:Hello",
		"transcript_complete:1:Hello!",
		"response_done:1",
		"audio_stopped:1",
		"speaking:false",
	}
	require.Eventually(t, func() bool {
		return slices.Equal(handler.snapshot(), expected)
	}, 2*time.Second, 10*time.Millisecond, "calls: %v", handler.snapshot())

	sunkMu.Lock()
	defer sunkMu.Unlock()
	require.Equal(t, [][]byte{{1, 2, 3}}, sunk)
}

func TestDialSurfacesServerError(t *testing.T) {
	url := newRealtimeTestServer(t, func(_ int, conn *websocket.Conn) {
		defer conn.Close()
		var start sessionStart
		_ = conn.ReadJSON(&start)
		_ = conn.WriteJSON(map[string]any{"type": typeError, "code": "unknown_scenario", "message": "no such scenario"})
	})

	dialer, err := NewDialer(url)
	require.NoError(t, err)

	_, err = dialer.Dial(context.Background(), testRequest(), &recordingHandler{})
	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	require.Equal(t, "unknown_scenario", serverErr.Code)
}

func TestDialFailsWhenEndpointIsUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	server.Close()

	dialer, err := NewDialer(url, WithHandshakeTimeout(time.Second))
	require.NoError(t, err)

	handler := &recordingHandler{}
	_, err = dialer.Dial(context.Background(), testRequest(), handler)
	require.Error(t, err)
	require.Equal(t, []string{"connecting"}, handler.connectivity())
}

func TestNewDialerRejectsNonWebsocketURL(t *testing.T) {
	_, err := NewDialer("https://example.com/realtime")
	require.Error(t, err)
}

func TestServerCloseIsReportedAsClosed(t *testing.T) {
	url := newRealtimeTestServer(t, func(_ int, conn *websocket.Conn) {
		defer conn.Close()
		acceptSession(t, conn)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(time.Second))
	})

	dialer, err := NewDialer(url)
	require.NoError(t, err)

	handler := &recordingHandler{}
	conn, err := dialer.Dial(context.Background(), testRequest(), handler)
	require.NoError(t, err)
	defer conn.Close()

	<-conn.(*Conn).Done()
	require.Equal(t, []string{"connecting", "connected", "closed"}, handler.connectivity())
}

func TestDroppedConnectionIsResumed(t *testing.T) {
	resumed := make(chan sessionStart, 1)
	url := newRealtimeTestServer(t, func(attempt int, conn *websocket.Conn) {
		start := acceptSession(t, conn)
		if attempt == 1 {
			// Drop without a close frame.
			_ = conn.UnderlyingConn().Close()
			return
		}
		defer conn.Close()
		resumed <- start
		_ = conn.WriteJSON(map[string]any{"type": typeAudioStarted, "response_id": 7})
		_, _, _ = conn.ReadMessage()
	})

	dialer, err := NewDialer(url, WithReconnect(3, 10*time.Millisecond))
	require.NoError(t, err)

	handler := &recordingHandler{}
	conn, err := dialer.Dial(context.Background(), testRequest(), handler)
	require.NoError(t, err)
	defer conn.Close()

	start := <-resumed
	require.True(t, start.Resume)
	require.Equal(t, "session-1", start.SessionID)

	require.Eventually(t, func() bool {
		return slices.Contains(handler.snapshot(), "audio_started:7")
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"connecting", "connected", "disconnected", "connecting", "connected"}, handler.connectivity())
}

func TestReconnectGivesUpWithFailed(t *testing.T) {
	url := newRealtimeTestServer(t, func(attempt int, conn *websocket.Conn) {
		if attempt == 1 {
			acceptSession(t, conn)
		}
		_ = conn.UnderlyingConn().Close()
	})

	dialer, err := NewDialer(url, WithReconnect(2, 5*time.Millisecond))
	require.NoError(t, err)

	handler := &recordingHandler{}
	conn, err := dialer.Dial(context.Background(), testRequest(), handler)
	require.NoError(t, err)
	defer conn.Close()

	select {
	case <-conn.(*Conn).Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("expected read loop to give up")
	}
	require.Equal(t, []string{"connecting", "connected", "disconnected", "connecting", "failed"}, handler.connectivity())
}

func TestCloseIsQuietAndIdempotent(t *testing.T) {
	url := newRealtimeTestServer(t, func(_ int, conn *websocket.Conn) {
		defer conn.Close()
		acceptSession(t, conn)
		_, _, _ = conn.ReadMessage()
	})

	dialer, err := NewDialer(url)
	require.NoError(t, err)

	handler := &recordingHandler{}
	conn, err := dialer.Dial(context.Background(), testRequest(), handler)
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	select {
	case <-conn.(*Conn).Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("expected read loop to exit after close")
	}
	require.Equal(t, []string{"connecting", "connected"}, handler.connectivity())
}

func TestCloseFromHandlerDoesNotDeadlock(t *testing.T) {
	url := newRealtimeTestServer(t, func(_ int, conn *websocket.Conn) {
		defer conn.Close()
		acceptSession(t, conn)
		_ = conn.WriteJSON(map[string]any{"type": typeResponseDone, "response_id": 1})
		_, _, _ = conn.ReadMessage()
	})

	dialer, err := NewDialer(url)
	require.NoError(t, err)

	var conn transport.Conn
	connReady := make(chan struct{})
	handler := transport.HandlerFuncs{
		ResponseDone: func(int64) {
			<-connReady
			_ = conn.Close()
		},
	}
	conn, err = dialer.Dial(context.Background(), testRequest(), handler)
	require.NoError(t, err)
	close(connReady)

	select {
	case <-conn.(*Conn).Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("expected close from a handler callback to finish")
	}
}
