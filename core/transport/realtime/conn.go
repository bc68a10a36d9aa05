package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-tutor/core/transport"
	"github.com/sethvargo/go-retry"
)

var (
	_ transport.Conn = (*Conn)(nil)

	errConnClosed = errors.New("realtime connection closed")
)

// Conn is a live realtime session. It redials dropped connections on its
// own and reports every connectivity change to the handler.
type Conn struct {
	dialer  *Dialer
	request transport.Request
	handler transport.Handler

	mu     sync.Mutex
	ws     *websocket.Conn
	closed bool

	// ctx is cancelled by Close to abort reconnect attempts.
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

func newConn(d *Dialer, req transport.Request, handler transport.Handler, ws *websocket.Conn) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		dialer:  d,
		request: req,
		handler: handler,
		ws:      ws,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Close ends the session. It does not wait for the read goroutine; use Done
// for that.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		ws := c.ws
		c.ws = nil
		c.mu.Unlock()

		c.cancel()
		if ws == nil {
			return
		}

		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
			time.Now().Add(c.dialer.writeTimeout))
		if err := ws.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			c.closeErr = fmt.Errorf("failed to close realtime connection: %w", err)
		}
	})
	return c.closeErr
}

// Done is closed once the read goroutine exited.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) swap(ws *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.ws = ws
	return true
}

func (c *Conn) readLoop() {
	defer close(c.done)

	for {
		ws := c.current()
		if ws == nil {
			return
		}

		err := c.readMessages(ws)
		if c.isClosed() {
			return
		}

		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			logger.Info("realtime server ended the session", "session_id", c.request.SessionID)
			c.handler.OnConnectivityChanged(transport.ConnectivityClosed)
			return
		}

		logger.Warn("realtime connection dropped",
			"session_id", c.request.SessionID,
			"error", err)
		_ = ws.Close()
		c.handler.OnConnectivityChanged(transport.ConnectivityDisconnected)

		if err := c.reconnect(); err != nil {
			if c.isClosed() {
				return
			}
			logger.Error("realtime reconnect failed",
				"session_id", c.request.SessionID,
				"error", err)
			c.handler.OnConnectivityChanged(transport.ConnectivityFailed)
			return
		}

		logger.Info("realtime connection restored", "session_id", c.request.SessionID)
		c.handler.OnConnectivityChanged(transport.ConnectivityConnected)
	}
}

func (c *Conn) reconnect() error {
	c.handler.OnConnectivityChanged(transport.ConnectivityConnecting)

	backoff := retry.WithMaxRetries(c.dialer.maxReconnects,
		retry.WithCappedDuration(maxReconnectBackoff, retry.NewExponential(c.dialer.reconnectBackoff)))

	return retry.Do(c.ctx, backoff, func(ctx context.Context) error {
		ws, err := c.dialer.connect(ctx, c.request, true)
		if err != nil {
			if isPermanent(err) {
				return err
			}
			logger.Debug("realtime reconnect attempt failed", "error", err)
			return retry.RetryableError(err)
		}

		if !c.swap(ws) {
			_ = ws.Close()
			return errConnClosed
		}
		return nil
	})
}

// readMessages dispatches frames from ws until reading fails.
func (c *Conn) readMessages(ws *websocket.Conn) error {
	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			return err
		}

		switch messageType {
		case websocket.TextMessage:
			var msg serverMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				logger.Warn("failed to decode realtime frame", "error", err)
				continue
			}
			c.dispatch(msg)
		default:
			continue
		}
	}
}

func (c *Conn) dispatch(msg serverMessage) {
	switch msg.Type {
	case typeAudioStarted:
		c.handler.OnAudioStarted(msg.ResponseID)
	case typeAudioDelta:
		if c.dialer.audioSink != nil && len(msg.Audio) > 0 {
			c.dialer.audioSink(msg.ResponseID, msg.Audio)
		}
		c.handler.OnAudioDataChunk(msg.ResponseID)
	case typeAudioStopped:
		c.handler.OnAudioStopped(msg.ResponseID)
	case typeTranscriptDelta:
		c.handler.OnTranscriptDelta(msg.ResponseID, msg.Delta)
	case typeTranscriptDone:
		c.handler.OnTranscriptComplete(msg.ResponseID, msg.Text)
	case typeResponseDone:
		c.handler.OnResponseDone(msg.ResponseID)
	case typeSpeaking:
		c.handler.OnSpeakingChanged(msg.Speaking)
	case typeError:
		logger.Warn("realtime server reported an error",
			"session_id", c.request.SessionID,
			"code", msg.Code,
			"message", msg.Message)
	case typeSessionReady:
	default:
		logger.Debug("ignoring unknown realtime frame", "type", msg.Type)
	}
}
