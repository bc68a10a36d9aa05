// Package realtime is a websocket transport for the realtime tutor protocol.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-tutor/core/transport"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 5 * time.Second
	defaultMaxReconnects    = 3
	defaultReconnectBackoff = 250 * time.Millisecond
	maxReconnectBackoff     = 5 * time.Second
)

var _ transport.Dialer = (*Dialer)(nil)

// Dialer opens realtime sessions against a websocket endpoint.
type Dialer struct {
	url    string
	header http.Header
	ws     *websocket.Dialer

	handshakeTimeout time.Duration
	writeTimeout     time.Duration
	maxReconnects    uint64
	reconnectBackoff time.Duration

	audioSink func(responseID int64, pcm []byte)
}

type DialerOption func(*Dialer)

// WithHeader adds a header to every handshake request.
func WithHeader(key, value string) DialerOption {
	return func(d *Dialer) {
		d.header.Add(key, value)
	}
}

func WithHandshakeTimeout(timeout time.Duration) DialerOption {
	return func(d *Dialer) {
		if timeout > 0 {
			d.handshakeTimeout = timeout
		}
	}
}

// WithReconnect sets how many times a dropped connection is redialled and
// the base of the exponential backoff between attempts.
func WithReconnect(maxAttempts uint64, backoff time.Duration) DialerOption {
	return func(d *Dialer) {
		d.maxReconnects = maxAttempts
		if backoff > 0 {
			d.reconnectBackoff = backoff
		}
	}
}

// WithAudioSink receives the decoded audio of every audio delta. The sink
// runs on the read goroutine and should not block.
func WithAudioSink(sink func(responseID int64, pcm []byte)) DialerOption {
	return func(d *Dialer) {
		d.audioSink = sink
	}
}

func WithWebsocketDialer(ws *websocket.Dialer) DialerOption {
	return func(d *Dialer) {
		if ws != nil {
			d.ws = ws
		}
	}
}

func NewDialer(rawURL string, opts ...DialerOption) (*Dialer, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid realtime url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("invalid realtime url: unsupported scheme %q", u.Scheme)
	}

	d := &Dialer{
		url:              u.String(),
		header:           make(http.Header),
		ws:               websocket.DefaultDialer,
		handshakeTimeout: defaultHandshakeTimeout,
		writeTimeout:     defaultWriteTimeout,
		maxReconnects:    defaultMaxReconnects,
		reconnectBackoff: defaultReconnectBackoff,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d, nil
}

// Dial connects, starts the session and returns once the server
// acknowledged it. Connectivity changes after that are reported through
// handler.
func (d *Dialer) Dial(ctx context.Context, req transport.Request, handler transport.Handler) (transport.Conn, error) {
	ctx, span := tracer.Start(ctx, "realtime dial", trace.WithAttributes(
		attribute.String("session.id", req.SessionID),
		attribute.String("realtime.url", d.url),
	))
	defer span.End()

	handler.OnConnectivityChanged(transport.ConnectivityConnecting)
	ws, err := d.connect(ctx, req, false)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	c := newConn(d, req, handler, ws)
	handler.OnConnectivityChanged(transport.ConnectivityConnected)
	go c.readLoop()

	return c, nil
}

// connect dials the endpoint and performs the session handshake.
func (d *Dialer) connect(ctx context.Context, req transport.Request, resume bool) (*websocket.Conn, error) {
	dialCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, d.handshakeTimeout)
		defer cancel()
	}

	ws, resp, err := d.ws.DialContext(dialCtx, d.url, d.header.Clone())
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to open realtime connection (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to open realtime connection: %w", err)
	}

	if err := d.handshake(ws, req, resume); err != nil {
		_ = ws.Close()
		return nil, err
	}

	return ws, nil
}

func (d *Dialer) handshake(ws *websocket.Conn, req transport.Request, resume bool) error {
	start := sessionStart{
		Type:             typeSessionStart,
		SessionID:        req.SessionID,
		ScenarioID:       req.ScenarioID,
		ProficiencyLevel: req.ProficiencyLevel,
		UserContext:      maps.Clone(req.UserContext),
		Resume:           resume,
	}

	_ = ws.SetWriteDeadline(time.Now().Add(d.writeTimeout))
	if err := ws.WriteJSON(start); err != nil {
		return fmt.Errorf("failed to send session start: %w", err)
	}
	_ = ws.SetWriteDeadline(time.Time{})

	_ = ws.SetReadDeadline(time.Now().Add(d.handshakeTimeout))
	var ack serverMessage
	if err := ws.ReadJSON(&ack); err != nil {
		return fmt.Errorf("failed to read session ack: %w", err)
	}
	_ = ws.SetReadDeadline(time.Time{})

	switch ack.Type {
	case typeSessionReady:
		return nil
	case typeError:
		return &ServerError{Code: ack.Code, Message: ack.Message}
	default:
		return fmt.Errorf("unexpected first realtime frame %q", ack.Type)
	}
}

func isPermanent(err error) bool {
	var serverErr *ServerError
	return errors.As(err, &serverErr)
}
