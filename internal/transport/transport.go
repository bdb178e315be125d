// Package transport owns one duplex websocket connection to the chat backend.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/comigor/jobchat-go/internal/logger"
)

// ErrClosed is returned when sending on a transport that was closed.
var ErrClosed = errors.New("transport closed")

// Conn is the subset of *websocket.Conn the transport needs.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Dialer opens a Conn to url.
type Dialer interface {
	DialContext(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials with gorilla/websocket.
type WebsocketDialer struct {
	Dialer *websocket.Dialer
	Header http.Header
}

// NewWebsocketDialer returns a dialer with the given handshake timeout.
func NewWebsocketDialer(handshakeTimeout time.Duration) *WebsocketDialer {
	return &WebsocketDialer{
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

// DialContext implements Dialer.
func (d *WebsocketDialer) DialContext(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// Closed describes why the read pump stopped.
type Closed struct {
	Err         error
	Intentional bool
}

// Handler receives transport events. Callbacks run on the read pump
// goroutine and must not block for long.
type Handler struct {
	OnFrame  func(data []byte)
	OnClosed func(Closed)
}

// Options tune an open transport.
type Options struct {
	WriteTimeout time.Duration
	PingInterval time.Duration
	Logger       *slog.Logger
}

const defaultWriteTimeout = 10 * time.Second

// Transport is safe for concurrent use.
type Transport struct {
	conn    Conn
	handler Handler
	opts    Options
	log     *slog.Logger

	writeMu   sync.Mutex
	startOnce sync.Once
	closeOnce sync.Once
	closing   chan struct{}
	done      chan struct{}
	closeErr  error
}

// Dial connects to url without reading yet. Call Start to begin receiving.
func Dial(ctx context.Context, d Dialer, url string, opts Options) (*Transport, error) {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	conn, err := d.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return &Transport{
		conn:    conn,
		opts:    opts,
		log:     logger.Or(opts.Logger).With("component", "transport"),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Start begins delivering frames to h. The transport reports exactly one
// Closed event through h once reading stops. Only the first call counts, and
// a transport closed before Start never reads.
func (t *Transport) Start(h Handler) {
	t.startOnce.Do(func() {
		t.handler = h
		go t.readLoop()
		if t.opts.PingInterval > 0 {
			go t.pingLoop()
		}
	})
}

// Send writes v as a JSON text frame.
func (t *Transport) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	select {
	case <-t.closing:
		return ErrClosed
	default:
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.opts.WriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Close shuts the connection down intentionally. Only the first call has
// any effect; later calls return the first result.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closing)
		// Never started: nothing will close done for us.
		t.startOnce.Do(func() { close(t.done) })
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
			t.log.Debug("close frame not sent", "error", err)
		}
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

// Done is closed once the read pump has stopped and OnClosed returned.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

func (t *Transport) intentional() bool {
	select {
	case <-t.closing:
		return true
	default:
		return false
	}
}

func (t *Transport) readLoop() {
	var readErr error
	defer func() {
		intentional := t.intentional()
		if !intentional {
			// The peer went away; release the socket ourselves.
			t.closeOnce.Do(func() { t.closeErr = t.conn.Close() })
		}
		if t.handler.OnClosed != nil {
			t.handler.OnClosed(Closed{Err: readErr, Intentional: intentional})
		}
		close(t.done)
	}()

	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			readErr = err
			if !t.intentional() {
				t.log.Info("connection lost", "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			t.log.Debug("ignoring non-text frame", "type", msgType)
			continue
		}
		if t.handler.OnFrame != nil {
			t.handler.OnFrame(data)
		}
	}
}

func (t *Transport) pingLoop() {
	ticker := time.NewTicker(t.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			if err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.opts.WriteTimeout)); err != nil {
				t.log.Debug("ping failed", "error", err)
				return
			}
		}
	}
}
