package widget

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/comigor/jobchat-go/internal/chatapi"
	"github.com/comigor/jobchat-go/internal/transport"
)

type fakeConn struct {
	mu      sync.Mutex
	inbound chan []byte
	writes  [][]byte
	closes  int
	closed  chan struct{}
	once    sync.Once
	dropped sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) push(frame string) { c.inbound <- []byte(frame) }

// drop simulates the server going away.
func (c *fakeConn) drop() { c.dropped.Do(func() { close(c.inbound) }) }

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data, ok := <-c.inbound:
		if !ok {
			return 0, nil, &websocket.CloseError{Code: websocket.CloseAbnormalClosure}
		}
		return websocket.TextMessage, data, nil
	case <-c.closed:
		return 0, nil, errors.New("use of closed network connection")
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, data)
	return nil
}

func (c *fakeConn) WriteControl(int, []byte, time.Time) error { return nil }

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

func (c *fakeConn) written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.writes))
	copy(out, c.writes)
	return out
}

type fakeDialer struct {
	mu       sync.Mutex
	urls     []string
	conns    []*fakeConn
	failNext int
	failAll  bool
}

func (d *fakeDialer) DialContext(_ context.Context, url string) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, url)
	if d.failAll || d.failNext > 0 {
		if d.failNext > 0 {
			d.failNext--
		}
		return nil, errors.New("connection refused")
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *fakeDialer) dialedURLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

func (d *fakeDialer) setFailAll(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failAll = v
}

// last returns the most recent successful connection.
func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// fakeRecorder counts telemetry events by label.
type fakeRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{counts: make(map[string]int)}
}

func (r *fakeRecorder) inc(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[key]++
}

func (r *fakeRecorder) count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[key]
}

func (r *fakeRecorder) ConnectAttempt(retry bool) {
	if retry {
		r.inc("attempt:retry")
		return
	}
	r.inc("attempt:initial")
}
func (r *fakeRecorder) ConnectionState(s string)        { r.inc("state:" + s) }
func (r *fakeRecorder) FrameReceived(t string)          { r.inc("frame:" + t) }
func (r *fakeRecorder) FrameDropped(reason string)      { r.inc("dropped:" + reason) }
func (r *fakeRecorder) MessageSent(path string)         { r.inc("sent:" + path) }
func (r *fakeRecorder) DuplicateReplyDropped(s string) { r.inc("duplicate:" + s) }

type fakeFallback struct {
	mu    sync.Mutex
	sent  []string
	reply string
	// replies overrides reply per message when set.
	replies map[string]string
	err     error
	// hold, when set, delays every reply until it is closed.
	hold chan struct{}
}

func (f *fakeFallback) Send(ctx context.Context, sessionID, message string) (chatapi.Reply, error) {
	f.mu.Lock()
	f.sent = append(f.sent, message)
	reply, err, hold := f.reply, f.err, f.hold
	if r, ok := f.replies[message]; ok {
		reply = r
	}
	f.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return chatapi.Reply{}, ctx.Err()
		}
	}
	if err != nil {
		return chatapi.Reply{}, err
	}
	return chatapi.Reply{Success: true, Message: reply, SessionID: sessionID}, nil
}

func (f *fakeFallback) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}
