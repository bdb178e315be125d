// Package widget composes the chat session pieces into the controller the UI
// shell drives: open/close/minimize, send, and a read-only view for rendering.
//
// All state changes run on one event loop goroutine. Transport callbacks,
// retry timers, REST replies and user commands are posted to it, so the
// connection state, typing flag, reconnect policy and message log are never
// touched concurrently.
package widget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/qmuntal/stateless"

	"github.com/comigor/jobchat-go/internal/chatapi"
	"github.com/comigor/jobchat-go/internal/chatlog"
	"github.com/comigor/jobchat-go/internal/exchange"
	"github.com/comigor/jobchat-go/internal/logger"
	"github.com/comigor/jobchat-go/internal/protocol"
	"github.com/comigor/jobchat-go/internal/reconnect"
	"github.com/comigor/jobchat-go/internal/session"
	"github.com/comigor/jobchat-go/internal/telemetry"
	"github.com/comigor/jobchat-go/internal/transport"
)

var (
	// ErrNotConnected is returned when a message cannot be delivered because
	// the socket is down and no fallback is configured.
	ErrNotConnected = errors.New("chat is not connected")
	// ErrUnknownQuickReply is returned for a phrase outside the canned set.
	ErrUnknownQuickReply = errors.New("unknown quick reply")
	// ErrShutdown is returned by commands issued after Shutdown.
	ErrShutdown = errors.New("chat widget shut down")
)

// DefaultQuickReplies are the canned phrases offered on an empty conversation.
var DefaultQuickReplies = []string{
	"Find government jobs in Ludhiana",
	"Show private IT jobs for graduates",
	"Highest paying jobs in Punjab",
	"Jobs for 0-2 years in Amritsar",
}

// Fallback delivers a message without the socket and returns the reply.
// *chatapi.Client implements it.
type Fallback interface {
	Send(ctx context.Context, sessionID, message string) (chatapi.Reply, error)
}

// Options configure a Controller. BackendURL and Dialer are required.
type Options struct {
	BackendURL string
	Dialer     transport.Dialer

	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	PingInterval         time.Duration
	WriteTimeout         time.Duration

	// Fallback, when set, carries messages while the socket is down.
	Fallback        Fallback
	FallbackTimeout time.Duration

	QuickReplies     []string
	LogWarnThreshold int

	Clock     clockwork.Clock
	Telemetry telemetry.Recorder
	Logger    *slog.Logger
}

// Controller is the chat widget. Its methods are safe for concurrent use.
type Controller struct {
	opts  Options
	log   *slog.Logger
	rec   telemetry.Recorder
	clock clockwork.Clock

	ctx      context.Context
	cancel   context.CancelFunc
	events   chan func()
	done     chan struct{}
	changes  chan struct{}
	stopOnce sync.Once

	messages *chatlog.Log

	mu      sync.RWMutex
	view    view
	lastLen int

	// Owned by the event loop.
	sess       *session.Session
	socketURL  string
	active     bool
	minimized  bool
	typing     bool
	conn       *stateless.StateMachine
	policy     *reconnect.Policy
	tr         *transport.Transport
	gen        uint64
	dialCancel context.CancelFunc
	exchanges  *exchange.Tracker
}

type view struct {
	sessionID string
	state     ConnectionState
	typing    bool
	active    bool
	minimized bool
}

// New builds a controller and starts its event loop. Call Shutdown to
// release it.
func New(opts Options) (*Controller, error) {
	if opts.Dialer == nil {
		return nil, errors.New("widget: dialer is required")
	}
	if _, err := protocol.SocketURL(opts.BackendURL, "check"); err != nil {
		return nil, fmt.Errorf("widget: %w", err)
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.Nop{}
	}
	if opts.FallbackTimeout <= 0 {
		opts.FallbackTimeout = chatapi.DefaultTimeout
	}
	if len(opts.QuickReplies) == 0 {
		opts.QuickReplies = DefaultQuickReplies
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		opts:      opts,
		log:       logger.Or(opts.Logger).With("component", "widget"),
		rec:       opts.Telemetry,
		clock:     opts.Clock,
		ctx:       ctx,
		cancel:    cancel,
		events:    make(chan func(), 64),
		done:      make(chan struct{}),
		changes:   make(chan struct{}, 1),
		exchanges: exchange.NewTracker(),
	}
	c.messages = chatlog.New(
		chatlog.WithClock(opts.Clock),
		chatlog.WithWarnThreshold(opts.LogWarnThreshold),
		chatlog.WithLogger(c.log),
	)
	c.conn = newConnectionMachine(c.onConnectionState)
	c.policy = reconnect.New(reconnect.Options{
		Delay:       opts.ReconnectDelay,
		MaxAttempts: opts.MaxReconnectAttempts,
		Clock:       opts.Clock,
		Logger:      c.log,
	}, func(gen uint64) {
		c.post(func() { c.onRetryDue(gen) })
	})
	c.view.state = StateDisconnected
	c.rec.ConnectionState(string(StateDisconnected))

	go c.run()
	return c, nil
}

func (c *Controller) run() {
	defer close(c.done)
	for {
		select {
		case fn := <-c.events:
			fn()
			c.publish()
		case <-c.ctx.Done():
			c.deactivate()
			c.drain()
			c.publish()
			return
		}
	}
}

// drain runs callbacks that were queued before the loop stopped, so late
// dial results still get their transports closed.
func (c *Controller) drain() {
	for {
		select {
		case fn := <-c.events:
			fn()
		default:
			return
		}
	}
}

// post queues fn on the event loop. It reports false once the loop stopped.
func (c *Controller) post(fn func()) bool {
	select {
	case c.events <- fn:
		return true
	case <-c.ctx.Done():
		return false
	}
}

// do runs fn on the event loop and waits for it.
func (c *Controller) do(fn func()) error {
	finished := make(chan struct{})
	if !c.post(func() { fn(); c.publish(); close(finished) }) {
		return ErrShutdown
	}
	select {
	case <-finished:
		return nil
	case <-c.done:
		return ErrShutdown
	}
}

// Activate opens the widget. The first call creates the session; every call
// while inactive opens the transport. Calls while active do nothing.
func (c *Controller) Activate() error {
	return c.do(c.activate)
}

// Deactivate closes the transport intentionally and cancels a pending retry.
// The message log is kept.
func (c *Controller) Deactivate() error {
	return c.do(c.deactivate)
}

// Shutdown releases everything the controller holds: the transport is closed,
// a pending retry is cancelled and the event loop stops. Safe to call twice.
func (c *Controller) Shutdown() {
	c.stopOnce.Do(func() {
		c.cancel()
		<-c.done
	})
}

// Toggle mirrors the launcher button: it opens a closed widget and otherwise
// flips between minimized and expanded.
func (c *Controller) Toggle() error {
	return c.do(func() {
		switch {
		case c.active && c.minimized:
			c.minimized = false
		case c.active:
			c.minimized = true
		default:
			c.activate()
			c.minimized = false
		}
	})
}

// SetMinimized collapses or expands an open widget.
func (c *Controller) SetMinimized(minimized bool) error {
	return c.do(func() {
		if c.active {
			c.minimized = minimized
		}
	})
}

// SendUserMessage submits text. Blank text is ignored. The message is added
// to the log before any reply arrives and the typing indicator is raised.
func (c *Controller) SendUserMessage(text string) error {
	msg := strings.TrimSpace(text)
	if msg == "" {
		return nil
	}
	var err error
	if doErr := c.do(func() { err = c.send(msg) }); doErr != nil {
		return doErr
	}
	return err
}

// SendQuickReply submits one of the canned phrases.
func (c *Controller) SendQuickReply(text string) error {
	if !slices.Contains(c.opts.QuickReplies, text) {
		return fmt.Errorf("%w: %q", ErrUnknownQuickReply, text)
	}
	return c.SendUserMessage(text)
}

// QuickReplies returns the canned phrases.
func (c *Controller) QuickReplies() []string {
	return slices.Clone(c.opts.QuickReplies)
}

// Messages returns the full ordered history.
func (c *Controller) Messages() []chatlog.Message {
	return c.messages.All()
}

// MessagesSince returns the history after the first n messages.
func (c *Controller) MessagesSince(n int) []chatlog.Message {
	return c.messages.Since(n)
}

// State returns the connection state.
func (c *Controller) State() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view.state
}

// Typing reports whether the bot is composing a reply.
func (c *Controller) Typing() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view.typing
}

// Active reports whether the widget is open.
func (c *Controller) Active() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view.active
}

// Minimized reports whether the open widget is collapsed.
func (c *Controller) Minimized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view.minimized
}

// SessionID returns the session id, empty before the first Activate.
func (c *Controller) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view.sessionID
}

// StatusLabel is the passive connection indicator shown in the header.
func (c *Controller) StatusLabel() string {
	if c.State() == StateConnected {
		return "Online"
	}
	return "Connecting..."
}

// Changes signals after any visible change. Signals coalesce; read the
// current view after receiving one.
func (c *Controller) Changes() <-chan struct{} {
	return c.changes
}

func (c *Controller) publish() {
	next := view{
		state:     c.connectionState(),
		typing:    c.typing,
		active:    c.active,
		minimized: c.minimized,
	}
	if c.sess != nil {
		next.sessionID = c.sess.ID
	}
	n := c.messages.Len()

	c.mu.Lock()
	changed := next != c.view || n != c.lastLen
	c.view = next
	c.lastLen = n
	c.mu.Unlock()

	if changed {
		select {
		case c.changes <- struct{}{}:
		default:
		}
	}
}

func (c *Controller) connectionState() ConnectionState {
	return c.conn.MustState().(ConnectionState)
}

func (c *Controller) fire(trigger connTrigger) {
	if err := c.conn.Fire(trigger); err != nil {
		c.log.Warn("connection state machine rejected trigger", "trigger", trigger, "error", err)
	}
}

func (c *Controller) onConnectionState(s ConnectionState) {
	if s == StateDisconnected {
		c.typing = false
	}
	c.rec.ConnectionState(string(s))
	c.log.Debug("connection state", "state", s)
}
