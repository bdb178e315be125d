package widget

import (
	"context"
	"errors"

	"github.com/comigor/jobchat-go/internal/chatapi"
	"github.com/comigor/jobchat-go/internal/chatlog"
	"github.com/comigor/jobchat-go/internal/exchange"
	"github.com/comigor/jobchat-go/internal/protocol"
	"github.com/comigor/jobchat-go/internal/reconnect"
	"github.com/comigor/jobchat-go/internal/session"
	"github.com/comigor/jobchat-go/internal/transport"
)

// Everything in this file runs on the event loop.

func (c *Controller) activate() {
	if c.active || c.ctx.Err() != nil {
		return
	}
	if c.sess == nil {
		s := session.New(c.clock)
		url, err := protocol.SocketURL(c.opts.BackendURL, s.ID)
		if err != nil {
			// Validated in New; only a broken base URL gets here.
			c.log.Error("cannot build socket url", "error", err)
			return
		}
		c.sess = &s
		c.socketURL = url
		c.log.Info("chat session created", "session_id", s.ID)
	}
	c.active = true
	c.connect(false)
}

func (c *Controller) deactivate() {
	if !c.active && c.tr == nil && c.dialCancel == nil {
		return
	}
	c.active = false
	c.minimized = false
	c.policy.Cancel()
	c.gen++
	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}
	if c.tr != nil {
		if err := c.tr.Close(); err != nil {
			c.log.Debug("close transport", "error", err)
		}
		c.tr = nil
	}
	c.fire(triggerClose)
	c.abandonSocketExchanges()
	c.typing = false
	c.log.Info("chat deactivated", "session_id", c.sess.ID)
}

func (c *Controller) connect(retry bool) {
	c.gen++
	gen := c.gen
	c.fire(triggerDial)
	c.rec.ConnectAttempt(retry)

	if c.dialCancel != nil {
		c.dialCancel()
	}
	ctx, cancel := context.WithCancel(c.ctx)
	c.dialCancel = cancel

	url := c.socketURL
	opts := transport.Options{
		WriteTimeout: c.opts.WriteTimeout,
		PingInterval: c.opts.PingInterval,
		Logger:       c.log,
	}
	c.log.Info("connecting", "url", url, "retry", retry)
	go func() {
		tr, err := transport.Dial(ctx, c.opts.Dialer, url, opts)
		if !c.post(func() { c.onDialed(gen, tr, err) }) && tr != nil {
			_ = tr.Close()
		}
	}()
}

func (c *Controller) onDialed(gen uint64, tr *transport.Transport, err error) {
	if gen != c.gen || !c.active {
		if tr != nil {
			_ = tr.Close()
		}
		return
	}
	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}
	if err != nil {
		c.log.Warn("connection failed", "error", err)
		c.fire(triggerDialFailed)
		c.armRetry()
		return
	}

	c.tr = tr
	tr.Start(transport.Handler{
		OnFrame: func(data []byte) {
			c.post(func() { c.onFrame(gen, data) })
		},
		OnClosed: func(cl transport.Closed) {
			c.post(func() { c.onClosed(gen, cl) })
		},
	})
	c.fire(triggerDialSucceeded)
	c.policy.Succeeded()
	c.log.Info("connected", "session_id", c.sess.ID)
}

func (c *Controller) onClosed(gen uint64, cl transport.Closed) {
	if gen != c.gen {
		return
	}
	c.tr = nil
	c.fire(triggerLost)
	c.abandonSocketExchanges()
	if cl.Intentional || !c.active {
		return
	}
	c.log.Warn("connection lost", "error", cl.Err)
	c.armRetry()
}

// abandonSocketExchanges forgets sends whose replies died with the socket, so
// a later socket reply cannot be paired with them.
func (c *Controller) abandonSocketExchanges() {
	if n := c.exchanges.AbandonSource(exchange.SourceSocket); n > 0 {
		c.log.Debug("abandoned unanswered exchanges", "count", n)
	}
	if c.exchanges.Open() == 0 {
		c.typing = false
	}
}

func (c *Controller) armRetry() {
	if err := c.policy.Arm(); err != nil {
		if errors.Is(err, reconnect.ErrExhausted) {
			c.log.Warn("giving up on reconnect; reopen the chat to try again")
			return
		}
		c.log.Error("reconnect policy", "error", err)
	}
}

func (c *Controller) onRetryDue(pgen uint64) {
	if !c.active || !c.policy.Elapsed(pgen) {
		return
	}
	c.connect(true)
}

func (c *Controller) onFrame(gen uint64, data []byte) {
	if gen != c.gen {
		return
	}
	in, err := protocol.DecodeInbound(data)
	if err != nil {
		c.log.Warn("dropping malformed frame", "error", err, "bytes", len(data))
		c.rec.FrameDropped("malformed")
		return
	}
	c.rec.FrameReceived(string(in.Type))

	switch in.Type {
	case protocol.TypeBotMessage:
		c.typing = false
		if !c.exchanges.ResolveSocket(in.Message) {
			c.log.Debug("dropping duplicate reply", "source", exchange.SourceSocket)
			c.rec.DuplicateReplyDropped(string(exchange.SourceSocket))
			return
		}
		ts := in.Timestamp
		if ts == "" {
			ts = protocol.FormatTimestamp(c.clock.Now())
		}
		c.messages.Append(chatlog.RoleBot, in.Message, ts)
	case protocol.TypeTyping:
		c.typing = true
	default:
		c.log.Debug("ignoring frame", "type", in.Type)
	}
}

func (c *Controller) send(msg string) error {
	if c.connectionState() == StateConnected && c.tr != nil {
		if err := c.tr.Send(protocol.UserMessage(msg)); err != nil {
			c.log.Warn("socket send failed", "error", err)
			return c.sendFallback(msg, err)
		}
		c.messages.Append(chatlog.RoleUser, msg, protocol.FormatTimestamp(c.clock.Now()))
		c.exchanges.Begin(exchange.SourceSocket)
		c.typing = true
		c.rec.MessageSent(string(exchange.SourceSocket))
		return nil
	}
	return c.sendFallback(msg, ErrNotConnected)
}

func (c *Controller) sendFallback(msg string, cause error) error {
	if c.opts.Fallback == nil || !c.active || c.sess == nil {
		return cause
	}
	c.messages.Append(chatlog.RoleUser, msg, protocol.FormatTimestamp(c.clock.Now()))
	id := c.exchanges.Begin(exchange.SourceREST)
	c.typing = true
	c.rec.MessageSent(string(exchange.SourceREST))

	sessionID := c.sess.ID
	ctx, cancel := context.WithTimeout(c.ctx, c.opts.FallbackTimeout)
	go func() {
		defer cancel()
		reply, err := c.opts.Fallback.Send(ctx, sessionID, msg)
		c.post(func() { c.onRESTReply(id, reply, err) })
	}()
	return nil
}

func (c *Controller) onRESTReply(id exchange.ID, reply chatapi.Reply, err error) {
	if err != nil {
		c.log.Warn("fallback send failed", "error", err)
		c.exchanges.Abandon(id)
		if c.exchanges.Open() == 0 {
			c.typing = false
		}
		return
	}
	if !c.exchanges.ResolveREST(id, reply.Message) {
		c.log.Debug("dropping duplicate reply", "source", exchange.SourceREST)
		c.rec.DuplicateReplyDropped(string(exchange.SourceREST))
		if c.exchanges.Open() == 0 {
			c.typing = false
		}
		return
	}
	if c.exchanges.Open() == 0 {
		c.typing = false
	}
	ts := reply.Timestamp
	if ts == "" {
		ts = protocol.FormatTimestamp(c.clock.Now())
	}
	c.messages.Append(chatlog.RoleBot, reply.Message, ts)
}
