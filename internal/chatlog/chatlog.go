// Package chatlog holds the ordered, append-only message history of one chat session.
package chatlog

import (
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/comigor/jobchat-go/internal/logger"
)

// Role tells who authored a message.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Message is one rendered chat entry. Content is kept verbatim, whitespace included.
type Message struct {
	ID        int64  `json:"id"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// Log is append-only: entries are never mutated or removed. Appends are
// expected from a single owner; reads are safe from any goroutine.
type Log struct {
	mu       sync.RWMutex
	messages []Message
	lastID   int64

	clock         clockwork.Clock
	warnThreshold int
	warned        bool
	log           *slog.Logger
}

// Option customizes a Log.
type Option func(*Log)

// WithClock sets the clock used to derive message ids.
func WithClock(c clockwork.Clock) Option {
	return func(l *Log) { l.clock = c }
}

// WithWarnThreshold logs a single warning once the log holds more than n
// messages. The log keeps growing; nothing is evicted.
func WithWarnThreshold(n int) Option {
	return func(l *Log) { l.warnThreshold = n }
}

// WithLogger sets the logger used for the growth warning.
func WithLogger(lg *slog.Logger) Option {
	return func(l *Log) { l.log = lg }
}

// New creates an empty log.
func New(opts ...Option) *Log {
	l := &Log{
		messages: make([]Message, 0, 16),
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = logger.Or(l.log)
	return l
}

// Append adds a message at the end and returns it with its id assigned.
// Ids derive from wall-clock milliseconds and are bumped past the previous
// id when two appends land in the same millisecond.
func (l *Log) Append(role Role, content, timestamp string) Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.clock.Now().UnixMilli()
	if id <= l.lastID {
		id = l.lastID + 1
	}
	l.lastID = id

	msg := Message{ID: id, Role: role, Content: content, Timestamp: timestamp}
	l.messages = append(l.messages, msg)

	if l.warnThreshold > 0 && !l.warned && len(l.messages) > l.warnThreshold {
		l.warned = true
		l.log.Warn("chat log exceeds warn threshold; history is unbounded", "messages", len(l.messages), "threshold", l.warnThreshold)
	}
	return msg
}

// All returns a copy of every message in insertion order.
func (l *Log) All() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Since returns a copy of the messages after the first n.
func (l *Log) Since(n int) []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n < 0 {
		n = 0
	}
	if n >= len(l.messages) {
		return nil
	}
	out := make([]Message, len(l.messages)-n)
	copy(out, l.messages[n:])
	return out
}

// Len returns the number of messages.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}
