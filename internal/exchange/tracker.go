// Package exchange pairs user messages with bot replies so a reply that
// reaches the client over both the socket and the REST fallback is shown once.
//
// Every user send begins an exchange. The first reply for an exchange
// resolves it and wins; any later reply for the same exchange is dropped.
// REST replies name their exchange explicitly. Socket replies carry no
// correlation id, so they resolve the oldest open exchange; with nothing
// open they are accepted (welcome and unsolicited messages).
//
// A reply resolved over REST may still be pushed on the socket later. Those
// replies wait in a FIFO, and a socket reply matching one of them is dropped
// and consumes it. The FIFO is cleared whenever a socket reply resolves a real
// exchange, since the server has moved past them by then.
package exchange

// ID identifies one exchange within a tracker.
type ID uint64

// Source tells which path carried a message or delivered a reply.
type Source string

const (
	SourceSocket Source = "socket"
	SourceREST   Source = "rest"
)

// MaxPendingEchoes bounds the REST replies waiting for a socket copy.
const MaxPendingEchoes = 32

type pending struct {
	id  ID
	src Source
}

// Tracker is not safe for concurrent use.
type Tracker struct {
	next    ID
	open    []pending
	echoes  []string
	maxEcho int
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{maxEcho: MaxPendingEchoes}
}

// Begin opens a new exchange for a message sent over src.
func (t *Tracker) Begin(src Source) ID {
	t.next++
	t.open = append(t.open, pending{id: t.next, src: src})
	return t.next
}

// Open returns the number of exchanges awaiting a reply.
func (t *Tracker) Open() int {
	return len(t.open)
}

// Echoes returns the number of REST replies still waiting for a socket copy.
func (t *Tracker) Echoes() int {
	return len(t.echoes)
}

// ResolveSocket reports whether a socket reply with content should be shown.
func (t *Tracker) ResolveSocket(content string) bool {
	for i, e := range t.echoes {
		if e == content {
			t.echoes = append(t.echoes[:i], t.echoes[i+1:]...)
			return false
		}
	}
	if len(t.open) > 0 {
		t.open = t.open[1:]
		t.echoes = t.echoes[:0]
	}
	return true
}

// ResolveREST reports whether the REST reply for id should be shown. A reply
// for an exchange that is no longer open (already answered on the socket,
// abandoned, or never begun) is dropped.
func (t *Tracker) ResolveREST(id ID, content string) bool {
	if !t.remove(id) {
		return false
	}
	if len(t.echoes) == t.maxEcho {
		t.echoes = t.echoes[1:]
	}
	t.echoes = append(t.echoes, content)
	return true
}

// Abandon closes an exchange that will never get a REST reply, for instance
// after the request failed. A socket reply can still resolve later ones.
func (t *Tracker) Abandon(id ID) {
	t.remove(id)
}

// AbandonSource closes every open exchange that began on src and returns how
// many were closed. Socket exchanges cannot be answered once their
// connection is gone.
func (t *Tracker) AbandonSource(src Source) int {
	kept := t.open[:0]
	for _, p := range t.open {
		if p.src != src {
			kept = append(kept, p)
		}
	}
	n := len(t.open) - len(kept)
	t.open = kept
	return n
}

func (t *Tracker) remove(id ID) bool {
	for i, p := range t.open {
		if p.id == id {
			t.open = append(t.open[:i], t.open[i+1:]...)
			return true
		}
	}
	return false
}
