// Package session provides the identity of one chat widget activation.
package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Session identifies one widget activation. It is created once and never
// rotated, not even across reconnects.
type Session struct {
	ID        string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}

// New generates a session with a random (v4) UUID, stamped with clock's time.
func New(clock clockwork.Clock) Session {
	return Session{
		ID:        uuid.NewString(),
		CreatedAt: clock.Now().UTC(),
	}
}

// Valid reports whether id parses as a UUID.
func Valid(id string) bool {
	return uuid.Validate(id) == nil
}
