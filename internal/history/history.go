// Package history provides SQLite-based persistence for chat transcripts.
// If opening the DB or executing queries fails, the store falls back to
// in-memory storage.
package history

import (
	"context"
	"database/sql"
	"log/slog"
	"slices"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/comigor/jobchat-go/internal/logger"
)

// Store keeps transcripts per session. It is safe for concurrent use.
type Store struct {
	db  *sql.DB
	log *slog.Logger

	mu       sync.Mutex
	messages []Message // in-memory fallback
	nextID   int64
}

// Open opens (and creates) the SQLite database at path. An empty path keeps
// everything in memory. Open never fails; a broken database is logged and
// the store runs from memory.
func Open(path string, lg *slog.Logger) *Store {
	s := &Store{log: logger.Or(lg).With("component", "history")}
	if path == "" {
		return s
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(10000)")
	if err != nil {
		s.log.Warn("sqlite open failed; using in-memory history", "error", err)
		return s
	}
	db.SetMaxOpenConns(1)
	if _, err = db.Exec(`CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS messages_session ON messages (session_id, id);`); err != nil {
		s.log.Warn("sqlite table creation failed; using in-memory history", "error", err)
		_ = db.Close()
		return s
	}
	s.db = db
	s.log.Info("sqlite history DB initialized", "path", path)
	return s
}

// Persistent reports whether messages reach the database.
func (s *Store) Persistent() bool {
	return s.db != nil
}

// Save persists msg and returns it with ID and CreatedAt filled in. An
// in-memory copy is always kept as fallback.
func (s *Store) Save(ctx context.Context, msg Message) (Message, error) {
	if err := ctx.Err(); err != nil {
		return msg, err
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO messages (session_id, role, content, created_at) VALUES (?,?,?,?);`,
			msg.SessionID, msg.Role, msg.Content, msg.CreatedAt.UnixMilli())
		if err != nil {
			s.log.Error("failed to store message in sqlite; falling back to memory", "error", err)
		} else if id, err := res.LastInsertId(); err == nil {
			msg.ID = id
		}
	}
	if msg.ID == 0 {
		s.nextID++
		msg.ID = s.nextID
	}
	s.messages = append(s.messages, msg)
	return msg, nil
}

// List returns the most recent limit messages of a session in chronological
// order. A limit of zero or less returns all of them.
func (s *Store) List(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if s.db != nil {
		out, err := s.query(ctx, sessionID, limit)
		if err == nil {
			return out, nil
		}
		s.log.Error("failed to read history from sqlite; using memory", "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Message
	for _, m := range s.messages {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *Store) query(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, created_at FROM messages WHERE session_id = ? ORDER BY id DESC LIMIT ?;`,
		sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var created int64
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &created); err != nil {
			return nil, err
		}
		m.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
