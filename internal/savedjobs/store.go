// Package savedjobs is the applicant's local key-value store: saved job
// listings and the profile used to prefill applications. Writes to a key
// replace the previous value; the last write wins.
package savedjobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

const (
	SavedJobsKey = "pn_saved_jobs"
	ProfileKey   = "pn_job_user_profile"
)

// ErrNotFound is returned by Get for a key that was never written.
var ErrNotFound = errors.New("key not found")

// Job is the subset of a listing kept when the user saves it.
type Job struct {
	ID           int64  `json:"id"`
	Title        string `json:"job_title"`
	Organization string `json:"organization_name,omitempty"`
	District     string `json:"district_name,omitempty"`
}

// Profile is reused to prefill job applications.
type Profile struct {
	ApplicantName string `json:"applicant_name"`
	Email         string `json:"email"`
	Phone         string `json:"phone,omitempty"`
	ResumeURL     string `json:"resume_url,omitempty"`
}

// Store is safe for concurrent use.
type Store struct {
	db *sql.DB
	mu sync.Mutex // serializes read-modify-write of list values
}

// Open opens (and creates) the store at path. ":memory:" gives a throwaway store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(10000)")
	if err != nil {
		return nil, fmt.Errorf("open saved jobs db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create saved jobs table: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores value under key, replacing whatever was there.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at;`,
		key, string(value), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?;`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return []byte(v), nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?;`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Keys lists stored keys in order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM kv ORDER BY key;`)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *Store) getJSON(ctx context.Context, key string, v any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *Store) putJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Put(ctx, key, raw)
}

// SavedJobs returns the saved listings in the order they were saved.
func (s *Store) SavedJobs(ctx context.Context) ([]Job, error) {
	var jobs []Job
	if err := s.getJSON(ctx, SavedJobsKey, &jobs); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return jobs, nil
}

// SaveJob appends job unless a listing with the same id is already saved.
// It reports whether the job was added.
func (s *Store) SaveJob(ctx context.Context, job Job) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.SavedJobs(ctx)
	if err != nil {
		return false, err
	}
	if slices.ContainsFunc(jobs, func(j Job) bool { return j.ID == job.ID }) {
		return false, nil
	}
	return true, s.putJSON(ctx, SavedJobsKey, append(jobs, job))
}

// RemoveJob drops the listing with id. It reports whether one was removed.
func (s *Store) RemoveJob(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.SavedJobs(ctx)
	if err != nil {
		return false, err
	}
	n := len(jobs)
	kept := slices.DeleteFunc(jobs, func(j Job) bool { return j.ID == id })
	if len(kept) == n {
		return false, nil
	}
	return true, s.putJSON(ctx, SavedJobsKey, kept)
}

// Profile returns the stored applicant profile, zero when none was saved.
func (s *Store) Profile(ctx context.Context) (Profile, error) {
	var p Profile
	if err := s.getJSON(ctx, ProfileKey, &p); err != nil && !errors.Is(err, ErrNotFound) {
		return Profile{}, err
	}
	return p, nil
}

// SetProfile replaces the stored applicant profile.
func (s *Store) SetProfile(ctx context.Context, p Profile) error {
	return s.putJSON(ctx, ProfileKey, p)
}
