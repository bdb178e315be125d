package savedjobs

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "saved.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLastWriteWins(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "k")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, "k", []byte("first")))
	require.NoError(t, s.Put(ctx, "k", []byte("second")))
	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "second", string(v))

	require.NoError(t, s.Put(ctx, "a", []byte("x")))
	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "k"}, keys)

	require.NoError(t, s.Delete(ctx, "k"))
	require.NoError(t, s.Delete(ctx, "k"))
	_, err = s.Get(ctx, "k")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSavedJobs(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	jobs, err := s.SavedJobs(ctx)
	require.NoError(t, err)
	require.Empty(t, jobs)

	added, err := s.SaveJob(ctx, Job{ID: 7, Title: "Clerk", District: "Ludhiana"})
	require.NoError(t, err)
	require.True(t, added)
	added, err = s.SaveJob(ctx, Job{ID: 9, Title: "Accountant"})
	require.NoError(t, err)
	require.True(t, added)

	added, err = s.SaveJob(ctx, Job{ID: 7, Title: "Clerk (again)"})
	require.NoError(t, err)
	require.False(t, added)

	jobs, err = s.SavedJobs(ctx)
	require.NoError(t, err)
	require.Equal(t, []Job{{ID: 7, Title: "Clerk", District: "Ludhiana"}, {ID: 9, Title: "Accountant"}}, jobs)

	removed, err := s.RemoveJob(ctx, 7)
	require.NoError(t, err)
	require.True(t, removed)
	removed, err = s.RemoveJob(ctx, 7)
	require.NoError(t, err)
	require.False(t, removed)

	jobs, err = s.SavedJobs(ctx)
	require.NoError(t, err)
	require.Equal(t, []Job{{ID: 9, Title: "Accountant"}}, jobs)
}

func TestProfile(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	p, err := s.Profile(ctx)
	require.NoError(t, err)
	require.Zero(t, p)

	require.NoError(t, s.SetProfile(ctx, Profile{ApplicantName: "Asha", Email: "asha@example.com"}))
	require.NoError(t, s.SetProfile(ctx, Profile{ApplicantName: "Asha K", Email: "asha@example.com", Phone: "98"}))
	p, err = s.Profile(ctx)
	require.NoError(t, err)
	require.Equal(t, Profile{ApplicantName: "Asha K", Email: "asha@example.com", Phone: "98"}, p)
}

func TestCorruptValue(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, ProfileKey, []byte("{not json")))
	_, err := s.Profile(ctx)
	require.Error(t, err)
}
