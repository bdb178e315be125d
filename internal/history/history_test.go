package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/comigor/jobchat-go/internal/logger"
)

func seed(t *testing.T, s *Store, session string, contents ...string) {
	t.Helper()
	for i, c := range contents {
		role := "user"
		if i%2 == 1 {
			role = "bot"
		}
		_, err := s.Save(context.Background(), Message{SessionID: session, Role: role, Content: c})
		require.NoError(t, err)
	}
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s := Open(path, logger.Discard())
	t.Cleanup(func() { _ = s.Close() })
	require.True(t, s.Persistent())

	seed(t, s, "a", "one", "two", "three")
	seed(t, s, "b", "other")

	msgs, err := s.List(context.Background(), "a", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, "one", msgs[0].Content)
	require.Equal(t, "bot", msgs[1].Role)
	require.Equal(t, "three", msgs[2].Content)
	require.Less(t, msgs[0].ID, msgs[2].ID)
	require.WithinDuration(t, time.Now(), msgs[0].CreatedAt, time.Minute)

	recent, err := s.List(context.Background(), "a", 2)
	require.NoError(t, err)
	require.Equal(t, []string{"two", "three"}, []string{recent[0].Content, recent[1].Content})
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s := Open(path, logger.Discard())
	seed(t, s, "a", "persisted")
	require.NoError(t, s.Close())

	s = Open(path, logger.Discard())
	t.Cleanup(func() { _ = s.Close() })
	msgs, err := s.List(context.Background(), "a", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "persisted", msgs[0].Content)
}

func TestMemoryFallback(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "missing", "dir", "history.db"), logger.Discard())
	require.False(t, s.Persistent())

	seed(t, s, "a", "x", "y", "z")
	msgs, err := s.List(context.Background(), "a", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "y", msgs[0].Content)
	require.Equal(t, int64(3), msgs[1].ID)

	none, err := s.List(context.Background(), "nobody", 0)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestSaveHonoursContext(t *testing.T) {
	s := Open("", logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Save(ctx, Message{SessionID: "a", Role: "user", Content: "x"})
	require.ErrorIs(t, err, context.Canceled)
}
