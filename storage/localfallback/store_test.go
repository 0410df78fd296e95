package localfallback

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/walimu/core/autosave"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "fallback.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreWriteReadClear(t *testing.T) {
	s := openTestStore(t)
	stamp := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return stamp }

	snap := autosave.Snapshot{"full_name": "Jane Doe", "subjects": "math,physics"}
	require.NoError(t, s.Write("usr1", "app1", snap))

	draft, ok, err := s.Read("usr1", "app1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snap, draft.Data)
	assert.Equal(t, stamp, draft.Timestamp)

	// a second write overwrites in place
	snap["city"] = "Nairobi"
	require.NoError(t, s.Write("usr1", "app1", snap))
	draft, ok, err = s.Read("usr1", "app1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Nairobi", draft.Data["city"])

	// entries are keyed per (user, application)
	_, ok, err = s.Read("usr2", "app1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Clear("usr1", "app1"))
	_, ok, err = s.Read("usr1", "app1")
	require.NoError(t, err)
	assert.False(t, ok)

	// clearing a missing entry is not an error
	assert.NoError(t, s.Clear("usr1", "app1"))
}
