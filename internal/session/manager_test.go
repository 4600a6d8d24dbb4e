package session

import (
	"bytes"
	"encoding/gob"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fucheng830/chatgpt-on-wechat/internal/config"
	"github.com/fucheng830/chatgpt-on-wechat/internal/expiring"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestManager(t *testing.T, ttl time.Duration, maxMessages int) (*Manager, *fakeClock) {
	t.Helper()

	clock := &fakeClock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	m := NewManager(config.SessionConfig{
		TTL:         ttl,
		MaxMessages: maxMessages,
	}, expiring.WithClock(clock.Now))
	m.now = clock.Now
	t.Cleanup(func() { _ = m.Close() })

	return m, clock
}

func TestManager_SessionCreatesOnce(t *testing.T) {
	m, _ := newTestManager(t, time.Minute, 10)

	s := m.Session("alice", "be brief")
	assert.Equal(t, "alice", s.ID)
	assert.Equal(t, "be brief", s.SystemPrompt)

	s = m.Session("alice", "a different prompt")
	assert.Equal(t, "be brief", s.SystemPrompt, "existing session keeps its prompt")
	assert.EqualValues(t, 1, m.Stats().Created)
}

func TestManager_AppendTrimsHistory(t *testing.T) {
	m, _ := newTestManager(t, time.Minute, 3)

	m.Session("bob", "system")
	for _, msg := range []string{"one", "two", "three", "four", "five"} {
		m.Append("bob", RoleUser, msg)
	}

	s, ok := m.Lookup("bob")
	require.True(t, ok)
	require.Len(t, s.Messages, 3)
	assert.Equal(t, "three", s.Messages[0].Content)
	assert.Equal(t, "five", s.Messages[2].Content)
	assert.Equal(t, "system", s.SystemPrompt)
}

func TestManager_ReturnsCopies(t *testing.T) {
	m, _ := newTestManager(t, time.Minute, 10)

	s := m.Append("carol", RoleUser, "hi")
	s.Messages[0].Content = "changed"
	s.Messages = append(s.Messages, Message{Content: "extra"})

	got, ok := m.Lookup("carol")
	require.True(t, ok)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hi", got.Messages[0].Content)
}

func TestManager_IdleSessionExpires(t *testing.T) {
	m, clock := newTestManager(t, time.Minute, 10)

	m.Append("dave", RoleUser, "hello")

	clock.Advance(40 * time.Second)
	_, ok := m.Lookup("dave")
	require.True(t, ok, "activity within the ttl keeps the session")

	clock.Advance(40 * time.Second)
	_, ok = m.Lookup("dave")
	require.True(t, ok, "the previous lookup extended the lifetime")

	clock.Advance(61 * time.Second)
	_, ok = m.Lookup("dave")
	assert.False(t, ok)

	s := m.Session("dave", "")
	assert.Empty(t, s.Messages, "an expired session starts over")
}

func TestManager_PurgeAndStats(t *testing.T) {
	m, clock := newTestManager(t, time.Minute, 10)

	m.Session("a", "")
	m.Session("b", "")
	clock.Advance(30 * time.Second)
	m.Session("c", "")

	clock.Advance(45 * time.Second)
	assert.Equal(t, 2, m.Purge())

	stats := m.Stats()
	assert.Equal(t, 1, stats.Live)
	assert.EqualValues(t, 3, stats.Created)
	assert.EqualValues(t, 2, stats.Purged)
	assert.Equal(t, []string{"c"}, m.IDs())
}

func TestManager_Clear(t *testing.T) {
	m, _ := newTestManager(t, time.Minute, 10)

	m.Session("a", "")
	m.Session("b", "")

	assert.True(t, m.Clear("a"))
	assert.False(t, m.Clear("a"))
	assert.Equal(t, []string{"b"}, m.IDs())

	m.ClearAll()
	assert.Empty(t, m.IDs())
}

func TestManager_BackgroundCleanup(t *testing.T) {
	m := NewManager(config.SessionConfig{
		TTL:             20 * time.Millisecond,
		CleanupInterval: 10 * time.Millisecond,
		MaxMessages:     5,
	})
	defer m.Close() //nolint:errcheck

	m.Session("short-lived", "")

	assert.Eventually(t, func() bool {
		return m.Stats().Live == 0
	}, time.Second, 5*time.Millisecond)
	assert.Positive(t, m.Stats().CleanupRuns)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close(), "close is idempotent")
}

func TestManager_SnapshotRoundTrip(t *testing.T) {
	m, _ := newTestManager(t, time.Minute, 10)

	m.Session("alice", "be brief")
	m.Append("alice", RoleUser, "hello")
	m.Append("alice", RoleAssistant, "hi")
	m.Session("bob", "")

	path := filepath.Join(t.TempDir(), "state", "sessions.zst")
	require.NoError(t, m.SaveSnapshot(path, 3))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temporary file is renamed away")

	restored, restoredClock := newTestManager(t, time.Minute, 10)
	n, err := restored.LoadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	s, ok := restored.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, "be brief", s.SystemPrompt)
	require.Len(t, s.Messages, 2)
	assert.Equal(t, "hi", s.Messages[1].Content)
	assert.ElementsMatch(t, []string{"alice", "bob"}, restored.IDs())

	// Restored sessions start a fresh lifetime on the restoring manager.
	restoredClock.Advance(59 * time.Second)
	_, ok = restored.Lookup("bob")
	assert.True(t, ok)
	restoredClock.Advance(61 * time.Second)
	_, ok = restored.Lookup("bob")
	assert.False(t, ok)
}

func TestManager_LoadSnapshotMissingFile(t *testing.T) {
	m, _ := newTestManager(t, time.Minute, 10)

	n, err := m.LoadSnapshot(filepath.Join(t.TempDir(), "absent.zst"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestManager_LoadSnapshotCorrupt(t *testing.T) {
	m, _ := newTestManager(t, time.Minute, 10)

	path := filepath.Join(t.TempDir(), "bad.zst")
	require.NoError(t, os.WriteFile(path, []byte("not a snapshot"), 0o600))

	_, err := m.LoadSnapshot(path)
	assert.Error(t, err)
}

func TestManager_LoadSnapshotRejectsOtherVersion(t *testing.T) {
	m, clock := newTestManager(t, time.Minute, 10)

	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(&snapshot{
		ID:       "future",
		Version:  snapshotVersion + 1,
		Taken:    clock.Now(),
		Sessions: []Session{{ID: "alice"}},
	}))

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	data := enc.EncodeAll(buf.Bytes(), nil)
	require.NoError(t, enc.Close())

	path := filepath.Join(t.TempDir(), "future.zst")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	n, err := m.LoadSnapshot(path)
	require.ErrorIs(t, err, ErrSnapshotVersion)
	assert.Zero(t, n)
	assert.Empty(t, m.IDs(), "nothing is restored from a rejected snapshot")
}
