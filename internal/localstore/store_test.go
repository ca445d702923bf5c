package localstore

import (
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_GetSetDelete(t *testing.T) {
	s := openTestStore(t)

	_, ok, err := s.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set("k", "v1"))
	require.NoError(t, s.Set("k", "v2"))
	v, ok, err := s.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v2", v)

	require.NoError(t, s.Delete("k", "never-set"))
	_, ok, err = s.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_UserIDIsStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := Open(path)
	require.NoError(t, err)
	s.now = func() time.Time { return time.UnixMilli(1700000000123) }

	id, err := s.UserID()
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^user_1700000000123_[0-9a-f]{9}$`), id)

	again, err := s.UserID()
	require.NoError(t, err)
	assert.Equal(t, id, again)
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	persisted, err := reopened.UserID()
	require.NoError(t, err)
	assert.Equal(t, id, persisted)
}

func TestStore_SyncMarkers(t *testing.T) {
	s := openTestStore(t)
	at := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

	last, err := s.LastSync()
	require.NoError(t, err)
	assert.True(t, last.IsZero())

	require.NoError(t, s.RecordSync(at, "success", nil))
	last, err = s.LastSync()
	require.NoError(t, err)
	assert.True(t, at.Equal(last))

	// A failed sync records the error but keeps the last success.
	require.NoError(t, s.RecordSync(at.Add(time.Hour), "error", errors.New("boom")))
	last, err = s.LastSync()
	require.NoError(t, err)
	assert.True(t, at.Equal(last))

	rec, err := s.SyncStatus()
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "error", rec.Status)
	assert.Equal(t, "boom", rec.Error)

	require.NoError(t, s.RecordLoad(at, "success", nil))
	loaded, err := s.LastLoad()
	require.NoError(t, err)
	assert.True(t, at.Equal(loaded))

	require.NoError(t, s.ClearSyncMarkers())
	rec, err = s.SyncStatus()
	require.NoError(t, err)
	assert.Nil(t, rec)
	last, err = s.LastSync()
	require.NoError(t, err)
	assert.True(t, last.IsZero())
}

func TestStore_Preferences(t *testing.T) {
	s := openTestStore(t)

	enabled, err := s.SyncEnabled()
	require.NoError(t, err)
	assert.True(t, enabled)
	require.NoError(t, s.SetSyncEnabled(false))
	enabled, err = s.SyncEnabled()
	require.NoError(t, err)
	assert.False(t, enabled)

	auto, err := s.AutoBackupEnabled()
	require.NoError(t, err)
	assert.True(t, auto)
	require.NoError(t, s.SetAutoBackupEnabled(false))
	auto, err = s.AutoBackupEnabled()
	require.NoError(t, err)
	assert.False(t, auto)
}

func TestStore_QuotaMarkers(t *testing.T) {
	s := openTestStore(t)
	reset := time.UnixMilli(1700000000000)

	require.NoError(t, s.SetAPICallHistory([]int64{1, 2, 3}))
	calls, err := s.APICallHistory()
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, calls)

	require.NoError(t, s.SetQuotaResetTime(reset))
	got, err := s.QuotaResetTime()
	require.NoError(t, err)
	assert.True(t, reset.Equal(got))

	require.NoError(t, s.SetQuotaResetTime(time.Time{}))
	got, err = s.QuotaResetTime()
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestStore_CorruptJSONIsAbsent(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Set(KeyBackupHistory, "{not json"))

	history, err := s.BackupHistory()
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestStore_ClearLocalKeepsUserID(t *testing.T) {
	s := openTestStore(t)
	id, err := s.UserID()
	require.NoError(t, err)
	require.NoError(t, s.SetBackupHistory([]string{"2024-03-05 10-00-00 (Manual)"}))
	require.NoError(t, s.SetLastBackupDate("2024-03-05"))

	require.NoError(t, s.ClearLocal())

	keys, err := s.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{KeyUserID}, keys)
	again, err := s.UserID()
	require.NoError(t, err)
	assert.Equal(t, id, again)
}
