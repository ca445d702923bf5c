package localstore

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"finance-tracker/internal/models"
)

// Marker keys. The names match what earlier installations wrote.
const (
	KeyUserID            = "tracker_user_id"
	KeyLastSync          = "last_mongo_sync"
	KeyLastLoad          = "last_mongo_load"
	KeySyncStatus        = "sync_status"
	KeySyncEnabled       = "mongoSyncEnabled"
	KeyAPICallHistory    = "apiCallHistory"
	KeyQuotaResetTime    = "quotaResetTime"
	KeyLastAPICall       = "lastAPICall"
	KeyBackupHistory     = "backupHistory"
	KeyAutoBackupEnabled = "autoBackupEnabled"
	KeyLastBackupDate    = "lastBackupDate"
)

// SyncRecord is the outcome of the most recent sync or load.
type SyncRecord struct {
	LastSync string `json:"lastSync,omitempty"`
	LastLoad string `json:"lastLoad,omitempty"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

// UserID returns the installation's user id, generating and persisting one
// of the form user_<unix ms>_<9 chars> on first use.
func (s *Store) UserID() (string, error) {
	id, ok, err := s.Get(KeyUserID)
	if err != nil {
		return "", err
	}
	if ok && id != "" {
		return id, nil
	}

	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	id = fmt.Sprintf("user_%d_%s", s.now().UnixMilli(), suffix)
	if err := s.Set(KeyUserID, id); err != nil {
		return "", err
	}
	return id, nil
}

// LastSync returns the time of the last successful push, zero if never.
func (s *Store) LastSync() (time.Time, error) {
	return s.getTimestamp(KeyLastSync)
}

// LastLoad returns the time of the last successful load, zero if never.
func (s *Store) LastLoad() (time.Time, error) {
	return s.getTimestamp(KeyLastLoad)
}

// RecordSync persists a sync outcome. A successful outcome also advances the
// last-sync marker.
func (s *Store) RecordSync(at time.Time, status string, syncErr error) error {
	rec := SyncRecord{LastSync: models.Timestamp(at), Status: status}
	if syncErr != nil {
		rec.Error = syncErr.Error()
	} else if err := s.Set(KeyLastSync, rec.LastSync); err != nil {
		return err
	}
	return s.setJSON(KeySyncStatus, rec)
}

// RecordLoad persists a load outcome. A successful outcome also advances the
// last-load marker.
func (s *Store) RecordLoad(at time.Time, status string, loadErr error) error {
	rec := SyncRecord{LastLoad: models.Timestamp(at), Status: status}
	if loadErr != nil {
		rec.Error = loadErr.Error()
	} else if err := s.Set(KeyLastLoad, rec.LastLoad); err != nil {
		return err
	}
	return s.setJSON(KeySyncStatus, rec)
}

// SyncStatus returns the last recorded outcome, or nil if none.
func (s *Store) SyncStatus() (*SyncRecord, error) {
	var rec SyncRecord
	ok, err := s.getJSON(KeySyncStatus, &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &rec, nil
}

// ClearSyncMarkers forgets the sync bookkeeping after the remote copy is deleted.
func (s *Store) ClearSyncMarkers() error {
	return s.Delete(KeyLastSync, KeyLastLoad, KeySyncStatus)
}

// ClearLocal removes every key except the user id.
func (s *Store) ClearLocal() error {
	if _, err := s.db.Exec(`DELETE FROM kv WHERE key <> ?`, KeyUserID); err != nil {
		return fmt.Errorf("failed to clear local state: %w", err)
	}
	return nil
}

// SyncEnabled defaults to true.
func (s *Store) SyncEnabled() (bool, error) {
	return s.getBool(KeySyncEnabled, true)
}

func (s *Store) SetSyncEnabled(enabled bool) error {
	return s.Set(KeySyncEnabled, strconv.FormatBool(enabled))
}

// AutoBackupEnabled defaults to true.
func (s *Store) AutoBackupEnabled() (bool, error) {
	return s.getBool(KeyAutoBackupEnabled, true)
}

func (s *Store) SetAutoBackupEnabled(enabled bool) error {
	return s.Set(KeyAutoBackupEnabled, strconv.FormatBool(enabled))
}

// LastBackupDate returns the ISO calendar date of the last snapshot, "" if none.
func (s *Store) LastBackupDate() (string, error) {
	v, _, err := s.Get(KeyLastBackupDate)
	return v, err
}

func (s *Store) SetLastBackupDate(date string) error {
	return s.Set(KeyLastBackupDate, date)
}

// BackupHistory returns the recorded snapshot entries, newest first.
func (s *Store) BackupHistory() ([]string, error) {
	var history []string
	if _, err := s.getJSON(KeyBackupHistory, &history); err != nil {
		return nil, err
	}
	return history, nil
}

func (s *Store) SetBackupHistory(history []string) error {
	if history == nil {
		history = []string{}
	}
	return s.setJSON(KeyBackupHistory, history)
}

// APICallHistory returns the text-generation call times in unix milliseconds.
func (s *Store) APICallHistory() ([]int64, error) {
	var calls []int64
	if _, err := s.getJSON(KeyAPICallHistory, &calls); err != nil {
		return nil, err
	}
	return calls, nil
}

func (s *Store) SetAPICallHistory(calls []int64) error {
	if calls == nil {
		calls = []int64{}
	}
	return s.setJSON(KeyAPICallHistory, calls)
}

// QuotaResetTime returns the end of the current cooldown, zero if none.
func (s *Store) QuotaResetTime() (time.Time, error) {
	return s.getMillis(KeyQuotaResetTime)
}

// SetQuotaResetTime records a cooldown end; a zero time clears it.
func (s *Store) SetQuotaResetTime(t time.Time) error {
	if t.IsZero() {
		return s.Delete(KeyQuotaResetTime)
	}
	return s.Set(KeyQuotaResetTime, strconv.FormatInt(t.UnixMilli(), 10))
}

func (s *Store) LastAPICall() (time.Time, error) {
	return s.getMillis(KeyLastAPICall)
}

func (s *Store) SetLastAPICall(t time.Time) error {
	return s.Set(KeyLastAPICall, strconv.FormatInt(t.UnixMilli(), 10))
}

func (s *Store) getBool(key string, fallback bool) (bool, error) {
	v, ok, err := s.Get(key)
	if err != nil || !ok {
		return fallback, err
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, nil
	}
	return b, nil
}

func (s *Store) getTimestamp(key string) (time.Time, error) {
	v, ok, err := s.Get(key)
	if err != nil || !ok {
		return time.Time{}, err
	}
	t, err := models.ParseTimestamp(v)
	if err != nil {
		return time.Time{}, nil
	}
	return t, nil
}

func (s *Store) getMillis(key string) (time.Time, error) {
	v, ok, err := s.Get(key)
	if err != nil || !ok {
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms), nil
}

// getJSON decodes the value under key into v. A corrupt value is treated as absent.
func (s *Store) getJSON(key string, v any) (bool, error) {
	raw, ok, err := s.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, nil
	}
	return true, nil
}

func (s *Store) setJSON(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.Set(key, string(b))
}
