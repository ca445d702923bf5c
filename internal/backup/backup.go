// Package backup writes local snapshot files of the dataset and restores them.
package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"finance-tracker/internal/models"
	"finance-tracker/internal/state"
)

const (
	// Version is written into every snapshot file.
	Version = "2.0"

	historyLimit   = 10
	fileTimeLayout = "2006-01-02-15-04-05"
	historyLayout  = "2006-01-02 15-04-05"
)

var ErrInvalidBackupFormat = errors.New("invalid backup file format")

// Markers is the local bookkeeping the manager reads and writes.
type Markers interface {
	AutoBackupEnabled() (bool, error)
	SetAutoBackupEnabled(enabled bool) error
	LastBackupDate() (string, error)
	SetLastBackupDate(date string) error
	BackupHistory() ([]string, error)
	SetBackupHistory(history []string) error
}

// Artifact is a written file and its contents.
type Artifact struct {
	Name  string
	Path  string
	Bytes []byte
}

// Statistics summarise a snapshot for display without loading it.
type Statistics struct {
	TotalExpenses         int     `json:"totalExpenses"`
	TotalInvestments      int     `json:"totalInvestments"`
	TotalBudgetCategories int     `json:"totalBudgetCategories"`
	TotalCustomGoals      int     `json:"totalCustomGoals"`
	PortfolioValue        float64 `json:"portfolioValue"`
	CurrentMonthExpenses  float64 `json:"currentMonthExpenses"` // spend, not a count
	SavingsRate           string  `json:"savingsRate"`
}

// Payload is the dataset plus the AI settings, as stored in snapshot files.
type Payload struct {
	models.Dataset
	AISettings models.AISettings `json:"aiSettings"`
}

type Snapshot struct {
	Timestamp   string     `json:"timestamp"`
	Version     string     `json:"version"`
	IsAutomatic bool       `json:"isAutomatic"`
	Data        Payload    `json:"data"`
	Statistics  Statistics `json:"statistics"`
}

// Export is the portable (bare) form written by ExportSnapshot.
type Export struct {
	Payload
	ExportDate string `json:"exportDate"`
}

// Manager creates snapshot and export files and applies restores and imports.
type Manager struct {
	state   *state.Store
	markers Markers
	dir     string
	now     func() time.Time
}

func NewManager(st *state.Store, markers Markers, dir string) *Manager {
	return &Manager{state: st, markers: markers, dir: dir, now: time.Now}
}

func (m *Manager) Dir() string { return m.dir }

// Statistics computes the snapshot statistics of the current dataset.
func (m *Manager) Statistics() Statistics {
	return statisticsFor(m.state.Snapshot(), m.now())
}

func statisticsFor(d models.Dataset, now time.Time) Statistics {
	sum := models.Summarize(d, now)
	return Statistics{
		TotalExpenses:         len(d.Expenses),
		TotalInvestments:      len(d.Investments),
		TotalBudgetCategories: len(d.Budgets),
		TotalCustomGoals:      len(d.CustomGoals),
		PortfolioValue:        sum.PortfolioValue.InexactFloat64(),
		CurrentMonthExpenses:  sum.ThisMonthSpent.InexactFloat64(),
		SavingsRate:           sum.SavingsRate,
	}
}

// CreateSnapshot writes a snapshot file with the credential redacted and
// records it in the backup history.
func (m *Manager) CreateSnapshot(isAutomatic bool) (*Artifact, error) {
	now := m.now().UTC()
	data := m.state.Snapshot()

	snap := Snapshot{
		Timestamp:   models.Timestamp(now),
		Version:     Version,
		IsAutomatic: isAutomatic,
		Data: Payload{
			Dataset:    data,
			AISettings: m.state.AISettings().Redacted(models.RedactedSecret),
		},
		Statistics: statisticsFor(data, now),
	}

	name := fmt.Sprintf("tracker-backup-%s.json", now.Format(fileTimeLayout))
	art, err := m.write(name, snap)
	if err != nil {
		return nil, err
	}

	kind := "Manual"
	if isAutomatic {
		kind = "Auto"
	}
	if err := m.recordHistory(fmt.Sprintf("%s (%s)", now.Format(historyLayout), kind)); err != nil {
		return art, err
	}
	if err := m.markers.SetLastBackupDate(now.Format(models.DateLayout)); err != nil {
		return art, err
	}
	return art, nil
}

func (m *Manager) recordHistory(entry string) error {
	history, err := m.markers.BackupHistory()
	if err != nil {
		return err
	}
	history = append([]string{entry}, history...)
	if len(history) > historyLimit {
		history = history[:historyLimit]
	}
	return m.markers.SetBackupHistory(history)
}

// MaybeCreateDailySnapshot creates an automatic snapshot when auto-backup is
// on, there is something to back up, and none was made today (UTC). It
// returns nil when it skipped.
func (m *Manager) MaybeCreateDailySnapshot() (*Artifact, error) {
	enabled, err := m.markers.AutoBackupEnabled()
	if err != nil || !enabled {
		return nil, err
	}
	if !m.state.Snapshot().HasRecords() {
		return nil, nil
	}
	last, err := m.markers.LastBackupDate()
	if err != nil {
		return nil, err
	}
	if last == m.now().UTC().Format(models.DateLayout) {
		return nil, nil
	}
	return m.CreateSnapshot(true)
}

// ExportSnapshot writes a portable export with an empty credential. It is not
// recorded in the backup history.
func (m *Manager) ExportSnapshot() (*Artifact, error) {
	now := m.now().UTC()
	ai := m.state.AISettings().Redacted("")
	exp := Export{
		Payload:    Payload{Dataset: m.state.Snapshot(), AISettings: ai},
		ExportDate: models.Timestamp(now),
	}
	return m.write(fmt.Sprintf("tracker-export-%s.json", now.Format(models.DateLayout)), exp)
}

func (m *Manager) write(name string, v any) (*Artifact, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", name, err)
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup dir: %w", err)
	}
	path := filepath.Join(m.dir, name)
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", name, err)
	}
	return &Artifact{Name: name, Path: path, Bytes: b}, nil
}

func (m *Manager) SetAutoBackupEnabled(enabled bool) error {
	return m.markers.SetAutoBackupEnabled(enabled)
}

func (m *Manager) AutoBackupEnabled() (bool, error) {
	return m.markers.AutoBackupEnabled()
}

// History lists recent snapshot entries, newest first.
func (m *Manager) History() ([]string, error) {
	return m.markers.BackupHistory()
}

func (m *Manager) LastBackupDate() (string, error) {
	return m.markers.LastBackupDate()
}
