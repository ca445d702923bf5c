// Package session wires the tracker components shared by the bot and the CLI.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"finance-tracker/internal/backup"
	"finance-tracker/internal/config"
	"finance-tracker/internal/insights"
	"finance-tracker/internal/localstore"
	"finance-tracker/internal/models"
	"finance-tracker/internal/remote"
	"finance-tracker/internal/state"
	"finance-tracker/internal/syncer"
)

// Session owns the in-memory dataset and everything that persists it.
type Session struct {
	Local    *localstore.Store
	Remote   *remote.Client
	State    *state.Store
	Sync     *syncer.Orchestrator
	Backups  *backup.Manager
	Insights *insights.Client
}

// Open builds a session from cfg. Nothing is loaded until Start.
func Open(cfg *config.Config, notifier syncer.Notifier) (*Session, error) {
	if err := cfg.ValidateSession(); err != nil {
		return nil, err
	}

	local, err := localstore.Open(cfg.StateDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open local state: %w", err)
	}

	rs := remote.NewClient(remote.Config{
		BaseURL:          cfg.APIBaseURL,
		ConnectionString: cfg.ConnectionString,
		Database:         cfg.MongoDB,
		Collection:       cfg.MongoCollection,
	})

	st := state.New(models.DefaultDataset(time.Now()))
	if cfg.GeminiAPIKey != "" {
		st.SetAISettings(models.AISettings{GeminiAPIKey: cfg.GeminiAPIKey, EnableAI: true})
	}

	orch, err := syncer.New(st, rs, local, syncer.Options{
		Debounce:      cfg.SyncDebounce,
		PeriodicFloor: cfg.PeriodicSyncFloor,
		Notifier:      notifier,
	})
	if err != nil {
		local.Close()
		return nil, err
	}

	return &Session{
		Local:    local,
		Remote:   rs,
		State:    st,
		Sync:     orch,
		Backups:  backup.NewManager(st, local, cfg.BackupDir),
		Insights: insights.NewClient(insights.NewLimiter(local)),
	}, nil
}

// Start loads the remote copy. On error the session holds the local
// fallback, which must not be pushed over the cloud copy.
func (s *Session) Start(ctx context.Context) error {
	err := s.Sync.Start(ctx)
	if errors.Is(err, syncer.ErrBackendUnavailable) {
		slog.Warn("cloud backend unavailable, working locally", "err", err)
	} else if err != nil {
		slog.Error("failed to load cloud data", "err", err)
	}
	return err
}

// Close pushes any pending change and releases the local store.
func (s *Session) Close(ctx context.Context) error {
	var errs []error
	if err := s.Sync.Flush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush: %w", err))
	}
	s.Sync.Close()
	if err := s.Local.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
