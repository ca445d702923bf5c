// Package syncer keeps the in-memory dataset and the remote document in step:
// startup load, debounced auto-sync, the periodic safety sync and the manual
// sync, load and clear actions.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"finance-tracker/internal/models"
	"finance-tracker/internal/remote"
	"finance-tracker/internal/state"
)

// Status is the user-visible sync state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

var (
	ErrBackendUnavailable = errors.New("cloud sync backend unavailable")
	ErrSyncDisabled       = errors.New("cloud sync is disabled")
	ErrCancelled          = errors.New("operation cancelled")
	ErrAlreadyStarted     = errors.New("startup load already ran")
)

// Markers is the local bookkeeping the orchestrator reads and writes.
type Markers interface {
	UserID() (string, error)
	LastSync() (time.Time, error)
	RecordSync(at time.Time, status string, err error) error
	RecordLoad(at time.Time, status string, err error) error
	ClearSyncMarkers() error
	SyncEnabled() (bool, error)
	SetSyncEnabled(enabled bool) error
}

// Notifier surfaces outcomes of user-initiated actions.
type Notifier interface {
	Info(msg string)
	Error(msg string)
}

type logNotifier struct{}

func (logNotifier) Info(msg string)  { slog.Info(msg) }
func (logNotifier) Error(msg string) { slog.Error(msg) }

// Options tune the orchestrator. Zero values take the defaults.
type Options struct {
	Debounce       time.Duration // quiet period before an auto-sync push, default 2s
	PeriodicFloor  time.Duration // minimum gap between periodic pushes, default 5m
	RequestTimeout time.Duration // per remote call, default 30s
	Notifier       Notifier
}

// Orchestrator drives every exchange between the state store and the remote store.
type Orchestrator struct {
	state   *state.Store
	remote  remote.Store
	markers Markers
	opts    Options
	now     func() time.Time
	userID  string

	mu      sync.Mutex
	status  Status
	lastErr error
	loading bool
	enabled bool
	closed  bool
	started bool
	timer   *time.Timer
	gen     uint64
}

// New wires an orchestrator to st. The user id is resolved once here.
func New(st *state.Store, rs remote.Store, markers Markers, opts Options) (*Orchestrator, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = 2 * time.Second
	}
	if opts.PeriodicFloor <= 0 {
		opts.PeriodicFloor = 5 * time.Minute
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.Notifier == nil {
		opts.Notifier = logNotifier{}
	}

	userID, err := markers.UserID()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user id: %w", err)
	}
	enabled, err := markers.SyncEnabled()
	if err != nil {
		return nil, fmt.Errorf("failed to read sync preference: %w", err)
	}

	o := &Orchestrator{
		state:   st,
		remote:  rs,
		markers: markers,
		opts:    opts,
		now:     time.Now,
		userID:  userID,
		status:  StatusIdle,
		enabled: enabled,
	}
	st.Subscribe(o.onChange)
	return o, nil
}

func (o *Orchestrator) UserID() string { return o.userID }

func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// LastError is the error behind the current StatusError, if any.
func (o *Orchestrator) LastError() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

func (o *Orchestrator) SyncEnabled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.enabled
}

// Pending reports whether a debounced push is scheduled.
func (o *Orchestrator) Pending() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.timer != nil
}

func (o *Orchestrator) setStatus(s Status, err error) {
	o.mu.Lock()
	o.status = s
	o.lastErr = err
	o.mu.Unlock()
}

func (o *Orchestrator) setLoading(v bool) {
	o.mu.Lock()
	o.loading = v
	o.mu.Unlock()
}

// Start runs the startup load once. On failure the dataset gets the partial
// fallback (emergency fund, goals and profile defaults) and the error is returned.
// A second call returns ErrAlreadyStarted and touches nothing.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return ErrAlreadyStarted
	}
	o.started = true
	o.mu.Unlock()

	o.setLoading(true)
	defer o.setLoading(false)
	o.setStatus(StatusSyncing, nil)

	ctx, cancel := context.WithTimeout(ctx, o.opts.RequestTimeout)
	defer cancel()

	if !o.remote.CheckHealth(ctx) {
		o.fallback()
		o.setStatus(StatusError, ErrBackendUnavailable)
		return ErrBackendUnavailable
	}

	doc, err := o.remote.FindOne(ctx, o.userID)
	if err != nil {
		o.fallback()
		o.setStatus(StatusError, err)
		return fmt.Errorf("failed to load remote data: %w", err)
	}

	if doc != nil {
		fields := o.applyDocument(doc)
		o.recordLoad(StatusSuccess, nil)
		o.setStatus(StatusSuccess, nil)
		slog.Info("loaded remote data", "userId", o.userID, "fields", len(fields))
		return nil
	}

	initial := models.DefaultDataset(o.now())
	initial.UserID = o.userID
	o.state.Replace(initial)
	if err := o.push(ctx); err != nil {
		slog.Warn("failed to save initial data", "userId", o.userID, "err", err)
	} else {
		slog.Info("initialized remote data", "userId", o.userID)
	}
	o.setStatus(StatusSuccess, nil)
	return nil
}

func (o *Orchestrator) fallback() {
	now := o.now()
	o.state.Apply(func(d *models.Dataset, _ *models.AISettings) []models.Field {
		return partialFallback(d, now)
	})
}

func (o *Orchestrator) applyDocument(doc *models.Document) []models.Field {
	now := o.now()
	return o.state.Apply(func(d *models.Dataset, _ *models.AISettings) []models.Field {
		merged, fields := MergeDocument(*d, doc)
		merged.Budgets = models.RecomputeBudgetActuals(merged.Expenses, merged.Budgets, now)
		*d = merged
		return fields
	})
}

// onChange is the state listener; watched changes (re)schedule the debounced push.
func (o *Orchestrator) onChange(changed []models.Field) {
	for _, f := range changed {
		if f.Watched() {
			o.schedule()
			return
		}
	}
}

// guardsHold reports whether an automatic push may run now.
func (o *Orchestrator) guardsHold() bool {
	o.mu.Lock()
	ok := !o.loading && o.enabled && !o.closed
	o.mu.Unlock()
	return ok && len(o.state.Snapshot().Expenses) > 0
}

func (o *Orchestrator) schedule() {
	allowed := o.guardsHold()

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.gen++
	if !allowed {
		return
	}
	gen := o.gen
	o.timer = time.AfterFunc(o.opts.Debounce, func() { o.fire(gen) })
}

func (o *Orchestrator) fire(gen uint64) {
	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return
	}
	o.timer = nil
	o.mu.Unlock()

	if !o.guardsHold() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.opts.RequestTimeout)
	defer cancel()
	if err := o.push(ctx); err != nil {
		slog.Debug("auto-sync failed", "err", err)
	}
}

// push upserts the current snapshot and records the outcome locally.
func (o *Orchestrator) push(ctx context.Context) error {
	snap := o.state.Snapshot()
	snap.UserID = o.userID
	err := o.remote.Upsert(ctx, o.userID, models.NewDocument(snap))
	if err != nil {
		o.recordSync(StatusError, err)
		return err
	}
	o.recordSync(StatusSuccess, nil)
	return nil
}

func (o *Orchestrator) recordSync(s Status, err error) {
	if rerr := o.markers.RecordSync(o.now(), string(s), err); rerr != nil {
		slog.Warn("failed to record sync marker", "err", rerr)
	}
}

func (o *Orchestrator) recordLoad(s Status, err error) {
	if rerr := o.markers.RecordLoad(o.now(), string(s), err); rerr != nil {
		slog.Warn("failed to record load marker", "err", rerr)
	}
}

// PeriodicSync pushes when the auto-sync guards hold and the floor has elapsed
// since the last successful sync. Otherwise it does nothing.
func (o *Orchestrator) PeriodicSync(ctx context.Context) error {
	if !o.guardsHold() {
		return nil
	}
	last, err := o.markers.LastSync()
	if err != nil {
		return err
	}
	if !last.IsZero() && o.now().Sub(last) < o.opts.PeriodicFloor {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, o.opts.RequestTimeout)
	defer cancel()
	return o.push(ctx)
}

// Flush pushes a pending debounced write immediately.
func (o *Orchestrator) Flush(ctx context.Context) error {
	o.mu.Lock()
	pending := o.timer != nil
	if pending {
		o.timer.Stop()
		o.timer = nil
		o.gen++
	}
	o.mu.Unlock()

	if !pending || !o.guardsHold() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, o.opts.RequestTimeout)
	defer cancel()
	return o.push(ctx)
}

// SyncNow pushes the dataset on user request.
func (o *Orchestrator) SyncNow(ctx context.Context) error {
	if !o.SyncEnabled() {
		o.opts.Notifier.Error("Cloud sync is disabled")
		return ErrSyncDisabled
	}
	o.setStatus(StatusSyncing, nil)

	ctx, cancel := context.WithTimeout(ctx, o.opts.RequestTimeout)
	defer cancel()
	if err := o.push(ctx); err != nil {
		o.setStatus(StatusError, err)
		o.opts.Notifier.Error("Sync failed: " + err.Error())
		return err
	}
	o.setStatus(StatusSuccess, nil)
	o.opts.Notifier.Info("Data synced to cloud")
	return nil
}

// LoadNow replaces present fields with the remote copy on user request.
func (o *Orchestrator) LoadNow(ctx context.Context) error {
	if !o.SyncEnabled() {
		o.opts.Notifier.Error("Cloud sync is disabled")
		return ErrSyncDisabled
	}
	o.setStatus(StatusSyncing, nil)

	ctx, cancel := context.WithTimeout(ctx, o.opts.RequestTimeout)
	defer cancel()
	doc, err := o.remote.FindOne(ctx, o.userID)
	if err != nil {
		o.recordLoad(StatusError, err)
		o.setStatus(StatusError, err)
		o.opts.Notifier.Error("Load failed: " + err.Error())
		return err
	}
	if doc == nil {
		o.setStatus(StatusIdle, nil)
		o.opts.Notifier.Info("No cloud data found")
		return nil
	}

	o.setLoading(true)
	o.applyDocument(doc)
	o.setLoading(false)

	o.recordLoad(StatusSuccess, nil)
	o.setStatus(StatusSuccess, nil)
	o.opts.Notifier.Info("Data loaded from cloud")
	return nil
}

// ClearRemote deletes the remote document after confirm approves.
func (o *Orchestrator) ClearRemote(ctx context.Context, confirm func(prompt string) bool) error {
	if confirm == nil || !confirm("Delete all cloud data for this user? This cannot be undone.") {
		return ErrCancelled
	}
	o.setStatus(StatusSyncing, nil)

	ctx, cancel := context.WithTimeout(ctx, o.opts.RequestTimeout)
	defer cancel()
	if err := o.remote.DeleteOne(ctx, o.userID); err != nil {
		o.setStatus(StatusError, err)
		o.opts.Notifier.Error("Clear failed: " + err.Error())
		return err
	}
	if err := o.markers.ClearSyncMarkers(); err != nil {
		slog.Warn("failed to clear sync markers", "err", err)
	}
	o.setStatus(StatusSuccess, nil)
	o.opts.Notifier.Info("Cloud data cleared")
	return nil
}

// SetSyncEnabled persists the preference. Disabling cancels a pending push.
func (o *Orchestrator) SetSyncEnabled(enabled bool) error {
	if err := o.markers.SetSyncEnabled(enabled); err != nil {
		return err
	}
	o.mu.Lock()
	o.enabled = enabled
	if !enabled && o.timer != nil {
		o.timer.Stop()
		o.timer = nil
		o.gen++
	}
	o.mu.Unlock()
	return nil
}

// Close cancels any pending push. Later mutations schedule nothing.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.gen++
}
