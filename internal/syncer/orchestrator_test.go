package syncer

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"finance-tracker/internal/localstore"
	"finance-tracker/internal/models"
	"finance-tracker/internal/remote"
	"finance-tracker/internal/state"
)

type recordingNotifier struct {
	mu    sync.Mutex
	infos []string
	errs  []string
}

func (n *recordingNotifier) Info(msg string) {
	n.mu.Lock()
	n.infos = append(n.infos, msg)
	n.mu.Unlock()
}

func (n *recordingNotifier) Error(msg string) {
	n.mu.Lock()
	n.errs = append(n.errs, msg)
	n.mu.Unlock()
}

type harness struct {
	orch     *Orchestrator
	state    *state.Store
	remote   *remote.MockStore
	markers  *localstore.Store
	notifier *recordingNotifier
}

func newHarness(t *testing.T, initial models.Dataset, debounce time.Duration) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)
	markers, err := localstore.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { markers.Close() })

	h := &harness{
		state:    state.New(initial),
		remote:   remote.NewMockStore(ctrl),
		markers:  markers,
		notifier: &recordingNotifier{},
	}
	h.orch, err = New(h.state, h.remote, markers, Options{
		Debounce:       debounce,
		RequestTimeout: time.Second,
		Notifier:       h.notifier,
	})
	require.NoError(t, err)
	t.Cleanup(h.orch.Close)
	return h
}

func addExpense(t *testing.T, st *state.Store, amount float64) {
	t.Helper()
	_, err := st.AddExpense(models.Expense{Category: "Food", Amount: amount})
	require.NoError(t, err)
}

func TestMergeDocument_PresenceAware(t *testing.T) {
	current := models.DefaultDataset(time.Now())
	current.Goals = models.Goals{MonthlySavingsTarget: 1, TotalSavingsGoal: 2, CurrentStreak: 3}
	current.Expenses = []models.Expense{{ID: 1, Category: "Old", Amount: 1}}
	current.UserID = "user_local"

	incoming := &models.Document{
		Expenses:    []models.Expense{{ID: 2, Category: "New", Amount: 2}},
		Budgets:     map[string]models.Budget{},
		LastUpdated: "2024-03-05T10:00:00.000Z",
		UserID:      "user_remote",
	}

	merged, applied := MergeDocument(current, incoming)

	assert.Equal(t, []models.Field{models.FieldExpenses, models.FieldBudgets}, applied)
	assert.Equal(t, incoming.Expenses, merged.Expenses)
	assert.Equal(t, current.Goals, merged.Goals, "absent fields are left untouched")
	assert.Equal(t, current.UserProfile, merged.UserProfile)
	assert.Equal(t, "2024-03-05T10:00:00.000Z", merged.LastUpdated)
	assert.Equal(t, "user_local", merged.UserID)

	incoming.Expenses[0].Amount = 99
	assert.Equal(t, 2.0, merged.Expenses[0].Amount, "merged data does not alias the document")

	same, applied := MergeDocument(current, nil)
	assert.Nil(t, applied)
	assert.Equal(t, current.Expenses, same.Expenses)
}

func TestStart_BackendUnavailable(t *testing.T) {
	h := newHarness(t, models.Dataset{}, time.Second)
	h.remote.EXPECT().CheckHealth(gomock.Any()).Return(false)

	err := h.orch.Start(context.Background())

	require.ErrorIs(t, err, ErrBackendUnavailable)
	assert.Equal(t, StatusError, h.orch.Status())
	snap := h.state.Snapshot()
	assert.Equal(t, models.DefaultGoals(), snap.Goals)
	assert.Equal(t, models.DefaultEmergencyFund(), snap.EmergencyFund)
	assert.Equal(t, 35000.0, snap.UserProfile.MonthlyIncome)
	assert.Empty(t, snap.Expenses)
	assert.Empty(t, snap.Budgets)
	assert.False(t, h.orch.Pending())
}

func TestStart_LoadError(t *testing.T) {
	h := newHarness(t, models.Dataset{}, time.Second)
	h.remote.EXPECT().CheckHealth(gomock.Any()).Return(true)
	h.remote.EXPECT().FindOne(gomock.Any(), h.orch.UserID()).
		Return(nil, &remote.OperationError{Op: "findOne", StatusCode: 500})

	err := h.orch.Start(context.Background())

	require.ErrorIs(t, err, remote.ErrRemoteOperationFailed)
	assert.Equal(t, StatusError, h.orch.Status())
	assert.Equal(t, models.DefaultGoals(), h.state.Snapshot().Goals)
}

func TestStart_MergesRemoteDocument(t *testing.T) {
	initial := models.DefaultDataset(time.Now())
	initial.Goals = models.Goals{MonthlySavingsTarget: 1}
	h := newHarness(t, initial, 20*time.Millisecond)

	today := time.Now().Format(models.DateLayout)
	doc := &models.Document{
		Expenses: []models.Expense{{ID: 1, Date: today, Category: "Food", Amount: 250}},
		Budgets:  map[string]models.Budget{"Food": {Planned: 1000, Actual: 0}},
	}
	h.remote.EXPECT().CheckHealth(gomock.Any()).Return(true)
	h.remote.EXPECT().FindOne(gomock.Any(), h.orch.UserID()).Return(doc, nil)

	require.NoError(t, h.orch.Start(context.Background()))

	snap := h.state.Snapshot()
	assert.Equal(t, StatusSuccess, h.orch.Status())
	assert.Len(t, snap.Expenses, 1)
	assert.Equal(t, 250.0, snap.Budgets["Food"].Actual)
	assert.Equal(t, models.Goals{MonthlySavingsTarget: 1}, snap.Goals)

	loaded, err := h.markers.LastLoad()
	require.NoError(t, err)
	assert.False(t, loaded.IsZero())

	// The load itself must not echo back as an auto-sync.
	time.Sleep(60 * time.Millisecond)
	assert.False(t, h.orch.Pending())
}

func TestStart_FirstRunSeedsAndPushesDefaults(t *testing.T) {
	h := newHarness(t, models.Dataset{}, time.Second)
	h.remote.EXPECT().CheckHealth(gomock.Any()).Return(true)
	h.remote.EXPECT().FindOne(gomock.Any(), h.orch.UserID()).Return(nil, nil)

	var pushed *models.Document
	h.remote.EXPECT().Upsert(gomock.Any(), h.orch.UserID(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, doc *models.Document) error {
			pushed = doc
			return nil
		})

	require.NoError(t, h.orch.Start(context.Background()))

	require.NotNil(t, pushed)
	assert.Equal(t, h.orch.UserID(), pushed.UserID)
	require.NotNil(t, pushed.Goals)
	assert.Equal(t, models.DefaultGoals(), *pushed.Goals)
	assert.Equal(t, []models.Expense{}, pushed.Expenses)
	assert.Equal(t, StatusSuccess, h.orch.Status())
}

func TestStart_FirstRunPushFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, models.Dataset{}, time.Second)
	h.remote.EXPECT().CheckHealth(gomock.Any()).Return(true)
	h.remote.EXPECT().FindOne(gomock.Any(), gomock.Any()).Return(nil, nil)
	h.remote.EXPECT().Upsert(gomock.Any(), gomock.Any(), gomock.Any()).Return(remote.ErrRemoteUnavailable)

	require.NoError(t, h.orch.Start(context.Background()))
	assert.Equal(t, StatusSuccess, h.orch.Status())
	assert.Equal(t, models.DefaultGoals(), h.state.Snapshot().Goals)
}

func TestStart_RunsOnce(t *testing.T) {
	h := newHarness(t, models.Dataset{}, time.Second)
	h.remote.EXPECT().CheckHealth(gomock.Any()).Return(true).Times(1)
	h.remote.EXPECT().FindOne(gomock.Any(), gomock.Any()).Return(nil, nil).Times(1)
	h.remote.EXPECT().Upsert(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(1)

	require.NoError(t, h.orch.Start(context.Background()))
	require.NoError(t, h.state.SetGoals(models.Goals{MonthlySavingsTarget: 7}))

	err := h.orch.Start(context.Background())
	require.ErrorIs(t, err, ErrAlreadyStarted)
	assert.Equal(t, models.Goals{MonthlySavingsTarget: 7}, h.state.Snapshot().Goals, "no second seeding")
	assert.Equal(t, StatusSuccess, h.orch.Status())
}

func TestAutoSync_CoalescesBurst(t *testing.T) {
	h := newHarness(t, models.DefaultDataset(time.Now()), 50*time.Millisecond)

	pushed := make(chan *models.Document, 4)
	h.remote.EXPECT().Upsert(gomock.Any(), h.orch.UserID(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, doc *models.Document) error {
			pushed <- doc
			return nil
		}).Times(1)

	addExpense(t, h.state, 1)
	addExpense(t, h.state, 2)
	addExpense(t, h.state, 3)
	assert.True(t, h.orch.Pending())

	select {
	case doc := <-pushed:
		assert.Len(t, doc.Expenses, 3)
	case <-time.After(2 * time.Second):
		t.Fatal("debounced push never happened")
	}

	time.Sleep(150 * time.Millisecond)
	assert.False(t, h.orch.Pending())

	last, err := h.markers.LastSync()
	require.NoError(t, err)
	assert.False(t, last.IsZero())
}

func TestAutoSync_RequiresExpenses(t *testing.T) {
	h := newHarness(t, models.DefaultDataset(time.Now()), 20*time.Millisecond)

	require.NoError(t, h.state.SetGoals(models.Goals{MonthlySavingsTarget: 10}))
	assert.False(t, h.orch.Pending())

	time.Sleep(60 * time.Millisecond)
}

func TestAutoSync_IgnoresUnwatchedFields(t *testing.T) {
	h := newHarness(t, models.DefaultDataset(time.Now()), 20*time.Millisecond)
	h.state.Apply(func(d *models.Dataset, _ *models.AISettings) []models.Field {
		d.Expenses = []models.Expense{{ID: 1, Category: "Food", Amount: 1}}
		return nil
	})

	h.state.SetAISettings(models.AISettings{EnableAI: true})
	assert.False(t, h.orch.Pending())
}

func TestAutoSync_DisableCancelsPending(t *testing.T) {
	h := newHarness(t, models.DefaultDataset(time.Now()), 30*time.Millisecond)

	addExpense(t, h.state, 1)
	require.True(t, h.orch.Pending())

	require.NoError(t, h.orch.SetSyncEnabled(false))
	assert.False(t, h.orch.Pending())

	addExpense(t, h.state, 2)
	assert.False(t, h.orch.Pending())
	time.Sleep(90 * time.Millisecond)

	enabled, err := h.markers.SyncEnabled()
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestClose_CancelsPending(t *testing.T) {
	h := newHarness(t, models.DefaultDataset(time.Now()), 30*time.Millisecond)

	addExpense(t, h.state, 1)
	h.orch.Close()
	assert.False(t, h.orch.Pending())

	addExpense(t, h.state, 2)
	assert.False(t, h.orch.Pending())
	time.Sleep(90 * time.Millisecond)
}

func TestFlush_PushesPendingImmediately(t *testing.T) {
	h := newHarness(t, models.DefaultDataset(time.Now()), time.Hour)
	h.remote.EXPECT().Upsert(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(1)

	require.NoError(t, h.orch.Flush(context.Background()), "nothing pending is a no-op")

	addExpense(t, h.state, 1)
	require.NoError(t, h.orch.Flush(context.Background()))
	assert.False(t, h.orch.Pending())
}

func TestPeriodicSync_RespectsFloor(t *testing.T) {
	h := newHarness(t, models.DefaultDataset(time.Now()), time.Hour)
	h.state.Apply(func(d *models.Dataset, _ *models.AISettings) []models.Field {
		d.Expenses = []models.Expense{{ID: 1, Category: "Food", Amount: 1}}
		return nil
	})

	require.NoError(t, h.markers.RecordSync(time.Now().Add(-time.Minute), "success", nil))
	require.NoError(t, h.orch.PeriodicSync(context.Background()))

	h.remote.EXPECT().Upsert(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(1)
	require.NoError(t, h.markers.RecordSync(time.Now().Add(-6*time.Minute), "success", nil))
	require.NoError(t, h.orch.PeriodicSync(context.Background()))
}

func TestPeriodicSync_GuardedByExpenses(t *testing.T) {
	h := newHarness(t, models.DefaultDataset(time.Now()), time.Hour)
	require.NoError(t, h.orch.PeriodicSync(context.Background()))
}

func TestSyncNow(t *testing.T) {
	h := newHarness(t, models.DefaultDataset(time.Now()), time.Hour)
	boom := &remote.OperationError{Op: "upsert", StatusCode: 500, Message: "Database operation failed"}
	gomock.InOrder(
		h.remote.EXPECT().Upsert(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil),
		h.remote.EXPECT().Upsert(gomock.Any(), gomock.Any(), gomock.Any()).Return(boom),
	)

	require.NoError(t, h.orch.SyncNow(context.Background()))
	assert.Equal(t, StatusSuccess, h.orch.Status())

	err := h.orch.SyncNow(context.Background())
	require.ErrorIs(t, err, remote.ErrRemoteOperationFailed)
	assert.Equal(t, StatusError, h.orch.Status())
	assert.Equal(t, boom, h.orch.LastError())

	rec, err := h.markers.SyncStatus()
	require.NoError(t, err)
	assert.Equal(t, "error", rec.Status)
	assert.Equal(t, []string{"Data synced to cloud"}, h.notifier.infos)
	assert.Len(t, h.notifier.errs, 1)

	require.NoError(t, h.orch.SetSyncEnabled(false))
	assert.ErrorIs(t, h.orch.SyncNow(context.Background()), ErrSyncDisabled)
}

func TestLoadNow(t *testing.T) {
	h := newHarness(t, models.DefaultDataset(time.Now()), 20*time.Millisecond)
	gomock.InOrder(
		h.remote.EXPECT().FindOne(gomock.Any(), gomock.Any()).Return(nil, nil),
		h.remote.EXPECT().FindOne(gomock.Any(), gomock.Any()).Return(&models.Document{
			Expenses: []models.Expense{{ID: 7, Date: "2020-01-01", Category: "Rent", Amount: 9000}},
		}, nil),
	)

	require.NoError(t, h.orch.LoadNow(context.Background()))
	assert.Equal(t, StatusIdle, h.orch.Status())
	assert.Equal(t, []string{"No cloud data found"}, h.notifier.infos)

	require.NoError(t, h.orch.LoadNow(context.Background()))
	assert.Equal(t, StatusSuccess, h.orch.Status())
	assert.Len(t, h.state.Snapshot().Expenses, 1)
	assert.False(t, h.orch.Pending(), "loaded data is not pushed back")
}

func TestClearRemote(t *testing.T) {
	h := newHarness(t, models.DefaultDataset(time.Now()), time.Hour)
	require.NoError(t, h.markers.RecordSync(time.Now(), "success", nil))

	err := h.orch.ClearRemote(context.Background(), func(string) bool { return false })
	require.ErrorIs(t, err, ErrCancelled)
	require.ErrorIs(t, h.orch.ClearRemote(context.Background(), nil), ErrCancelled)

	h.remote.EXPECT().DeleteOne(gomock.Any(), h.orch.UserID()).Return(nil)
	require.NoError(t, h.orch.ClearRemote(context.Background(), func(string) bool { return true }))

	assert.Equal(t, StatusSuccess, h.orch.Status())
	last, err := h.markers.LastSync()
	require.NoError(t, err)
	assert.True(t, last.IsZero())
	rec, err := h.markers.SyncStatus()
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestClearRemote_Failure(t *testing.T) {
	h := newHarness(t, models.DefaultDataset(time.Now()), time.Hour)
	h.remote.EXPECT().DeleteOne(gomock.Any(), gomock.Any()).Return(errors.New("network down"))

	err := h.orch.ClearRemote(context.Background(), func(string) bool { return true })
	require.Error(t, err)
	assert.Equal(t, StatusError, h.orch.Status())
}
