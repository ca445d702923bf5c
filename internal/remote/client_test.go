package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finance-tracker/internal/models"
)

type fakeProxy struct {
	healthy  atomic.Bool
	posts    atomic.Int32
	lastBody map[string]any
	status   int
	reply    map[string]any
}

func (f *fakeProxy) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if !f.healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/api/mongo", func(w http.ResponseWriter, r *http.Request) {
		f.posts.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&f.lastBody))
		w.Header().Set("Content-Type", "application/json")
		if f.status != 0 {
			w.WriteHeader(f.status)
		}
		json.NewEncoder(w).Encode(f.reply)
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeProxy) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	c := NewClient(Config{
		BaseURL:          srv.URL + "/api",
		ConnectionString: "mongodb://example",
		Database:         "tracker",
		Collection:       "userdata",
		Timeout:          2 * time.Second,
	})
	c.now = func() time.Time { return time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC) }
	return c
}

func TestClient_CheckHealth(t *testing.T) {
	f := &fakeProxy{}
	c := newTestClient(t, f)

	assert.False(t, c.CheckHealth(context.Background()))
	f.healthy.Store(true)
	assert.True(t, c.CheckHealth(context.Background()))

	unreachable := NewClient(Config{BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond})
	assert.False(t, unreachable.CheckHealth(context.Background()))
}

func TestClient_UnhealthySkipsRequest(t *testing.T) {
	f := &fakeProxy{}
	c := newTestClient(t, f)

	err := c.Upsert(context.Background(), "user_1", &models.Document{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRemoteUnavailable))

	_, err = c.FindOne(context.Background(), "user_1")
	assert.True(t, errors.Is(err, ErrRemoteUnavailable))
	assert.Equal(t, int32(0), f.posts.Load())
}

func TestClient_UpsertStampsDocument(t *testing.T) {
	f := &fakeProxy{reply: map[string]any{"success": true, "data": map[string]any{"acknowledged": true}}}
	f.healthy.Store(true)
	c := newTestClient(t, f)

	doc := models.NewDocument(models.DefaultDataset(time.Now()))
	require.NoError(t, c.Upsert(context.Background(), "user_1", doc))

	assert.Equal(t, "upsert", f.lastBody["action"])
	assert.Equal(t, "tracker", f.lastBody["database"])
	assert.Equal(t, map[string]any{"userId": "user_1"}, f.lastBody["filter"])
	data := f.lastBody["data"].(map[string]any)
	assert.Equal(t, "user_1", data["userId"])
	assert.Equal(t, "2024-03-05T10:00:00.000Z", data["lastUpdated"])
	assert.Equal(t, []any{}, data["expenses"])
	assert.Empty(t, doc.UserID, "caller's document is not modified")
}

func TestClient_FindOne(t *testing.T) {
	f := &fakeProxy{reply: map[string]any{"success": true, "data": nil}}
	f.healthy.Store(true)
	c := newTestClient(t, f)

	doc, err := c.FindOne(context.Background(), "user_1")
	require.NoError(t, err)
	assert.Nil(t, doc)

	f.reply = map[string]any{"success": true, "data": map[string]any{
		"_id":      "abc",
		"userId":   "user_1",
		"expenses": []any{map[string]any{"id": 1, "date": "2024-03-01", "category": "Food", "amount": 120.5}},
		"goals":    nil,
	}}
	doc, err = c.FindOne(context.Background(), "user_1")
	require.NoError(t, err)
	require.NotNil(t, doc)
	require.Len(t, doc.Expenses, 1)
	assert.Equal(t, 120.5, doc.Expenses[0].Amount)
	assert.Nil(t, doc.Goals)
	assert.Nil(t, doc.Investments)
}

func TestClient_OperationFailed(t *testing.T) {
	f := &fakeProxy{status: http.StatusInternalServerError, reply: map[string]any{"error": "Database operation failed"}}
	f.healthy.Store(true)
	c := newTestClient(t, f)

	err := c.DeleteOne(context.Background(), "user_1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRemoteOperationFailed))

	var opErr *OperationError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "deleteOne", opErr.Op)
	assert.Equal(t, http.StatusInternalServerError, opErr.StatusCode)
	assert.Equal(t, "Database operation failed", opErr.Message)
}
