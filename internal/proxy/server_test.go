package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"finance-tracker/internal/database"
	"finance-tracker/internal/models"
	"finance-tracker/internal/remote"
)

func newTestServer(t *testing.T, store database.DocumentStore, defaults Defaults) *httptest.Server {
	t.Helper()
	s := New(store, defaults)
	s.now = func() time.Time { return time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC) }
	srv := httptest.NewServer(s.Handler(nil))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t, database.NewMemoryStore(), Defaults{})

	for _, path := range []string{"/health", "/api/health"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		var out map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "ok", out["status"])
		assert.Equal(t, "2024-03-05T10:00:00.000Z", out["timestamp"])
	}
}

type downStore struct{ database.MemoryStore }

func (*downStore) Ping(context.Context) error { return errors.New("no route to host") }

func TestHandleHealth_StoreDown(t *testing.T) {
	srv := newTestServer(t, &downStore{}, Defaults{})

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHandleMongo_Methods(t *testing.T) {
	srv := newTestServer(t, database.NewMemoryStore(), Defaults{})

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/mongo", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, _ = http.NewRequest(http.MethodOptions, srv.URL+"/api/mongo", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	resp, err = http.Get(srv.URL + "/api/mongo")
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, "Method not allowed", out["error"])
}

func TestHandleMongo_BadRequests(t *testing.T) {
	srv := newTestServer(t, database.NewMemoryStore(), Defaults{})
	base := map[string]any{"connectionString": "memory://", "database": "tracker", "collection": "userdata"}
	with := func(extra map[string]any) map[string]any {
		out := map[string]any{}
		for k, v := range base {
			out[k] = v
		}
		for k, v := range extra {
			out[k] = v
		}
		return out
	}

	cases := []struct {
		name string
		body map[string]any
	}{
		{"missing target", map[string]any{"action": "findOne", "filter": map[string]any{"userId": "u"}}},
		{"upsert without data", with(map[string]any{"action": "upsert", "filter": map[string]any{"userId": "u"}})},
		{"upsert without filter", with(map[string]any{"action": "upsert", "data": map[string]any{"x": 1}})},
		{"findOne without filter", with(map[string]any{"action": "findOne"})},
		{"deleteOne without filter", with(map[string]any{"action": "deleteOne"})},
		{"unknown action", with(map[string]any{"action": "drop", "filter": map[string]any{}})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, out := postJSON(t, srv.URL+"/mongo", tc.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.NotEmpty(t, out["error"])
			assert.NotEmpty(t, out["timestamp"])
		})
	}

	resp, err := http.Post(srv.URL+"/mongo", "application/json", bytes.NewReader([]byte("{")))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

type failingStore struct{ database.MemoryStore }

func (*failingStore) FindOne(context.Context, database.Target, bson.M) (bson.M, error) {
	return nil, errors.New("connection reset")
}

func TestHandleMongo_StoreFailure(t *testing.T) {
	srv := newTestServer(t, &failingStore{}, Defaults{ConnectionString: "memory://", Database: "tracker", Collection: "userdata"})

	resp, out := postJSON(t, srv.URL+"/mongo", map[string]any{"action": "findOne", "filter": map[string]any{"userId": "u"}})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Database operation failed", out["error"])
}

func TestHandleMongo_UpsertFindDelete(t *testing.T) {
	store := database.NewMemoryStore()
	srv := newTestServer(t, store, Defaults{ConnectionString: "memory://", Database: "tracker", Collection: "userdata"})
	filter := map[string]any{"userId": "user_1"}

	resp, out := postJSON(t, srv.URL+"/api/mongo", map[string]any{
		"action": "upsert",
		"filter": filter,
		"data":   map[string]any{"userId": "user_1", "expenses": []any{map[string]any{"id": 1709632800000, "amount": 120.5}}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "2024-03-05T10:00:00.000Z", out["timestamp"])

	resp, out = postJSON(t, srv.URL+"/api/mongo", map[string]any{"action": "findOne", "filter": filter})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc := out["data"].(map[string]any)
	assert.Equal(t, "user_1", doc["userId"])
	assert.IsType(t, "", doc["_id"])
	expenses := doc["expenses"].([]any)
	require.Len(t, expenses, 1)
	assert.Equal(t, 1709632800000.0, expenses[0].(map[string]any)["id"])

	resp, out = postJSON(t, srv.URL+"/api/mongo", map[string]any{"action": "deleteOne", "filter": filter})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1.0, out["data"].(map[string]any)["deletedCount"])

	resp, out = postJSON(t, srv.URL+"/api/mongo", map[string]any{"action": "findOne", "filter": filter})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, out["data"])
}

func TestRemoteClientAgainstProxy(t *testing.T) {
	store := database.NewMemoryStore()
	srv := newTestServer(t, store, Defaults{ConnectionString: "memory://"})
	client := remote.NewClient(remote.Config{
		BaseURL:    srv.URL + "/api",
		Database:   "tracker",
		Collection: "userdata",
		Timeout:    2 * time.Second,
	})
	ctx := context.Background()

	require.True(t, client.CheckHealth(ctx))

	doc, err := client.FindOne(ctx, "user_1")
	require.NoError(t, err)
	assert.Nil(t, doc)

	dataset := models.DefaultDataset(time.Now())
	dataset.Expenses = []models.Expense{{ID: 1709632800000, Date: "2024-03-05", Category: "Food", Amount: 1000}}
	require.NoError(t, client.Upsert(ctx, "user_1", models.NewDocument(dataset)))

	doc, err = client.FindOne(ctx, "user_1")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "user_1", doc.UserID)
	assert.Equal(t, dataset.Expenses, doc.Expenses)
	require.NotNil(t, doc.Goals)
	assert.Equal(t, models.DefaultGoals(), *doc.Goals)

	require.NoError(t, client.DeleteOne(ctx, "user_1"))
	doc, err = client.FindOne(ctx, "user_1")
	require.NoError(t, err)
	assert.Nil(t, doc)
}
