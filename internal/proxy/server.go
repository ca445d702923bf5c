// Package proxy exposes a DocumentStore over HTTP for browser and CLI clients.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/cors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"finance-tracker/internal/database"
	"finance-tracker/internal/models"
)

const maxBodyBytes = 5 << 20

// Defaults fill request fields the client leaves empty.
type Defaults struct {
	ConnectionString string
	Database         string
	Collection       string
}

// Server handles /mongo and /health.
type Server struct {
	store    database.DocumentStore
	defaults Defaults
	now      func() time.Time
}

func New(store database.DocumentStore, defaults Defaults) *Server {
	return &Server{store: store, defaults: defaults, now: time.Now}
}

// Handler returns the routed handler wrapped with CORS and request logging.
func (s *Server) Handler(allowedOrigins []string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/mongo", s.handleMongo)
	mux.HandleFunc("/api/mongo", s.handleMongo)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:       allowedOrigins,
		AllowedMethods:       []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:       []string{"Content-Type"},
		OptionsSuccessStatus: http.StatusOK,
	})
	return logRequests(c.Handler(mux))
}

type mongoRequest struct {
	Action           string `json:"action"`
	ConnectionString string `json:"connectionString"`
	Database         string `json:"database"`
	Collection       string `json:"collection"`
	Filter           bson.M `json:"filter"`
	Data             bson.M `json:"data"`
}

type successResponse struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
	Timestamp string `json:"timestamp"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		slog.Warn("health check: store unreachable", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{
			Status:    "error",
			Message:   "Document store unreachable",
			Timestamp: models.Timestamp(s.now()),
		})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Message:   "Document store proxy is running",
		Timestamp: models.Timestamp(s.now()),
	})
}

func (s *Server) handleMongo(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodPost:
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var req mongoRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON body", err.Error())
		return
	}

	target := database.Target{
		URI:        firstNonEmpty(req.ConnectionString, s.defaults.ConnectionString),
		Database:   firstNonEmpty(req.Database, s.defaults.Database),
		Collection: firstNonEmpty(req.Collection, s.defaults.Collection),
	}
	if err := target.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, "Missing required fields: connectionString, database, collection", "")
		return
	}

	ctx := r.Context()
	var (
		data any
		err  error
	)
	switch req.Action {
	case "upsert":
		if req.Filter == nil || req.Data == nil {
			s.writeError(w, http.StatusBadRequest, "Filter and data are required for upsert", "")
			return
		}
		delete(req.Data, "_id")
		data, err = s.store.ReplaceOne(ctx, target, req.Filter, req.Data)
	case "findOne":
		if req.Filter == nil {
			s.writeError(w, http.StatusBadRequest, "Filter is required for findOne", "")
			return
		}
		var doc bson.M
		doc, err = s.store.FindOne(ctx, target, req.Filter)
		if doc != nil {
			data = plainValue(doc)
		}
	case "deleteOne":
		if req.Filter == nil {
			s.writeError(w, http.StatusBadRequest, "Filter is required for deleteOne", "")
			return
		}
		data, err = s.store.DeleteOne(ctx, target, req.Filter)
	default:
		s.writeError(w, http.StatusBadRequest, "Invalid action: "+req.Action, "")
		return
	}

	if err != nil {
		slog.Error("document operation failed", "action", req.Action, "db", target.Database, "collection", target.Collection, "err", err)
		status := http.StatusInternalServerError
		if errors.Is(err, database.ErrMissingTarget) {
			status = http.StatusBadRequest
		}
		s.writeError(w, status, "Database operation failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, successResponse{
		Success:   true,
		Data:      data,
		Timestamp: models.Timestamp(s.now()),
	})
}

// plainValue converts driver types in a stored document into JSON-friendly values.
func plainValue(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = plainValue(val)
		}
		return out
	case map[string]any:
		return plainValue(bson.M(t))
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = plainValue(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = plainValue(val)
		}
		return out
	case []any:
		return plainValue(bson.A(t))
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return models.Timestamp(t.Time())
	default:
		return v
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, errorResponse{
		Error:     message,
		Details:   details,
		Timestamp: models.Timestamp(s.now()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write json response", "err", err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
