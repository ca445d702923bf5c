// Package remote talks to the document-store proxy on behalf of one user.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"finance-tracker/internal/models"
)

//go:generate mockgen -source=client.go -destination=mock_store.go -package=remote

// Store is the remote persistence used by the sync orchestrator.
type Store interface {
	CheckHealth(ctx context.Context) bool
	Upsert(ctx context.Context, userID string, doc *models.Document) error
	FindOne(ctx context.Context, userID string) (*models.Document, error)
	DeleteOne(ctx context.Context, userID string) error
}

// Config locates the proxy and the collection holding user documents.
type Config struct {
	BaseURL          string // e.g. https://host/api
	ConnectionString string // may be empty when the proxy has a server-side default
	Database         string
	Collection       string
	Timeout          time.Duration
}

// Client is an HTTP client for the document-store proxy.
type Client struct {
	cfg        Config
	httpClient *http.Client
	now        func() time.Time
}

var _ Store = (*Client)(nil)

// NewClient creates a proxy client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
	}
}

type request struct {
	Action           string            `json:"action"`
	ConnectionString string            `json:"connectionString,omitempty"`
	Database         string            `json:"database,omitempty"`
	Collection       string            `json:"collection,omitempty"`
	Filter           map[string]string `json:"filter"`
	Data             *models.Document  `json:"data,omitempty"`
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// CheckHealth reports whether the proxy answers its health endpoint. It never errors.
func (c *Client) CheckHealth(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Upsert replaces the user's document, stamping userId and lastUpdated.
func (c *Client) Upsert(ctx context.Context, userID string, doc *models.Document) error {
	stamped := models.Document{}
	if doc != nil {
		stamped = *doc
	}
	stamped.UserID = userID
	stamped.LastUpdated = models.Timestamp(c.now())

	_, err := c.do(ctx, "upsert", userID, &stamped)
	return err
}

// FindOne returns the user's document, or nil if none is stored.
func (c *Client) FindOne(ctx context.Context, userID string) (*models.Document, error) {
	raw, err := c.do(ctx, "findOne", userID, nil)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var doc models.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &OperationError{Op: "findOne", Message: "undecodable document", Cause: err}
	}
	return &doc, nil
}

// DeleteOne removes the user's document.
func (c *Client) DeleteOne(ctx context.Context, userID string) error {
	_, err := c.do(ctx, "deleteOne", userID, nil)
	return err
}

func (c *Client) do(ctx context.Context, action, userID string, data *models.Document) (json.RawMessage, error) {
	if !c.CheckHealth(ctx) {
		return nil, fmt.Errorf("%s: %w", action, ErrRemoteUnavailable)
	}

	body, err := json.Marshal(request{
		Action:           action,
		ConnectionString: c.cfg.ConnectionString,
		Database:         c.cfg.Database,
		Collection:       c.cfg.Collection,
		Filter:           map[string]string{"userId": userID},
		Data:             data,
	})
	if err != nil {
		return nil, &OperationError{Op: action, Message: "encode request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/mongo", bytes.NewReader(body))
	if err != nil {
		return nil, &OperationError{Op: action, Message: "create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &OperationError{Op: action, Cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &OperationError{Op: action, StatusCode: resp.StatusCode, Message: "read response", Cause: err}
	}

	var out response
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := out.Error
		if decodeErr != nil || msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &OperationError{Op: action, StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return nil, &OperationError{Op: action, StatusCode: resp.StatusCode, Message: "decode response", Cause: decodeErr}
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "proxy reported failure"
		}
		return nil, &OperationError{Op: action, StatusCode: resp.StatusCode, Message: msg}
	}
	return out.Data, nil
}
