// Package insights asks a hosted text-generation model for financial
// insights, within a client-side quota.
package insights

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"finance-tracker/internal/models"
)

const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

var (
	ErrParsing       = errors.New("could not parse text-generation response")
	ErrNotConfigured = errors.New("AI insights are not enabled or no API key is set")
)

// Client calls the generateContent endpoint.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	limiter    *Limiter
}

func NewClient(limiter *Limiter) *Client {
	return &Client{
		baseURL:    DefaultBaseURL,
		model:      "gemini-1.5-flash",
		httpClient: &http.Client{Timeout: 60 * time.Second},
		limiter:    limiter,
	}
}

func (c *Client) Limiter() *Limiter { return c.limiter }

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate sends prompt and returns the first candidate's text.
func (c *Client) Generate(ctx context.Context, apiKey, prompt string) (string, error) {
	if err := c.limiter.Allow(); err != nil {
		return "", err
	}

	body, err := json.Marshal(generateRequest{Contents: []content{{Parts: []part{{Text: prompt}}}}})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var out generateResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode == http.StatusTooManyRequests {
		if err := c.limiter.TripCooldown(); err != nil {
			return "", err
		}
		return "", ErrQuotaExceeded
	}
	if resp.StatusCode != http.StatusOK {
		msg := "unknown error"
		if decodeErr == nil && out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return "", fmt.Errorf("API error (HTTP %d): %s", resp.StatusCode, msg)
	}

	if err := c.limiter.Record(); err != nil {
		return "", err
	}
	if decodeErr != nil {
		return "", fmt.Errorf("%w: %v", ErrParsing, decodeErr)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 || out.Candidates[0].Content.Parts[0].Text == "" {
		return "", fmt.Errorf("%w: no candidate text", ErrParsing)
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}

// Insights generates insights for d with the user's settings.
func (c *Client) Insights(ctx context.Context, ai models.AISettings, d models.Dataset, now time.Time) (models.AIInsights, error) {
	if !ai.EnableAI || ai.GeminiAPIKey == "" || ai.GeminiAPIKey == models.RedactedSecret {
		return models.AIInsights{}, ErrNotConfigured
	}
	text, err := c.Generate(ctx, ai.GeminiAPIKey, BuildPrompt(d, now))
	if err != nil {
		return models.AIInsights{}, err
	}
	out, err := ParseInsights(text)
	if err != nil {
		return models.AIInsights{}, err
	}
	out.Timestamp = now.UnixMilli()
	return out, nil
}
