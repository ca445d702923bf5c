package models

// RedactedSecret replaces credentials in snapshot files.
const RedactedSecret = "***HIDDEN***"

// AIInsight is one generated recommendation.
type AIInsight struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Type    string `json:"type"` // success, warning or info
	Action  string `json:"action"`
}

type AIInsights struct {
	Insights       []AIInsight `json:"insights"`
	InvestmentTips []string    `json:"investmentTips"`
	Timestamp      int64       `json:"timestamp,omitempty"`
}

// AISettings holds the text-generation preferences. It is kept in memory and in
// local snapshots only; it is never synced to the remote store.
type AISettings struct {
	GeminiAPIKey string     `json:"geminiApiKey"`
	EnableAI     bool       `json:"enableAI"`
	AIInsights   AIInsights `json:"aiInsights"`
}

// Redacted returns a copy with the credential replaced by placeholder.
func (s AISettings) Redacted(placeholder string) AISettings {
	s.GeminiAPIKey = placeholder
	return s
}
