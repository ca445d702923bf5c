package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the proxy and the tracker session.
type Config struct {
	// Document-store proxy
	Port            string
	MongoURI        string
	MongoDB         string
	MongoCollection string
	UseMemoryStore  bool
	AllowedOrigins  []string

	// Tracker session
	APIBaseURL       string
	ConnectionString string
	StateDBPath      string
	BackupDir        string
	TelegramToken    string
	ChatID           int64
	Categories       []string
	GeminiAPIKey     string

	SyncDebounce      time.Duration
	PeriodicSyncFloor time.Duration

	LogLevel  string
	LogFormat string
}

// Load loads configuration from a .env file (if any) and the environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "err", err)
	}

	stateDir := defaultStateDir()

	return &Config{
		Port:            getenv("PORT", "5000"),
		MongoURI:        os.Getenv("MONGODB_URI"),
		MongoDB:         getenv("MONGODB_DB", "tracker"),
		MongoCollection: getenv("MONGODB_COLLECTION", "userdata"),
		UseMemoryStore:  getbool("USE_MEMORY_STORE", false),
		AllowedOrigins:  getlist("CORS_ALLOWED_ORIGINS", []string{"*"}),

		APIBaseURL:       strings.TrimRight(getenv("TRACKER_API_URL", "http://localhost:5000/api"), "/"),
		ConnectionString: os.Getenv("TRACKER_CONNECTION_STRING"),
		StateDBPath:      getenv("TRACKER_STATE_DB", filepath.Join(stateDir, "state.db")),
		BackupDir:        getenv("TRACKER_BACKUP_DIR", filepath.Join(stateDir, "backups")),
		TelegramToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
		ChatID:           getint64("TELEGRAM_CHAT_ID", 0),
		Categories: getlist("TRACKER_CATEGORIES", []string{
			"Food",
			"Transport",
			"Rent",
			"Entertainment",
			"Shopping",
			"Gym",
			"Phone",
			"Family",
			"Others",
		}),
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),

		SyncDebounce:      getduration("TRACKER_SYNC_DEBOUNCE", 2*time.Second),
		PeriodicSyncFloor: getduration("TRACKER_SYNC_INTERVAL", 5*time.Minute),

		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "text"),
	}
}

// ValidateProxy checks the settings the document-store proxy needs.
func (c *Config) ValidateProxy() error {
	if c.Port == "" {
		return errors.New("PORT not set")
	}
	if !c.UseMemoryStore && c.MongoURI == "" {
		return errors.New("MONGODB_URI not set (or set USE_MEMORY_STORE=true)")
	}
	return nil
}

// ValidateSession checks the settings shared by the bot and the CLI.
func (c *Config) ValidateSession() error {
	if c.APIBaseURL == "" {
		return errors.New("TRACKER_API_URL not set")
	}
	if c.StateDBPath == "" {
		return errors.New("TRACKER_STATE_DB not set")
	}
	if c.BackupDir == "" {
		return errors.New("TRACKER_BACKUP_DIR not set")
	}
	if c.SyncDebounce <= 0 {
		return errors.New("TRACKER_SYNC_DEBOUNCE must be positive")
	}
	return nil
}

// ValidateBot checks the settings the chat front end needs.
func (c *Config) ValidateBot() error {
	if err := c.ValidateSession(); err != nil {
		return err
	}
	if c.TelegramToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN not set")
	}
	if c.ChatID == 0 {
		return errors.New("TELEGRAM_CHAT_ID not set")
	}
	return nil
}

// IsAuthorizedChat reports whether messages from chatID may drive the tracker.
func (c *Config) IsAuthorizedChat(chatID int64) bool {
	return chatID == c.ChatID
}

func defaultStateDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".tracker"
	}
	return filepath.Join(dir, "tracker")
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getbool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("invalid boolean in environment", "key", key, "value", v)
		return fallback
	}
	return b
}

func getint64(key string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		slog.Warn("invalid integer in environment", "key", key, "value", v)
		return fallback
	}
	return n
}

func getduration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("invalid duration in environment", "key", key, "value", v)
		return fallback
	}
	return d
}

func getlist(key string, fallback []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
