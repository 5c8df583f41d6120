package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultSessionGapMinutes    = 20
	DefaultMinSessionMessages   = 4
	DefaultSummaryVersion       = 1
	DefaultMaxRetrievedSessions = 3

	DefaultEmbeddingProvider  = "deterministic"
	DefaultEmbeddingModel     = "text-embedding-3-small"
	DefaultEmbeddingBaseURL   = "https://api.openai.com"
	DefaultEmbeddingTimeoutMs = 4000
	DefaultEmbeddingMaxChars  = 6000
	DefaultEmbeddingDimension = 256

	DefaultRecentMessages  = 12
	DefaultOlderMessages   = 30
	DefaultRelevantLimit   = 5
	DefaultSummaryCacheTTL = "10m"

	DefaultMaxMessagesPerChat = 2000
	DefaultMaxMessageChars    = 2000

	DefaultSweepSchedule     = "@every 1m"
	DefaultBackfillSchedule  = "@every 5m"
	DefaultBackfillBatchSize = 64
)

type Config struct {
	DBPath    string          `json:"dbPath,omitempty"`
	Session   SessionConfig   `json:"session"`
	Embedding EmbeddingConfig `json:"embedding"`
	Context   ContextConfig   `json:"context"`
	Store     StoreConfig     `json:"store"`
	Jobs      JobsConfig      `json:"jobs"`
}

type SessionConfig struct {
	GapMinutes     int `json:"gapMinutes,omitempty"`
	MinMessages    int `json:"minMessages,omitempty"`
	SummaryVersion int `json:"summaryVersion,omitempty"`
	MaxRetrieved   int `json:"maxRetrieved,omitempty"`
}

type EmbeddingConfig struct {
	Provider  string `json:"provider,omitempty"` // "deterministic" (default) or "openai"
	Model     string `json:"model,omitempty"`
	BaseURL   string `json:"baseUrl,omitempty"`
	APIKey    string `json:"apiKey,omitempty"`
	TimeoutMs int    `json:"timeoutMs,omitempty"`
	MaxChars  int    `json:"maxChars,omitempty"`
	Dimension int    `json:"dimension,omitempty"`
}

type ContextConfig struct {
	RecentMessages  int    `json:"recentMessages,omitempty"`
	OlderMessages   int    `json:"olderMessages,omitempty"`
	RelevantLimit   int    `json:"relevantLimit,omitempty"`
	SummaryCacheTTL string `json:"summaryCacheTtl,omitempty"`
}

type StoreConfig struct {
	MaxMessagesPerChat int `json:"maxMessagesPerChat,omitempty"`
	MaxMessageChars    int `json:"maxMessageChars,omitempty"`
}

type JobsConfig struct {
	SweepEnabled      bool   `json:"sweepEnabled"`
	SweepSchedule     string `json:"sweepSchedule,omitempty"`
	BackfillEnabled   bool   `json:"backfillEnabled"`
	BackfillSchedule  string `json:"backfillSchedule,omitempty"`
	BackfillBatchSize int    `json:"backfillBatchSize,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		DBPath: filepath.Join(ConfigDir(), "memory.db"),
		Session: SessionConfig{
			GapMinutes:     DefaultSessionGapMinutes,
			MinMessages:    DefaultMinSessionMessages,
			SummaryVersion: DefaultSummaryVersion,
			MaxRetrieved:   DefaultMaxRetrievedSessions,
		},
		Embedding: EmbeddingConfig{
			Provider:  DefaultEmbeddingProvider,
			Model:     DefaultEmbeddingModel,
			TimeoutMs: DefaultEmbeddingTimeoutMs,
			MaxChars:  DefaultEmbeddingMaxChars,
			Dimension: DefaultEmbeddingDimension,
		},
		Context: ContextConfig{
			RecentMessages:  DefaultRecentMessages,
			OlderMessages:   DefaultOlderMessages,
			RelevantLimit:   DefaultRelevantLimit,
			SummaryCacheTTL: DefaultSummaryCacheTTL,
		},
		Store: StoreConfig{
			MaxMessagesPerChat: DefaultMaxMessagesPerChat,
			MaxMessageChars:    DefaultMaxMessageChars,
		},
		Jobs: JobsConfig{
			SweepSchedule:     DefaultSweepSchedule,
			BackfillSchedule:  DefaultBackfillSchedule,
			BackfillBatchSize: DefaultBackfillBatchSize,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".garbanzo")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	return LoadConfigFrom(ConfigPath())
}

func LoadConfigFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if dbPath := os.Getenv("GARBANZO_DB_PATH"); dbPath != "" {
		cfg.DBPath = dbPath
	}
	if provider := os.Getenv("GARBANZO_EMBEDDING_PROVIDER"); provider != "" {
		cfg.Embedding.Provider = provider
	}
	if model := os.Getenv("GARBANZO_EMBEDDING_MODEL"); model != "" {
		cfg.Embedding.Model = model
	}
	if key := os.Getenv("GARBANZO_EMBEDDING_API_KEY"); key != "" {
		cfg.Embedding.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = key
	}
	if url := os.Getenv("GARBANZO_EMBEDDING_BASE_URL"); url != "" {
		cfg.Embedding.BaseURL = url
	}
	if gap := os.Getenv("GARBANZO_SESSION_GAP_MINUTES"); gap != "" {
		if parsed, err := strconv.Atoi(gap); err == nil {
			cfg.Session.GapMinutes = parsed
		}
	}
	if minMsgs := os.Getenv("GARBANZO_SESSION_MIN_MESSAGES"); minMsgs != "" {
		if parsed, err := strconv.Atoi(minMsgs); err == nil {
			cfg.Session.MinMessages = parsed
		}
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.DBPath == "" {
		cfg.DBPath = DefaultConfig().DBPath
	}
	if cfg.Session.GapMinutes <= 0 {
		cfg.Session.GapMinutes = DefaultSessionGapMinutes
	}
	if cfg.Session.MinMessages <= 0 {
		cfg.Session.MinMessages = DefaultMinSessionMessages
	}
	if cfg.Session.SummaryVersion <= 0 {
		cfg.Session.SummaryVersion = DefaultSummaryVersion
	}
	if cfg.Session.MaxRetrieved <= 0 {
		cfg.Session.MaxRetrieved = DefaultMaxRetrievedSessions
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = DefaultEmbeddingProvider
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = DefaultEmbeddingModel
	}
	if cfg.Embedding.TimeoutMs <= 0 {
		cfg.Embedding.TimeoutMs = DefaultEmbeddingTimeoutMs
	}
	if cfg.Embedding.MaxChars <= 0 {
		cfg.Embedding.MaxChars = DefaultEmbeddingMaxChars
	}
	if cfg.Embedding.Dimension <= 0 {
		cfg.Embedding.Dimension = DefaultEmbeddingDimension
	}
	if cfg.Context.RecentMessages <= 0 {
		cfg.Context.RecentMessages = DefaultRecentMessages
	}
	if cfg.Context.OlderMessages <= 0 {
		cfg.Context.OlderMessages = DefaultOlderMessages
	}
	if cfg.Context.RelevantLimit <= 0 {
		cfg.Context.RelevantLimit = DefaultRelevantLimit
	}
	if cfg.Context.SummaryCacheTTL == "" {
		cfg.Context.SummaryCacheTTL = DefaultSummaryCacheTTL
	}
	if cfg.Store.MaxMessagesPerChat <= 0 {
		cfg.Store.MaxMessagesPerChat = DefaultMaxMessagesPerChat
	}
	if cfg.Store.MaxMessageChars <= 0 {
		cfg.Store.MaxMessageChars = DefaultMaxMessageChars
	}
	if cfg.Jobs.SweepSchedule == "" {
		cfg.Jobs.SweepSchedule = DefaultSweepSchedule
	}
	if cfg.Jobs.BackfillSchedule == "" {
		cfg.Jobs.BackfillSchedule = DefaultBackfillSchedule
	}
	if cfg.Jobs.BackfillBatchSize <= 0 {
		cfg.Jobs.BackfillBatchSize = DefaultBackfillBatchSize
	}
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}
