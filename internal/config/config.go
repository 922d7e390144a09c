// Package config loads and merges keep configuration.
//
// Configuration comes from three layers, later layers winning:
// built-in defaults, then <store>/config.json, then environment
// variables (a .env file in the store directory is loaded first via
// godotenv so provider keys can live next to the data).
package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// EnvStore selects the store directory.
const EnvStore = "KEEP_STORE"

// ProviderConfig binds one external provider (embedding or
// summarization) by name plus its endpoint details.
type ProviderConfig struct {
	// Name selects the provider: "ollama", "openai" or "" (disabled).
	Name string `json:"name,omitempty"`

	// Model is the provider-specific model identifier.
	Model string `json:"model,omitempty"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `json:"base_url,omitempty"`
}

// VectorConfig binds the vector backend.
type VectorConfig struct {
	// Backend is "local" (sqlite file in the store directory) or
	// "qdrant" (REST endpoint).
	Backend string `json:"backend,omitempty"`

	// URL is the Qdrant endpoint, ignored for the local backend.
	URL string `json:"url,omitempty"`

	// APIKey authenticates against Qdrant, if set.
	APIKey string `json:"api_key,omitempty"`
}

// Config holds application configuration.
type Config struct {
	// DefaultCollection is the collection used when none is given.
	DefaultCollection string `json:"default_collection,omitempty"`

	// MaxSummaryLength caps stored summaries; inline text longer than
	// this is rejected at the CLI boundary.
	MaxSummaryLength int `json:"max_summary_length,omitempty"`

	// EmbedTimeoutSecs bounds one embedding provider call.
	EmbedTimeoutSecs int `json:"embed_timeout_secs,omitempty"`

	// LLMTimeoutSecs bounds one summarization provider call.
	LLMTimeoutSecs int `json:"llm_timeout_secs,omitempty"`

	// FetchTimeoutSecs bounds one http(s) source fetch.
	FetchTimeoutSecs int `json:"fetch_timeout_secs,omitempty"`

	// Embedding binds the embedding provider.
	Embedding ProviderConfig `json:"embedding,omitempty"`

	// Summarization binds the summarization provider.
	Summarization ProviderConfig `json:"summarization,omitempty"`

	// Vector binds the vector backend.
	Vector VectorConfig `json:"vector,omitempty"`

	// DefaultTags are applied to every write before user tags.
	DefaultTags map[string]string `json:"default_tags,omitempty"`

	// DBMaxOpenConns limits open database connections. 0 means the
	// sql.DB default. Set 1 to serialize all access.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from
	// registration. Unknown names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DefaultCollection: "default",
		MaxSummaryLength:  2000,
		EmbedTimeoutSecs:  30,
		LLMTimeoutSecs:    30,
		FetchTimeoutSecs:  60,
		Vector:            VectorConfig{Backend: "local"},
	}
}

// StoreDir resolves the store directory: explicit override, then
// KEEP_STORE, then ~/.keep.
func StoreDir(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if dir := os.Getenv(EnvStore); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".keep"), nil
}

// Load loads configuration from storeDir/config.json, merged over
// defaults. A .env file in storeDir is loaded into the process
// environment first (missing files are fine).
func Load(storeDir string) (*Config, error) {
	_ = godotenv.Load(filepath.Join(storeDir, ".env"))

	overlay, err := loadFileRaw(filepath.Join(storeDir, "config.json"))
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), overlay), nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns a zero-valued config if the file doesn't exist.
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Merge combines base and overlay configs. Overlay values take
// precedence for scalars; maps and slices are merged.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.DefaultCollection = pickString(base.DefaultCollection, overlay.DefaultCollection)
	result.MaxSummaryLength = pickInt(base.MaxSummaryLength, overlay.MaxSummaryLength)
	result.EmbedTimeoutSecs = pickInt(base.EmbedTimeoutSecs, overlay.EmbedTimeoutSecs)
	result.LLMTimeoutSecs = pickInt(base.LLMTimeoutSecs, overlay.LLMTimeoutSecs)
	result.FetchTimeoutSecs = pickInt(base.FetchTimeoutSecs, overlay.FetchTimeoutSecs)
	result.DBMaxOpenConns = pickInt(base.DBMaxOpenConns, overlay.DBMaxOpenConns)
	result.DBMaxIdleConns = pickInt(base.DBMaxIdleConns, overlay.DBMaxIdleConns)

	result.Embedding = mergeProvider(base.Embedding, overlay.Embedding)
	result.Summarization = mergeProvider(base.Summarization, overlay.Summarization)
	result.Vector = VectorConfig{
		Backend: pickString(base.Vector.Backend, overlay.Vector.Backend),
		URL:     pickString(base.Vector.URL, overlay.Vector.URL),
		APIKey:  pickString(base.Vector.APIKey, overlay.Vector.APIKey),
	}

	result.DefaultTags = mergeStringMap(base.DefaultTags, overlay.DefaultTags)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

func mergeProvider(base, overlay ProviderConfig) ProviderConfig {
	return ProviderConfig{
		Name:    pickString(base.Name, overlay.Name),
		Model:   pickString(base.Model, overlay.Model),
		BaseURL: pickString(base.BaseURL, overlay.BaseURL),
	}
}

func pickString(base, overlay string) string {
	if overlay != "" {
		return overlay
	}
	return base
}

func pickInt(base, overlay int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

func mergeStringMap(a, b map[string]string) map[string]string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	result := make(map[string]string, len(a)+len(b))
	for k, v := range a {
		result[k] = v
	}
	for k, v := range b {
		result[k] = v
	}
	return result
}

func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
