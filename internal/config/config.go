// Package config loads covercast configuration from the platform-native
// backend, environment variables, and the platform secret store.
package config

import "strings"

type Config struct {
	Server    ServerConfig
	Engine    EngineConfig
	Ollama    OllamaConfig
	Remote    RemoteConfig
	Storage   StorageConfig
	Retrieval RetrievalConfig
	Staffing  StaffingConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port int
}

type EngineConfig struct {
	// Backend is "ollama", "remote", or "auto". Auto selects the remote
	// backend when an API key is configured, otherwise local Ollama.
	Backend string
}

type OllamaConfig struct {
	BaseURL    string
	ChatModel  string
	EmbedModel string
}

type RemoteConfig struct {
	BaseURL    string
	APIKey     string
	ChatModel  string
	EmbedModel string
}

type StorageConfig struct {
	DataDir string

	// VectorBackend is "sqlite" or "postgres". Relational data stays in
	// SQLite either way; only pattern embeddings move.
	VectorBackend string
	PostgresURL   string
	VectorDim     int
}

type RetrievalConfig struct {
	TopK            int
	RerankEnabled   bool
	RerankTimeout   string
	RerankThreshold float64
}

type StaffingConfig struct {
	// RatiosPath points at a YAML ratio table; empty uses the embedded
	// defaults.
	RatiosPath string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4040,
		},
		Engine: EngineConfig{
			Backend: "auto",
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			ChatModel:  "qwen2.5",
			EmbedModel: "nomic-embed-text",
		},
		Remote: RemoteConfig{
			BaseURL:    "https://api.mistral.ai/v1",
			ChatModel:  "mistral-small-latest",
			EmbedModel: "mistral-embed",
		},
		Storage: StorageConfig{
			DataDir:       defaultDataDir(),
			VectorBackend: "sqlite",
			VectorDim:     768,
		},
		Retrieval: RetrievalConfig{
			TopK:            5,
			RerankEnabled:   false,
			RerankTimeout:   "5s",
			RerankThreshold: 0.5,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and the platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.covercast.app) and
// secrets fall back to macOS Keychain. On Linux the backend is a JSON file
// at $XDG_CONFIG_HOME/covercast/config.json and secrets live in a mode-0600
// file under the data dir or environment variables.
//
// Environment variables (COVERCAST_*) override backend values on all
// platforms. Secrets are never written to the config backend.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), NewKeychain())
}

func loadWith(b ConfigBackend, kc Keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Secrets absent from the environment fall back to the secret store.
	if cfg.Remote.APIKey == "" {
		if key, err := kc.Get(keychainService, "remote_api_key"); err == nil {
			cfg.Remote.APIKey = strings.TrimSpace(key)
		}
	}
	if cfg.Storage.PostgresURL == "" {
		if url, err := kc.Get(keychainService, "postgres_url"); err == nil {
			cfg.Storage.PostgresURL = strings.TrimSpace(url)
		}
	}

	return cfg, nil
}
