package config

import (
	"errors"
	"strconv"
	"testing"
)

// fakeBackend is an in-memory ConfigBackend for tests.
type fakeBackend struct {
	values map[string]string
}

func (f fakeBackend) GetString(key string) (string, bool, error) {
	v, ok := f.values[key]
	return v, ok, nil
}

func (f fakeBackend) GetInt(key string) (int, bool, error) {
	v, ok := f.values[key]
	if !ok {
		return 0, false, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, true, err
	}
	return i, true, nil
}

func (f fakeBackend) SetString(key, val string) error {
	f.values[key] = val
	return nil
}

func (f fakeBackend) SetInt(key string, val int) error {
	f.values[key] = strconv.Itoa(val)
	return nil
}

func (f fakeBackend) Delete(key string) error {
	delete(f.values, key)
	return nil
}

// mockKeychain is a test double for the Keychain interface.
type mockKeychain struct {
	data map[string]string
}

func (m *mockKeychain) Get(service, account string) (string, error) {
	v, ok := m.data[account]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func (m *mockKeychain) Set(service, account, value string) error {
	if m.data == nil {
		m.data = make(map[string]string)
	}
	m.data[account] = value
	return nil
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
	t.Setenv("COVERCAST_API_TOKEN", "")
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(fakeBackend{}, &mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4040 {
		t.Errorf("Server.Port = %d, want 4040", cfg.Server.Port)
	}
	if cfg.Engine.Backend != "auto" {
		t.Errorf("Engine.Backend = %q, want auto", cfg.Engine.Backend)
	}
	if cfg.Ollama.BaseURL != "http://localhost:11434" {
		t.Errorf("Ollama.BaseURL = %q", cfg.Ollama.BaseURL)
	}
	if cfg.Ollama.ChatModel != "qwen2.5" {
		t.Errorf("Ollama.ChatModel = %q, want qwen2.5", cfg.Ollama.ChatModel)
	}
	if cfg.Ollama.EmbedModel != "nomic-embed-text" {
		t.Errorf("Ollama.EmbedModel = %q, want nomic-embed-text", cfg.Ollama.EmbedModel)
	}
	if cfg.Remote.BaseURL != "https://api.mistral.ai/v1" {
		t.Errorf("Remote.BaseURL = %q", cfg.Remote.BaseURL)
	}
	if cfg.Remote.ChatModel != "mistral-small-latest" {
		t.Errorf("Remote.ChatModel = %q", cfg.Remote.ChatModel)
	}
	if cfg.Remote.EmbedModel != "mistral-embed" {
		t.Errorf("Remote.EmbedModel = %q", cfg.Remote.EmbedModel)
	}
	if cfg.Storage.VectorBackend != "sqlite" {
		t.Errorf("Storage.VectorBackend = %q, want sqlite", cfg.Storage.VectorBackend)
	}
	if cfg.Storage.VectorDim != 768 {
		t.Errorf("Storage.VectorDim = %d, want 768", cfg.Storage.VectorDim)
	}
	if cfg.Retrieval.TopK != 5 {
		t.Errorf("Retrieval.TopK = %d, want 5", cfg.Retrieval.TopK)
	}
	if cfg.Retrieval.RerankEnabled {
		t.Error("Retrieval.RerankEnabled = true, want false")
	}
	if cfg.Retrieval.RerankTimeout != "5s" {
		t.Errorf("Retrieval.RerankTimeout = %q, want 5s", cfg.Retrieval.RerankTimeout)
	}
	if cfg.Retrieval.RerankThreshold != 0.5 {
		t.Errorf("Retrieval.RerankThreshold = %v, want 0.5", cfg.Retrieval.RerankThreshold)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

func TestBackendValues(t *testing.T) {
	clearEnv(t)

	b := fakeBackend{values: map[string]string{
		"server.port":                "5050",
		"engine.backend":             "remote",
		"ollama.chat_model":          "llama3.2",
		"storage.vector_backend":     "postgres",
		"storage.vector_dim":         "1024",
		"retrieval.top_k":            "8",
		"retrieval.rerank_enabled":   "true",
		"retrieval.rerank_threshold": "0.7",
		"staffing.ratios_path":       "/etc/covercast/ratios.yaml",
	}}

	cfg, err := loadWith(b, &mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5050 {
		t.Errorf("Server.Port = %d, want 5050", cfg.Server.Port)
	}
	if cfg.Engine.Backend != "remote" {
		t.Errorf("Engine.Backend = %q, want remote", cfg.Engine.Backend)
	}
	if cfg.Ollama.ChatModel != "llama3.2" {
		t.Errorf("Ollama.ChatModel = %q, want llama3.2", cfg.Ollama.ChatModel)
	}
	if cfg.Storage.VectorBackend != "postgres" {
		t.Errorf("Storage.VectorBackend = %q, want postgres", cfg.Storage.VectorBackend)
	}
	if cfg.Storage.VectorDim != 1024 {
		t.Errorf("Storage.VectorDim = %d, want 1024", cfg.Storage.VectorDim)
	}
	if cfg.Retrieval.TopK != 8 {
		t.Errorf("Retrieval.TopK = %d, want 8", cfg.Retrieval.TopK)
	}
	if !cfg.Retrieval.RerankEnabled {
		t.Error("Retrieval.RerankEnabled = false, want true")
	}
	if cfg.Retrieval.RerankThreshold != 0.7 {
		t.Errorf("Retrieval.RerankThreshold = %v, want 0.7", cfg.Retrieval.RerankThreshold)
	}
	if cfg.Staffing.RatiosPath != "/etc/covercast/ratios.yaml" {
		t.Errorf("Staffing.RatiosPath = %q", cfg.Staffing.RatiosPath)
	}
}

func TestEnvOverridesBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("COVERCAST_OLLAMA_BASE_URL", "http://gpu-box:11434")
	t.Setenv("COVERCAST_RETRIEVAL_TOP_K", "9")

	b := fakeBackend{values: map[string]string{
		"ollama.base_url": "http://file-value:11434",
		"retrieval.top_k": "3",
	}}

	cfg, err := loadWith(b, &mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Ollama.BaseURL != "http://gpu-box:11434" {
		t.Errorf("Ollama.BaseURL = %q, want env value", cfg.Ollama.BaseURL)
	}
	if cfg.Retrieval.TopK != 9 {
		t.Errorf("Retrieval.TopK = %d, want 9", cfg.Retrieval.TopK)
	}
}

func TestEnvBadValueKeepsDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("COVERCAST_RETRIEVAL_TOP_K", "lots")

	cfg, err := loadWith(fakeBackend{}, &mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Retrieval.TopK != 5 {
		t.Errorf("Retrieval.TopK = %d, want default 5", cfg.Retrieval.TopK)
	}
}

// Secrets must never be read from the file backend, only from the
// environment or the secret store.
func TestSecretsSkipBackend(t *testing.T) {
	clearEnv(t)

	b := fakeBackend{values: map[string]string{
		"remote.api_key":       "leaked",
		"storage.postgres_url": "postgres://leaked",
	}}

	cfg, err := loadWith(b, &mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Remote.APIKey != "" {
		t.Errorf("Remote.APIKey = %q, want empty", cfg.Remote.APIKey)
	}
	if cfg.Storage.PostgresURL != "" {
		t.Errorf("Storage.PostgresURL = %q, want empty", cfg.Storage.PostgresURL)
	}
}

func TestSecretsFromKeychain(t *testing.T) {
	clearEnv(t)

	kc := &mockKeychain{data: map[string]string{
		"remote_api_key": "kc-secret",
		"postgres_url":   "postgres://kc-host/covercast",
	}}

	cfg, err := loadWith(fakeBackend{}, kc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Remote.APIKey != "kc-secret" {
		t.Errorf("Remote.APIKey = %q, want kc-secret", cfg.Remote.APIKey)
	}
	if cfg.Storage.PostgresURL != "postgres://kc-host/covercast" {
		t.Errorf("Storage.PostgresURL = %q", cfg.Storage.PostgresURL)
	}
}

func TestSecretEnvBeatsKeychain(t *testing.T) {
	clearEnv(t)
	t.Setenv("COVERCAST_REMOTE_API_KEY", "env-secret")

	kc := &mockKeychain{data: map[string]string{"remote_api_key": "kc-secret"}}

	cfg, err := loadWith(fakeBackend{}, kc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Remote.APIKey != "env-secret" {
		t.Errorf("Remote.APIKey = %q, want env-secret", cfg.Remote.APIKey)
	}
}

func TestGetAPIToken_Env(t *testing.T) {
	t.Setenv("COVERCAST_API_TOKEN", "from-env")

	token, err := GetAPIToken(&mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "from-env" {
		t.Errorf("token = %q, want from-env", token)
	}
}

func TestGetAPIToken_GeneratesAndPersists(t *testing.T) {
	t.Setenv("COVERCAST_API_TOKEN", "")

	kc := &mockKeychain{}
	token, err := GetAPIToken(kc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(token) != 64 {
		t.Errorf("token length = %d, want 64 hex chars", len(token))
	}
	if kc.data["api_token"] != token {
		t.Error("token was not stored in the secret store")
	}

	again, err := GetAPIToken(kc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again != token {
		t.Errorf("second call returned %q, want the stored token", again)
	}
}

func TestShowAllOmitsSecrets(t *testing.T) {
	cfg := defaults()
	keys := ShowAll(cfg)

	seen := make(map[string]string, len(keys))
	for _, k := range keys {
		seen[k.Key] = k.Value
	}
	if v, ok := seen["server.port"]; !ok || v != "4040" {
		t.Errorf("server.port = %q, %v", v, ok)
	}
	if v, ok := seen["retrieval.rerank_threshold"]; !ok || v != "0.5" {
		t.Errorf("retrieval.rerank_threshold = %q, %v", v, ok)
	}
	if _, ok := seen["remote.api_key"]; ok {
		t.Error("remote.api_key must not appear in config show")
	}
	if _, ok := seen["storage.postgres_url"]; ok {
		t.Error("storage.postgres_url must not appear in config show")
	}
}

func TestValidKeys(t *testing.T) {
	keys := ValidKeys()

	want := map[string]bool{"retrieval.top_k": false, "staffing.ratios_path": false}
	for _, k := range keys {
		if k == "remote.api_key" || k == "storage.postgres_url" {
			t.Errorf("secret key %q listed as settable", k)
		}
		if _, ok := want[k]; ok {
			want[k] = true
		}
	}
	for k, found := range want {
		if !found {
			t.Errorf("key %q missing from ValidKeys", k)
		}
	}
}
