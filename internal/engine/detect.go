package engine

import "fmt"

// DetectConfig holds parameters for backend selection.
type DetectConfig struct {
	// Backend is "ollama", "remote", or "auto" (empty means auto).
	Backend       string
	OllamaBaseURL string
	RemoteBaseURL string
	RemoteAPIKey  string
}

// Detect selects an inference backend from config. In auto mode the remote
// backend wins when an API key is configured, otherwise local Ollama is used.
func Detect(cfg DetectConfig) (Engine, error) {
	switch cfg.Backend {
	case "ollama":
		return NewOllamaEngine(cfg.OllamaBaseURL), nil
	case "remote":
		if cfg.RemoteAPIKey == "" {
			return nil, fmt.Errorf("remote backend requires an API key")
		}
		return NewRemoteEngine(cfg.RemoteAPIKey, cfg.RemoteBaseURL), nil
	case "auto", "":
		if cfg.RemoteAPIKey != "" {
			return NewRemoteEngine(cfg.RemoteAPIKey, cfg.RemoteBaseURL), nil
		}
		return NewOllamaEngine(cfg.OllamaBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown engine backend %q", cfg.Backend)
	}
}
