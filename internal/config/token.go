package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
)

// GetAPIToken returns the bearer token protecting the management API,
// creating and storing one on first use. The COVERCAST_API_TOKEN
// environment variable overrides the secret store.
func GetAPIToken(kc Keychain) (string, error) {
	if env := os.Getenv("COVERCAST_API_TOKEN"); env != "" {
		return env, nil
	}

	token, err := kc.Get(keychainService, "api_token")
	if err == nil && token != "" {
		return token, nil
	}

	token, err = generateToken()
	if err != nil {
		return "", fmt.Errorf("generating API token: %w", err)
	}
	if err := kc.Set(keychainService, "api_token", token); err != nil {
		return "", fmt.Errorf("storing API token: %w", err)
	}
	return token, nil
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
