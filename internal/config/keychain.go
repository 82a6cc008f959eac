package config

import "strings"

// keychainService is the service name secrets are stored under.
const keychainService = "covercast"

// Keychain abstracts the platform secret store.
// macOS uses Keychain via the `security` CLI; other platforms use a
// mode-0600 secrets file under the data dir.
type Keychain interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

type platformKeychain struct{}

// NewKeychain returns the platform secret store.
func NewKeychain() Keychain {
	return platformKeychain{}
}

func (platformKeychain) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (platformKeychain) Set(service, account, value string) error {
	return keychainSet(service, account, value)
}
