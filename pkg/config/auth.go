package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AuthEntry holds credentials for an asset provider in auth.json. A provider
// may also map straight to a key string.
type AuthEntry struct {
	Key    string `json:"key,omitempty"`
	APIKey string `json:"apiKey,omitempty"`
}

// ResolveAuthPath returns the auth file path, honoring HOSTBRIDGE_AUTH_PATH.
func ResolveAuthPath() (string, error) {
	if override := strings.TrimSpace(os.Getenv(EnvPrefix + "AUTH_PATH")); override != "" {
		return override, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".hostbridge", "auth.json"), nil
}

// ResolveAPIKey resolves a provider key from <PROVIDER>_API_KEY, falling
// back to the provider's entry in auth.json.
func ResolveAPIKey(provider string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(provider))
	if name == "" {
		return "", errors.New("provider name is empty")
	}

	envVar := strings.ToUpper(name) + "_API_KEY"
	if value := strings.TrimSpace(os.Getenv(envVar)); value != "" {
		return value, nil
	}

	authPath, err := ResolveAuthPath()
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(authPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("set %s or add %s", envVar, authPath)
		}
		return "", fmt.Errorf("failed to read auth file: %w", err)
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return "", fmt.Errorf("failed to parse auth file: %w", err)
	}

	raw, ok := entries[name]
	if !ok {
		for key, value := range entries {
			if strings.EqualFold(key, name) {
				raw, ok = value, true
				break
			}
		}
	}
	if !ok {
		return "", fmt.Errorf("no credentials for %q in %s", name, authPath)
	}

	var key string
	if json.Unmarshal(raw, &key) == nil {
		if key = strings.TrimSpace(key); key != "" {
			return key, nil
		}
	}

	var entry AuthEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return "", fmt.Errorf("invalid auth entry for %q in %s", name, authPath)
	}
	for _, v := range []string{entry.APIKey, entry.Key} {
		if v = strings.TrimSpace(v); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("empty credentials for %q in %s", name, authPath)
}
