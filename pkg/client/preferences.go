package client

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Preferences are the settings remembered between runs of the chat client.
type Preferences struct {
	Model string `toml:"model"`
	Relay string `toml:"relay,omitempty"`
}

// DefaultPreferencesPath returns ~/.pentestai/preferences.toml.
func DefaultPreferencesPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".pentestai", "preferences.toml"), nil
}

// LoadPreferences reads preferences from path. A missing file yields empty preferences.
func LoadPreferences(path string) (Preferences, error) {
	var p Preferences
	if _, err := toml.DecodeFile(path, &p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Preferences{}, nil
		}
		return Preferences{}, fmt.Errorf("failed to read preferences %s: %w", path, err)
	}
	return p, nil
}

// Save writes the preferences to path, creating its directory.
func (p Preferences) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create preferences directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(p); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode preferences: %w", err)
	}
	return f.Close()
}

// ResolveBaseURL picks the relay address: an explicit value, then
// PENTESTAI_RELAY, then the saved preference, then DefaultBaseURL.
func ResolveBaseURL(explicit string, prefs Preferences) string {
	for _, v := range []string{explicit, os.Getenv("PENTESTAI_RELAY"), prefs.Relay} {
		if v != "" {
			return v
		}
	}
	return DefaultBaseURL
}

// LoadDefaultPreferences reads the preferences at DefaultPreferencesPath,
// returning empty preferences when they cannot be read.
func LoadDefaultPreferences() Preferences {
	path, err := DefaultPreferencesPath()
	if err != nil {
		return Preferences{}
	}
	prefs, err := LoadPreferences(path)
	if err != nil {
		return Preferences{}
	}
	return prefs
}
