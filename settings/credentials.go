// Package settings stores potm user credentials.
//
// Credentials live in the XDG data directory:
//
//	$XDG_DATA_HOME/potm/auth.json  (default: ~/.local/share/potm/auth.json)
//
// The file is a JSON object keyed by service ID ("deepl"), with 0600
// permissions.
//
// Lookup order for the DeepL key:
//  1. --api-key flag (highest priority)
//  2. DEEPL_AUTH_KEY environment variable (or .env)
//  3. This credential store
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	dataDirName = "potm"
	fileName    = "auth.json"

	// ServiceDeepL is the store key of the DeepL authentication key.
	ServiceDeepL = "deepl"
)

// Info is a stored credential.
type Info struct {
	Type string `json:"type"`
	Key  string `json:"key"`
	// BaseURL overrides the API host chosen from the key.
	BaseURL string `json:"baseUrl,omitempty"`
	// Added is when the key was stored.
	Added time.Time `json:"added,omitempty"`
}

// Store holds all credentials, keyed by service ID.
type Store map[string]*Info

// ---------------------------------------------------------------------------
// File path
// ---------------------------------------------------------------------------

func dataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, dataDirName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", dataDirName), nil
}

func filePath() (string, error) {
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}

// FilePath returns the auth.json path for display purposes.
func FilePath() string {
	p, err := filePath()
	if err != nil {
		return ""
	}
	return p
}

// DataDir returns the potm data directory.
func DataDir() (string, error) {
	return dataDir()
}

// ---------------------------------------------------------------------------
// Load / Save
// ---------------------------------------------------------------------------

// Load reads the credential store. A missing or unreadable file yields an
// empty store.
func Load() Store {
	path, err := filePath()
	if err != nil {
		return make(Store)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return make(Store)
	}

	var store Store
	if err := json.Unmarshal(data, &store); err != nil || store == nil {
		return make(Store)
	}
	return store
}

// Save writes the credential store with 0600 permissions.
func Save(store Store) error {
	path, err := filePath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling credentials: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing auth file: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Keys
// ---------------------------------------------------------------------------

// SetAPIKey stores a key for a service.
func SetAPIKey(service, key, baseURL string) error {
	store := Load()
	store[service] = &Info{Type: "api", Key: key, BaseURL: baseURL, Added: time.Now().UTC()}
	return Save(store)
}

// Get returns the stored credential of a service, or nil.
func Get(service string) *Info {
	return Load()[service]
}

// GetAPIKey returns the stored key of a service, or "".
func GetAPIKey(service string) string {
	if info := Get(service); info != nil {
		return info.Key
	}
	return ""
}

// Remove deletes the credential of a service.
func Remove(service string) error {
	store := Load()
	if _, ok := store[service]; !ok {
		return nil
	}
	delete(store, service)
	return Save(store)
}

// RemoveAll deletes the credential file.
func RemoveAll() error {
	path, err := filePath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing auth file: %w", err)
	}
	return nil
}

// Key sources reported by ResolveAPIKey.
const (
	SourceFlag  = "flag"
	SourceEnv   = "environment"
	SourceStore = "auth store"
)

// ResolveAPIKey applies the lookup order: flag, then environment, then the
// store. It returns the key and where it came from, or two empty strings.
func ResolveAPIKey(service, flagValue, envValue string) (key, source string) {
	switch {
	case flagValue != "":
		return flagValue, SourceFlag
	case envValue != "":
		return envValue, SourceEnv
	}
	if k := GetAPIKey(service); k != "" {
		return k, SourceStore
	}
	return "", ""
}

// MaskKey returns a masked version of a key for display.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
