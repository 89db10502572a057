package keys

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

const (
	appName         = "prodstudio"
	fileName        = "keys.json"
	ConfigDirEnv    = "STUDIO_CONFIG_DIR"
	DefaultProvider = "gemini"
)

var ErrNoKey = errors.New("no stored key")

// Store keeps API keys per provider in a 0600 JSON file.
type Store struct {
	configDir string
}

type Entry struct {
	Key       string    `json:"key"`
	UpdatedAt time.Time `json:"updated_at"`
}

type entries map[string]Entry

func NewStore() (*Store, error) {
	dir, err := configDir()
	if err != nil {
		return nil, err
	}
	return &Store{configDir: dir}, nil
}

// NewStoreAt uses dir instead of the platform config directory.
func NewStoreAt(dir string) *Store {
	return &Store{configDir: dir}
}

func configDir() (string, error) {
	if dir := os.Getenv(ConfigDirEnv); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	return filepath.Join(base, appName), nil
}

func (s *Store) Path() string {
	return filepath.Join(s.configDir, fileName)
}

func (s *Store) read() (entries, error) {
	data, err := os.ReadFile(s.Path())
	if errors.Is(err, os.ErrNotExist) {
		return entries{}, nil
	}
	if err != nil {
		return nil, err
	}

	e := entries{}
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", fileName, err)
	}
	return e, nil
}

func (s *Store) write(e entries) error {
	if err := os.MkdirAll(s.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.Path(), data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", fileName, err)
	}
	return nil
}

func (s *Store) Set(provider, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("empty key for %s", provider)
	}
	e, err := s.read()
	if err != nil {
		return err
	}
	e[provider] = Entry{Key: key, UpdatedAt: time.Now().UTC()}
	return s.write(e)
}

// Get returns ErrNoKey when nothing is stored for provider.
func (s *Store) Get(provider string) (string, error) {
	e, err := s.read()
	if err != nil {
		return "", err
	}
	entry, ok := e[provider]
	if !ok {
		return "", ErrNoKey
	}
	return entry.Key, nil
}

func (s *Store) Delete(provider string) error {
	e, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := e[provider]; !ok {
		return fmt.Errorf("%w for %s", ErrNoKey, provider)
	}
	delete(e, provider)
	return s.write(e)
}

// List returns the stored provider names, sorted.
func (s *Store) List() ([]string, error) {
	e, err := s.read()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(e))
	for name := range e {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func MaskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

// Resolver finds the API key: explicit flag, then the key store, then env vars in order.
type Resolver struct {
	Store   *Store
	GetEnv  func(string) string
	EnvVars []string
}

// Resolve returns the key and a human readable description of where it came from.
func (r *Resolver) Resolve(explicit, provider string) (string, string, error) {
	if explicit != "" {
		return explicit, "command-line flag", nil
	}
	if r.Store != nil {
		if key, err := r.Store.Get(provider); err == nil && key != "" {
			return key, "stored key (" + r.Store.Path() + ")", nil
		}
	}
	getenv := r.GetEnv
	if getenv == nil {
		getenv = os.Getenv
	}
	for _, name := range r.EnvVars {
		if v := getenv(name); v != "" {
			return v, "environment variable (" + name + ")", nil
		}
	}
	return "", "", fmt.Errorf("API key required: run '%s keys set' or set %s", appName, strings.Join(r.EnvVars, " or "))
}
