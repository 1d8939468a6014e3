package auth

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/goliatone/go-errors"
)

// TokenStorageKey is the fixed key the session token is stored under
const TokenStorageKey = "access_token"

// MemoryTokenStorage keeps the token for the life of the process
type MemoryTokenStorage struct {
	mu    sync.RWMutex
	token string
}

// NewMemoryTokenStorage returns storage seeded with token (may be empty)
func NewMemoryTokenStorage(token string) *MemoryTokenStorage {
	return &MemoryTokenStorage{token: token}
}

func (m *MemoryTokenStorage) LoadToken() (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, nil
}

func (m *MemoryTokenStorage) SaveToken(token string) error {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	return nil
}

func (m *MemoryTokenStorage) DeleteToken() error {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
	return nil
}

// FileTokenStorage persists the token as a small JSON document readable
// only by the current user.
type FileTokenStorage struct {
	path string
	mu   sync.Mutex
}

// NewFileTokenStorage stores the token at path
func NewFileTokenStorage(path string) *FileTokenStorage {
	return &FileTokenStorage{path: path}
}

// DefaultTokenPath resolves <user config dir>/<app>/session.json
func DefaultTokenPath(app string) (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to resolve user config directory").
			WithTextCode(TextCodeStorage)
	}
	return filepath.Join(dir, app, "session.json"), nil
}

// Path returns the file location
func (f *FileTokenStorage) Path() string {
	return f.path
}

func (f *FileTokenStorage) LoadToken() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to read token storage").
			WithTextCode(TextCodeStorage).
			WithMetadata(map[string]any{"path": f.path})
	}

	doc := map[string]string{}
	if err := json.Unmarshal(b, &doc); err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to parse token storage").
			WithTextCode(TextCodeStorage).
			WithMetadata(map[string]any{"path": f.path})
	}

	return strings.TrimSpace(doc[TokenStorageKey]), nil
}

func (f *FileTokenStorage) SaveToken(token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to create token directory").
			WithTextCode(TextCodeStorage)
	}

	b, err := json.MarshalIndent(map[string]string{TokenStorageKey: token}, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to encode token storage").
			WithTextCode(TextCodeStorage)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to write token storage").
			WithTextCode(TextCodeStorage)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, errors.CategoryInternal, "failed to replace token storage").
			WithTextCode(TextCodeStorage)
	}
	return nil
}

func (f *FileTokenStorage) DeleteToken() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, errors.CategoryInternal, "failed to remove token storage").
			WithTextCode(TextCodeStorage).
			WithMetadata(map[string]any{"path": f.path})
	}
	return nil
}
