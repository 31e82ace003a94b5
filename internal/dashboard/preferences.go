package dashboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/i474232898/karwanua/internal/environment"
)

// ModelPreferenceKey is the preference key holding the AI model name.
const ModelPreferenceKey = "ai.model"

// PreferenceStore persists small string preferences.
type PreferenceStore interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// FilePreferenceStore keeps preferences in a JSON object on disk.
type FilePreferenceStore struct {
	path string
	mu   sync.Mutex
}

// NewFilePreferenceStore stores preferences at path. An empty path uses
// DefaultPreferencePath.
func NewFilePreferenceStore(path string) (*FilePreferenceStore, error) {
	if path == "" {
		p, err := DefaultPreferencePath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return &FilePreferenceStore{path: path}, nil
}

// DefaultPreferencePath is preferences.json under the user config directory.
func DefaultPreferencePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "karwanua", "preferences.json"), nil
}

// Path returns the preferences file location.
func (s *FilePreferenceStore) Path() string {
	return s.path
}

// Get reads key from the file. A missing file reports not found.
func (s *FilePreferenceStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefs, err := s.read()
	if err != nil {
		return "", false, err
	}
	v, ok := prefs[key]
	return v, ok, nil
}

// Set writes value under key, replacing the file atomically.
func (s *FilePreferenceStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefs, err := s.read()
	if err != nil {
		return err
	}
	prefs[key] = value

	raw, err := json.MarshalIndent(prefs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal preferences: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create preferences dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace preferences: %w", err)
	}
	return nil
}

func (s *FilePreferenceStore) read() (map[string]string, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read preferences: %w", err)
	}

	prefs := map[string]string{}
	if len(raw) == 0 {
		return prefs, nil
	}
	if err := json.Unmarshal(raw, &prefs); err != nil {
		return nil, &environment.ParseError{Raw: string(raw), Err: err}
	}
	return prefs, nil
}

// ModelPreference is the selected AI model. It is read from the store once
// and written through on every change; the last writer wins.
type ModelPreference struct {
	store  PreferenceStore
	logger *slog.Logger

	mu    sync.RWMutex
	model string
}

// NewModelPreference loads the stored model, falling back to defaultModel
// when none is stored or the store cannot be read.
func NewModelPreference(store PreferenceStore, defaultModel string, logger *slog.Logger) *ModelPreference {
	p := &ModelPreference{store: store, logger: logger, model: defaultModel}

	v, ok, err := store.Get(ModelPreferenceKey)
	switch {
	case err != nil:
		logger.Warn("failed to load model preference", "error", err)
	case ok && v != "":
		p.model = v
	}
	return p
}

// Get returns the current model name.
func (p *ModelPreference) Get() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.model
}

// Set changes the model and persists it. The in-memory value is updated even
// when persisting fails.
func (p *ModelPreference) Set(model string) error {
	if model == "" {
		return &environment.ValidationError{Field: "model", Message: "model is required"}
	}

	p.mu.Lock()
	p.model = model
	p.mu.Unlock()

	if err := p.store.Set(ModelPreferenceKey, model); err != nil {
		return fmt.Errorf("persist model preference: %w", err)
	}
	return nil
}
