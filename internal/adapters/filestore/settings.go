package filestore

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ghalamif/opcbridge/internal/domain"
	"github.com/ghalamif/opcbridge/internal/ports"
)

var errInvalidSettings = errors.New("invalid settings file")

// SettingsStore keeps the runtime-tunable settings in a small YAML file.
type SettingsStore struct {
	path     string
	defaults domain.Settings

	// OnHeal is called when a missing or invalid file was replaced by the
	// defaults.
	OnHeal func(path string, cause error)

	mu sync.Mutex
}

func NewSettingsStore(path string, defaults domain.Settings) *SettingsStore {
	if defaults.PollInterval <= 0 {
		defaults.PollInterval = 5 * time.Second
	}
	return &SettingsStore{path: path, defaults: defaults}
}

func (s *SettingsStore) Path() string { return s.path }

func (s *SettingsStore) Load() (domain.Settings, error) {
	st, err := s.read()
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, os.ErrNotExist) && !errors.Is(err, errInvalidSettings) {
		return s.defaults, err
	}
	return s.heal()
}

func (s *SettingsStore) Save(st domain.Settings) error {
	if st.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be > 0, got %s", st.PollInterval)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(st)
}

func (s *SettingsStore) read() (domain.Settings, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return domain.Settings{}, err
	}
	var st domain.Settings
	if err := yaml.Unmarshal(raw, &st); err != nil {
		return domain.Settings{}, fmt.Errorf("%w: %v", errInvalidSettings, err)
	}
	if st.PollInterval <= 0 {
		return domain.Settings{}, fmt.Errorf("%w: poll_interval must be > 0, got %s", errInvalidSettings, st.PollInterval)
	}
	return st, nil
}

// heal re-reads under the lock so a concurrent Save is not overwritten.
func (s *SettingsStore) heal() (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, cause := s.read()
	if cause == nil {
		return st, nil
	}
	if !errors.Is(cause, os.ErrNotExist) && !errors.Is(cause, errInvalidSettings) {
		return s.defaults, cause
	}
	if err := s.writeLocked(s.defaults); err != nil {
		return s.defaults, err
	}
	if s.OnHeal != nil {
		s.OnHeal(s.path, cause)
	}
	return s.defaults, nil
}

func (s *SettingsStore) writeLocked(st domain.Settings) error {
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return writeFileAtomic(s.path, data, 0o644)
}

var _ ports.SettingsStore = (*SettingsStore)(nil)
