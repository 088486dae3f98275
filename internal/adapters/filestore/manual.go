package filestore

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/ghalamif/opcbridge/internal/domain"
)

// ManualNodes keeps operator-added nodes that the catalog traversal did not
// produce, in the same CSV form as the selection file.
type ManualNodes struct {
	path string
	mu   sync.Mutex
}

func NewManualNodes(path string) *ManualNodes {
	return &ManualNodes{path: path}
}

func (m *ManualNodes) Path() string { return m.path }

// Load returns nil for a missing file.
func (m *ManualNodes) Load() ([]domain.SelectionEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLocked()
}

// Add appends e, or updates the description and browse name of an entry
// with the same id. The file is rewritten atomically.
func (m *ManualNodes) Add(e domain.SelectionEntry) error {
	if err := e.NodeID.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := m.loadLocked()
	if err != nil {
		return err
	}
	replaced := false
	for i := range entries {
		if entries[i].NodeID == e.NodeID {
			entries[i] = e
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, e)
	}

	data, err := encodeEntries(entries)
	if err != nil {
		return fmt.Errorf("encode manual nodes: %w", err)
	}
	return writeFileAtomic(m.path, data, 0o644)
}

func (m *ManualNodes) loadLocked() ([]domain.SelectionEntry, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	entries, err := parseSelection(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.path, err)
	}
	return entries, nil
}
