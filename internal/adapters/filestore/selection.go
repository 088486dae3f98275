package filestore

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/ghalamif/opcbridge/internal/domain"
	"github.com/ghalamif/opcbridge/internal/ports"
)

var (
	selectionHeader         = []string{"node_id", "description"}
	extendedSelectionHeader = []string{"node_id", "browse_name", "description"}

	errInvalidSelection = errors.New("invalid selection file")
)

// SelectionStore keeps the monitored node set in a CSV file. Every write
// replaces the whole file atomically.
type SelectionStore struct {
	path string

	// OnHeal is called when a missing or unreadable file was replaced by an
	// empty default.
	OnHeal func(path string, cause error)

	mu sync.Mutex
}

func NewSelectionStore(path string) *SelectionStore {
	return &SelectionStore{path: path}
}

func (s *SelectionStore) Path() string { return s.path }

func (s *SelectionStore) Load() ([]domain.SelectionEntry, error) {
	entries, err := s.read()
	if err == nil {
		return entries, nil
	}
	if !errors.Is(err, os.ErrNotExist) && !errors.Is(err, errInvalidSelection) {
		return nil, err
	}
	return s.heal()
}

// Replace rejects ids that are empty or carry surrounding whitespace, since
// neither would load back unchanged.
func (s *SelectionStore) Replace(entries []domain.SelectionEntry) error {
	for i, e := range entries {
		if err := e.NodeID.Validate(); err != nil {
			return fmt.Errorf("selection entry %d: %w", i, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(entries)
}

func (s *SelectionStore) read() ([]domain.SelectionEntry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	return parseSelection(data)
}

// heal re-reads the file under the lock, so a Replace that landed after the
// unlocked read is returned as is. Only a file that is still missing or
// unparseable is replaced by a header-only one; an unparseable file is kept
// beside it under a fresh .corrupt name.
func (s *SelectionStore) heal() ([]domain.SelectionEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, cause := s.read()
	switch {
	case cause == nil:
		return entries, nil
	case errors.Is(cause, os.ErrNotExist):
	case errors.Is(cause, errInvalidSelection):
		if err := os.Rename(s.path, s.backupName()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("set aside %s: %w", s.path, err)
		}
	default:
		return nil, cause
	}

	if err := s.writeLocked(nil); err != nil {
		return nil, err
	}
	if s.OnHeal != nil {
		s.OnHeal(s.path, cause)
	}
	return nil, nil
}

func (s *SelectionStore) backupName() string {
	name := s.path + ".corrupt"
	for i := 1; ; i++ {
		if _, err := os.Stat(name); errors.Is(err, os.ErrNotExist) {
			return name
		}
		name = fmt.Sprintf("%s.corrupt.%d", s.path, i)
	}
}

func (s *SelectionStore) writeLocked(entries []domain.SelectionEntry) error {
	data, err := encodeEntries(entries)
	if err != nil {
		return fmt.Errorf("encode selection: %w", err)
	}
	return writeFileAtomic(s.path, data, 0o644)
}

// encodeEntries writes the extended header only when some entry carries a
// browse name.
func encodeEntries(entries []domain.SelectionEntry) ([]byte, error) {
	extended := false
	for _, e := range entries {
		if e.BrowseName != "" {
			extended = true
			break
		}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if extended {
		_ = w.Write(extendedSelectionHeader)
	} else {
		_ = w.Write(selectionHeader)
	}
	for _, e := range entries {
		rec := []string{e.NodeID.String(), e.Description}
		if extended {
			rec = []string{e.NodeID.String(), e.BrowseName, e.Description}
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func parseSelection(data []byte) ([]domain.SelectionEntry, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidSelection, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no header", errInvalidSelection)
	}

	idx := columnIndex(records[0])
	nodeCol, ok := idx["node_id"]
	if !ok {
		return nil, fmt.Errorf("%w: missing node_id column", errInvalidSelection)
	}
	descCol, hasDesc := idx["description"]
	browseCol, hasBrowse := idx["browse_name"]

	entries := make([]domain.SelectionEntry, 0, len(records)-1)
	for _, rec := range records[1:] {
		if nodeCol >= len(rec) || strings.TrimSpace(rec[nodeCol]) == "" {
			continue
		}
		e := domain.SelectionEntry{NodeID: domain.NodeID(strings.TrimSpace(rec[nodeCol]))}
		if hasDesc && descCol < len(rec) {
			e.Description = rec[descCol]
		}
		if hasBrowse && browseCol < len(rec) {
			e.BrowseName = rec[browseCol]
		}
		entries = append(entries, e)
	}
	return entries, nil
}

var _ ports.SelectionStore = (*SelectionStore)(nil)
