package ports

import "github.com/ghalamif/opcbridge/internal/domain"

// SelectionStore persists the set of monitored nodes with whole-set
// replace semantics.
type SelectionStore interface {
	Load() ([]domain.SelectionEntry, error)
	Replace(entries []domain.SelectionEntry) error
}

type SettingsStore interface {
	Load() (domain.Settings, error)
	Save(s domain.Settings) error
}
