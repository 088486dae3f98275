package filestore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghalamif/opcbridge/internal/domain"
)

func TestSelectionLoadMissingCreatesHeaderOnlyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "selected.csv")
	store := NewSelectionStore(path)

	var healed bool
	store.OnHeal = func(string, error) { healed = true }

	entries, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.True(t, healed)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "node_id,description\n", string(raw))
}

func TestSelectionReplaceEmptyThenLoad(t *testing.T) {
	store := NewSelectionStore(filepath.Join(t.TempDir(), "selected.csv"))

	require.NoError(t, store.Replace([]domain.SelectionEntry{{NodeID: "ns=2;i=5", Description: "x"}}))
	require.NoError(t, store.Replace(nil))

	entries, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSelectionRoundTrip(t *testing.T) {
	store := NewSelectionStore(filepath.Join(t.TempDir(), "selected.csv"))

	want := []domain.SelectionEntry{
		{NodeID: "ns=2;i=5", Description: "Boiler temperature"},
		{NodeID: "ns=2;s=Line1.Speed", Description: "speed, in rpm"},
		{NodeID: "ns=2;i=9", Description: ""},
	}
	require.NoError(t, store.Replace(want))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSelectionExtendedForm(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selected.csv")
	store := NewSelectionStore(path)

	want := []domain.SelectionEntry{
		{NodeID: "ns=2;i=5", BrowseName: "2:Temperature", Description: "Boiler temperature"},
	}
	require.NoError(t, store.Replace(want))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "node_id,browse_name,description\n")

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSelectionHeaderDecidesColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selected.csv")
	require.NoError(t, os.WriteFile(path, []byte("description,node_id\nPressure,ns=2;i=7\n"), 0o644))

	got, err := NewSelectionStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, []domain.SelectionEntry{{NodeID: "ns=2;i=7", Description: "Pressure"}}, got)
}

func TestSelectionCorruptFileIsSetAside(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selected.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,name\n1,2\n"), 0o644))

	store := NewSelectionStore(path)
	entries, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = os.Stat(path + ".corrupt")
	assert.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "node_id,description\n", string(raw))
}

func TestSelectionReplaceRejectsEmptyID(t *testing.T) {
	store := NewSelectionStore(filepath.Join(t.TempDir(), "selected.csv"))
	err := store.Replace([]domain.SelectionEntry{{NodeID: " "}})
	require.Error(t, err)
}

func TestSelectionReplaceRejectsPaddedID(t *testing.T) {
	store := NewSelectionStore(filepath.Join(t.TempDir(), "selected.csv"))
	err := store.Replace([]domain.SelectionEntry{{NodeID: "ns=2;s=Tank Level ", Description: "level"}})
	require.Error(t, err)

	require.NoError(t, store.Replace([]domain.SelectionEntry{{NodeID: "ns=2;s=Tank Level", Description: "level"}}))
	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, []domain.SelectionEntry{{NodeID: "ns=2;s=Tank Level", Description: "level"}}, got)
}

func TestSelectionHealKeepsConcurrentReplace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selected.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,name\n1,2\n"), 0o644))
	store := NewSelectionStore(path)

	var healed bool
	store.OnHeal = func(string, error) { healed = true }

	// The unlocked read sees the broken file, then an operator save lands
	// before the heal takes the lock.
	_, err := store.read()
	require.ErrorIs(t, err, errInvalidSelection)
	want := []domain.SelectionEntry{{NodeID: "ns=2;s=X", Description: "temp"}}
	require.NoError(t, store.Replace(want))

	got, err := store.heal()
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.False(t, healed)
	_, err = os.Stat(path + ".corrupt")
	assert.True(t, os.IsNotExist(err))

	got, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSelectionCorruptBackupsAreNotOverwritten(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selected.csv")
	store := NewSelectionStore(path)

	for _, body := range []string{"first\n", "second\n"} {
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		_, err := store.Load()
		require.NoError(t, err)
	}

	first, err := os.ReadFile(path + ".corrupt")
	require.NoError(t, err)
	assert.Equal(t, "first\n", string(first))
	second, err := os.ReadFile(path + ".corrupt.1")
	require.NoError(t, err)
	assert.Equal(t, "second\n", string(second))
}

func TestAtomicWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewSelectionStore(filepath.Join(dir, "selected.csv"))
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Replace([]domain.SelectionEntry{{NodeID: "ns=2;i=1"}}))
	}

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "selected.csv", files[0].Name())
}

func TestCatalogWriteRead(t *testing.T) {
	cat := NewCatalogFile(filepath.Join(t.TempDir(), "nodes.csv"))

	nodes := []domain.CatalogNode{
		{NodeID: "ns=2;i=1", BrowseName: "2:Plant", DisplayName: "Plant", Class: domain.NodeClassObject},
		{NodeID: "ns=2;i=5", BrowseName: "2:Temperature", ParentNodeID: "ns=2;i=1", DataType: "Int32", DisplayName: "Temperature", Description: "Boiler, inlet", Class: domain.NodeClassVariable},
	}
	require.NoError(t, cat.Write(nodes))

	got, err := cat.Read()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.NodeID("ns=2;i=1"), got[1].ParentNodeID)
	assert.Equal(t, "Boiler, inlet", got[1].Description)
	assert.Equal(t, "Int32", got[1].DataType)

	avail, err := cat.Available()
	require.NoError(t, err)
	assert.Equal(t, []domain.SelectionEntry{{NodeID: "ns=2;i=5", BrowseName: "2:Temperature", Description: "Boiler, inlet"}}, avail)
}

func TestCatalogReadMissing(t *testing.T) {
	got, err := NewCatalogFile(filepath.Join(t.TempDir(), "nodes.csv")).Read()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSettingsLoadSelfHeals(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runtime.yaml")
	store := NewSettingsStore(path, domain.Settings{PollInterval: 5 * time.Second})

	st, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, st.PollInterval)

	require.NoError(t, os.WriteFile(path, []byte("poll_interval: nonsense\n"), 0o644))
	st, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, st.PollInterval)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "poll_interval: 5s")
}

func TestSettingsHealKeepsConcurrentSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runtime.yaml")
	require.NoError(t, os.WriteFile(path, []byte("poll_interval: -1s\n"), 0o644))
	store := NewSettingsStore(path, domain.Settings{PollInterval: 5 * time.Second})

	_, err := store.read()
	require.ErrorIs(t, err, errInvalidSettings)
	require.NoError(t, store.Save(domain.Settings{PollInterval: 2 * time.Second}))

	st, err := store.heal()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, st.PollInterval)
}

func TestSettingsSaveLoad(t *testing.T) {
	store := NewSettingsStore(filepath.Join(t.TempDir(), "runtime.yaml"), domain.Settings{})

	require.NoError(t, store.Save(domain.Settings{PollInterval: 1500 * time.Millisecond}))
	st, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, st.PollInterval)

	assert.Error(t, store.Save(domain.Settings{PollInterval: 0}))
}

func TestManualNodesAddAndUpdate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manual_nodes.csv")
	manual := NewManualNodes(path)

	got, err := manual.Load()
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, manual.Add(domain.SelectionEntry{NodeID: "ns=2;s=Flow", Description: "flow"}))
	require.NoError(t, manual.Add(domain.SelectionEntry{NodeID: "ns=2;s=Level", Description: "level, tank 1"}))
	require.NoError(t, manual.Add(domain.SelectionEntry{NodeID: "ns=2;s=Flow", Description: "flow meter"}))

	got, err = manual.Load()
	require.NoError(t, err)
	assert.Equal(t, []domain.SelectionEntry{
		{NodeID: "ns=2;s=Flow", Description: "flow meter"},
		{NodeID: "ns=2;s=Level", Description: "level, tank 1"},
	}, got)

	err = manual.Add(domain.SelectionEntry{NodeID: "ns=2;s=Flow "})
	require.ErrorIs(t, err, domain.ErrInvalidNodeID)
}
