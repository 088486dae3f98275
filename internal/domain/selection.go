package domain

import "time"

// SelectionEntry identifies one actively monitored node.
type SelectionEntry struct {
	NodeID      NodeID `json:"node_id"`
	BrowseName  string `json:"browse_name,omitempty"`
	Description string `json:"description"`
}

// AvailableFromCatalog derives the list of nodes an operator can select:
// variable nodes only, described by their description or, failing that,
// their display name.
func AvailableFromCatalog(nodes []CatalogNode) []SelectionEntry {
	out := make([]SelectionEntry, 0, len(nodes))
	for _, n := range nodes {
		if !n.IsVariable() {
			continue
		}
		desc := n.Description
		if desc == "" {
			desc = n.DisplayName
		}
		out = append(out, SelectionEntry{
			NodeID:      n.NodeID,
			BrowseName:  n.BrowseName,
			Description: desc,
		})
	}
	return out
}

// MergeAvailable appends the manually added entries to the catalog-derived
// list. An id already present keeps its first entry.
func MergeAvailable(derived, manual []SelectionEntry) []SelectionEntry {
	out := make([]SelectionEntry, 0, len(derived)+len(manual))
	seen := make(map[NodeID]struct{}, len(derived)+len(manual))
	for _, list := range [][]SelectionEntry{derived, manual} {
		for _, e := range list {
			if _, ok := seen[e.NodeID]; ok {
				continue
			}
			seen[e.NodeID] = struct{}{}
			out = append(out, e)
		}
	}
	return out
}

// PickSelection keeps the available entries whose ids appear in ids, in the
// order of the available list.
func PickSelection(available []SelectionEntry, ids []NodeID) []SelectionEntry {
	want := make(map[NodeID]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := make([]SelectionEntry, 0, len(ids))
	for _, e := range available {
		if _, ok := want[e.NodeID]; ok {
			out = append(out, e)
			delete(want, e.NodeID)
		}
	}
	return out
}

// Settings are the operator-tunable values the poller re-reads every cycle.
type Settings struct {
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
}
