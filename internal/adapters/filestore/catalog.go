package filestore

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ghalamif/opcbridge/internal/domain"
)

// CatalogHeader is the column layout of the exported node catalog.
var CatalogHeader = []string{"NodeId", "BrowseName", "ParentNodeId", "DataType", "DisplayName", "Description"}

// CatalogFile is the CSV artifact produced by a catalog export.
type CatalogFile struct {
	path string
}

func NewCatalogFile(path string) *CatalogFile {
	return &CatalogFile{path: path}
}

func (c *CatalogFile) Path() string { return c.path }

// Write replaces the catalog with nodes; the previous snapshot is superseded
// entirely.
func (c *CatalogFile) Write(nodes []domain.CatalogNode) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(CatalogHeader); err != nil {
		return err
	}
	for _, n := range nodes {
		rec := []string{
			n.NodeID.String(),
			n.BrowseName,
			n.ParentNodeID.String(),
			n.DataType,
			n.DisplayName,
			n.Description,
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	return writeFileAtomic(c.path, buf.Bytes(), 0o644)
}

// Read returns the last exported snapshot, or no nodes if none was exported.
func (c *CatalogFile) Read() ([]domain.CatalogNode, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", c.path, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	idx := columnIndex(records[0])
	col := func(rec []string, name string) string {
		i, ok := idx[strings.ToLower(name)]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}
	if _, ok := idx["nodeid"]; !ok {
		return nil, fmt.Errorf("parse catalog %s: missing NodeId column", c.path)
	}

	nodes := make([]domain.CatalogNode, 0, len(records)-1)
	for _, rec := range records[1:] {
		id := col(rec, "NodeId")
		if id == "" {
			continue
		}
		nodes = append(nodes, domain.CatalogNode{
			NodeID:       domain.NodeID(id),
			BrowseName:   col(rec, "BrowseName"),
			ParentNodeID: domain.NodeID(col(rec, "ParentNodeId")),
			DataType:     col(rec, "DataType"),
			DisplayName:  col(rec, "DisplayName"),
			Description:  col(rec, "Description"),
		})
	}
	return nodes, nil
}

// Available derives the selectable node list from the catalog.
func (c *CatalogFile) Available() ([]domain.SelectionEntry, error) {
	nodes, err := c.Read()
	if err != nil {
		return nil, err
	}
	return domain.AvailableFromCatalog(nodes), nil
}

func columnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	return idx
}
