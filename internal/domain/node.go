package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// NodeID is the canonical string form of an OPC UA node identifier, for
// example "ns=2;s=DB15.F101_XTT300_Bruede" or "i=85".
type NodeID string

func (id NodeID) String() string { return string(id) }

// ErrInvalidNodeID rejects ids that could not be stored and read back as is.
var ErrInvalidNodeID = errors.New("invalid node id")

// Validate rejects empty ids and ids with surrounding whitespace.
func (id NodeID) Validate() error {
	s := string(id)
	switch {
	case strings.TrimSpace(s) == "":
		return fmt.Errorf("%w: empty", ErrInvalidNodeID)
	case strings.TrimSpace(s) != s:
		return fmt.Errorf("%w: %q has surrounding whitespace", ErrInvalidNodeID, s)
	}
	return nil
}

// Namespace returns the namespace index carried by the id. Ids without an
// "ns=" prefix belong to namespace 0.
func (id NodeID) Namespace() uint16 {
	s := string(id)
	if !strings.HasPrefix(s, "ns=") {
		return 0
	}
	end := strings.IndexByte(s, ';')
	if end < 0 {
		return 0
	}
	n, err := strconv.ParseUint(s[3:end], 10, 16)
	if err != nil {
		return 0
	}
	return uint16(n)
}

// Short strips the namespace and identifier-type prefix so "ns=2;s=Tank.Level"
// becomes "Tank.Level". Downstream consumers key sensors by this name.
func (id NodeID) Short() string {
	s := string(id)
	if strings.HasPrefix(s, "ns=") {
		if i := strings.IndexByte(s, ';'); i >= 0 {
			s = s[i+1:]
		}
	}
	if len(s) > 2 && s[1] == '=' {
		switch s[0] {
		case 'i', 's', 'g', 'b':
			s = s[2:]
		}
	}
	return s
}

// NodeClass mirrors the OPC UA NodeClass bit values.
type NodeClass uint32

const (
	NodeClassUnspecified   NodeClass = 0
	NodeClassObject        NodeClass = 1
	NodeClassVariable      NodeClass = 2
	NodeClassMethod        NodeClass = 4
	NodeClassObjectType    NodeClass = 8
	NodeClassVariableType  NodeClass = 16
	NodeClassReferenceType NodeClass = 32
	NodeClassDataType      NodeClass = 64
	NodeClassView          NodeClass = 128
)

func (c NodeClass) String() string {
	switch c {
	case NodeClassObject:
		return "Object"
	case NodeClassVariable:
		return "Variable"
	case NodeClassMethod:
		return "Method"
	case NodeClassObjectType:
		return "ObjectType"
	case NodeClassVariableType:
		return "VariableType"
	case NodeClassReferenceType:
		return "ReferenceType"
	case NodeClassDataType:
		return "DataType"
	case NodeClassView:
		return "View"
	default:
		return "Unspecified"
	}
}

// QualifiedName is a browse name scoped to a namespace.
type QualifiedName struct {
	NamespaceIndex uint16
	Name           string
}

func (q QualifiedName) String() string {
	return fmt.Sprintf("%d:%s", q.NamespaceIndex, q.Name)
}

// CatalogNode is one row of the exported node catalog.
type CatalogNode struct {
	NodeID       NodeID
	BrowseName   string
	ParentNodeID NodeID
	DataType     string
	DisplayName  string
	Description  string
	Class        NodeClass
}

// IsVariable reports whether the node carries a value that can be polled.
func (n CatalogNode) IsVariable() bool {
	return n.Class == NodeClassVariable || n.DataType != ""
}

// AliasTable maps data-type node ids to human-readable type names.
type AliasTable map[NodeID]string

// Resolve returns the alias for id, falling back to the id's string form.
func (a AliasTable) Resolve(id NodeID) string {
	if name, ok := a[id]; ok && name != "" {
		return name
	}
	return id.String()
}
