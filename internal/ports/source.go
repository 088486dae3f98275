package ports

import (
	"context"
	"errors"

	"github.com/ghalamif/opcbridge/internal/domain"
)

var (
	// ErrSessionClosed marks a lost or refused connection to the source
	// server. It is fatal to whoever owns the session.
	ErrSessionClosed = errors.New("source session closed")
	// ErrNodeAbsent marks a node that does not exist on the server.
	ErrNodeAbsent = errors.New("node absent")
)

// Browser is the address-space side of a source session.
type Browser interface {
	Children(ctx context.Context, id domain.NodeID) ([]domain.NodeID, error)
	Parent(ctx context.Context, id domain.NodeID) (domain.NodeID, error)
	BrowseName(ctx context.Context, id domain.NodeID) (domain.QualifiedName, error)
	NodeClass(ctx context.Context, id domain.NodeID) (domain.NodeClass, error)
	DataType(ctx context.Context, id domain.NodeID) (domain.NodeID, error)
	DisplayName(ctx context.Context, id domain.NodeID) (string, error)
	Description(ctx context.Context, id domain.NodeID) (string, error)
}

// ValueReader reads the current value of a variable node.
type ValueReader interface {
	ReadValue(ctx context.Context, id domain.NodeID) (any, error)
}

type Source interface {
	Browser
	ValueReader
	Close(ctx context.Context) error
}
