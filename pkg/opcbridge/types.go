package opcbridge

import (
	"github.com/ghalamif/opcbridge/internal/domain"
	"github.com/ghalamif/opcbridge/internal/ports"
)

// Source is a connected OPC UA session (browse + read).
type Source = ports.Source

// Bus publishes and subscribes telemetry messages.
type Bus = ports.Bus

// MessageHandler receives bus messages.
type MessageHandler = ports.MessageHandler

// Sink persists batches of points to a metric store.
type Sink = ports.Sink

// Observability emits metrics and structured logs.
type Observability = ports.Observability

// Field is a structured log field used by Observability implementations.
type Field = ports.Field

type (
	NodeID         = domain.NodeID
	NodeClass      = domain.NodeClass
	QualifiedName  = domain.QualifiedName
	CatalogNode    = domain.CatalogNode
	SelectionEntry = domain.SelectionEntry
	Settings       = domain.Settings
	Point          = domain.Point
	WorkerKind     = domain.WorkerKind
	WorkerStatus   = domain.WorkerStatus
)

const (
	WorkerPoller = domain.WorkerPoller
	WorkerWriter = domain.WorkerWriter
)

var (
	ErrSessionClosed = ports.ErrSessionClosed
	ErrNodeAbsent    = ports.ErrNodeAbsent
)
