package opcua

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/id"
	"github.com/gopcua/opcua/ua"

	"github.com/ghalamif/opcbridge/internal/domain"
	"github.com/ghalamif/opcbridge/internal/ports"
)

// Session is a connected OPC UA client exposing the browse and read
// operations the bridge consumes.
type Session struct {
	cfg    Config
	client *opcua.Client
}

// Dial connects to the configured endpoint. A failure here is a connection
// error and is never retried.
func Dial(ctx context.Context, cfg Config) (*Session, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := opcua.NewClient(cfg.Endpoint, buildClientOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("opcua new client: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		return nil, fmt.Errorf("opcua connect %s: %w: %v", cfg.Endpoint, ports.ErrSessionClosed, err)
	}

	return &Session{cfg: cfg, client: client}, nil
}

func (s *Session) Close(ctx context.Context) error {
	if err := s.client.Close(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (s *Session) Children(ctx context.Context, nodeID domain.NodeID) ([]domain.NodeID, error) {
	n, err := s.node(nodeID)
	if err != nil {
		return nil, err
	}
	refs, err := n.ReferencedNodes(ctx, id.HierarchicalReferences, ua.BrowseDirectionForward, ua.NodeClassAll, true)
	if err != nil {
		return nil, s.classify(nodeID, err)
	}
	out := make([]domain.NodeID, 0, len(refs))
	for _, ref := range refs {
		out = append(out, domain.NodeID(ref.ID.String()))
	}
	return out, nil
}

func (s *Session) Parent(ctx context.Context, nodeID domain.NodeID) (domain.NodeID, error) {
	n, err := s.node(nodeID)
	if err != nil {
		return "", err
	}
	refs, err := n.ReferencedNodes(ctx, id.HierarchicalReferences, ua.BrowseDirectionInverse, ua.NodeClassAll, true)
	if err != nil {
		return "", s.classify(nodeID, err)
	}
	if len(refs) == 0 {
		return "", nil
	}
	return domain.NodeID(refs[0].ID.String()), nil
}

func (s *Session) BrowseName(ctx context.Context, nodeID domain.NodeID) (domain.QualifiedName, error) {
	n, err := s.node(nodeID)
	if err != nil {
		return domain.QualifiedName{}, err
	}
	qn, err := n.BrowseName(ctx)
	if err != nil {
		return domain.QualifiedName{}, s.classify(nodeID, err)
	}
	if qn == nil {
		return domain.QualifiedName{}, nil
	}
	return domain.QualifiedName{NamespaceIndex: qn.NamespaceIndex, Name: qn.Name}, nil
}

func (s *Session) NodeClass(ctx context.Context, nodeID domain.NodeID) (domain.NodeClass, error) {
	n, err := s.node(nodeID)
	if err != nil {
		return domain.NodeClassUnspecified, err
	}
	nc, err := n.NodeClass(ctx)
	if err != nil {
		return domain.NodeClassUnspecified, s.classify(nodeID, err)
	}
	return domain.NodeClass(nc), nil
}

func (s *Session) DataType(ctx context.Context, nodeID domain.NodeID) (domain.NodeID, error) {
	n, err := s.node(nodeID)
	if err != nil {
		return "", err
	}
	v, err := n.Attribute(ctx, ua.AttributeIDDataType)
	if err != nil {
		return "", s.classify(nodeID, err)
	}
	if v == nil {
		return "", fmt.Errorf("data type of %s: empty attribute", nodeID)
	}
	typeID, ok := v.Value().(*ua.NodeID)
	if !ok || typeID == nil {
		return "", fmt.Errorf("data type of %s: unexpected %T", nodeID, v.Value())
	}
	return domain.NodeID(typeID.String()), nil
}

func (s *Session) DisplayName(ctx context.Context, nodeID domain.NodeID) (string, error) {
	n, err := s.node(nodeID)
	if err != nil {
		return "", err
	}
	lt, err := n.DisplayName(ctx)
	if err != nil {
		return "", s.classify(nodeID, err)
	}
	if lt == nil {
		return "", nil
	}
	return lt.Text, nil
}

func (s *Session) Description(ctx context.Context, nodeID domain.NodeID) (string, error) {
	n, err := s.node(nodeID)
	if err != nil {
		return "", err
	}
	lt, err := n.Description(ctx)
	if err != nil {
		return "", s.classify(nodeID, err)
	}
	if lt == nil {
		return "", nil
	}
	return lt.Text, nil
}

func (s *Session) ReadValue(ctx context.Context, nodeID domain.NodeID) (any, error) {
	n, err := s.node(nodeID)
	if err != nil {
		return nil, err
	}
	readCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()
	v, err := n.Value(readCtx)
	if err != nil {
		return nil, s.classify(nodeID, err)
	}
	val, err := scalarValue(v)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", nodeID, err)
	}
	return val, nil
}

func (s *Session) node(nodeID domain.NodeID) (*opcua.Node, error) {
	parsed, err := ua.ParseNodeID(nodeID.String())
	if err != nil {
		return nil, fmt.Errorf("parse node id %q: %w", nodeID, err)
	}
	return s.client.Node(parsed), nil
}

// classify separates "this node is gone" from "the server is gone" so
// callers can keep going on the former and bail out on the latter.
func (s *Session) classify(nodeID domain.NodeID, err error) error {
	if s.client.State() != opcua.Connected {
		return fmt.Errorf("node %s: %w: %v", nodeID, ports.ErrSessionClosed, err)
	}
	if errors.Is(err, ua.StatusBadNodeIDUnknown) || errors.Is(err, ua.StatusBadNodeIDInvalid) {
		return fmt.Errorf("node %s: %w: %v", nodeID, ports.ErrNodeAbsent, err)
	}
	return fmt.Errorf("node %s: %w", nodeID, err)
}

func buildClientOptions(cfg Config) []opcua.Option {
	opts := []opcua.Option{
		opcua.SecurityModeString(normalizeSecurityMode(cfg.SecurityMode)),
		opcua.SecurityPolicy(normalizeSecurityPolicy(cfg.SecurityPolicy)),
		opcua.ApplicationName(cfg.ApplicationName),
		opcua.RequestTimeout(cfg.RequestTimeout),
		opcua.AutoReconnect(true),
	}

	if cfg.Username != "" {
		opts = append(opts, opcua.AuthUsername(cfg.Username, cfg.Password))
	} else {
		opts = append(opts, opcua.AuthAnonymous())
	}

	return opts
}

func normalizeSecurityMode(mode string) string {
	switch strings.ToLower(mode) {
	case "sign":
		return "Sign"
	case "signandencrypt", "signencrypt", "sign_and_encrypt", "sign+encrypt":
		return "SignAndEncrypt"
	default:
		return "None"
	}
}

func normalizeSecurityPolicy(policy string) string {
	if policy == "" {
		return "None"
	}
	return policy
}

var _ ports.Source = (*Session)(nil)
