package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/ghalamif/opcbridge/internal/domain"
	"github.com/ghalamif/opcbridge/internal/ports"
)

// Builder walks a source address space and produces the node catalog.
type Builder struct {
	src       ports.Browser
	obs       ports.Observability
	namespace uint16
}

func NewBuilder(src ports.Browser, obs ports.Observability, namespace uint16) *Builder {
	return &Builder{src: src, obs: obs, namespace: namespace}
}

// Build resolves the data type aliases under typesRoot, browses from root
// and exports the nodes of the configured namespace.
func (b *Builder) Build(ctx context.Context, root, typesRoot domain.NodeID) ([]domain.CatalogNode, error) {
	aliases, err := b.ResolveAliases(ctx, typesRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve aliases: %w", err)
	}
	ids, err := b.Browse(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("browse %s: %w", root, err)
	}
	nodes, err := b.Export(ctx, ids, aliases)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	b.obs.LogInfo("catalog_built",
		ports.Field{Key: "visited", Value: len(ids)},
		ports.Field{Key: "exported", Value: len(nodes)},
		ports.Field{Key: "aliases", Value: len(aliases)},
	)
	return nodes, nil
}

// ResolveAliases maps every node under typesRoot to its browse name. A
// branch that cannot be read is skipped; only a closed session aborts.
func (b *Builder) ResolveAliases(ctx context.Context, typesRoot domain.NodeID) (domain.AliasTable, error) {
	aliases := domain.AliasTable{}
	err := b.walk(ctx, typesRoot, func(id domain.NodeID) (bool, error) {
		name, err := b.src.BrowseName(ctx, id)
		if err != nil {
			return false, err
		}
		aliases[id] = name.Name
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return aliases, nil
}

// Browse returns every node reachable from root over hierarchical
// references, each once, in depth-first discovery order.
func (b *Builder) Browse(ctx context.Context, root domain.NodeID) ([]domain.NodeID, error) {
	var order []domain.NodeID
	err := b.walk(ctx, root, func(id domain.NodeID) (bool, error) {
		order = append(order, id)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// walk is a preorder depth-first traversal with an explicit stack. visit
// decides whether to descend into a node. Errors other than a closed
// session prune the branch.
func (b *Builder) walk(ctx context.Context, root domain.NodeID, visit func(domain.NodeID) (bool, error)) error {
	seen := map[domain.NodeID]struct{}{root: {}}
	stack := []domain.NodeID{root}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		descend, err := visit(id)
		if err != nil {
			if fatal(err) {
				return err
			}
			b.obs.LogError("catalog_branch_skipped", err, ports.Field{Key: "node_id", Value: id.String()})
			continue
		}
		if !descend {
			continue
		}

		children, err := b.src.Children(ctx, id)
		if err != nil {
			if fatal(err) {
				return err
			}
			b.obs.LogError("catalog_children_skipped", err, ports.Field{Key: "node_id", Value: id.String()})
			continue
		}
		for i := len(children) - 1; i >= 0; i-- {
			c := children[i]
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			stack = append(stack, c)
		}
	}
	return nil
}

// Export describes the nodes that belong to the configured namespace.
// Attributes that cannot be read are left empty.
func (b *Builder) Export(ctx context.Context, ids []domain.NodeID, aliases domain.AliasTable) ([]domain.CatalogNode, error) {
	out := make([]domain.CatalogNode, 0, len(ids))
	for _, id := range ids {
		if id.Namespace() != b.namespace {
			continue
		}
		n, err := b.describe(ctx, id, aliases)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", id, err)
		}
		out = append(out, n)
	}
	return out, nil
}

func (b *Builder) describe(ctx context.Context, id domain.NodeID, aliases domain.AliasTable) (domain.CatalogNode, error) {
	n := domain.CatalogNode{NodeID: id}

	qn, err := b.src.BrowseName(ctx, id)
	if fatal(err) {
		return n, err
	} else if err == nil {
		n.BrowseName = qn.String()
	}

	parent, err := b.src.Parent(ctx, id)
	if fatal(err) {
		return n, err
	} else if err == nil {
		n.ParentNodeID = parent
	}

	class, err := b.src.NodeClass(ctx, id)
	if fatal(err) {
		return n, err
	} else if err == nil {
		n.Class = class
	}

	if n.Class == domain.NodeClassVariable {
		dt, err := b.src.DataType(ctx, id)
		if fatal(err) {
			return n, err
		} else if err == nil {
			n.DataType = aliases.Resolve(dt)
		}
	}

	dn, err := b.src.DisplayName(ctx, id)
	if fatal(err) {
		return n, err
	} else if err == nil {
		n.DisplayName = dn
	}

	desc, err := b.src.Description(ctx, id)
	if fatal(err) {
		return n, err
	} else if err == nil {
		n.Description = desc
	}

	return n, nil
}

func fatal(err error) bool {
	return err != nil && (errors.Is(err, ports.ErrSessionClosed) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}
