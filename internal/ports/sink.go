package ports

import (
	"context"

	"github.com/ghalamif/opcbridge/internal/domain"
)

type Sink interface {
	WriteBatch(ctx context.Context, points []*domain.Point) error
	Name() string
	Close() error
}
