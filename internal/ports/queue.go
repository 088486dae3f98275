package ports

import "github.com/ghalamif/opcbridge/internal/domain"

type PointQueue interface {
	Enqueue(p *domain.Point) bool
	DequeueBatch(max int) []*domain.Point
	Len() int
}
