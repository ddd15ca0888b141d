package item

import (
	"context"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
)

// PassThroughItemProcessor returns every item unchanged.
type PassThroughItemProcessor[T any] struct{}

func NewPassThroughItemProcessor[T any]() *PassThroughItemProcessor[T] {
	return &PassThroughItemProcessor[T]{}
}

func (PassThroughItemProcessor[T]) Process(_ context.Context, item T) (T, bool, error) {
	return item, false, nil
}

var _ port.ItemProcessor[int, int] = PassThroughItemProcessor[int]{}
