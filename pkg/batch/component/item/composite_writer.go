package item

import (
	"context"

	"github.com/hashicorp/go-multierror"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
)

// CompositeItemWriter hands every chunk to its delegates in order. Delegates that are
// streams are opened, updated and closed with it.
type CompositeItemWriter[T any] struct {
	delegates []port.ItemWriter[T]
}

// NewCompositeItemWriter creates a writer over delegates. Nil delegates are dropped.
func NewCompositeItemWriter[T any](delegates ...port.ItemWriter[T]) *CompositeItemWriter[T] {
	w := &CompositeItemWriter[T]{}
	for _, d := range delegates {
		if d != nil {
			w.delegates = append(w.delegates, d)
		}
	}
	return w
}

// Write implements port.ItemWriter. The first failing delegate fails the chunk.
func (w *CompositeItemWriter[T]) Write(ctx context.Context, items []T) error {
	for _, d := range w.delegates {
		if err := d.Write(ctx, items); err != nil {
			return err
		}
	}
	return nil
}

// Open implements port.ItemStream.
func (w *CompositeItemWriter[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	for _, d := range w.delegates {
		if s, ok := d.(port.ItemStream); ok {
			if err := s.Open(ctx, ec); err != nil {
				return err
			}
		}
	}
	return nil
}

// Update implements port.ItemStream.
func (w *CompositeItemWriter[T]) Update(ctx context.Context, ec model.ExecutionContext) error {
	for _, d := range w.delegates {
		if s, ok := d.(port.ItemStream); ok {
			if err := s.Update(ctx, ec); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close implements port.ItemStream. Every stream delegate is closed; failures are joined.
func (w *CompositeItemWriter[T]) Close(ctx context.Context) error {
	var result *multierror.Error
	for _, d := range w.delegates {
		if s, ok := d.(port.ItemStream); ok {
			if err := s.Close(ctx); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}
	return result.ErrorOrNil()
}

var (
	_ port.ItemWriter[string] = (*CompositeItemWriter[string])(nil)
	_ port.ItemStream         = (*CompositeItemWriter[string])(nil)
)
