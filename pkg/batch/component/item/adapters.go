package item

import (
	"context"
	"fmt"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
)

// Job definitions wire components through the untyped registry. The adapters below expose
// a typed component as its [any] form; they forward ItemStream calls when the wrapped
// component is a stream.

type anyReader[T any] struct {
	streamForwarder
	r port.ItemReader[T]
}

// AnyReader exposes r as an ItemReader of any.
func AnyReader[T any](r port.ItemReader[T]) port.ItemReader[any] {
	return &anyReader[T]{streamForwarder: streamForwarder{target: r}, r: r}
}

func (a *anyReader[T]) Read(ctx context.Context) (any, bool, error) {
	item, ok, err := a.r.Read(ctx)
	if err != nil || !ok {
		return nil, ok, err
	}
	return item, true, nil
}

type anyProcessor[I, O any] struct {
	streamForwarder
	p port.ItemProcessor[I, O]
}

// AnyProcessor exposes p as an ItemProcessor of any. An input of the wrong type fails the
// item.
func AnyProcessor[I, O any](p port.ItemProcessor[I, O]) port.ItemProcessor[any, any] {
	return &anyProcessor[I, O]{streamForwarder: streamForwarder{target: p}, p: p}
}

func (a *anyProcessor[I, O]) Process(ctx context.Context, item any) (any, bool, error) {
	in, ok := item.(I)
	if !ok {
		return nil, false, fmt.Errorf("processor expects %T, got %T", in, item)
	}
	out, filtered, err := a.p.Process(ctx, in)
	if err != nil || filtered {
		return nil, filtered, err
	}
	return out, false, nil
}

type anyWriter[T any] struct {
	streamForwarder
	w port.ItemWriter[T]
}

// AnyWriter exposes w as an ItemWriter of any. A chunk holding an item of the wrong type
// fails before anything is written.
func AnyWriter[T any](w port.ItemWriter[T]) port.ItemWriter[any] {
	return &anyWriter[T]{streamForwarder: streamForwarder{target: w}, w: w}
}

func (a *anyWriter[T]) Write(ctx context.Context, items []any) error {
	typed := make([]T, len(items))
	for i, item := range items {
		v, ok := item.(T)
		if !ok {
			return fmt.Errorf("writer expects %T, got %T at position %d", v, item, i)
		}
		typed[i] = v
	}
	return a.w.Write(ctx, typed)
}

type streamForwarder struct {
	target interface{}
}

func (f streamForwarder) Open(ctx context.Context, ec model.ExecutionContext) error {
	if s, ok := f.target.(port.ItemStream); ok {
		return s.Open(ctx, ec)
	}
	return nil
}

func (f streamForwarder) Update(ctx context.Context, ec model.ExecutionContext) error {
	if s, ok := f.target.(port.ItemStream); ok {
		return s.Update(ctx, ec)
	}
	return nil
}

func (f streamForwarder) Close(ctx context.Context) error {
	if s, ok := f.target.(port.ItemStream); ok {
		return s.Close(ctx)
	}
	return nil
}

var (
	_ port.ItemStream = (*anyReader[int])(nil)
	_ port.ItemStream = (*anyWriter[int])(nil)
)
