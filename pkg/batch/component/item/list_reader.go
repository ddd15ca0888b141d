package item

import (
	"context"
	"sync"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
)

const listReadCountKey = "list.read.count"

// ListItemReader reads items from a slice. On restart it resumes after the last
// committed item.
type ListItemReader[T any] struct {
	mu    sync.Mutex
	items []T
	next  int
}

// NewListItemReader creates a reader over a copy of items.
func NewListItemReader[T any](items []T) *ListItemReader[T] {
	return &ListItemReader[T]{items: append([]T(nil), items...)}
}

// Read implements port.ItemReader.
func (r *ListItemReader[T]) Read(context.Context) (T, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var zero T
	if r.next >= len(r.items) {
		return zero, false, nil
	}
	item := r.items[r.next]
	r.next++
	return item, true, nil
}

// Open implements port.ItemStream.
func (r *ListItemReader[T]) Open(_ context.Context, ec model.ExecutionContext) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next = 0
	if n, ok := ec.GetInt(listReadCountKey); ok && n <= len(r.items) {
		r.next = n
	}
	return nil
}

// Update implements port.ItemStream.
func (r *ListItemReader[T]) Update(_ context.Context, ec model.ExecutionContext) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ec.Put(listReadCountKey, r.next)
	return nil
}

// Close implements port.ItemStream.
func (r *ListItemReader[T]) Close(context.Context) error { return nil }

var (
	_ port.ItemReader[int] = (*ListItemReader[int])(nil)
	_ port.ItemStream      = (*ListItemReader[int])(nil)
)
