package test

import (
	"context"
	"sync"

	tx "github.com/tigerroll/chunkflow/pkg/batch/core/tx"
)

// SliceReader returns its items in order, then end-of-data. FailAt makes the n-th call
// (1-based) fail with Err instead.
type SliceReader[T any] struct {
	mu     sync.Mutex
	items  []T
	pos    int
	calls  int
	FailAt map[int]error
}

// NewSliceReader creates a SliceReader over items.
func NewSliceReader[T any](items ...T) *SliceReader[T] {
	return &SliceReader[T]{items: items, FailAt: map[int]error{}}
}

// Read implements port.ItemReader.
func (r *SliceReader[T]) Read(context.Context) (T, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	var zero T
	if err, ok := r.FailAt[r.calls]; ok {
		return zero, false, err
	}
	if r.pos >= len(r.items) {
		return zero, false, nil
	}
	item := r.items[r.pos]
	r.pos++
	return item, true, nil
}

// RecordingWriter keeps written chunks. When the context carries a transaction, a chunk
// becomes visible only once that transaction commits.
type RecordingWriter[T any] struct {
	mu     sync.Mutex
	chunks [][]T
	calls  int
	// Fail returns the error for a given call (1-based) and chunk, or nil.
	Fail func(call int, items []T) error
}

// Write implements port.ItemWriter.
func (w *RecordingWriter[T]) Write(ctx context.Context, items []T) error {
	w.mu.Lock()
	w.calls++
	call := w.calls
	w.mu.Unlock()

	if w.Fail != nil {
		if err := w.Fail(call, items); err != nil {
			return err
		}
	}
	chunk := append([]T(nil), items...)
	publish := func() error {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.chunks = append(w.chunks, chunk)
		return nil
	}
	if t, ok := tx.FromContext(ctx); ok {
		t.OnCommit(publish)
		return nil
	}
	return publish()
}

// Chunks returns the committed chunks.
func (w *RecordingWriter[T]) Chunks() [][]T {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([][]T(nil), w.chunks...)
}

// Items returns every committed item in order.
func (w *RecordingWriter[T]) Items() []T {
	var out []T
	for _, c := range w.Chunks() {
		out = append(out, c...)
	}
	return out
}

// Calls returns the number of Write calls, committed or not.
func (w *RecordingWriter[T]) Calls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}
