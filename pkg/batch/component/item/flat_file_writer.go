package item

import (
	"context"
	"encoding/csv"
	"io"
	"sync"

	resource "github.com/tigerroll/chunkflow/pkg/batch/component/resource"
	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/chunkflow/pkg/batch/core/tx"
	exception "github.com/tigerroll/chunkflow/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

// FieldExtractor returns the fields written for item.
type FieldExtractor[T any] func(item T) []string

// FlatFileItemWriter writes items as delimited lines. Lines written inside a chunk
// transaction reach the file only when the transaction commits. A restarted step appends
// to a local file instead of replacing it.
type FlatFileItemWriter[T any] struct {
	name      string
	resources *resource.Resources
	uri       string
	delimiter rune
	header    []string
	extract   FieldExtractor[T]

	mu      sync.Mutex
	wc      io.WriteCloser
	csv     *csv.Writer
	written int
}

// NewFlatFileItemWriter creates a writer of uri. name prefixes the restart state kept in
// the ExecutionContext.
func NewFlatFileItemWriter[T any](name string, resources *resource.Resources, uri string, extract FieldExtractor[T], opts ...FlatFileOption) *FlatFileItemWriter[T] {
	o := applyFlatFileOptions(opts)
	return &FlatFileItemWriter[T]{
		name:      name,
		resources: resources,
		uri:       uri,
		delimiter: o.delimiter,
		header:    o.header,
		extract:   extract,
	}
}

func (w *FlatFileItemWriter[T]) countKey() string { return w.name + ".written.count" }

// Open implements port.ItemStream.
func (w *FlatFileItemWriter[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.written, _ = ec.GetInt(w.countKey())
	var (
		wc  io.WriteCloser
		err error
	)
	if w.written > 0 {
		wc, err = w.resources.Append(ctx, w.uri)
		logger.Infof("FlatFileItemWriter '%s': appending to '%s' after %d lines.", w.name, w.uri, w.written)
	} else {
		wc, err = w.resources.Create(ctx, w.uri)
	}
	if err != nil {
		return err
	}
	w.wc = wc
	w.csv = csv.NewWriter(wc)
	w.csv.Comma = w.delimiter
	if w.written == 0 && len(w.header) > 0 {
		if err := w.flush([][]string{w.header}); err != nil {
			return err
		}
	}
	return nil
}

// Write implements port.ItemWriter.
func (w *FlatFileItemWriter[T]) Write(ctx context.Context, items []T) error {
	lines := make([][]string, len(items))
	for i, item := range items {
		lines[i] = w.extract(item)
	}
	t, ok := tx.FromContext(ctx)
	if !ok {
		w.mu.Lock()
		defer w.mu.Unlock()
		if err := w.flush(lines); err != nil {
			return err
		}
		w.written += len(lines)
		return nil
	}
	t.OnCommit(func() error {
		w.mu.Lock()
		defer w.mu.Unlock()
		if err := w.flush(lines); err != nil {
			return err
		}
		w.written += len(lines)
		return nil
	})
	return nil
}

func (w *FlatFileItemWriter[T]) flush(lines [][]string) error {
	if w.csv == nil {
		return exception.NewBatchErrorf(w.name, "writer of '%s' is not open", w.uri)
	}
	if err := w.csv.WriteAll(lines); err != nil {
		return exception.NewBatchError(w.name, "failed to write lines to '"+w.uri+"'", err, false, false)
	}
	return nil
}

// Update implements port.ItemStream.
func (w *FlatFileItemWriter[T]) Update(_ context.Context, ec model.ExecutionContext) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	ec.Put(w.countKey(), w.written)
	return nil
}

// Close implements port.ItemStream.
func (w *FlatFileItemWriter[T]) Close(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.wc == nil {
		return nil
	}
	err := w.wc.Close()
	w.wc, w.csv = nil, nil
	return err
}

var (
	_ port.ItemWriter[string] = (*FlatFileItemWriter[string])(nil)
	_ port.ItemStream         = (*FlatFileItemWriter[string])(nil)
)
