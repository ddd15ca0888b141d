package item

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	resource "github.com/tigerroll/chunkflow/pkg/batch/component/resource"
	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/chunkflow/pkg/batch/core/tx"
	exception "github.com/tigerroll/chunkflow/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

const parquetParallelism = 4

// ParquetItemWriter collects committed items and writes them as one Parquet file when
// the step closes. T must carry parquet struct tags.
type ParquetItemWriter[T any] struct {
	name        string
	resources   *resource.Resources
	uri         string
	compression parquet.CompressionCodec

	mu       sync.Mutex
	buffered []T
}

// NewParquetItemWriter creates a writer of uri. compression is SNAPPY, GZIP or NONE; empty
// means SNAPPY.
func NewParquetItemWriter[T any](name string, resources *resource.Resources, uri, compression string) (*ParquetItemWriter[T], error) {
	codec, err := compressionCodec(compression)
	if err != nil {
		return nil, exception.NewBatchError(name, "invalid parquet compression", err, false, false)
	}
	return &ParquetItemWriter[T]{name: name, resources: resources, uri: uri, compression: codec}, nil
}

func compressionCodec(name string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(name) {
	case "SNAPPY", "":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE", "UNCOMPRESSED":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	}
	return 0, fmt.Errorf("unsupported compression type: %s", name)
}

// Open implements port.ItemStream.
func (w *ParquetItemWriter[T]) Open(_ context.Context, ec model.ExecutionContext) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buffered = nil
	if n, ok := ec.GetInt(w.name + ".written.count"); ok && n > 0 {
		logger.Warnf("ParquetItemWriter '%s': restarted after %d items; '%s' will hold only the items of this execution.", w.name, n, w.uri)
	}
	return nil
}

// Write implements port.ItemWriter.
func (w *ParquetItemWriter[T]) Write(ctx context.Context, items []T) error {
	batch := append([]T(nil), items...)
	keep := func() error {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.buffered = append(w.buffered, batch...)
		return nil
	}
	if t, ok := tx.FromContext(ctx); ok {
		t.OnCommit(keep)
		return nil
	}
	return keep()
}

// Update implements port.ItemStream.
func (w *ParquetItemWriter[T]) Update(_ context.Context, ec model.ExecutionContext) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	ec.Put(w.name+".written.count", len(w.buffered))
	return nil
}

// Close implements port.ItemStream. Nothing is written when no item was committed.
func (w *ParquetItemWriter[T]) Close(ctx context.Context) (err error) {
	w.mu.Lock()
	items := w.buffered
	w.buffered = nil
	w.mu.Unlock()

	if len(items) == 0 {
		logger.Infof("ParquetItemWriter '%s': no items, skipping '%s'.", w.name, w.uri)
		return nil
	}

	out, err := w.resources.Create(ctx, w.uri)
	if err != nil {
		return err
	}
	var merr *multierror.Error
	defer func() {
		if closeErr := out.Close(); closeErr != nil {
			merr = multierror.Append(merr, exception.NewBatchError(w.name, "failed to close '"+w.uri+"'", closeErr, false, false))
		}
		err = merr.ErrorOrNil()
		if err == nil {
			logger.Infof("ParquetItemWriter '%s': wrote %d items to '%s'.", w.name, len(items), w.uri)
		}
	}()

	pw, err := writer.NewParquetWriterFromWriter(out, new(T), parquetParallelism)
	if err != nil {
		merr = multierror.Append(merr, exception.NewBatchError(w.name, "failed to create parquet writer", err, false, false))
		return nil
	}
	pw.CompressionType = w.compression
	for i, item := range items {
		if err := pw.Write(item); err != nil {
			merr = multierror.Append(merr, exception.NewBatchError(w.name, fmt.Sprintf("failed to write item %d", i), err, false, false))
			return nil
		}
	}
	func() {
		defer func() {
			if r := recover(); r != nil {
				merr = multierror.Append(merr, exception.NewBatchError(w.name, fmt.Sprintf("parquet writer panicked on stop: %v", r), nil, false, false))
			}
		}()
		if err := pw.WriteStop(); err != nil {
			merr = multierror.Append(merr, exception.NewBatchError(w.name, "failed to finish parquet file", err, false, false))
		}
	}()
	return nil
}

var (
	_ port.ItemWriter[struct{}] = (*ParquetItemWriter[struct{}])(nil)
	_ port.ItemStream           = (*ParquetItemWriter[struct{}])(nil)
)
