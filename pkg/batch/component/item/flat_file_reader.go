package item

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sync"

	resource "github.com/tigerroll/chunkflow/pkg/batch/component/resource"
	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	exception "github.com/tigerroll/chunkflow/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

// LineMapper turns the fields of one line into an item. line is 1-based and counts
// skipped header lines.
type LineMapper[T any] func(line int, fields []string) (T, error)

// FlatFileItemReader reads delimited lines from a resource. Lines that fail to parse or
// map are reported as skippable errors so a skip policy can drop them.
type FlatFileItemReader[T any] struct {
	name        string
	resources   *resource.Resources
	uri         string
	delimiter   rune
	linesToSkip int
	mapper      LineMapper[T]

	mu    sync.Mutex
	rc    io.ReadCloser
	csv   *csv.Reader
	line  int
	count int
}

// FlatFileOption configures a FlatFileItemReader or FlatFileItemWriter.
type FlatFileOption func(*flatFileOptions)

type flatFileOptions struct {
	delimiter   rune
	linesToSkip int
	header      []string
}

// WithDelimiter sets the field delimiter. The default is a comma.
func WithDelimiter(d rune) FlatFileOption {
	return func(o *flatFileOptions) { o.delimiter = d }
}

// WithLinesToSkip skips the first n lines of the input, such as a header.
func WithLinesToSkip(n int) FlatFileOption {
	return func(o *flatFileOptions) { o.linesToSkip = n }
}

// WithHeader makes the writer emit fields as the first line of a new file.
func WithHeader(fields ...string) FlatFileOption {
	return func(o *flatFileOptions) { o.header = fields }
}

func applyFlatFileOptions(opts []FlatFileOption) flatFileOptions {
	o := flatFileOptions{delimiter: ','}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewFlatFileItemReader creates a reader of uri. name prefixes the restart state kept in
// the ExecutionContext.
func NewFlatFileItemReader[T any](name string, resources *resource.Resources, uri string, mapper LineMapper[T], opts ...FlatFileOption) *FlatFileItemReader[T] {
	o := applyFlatFileOptions(opts)
	return &FlatFileItemReader[T]{
		name:        name,
		resources:   resources,
		uri:         uri,
		delimiter:   o.delimiter,
		linesToSkip: o.linesToSkip,
		mapper:      mapper,
	}
}

func (r *FlatFileItemReader[T]) countKey() string { return r.name + ".read.count" }

// Open implements port.ItemStream. On restart the lines already consumed are skipped.
func (r *FlatFileItemReader[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rc, err := r.resources.Open(ctx, r.uri)
	if err != nil {
		return err
	}
	r.rc = rc
	r.csv = csv.NewReader(rc)
	r.csv.Comma = r.delimiter
	r.csv.FieldsPerRecord = -1
	r.csv.LazyQuotes = true
	r.csv.ReuseRecord = false
	r.line, r.count = 0, 0

	for i := 0; i < r.linesToSkip; i++ {
		if _, err := r.next(); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return exception.NewBatchError(r.name, "failed to skip header line", err, false, false)
		}
	}
	resume, _ := ec.GetInt(r.countKey())
	for r.count < resume {
		if _, err := r.next(); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return exception.NewBatchError(r.name, "failed to reposition reader", err, false, false)
			}
		}
		r.count++
	}
	if resume > 0 {
		logger.Infof("FlatFileItemReader '%s': resuming '%s' after %d items.", r.name, r.uri, r.count)
	}
	return nil
}

func (r *FlatFileItemReader[T]) next() ([]string, error) {
	fields, err := r.csv.Read()
	if err == nil || !errors.Is(err, io.EOF) {
		r.line++
	}
	return fields, err
}

// Read implements port.ItemReader.
func (r *FlatFileItemReader[T]) Read(context.Context) (T, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if r.csv == nil {
		return zero, false, exception.NewBatchErrorf(r.name, "reader of '%s' is not open", r.uri)
	}
	fields, err := r.next()
	if errors.Is(err, io.EOF) {
		return zero, false, nil
	}
	r.count++
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return zero, true, exception.NewBatchError(r.name, fmt.Sprintf("unparsable line %d", r.line), err, true, false)
		}
		return zero, false, exception.NewBatchError(r.name, fmt.Sprintf("failed to read '%s'", r.uri), err, false, true)
	}
	item, err := r.mapper(r.line, fields)
	if err != nil {
		return zero, true, exception.NewBatchError(r.name, fmt.Sprintf("failed to map line %d", r.line), err, true, false)
	}
	return item, true, nil
}

// Update implements port.ItemStream.
func (r *FlatFileItemReader[T]) Update(_ context.Context, ec model.ExecutionContext) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ec.Put(r.countKey(), r.count)
	return nil
}

// Close implements port.ItemStream.
func (r *FlatFileItemReader[T]) Close(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rc == nil {
		return nil
	}
	err := r.rc.Close()
	r.rc, r.csv = nil, nil
	return err
}

var (
	_ port.ItemReader[string] = (*FlatFileItemReader[string])(nil)
	_ port.ItemStream         = (*FlatFileItemReader[string])(nil)
)
