package item

import (
	"context"
	"fmt"
	"sync"

	"gorm.io/gorm"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	partition "github.com/tigerroll/chunkflow/pkg/batch/engine/step/partition"
	exception "github.com/tigerroll/chunkflow/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

const defaultPageSize = 100

// GormPagingItemReader reads rows of T page by page in a stable order. Inside a partition
// worker it can restrict itself to the rows whose partition column, modulo the partition
// count, equals the worker's partition index.
type GormPagingItemReader[T any] struct {
	name            string
	db              *gorm.DB
	orderBy         string
	pageSize        int
	where           string
	args            []any
	partitionColumn string

	mu     sync.Mutex
	filter func(*gorm.DB) *gorm.DB
	page   []T
	pos    int
	count  int
	last   bool
}

// GormReaderOption configures a GormPagingItemReader.
type GormReaderOption func(*gormReaderOptions)

type gormReaderOptions struct {
	pageSize        int
	where           string
	args            []any
	partitionColumn string
}

// WithPageSize sets the number of rows fetched per query.
func WithPageSize(n int) GormReaderOption {
	return func(o *gormReaderOptions) { o.pageSize = n }
}

// WithWhere adds a condition to every page query.
func WithWhere(query string, args ...any) GormReaderOption {
	return func(o *gormReaderOptions) { o.where, o.args = query, args }
}

// WithPartitionColumn enables modulo partitioning on an integer column.
func WithPartitionColumn(column string) GormReaderOption {
	return func(o *gormReaderOptions) { o.partitionColumn = column }
}

// NewGormPagingItemReader creates a reader of the table of T ordered by orderBy, which
// must give a total order for restarts to be exact.
func NewGormPagingItemReader[T any](name string, db *gorm.DB, orderBy string, opts ...GormReaderOption) *GormPagingItemReader[T] {
	o := gormReaderOptions{pageSize: defaultPageSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.pageSize < 1 {
		o.pageSize = defaultPageSize
	}
	return &GormPagingItemReader[T]{
		name:            name,
		db:              db,
		orderBy:         orderBy,
		pageSize:        o.pageSize,
		where:           o.where,
		args:            o.args,
		partitionColumn: o.partitionColumn,
	}
}

func (r *GormPagingItemReader[T]) countKey() string { return r.name + ".read.count" }

// Open implements port.ItemStream.
func (r *GormPagingItemReader[T]) Open(_ context.Context, ec model.ExecutionContext) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.orderBy == "" {
		return exception.NewBatchErrorf(r.name, "paging reader needs an order")
	}
	r.filter = func(db *gorm.DB) *gorm.DB { return db }
	if r.partitionColumn != "" {
		index, count, ok := partition.Index(ec)
		if ok {
			cond := fmt.Sprintf("%s %% ? = ?", r.partitionColumn)
			r.filter = func(db *gorm.DB) *gorm.DB { return db.Where(cond, count, index) }
			logger.Debugf("GormPagingItemReader '%s': reading partition %d of %d.", r.name, index, count)
		}
	}
	r.count, _ = ec.GetInt(r.countKey())
	r.page, r.pos, r.last = nil, 0, false
	return nil
}

// Read implements port.ItemReader.
func (r *GormPagingItemReader[T]) Read(ctx context.Context) (T, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if r.filter == nil {
		return zero, false, exception.NewBatchErrorf(r.name, "reader is not open")
	}
	if r.pos >= len(r.page) {
		if r.last {
			return zero, false, nil
		}
		if err := r.fetch(ctx); err != nil {
			return zero, false, err
		}
		if len(r.page) == 0 {
			return zero, false, nil
		}
	}
	item := r.page[r.pos]
	r.pos++
	r.count++
	return item, true, nil
}

func (r *GormPagingItemReader[T]) fetch(ctx context.Context) error {
	q := r.filter(r.db.WithContext(ctx).Model(new(T)))
	if r.where != "" {
		q = q.Where(r.where, r.args...)
	}
	var page []T
	if err := q.Order(r.orderBy).Offset(r.count).Limit(r.pageSize).Find(&page).Error; err != nil {
		return exception.NewBatchError(r.name, fmt.Sprintf("failed to read page at offset %d", r.count), err, false, true)
	}
	r.page, r.pos = page, 0
	r.last = len(page) < r.pageSize
	return nil
}

// Update implements port.ItemStream.
func (r *GormPagingItemReader[T]) Update(_ context.Context, ec model.ExecutionContext) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ec.Put(r.countKey(), r.count)
	return nil
}

// Close implements port.ItemStream.
func (r *GormPagingItemReader[T]) Close(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.page, r.filter = nil, nil
	return nil
}

var (
	_ port.ItemReader[struct{}] = (*GormPagingItemReader[struct{}])(nil)
	_ port.ItemStream           = (*GormPagingItemReader[struct{}])(nil)
)
