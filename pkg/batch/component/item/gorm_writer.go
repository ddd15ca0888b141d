package item

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	gormadaptor "github.com/tigerroll/chunkflow/pkg/batch/adaptor/database/gorm"
	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	exception "github.com/tigerroll/chunkflow/pkg/batch/support/util/exception"
)

// GormItemWriter inserts items with the connection of the chunk transaction when the step
// runs on a gorm transaction manager, and with db otherwise.
type GormItemWriter[T any] struct {
	name      string
	db        *gorm.DB
	batchSize int
	upsert    bool
}

// NewGormItemWriter creates a writer inserting into the table of T.
func NewGormItemWriter[T any](name string, db *gorm.DB) *GormItemWriter[T] {
	return &GormItemWriter[T]{name: name, db: db}
}

// WithBatchSize splits each chunk into INSERT statements of at most n rows.
func (w *GormItemWriter[T]) WithBatchSize(n int) *GormItemWriter[T] {
	w.batchSize = n
	return w
}

// WithUpsert updates every column of rows whose primary key already exists.
func (w *GormItemWriter[T]) WithUpsert() *GormItemWriter[T] {
	w.upsert = true
	return w
}

// Write implements port.ItemWriter. Duplicate keys are reported as skippable errors.
func (w *GormItemWriter[T]) Write(ctx context.Context, items []T) error {
	if len(items) == 0 {
		return nil
	}
	db := gormadaptor.DBFromContext(ctx, w.db)
	if w.upsert {
		db = db.Clauses(clause.OnConflict{UpdateAll: true})
	}
	var err error
	if w.batchSize > 0 {
		err = db.CreateInBatches(&items, w.batchSize).Error
	} else {
		err = db.Create(&items).Error
	}
	if err != nil {
		if gormadaptor.IsDuplicateKeyError(err) {
			return exception.NewBatchError(w.name, "duplicate key", err, true, false)
		}
		return exception.NewBatchError(w.name, "failed to insert items", err, false, false)
	}
	return nil
}

var _ port.ItemWriter[struct{}] = (*GormItemWriter[struct{}])(nil)
