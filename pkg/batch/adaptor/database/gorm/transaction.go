package gorm

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tigerroll/chunkflow/pkg/batch/core/tx"
)

// GormTx is a tx.Tx backed by a gorm transaction.
type GormTx struct {
	tx.Callbacks
	id string
	db *gorm.DB
}

// ID implements tx.Tx.
func (t *GormTx) ID() string { return t.id }

// DB returns the transaction-bound *gorm.DB.
func (t *GormTx) DB() *gorm.DB { return t.db }

// GormTransactionManager implements tx.TransactionManager on a single connection.
type GormTransactionManager struct {
	db *gorm.DB
}

var _ tx.TransactionManager = (*GormTransactionManager)(nil)

// NewGormTransactionManager creates a manager for db.
func NewGormTransactionManager(db *gorm.DB) *GormTransactionManager {
	return &GormTransactionManager{db: db}
}

// Begin implements tx.TransactionManager.
func (m *GormTransactionManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (tx.Tx, error) {
	var txOpts *sql.TxOptions
	if len(opts) > 0 {
		txOpts = opts[0]
	}
	gtx := m.db.WithContext(ctx).Begin(txOpts)
	if gtx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", gtx.Error)
	}
	return &GormTx{id: uuid.NewString(), db: gtx}, nil
}

// Commit implements tx.TransactionManager. Commit callbacks run only after the database
// commit succeeded.
func (m *GormTransactionManager) Commit(t tx.Tx) error {
	gt, err := m.own(t)
	if err != nil {
		return err
	}
	if err := gt.MarkDone(); err != nil {
		return err
	}
	if err := gt.db.Commit().Error; err != nil {
		gt.FireRollback()
		return fmt.Errorf("commit transaction %s: %w", gt.id, err)
	}
	return gt.FireCommit()
}

// Rollback implements tx.TransactionManager.
func (m *GormTransactionManager) Rollback(t tx.Tx) error {
	gt, err := m.own(t)
	if err != nil {
		return err
	}
	if err := gt.MarkDone(); err != nil {
		return err
	}
	defer gt.FireRollback()
	if err := gt.db.Rollback().Error; err != nil {
		return fmt.Errorf("rollback transaction %s: %w", gt.id, err)
	}
	return nil
}

func (m *GormTransactionManager) own(t tx.Tx) (*GormTx, error) {
	gt, ok := t.(*GormTx)
	if !ok {
		return nil, fmt.Errorf("invalid transaction type %T: expected *GormTx", t)
	}
	return gt, nil
}

// DBFromContext returns the transaction-bound connection when ctx carries a GormTx, and
// fallback bound to ctx otherwise.
func DBFromContext(ctx context.Context, fallback *gorm.DB) *gorm.DB {
	if t, ok := tx.FromContext(ctx); ok {
		if gt, ok := t.(*GormTx); ok {
			return gt.db
		}
	}
	return fallback.WithContext(ctx)
}
