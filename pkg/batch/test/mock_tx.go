// Package test holds shared test doubles for the batch packages.
package test

import (
	"context"
	"database/sql"
	"sync"

	"github.com/stretchr/testify/mock"

	tx "github.com/tigerroll/chunkflow/pkg/batch/core/tx"
)

// MockTx is a tx.Tx that runs its callbacks like a real transaction.
type MockTx struct {
	tx.Callbacks
	id string
}

// NewMockTx creates a MockTx with the given id.
func NewMockTx(id string) *MockTx { return &MockTx{id: id} }

// ID implements tx.Tx.
func (m *MockTx) ID() string { return m.id }

// MockTxManager is a testify mock of tx.TransactionManager.
type MockTxManager struct {
	mock.Mock
}

// Begin records the call and returns the configured Tx or error.
func (m *MockTxManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (tx.Tx, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(tx.Tx), args.Error(1)
}

// Commit records the call. A nil result fires the commit callbacks of MockTx values.
func (m *MockTxManager) Commit(t tx.Tx) error {
	if err := m.Called(t).Error(0); err != nil {
		return err
	}
	if mt, ok := t.(*MockTx); ok {
		if err := mt.MarkDone(); err != nil {
			return err
		}
		return mt.FireCommit()
	}
	return nil
}

// Rollback records the call and fires the rollback callbacks of MockTx values.
func (m *MockTxManager) Rollback(t tx.Tx) error {
	err := m.Called(t).Error(0)
	if mt, ok := t.(*MockTx); ok {
		if mt.MarkDone() == nil {
			mt.FireRollback()
		}
	}
	return err
}

// CountingTxManager wraps the resourceless manager and counts completed transactions.
type CountingTxManager struct {
	tx.TransactionManager

	mu        sync.Mutex
	Begins    int
	Commits   int
	Rollbacks int
}

// NewCountingTxManager creates a CountingTxManager.
func NewCountingTxManager() *CountingTxManager {
	return &CountingTxManager{TransactionManager: tx.NewResourcelessTransactionManager()}
}

// Begin implements tx.TransactionManager.
func (m *CountingTxManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (tx.Tx, error) {
	m.mu.Lock()
	m.Begins++
	m.mu.Unlock()
	return m.TransactionManager.Begin(ctx, opts...)
}

// Commit implements tx.TransactionManager.
func (m *CountingTxManager) Commit(t tx.Tx) error {
	err := m.TransactionManager.Commit(t)
	if err == nil {
		m.mu.Lock()
		m.Commits++
		m.mu.Unlock()
	}
	return err
}

// Rollback implements tx.TransactionManager.
func (m *CountingTxManager) Rollback(t tx.Tx) error {
	m.mu.Lock()
	m.Rollbacks++
	m.mu.Unlock()
	return m.TransactionManager.Rollback(t)
}

var (
	_ tx.Tx                 = (*MockTx)(nil)
	_ tx.TransactionManager = (*MockTxManager)(nil)
	_ tx.TransactionManager = (*CountingTxManager)(nil)
)
