// Package tx defines the unit-of-work abstraction the chunk engine opens around every
// chunk, plus a resourceless implementation for jobs that touch no transactional store.
package tx

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Tx is an open unit of work.
type Tx interface {
	// ID identifies the transaction in logs.
	ID() string
	// OnCommit registers fn to run after a successful commit, in registration order.
	// Writers that buffer output use it to flush only committed chunks.
	OnCommit(fn func() error)
	// OnRollback registers fn to run after a rollback.
	OnRollback(fn func())
}

// TransactionManager opens and completes units of work.
type TransactionManager interface {
	Begin(ctx context.Context, opts ...*sql.TxOptions) (Tx, error)
	Commit(t Tx) error
	Rollback(t Tx) error
}

// ErrTxCompleted is returned when a finished transaction is committed or rolled back again.
var ErrTxCompleted = errors.New("transaction already completed")

// ManagerResolver returns the transaction manager of a named database connection.
type ManagerResolver interface {
	TransactionManager(name string) (TransactionManager, error)
}

type txKey struct{}

// WithTx returns a context carrying t.
func WithTx(ctx context.Context, t Tx) context.Context {
	return context.WithValue(ctx, txKey{}, t)
}

// FromContext returns the transaction carried by ctx.
func FromContext(ctx context.Context) (Tx, bool) {
	t, ok := ctx.Value(txKey{}).(Tx)
	return t, ok
}

// Callbacks implements the OnCommit/OnRollback half of Tx. Transaction implementations
// embed it and call FireCommit or FireRollback when they complete.
type Callbacks struct {
	mu         sync.Mutex
	onCommit   []func() error
	onRollback []func()
	done       bool
}

// OnCommit implements Tx.
func (c *Callbacks) OnCommit(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCommit = append(c.onCommit, fn)
}

// OnRollback implements Tx.
func (c *Callbacks) OnRollback(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRollback = append(c.onRollback, fn)
}

// MarkDone flags the transaction complete, returning ErrTxCompleted if it already was.
func (c *Callbacks) MarkDone() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return ErrTxCompleted
	}
	c.done = true
	return nil
}

// FireCommit runs commit callbacks and returns their joined errors.
func (c *Callbacks) FireCommit() error {
	c.mu.Lock()
	fns := c.onCommit
	c.onCommit, c.onRollback = nil, nil
	c.mu.Unlock()

	var errs []error
	for _, fn := range fns {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FireRollback runs rollback callbacks.
func (c *Callbacks) FireRollback() {
	c.mu.Lock()
	fns := c.onRollback
	c.onCommit, c.onRollback = nil, nil
	c.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

type resourcelessTx struct {
	Callbacks
	id string
}

func (t *resourcelessTx) ID() string { return t.id }

// ResourcelessTransactionManager brackets chunks without a backing store. Commit callbacks
// still run, so buffering writers keep their all-or-nothing behaviour.
type ResourcelessTransactionManager struct{}

// NewResourcelessTransactionManager returns a ResourcelessTransactionManager.
func NewResourcelessTransactionManager() TransactionManager {
	return &ResourcelessTransactionManager{}
}

// Begin implements TransactionManager.
func (m *ResourcelessTransactionManager) Begin(ctx context.Context, _ ...*sql.TxOptions) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &resourcelessTx{id: uuid.NewString()}, nil
}

// Commit implements TransactionManager.
func (m *ResourcelessTransactionManager) Commit(t Tx) error {
	rt, ok := t.(*resourcelessTx)
	if !ok {
		return errors.New("resourceless transaction manager: foreign transaction")
	}
	if err := rt.MarkDone(); err != nil {
		return err
	}
	return rt.FireCommit()
}

// Rollback implements TransactionManager.
func (m *ResourcelessTransactionManager) Rollback(t Tx) error {
	rt, ok := t.(*resourcelessTx)
	if !ok {
		return errors.New("resourceless transaction manager: foreign transaction")
	}
	if err := rt.MarkDone(); err != nil {
		return err
	}
	rt.FireRollback()
	return nil
}
