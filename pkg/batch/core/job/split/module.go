package split

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
)

// Factory creates splits on the branch pool.
type Factory struct {
	pool port.WorkerPool
}

// NewFactory creates a Factory whose splits dispatch branches to pool. pool must not be
// the bounded pool partitions run on, or branches holding every slot wait forever for
// their partitions.
func NewFactory(pool port.WorkerPool) *Factory { return &Factory{pool: pool} }

// New creates a Split over flows.
func (f *Factory) New(name string, flows ...port.Flow) *Split {
	return New(name, f.pool, flows...)
}

// FactoryParams are the dependencies of the Factory.
type FactoryParams struct {
	fx.In
	Pool port.WorkerPool `name:"branchPool"`
}

// Module provides the split Factory over the branch pool.
var Module = fx.Provide(func(p FactoryParams) *Factory { return NewFactory(p.Pool) })
