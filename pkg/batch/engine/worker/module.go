package worker

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkflow/pkg/batch/core/config"
)

// BranchPool is the fx name of the pool split branches run on. It is unbounded, so a
// branch waiting on its partitions never holds a slot of the partition pool.
const BranchPool = "branchPool"

func provide(lc fx.Lifecycle, p *Pool) port.WorkerPool {
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { return p.Shutdown(ctx) }})
	return p
}

// Module provides the partition pool sized by batch.poolSize as port.WorkerPool, and the
// unbounded branch pool named BranchPool.
var Module = fx.Options(
	fx.Provide(func(lc fx.Lifecycle, cfg *config.Config) port.WorkerPool {
		return provide(lc, NewPool(WithSize(cfg.Chunkflow.Batch.PoolSize)))
	}),
	fx.Provide(fx.Annotate(
		func(lc fx.Lifecycle) port.WorkerPool { return provide(lc, NewPool()) },
		fx.ResultTags(`name:"`+BranchPool+`"`),
	)),
)
