package gorm

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/chunkflow/pkg/batch/core/tx"
)

// Module provides the connection Provider, exposes it as the tx.ManagerResolver and
// closes its connections on shutdown.
var Module = fx.Options(
	fx.Provide(NewProvider),
	fx.Provide(func(p *Provider) tx.ManagerResolver { return p }),
	fx.Invoke(func(lc fx.Lifecycle, p *Provider) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error { return p.CloseAll() },
		})
	}),
)
