package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/fx"

	config "github.com/tigerroll/chunkflow/pkg/batch/core/config"
	metrics "github.com/tigerroll/chunkflow/pkg/batch/core/metrics"
	logger "github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

// DecorateParams are the inputs of the recorder and tracer decorators.
type DecorateParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Config    *config.Config
}

// DecorateMetricRecorder replaces the no-op recorder with the backend named by
// infrastructure.metrics.type, wrapped in an AsyncMetricRecorder when
// infrastructure.asyncBufferSize is positive.
func DecorateMetricRecorder(p DecorateParams, fallback metrics.MetricRecorder) (metrics.MetricRecorder, error) {
	infra := p.Config.Chunkflow.Infrastructure
	cfg := infra.Metrics

	var recorder metrics.MetricRecorder
	switch strings.ToLower(cfg.Type) {
	case "", "none":
		return fallback, nil
	case "prometheus":
		prom := NewPrometheusRecorder()
		if cfg.ListenAddress != "" {
			servePrometheus(p.Lifecycle, cfg.ListenAddress, prom.Handler())
		}
		recorder = prom
	case "otel", "otlp":
		res, err := NewResource(context.Background(), p.Config.Chunkflow.Infrastructure.Tracing.ServiceName)
		if err != nil {
			return nil, err
		}
		mp, err := NewMeterProvider(context.Background(), cfg, res)
		if err != nil {
			return nil, err
		}
		otel.SetMeterProvider(mp)
		p.Lifecycle.Append(fx.Hook{OnStop: mp.Shutdown})
		recorder = NewOtelMetricRecorder(mp.Meter(instrumentationName))
	default:
		logger.Warnf("Metrics: unknown metrics type '%s', metrics disabled.", cfg.Type)
		return fallback, nil
	}
	logger.Infof("Metrics: recording to %s.", describe(cfg.Type, cfg.Endpoint+cfg.ListenAddress))

	if infra.AsyncBufferSize <= 0 {
		return recorder, nil
	}
	async := NewAsyncMetricRecorder(infra.AsyncBufferSize, recorder)
	p.Lifecycle.Append(fx.Hook{OnStop: func(context.Context) error {
		async.Close()
		return nil
	}})
	return async, nil
}

// DecorateTracer replaces the no-op tracer with an OTLP-exporting OtelTracer unless
// infrastructure.tracing.type is empty or "none".
func DecorateTracer(p DecorateParams, fallback metrics.Tracer) (metrics.Tracer, error) {
	cfg := p.Config.Chunkflow.Infrastructure.Tracing
	if t := strings.ToLower(cfg.Type); t == "" || t == "none" {
		return fallback, nil
	}
	res, err := NewResource(context.Background(), cfg.ServiceName)
	if err != nil {
		return nil, err
	}
	tp, err := NewTracerProvider(context.Background(), cfg, res)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)
	p.Lifecycle.Append(fx.Hook{OnStop: tp.Shutdown})
	logger.Infof("Tracing: exporting spans to %s.", describe(cfg.Type, cfg.Endpoint))
	return NewOtelTracer(tp.Tracer(instrumentationName)), nil
}

func servePrometheus(lc fx.Lifecycle, addr string, handler http.Handler) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Errorf("Metrics: prometheus endpoint stopped: %v", err)
				}
			}()
			logger.Infof("Metrics: serving prometheus metrics on %s/metrics.", addr)
			return nil
		},
		OnStop: srv.Shutdown,
	})
}

// Module decorates the no-op recorder and tracer provided by core/metrics.Module.
var Module = fx.Options(
	fx.Decorate(DecorateMetricRecorder),
	fx.Decorate(DecorateTracer),
)
