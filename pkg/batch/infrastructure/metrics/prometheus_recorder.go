package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/chunkflow/pkg/batch/core/metrics"
	logger "github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

// PrometheusRecorder records batch metrics on its own registry.
// Item counters are incremented as chunks run, so RecordStepEnd only observes duration.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	jobDuration   *prometheus.HistogramVec
	jobStarts     *prometheus.CounterVec
	jobEnds       *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	stepEnds      *prometheus.CounterVec
	items         *prometheus.CounterVec
	skips         *prometheus.CounterVec
	retries       *prometheus.CounterVec
	commits       *prometheus.CounterVec
	rollbacks     *prometheus.CounterVec
	partitionEnds *prometheus.CounterVec
	timings       *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a PrometheusRecorder with Go runtime and process collectors.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_job_duration_seconds",
			Help:    "Duration of batch job executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job_name", "status", "exit_code"}),
		jobStarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_job_started_total",
			Help: "Job executions started.",
		}, []string{"job_name"}),
		jobEnds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_job_finished_total",
			Help: "Job executions finished, by status.",
		}, []string{"job_name", "status"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_step_duration_seconds",
			Help:    "Duration of step executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job_name", "step_name", "status"}),
		stepEnds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_finished_total",
			Help: "Step executions finished, by status.",
		}, []string{"job_name", "step_name", "status"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_items_total",
			Help: "Items read, filtered or written, by operation.",
		}, []string{"job_name", "step_name", "operation"}),
		skips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_item_skip_total",
			Help: "Items skipped, by phase.",
		}, []string{"job_name", "step_name", "phase"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_item_retry_total",
			Help: "Chunk operations retried, by phase.",
		}, []string{"job_name", "step_name", "phase"}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_chunk_commit_total",
			Help: "Chunks committed.",
		}, []string{"job_name", "step_name"}),
		rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_chunk_rollback_total",
			Help: "Chunks rolled back.",
		}, []string{"job_name", "step_name"}),
		partitionEnds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_partition_finished_total",
			Help: "Partition workers finished, by status.",
		}, []string{"step_name", "status"}),
		timings: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_operation_duration_seconds",
			Help:    "Timings recorded through RecordDuration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"name", "status"}),
	}

	registry.MustRegister(
		r.jobDuration, r.jobStarts, r.jobEnds,
		r.stepDuration, r.stepEnds,
		r.items, r.skips, r.retries,
		r.commits, r.rollbacks,
		r.partitionEnds, r.timings,
	)
	return r
}

// Registry returns the registry all batch collectors are registered on.
func (r *PrometheusRecorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *PrometheusRecorder) RecordJobStart(_ context.Context, execution *model.JobExecution) {
	r.jobStarts.WithLabelValues(execution.JobName).Inc()
}

func (r *PrometheusRecorder) RecordJobEnd(_ context.Context, execution *model.JobExecution) {
	r.jobEnds.WithLabelValues(execution.JobName, string(execution.Status)).Inc()
	if execution.EndTime == nil {
		return
	}
	duration := execution.EndTime.Sub(execution.StartTime).Seconds()
	r.jobDuration.WithLabelValues(execution.JobName, string(execution.Status), execution.ExitStatus.ExitCode).Observe(duration)
	logger.Debugf("Metrics: job '%s' ended in %.3fs.", execution.JobName, duration)
}

// RecordStepStart is a no-op: step starts are implied by the finished counter and the
// step span.
func (r *PrometheusRecorder) RecordStepStart(context.Context, *model.StepExecution) {}

func (r *PrometheusRecorder) RecordStepEnd(_ context.Context, execution *model.StepExecution) {
	jobName := jobNameOf(execution)
	r.stepEnds.WithLabelValues(jobName, execution.StepName, string(execution.Status)).Inc()
	if execution.EndTime == nil {
		return
	}
	r.stepDuration.WithLabelValues(jobName, execution.StepName, string(execution.Status)).
		Observe(execution.EndTime.Sub(execution.StartTime).Seconds())
}

func (r *PrometheusRecorder) RecordItemRead(ctx context.Context, stepName string, count int) {
	r.items.WithLabelValues(jobNameFrom(ctx), stepName, "read").Add(float64(count))
}

func (r *PrometheusRecorder) RecordItemFilter(ctx context.Context, stepName string, count int) {
	r.items.WithLabelValues(jobNameFrom(ctx), stepName, "filter").Add(float64(count))
}

func (r *PrometheusRecorder) RecordItemWrite(ctx context.Context, stepName string, count int) {
	r.items.WithLabelValues(jobNameFrom(ctx), stepName, "write").Add(float64(count))
}

func (r *PrometheusRecorder) RecordItemSkip(ctx context.Context, stepName, phase string) {
	r.skips.WithLabelValues(jobNameFrom(ctx), stepName, phase).Inc()
}

func (r *PrometheusRecorder) RecordItemRetry(ctx context.Context, stepName, phase string) {
	r.retries.WithLabelValues(jobNameFrom(ctx), stepName, phase).Inc()
}

func (r *PrometheusRecorder) RecordChunkCommit(ctx context.Context, stepName string, _ int) {
	r.commits.WithLabelValues(jobNameFrom(ctx), stepName).Inc()
}

func (r *PrometheusRecorder) RecordChunkRollback(ctx context.Context, stepName string) {
	r.rollbacks.WithLabelValues(jobNameFrom(ctx), stepName).Inc()
}

func (r *PrometheusRecorder) RecordPartitionEnd(_ context.Context, stepName, _ string, status model.JobStatus) {
	r.partitionEnds.WithLabelValues(stepName, string(status)).Inc()
}

// RecordDuration observes duration under name. Only the "status" tag becomes a label;
// other tags are dropped to keep the label set fixed.
func (r *PrometheusRecorder) RecordDuration(_ context.Context, name string, duration time.Duration, tags map[string]string) {
	r.timings.WithLabelValues(name, tags["status"]).Observe(duration.Seconds())
}

func jobNameOf(se *model.StepExecution) string {
	if se != nil && se.JobExecution != nil {
		return se.JobExecution.JobName
	}
	return ""
}

func jobNameFrom(ctx context.Context) string {
	se, _ := port.StepExecutionFromContext(ctx)
	return jobNameOf(se)
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)
