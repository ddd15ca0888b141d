// Package logging provides listeners that report job, step and chunk lifecycle events
// through the application logger.
package logging

import (
	"context"
	"time"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
	"github.com/tigerroll/chunkflow/pkg/batch/support/util/serialization"
)

// --- Job Execution Listener ---

// JobListener logs job starts and ends. Parameter values named in maskedKeys are hidden.
type JobListener struct {
	maskedKeys []string
}

func NewJobListener(maskedKeys []string) *JobListener {
	return &JobListener{maskedKeys: maskedKeys}
}

func (l *JobListener) BeforeJob(_ context.Context, je *model.JobExecution) error {
	logger.Infof("JobListener: job '%s' (execution %s) starting with parameters %s.",
		je.JobName, je.ID, serialization.FormatParameters(je.Parameters, l.maskedKeys))
	return nil
}

func (l *JobListener) AfterJob(_ context.Context, je *model.JobExecution) error {
	msg := "JobListener: job '%s' (execution %s) ended %s, exit status %s, in %s."
	args := []interface{}{je.JobName, je.ID, je.Status, je.ExitStatus, je.Duration().Round(time.Millisecond)}
	if je.Status.IsUnsuccessful() {
		logger.Warnf(msg, args...)
		for _, f := range je.Failures {
			logger.Warnf("  failure: %s", f)
		}
		return nil
	}
	logger.Infof(msg, args...)
	return nil
}

var _ port.JobExecutionListener = (*JobListener)(nil)

// --- Step Execution Listener ---

// StepListener logs step starts and a summary of the counts when a step ends.
type StepListener struct{}

func NewStepListener() *StepListener { return &StepListener{} }

func (l *StepListener) BeforeStep(_ context.Context, se *model.StepExecution) error {
	logger.Infof("StepListener: step '%s' (execution %s) starting.", se.StepName, se.ID)
	return nil
}

// AfterStep never changes the exit status.
func (l *StepListener) AfterStep(_ context.Context, se *model.StepExecution) *model.ExitStatus {
	if se.Status.IsUnsuccessful() {
		logger.Warnf("StepListener: %s", se.Summary())
	} else {
		logger.Infof("StepListener: %s", se.Summary())
	}
	return nil
}

var _ port.StepExecutionListener = (*StepListener)(nil)

// --- Chunk Listener ---

type ChunkListener struct{}

func NewChunkListener() *ChunkListener { return &ChunkListener{} }

func (l *ChunkListener) BeforeChunk(_ context.Context, se *model.StepExecution) {
	logger.Debugf("ChunkListener: step '%s' opening chunk %d.", se.StepName, se.CommitCount+se.RollbackCount+1)
}

func (l *ChunkListener) AfterChunk(_ context.Context, se *model.StepExecution) {
	logger.Debugf("ChunkListener: step '%s' committed; read=%d write=%d filter=%d.",
		se.StepName, se.ReadCount, se.WriteCount, se.FilterCount)
}

func (l *ChunkListener) AfterChunkError(_ context.Context, se *model.StepExecution, err error) {
	logger.Warnf("ChunkListener: step '%s' rolled back a chunk: %v", se.StepName, err)
}

var _ port.ChunkListener = (*ChunkListener)(nil)

// --- Skip Listener ---

type SkipListener struct{}

func NewSkipListener() *SkipListener { return &SkipListener{} }

func (l *SkipListener) OnSkipInRead(ctx context.Context, err error) {
	logger.Warnf("SkipListener: %sskipped a read: %v", stepPrefix(ctx), err)
}

func (l *SkipListener) OnSkipInProcess(ctx context.Context, item interface{}, err error) {
	logger.Warnf("SkipListener: %sskipped item %+v in process: %v", stepPrefix(ctx), item, err)
}

func (l *SkipListener) OnSkipInWrite(ctx context.Context, item interface{}, err error) {
	logger.Warnf("SkipListener: %sskipped item %+v in write: %v", stepPrefix(ctx), item, err)
}

var _ port.SkipListener = (*SkipListener)(nil)

// --- Retry Listener ---

type RetryListener struct{}

func NewRetryListener() *RetryListener { return &RetryListener{} }

func (l *RetryListener) OnRetry(ctx context.Context, attempt int, err error) {
	logger.Warnf("RetryListener: %sattempt %d failed, retrying: %v", stepPrefix(ctx), attempt, err)
}

var _ port.RetryListener = (*RetryListener)(nil)

func stepPrefix(ctx context.Context) string {
	if se, ok := port.StepExecutionFromContext(ctx); ok {
		return "step '" + se.StepName + "' "
	}
	return ""
}
