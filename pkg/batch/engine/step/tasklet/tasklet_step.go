// Package tasklet implements steps whose body is a single Tasklet call.
package tasklet

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/chunkflow/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/chunkflow/pkg/batch/core/metrics"
	tx "github.com/tigerroll/chunkflow/pkg/batch/core/tx"
	"github.com/tigerroll/chunkflow/pkg/batch/engine/step"
	exception "github.com/tigerroll/chunkflow/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

// TaskletStep runs a Tasklet inside one unit-of-work.
type TaskletStep struct {
	step.Base

	tasklet        port.Tasklet
	txManager      tx.TransactionManager
	isolationLevel sql.IsolationLevel
	tracer         metrics.Tracer
}

// NewTaskletStep creates a TaskletStep. A nil txManager selects the resourceless manager.
func NewTaskletStep(
	name string,
	tasklet port.Tasklet,
	jobRepository repository.JobRepository,
	txManager tx.TransactionManager,
	listeners []port.StepExecutionListener,
	promotion *step.Promotion,
) *TaskletStep {
	if txManager == nil {
		txManager = tx.NewResourcelessTransactionManager()
	}
	return &TaskletStep{
		Base: step.Base{
			Name:       name,
			Repository: jobRepository,
			Listeners:  listeners,
			Promotion:  promotion,
		},
		tasklet:   tasklet,
		txManager: txManager,
		tracer:    &metrics.NoOpTracer{},
	}
}

// WithIsolationLevel sets the isolation level of the step transaction from its JSL name,
// e.g. READ_COMMITTED or SERIALIZABLE.
func (s *TaskletStep) WithIsolationLevel(level string) *TaskletStep {
	s.isolationLevel = ParseIsolationLevel(level)
	return s
}

// ParseIsolationLevel converts a JSL isolation name to sql.IsolationLevel.
func ParseIsolationLevel(level string) sql.IsolationLevel {
	switch strings.ToUpper(level) {
	case "READ_UNCOMMITTED":
		return sql.LevelReadUncommitted
	case "READ_COMMITTED":
		return sql.LevelReadCommitted
	case "WRITE_COMMITTED":
		return sql.LevelWriteCommitted
	case "REPEATABLE_READ":
		return sql.LevelRepeatableRead
	case "SERIALIZABLE":
		return sql.LevelSerializable
	default:
		return sql.LevelDefault
	}
}

// SetMetricRecorder implements step.Instrumented. Tasklets record no item metrics.
func (s *TaskletStep) SetMetricRecorder(metrics.MetricRecorder) {}

// SetTracer implements step.Instrumented.
func (s *TaskletStep) SetTracer(t metrics.Tracer) { s.tracer = t }

// Execute implements port.Step.
func (s *TaskletStep) Execute(ctx context.Context, je *model.JobExecution, se *model.StepExecution) error {
	return s.Run(ctx, je, se, s.run)
}

func (s *TaskletStep) run(ctx context.Context, _ *model.JobExecution, se *model.StepExecution) (err error) {
	logger.Infof("TaskletStep '%s' executing.", s.Name)
	ctx = port.WithStepExecution(ctx, se)

	stream, isStream := s.tasklet.(port.ItemStream)
	if isStream {
		if err := stream.Open(ctx, se.ExecutionContext); err != nil {
			return exception.NewBatchError(s.Name, "failed to open tasklet", err, false, false)
		}
		defer func() {
			if closeErr := stream.Close(context.WithoutCancel(ctx)); closeErr != nil {
				logger.Errorf("TaskletStep '%s': failed to close tasklet: %v", s.Name, closeErr)
				if err == nil {
					err = closeErr
				}
			}
		}()
	}

	t, err := s.txManager.Begin(ctx, &sql.TxOptions{Isolation: s.isolationLevel})
	if err != nil {
		return exception.NewBatchError(s.Name, "failed to begin tasklet transaction", err, false, false)
	}

	exit, err := s.execute(tx.WithTx(ctx, t), se)
	if err == nil && exit.Is(model.ExitCodeFailed) {
		err = fmt.Errorf("tasklet returned exit status %s", exit)
	}
	if err != nil {
		s.tracer.RecordError(ctx, s.Name, err)
		if rbErr := s.txManager.Rollback(t); rbErr != nil {
			logger.Warnf("TaskletStep '%s': rollback failed: %v", s.Name, rbErr)
		}
		se.RollbackCount++
		return err
	}
	if err := s.txManager.Commit(t); err != nil {
		se.RollbackCount++
		return exception.NewBatchError(s.Name, "failed to commit tasklet transaction", err, false, false)
	}
	se.CommitCount++

	if isStream {
		if err := stream.Update(ctx, se.ExecutionContext); err != nil {
			return exception.NewBatchError(s.Name, "failed to update tasklet state", err, false, false)
		}
	}
	if !exit.IsRunning() && exit.ExitCode != "" {
		se.ExitStatus = exit
	}
	return nil
}

func (s *TaskletStep) execute(ctx context.Context, se *model.StepExecution) (exit model.ExitStatus, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tasklet panicked: %v", r)
		}
	}()
	return s.tasklet.Execute(ctx, se)
}

var (
	_ port.Step         = (*TaskletStep)(nil)
	_ step.Instrumented = (*TaskletStep)(nil)
)
