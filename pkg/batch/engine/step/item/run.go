package item

import (
	"context"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkflow/pkg/batch/infrastructure/repository/inmemory"
)

// StepResult summarizes a finished chunk step.
type StepResult struct {
	Status        model.JobStatus
	ExitStatus    model.ExitStatus
	ReadCount     int
	WriteCount    int
	CommitCount   int
	RollbackCount int
	FilterCount   int
	SkipCount     int
}

// RunChunkStep runs reader, processor and writer as a standalone chunk step against a
// throwaway in-memory repository. The error is the one that ended the step.
func RunChunkStep[I, O any](
	ctx context.Context,
	reader port.ItemReader[I],
	processor port.ItemProcessor[I, O],
	writer port.ItemWriter[O],
	commitInterval int,
	opts ...Option,
) (*StepResult, error) {
	repo := inmemory.NewInMemoryJobRepository()
	instance, err := model.NewJobInstance("adhoc", model.NewJobParameters())
	if err != nil {
		return nil, err
	}
	if err := repo.SaveJobInstance(ctx, instance); err != nil {
		return nil, err
	}
	je := model.NewJobExecution(instance, instance.Parameters)
	if err := repo.SaveJobExecution(ctx, je); err != nil {
		return nil, err
	}
	se := model.NewStepExecution("adhocStep", je)
	if err := repo.SaveStepExecution(ctx, se); err != nil {
		return nil, err
	}

	s := NewChunkStep[I, O]("adhocStep", reader, processor, writer, commitInterval, repo, nil, opts...)
	runErr := s.Execute(ctx, je, se)
	return &StepResult{
		Status:        se.Status,
		ExitStatus:    se.ExitStatus,
		ReadCount:     se.ReadCount,
		WriteCount:    se.WriteCount,
		CommitCount:   se.CommitCount,
		RollbackCount: se.RollbackCount,
		FilterCount:   se.FilterCount,
		SkipCount:     se.SkipCount(),
	}, runErr
}
