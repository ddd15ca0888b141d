// Package inmemory provides a map-backed JobRepository for tests and for jobs that do not
// need durable metadata. Stored executions are snapshots: callers never share pointers
// with the repository.
package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkflow/pkg/batch/core/domain/repository"
	"github.com/tigerroll/chunkflow/pkg/batch/support/util/exception"
)

// InMemoryJobRepository implements repository.JobRepository.
type InMemoryJobRepository struct {
	mu             sync.RWMutex
	jobInstances   map[string]*model.JobInstance
	jobExecutions  map[string]*model.JobExecution
	stepExecutions map[string]*model.StepExecution
	contexts       map[port.Scope]model.ExecutionContext
	seq            int64
	order          map[string]int64
}

var _ repository.JobRepository = (*InMemoryJobRepository)(nil)

// NewInMemoryJobRepository creates an empty repository.
func NewInMemoryJobRepository() *InMemoryJobRepository {
	return &InMemoryJobRepository{
		jobInstances:   make(map[string]*model.JobInstance),
		jobExecutions:  make(map[string]*model.JobExecution),
		stepExecutions: make(map[string]*model.StepExecution),
		contexts:       make(map[port.Scope]model.ExecutionContext),
		order:          make(map[string]int64),
	}
}

// Close implements repository.JobRepository.
func (r *InMemoryJobRepository) Close() error { return nil }

// --- JobInstance ---

func (r *InMemoryJobRepository) SaveJobInstance(ctx context.Context, instance *model.JobInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ji := range r.jobInstances {
		if ji.JobName == instance.JobName && ji.ParametersHash == instance.ParametersHash {
			return repository.ErrJobInstanceAlreadyExists
		}
	}
	cp := *instance
	r.jobInstances[instance.ID] = &cp
	r.track(instance.ID)
	return nil
}

func (r *InMemoryJobRepository) FindJobInstanceByID(ctx context.Context, id string) (*model.JobInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ji, ok := r.jobInstances[id]
	if !ok {
		return nil, repository.ErrJobInstanceNotFound
	}
	cp := *ji
	return &cp, nil
}

func (r *InMemoryJobRepository) FindJobInstanceByJobNameAndParameters(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ji := range r.jobInstances {
		if ji.JobName == jobName && ji.Parameters.Equal(params) {
			cp := *ji
			return &cp, nil
		}
	}
	return nil, repository.ErrJobInstanceNotFound
}

func (r *InMemoryJobRepository) FindLatestJobInstance(ctx context.Context, jobName string) (*model.JobInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *model.JobInstance
	var latestSeq int64
	for id, ji := range r.jobInstances {
		if ji.JobName != jobName {
			continue
		}
		if s := r.order[id]; latest == nil || s > latestSeq {
			latest, latestSeq = ji, s
		}
	}
	if latest == nil {
		return nil, repository.ErrJobInstanceNotFound
	}
	cp := *latest
	return &cp, nil
}

func (r *InMemoryJobRepository) GetJobInstanceCount(ctx context.Context, jobName string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, ji := range r.jobInstances {
		if ji.JobName == jobName {
			n++
		}
	}
	return n, nil
}

func (r *InMemoryJobRepository) GetJobNames(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, ji := range r.jobInstances {
		seen[ji.JobName] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// --- JobExecution ---

func (r *InMemoryJobRepository) SaveJobExecution(ctx context.Context, je *model.JobExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	je.Version = 0
	r.jobExecutions[je.ID] = cloneJobExecution(je)
	r.track(je.ID)
	return nil
}

func (r *InMemoryJobRepository) UpdateJobExecution(ctx context.Context, je *model.JobExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.jobExecutions[je.ID]
	if !ok {
		return repository.ErrJobExecutionNotFound
	}
	if stored.Version != je.Version {
		return exception.NewOptimisticLockingFailureException("InMemoryJobRepository",
			"JobExecution "+je.ID+" was updated concurrently", nil)
	}
	je.Version++
	r.jobExecutions[je.ID] = cloneJobExecution(je)
	return nil
}

func (r *InMemoryJobRepository) FindJobExecutionByID(ctx context.Context, id string) (*model.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	je, ok := r.jobExecutions[id]
	if !ok {
		return nil, repository.ErrJobExecutionNotFound
	}
	return r.loadLocked(je), nil
}

func (r *InMemoryJobRepository) FindJobExecutionsByJobInstance(ctx context.Context, instance *model.JobInstance) ([]*model.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.JobExecution
	for _, je := range r.jobExecutions {
		if je.JobInstanceID == instance.ID {
			out = append(out, r.loadLocked(je))
		}
	}
	sort.Slice(out, func(i, j int) bool { return r.order[out[i].ID] > r.order[out[j].ID] })
	return out, nil
}

func (r *InMemoryJobRepository) FindRunningJobExecutions(ctx context.Context, jobName string) ([]*model.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.JobExecution
	for _, je := range r.jobExecutions {
		if je.JobName == jobName && je.Status.IsRunning() {
			out = append(out, r.loadLocked(je))
		}
	}
	return out, nil
}

func (r *InMemoryJobRepository) loadLocked(stored *model.JobExecution) *model.JobExecution {
	je := cloneJobExecution(stored)
	var steps []*model.StepExecution
	for _, se := range r.stepExecutions {
		if se.JobExecutionID == je.ID {
			steps = append(steps, cloneStepExecution(se))
		}
	}
	sort.Slice(steps, func(i, j int) bool { return r.order[steps[i].ID] < r.order[steps[j].ID] })
	je.SetStepExecutions(steps)
	return je
}

// --- StepExecution ---

func (r *InMemoryJobRepository) SaveStepExecution(ctx context.Context, se *model.StepExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	se.Version = 0
	r.stepExecutions[se.ID] = cloneStepExecution(se)
	r.track(se.ID)
	return nil
}

func (r *InMemoryJobRepository) UpdateStepExecution(ctx context.Context, se *model.StepExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.stepExecutions[se.ID]
	if !ok {
		return repository.ErrStepExecutionNotFound
	}
	if stored.Version != se.Version {
		return exception.NewOptimisticLockingFailureException("InMemoryJobRepository",
			"StepExecution "+se.ID+" was updated concurrently", nil)
	}
	se.Version++
	r.stepExecutions[se.ID] = cloneStepExecution(se)
	return nil
}

func (r *InMemoryJobRepository) FindStepExecutionByID(ctx context.Context, id string) (*model.StepExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	se, ok := r.stepExecutions[id]
	if !ok {
		return nil, repository.ErrStepExecutionNotFound
	}
	return cloneStepExecution(se), nil
}

func (r *InMemoryJobRepository) FindStepExecutionsByJobExecutionID(ctx context.Context, jobExecutionID string) ([]*model.StepExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.StepExecution
	for _, se := range r.stepExecutions {
		if se.JobExecutionID == jobExecutionID {
			out = append(out, cloneStepExecution(se))
		}
	}
	sort.Slice(out, func(i, j int) bool { return r.order[out[i].ID] < r.order[out[j].ID] })
	return out, nil
}

// --- ExecutionContextStore ---

func (r *InMemoryJobRepository) Get(ctx context.Context, scope port.Scope, key string) (interface{}, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.contexts[scope][key]
	return v, ok, nil
}

func (r *InMemoryJobRepository) Put(ctx context.Context, scope port.Scope, key string, value interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ec, ok := r.contexts[scope]
	if !ok {
		ec = model.NewExecutionContext()
		r.contexts[scope] = ec
	}
	ec.Put(key, value)
	return nil
}

func (r *InMemoryJobRepository) Snapshot(ctx context.Context, scope port.Scope) (model.ExecutionContext, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.contexts[scope].Copy(), nil
}

// track records insertion order; callers hold the write lock.
func (r *InMemoryJobRepository) track(id string) {
	if _, ok := r.order[id]; ok {
		return
	}
	r.seq++
	r.order[id] = r.seq
}

func cloneJobExecution(je *model.JobExecution) *model.JobExecution {
	cp := &model.JobExecution{
		ID:               je.ID,
		JobInstanceID:    je.JobInstanceID,
		JobName:          je.JobName,
		Parameters:       je.Parameters,
		Status:           je.Status,
		ExitStatus:       je.ExitStatus,
		StartTime:        je.StartTime,
		CreateTime:       je.CreateTime,
		LastUpdated:      je.LastUpdated,
		ExecutionContext: je.ExecutionContext.Copy(),
		Failures:         append(model.FailureList(nil), je.Failures...),
		CurrentStepName:  je.CurrentStepName,
		Version:          je.Version,
	}
	if je.EndTime != nil {
		t := *je.EndTime
		cp.EndTime = &t
	}
	return cp
}

func cloneStepExecution(se *model.StepExecution) *model.StepExecution {
	cp := *se
	cp.JobExecution = nil
	cp.ExecutionContext = se.ExecutionContext.Copy()
	cp.Failures = append(model.FailureList(nil), se.Failures...)
	if se.EndTime != nil {
		t := *se.EndTime
		cp.EndTime = &t
	}
	return &cp
}
