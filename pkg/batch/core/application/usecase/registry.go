package usecase

import (
	"fmt"
	"sort"
	"sync"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	logger "github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

// MapJobRegistry is an in-process JobRegistry.
type MapJobRegistry struct {
	mu   sync.RWMutex
	jobs map[string]port.Job
}

var _ JobRegistry = (*MapJobRegistry)(nil)

// NewMapJobRegistry creates a registry holding jobs.
func NewMapJobRegistry(jobs ...port.Job) (*MapJobRegistry, error) {
	r := &MapJobRegistry{jobs: make(map[string]port.Job, len(jobs))}
	for _, j := range jobs {
		if err := r.Register(j); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds job. Names must be unique.
func (r *MapJobRegistry) Register(job port.Job) error {
	if job == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.jobs[job.JobName()]; dup {
		return fmt.Errorf("job '%s' is already registered", job.JobName())
	}
	r.jobs[job.JobName()] = job
	logger.Debugf("Registered job '%s'.", job.JobName())
	return nil
}

// GetJob implements JobRegistry.
func (r *MapJobRegistry) GetJob(name string) (port.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrNoSuchJob, name)
	}
	return job, nil
}

// JobNames implements JobRegistry.
func (r *MapJobRegistry) JobNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
