package jsl

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	config "github.com/tigerroll/chunkflow/pkg/batch/core/config"
	exception "github.com/tigerroll/chunkflow/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

// DefinitionBytes is the raw content of a job definition file, usually embedded by main.
// A file may hold several YAML documents, one job each.
type DefinitionBytes []byte

// Definitions holds parsed job definitions in file order.
type Definitions struct {
	jobs  map[string]Job
	order []string
}

// Load expands ${VAR} placeholders with expander, then parses and validates every job
// document in data. A nil expander leaves data untouched.
func Load(data []byte, expander config.EnvironmentExpander) (*Definitions, error) {
	if expander != nil {
		expanded, err := expander.Expand(data)
		if err != nil {
			return nil, exception.NewBatchError("jsl", "failed to expand job definitions", err, false, false)
		}
		data = expanded
	}

	defs := &Definitions{jobs: make(map[string]Job)}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var job Job
		err := dec.Decode(&job)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, exception.NewBatchError("jsl", "failed to parse job definition", err, false, false)
		}
		if job.Name == "" && len(job.Flow.Elements) == 0 {
			continue
		}
		if err := Validate(job); err != nil {
			return nil, err
		}
		if _, dup := defs.jobs[job.Name]; dup {
			return nil, exception.NewBatchErrorf("jsl", "job '%s' is defined more than once", job.Name)
		}
		defs.jobs[job.Name] = job
		defs.order = append(defs.order, job.Name)
		logger.Debugf("JSL: loaded job '%s' with %d elements.", job.Name, len(job.Flow.Elements))
	}
	logger.Infof("JSL: %d job definitions loaded.", len(defs.order))
	return defs, nil
}

// Get returns the definition of the named job.
func (d *Definitions) Get(name string) (Job, bool) {
	job, ok := d.jobs[name]
	return job, ok
}

// Names returns the job names in file order.
func (d *Definitions) Names() []string {
	return append([]string(nil), d.order...)
}

// Validate checks the structure of job without resolving any component reference.
func Validate(job Job) error {
	if job.Name == "" {
		return exception.NewBatchErrorf("jsl", "job definition has no name")
	}
	seen := make(map[string]struct{})
	if err := validateFlow(job.Name, job.Flow, seen); err != nil {
		return err
	}
	return nil
}

func validateFlow(jobName string, flow Flow, seen map[string]struct{}) error {
	if len(flow.Elements) == 0 {
		return exception.NewBatchErrorf("jsl", "job '%s': flow '%s' has no elements", jobName, flow.Name)
	}
	for i, el := range flow.Elements {
		kinds := 0
		for _, set := range []bool{el.Step != nil, el.Split != nil, el.Decision != nil} {
			if set {
				kinds++
			}
		}
		if kinds != 1 {
			return exception.NewBatchErrorf("jsl", "job '%s': element %d must define exactly one of step, split or decision", jobName, i)
		}
		name := el.Name()
		if name == "" {
			return exception.NewBatchErrorf("jsl", "job '%s': element %d has no name", jobName, i)
		}
		if _, dup := seen[name]; dup {
			return exception.NewBatchErrorf("jsl", "job '%s': element name '%s' is used more than once", jobName, name)
		}
		seen[name] = struct{}{}

		switch {
		case el.Step != nil:
			if err := validateStep(jobName, el.Step); err != nil {
				return err
			}
		case el.Split != nil:
			if len(el.Split.Flows) == 0 {
				return exception.NewBatchErrorf("jsl", "job '%s': split '%s' has no flows", jobName, name)
			}
			for j, f := range el.Split.Flows {
				if f.Name == "" {
					f.Name = fmt.Sprintf("%s.flow%d", name, j)
				}
				if err := validateFlow(jobName, f, seen); err != nil {
					return err
				}
			}
		case el.Decision != nil:
			if el.Decision.Decider.Ref == "" {
				return exception.NewBatchErrorf("jsl", "job '%s': decision '%s' has no decider", jobName, name)
			}
		}
	}
	return nil
}

func validateStep(jobName string, s *Step) error {
	switch {
	case s.Tasklet != nil && s.Chunk != nil:
		return exception.NewBatchErrorf("jsl", "job '%s': step '%s' cannot be both a chunk and a tasklet step", jobName, s.Name)
	case s.Tasklet != nil:
		return nil
	case s.Chunk != nil:
		if s.Reader == nil || s.Writer == nil {
			return exception.NewBatchErrorf("jsl", "job '%s': chunk step '%s' needs a reader and a writer", jobName, s.Name)
		}
		return nil
	}
	return exception.NewBatchErrorf("jsl", "job '%s': step '%s' defines neither chunk nor tasklet", jobName, s.Name)
}
