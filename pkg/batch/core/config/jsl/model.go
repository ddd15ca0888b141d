// Package jsl defines the YAML job definition language: a job is an ordered flow of
// steps, splits and decisions whose components are named references resolved by the job
// factory.
package jsl

import (
	"github.com/tigerroll/chunkflow/pkg/batch/core/job/runner"
	"github.com/tigerroll/chunkflow/pkg/batch/engine/step"
)

// Job is one job definition document.
type Job struct {
	// Name is the logical job name used by the launcher.
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Flow        Flow   `yaml:"flow"`
	// Listeners are JobExecutionListener references.
	Listeners   []ComponentRef `yaml:"listeners,omitempty"`
	Incrementer *ComponentRef  `yaml:"incrementer,omitempty"`
	// Validators are combined; the first failure wins.
	Validators []ComponentRef `yaml:"validators,omitempty"`
}

// Flow is an ordered list of elements. Without a matching transition a successful
// element continues with the next one in the list.
type Flow struct {
	Name     string    `yaml:"name,omitempty"`
	Elements []Element `yaml:"elements"`
}

// Element holds exactly one of Step, Split or Decision.
type Element struct {
	Step     *Step     `yaml:"step,omitempty"`
	Split    *Split    `yaml:"split,omitempty"`
	Decision *Decision `yaml:"decision,omitempty"`
}

// Step defines a chunk or tasklet step, optionally partitioned.
type Step struct {
	Name string `yaml:"name"`

	Chunk     *Chunk        `yaml:"chunk,omitempty"`
	Reader    *ComponentRef `yaml:"reader,omitempty"`
	Processor *ComponentRef `yaml:"processor,omitempty"`
	Writer    *ComponentRef `yaml:"writer,omitempty"`

	Tasklet        *ComponentRef `yaml:"tasklet,omitempty"`
	IsolationLevel string        `yaml:"isolation-level,omitempty"`

	// Partition turns the step into a controller running this step definition once per
	// partition.
	Partition *Partition `yaml:"partition,omitempty"`

	// Listeners are step, chunk, skip or retry listener references.
	Listeners   []ComponentRef      `yaml:"listeners,omitempty"`
	Promotion   *step.Promotion     `yaml:"execution-context-promotion,omitempty"`
	Transitions []runner.Transition `yaml:"transitions,omitempty"`
}

// Chunk configures a chunk-oriented step.
type Chunk struct {
	CommitInterval int `yaml:"commit-interval"`
	// TransactionManager names a database from the configuration. Empty means
	// resourceless.
	TransactionManager string      `yaml:"transaction-manager,omitempty"`
	Retry              *RetryLimit `yaml:"retry,omitempty"`
	Skip               *SkipLimit  `yaml:"skip,omitempty"`
}

// RetryLimit configures the retry policy of a chunk step.
type RetryLimit struct {
	// MaxAttempts counts the first attempt; below 2 disables retries.
	MaxAttempts int `yaml:"max-attempts"`
	// Exceptions are registered error type names; empty means every error.
	Exceptions []string `yaml:"exceptions,omitempty"`
	BackoffMs  int      `yaml:"backoff-ms,omitempty"`
}

// SkipLimit configures the skip policy of a chunk step.
type SkipLimit struct {
	Limit      int      `yaml:"limit"`
	Exceptions []string `yaml:"exceptions,omitempty"`
}

// Partition configures a partitioned step.
type Partition struct {
	// Partitioner defaults to the simple partitioner.
	Partitioner *ComponentRef `yaml:"partitioner,omitempty"`
	// GridSize falls back to batch.gridSize from the configuration.
	GridSize int `yaml:"grid-size,omitempty"`
}

// Split runs its flows in parallel.
type Split struct {
	Name        string              `yaml:"name"`
	Flows       []Flow              `yaml:"flows"`
	Transitions []runner.Transition `yaml:"transitions,omitempty"`
}

// Decision routes on a registered decider's exit status.
type Decision struct {
	Name        string              `yaml:"name"`
	Decider     ComponentRef        `yaml:"decider"`
	Transitions []runner.Transition `yaml:"transitions,omitempty"`
}

// ComponentRef names a registered component builder and its properties.
type ComponentRef struct {
	Ref        string            `yaml:"ref"`
	Properties map[string]string `yaml:"properties,omitempty"`
}

// Name returns the element's name.
func (e Element) Name() string {
	switch {
	case e.Step != nil:
		return e.Step.Name
	case e.Split != nil:
		return e.Split.Name
	case e.Decision != nil:
		return e.Decision.Name
	}
	return ""
}
