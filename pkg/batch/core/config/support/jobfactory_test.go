package support

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	config "github.com/tigerroll/chunkflow/pkg/batch/core/config"
	jsl "github.com/tigerroll/chunkflow/pkg/batch/core/config/jsl"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkflow/pkg/batch/core/job/runner"
	"github.com/tigerroll/chunkflow/pkg/batch/core/job/split"
	metrics "github.com/tigerroll/chunkflow/pkg/batch/core/metrics"
	"github.com/tigerroll/chunkflow/pkg/batch/engine/step/executor"
	"github.com/tigerroll/chunkflow/pkg/batch/engine/step/partition"
	"github.com/tigerroll/chunkflow/pkg/batch/engine/worker"
	"github.com/tigerroll/chunkflow/pkg/batch/infrastructure/repository/inmemory"
	testutil "github.com/tigerroll/chunkflow/pkg/batch/test"
)

type factoryHarness struct {
	repo     *inmemory.InMemoryJobRepository
	factory  *JobFactory
	registry *ComponentRegistry
	written  *testutil.RecordingWriter[any]

	mu      sync.Mutex
	ran     []string
	events  []string
	readers int
}

func newFactoryHarness(t *testing.T) *factoryHarness {
	t.Helper()
	repo := inmemory.NewInMemoryJobRepository()
	exec := executor.NewSimpleStepExecutor(nil, nil)
	pool := worker.NewPool(worker.WithSize(2))
	cfg := &config.Config{}
	cfg.Chunkflow.Batch.ChunkSize = 2
	cfg.Chunkflow.Batch.GridSize = 3

	h := &factoryHarness{repo: repo, registry: NewComponentRegistry(), written: &testutil.RecordingWriter[any]{}}
	h.factory = NewJobFactory(JobFactoryParams{
		Config:     cfg,
		Registry:   h.registry,
		Builder:    &runner.Builder{Executor: exec, Repository: repo, Recorder: metrics.NewNoOpMetricRecorder(), Tracer: metrics.NewNoOpTracer()},
		Splits:     split.NewFactory(worker.NewPool()),
		Partitions: &partition.HandlerFactory{Pool: pool, Executor: exec, Repository: repo},
		Repository: repo,
	})

	h.registry.RegisterReader("numbers", func(_ *config.Config, props map[string]string) (port.ItemReader[any], error) {
		n, err := strconv.Atoi(props["count"])
		if err != nil {
			return nil, err
		}
		h.mu.Lock()
		h.readers++
		h.mu.Unlock()
		items := make([]any, n)
		for i := range items {
			items[i] = i + 1
		}
		return testutil.NewSliceReader(items...), nil
	})
	h.registry.RegisterProcessor("double", func(*config.Config, map[string]string) (port.ItemProcessor[any, any], error) {
		return port.ItemProcessorFunc[any, any](func(_ context.Context, item any) (any, bool, error) {
			return item.(int) * 2, false, nil
		}), nil
	})
	h.registry.RegisterWriter("collect", func(*config.Config, map[string]string) (port.ItemWriter[any], error) {
		return h.written, nil
	})
	h.registry.RegisterTasklet("record", func(_ *config.Config, props map[string]string) (port.Tasklet, error) {
		return port.TaskletFunc(func(_ context.Context, se *model.StepExecution) (model.ExitStatus, error) {
			h.mu.Lock()
			h.ran = append(h.ran, se.StepName)
			h.mu.Unlock()
			if props["fail"] == "true" {
				return model.ExitStatusFailed, errors.New("tasklet failed")
			}
			return model.ExitStatusCompleted, nil
		}), nil
	})
	h.registry.RegisterDecider("writtenCount", func(*config.Config, map[string]string) (runner.Decider, error) {
		return runner.DeciderFunc(func(context.Context, *model.JobExecution, *model.StepExecution) (model.ExitStatus, error) {
			return model.NewExitStatus("ITEMS_"+strconv.Itoa(len(h.written.Items())), ""), nil
		}), nil
	})
	h.registry.RegisterListener("audit", func(*config.Config, map[string]string) (interface{}, error) {
		return &auditListener{h: h}, nil
	})
	return h
}

type auditListener struct{ h *factoryHarness }

func (a *auditListener) record(event string) {
	a.h.mu.Lock()
	defer a.h.mu.Unlock()
	a.h.events = append(a.h.events, event)
}

func (a *auditListener) BeforeJob(_ context.Context, je *model.JobExecution) error {
	a.record("beforeJob:" + je.JobName)
	return nil
}

func (a *auditListener) AfterJob(_ context.Context, je *model.JobExecution) error {
	a.record("afterJob:" + string(je.Status))
	return nil
}

func (a *auditListener) BeforeStep(_ context.Context, se *model.StepExecution) error {
	a.record("beforeStep:" + se.StepName)
	return nil
}

func (a *auditListener) AfterStep(context.Context, *model.StepExecution) *model.ExitStatus {
	return nil
}

func (h *factoryHarness) load(t *testing.T, doc string) jsl.Job {
	t.Helper()
	defs, err := jsl.Load([]byte(doc), nil)
	require.NoError(t, err)
	names := defs.Names()
	require.Len(t, names, 1)
	def, _ := defs.Get(names[0])
	return def
}

func (h *factoryHarness) run(t *testing.T, job port.Job, params model.JobParameters) *model.JobExecution {
	t.Helper()
	ctx := context.Background()
	instance, err := model.NewJobInstance(job.JobName(), params)
	require.NoError(t, err)
	require.NoError(t, h.repo.SaveJobInstance(ctx, instance))
	je := model.NewJobExecution(instance, params)
	require.NoError(t, h.repo.SaveJobExecution(ctx, je))
	_ = job.Run(ctx, je)
	return je
}

const chunkAndDecisionJob = `
name: numbersJob
listeners:
  - ref: audit
incrementer:
  ref: runIdIncrementer
validators:
  - ref: requiredParameters
    properties:
      required: input
flow:
  elements:
    - step:
        name: load
        chunk: {}
        reader:
          ref: numbers
          properties: {count: "5"}
        processor:
          ref: double
        writer:
          ref: collect
        listeners:
          - ref: audit
    - decision:
        name: check
        decider:
          ref: writtenCount
        transitions:
          - on: ITEMS_5
            to: report
          - on: "*"
            fail: true
    - step:
        name: report
        tasklet:
          ref: record
`

func TestJobFactory_ChunkStepAndDecision(t *testing.T) {
	h := newFactoryHarness(t)
	job, err := h.factory.Build(h.load(t, chunkAndDecisionJob))
	require.NoError(t, err)

	require.NotNil(t, job.Incrementer())
	require.NotNil(t, job.Validator())
	assert.Error(t, job.Validator().Validate(model.NewJobParameters()))
	params := model.NewJobParameters().PutString("input", "numbers.txt")
	require.NoError(t, job.Validator().Validate(params))

	je := h.run(t, job, params)

	assert.Equal(t, model.BatchStatusCompleted, je.Status)
	assert.Equal(t, []any{2, 4, 6, 8, 10}, h.written.Items())
	// commit-interval falls back to batch.chunkSize.
	assert.Equal(t, 3, h.written.Calls())
	assert.Equal(t, []string{"report"}, h.ran)
	assert.Equal(t, []string{"beforeJob:numbersJob", "beforeStep:load", "afterJob:COMPLETED"}, h.events)

	load, ok := je.FindStepExecution("load")
	require.True(t, ok)
	assert.Equal(t, 5, load.ReadCount)
	assert.Equal(t, 5, load.WriteCount)
}

func TestJobFactory_SplitRunsEveryFlow(t *testing.T) {
	h := newFactoryHarness(t)
	job, err := h.factory.Build(h.load(t, `
name: splitJob
flow:
  elements:
    - split:
        name: fanout
        flows:
          - elements:
              - step: {name: left, tasklet: {ref: record}}
          - elements:
              - step: {name: right, tasklet: {ref: record}}
    - step: {name: after, tasklet: {ref: record}}
`))
	require.NoError(t, err)

	je := h.run(t, job, model.NewJobParameters())

	assert.Equal(t, model.BatchStatusCompleted, je.Status)
	assert.ElementsMatch(t, []string{"left", "right"}, h.ran[:2])
	assert.Equal(t, "after", h.ran[2])
}

func TestJobFactory_PartitionedChunkStep(t *testing.T) {
	h := newFactoryHarness(t)
	job, err := h.factory.Build(h.load(t, `
name: partitionJob
flow:
  elements:
    - step:
        name: load
        partition: {}
        chunk: {commit-interval: 10}
        reader:
          ref: numbers
          properties: {count: "4"}
        writer:
          ref: collect
`))
	require.NoError(t, err)

	je := h.run(t, job, model.NewJobParameters())

	assert.Equal(t, model.BatchStatusCompleted, je.Status)
	// One reader per partition plus the one built to check the definition.
	assert.Equal(t, 4, h.readers)
	assert.Len(t, h.written.Items(), 12)

	controller, ok := je.FindStepExecution("load")
	require.True(t, ok)
	assert.Equal(t, 12, controller.ReadCount)
}

func TestJobFactory_PartitionedStepsInsideSplitJoin(t *testing.T) {
	h := newFactoryHarness(t)
	// As many branches as the partition pool has slots, each fanning out further.
	job, err := h.factory.Build(h.load(t, `
name: nestedJob
flow:
  elements:
    - split:
        name: fanout
        flows:
          - elements:
              - step: {name: east, partition: {grid-size: 3}, tasklet: {ref: record}}
          - elements:
              - step: {name: west, partition: {grid-size: 3}, tasklet: {ref: record}}
`))
	require.NoError(t, err)

	done := make(chan *model.JobExecution, 1)
	go func() { done <- h.run(t, job, model.NewJobParameters()) }()

	var je *model.JobExecution
	select {
	case je = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("split with partitioned branches did not join")
	}

	assert.Equal(t, model.BatchStatusCompleted, je.Status)
	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.ran, 6)
	var east, west int
	for _, name := range h.ran {
		switch {
		case strings.HasPrefix(name, "east:"):
			east++
		case strings.HasPrefix(name, "west:"):
			west++
		}
	}
	assert.Equal(t, 3, east)
	assert.Equal(t, 3, west)
}

func TestJobFactory_FailedTaskletFailsJob(t *testing.T) {
	h := newFactoryHarness(t)
	job, err := h.factory.Build(h.load(t, `
name: failJob
flow:
  elements:
    - step:
        name: broken
        tasklet:
          ref: record
          properties: {fail: "true"}
    - step: {name: never, tasklet: {ref: record}}
`))
	require.NoError(t, err)

	je := h.run(t, job, model.NewJobParameters())

	assert.Equal(t, model.BatchStatusFailed, je.Status)
	assert.Equal(t, []string{"broken"}, h.ran)
}

func TestJobFactory_UnresolvableReferences(t *testing.T) {
	cases := map[string]string{
		"unknown reader": `
name: j
flow:
  elements:
    - step:
        name: s
        chunk: {}
        reader: {ref: missing}
        writer: {ref: collect}`,
		"unknown tasklet": `
name: j
flow:
  elements:
    - step: {name: s, tasklet: {ref: missing}}`,
		"unknown decider": `
name: j
flow:
  elements:
    - decision: {name: d, decider: {ref: missing}}`,
		"unknown transition target": `
name: j
flow:
  elements:
    - step:
        name: s
        tasklet: {ref: record}
        transitions:
          - {on: "*", to: nowhere}`,
		"tx manager without database": `
name: j
flow:
  elements:
    - step:
        name: s
        chunk: {transaction-manager: appdb}
        reader: {ref: numbers, properties: {count: "1"}}
        writer: {ref: collect}`,
		"job listener of wrong kind": `
name: j
listeners:
  - ref: chunkOnly
flow:
  elements:
    - step: {name: s, tasklet: {ref: record}}`,
		"unknown incrementer": `
name: j
incrementer: {ref: missing}
flow:
  elements:
    - step: {name: s, tasklet: {ref: record}}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			h := newFactoryHarness(t)
			h.registry.RegisterListener("chunkOnly", func(*config.Config, map[string]string) (interface{}, error) {
				return struct{}{}, nil
			})
			_, err := h.factory.Build(h.load(t, doc))
			assert.Error(t, err)
		})
	}
}

func TestJobFactory_BuildAll(t *testing.T) {
	h := newFactoryHarness(t)
	defs, err := jsl.Load([]byte(`
name: first
flow:
  elements:
    - step: {name: a, tasklet: {ref: record}}
---
name: second
flow:
  elements:
    - step: {name: b, tasklet: {ref: record}}
`), nil)
	require.NoError(t, err)

	jobs, err := h.factory.BuildAll(defs)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "first", jobs[0].JobName())
	assert.Equal(t, "second", jobs[1].JobName())
}

func TestComponentRegistry_DuplicatePanics(t *testing.T) {
	r := NewComponentRegistry()
	b := func(*config.Config, map[string]string) (port.Tasklet, error) { return nil, nil }
	r.RegisterTasklet("t", b)
	assert.Panics(t, func() { r.RegisterTasklet("t", b) })

	_, err := r.Writer("nope")
	assert.ErrorContains(t, err, "no writer registered as 'nope'")
}
