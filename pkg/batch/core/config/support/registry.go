package support

import (
	"fmt"
	"sort"
	"sync"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	config "github.com/tigerroll/chunkflow/pkg/batch/core/config"
	"github.com/tigerroll/chunkflow/pkg/batch/core/job/runner"
)

// Builders receive the application configuration and the properties of the component
// reference. They are called once per step, and once per partition for partitioned steps,
// so they must return fresh instances for stateful components.
type (
	ReaderBuilder      func(cfg *config.Config, properties map[string]string) (port.ItemReader[any], error)
	ProcessorBuilder   func(cfg *config.Config, properties map[string]string) (port.ItemProcessor[any, any], error)
	WriterBuilder      func(cfg *config.Config, properties map[string]string) (port.ItemWriter[any], error)
	TaskletBuilder     func(cfg *config.Config, properties map[string]string) (port.Tasklet, error)
	DeciderBuilder     func(cfg *config.Config, properties map[string]string) (runner.Decider, error)
	PartitionerBuilder func(cfg *config.Config, properties map[string]string) (port.Partitioner, error)
	IncrementerBuilder func(cfg *config.Config, properties map[string]string) (port.JobParametersIncrementer, error)
	ValidatorBuilder   func(cfg *config.Config, properties map[string]string) (port.JobParametersValidator, error)
	// ListenerBuilder returns a value implementing one or more listener interfaces.
	ListenerBuilder func(cfg *config.Config, properties map[string]string) (interface{}, error)
)

// ComponentRegistry maps reference names from job definitions to builders.
type ComponentRegistry struct {
	mu           sync.RWMutex
	readers      map[string]ReaderBuilder
	processors   map[string]ProcessorBuilder
	writers      map[string]WriterBuilder
	tasklets     map[string]TaskletBuilder
	deciders     map[string]DeciderBuilder
	partitioners map[string]PartitionerBuilder
	incrementers map[string]IncrementerBuilder
	validators   map[string]ValidatorBuilder
	listeners    map[string]ListenerBuilder
}

// NewComponentRegistry creates an empty registry.
func NewComponentRegistry() *ComponentRegistry {
	return &ComponentRegistry{
		readers:      make(map[string]ReaderBuilder),
		processors:   make(map[string]ProcessorBuilder),
		writers:      make(map[string]WriterBuilder),
		tasklets:     make(map[string]TaskletBuilder),
		deciders:     make(map[string]DeciderBuilder),
		partitioners: make(map[string]PartitionerBuilder),
		incrementers: make(map[string]IncrementerBuilder),
		validators:   make(map[string]ValidatorBuilder),
		listeners:    make(map[string]ListenerBuilder),
	}
}

func register[B any](mu *sync.RWMutex, m map[string]B, kind, name string, b B) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := m[name]; dup {
		panic(fmt.Sprintf("%s '%s' is already registered", kind, name))
	}
	m[name] = b
}

func lookup[B any](mu *sync.RWMutex, m map[string]B, kind, name string) (B, error) {
	mu.RLock()
	defer mu.RUnlock()
	b, ok := m[name]
	if !ok {
		var zero B
		return zero, fmt.Errorf("no %s registered as '%s' (known: %v)", kind, name, keys(m))
	}
	return b, nil
}

func keys[B any](m map[string]B) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// RegisterReader registers b as name. Like every Register method it panics on a duplicate
// name, since registrations happen at startup.
func (r *ComponentRegistry) RegisterReader(name string, b ReaderBuilder) {
	register(&r.mu, r.readers, "reader", name, b)
}

func (r *ComponentRegistry) RegisterProcessor(name string, b ProcessorBuilder) {
	register(&r.mu, r.processors, "processor", name, b)
}

func (r *ComponentRegistry) RegisterWriter(name string, b WriterBuilder) {
	register(&r.mu, r.writers, "writer", name, b)
}

func (r *ComponentRegistry) RegisterTasklet(name string, b TaskletBuilder) {
	register(&r.mu, r.tasklets, "tasklet", name, b)
}

func (r *ComponentRegistry) RegisterDecider(name string, b DeciderBuilder) {
	register(&r.mu, r.deciders, "decider", name, b)
}

func (r *ComponentRegistry) RegisterPartitioner(name string, b PartitionerBuilder) {
	register(&r.mu, r.partitioners, "partitioner", name, b)
}

func (r *ComponentRegistry) RegisterIncrementer(name string, b IncrementerBuilder) {
	register(&r.mu, r.incrementers, "incrementer", name, b)
}

func (r *ComponentRegistry) RegisterValidator(name string, b ValidatorBuilder) {
	register(&r.mu, r.validators, "validator", name, b)
}

func (r *ComponentRegistry) RegisterListener(name string, b ListenerBuilder) {
	register(&r.mu, r.listeners, "listener", name, b)
}

func (r *ComponentRegistry) Reader(name string) (ReaderBuilder, error) {
	return lookup(&r.mu, r.readers, "reader", name)
}

func (r *ComponentRegistry) Processor(name string) (ProcessorBuilder, error) {
	return lookup(&r.mu, r.processors, "processor", name)
}

func (r *ComponentRegistry) Writer(name string) (WriterBuilder, error) {
	return lookup(&r.mu, r.writers, "writer", name)
}

func (r *ComponentRegistry) Tasklet(name string) (TaskletBuilder, error) {
	return lookup(&r.mu, r.tasklets, "tasklet", name)
}

func (r *ComponentRegistry) Decider(name string) (DeciderBuilder, error) {
	return lookup(&r.mu, r.deciders, "decider", name)
}

func (r *ComponentRegistry) Partitioner(name string) (PartitionerBuilder, error) {
	return lookup(&r.mu, r.partitioners, "partitioner", name)
}

func (r *ComponentRegistry) Incrementer(name string) (IncrementerBuilder, error) {
	return lookup(&r.mu, r.incrementers, "incrementer", name)
}

func (r *ComponentRegistry) Validator(name string) (ValidatorBuilder, error) {
	return lookup(&r.mu, r.validators, "validator", name)
}

func (r *ComponentRegistry) Listener(name string) (ListenerBuilder, error) {
	return lookup(&r.mu, r.listeners, "listener", name)
}
