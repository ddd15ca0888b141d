package partition

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
)

const (
	// IndexKey holds the zero-based partition index in a worker's ExecutionContext.
	IndexKey = "partition.index"
	// CountKey holds the number of partitions in a worker's ExecutionContext.
	CountKey = "partition.count"
)

// SimplePartitioner names gridSize partitions and hands each one its index. It computes
// no data ranges; the worker maps its index onto its own slice of the input.
type SimplePartitioner struct{}

var _ port.Partitioner = (*SimplePartitioner)(nil)

// NewSimplePartitioner creates a SimplePartitioner.
func NewSimplePartitioner() *SimplePartitioner { return &SimplePartitioner{} }

// Partition implements port.Partitioner.
func (p *SimplePartitioner) Partition(ctx context.Context, gridSize int) (map[string]model.ExecutionContext, error) {
	if gridSize < 1 {
		return nil, fmt.Errorf("grid size must be positive, got %d", gridSize)
	}
	out := make(map[string]model.ExecutionContext, gridSize)
	for i := 0; i < gridSize; i++ {
		ec := model.NewExecutionContext()
		ec.Put(IndexKey, i)
		ec.Put(CountKey, gridSize)
		out[model.PartitionName(i)] = ec
	}
	return out, nil
}

// Index reads the partition index and count from a worker's ExecutionContext.
func Index(ec model.ExecutionContext) (index, count int, ok bool) {
	index, ok = ec.GetInt(IndexKey)
	if !ok {
		return 0, 0, false
	}
	count, ok = ec.GetInt(CountKey)
	return index, count, ok
}

// Name returns the partition name carried by a worker StepExecution name such as
// "load:partition3", or the whole name when it has no controller prefix.
func Name(controller, worker string) string {
	if name, ok := strings.CutPrefix(worker, controller+":"); ok && name != "" {
		return name
	}
	return worker
}

// WorkerStepName joins a controller step name and a partition name.
func WorkerStepName(controller, partition string) string {
	return controller + ":" + partition
}

// NewPartitioner resolves a partitioner reference from a job definition.
func NewPartitioner(ref string, properties map[string]string) (port.Partitioner, error) {
	switch ref {
	case "", "simplePartitioner", "simple":
		return NewSimplePartitioner(), nil
	case "fixedPartitioner":
		n, err := strconv.Atoi(properties["gridSize"])
		if err != nil || n < 1 {
			return nil, fmt.Errorf("fixedPartitioner needs a positive 'gridSize' property, got %q", properties["gridSize"])
		}
		return fixed{n: n}, nil
	}
	return nil, fmt.Errorf("unknown partitioner '%s'", ref)
}

// fixed ignores the requested grid size in favour of its own.
type fixed struct{ n int }

func (f fixed) Partition(ctx context.Context, _ int) (map[string]model.ExecutionContext, error) {
	return NewSimplePartitioner().Partition(ctx, f.n)
}
