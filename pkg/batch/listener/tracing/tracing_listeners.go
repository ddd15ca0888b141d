// Package tracing provides a listener that adds item-level events to the span of the
// running chunk.
package tracing

import (
	"context"
	"fmt"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/chunkflow/pkg/batch/core/metrics"
)

// EventListener records skips, retries and chunk rollbacks as span events.
type EventListener struct {
	tracer metrics.Tracer
}

func NewEventListener(tracer metrics.Tracer) *EventListener {
	return &EventListener{tracer: tracer}
}

func (l *EventListener) OnSkipInRead(ctx context.Context, err error) {
	l.tracer.RecordEvent(ctx, "item.skip", map[string]interface{}{"phase": "read", "error": err.Error()})
}

func (l *EventListener) OnSkipInProcess(ctx context.Context, item interface{}, err error) {
	l.tracer.RecordEvent(ctx, "item.skip", map[string]interface{}{"phase": "process", "item": fmt.Sprint(item), "error": err.Error()})
}

func (l *EventListener) OnSkipInWrite(ctx context.Context, item interface{}, err error) {
	l.tracer.RecordEvent(ctx, "item.skip", map[string]interface{}{"phase": "write", "item": fmt.Sprint(item), "error": err.Error()})
}

func (l *EventListener) OnRetry(ctx context.Context, attempt int, err error) {
	l.tracer.RecordEvent(ctx, "item.retry", map[string]interface{}{"attempt": attempt, "error": err.Error()})
}

func (l *EventListener) BeforeChunk(context.Context, *model.StepExecution) {}

func (l *EventListener) AfterChunk(context.Context, *model.StepExecution) {}

// AfterChunkError marks the failure on the chunk span.
func (l *EventListener) AfterChunkError(ctx context.Context, se *model.StepExecution, err error) {
	l.tracer.RecordError(ctx, se.StepName, err)
}

var (
	_ port.SkipListener  = (*EventListener)(nil)
	_ port.RetryListener = (*EventListener)(nil)
	_ port.ChunkListener = (*EventListener)(nil)
)
