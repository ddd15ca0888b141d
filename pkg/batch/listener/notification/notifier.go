// Package notification reports finished job executions to an external channel.
package notification

import (
	"context"
	"fmt"
	"time"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

// Notifier delivers a job completion notice.
type Notifier interface {
	NotifyJobCompletion(ctx context.Context, execution *model.JobExecution) error
}

// LogNotifier writes the notice to the application log.
type LogNotifier struct{}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

// NotifyJobCompletion implements Notifier.
func (n *LogNotifier) NotifyJobCompletion(_ context.Context, je *model.JobExecution) error {
	msg := Message(je)
	if je.Status == model.BatchStatusCompleted {
		logger.Infof("%s", msg)
	} else {
		logger.Warnf("%s", msg)
	}
	return nil
}

// Message renders the one-line notice for je.
func Message(je *model.JobExecution) string {
	return fmt.Sprintf("Job '%s' (execution %s) finished: status=%s exitStatus=%s duration=%s failures=%d",
		je.JobName, je.ID, je.Status, je.ExitStatus.ExitCode, je.Duration().Round(time.Millisecond), len(je.Failures))
}

// Listener sends a notice through its Notifier after every job, or only after
// unsuccessful ones when onlyOnFailure is set.
type Listener struct {
	notifier      Notifier
	onlyOnFailure bool
}

// NewListener creates a Listener.
func NewListener(notifier Notifier, onlyOnFailure bool) *Listener {
	return &Listener{notifier: notifier, onlyOnFailure: onlyOnFailure}
}

// BeforeJob implements port.JobExecutionListener.
func (l *Listener) BeforeJob(context.Context, *model.JobExecution) error { return nil }

// AfterJob implements port.JobExecutionListener.
func (l *Listener) AfterJob(ctx context.Context, je *model.JobExecution) error {
	if l.onlyOnFailure && !je.Status.IsUnsuccessful() {
		return nil
	}
	return l.notifier.NotifyJobCompletion(ctx, je)
}

var (
	_ Notifier                  = (*LogNotifier)(nil)
	_ port.JobExecutionListener = (*Listener)(nil)
)
