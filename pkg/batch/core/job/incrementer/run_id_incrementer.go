// Package incrementer derives the run discriminator of the next job instance from the
// parameters of the previous one.
package incrementer

import (
	"fmt"
	"time"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

// DefaultRunIDKey is the parameter RunIDIncrementer manages when no name is configured.
const DefaultRunIDKey = "run.id"

// RunIDIncrementer sets a LONG parameter to previous+1, or 1 when previous lacks it.
type RunIDIncrementer struct {
	name string
}

// NewRunIDIncrementer creates a RunIDIncrementer managing name. An empty name selects
// DefaultRunIDKey.
func NewRunIDIncrementer(name string) *RunIDIncrementer {
	if name == "" {
		name = DefaultRunIDKey
	}
	return &RunIDIncrementer{name: name}
}

// GetNext returns a copy of previous with the run id advanced.
func (i *RunIDIncrementer) GetNext(previous model.JobParameters) model.JobParameters {
	current, ok := previous.GetLong(i.name)
	if !ok {
		logger.Debugf("RunIDIncrementer: '%s' not found in previous parameters, starting at 1.", i.name)
		return previous.PutLong(i.name, 1)
	}
	logger.Debugf("RunIDIncrementer: incrementing '%s' from %d to %d.", i.name, current, current+1)
	return previous.PutLong(i.name, current+1)
}

func (i *RunIDIncrementer) String() string {
	return fmt.Sprintf("RunIDIncrementer[name=%s]", i.name)
}

// TimestampIncrementer stamps the next run with the launch time in Unix milliseconds.
type TimestampIncrementer struct {
	name string
	now  func() time.Time
}

// NewTimestampIncrementer creates a TimestampIncrementer managing name ("timestamp" when empty).
func NewTimestampIncrementer(name string) *TimestampIncrementer {
	if name == "" {
		name = "timestamp"
	}
	return &TimestampIncrementer{name: name, now: time.Now}
}

// GetNext returns a copy of previous with the timestamp replaced.
func (i *TimestampIncrementer) GetNext(previous model.JobParameters) model.JobParameters {
	ts := i.now().UnixMilli()
	logger.Debugf("TimestampIncrementer: setting '%s' to %d.", i.name, ts)
	return previous.PutLong(i.name, ts)
}

func (i *TimestampIncrementer) String() string {
	return fmt.Sprintf("TimestampIncrementer[name=%s]", i.name)
}

// New resolves an incrementer by its JSL reference name.
func New(ref string, properties map[string]string) (port.JobParametersIncrementer, error) {
	name := properties["name"]
	switch ref {
	case "runIdIncrementer", "runId", "run.id":
		return NewRunIDIncrementer(name), nil
	case "timestampIncrementer", "timestamp":
		return NewTimestampIncrementer(name), nil
	}
	return nil, fmt.Errorf("unknown job parameters incrementer '%s'", ref)
}

var (
	_ port.JobParametersIncrementer = (*RunIDIncrementer)(nil)
	_ port.JobParametersIncrementer = (*TimestampIncrementer)(nil)
)
