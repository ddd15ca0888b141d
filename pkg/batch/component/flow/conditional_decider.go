// Package flow holds built-in deciders for job definitions.
package flow

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	config "github.com/tigerroll/chunkflow/pkg/batch/core/config"
	support "github.com/tigerroll/chunkflow/pkg/batch/core/config/support"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkflow/pkg/batch/core/job/runner"
	configbinder "github.com/tigerroll/chunkflow/pkg/batch/support/util/configbinder"
	logger "github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

// ConditionalDeciderRef is the registry name of ConditionalDecider.
const ConditionalDeciderRef = "conditionalDecider"

// ConditionalDecider compares a value of the job ExecutionContext, or of the last step's
// when the job has none, with an expected value. A match yields MatchCode; anything else
// yields DefaultCode.
type ConditionalDecider struct {
	Key         string `yaml:"conditionKey"`
	Expected    string `yaml:"expectedValue"`
	MatchCode   string `yaml:"matchStatus"`
	DefaultCode string `yaml:"defaultStatus"`
	// Parameter reads the value from the job parameters instead.
	Parameter bool `yaml:"fromParameters"`
}

// Decide implements runner.Decider.
func (d *ConditionalDecider) Decide(_ context.Context, je *model.JobExecution, last *model.StepExecution) (model.ExitStatus, error) {
	actual, found := d.lookup(je, last)
	if found && actual == d.Expected {
		logger.Debugf("ConditionalDecider: '%s' == '%s', routing to %s.", d.Key, d.Expected, d.MatchCode)
		return model.NewExitStatus(d.MatchCode, ""), nil
	}
	logger.Debugf("ConditionalDecider: '%s' is '%s' (found=%t), routing to %s.", d.Key, actual, found, d.DefaultCode)
	return model.NewExitStatus(d.DefaultCode, ""), nil
}

func (d *ConditionalDecider) lookup(je *model.JobExecution, last *model.StepExecution) (string, bool) {
	if d.Parameter {
		p, ok := je.Parameters.Get(d.Key)
		if !ok {
			return "", false
		}
		return p.String(), true
	}
	if v, ok := je.ExecutionContext.Get(d.Key); ok {
		return fmt.Sprint(v), true
	}
	if last != nil {
		if v, ok := last.ExecutionContext.Get(d.Key); ok {
			return fmt.Sprint(v), true
		}
	}
	return "", false
}

var _ runner.Decider = (*ConditionalDecider)(nil)

// NewConditionalDecider binds properties into a ConditionalDecider.
func NewConditionalDecider(_ *config.Config, properties map[string]string) (runner.Decider, error) {
	d := &ConditionalDecider{MatchCode: model.ExitCodeCompleted, DefaultCode: model.ExitCodeFailed}
	if err := configbinder.BindProperties(properties, d); err != nil {
		return nil, err
	}
	if d.Key == "" {
		return nil, fmt.Errorf("%s needs a 'conditionKey' property", ConditionalDeciderRef)
	}
	return d, nil
}

// Register adds the built-in deciders to registry.
func Register(registry *support.ComponentRegistry) {
	registry.RegisterDecider(ConditionalDeciderRef, NewConditionalDecider)
}

// Module registers the built-in deciders.
var Module = fx.Invoke(Register)
