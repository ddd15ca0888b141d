// Package validator checks job parameters before a JobExecution is created.
package validator

import (
	"fmt"
	"sort"
	"strings"
	"time"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	exception "github.com/tigerroll/chunkflow/pkg/batch/support/util/exception"
)

const (
	ReasonMissing = "required parameter is missing"
	ReasonBlank   = "required parameter is blank"
)

// DateParameterValidator requires one parameter holding a calendar date.
type DateParameterValidator struct {
	name string
}

// NewDateParameterValidator creates a validator for the date parameter name.
func NewDateParameterValidator(name string) *DateParameterValidator {
	return &DateParameterValidator{name: name}
}

// Validate accepts DATE parameters and text in model.DateLayout.
func (v *DateParameterValidator) Validate(params model.JobParameters) error {
	param, ok := params.Get(v.name)
	if !ok {
		return exception.NewValidationError(v.name, ReasonMissing, nil)
	}
	if _, isTime := param.Value.(time.Time); isTime {
		return nil
	}
	raw := strings.TrimSpace(param.String())
	if raw == "" {
		return exception.NewValidationError(v.name, ReasonBlank, nil)
	}
	if _, err := time.Parse(model.DateLayout, raw); err != nil {
		return exception.NewValidationError(v.name, fmt.Sprintf("invalid date: %q is not %s", raw, model.DateLayout), err)
	}
	return nil
}

// DefaultJobParametersValidator checks required keys and, when optional keys are declared,
// rejects keys outside both lists.
type DefaultJobParametersValidator struct {
	required []string
	optional map[string]struct{}
}

// NewDefaultJobParametersValidator creates a validator for the given key lists.
func NewDefaultJobParametersValidator(required, optional []string) *DefaultJobParametersValidator {
	v := &DefaultJobParametersValidator{required: append([]string(nil), required...)}
	if len(optional) > 0 {
		v.optional = make(map[string]struct{}, len(optional)+len(required))
		for _, k := range optional {
			v.optional[k] = struct{}{}
		}
		for _, k := range required {
			v.optional[k] = struct{}{}
		}
	}
	return v
}

// Validate implements port.JobParametersValidator.
func (v *DefaultJobParametersValidator) Validate(params model.JobParameters) error {
	for _, key := range v.required {
		if !params.Has(key) {
			return exception.NewValidationError(key, ReasonMissing, nil)
		}
	}
	if v.optional == nil {
		return nil
	}
	keys := params.Keys()
	sort.Strings(keys)
	for _, key := range keys {
		if _, known := v.optional[key]; !known {
			return exception.NewValidationError(key, "parameter is neither required nor optional", nil)
		}
	}
	return nil
}

// CompositeValidator runs validators in order and stops at the first error.
type CompositeValidator struct {
	validators []port.JobParametersValidator
}

// NewCompositeValidator creates a CompositeValidator. Nil entries are ignored.
func NewCompositeValidator(validators ...port.JobParametersValidator) *CompositeValidator {
	c := &CompositeValidator{}
	for _, v := range validators {
		if v != nil {
			c.validators = append(c.validators, v)
		}
	}
	return c
}

// Validate implements port.JobParametersValidator.
func (c *CompositeValidator) Validate(params model.JobParameters) error {
	for _, v := range c.validators {
		if err := v.Validate(params); err != nil {
			return err
		}
	}
	return nil
}

var (
	_ port.JobParametersValidator = (*DateParameterValidator)(nil)
	_ port.JobParametersValidator = (*DefaultJobParametersValidator)(nil)
	_ port.JobParametersValidator = (*CompositeValidator)(nil)
)
