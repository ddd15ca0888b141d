package runner

import (
	"path"

	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
)

// Transition routes a flow on the exit code of the element that just ended. On accepts
// the wildcards '*' and '?'. Exactly one of To, End, Fail or Stop applies.
type Transition struct {
	On   string `yaml:"on"`
	To   string `yaml:"to,omitempty"`
	End  bool   `yaml:"end,omitempty"`
	Fail bool   `yaml:"fail,omitempty"`
	Stop bool   `yaml:"stop,omitempty"`
	// ExitCode replaces the flow's exit code on End, Fail or Stop.
	ExitCode string `yaml:"exit-code,omitempty"`
}

// On starts a transition for exit code pattern.
func On(pattern string) Transition { return Transition{On: pattern} }

// Next routes to the named element.
func (t Transition) Next(name string) Transition { t.To = name; return t }

// EndFlow completes the flow, optionally with a custom exit code.
func (t Transition) EndFlow(exitCode string) Transition {
	t.End = true
	t.ExitCode = exitCode
	return t
}

// FailFlow fails the flow.
func (t Transition) FailFlow() Transition { t.Fail = true; return t }

// StopFlow stops the flow so that it can be restarted.
func (t Transition) StopFlow() Transition { t.Stop = true; return t }

func (t Transition) terminal() bool { return t.End || t.Fail || t.Stop }

func (t Transition) exit(base model.ExitStatus) model.ExitStatus {
	if t.ExitCode == "" {
		return base
	}
	return model.NewExitStatus(t.ExitCode, base.ExitDescription)
}

// match picks the transition for code: an exact match first, then patterns in declared
// order, then the bare "*".
func match(transitions []Transition, code string) (Transition, bool) {
	for _, t := range transitions {
		if t.On == code {
			return t, true
		}
	}
	var catchAll *Transition
	for i, t := range transitions {
		if t.On == "*" {
			if catchAll == nil {
				catchAll = &transitions[i]
			}
			continue
		}
		if ok, err := path.Match(t.On, code); err == nil && ok {
			return t, true
		}
	}
	if catchAll != nil {
		return *catchAll, true
	}
	return Transition{}, false
}
