package logger

import (
	"strings"

	"go.uber.org/fx/fxevent"
)

// FxLoggerAdapter routes fx lifecycle events into the package logger.
// Container plumbing (provides, invokes, hooks) is logged at DEBUG; failures at ERROR.
type FxLoggerAdapter struct{}

// NewFxLoggerAdapter creates a new FxLoggerAdapter.
func NewFxLoggerAdapter() fxevent.Logger {
	return &FxLoggerAdapter{}
}

// LogEvent implements fxevent.Logger.
func (l *FxLoggerAdapter) LogEvent(event fxevent.Event) {
	switch e := event.(type) {
	case *fxevent.OnStartExecuting:
		Debugf("fx: OnStart hook %s executing (caller %s)", shortFuncName(e.FunctionName), e.CallerName)
	case *fxevent.OnStartExecuted:
		if e.Err != nil {
			Errorf("fx: OnStart hook %s failed after %s: %v", shortFuncName(e.FunctionName), e.Runtime, e.Err)
			return
		}
		Debugf("fx: OnStart hook %s done in %s", shortFuncName(e.FunctionName), e.Runtime)
	case *fxevent.OnStopExecuting:
		Debugf("fx: OnStop hook %s executing", shortFuncName(e.FunctionName))
	case *fxevent.OnStopExecuted:
		if e.Err != nil {
			Errorf("fx: OnStop hook %s failed: %v", shortFuncName(e.FunctionName), e.Err)
			return
		}
		Debugf("fx: OnStop hook %s done in %s", shortFuncName(e.FunctionName), e.Runtime)
	case *fxevent.Supplied:
		if e.Err != nil {
			Errorf("fx: supply of %s failed: %v", e.TypeName, e.Err)
		}
	case *fxevent.Provided:
		if e.Err != nil {
			Errorf("fx: provide %s failed: %v", shortFuncName(e.ConstructorName), e.Err)
			return
		}
		Debugf("fx: provided %s", strings.Join(e.OutputTypeNames, ", "))
	case *fxevent.Decorated:
		if e.Err != nil {
			Errorf("fx: decorate %s failed: %v", shortFuncName(e.DecoratorName), e.Err)
		}
	case *fxevent.Invoking:
		Debugf("fx: invoking %s", shortFuncName(e.FunctionName))
	case *fxevent.Invoked:
		if e.Err != nil {
			Errorf("fx: invoke %s failed: %v", shortFuncName(e.FunctionName), e.Err)
		}
	case *fxevent.Stopping:
		Infof("fx: received signal %s, stopping", strings.ToUpper(e.Signal.String()))
	case *fxevent.Stopped:
		if e.Err != nil {
			Errorf("fx: stop failed: %v", e.Err)
		}
	case *fxevent.RollingBack:
		Errorf("fx: start failed, rolling back: %v", e.StartErr)
	case *fxevent.RolledBack:
		if e.Err != nil {
			Errorf("fx: rollback failed: %v", e.Err)
		}
	case *fxevent.Started:
		if e.Err != nil {
			Errorf("fx: start failed: %v", e.Err)
			return
		}
		Debugf("fx: application started")
	case *fxevent.LoggerInitialized:
		if e.Err != nil {
			Errorf("fx: logger initialization failed: %v", e.Err)
		}
	}
}

// shortFuncName trims closure suffixes such as ".func1" so hook logs name the helper that
// registered them.
func shortFuncName(name string) string {
	if idx := strings.LastIndex(name, ".func"); idx != -1 {
		name = name[:idx]
	}
	if idx := strings.LastIndex(name, "/"); idx != -1 {
		return name[idx+1:]
	}
	return name
}
