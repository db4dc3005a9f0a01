package logger

import (
	"strings"

	"go.uber.org/fx/fxevent"
)

// fxEventLogger routes fx container events to this package.
// Wiring chatter is logged at DEBUG; only failures surface at ERROR.
type fxEventLogger struct{}

// NewFxEventLogger returns an fxevent.Logger backed by the package logger.
func NewFxEventLogger() fxevent.Logger {
	return fxEventLogger{}
}

// LogEvent implements fxevent.Logger.
func (fxEventLogger) LogEvent(event fxevent.Event) {
	switch e := event.(type) {
	case *fxevent.OnStartExecuted:
		if e.Err != nil {
			Errorf("fx: OnStart hook %s failed: %v", hookName(e.FunctionName), e.Err)
			return
		}
		Debugf("fx: OnStart hook %s ran in %s", hookName(e.FunctionName), e.Runtime)
	case *fxevent.OnStopExecuted:
		if e.Err != nil {
			Errorf("fx: OnStop hook %s failed: %v", hookName(e.FunctionName), e.Err)
			return
		}
		Debugf("fx: OnStop hook %s ran in %s", hookName(e.FunctionName), e.Runtime)
	case *fxevent.Provided:
		if e.Err != nil {
			Errorf("fx: provide %s failed: %v", e.ConstructorName, e.Err)
			return
		}
		for _, t := range e.OutputTypeNames {
			Debugf("fx: provided %s", t)
		}
	case *fxevent.Supplied:
		if e.Err != nil {
			Errorf("fx: supply %s failed: %v", e.TypeName, e.Err)
		}
	case *fxevent.Invoked:
		if e.Err != nil {
			Errorf("fx: invoke %s failed: %v", e.FunctionName, e.Err)
		}
	case *fxevent.Stopping:
		Debugf("fx: received %s", strings.ToUpper(e.Signal.String()))
	case *fxevent.RollingBack:
		Errorf("fx: start failed, rolling back: %v", e.StartErr)
	case *fxevent.Started:
		if e.Err != nil {
			Errorf("fx: start failed: %v", e.Err)
		}
	}
}

// hookName trims anonymous function suffixes such as ".func1" from fx function names.
func hookName(name string) string {
	if idx := strings.LastIndex(name, ".func"); idx != -1 {
		return name[:idx]
	}
	return name
}
