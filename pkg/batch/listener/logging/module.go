package logging

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/citibike/pkg/batch/core/application/port"
)

// JobListenerGroup and StepListenerGroup collect the listeners attached to every job.
const (
	JobListenerGroup  = `group:"job_listeners"`
	StepListenerGroup = `group:"step_listeners"`
)

// Module provides the logging listeners into the listener groups.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewLoggingJobListener,
		fx.As(new(port.JobExecutionListener)),
		fx.ResultTags(JobListenerGroup),
	)),
	fx.Provide(fx.Annotate(
		NewLoggingStepListener,
		fx.As(new(port.StepExecutionListener)),
		fx.ResultTags(StepListenerGroup),
	)),
)
