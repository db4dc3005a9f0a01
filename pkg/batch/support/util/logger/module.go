package logger

import "go.uber.org/fx"

// Module installs the fx event logger.
var Module = fx.Options(
	fx.WithLogger(NewFxEventLogger),
)
