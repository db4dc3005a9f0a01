// Package listener aggregates the execution listeners of the batch framework.
package listener

import (
	"go.uber.org/fx"

	"github.com/tigerroll/citibike/pkg/batch/listener/logging"
)

// Module aggregates all listener modules of the batch framework.
var Module = fx.Options(
	logging.Module,
)
