// Command citibike loads monthly CitiBike trips and hourly weather into the
// warehouse and runs the dbt models on top of them.
package main

import (
	"context"
	_ "embed"
	"os"

	"github.com/tigerroll/citibike/pkg/batch/support/util/logger"
)

// embeddedConfig is the default configuration. ${VAR:-default} placeholders
// are expanded from the environment when it is loaded.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

func main() {
	err := newRootCmd(embeddedConfig).ExecuteContext(context.Background())
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}
