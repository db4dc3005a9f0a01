// Package transform triggers the external dbt project that builds the
// analytics models and runs their tests once the raw tables are loaded.
package transform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	config "github.com/tigerroll/citibike/pkg/batch/core/config"
	metrics "github.com/tigerroll/citibike/pkg/batch/core/metrics"
	"github.com/tigerroll/citibike/pkg/batch/support/util/exception"
	"github.com/tigerroll/citibike/pkg/batch/support/util/logger"
)

const module = "transform"

// Stages run in order. A failing stage stops the sequence.
var Stages = []string{"run", "test"}

// Result is the captured outcome of a run.
type Result struct {
	Project  string
	Outputs  map[string]string
	Duration time.Duration
}

// Tool runs the transformation and its tests.
type Tool interface {
	Run(ctx context.Context) (*Result, error)
}

// Executor runs one command in dir and returns its combined output.
type Executor interface {
	CombinedOutput(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// ExecExecutor runs commands with os/exec.
type ExecExecutor struct{}

func (ExecExecutor) CombinedOutput(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// DBTRunner runs "dbt run" then "dbt test" in the project directory.
type DBTRunner struct {
	cfg      config.TransformConfig
	exec     Executor
	recorder metrics.MetricRecorder
}

// NewDBTRunner creates a runner. A nil executor uses os/exec.
func NewDBTRunner(cfg config.TransformConfig, executor Executor, recorder metrics.MetricRecorder) *DBTRunner {
	if cfg.Command == "" {
		cfg.Command = "dbt"
	}
	if executor == nil {
		executor = ExecExecutor{}
	}
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	return &DBTRunner{cfg: cfg, exec: executor, recorder: recorder}
}

// Args returns the command line of a stage.
func (r *DBTRunner) Args(stage string) []string {
	args := []string{stage}
	if r.cfg.ProfilesDir != "" {
		args = append(args, "--profiles-dir", r.cfg.ProfilesDir)
	}
	if r.cfg.Target != "" {
		args = append(args, "--target", r.cfg.Target)
	}
	return args
}

func (r *DBTRunner) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{Outputs: make(map[string]string, len(Stages))}

	if p, err := LoadProject(r.cfg.ProjectDir); err != nil {
		logger.Warnf("Could not read %s in '%s': %v", ProjectFile, r.cfg.ProjectDir, err)
	} else {
		res.Project = p.Name
		logger.Infof("dbt project '%s' (profile '%s') in %s", p.Name, p.Profile, r.cfg.ProjectDir)
	}

	for _, stage := range Stages {
		stageStart := time.Now()
		logger.Infof("Running %s %s", r.cfg.Command, strings.Join(r.Args(stage), " "))
		out, err := r.exec.CombinedOutput(ctx, r.cfg.ProjectDir, r.cfg.Command, r.Args(stage)...)
		res.Outputs[stage] = string(out)
		r.recorder.RecordDuration(ctx, "transform_stage", time.Since(stageStart), map[string]string{"stage": stage})
		if err != nil {
			return res, stageError(stage, out, err)
		}
		logger.Debugf("dbt %s output:\n%s", stage, out)
	}
	res.Duration = time.Since(start)
	logger.Infof("dbt run and test completed in %s", res.Duration.Round(time.Second))
	return res, nil
}

func stageError(stage string, out []byte, err error) error {
	msg := fmt.Sprintf("dbt %s failed", stage)
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		msg = fmt.Sprintf("dbt %s failed with exit code %d", stage, exitErr.ExitCode())
	}
	if s := strings.TrimSpace(string(out)); s != "" {
		msg += "\n" + s
	}
	return exception.NewKindError(exception.KindTransformFailed, module, msg, err)
}

var _ Tool = (*DBTRunner)(nil)
