package transform

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/tigerroll/citibike/pkg/batch/core/config"
	"github.com/tigerroll/citibike/pkg/batch/support/util/exception"
)

type call struct {
	dir  string
	name string
	args []string
}

type fakeExecutor struct {
	calls   []call
	outputs map[string]string
	fail    map[string]error
}

func (f *fakeExecutor) CombinedOutput(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, call{dir: dir, name: name, args: args})
	return []byte(f.outputs[args[0]]), f.fail[args[0]]
}

func writeProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectFile), []byte("name: citibike\nversion: '1.0.0'\nprofile: citibike_warehouse\nconfig-version: 2\nmodel-paths: [\"models\"]\n"), 0o644))
	return dir
}

func TestRunExecutesRunThenTest(t *testing.T) {
	dir := writeProject(t)
	exec := &fakeExecutor{outputs: map[string]string{"run": "Completed successfully", "test": "PASS=12"}}
	r := NewDBTRunner(config.TransformConfig{ProjectDir: dir, Target: "prod"}, exec, nil)

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "citibike", res.Project)
	assert.Equal(t, "PASS=12", res.Outputs["test"])

	require.Len(t, exec.calls, 2)
	assert.Equal(t, call{dir: dir, name: "dbt", args: []string{"run", "--target", "prod"}}, exec.calls[0])
	assert.Equal(t, []string{"test", "--target", "prod"}, exec.calls[1].args)
}

func TestRunFailureSurfacesStageAndOutput(t *testing.T) {
	dir := writeProject(t)
	exec := &fakeExecutor{
		outputs: map[string]string{"run": "OK", "test": "FAIL 1 not_null_trips_ride_id"},
		fail:    map[string]error{"test": errors.New("exit status 1")},
	}
	_, err := NewDBTRunner(config.TransformConfig{ProjectDir: dir}, exec, nil).Run(context.Background())
	require.Error(t, err)
	assert.True(t, exception.IsKind(err, exception.KindTransformFailed))
	assert.Contains(t, err.Error(), "dbt test failed")
	assert.Contains(t, err.Error(), "not_null_trips_ride_id")
}

func TestRunStopsAfterFailedStage(t *testing.T) {
	exec := &fakeExecutor{fail: map[string]error{"run": errors.New("exit status 2")}}
	_, err := NewDBTRunner(config.TransformConfig{ProjectDir: t.TempDir(), ProfilesDir: "/etc/dbt"}, exec, nil).Run(context.Background())
	require.Error(t, err)
	require.Len(t, exec.calls, 1)
	assert.Equal(t, []string{"run", "--profiles-dir", "/etc/dbt"}, exec.calls[0].args)
}

func TestLoadProject(t *testing.T) {
	p, err := LoadProject(writeProject(t))
	require.NoError(t, err)
	assert.Equal(t, "citibike_warehouse", p.Profile)
	assert.Equal(t, 2, p.ConfigVersion)
	assert.Equal(t, []string{"models"}, p.ModelPaths)

	_, err = LoadProject(t.TempDir())
	assert.Error(t, err)
}
