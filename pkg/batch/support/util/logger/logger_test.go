package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLogLevelFiltersMessages(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetLogLevel("INFO") })

	SetLogLevel("warn")
	Infof("hidden %d", 1)
	Warnf("shown %d", 2)
	_ = Sync()

	out := buf.String()
	assert.NotContains(t, out, "hidden 1")
	assert.Contains(t, out, "shown 2")
	assert.Contains(t, out, "WARN")
	assert.Equal(t, LevelWarn, CurrentLevel())
}

func TestSetLogLevelUnknownFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)

	SetLogLevel("verbose")
	_ = Sync()

	assert.Equal(t, LevelInfo, CurrentLevel())
	assert.True(t, strings.Contains(buf.String(), "Unknown log level 'verbose'"))
}

func TestHookName(t *testing.T) {
	assert.Equal(t, "github.com/x/app.startJob", hookName("github.com/x/app.startJob.func1"))
	assert.Equal(t, "main.run", hookName("main.run"))
}
