package lambda

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/queuegate/internal/provider/memory"
)

func TestInit_MissingRegion(t *testing.T) {
	t.Setenv("TABLE_NAME", "queuegate-test")
	t.Setenv("AWS_REGION", "")

	_, err := Init(t.Context())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "AWS_REGION")
}

func TestInit_MemorySinkWithBundledJobs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "queuegate.yaml"), []byte(`jobs:
  - name: deploy
    conditions:
      - type: building
        project: upstream
recorder:
  blockedOnly: true
`), 0o644))
	t.Setenv("TABLE_NAME", "")
	t.Setenv("SNS_TOPIC_ARN", "")
	t.Setenv("CONFIG_DIR", dir)

	d, err := Init(t.Context())
	require.NoError(t, err)
	assert.IsType(t, &memory.Sink{}, d.Sink)
	require.Len(t, d.Jobs, 1)
	assert.Equal(t, "deploy", d.Jobs[0].Name)
	assert.True(t, d.Recorder.BlockedOnly)
	assert.NotNil(t, d.AlertFn)
}

func TestInit_NoBundledConfig(t *testing.T) {
	t.Setenv("TABLE_NAME", "")
	t.Setenv("CONFIG_DIR", t.TempDir())

	d, err := Init(t.Context())
	require.NoError(t, err)
	assert.Empty(t, d.Jobs)
}

func TestInit_BadLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "chatty")

	_, err := Init(t.Context())
	assert.ErrorContains(t, err, "log.level")
}

func TestEnvOrDefault(t *testing.T) {
	t.Setenv("TEST_KEY", "custom")
	assert.Equal(t, "custom", envOrDefault("TEST_KEY", "fallback"))

	t.Setenv("TEST_KEY", "")
	assert.Equal(t, "fallback", envOrDefault("TEST_KEY", "fallback"))
}
