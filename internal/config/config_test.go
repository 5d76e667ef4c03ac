package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/queuegate/pkg/types"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `sink: redis
redis:
  addr: localhost:6379
  keyPrefix: "queuegate:"
watcher:
  interval: 2s
  stuckAfter: 10m
log:
  level: debug
  format: json
alerts:
  - type: console
jobDirs:
  - ./jobs
jobs:
  - name: team/upstream
  - name: team/deploy
    conditions:
      - type: building
        project: upstream
      - type: result
        project: upstream
        result: FAILURE
`)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "jobs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "jobs", "report.yaml"), []byte(`name: report
concurrent: true
conditions:
  - type: regex
    patterns: |
      # nightly jobs
      nightly-.*
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "jobs", "README.md"), []byte("ignored"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, types.SinkRedis, cfg.Sink)
	require.NotNil(t, cfg.Redis)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "queuegate:", cfg.Redis.KeyPrefix)
	assert.Equal(t, "2s", cfg.Watcher.Interval)
	assert.Len(t, cfg.Alerts, 1)

	require.Len(t, cfg.Jobs, 3)
	assert.Equal(t, "team/deploy", cfg.Jobs[1].Name)
	require.Len(t, cfg.Jobs[1].Conditions, 2)
	assert.Equal(t, types.ConditionResult, cfg.Jobs[1].Conditions[1].Type)
	assert.Equal(t, "FAILURE", cfg.Jobs[1].Conditions[1].Result)

	report := cfg.Jobs[2]
	assert.Equal(t, "report", report.Name)
	assert.True(t, report.Concurrent)
	assert.Contains(t, report.Conditions[0].Patterns, "nightly-.*")
}

func TestLoad_DefaultsToMemorySink(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "jobs: [{name: a}]\n")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, types.SinkMemory, cfg.Sink)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent")
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "invalid: [yaml")

	_, err := Load(dir)
	assert.ErrorContains(t, err, "parsing config")
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		msg     string
	}{
		{"unknown sink", "sink: kafka\n", "unsupported sink"},
		{"redis without config", "sink: redis\n", "redis config is required"},
		{"redis without addr", "sink: redis\nredis: {db: 1}\n", "redis.addr is required"},
		{"dynamodb without table", "sink: dynamodb\ndynamodb: {region: us-east-1}\n", "dynamodb.tableName is required"},
		{"bad interval", "watcher: {interval: soon}\n", "watcher.interval"},
		{"negative stuck", "watcher: {stuckAfter: -1m}\n", "watcher.stuckAfter must be positive"},
		{"bad cooldown", "recorder: {cooldown: x}\n", "recorder.cooldown"},
		{"bad log level", "log: {level: loud}\n", "log.level"},
		{"bad log format", "log: {format: xml}\n", "log.format"},
		{"alert without type", "alerts: [{url: http://x}]\n", "alerts[0].type is required"},
		{"duplicate job", "jobs: [{name: a}, {name: a}]\n", `duplicate job "a"`},
		{"unknown kind", "jobs: [{name: a, kind: maven}]\n", "unknown kind"},
		{"unknown condition", "jobs: [{name: a, conditions: [{type: timer}]}]\n", "unknown condition type"},
		{"bad threshold", "jobs: [{name: a, conditions: [{type: result, project: b, result: ABORTED}]}]\n", "invalid result threshold"},
		{"bad pattern", "jobs: [{name: a, conditions: [{type: regex, patterns: \"(x\"}]}]\n", "Can't parse patterns"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, tt.content)
			_, err := Load(dir)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestValidation_SoftProblemsPass(t *testing.T) {
	dir := t.TempDir()
	// An empty project still loads; it blocks at evaluation time.
	writeConfig(t, dir, "jobs: [{name: a, conditions: [{type: building}]}]\n")

	_, err := Load(dir)
	assert.NoError(t, err)
}

func TestLoadJobDir_Missing(t *testing.T) {
	jobs, err := LoadJobDir(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestLoadJobDir_NamelessJob(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.yml"), []byte("kind: freestyle\n"), 0o644))

	_, err := LoadJobDir(dir)
	assert.ErrorContains(t, err, "job name is required")
}

func TestLoadState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`runs:
  upstream:
    - number: 6
      result: SUCCESS
    - number: 7
      building: true
queue:
  - job: deploy
  - job: other
    buildable: true
nodes:
  - name: node-1
    executors:
      - job: upstream
      - {}
`), 0o644))

	st, err := LoadState(path)
	require.NoError(t, err)
	require.Len(t, st.Runs["upstream"], 2)
	assert.True(t, st.Runs["upstream"][1].Building)
	assert.Equal(t, types.ResultSuccess, st.Runs["upstream"][0].Result)
	require.Len(t, st.Queue, 2)
	assert.True(t, st.Queue[1].Buildable)
	require.Len(t, st.Nodes, 1)
	assert.Equal(t, "upstream", st.Nodes[0].Executors[0].Job)
	assert.Empty(t, st.Nodes[0].Executors[1].Job)
}

func TestParseState_JSON(t *testing.T) {
	st, err := ParseState([]byte(`{"runs":{"a":[{"number":1,"result":"ABORTED"}]},"queue":[{"job":"b"}]}`))
	require.NoError(t, err)
	assert.Equal(t, types.ResultAborted, st.Runs["a"][0].Result)
	assert.Equal(t, "b", st.Queue[0].Job)
}

func TestParseState_InvalidResult(t *testing.T) {
	_, err := ParseState([]byte("runs: {a: [{number: 1, result: GREEN}]}"))
	assert.ErrorContains(t, err, `invalid result "GREEN"`)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&types.LogConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "job", "a")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"job":"a"`)

	logger, err = NewLogger(nil, &buf)
	require.NoError(t, err)
	assert.NotNil(t, logger)
}
