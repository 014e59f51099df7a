package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/ragmesh/logging"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ragmesh.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8, cfg.Agent.MaxIterations)
	assert.InDelta(t, 0.1, cfg.Model.Temperature, 1e-9)
	assert.Equal(t, "\n\n", cfg.Chunking.Separator)
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	t.Setenv("RAGMESH_TEST_KEY", "sk-from-env")
	path := writeConfig(t, `
model:
  provider: anthropic
  name: claude-sonnet-4-5
  api_key: ${RAGMESH_TEST_KEY}
store:
  backend: memory
agent:
  max_iterations: 4
  call_timeout: 90s
  dispatch_all: true
wikipedia:
  language: de
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.Model.Provider)
	assert.Equal(t, "sk-from-env", cfg.Model.APIKey)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 4, cfg.Agent.MaxIterations)
	assert.Equal(t, 90*time.Second, cfg.Agent.CallTimeout)
	assert.True(t, cfg.Agent.DispatchAll)
	assert.Equal(t, "de", cfg.Wikipedia.Language)

	// untouched sections keep their defaults
	assert.Equal(t, "hash", cfg.Embedding.Provider)
	assert.Equal(t, 15*time.Second, cfg.Chunking.FetchTimeout)
	require.NoError(t, cfg.Validate())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "model: [unclosed"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("MODEL_NAME", "llama3.1")
	t.Setenv("LLM_BASE_URL", "http://localhost:11434/v1")
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("ANTHROPIC_API_KEY", "sk-anthropic")

	cfg := Default()
	cfg.Embedding.Provider = "openai"
	cfg.ApplyEnv()

	assert.Equal(t, "llama3.1", cfg.Model.Name)
	assert.Equal(t, "http://localhost:11434/v1", cfg.Model.BaseURL)
	assert.Equal(t, "sk-openai", cfg.Model.APIKey)
	assert.Equal(t, "sk-openai", cfg.Embedding.APIKey)

	cfg = Default()
	cfg.Model.Provider = "anthropic"
	cfg.ApplyEnv()
	assert.Equal(t, "sk-anthropic", cfg.Model.APIKey)

	cfg = Default()
	cfg.Model.APIKey = "sk-explicit"
	cfg.ApplyEnv()
	assert.Equal(t, "sk-explicit", cfg.Model.APIKey)
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Model.Provider = "cohere"
	cfg.Model.Name = ""
	cfg.Store.Backend = "chroma"
	cfg.Agent.MaxIterations = -1
	cfg.Logging.Level = "loud"

	err := cfg.Validate()
	require.Error(t, err)
	for _, field := range []string{"model.provider", "model.name", "store.backend", "agent.max_iterations", "logging.level"} {
		assert.Contains(t, err.Error(), field)
	}
}

func TestLoggerConfig(t *testing.T) {
	cfg := Default()
	cfg.Logging = LoggingConfig{Level: "debug", Format: "json", AddSource: true}

	lc := cfg.LoggerConfig()
	assert.Equal(t, logging.LogLevelDebug, lc.Level)
	assert.Equal(t, "json", lc.Format)
	assert.True(t, lc.AddSource)
}

func TestFindConfig(t *testing.T) {
	path := writeConfig(t, "model:\n  name: x\n")
	got, err := FindConfig(path)
	require.NoError(t, err)
	assert.Equal(t, path, got)

	_, err = FindConfig("/nonexistent/ragmesh.yaml")
	assert.Error(t, err)
}
