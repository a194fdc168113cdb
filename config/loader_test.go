package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoader_FileAndUnmarshalKey(t *testing.T) {
	path := writeFile(t, "app.yaml", `
canary:
  max_concurrent_deployments: 3
  stage_timeout_buffer: 45s
metrics:
  retention_window: 10m
`)

	l := NewLoader().AddFile(path)
	require.NoError(t, l.Load())

	assert.True(t, l.IsSet("canary"))
	assert.False(t, l.IsSet("injector"))
	assert.Equal(t, 3, l.GetInt("canary.max_concurrent_deployments"))

	var cfg struct {
		MaxConcurrentDeployments int           `mapstructure:"max_concurrent_deployments"`
		StageTimeoutBuffer       time.Duration `mapstructure:"stage_timeout_buffer"`
	}
	require.NoError(t, l.UnmarshalKey("canary", &cfg))
	assert.Equal(t, 3, cfg.MaxConcurrentDeployments)
	assert.Equal(t, 45*time.Second, cfg.StageTimeoutBuffer)
	assert.Equal(t, []string{path}, l.LoadedFiles())
}

func TestLoader_LaterFileOverrides(t *testing.T) {
	base := writeFile(t, "base.yaml", `
canary:
  max_concurrent_deployments: 5
  event_log_size: 100
`)
	override := writeFile(t, "override.yaml", `
canary:
  max_concurrent_deployments: 2
`)

	l := NewLoader().AddFile(base).AddFile(override)
	require.NoError(t, l.Load())

	assert.Equal(t, 2, l.GetInt("canary.max_concurrent_deployments"))
	// 未覆盖的键保留
	assert.Equal(t, 100, l.GetInt("canary.event_log_size"))
}

func TestLoader_EnvOverride(t *testing.T) {
	path := writeFile(t, "app.yaml", `
canary:
  pool_size: 8
`)
	t.Setenv("CANARYD_CANARY_POOL_SIZE", "16")

	l := NewLoader().AddFile(path).WithEnvPrefix("CANARYD")
	require.NoError(t, l.Load())

	assert.Equal(t, 16, l.GetInt("canary.pool_size"))
}

func TestLoader_MissingFile(t *testing.T) {
	l := NewLoader().AddFile("/nonexistent/app.yaml")
	assert.Error(t, l.Load())
}
