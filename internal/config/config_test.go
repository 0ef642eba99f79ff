package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	s := c.Supervisor
	assert.Equal(t, 3, s.MaxRestarts)
	assert.Equal(t, time.Second, s.RestartBackoff)
	assert.Equal(t, 5*time.Second, s.GraceTimeout)
	assert.Equal(t, 2*time.Second, s.SampleInterval)
	assert.Equal(t, 1000, s.LogLines)
	assert.Equal(t, LogAppend, s.LogOnRestart)
	assert.Equal(t, "servers", s.ServersDir)
	assert.Equal(t, "python3", s.Python)
	assert.Equal(t, "node", s.Node)
	assert.Equal(t, "servers.json", c.Registry.DSN)
	assert.Equal(t, "127.0.0.1:8080", c.Server.Listen)
	assert.Equal(t, "/api", c.Server.BasePath)
	assert.Equal(t, 10, c.Log.MaxSizeMB)
	assert.False(t, c.Output.Enabled())
	assert.Empty(t, c.History.Sinks)
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "devsrv.toml", `
env = ["PORT=9000"]

[supervisor]
max_restarts = 5
restart_backoff = "250ms"
log_on_restart = "clear"
python = "/usr/bin/python3.12"

[registry]
dsn = "sqlite://devsrv.db"

[output]
dir = "logs"
max_backups = 9

[log]
level = "debug"
format = "json"
`)
	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 5, c.Supervisor.MaxRestarts)
	assert.Equal(t, 250*time.Millisecond, c.Supervisor.RestartBackoff)
	assert.Equal(t, LogClear, c.Supervisor.LogOnRestart)
	assert.Equal(t, "/usr/bin/python3.12", c.Supervisor.Python)
	assert.Equal(t, "sqlite://devsrv.db", c.Registry.DSN)
	assert.Equal(t, "logs", c.Output.Dir)
	assert.Equal(t, 9, c.Output.MaxBackups)
	assert.Equal(t, 10, c.Output.MaxSizeMB)
	assert.Equal(t, "json", c.Log.Format)
	assert.Equal(t, []string{"PORT=9000"}, c.Env)
	// untouched keys keep defaults
	assert.Equal(t, 5*time.Second, c.Supervisor.GraceTimeout)
}

func TestLoadYAML(t *testing.T) {
	p := writeFile(t, t.TempDir(), "devsrv.yaml", `
supervisor:
  sample_interval: 500ms
  reload_on_change: true
server:
  listen: ":9999"
metrics:
  enabled: true
history:
  sinks:
    - runs.db
    - clickhouse://default:@localhost:9000/default?table=runs
`)
	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, c.Supervisor.SampleInterval)
	assert.True(t, c.Supervisor.ReloadOnChange)
	assert.Equal(t, ":9999", c.Server.Listen)
	assert.True(t, c.Metrics.Enabled)
	assert.Equal(t, []string{"runs.db", "clickhouse://default:@localhost:9000/default?table=runs"}, c.History.Sinks)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("DEVSRV_SUPERVISOR_MAX_RESTARTS", "7")
	t.Setenv("DEVSRV_REGISTRY_DSN", "memory://")
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, c.Supervisor.MaxRestarts)
	assert.Equal(t, "memory://", c.Registry.DSN)
}

func TestValidateRejects(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"policy":  "[supervisor]\nlog_on_restart = \"rotate\"\n",
		"retries": "[supervisor]\nmax_restarts = -1\n",
		"grace":   "[supervisor]\ngrace_timeout = \"-1s\"\n",
		"level":   "[log]\nlevel = \"shout\"\n",
		"history": "[history]\nsinks = [\" \"]\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			p := writeFile(t, dir, name+".toml", body)
			_, err := Load(p)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestServerEnvMerge(t *testing.T) {
	dir := t.TempDir()
	dotenv := writeFile(t, dir, ".env", "A=1\n# comment\n\nB=\"two\"\nSHARED=file\n")
	c := &Config{EnvFiles: []string{dotenv}, Env: []string{"SHARED=top", "C=3", "broken"}}
	env, err := c.ServerEnv()
	require.NoError(t, err)
	assert.Equal(t, []string{"A=1", "B=two", "SHARED=top", "C=3"}, env)

	c.EnvFiles = []string{filepath.Join(dir, "missing.env")}
	_, err = c.ServerEnv()
	assert.Error(t, err)
}
