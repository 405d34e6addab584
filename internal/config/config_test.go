package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hydro-project/anna/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "anna-config.yml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
user:
  ip: 1.2.3.4
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, uint32(1), cfg.Threads.Routing)
	assert.Equal(t, uint32(4), cfg.Threads.Memory)
	assert.Equal(t, uint32(4), cfg.Threads.Disk)
	assert.Equal(t, uint32(1), cfg.Replication.Memory)
	assert.Equal(t, uint32(1), cfg.Replication.Ebs)
	assert.Equal(t, uint32(1), cfg.Replication.Local)
	assert.Equal(t, "memory", cfg.Server.Tier)
	assert.Equal(t, "1.2.3.4", cfg.Server.PublicIP)
	assert.Equal(t, "1.2.3.4", cfg.Server.PrivateIP)
	assert.Equal(t, "/var/lib/anna/ebs", cfg.Ebs)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
threads:
  routing: 2
  memory: 8
  disk: 4
replication:
  memory: 2
  ebs: 1
  local: 2
  minimum: 1
capacity:
  memory: 1073741824
  ebs: 17179869184
ebs: /mnt/ebs
user:
  ip: 1.2.3.4
  routing:
    - 5.6.7.8:6200
server:
  tier: disk
  private_ip: 10.0.0.1
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, uint32(8), cfg.Threads.Memory)
	assert.Equal(t, uint32(2), cfg.Replication.Memory)
	assert.Equal(t, uint64(1073741824), cfg.Capacity.Memory)
	assert.Equal(t, "/mnt/ebs", cfg.Ebs)
	assert.Equal(t, "disk", cfg.Server.Tier)
	assert.Equal(t, "10.0.0.1", cfg.Server.PrivateIP)
	assert.Equal(t, []string{"5.6.7.8:6200"}, cfg.User.Routing)
}

func TestRoutingElbFallback(t *testing.T) {
	path := writeConfig(t, `
user:
  ip: 1.2.3.4
  routing-elb: elb.example.com:6200
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"elb.example.com:6200"}, cfg.User.Routing)
}

func TestMissingIPIsRejected(t *testing.T) {
	path := writeConfig(t, `
threads:
  memory: 2
`)
	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestBogusTierIsRejected(t *testing.T) {
	path := writeConfig(t, `
user:
  ip: 1.2.3.4
server:
  tier: tape
`)
	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestMissingFileIsRejected(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}
