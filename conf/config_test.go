package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/4D43/platterdb/common"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "platterdb.ini")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
[disk]
root              = /tmp/disks
name              = demo
platters          = 4
surfaces          = 2
cylinders         = 8
sectors_per_track = 32
block_size        = 1024
sector_size       = 512

[buffer]
pool_size = 64
policy    = clock

[log]
level = debug
`)

	cfg, st := Load(path)
	require.Equal(t, common.StatusOK, st)
	assert.Equal(t, "/tmp/disks", cfg.DisksRoot)
	assert.Equal(t, "demo", cfg.DiskName)
	assert.Equal(t, uint32(4), cfg.Platters)
	assert.Equal(t, uint32(2), cfg.Surfaces)
	assert.Equal(t, uint32(8), cfg.Cylinders)
	assert.Equal(t, uint32(32), cfg.SectorsPerTrack)
	assert.Equal(t, uint32(1024), cfg.BlockSize)
	assert.Equal(t, uint32(512), cfg.SectorSize)
	assert.Equal(t, uint32(64), cfg.PoolSize)
	assert.Equal(t, "clock", cfg.Policy)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "[disk]\nname = tiny\n")

	cfg, st := Load(path)
	require.Equal(t, common.StatusOK, st)
	defaults := NewCfg()
	assert.Equal(t, "tiny", cfg.DiskName)
	assert.Equal(t, defaults.Platters, cfg.Platters)
	assert.Equal(t, defaults.BlockSize, cfg.BlockSize)
	assert.Equal(t, defaults.Policy, cfg.Policy)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"odd platters", "[disk]\nplatters = 3\n"},
		{"block not multiple of sector", "[disk]\nblock_size = 500\n"},
		{"track too short", "[disk]\nsectors_per_track = 1\n"},
		{"zero pool", "[buffer]\npool_size = 0\n"},
		{"unknown policy", "[buffer]\npolicy = mru\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, st := Load(writeConfig(t, tc.content))
			assert.Equal(t, common.StatusInvalidParameter, st)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, st := Load(filepath.Join(t.TempDir(), "absent.ini"))
	assert.Equal(t, common.StatusIOError, st)
}
