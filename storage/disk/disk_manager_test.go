package disk

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/4D43/platterdb/common"
	"github.com/4D43/platterdb/util"
)

func testConfig() Config {
	return Config{
		Name:            "T1",
		Platters:        2,
		Surfaces:        1,
		Cylinders:       2,
		SectorsPerTrack: 8,
		BlockSize:       512,
		SectorSize:      256,
	}
}

func newTestDisk(t *testing.T, root string) *DiskManager {
	t.Helper()
	dm, st := NewDiskManager(root, testConfig())
	require.Equal(t, common.StatusOK, st)
	require.Equal(t, common.StatusOK, dm.CreateDiskStructure())
	return dm
}

func TestConfigValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"odd platters", func(c *Config) { c.Platters = 3 }},
		{"single platter", func(c *Config) { c.Platters = 1 }},
		{"zero surfaces", func(c *Config) { c.Surfaces = 0 }},
		{"zero cylinders", func(c *Config) { c.Cylinders = 0 }},
		{"block not multiple of sector", func(c *Config) { c.BlockSize = 500 }},
		{"zero sector size", func(c *Config) { c.SectorSize = 0 }},
		{"track shorter than a block", func(c *Config) { c.SectorsPerTrack = 1 }},
		{"empty name", func(c *Config) { c.Name = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			_, st := NewDiskManager(t.TempDir(), cfg)
			assert.Equal(t, common.StatusInvalidParameter, st)
		})
	}
}

func TestCreateDiskStructureLayout(t *testing.T) {
	root := t.TempDir()
	dm := newTestDisk(t, root)

	assert.Equal(t, uint32(32), dm.TotalPhysicalSectors())
	assert.Equal(t, uint32(16), dm.TotalLogicalBlocks())

	// Every sector file exists with the exact sector size.
	sector := filepath.Join(root, "T1", "body", "Platter_1", "Surface_0", "Track_1", "Sector_7.bin")
	require.True(t, util.PathExists(sector))

	// Representational block files are zero-filled and write-only.
	block := filepath.Join(root, "T1", "blocks", "block_00015.bin")
	require.True(t, util.PathExists(block))

	// Page 0 is reserved and mapped to the first physical block.
	addr, st := dm.PhysicalAddressOf(common.DiskMetadataPageID)
	require.Equal(t, common.StatusOK, st)
	assert.Equal(t, PhysicalAddress{}, addr)
	status, st := dm.BlockStatusOf(common.DiskMetadataPageID)
	require.Equal(t, common.StatusOK, st)
	assert.Equal(t, common.BlockFull, status)
}

func TestDiskCreateAndReopen(t *testing.T) {
	root := t.TempDir()
	dm := newTestDisk(t, root)

	p1, _, st := dm.AllocateBlock(common.PageTypeData)
	require.Equal(t, common.StatusOK, st)
	p2, _, st := dm.AllocateBlock(common.PageTypeData)
	require.Equal(t, common.StatusOK, st)
	assert.Equal(t, common.PageID(1), p1)
	assert.Equal(t, common.PageID(2), p2)

	bufA := bytes.Repeat([]byte{0xAA}, 512)
	bufB := bytes.Repeat([]byte{0xBB}, 512)
	require.Equal(t, common.StatusOK, dm.WriteBlock(p1, bufA))
	require.Equal(t, common.StatusOK, dm.WriteBlock(p2, bufB))

	// Reopen from scratch and verify the data and the metadata both
	// survived.
	reopened, st := NewDiskManager(root, testConfig())
	require.Equal(t, common.StatusOK, st)
	require.Equal(t, common.StatusOK, reopened.LoadDiskMetadata())

	got := make([]byte, 512)
	require.Equal(t, common.StatusOK, reopened.ReadBlock(p1, got))
	assert.Equal(t, bufA, got)
	require.Equal(t, common.StatusOK, reopened.ReadBlock(p2, got))
	assert.Equal(t, bufB, got)
	assert.Equal(t, common.PageID(3), reopened.NextLogicalPageID())

	st1, st := reopened.BlockStatusOf(p1)
	require.Equal(t, common.StatusOK, st)
	assert.Equal(t, common.BlockIncomplete, st1)
}

func TestAllocatePreferredRanges(t *testing.T) {
	dm := newTestDisk(t, t.TempDir())

	// Catalog pages land at the head of the track; the first aligned
	// block there is taken by page 0, so the next surface row is used.
	_, catAddr, st := dm.AllocateBlock(common.PageTypeCatalog)
	require.Equal(t, common.StatusOK, st)
	assert.Less(t, catAddr.Sector, uint32(2))

	// Data pages prefer the tail of the track.
	_, dataAddr, st := dm.AllocateBlock(common.PageTypeData)
	require.Equal(t, common.StatusOK, st)
	assert.GreaterOrEqual(t, dataAddr.Sector, uint32(2))

	// A metadata hint is never allocatable.
	_, _, st = dm.AllocateBlock(common.PageTypeDiskMetadata)
	assert.Equal(t, common.StatusError, st)
}

func TestAllocateReusesIncompleteDataBlock(t *testing.T) {
	dm := newTestDisk(t, t.TempDir())

	p1, addr1, st := dm.AllocateBlock(common.PageTypeData)
	require.Equal(t, common.StatusOK, st)

	// The block is INCOMPLETE, so a second DATA allocation points a
	// fresh page id at the same physical block without touching the
	// status.
	p2, addr2, st := dm.AllocateBlock(common.PageTypeData)
	require.Equal(t, common.StatusOK, st)
	assert.Equal(t, addr1, addr2)
	assert.NotEqual(t, p1, p2)
	status, _ := dm.BlockStatusOf(p2)
	assert.Equal(t, common.BlockIncomplete, status)

	// Once FULL, the next allocation moves on.
	require.Equal(t, common.StatusOK, dm.UpdateBlockStatus(p2, common.BlockFull))
	_, addr3, st := dm.AllocateBlock(common.PageTypeData)
	require.Equal(t, common.StatusOK, st)
	assert.NotEqual(t, addr2, addr3)
}

func TestDiskFull(t *testing.T) {
	dm := newTestDisk(t, t.TempDir())

	// 16 blocks total, one taken by page 0. Mark every allocation
	// FULL so INCOMPLETE reuse cannot kick in.
	for i := 0; i < 15; i++ {
		id, _, st := dm.AllocateBlock(common.PageTypeData)
		require.Equal(t, common.StatusOK, st)
		require.Equal(t, common.StatusOK, dm.UpdateBlockStatus(id, common.BlockFull))
	}
	_, _, st := dm.AllocateBlock(common.PageTypeData)
	assert.Equal(t, common.StatusDiskFull, st)
	assert.Equal(t, uint32(0), dm.FreePhysicalSectors())
}

func TestDeallocate(t *testing.T) {
	dm := newTestDisk(t, t.TempDir())

	t.Run("page 0 is untouchable", func(t *testing.T) {
		assert.Equal(t, common.StatusInvalidParameter, dm.DeallocateBlock(common.DiskMetadataPageID))
		assert.Equal(t, common.StatusInvalidParameter,
			dm.UpdateBlockStatus(common.DiskMetadataPageID, common.BlockEmpty))
	})

	t.Run("missing page", func(t *testing.T) {
		assert.Equal(t, common.StatusNotFound, dm.DeallocateBlock(99))
		assert.Equal(t, common.StatusNotFound, dm.UpdateBlockStatus(99, common.BlockFull))
	})

	t.Run("deallocated block becomes reusable", func(t *testing.T) {
		id, addr, st := dm.AllocateBlock(common.PageTypeIndex)
		require.Equal(t, common.StatusOK, st)
		require.Equal(t, common.StatusOK, dm.DeallocateBlock(id))

		_, st = dm.PhysicalAddressOf(id)
		assert.Equal(t, common.StatusNotFound, st)

		id2, addr2, st := dm.AllocateBlock(common.PageTypeIndex)
		require.Equal(t, common.StatusOK, st)
		assert.Equal(t, addr, addr2)
		assert.Greater(t, id2, id)
	})
}

func TestShortSectorFileIsIOError(t *testing.T) {
	root := t.TempDir()
	dm := newTestDisk(t, root)

	p1, addr, st := dm.AllocateBlock(common.PageTypeData)
	require.Equal(t, common.StatusOK, st)

	// Truncate one backing sector; the read must fail whole, never
	// surfacing partial data.
	require.NoError(t, util.CreateZeroFile(dm.sectorPath(addr), 10))
	buf := make([]byte, 512)
	assert.Equal(t, common.StatusIOError, dm.ReadBlock(p1, buf))
}

func TestNextPageIDStrictlyAboveMappedIDs(t *testing.T) {
	dm := newTestDisk(t, t.TempDir())
	for i := 0; i < 5; i++ {
		id, _, st := dm.AllocateBlock(common.PageTypeData)
		require.Equal(t, common.StatusOK, st)
		require.Equal(t, common.StatusOK, dm.UpdateBlockStatus(id, common.BlockFull))
		assert.Greater(t, dm.NextLogicalPageID(), id)
	}
}
