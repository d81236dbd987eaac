package engine

import (
	"github.com/4D43/platterdb/common"
	"github.com/4D43/platterdb/conf"
	"github.com/4D43/platterdb/logger"
	"github.com/4D43/platterdb/storage/buffer"
	"github.com/4D43/platterdb/storage/catalog"
	"github.com/4D43/platterdb/storage/disk"
	"github.com/4D43/platterdb/storage/record"
)

// Config fixes the engine wiring: where the disks live, the disk
// geometry and the buffer pool shape.
type Config struct {
	DisksRoot string
	Disk      disk.Config
	PoolSize  uint32
	Policy    string
}

// ConfigFrom adapts a loaded file configuration.
func ConfigFrom(cfg *conf.Cfg) Config {
	return Config{
		DisksRoot: cfg.DisksRoot,
		Disk: disk.Config{
			Name:            cfg.DiskName,
			Platters:        cfg.Platters,
			Surfaces:        cfg.Surfaces,
			Cylinders:       cfg.Cylinders,
			SectorsPerTrack: cfg.SectorsPerTrack,
			BlockSize:       cfg.BlockSize,
			SectorSize:      cfg.SectorSize,
		},
		PoolSize: cfg.PoolSize,
		Policy:   cfg.Policy,
	}
}

// Engine is the single context threading the four managers together.
// The driver owns it; there is no package-level mutable state.
type Engine struct {
	DiskManager   *disk.DiskManager
	Pool          *buffer.BufferPool
	RecordManager *record.RecordManager
	Catalog       *catalog.CatalogManager
}

// Open wires disk, buffer pool, record manager and catalog. An
// existing disk of the configured name is loaded; a missing one is
// created and the catalog bootstrapped.
func Open(cfg Config) (*Engine, common.Status) {
	diskManager, st := disk.NewDiskManager(cfg.DisksRoot, cfg.Disk)
	if !st.IsOK() {
		return nil, st
	}

	if st := diskManager.LoadDiskMetadata(); st == common.StatusNotFound {
		logger.Infof("Disk %s not found, creating it", cfg.Disk.Name)
		if st := diskManager.CreateDiskStructure(); !st.IsOK() {
			return nil, st
		}
	} else if !st.IsOK() {
		return nil, st
	}

	policy, st := buffer.NewPolicy(cfg.Policy)
	if !st.IsOK() {
		return nil, st
	}
	pool, st := buffer.NewBufferPool(diskManager, cfg.PoolSize, policy)
	if !st.IsOK() {
		return nil, st
	}
	recordManager, st := record.NewRecordManager(pool)
	if !st.IsOK() {
		return nil, st
	}
	catalogManager, st := catalog.NewCatalogManager(pool, recordManager)
	if !st.IsOK() {
		return nil, st
	}
	if st := catalogManager.InitCatalog(); !st.IsOK() {
		return nil, st
	}

	return &Engine{
		DiskManager:   diskManager,
		Pool:          pool,
		RecordManager: recordManager,
		Catalog:       catalogManager,
	}, common.StatusOK
}

// Close flushes the pool. A flush failure is reported but shutdown
// completes.
func (e *Engine) Close() common.Status {
	return e.Pool.Close()
}
