package conf

import (
	"gopkg.in/ini.v1"

	"github.com/4D43/platterdb/common"
	"github.com/4D43/platterdb/logger"
	"github.com/juju/errors"
)

// Cfg carries the engine configuration read at startup.
//
//	[disk]
//	root              = disks
//	name              = main
//	platters          = 2
//	surfaces          = 2
//	cylinders         = 4
//	sectors_per_track = 16
//	block_size        = 512
//	sector_size       = 256
//
//	[buffer]
//	pool_size = 16
//	policy    = lru
//
//	[log]
//	level = info
type Cfg struct {
	Raw *ini.File

	DisksRoot string
	DiskName  string

	Platters        uint32
	Surfaces        uint32
	Cylinders       uint32
	SectorsPerTrack uint32
	BlockSize       uint32
	SectorSize      uint32

	PoolSize uint32
	Policy   string

	LogLevel string
}

// NewCfg returns the built-in defaults.
func NewCfg() *Cfg {
	return &Cfg{
		Raw:             ini.Empty(),
		DisksRoot:       "disks",
		DiskName:        "main",
		Platters:        2,
		Surfaces:        2,
		Cylinders:       4,
		SectorsPerTrack: 16,
		BlockSize:       512,
		SectorSize:      256,
		PoolSize:        16,
		Policy:          "lru",
		LogLevel:        "info",
	}
}

// Load reads an ini file over the defaults. A missing key keeps its
// default; a malformed file is IO_ERROR; values that violate the disk
// or pool constraints are INVALID_PARAMETER.
func Load(path string) (*Cfg, common.Status) {
	cfg := NewCfg()

	iniFile, err := ini.Load(path)
	if err != nil {
		logger.Errorf("conf: %v", errors.Annotatef(err, "loading %s", path))
		return nil, common.StatusIOError
	}
	cfg.Raw = iniFile

	diskSection := iniFile.Section("disk")
	cfg.DisksRoot = diskSection.Key("root").MustString(cfg.DisksRoot)
	cfg.DiskName = diskSection.Key("name").MustString(cfg.DiskName)
	cfg.Platters = uint32(diskSection.Key("platters").MustUint(uint(cfg.Platters)))
	cfg.Surfaces = uint32(diskSection.Key("surfaces").MustUint(uint(cfg.Surfaces)))
	cfg.Cylinders = uint32(diskSection.Key("cylinders").MustUint(uint(cfg.Cylinders)))
	cfg.SectorsPerTrack = uint32(diskSection.Key("sectors_per_track").MustUint(uint(cfg.SectorsPerTrack)))
	cfg.BlockSize = uint32(diskSection.Key("block_size").MustUint(uint(cfg.BlockSize)))
	cfg.SectorSize = uint32(diskSection.Key("sector_size").MustUint(uint(cfg.SectorSize)))

	bufferSection := iniFile.Section("buffer")
	cfg.PoolSize = uint32(bufferSection.Key("pool_size").MustUint(uint(cfg.PoolSize)))
	cfg.Policy = bufferSection.Key("policy").MustString(cfg.Policy)

	cfg.LogLevel = iniFile.Section("log").Key("level").MustString(cfg.LogLevel)

	if st := cfg.Validate(); !st.IsOK() {
		return nil, st
	}
	return cfg, common.StatusOK
}

// Validate applies the configuration constraints: even platter count,
// block a multiple of sector, at least one frame, a known policy.
func (cfg *Cfg) Validate() common.Status {
	if cfg.SectorSize == 0 || cfg.BlockSize == 0 || cfg.BlockSize%cfg.SectorSize != 0 {
		logger.Warnf("conf: block_size must be a positive multiple of sector_size")
		return common.StatusInvalidParameter
	}
	if cfg.Platters < 2 || cfg.Platters%2 != 0 {
		logger.Warnf("conf: platters must be even and at least 2")
		return common.StatusInvalidParameter
	}
	if cfg.Surfaces < 1 || cfg.Cylinders < 1 {
		return common.StatusInvalidParameter
	}
	if cfg.SectorsPerTrack < cfg.BlockSize/cfg.SectorSize {
		logger.Warnf("conf: sectors_per_track must hold at least one block")
		return common.StatusInvalidParameter
	}
	if cfg.PoolSize < 1 {
		return common.StatusInvalidParameter
	}
	switch cfg.Policy {
	case "lru", "LRU", "clock", "CLOCK":
	default:
		logger.Warnf("conf: unknown replacement policy %q", cfg.Policy)
		return common.StatusInvalidParameter
	}
	return common.StatusOK
}
