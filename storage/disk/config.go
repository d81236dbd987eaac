package disk

import "github.com/4D43/platterdb/common"

// Config fixes the disk geometry and block sizing at creation time.
// All fields are immutable for the lifetime of the disk.
type Config struct {
	Name            string
	Platters        uint32 // must be even and >= 2
	Surfaces        uint32 // per platter, >= 1
	Cylinders       uint32 // tracks per surface, >= 1
	SectorsPerTrack uint32 // >= BlockSize/SectorSize
	BlockSize       uint32 // positive multiple of SectorSize
	SectorSize      uint32 // >= 1
}

// Validate checks the geometry constraints. Violations are caller
// bugs and map to INVALID_PARAMETER.
func (c Config) Validate() common.Status {
	if c.Name == "" {
		return common.StatusInvalidParameter
	}
	if c.SectorSize == 0 || c.BlockSize == 0 || c.BlockSize%c.SectorSize != 0 {
		return common.StatusInvalidParameter
	}
	if c.Platters < 2 || c.Platters%2 != 0 {
		return common.StatusInvalidParameter
	}
	if c.Surfaces < 1 || c.Cylinders < 1 {
		return common.StatusInvalidParameter
	}
	if c.SectorsPerTrack < c.BlockSize/c.SectorSize {
		return common.StatusInvalidParameter
	}
	return common.StatusOK
}

// SectorsPerBlock is the number of contiguous sectors one block spans.
func (c Config) SectorsPerBlock() uint32 {
	return c.BlockSize / c.SectorSize
}
