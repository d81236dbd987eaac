package disk

import (
	"sort"

	"github.com/4D43/platterdb/common"
	"github.com/4D43/platterdb/logger"
	"github.com/4D43/platterdb/util"
)

// Page 0 layout:
//
//	name[256] | 7 x u32 geometry+sizing+next_page_id
//	| block-status bitmap, 2 bits per logical block
//	| u32 entry_count | entry_count x (u32 page_id, 4 x u32 address)
//	| zero fill
const (
	diskNameWidth     = 256
	fixedMetadataSize = diskNameWidth + 7*4
	mapEntrySize      = 4 + 4*4
)

type diskMetadata struct {
	cfg               Config
	nextLogicalPageID common.PageID
	statusBitmap      []byte
	logicalToPhysical map[common.PageID]PhysicalAddress
}

// encodeMetadata serializes the manager's allocation state into one
// block-sized buffer. Overflow of the metadata page is OUT_OF_MEMORY.
func encodeMetadata(dm *DiskManager) ([]byte, common.Status) {
	totalBlocks := dm.TotalLogicalBlocks()
	bitmapSize := util.TwoBitMapSize(totalBlocks)
	mapSize := 4 + uint32(len(dm.logicalToPhysical))*mapEntrySize

	if fixedMetadataSize+bitmapSize+mapSize > dm.cfg.BlockSize {
		logger.Errorf("SaveDiskMetadata: allocation state (%d bitmap + %d map bytes) does not fit page 0",
			bitmapSize, mapSize)
		return nil, common.StatusOutOfMemory
	}

	buf := make([]byte, 0, dm.cfg.BlockSize)
	buf = util.WriteFixedString(buf, dm.cfg.Name, diskNameWidth)
	buf = util.WriteUB4(buf, dm.cfg.Platters)
	buf = util.WriteUB4(buf, dm.cfg.Surfaces)
	buf = util.WriteUB4(buf, dm.cfg.Cylinders)
	buf = util.WriteUB4(buf, dm.cfg.SectorsPerTrack)
	buf = util.WriteUB4(buf, dm.cfg.BlockSize)
	buf = util.WriteUB4(buf, dm.cfg.SectorSize)
	buf = util.WriteUB4(buf, uint32(dm.nextLogicalPageID))

	buf = append(buf, dm.collectStatusBitmap()...)

	buf = util.WriteUB4(buf, uint32(len(dm.logicalToPhysical)))
	ids := make([]common.PageID, 0, len(dm.logicalToPhysical))
	for id := range dm.logicalToPhysical {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		addr := dm.logicalToPhysical[id]
		buf = util.WriteUB4(buf, uint32(id))
		buf = util.WriteUB4(buf, addr.Platter)
		buf = util.WriteUB4(buf, addr.Surface)
		buf = util.WriteUB4(buf, addr.Track)
		buf = util.WriteUB4(buf, addr.Sector)
	}

	// Zero fill to one block.
	buf = append(buf, make([]byte, dm.cfg.BlockSize-uint32(len(buf)))...)
	return buf, common.StatusOK
}

// collectStatusBitmap packs the first-sector status of every block in
// allocation order: cylinder, then platter/surface row, then sector.
func (dm *DiskManager) collectStatusBitmap() []byte {
	totalBlocks := dm.TotalLogicalBlocks()
	bitmap := make([]byte, util.TwoBitMapSize(totalBlocks))
	combined := dm.cfg.Platters * dm.cfg.Surfaces
	sectorsPerBlock := dm.cfg.SectorsPerBlock()

	blockIdx := uint32(0)
	for t := uint32(0); t < dm.cfg.Cylinders; t++ {
		for ps := uint32(0); ps < combined; ps++ {
			for sec := uint32(0); sec < dm.cfg.SectorsPerTrack; sec += sectorsPerBlock {
				if blockIdx < totalBlocks {
					util.WriteTwoBits(bitmap, blockIdx, uint8(dm.statusMap[t][ps][sec]))
					blockIdx++
				}
			}
		}
	}
	return bitmap
}

// applyStatusBitmap is the inverse of collectStatusBitmap.
func (dm *DiskManager) applyStatusBitmap(bitmap []byte) {
	totalBlocks := dm.TotalLogicalBlocks()
	combined := dm.cfg.Platters * dm.cfg.Surfaces
	sectorsPerBlock := dm.cfg.SectorsPerBlock()

	blockIdx := uint32(0)
	for t := uint32(0); t < dm.cfg.Cylinders; t++ {
		for ps := uint32(0); ps < combined; ps++ {
			for sec := uint32(0); sec < dm.cfg.SectorsPerTrack; sec += sectorsPerBlock {
				if blockIdx < totalBlocks && uint32(len(bitmap)) > blockIdx/4 {
					dm.statusMap[t][ps][sec] = common.BlockStatus(util.ReadTwoBits(bitmap, blockIdx))
				} else {
					dm.statusMap[t][ps][sec] = common.BlockEmpty
				}
				blockIdx++
			}
		}
	}
}

// decodeMetadata parses a page-0 image. A buffer too small for the
// declared geometry is corruption and surfaces as IO_ERROR.
func decodeMetadata(buf []byte) (*diskMetadata, common.Status) {
	if uint32(len(buf)) < fixedMetadataSize {
		return nil, common.StatusIOError
	}
	meta := &diskMetadata{logicalToPhysical: make(map[common.PageID]PhysicalAddress)}

	cursor := 0
	cursor, meta.cfg.Name = util.ReadFixedString(buf, cursor, diskNameWidth)
	cursor, meta.cfg.Platters = util.ReadUB4(buf, cursor)
	cursor, meta.cfg.Surfaces = util.ReadUB4(buf, cursor)
	cursor, meta.cfg.Cylinders = util.ReadUB4(buf, cursor)
	cursor, meta.cfg.SectorsPerTrack = util.ReadUB4(buf, cursor)
	cursor, meta.cfg.BlockSize = util.ReadUB4(buf, cursor)
	cursor, meta.cfg.SectorSize = util.ReadUB4(buf, cursor)
	var next uint32
	cursor, next = util.ReadUB4(buf, cursor)
	meta.nextLogicalPageID = common.PageID(next)

	if st := meta.cfg.Validate(); !st.IsOK() {
		logger.Errorf("LoadDiskMetadata: corrupt geometry on page 0")
		return nil, common.StatusIOError
	}

	totalSectors := meta.cfg.Platters * meta.cfg.Surfaces * meta.cfg.Cylinders * meta.cfg.SectorsPerTrack
	totalBlocks := totalSectors / meta.cfg.SectorsPerBlock()
	bitmapSize := util.TwoBitMapSize(totalBlocks)
	if uint32(cursor)+bitmapSize+4 > uint32(len(buf)) {
		logger.Errorf("LoadDiskMetadata: page 0 too small for %d-block bitmap", totalBlocks)
		return nil, common.StatusIOError
	}
	cursor, meta.statusBitmap = util.ReadBytes(buf, cursor, int(bitmapSize))

	var entryCount uint32
	cursor, entryCount = util.ReadUB4(buf, cursor)
	if uint32(cursor)+entryCount*mapEntrySize > uint32(len(buf)) {
		logger.Errorf("LoadDiskMetadata: page 0 too small for %d map entries", entryCount)
		return nil, common.StatusIOError
	}
	for i := uint32(0); i < entryCount; i++ {
		var id uint32
		var addr PhysicalAddress
		cursor, id = util.ReadUB4(buf, cursor)
		cursor, addr.Platter = util.ReadUB4(buf, cursor)
		cursor, addr.Surface = util.ReadUB4(buf, cursor)
		cursor, addr.Track = util.ReadUB4(buf, cursor)
		cursor, addr.Sector = util.ReadUB4(buf, cursor)
		meta.logicalToPhysical[common.PageID(id)] = addr
	}
	return meta, common.StatusOK
}
