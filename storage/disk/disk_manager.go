package disk

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/4D43/platterdb/common"
	"github.com/4D43/platterdb/logger"
	"github.com/4D43/platterdb/util"
	"github.com/juju/errors"
)

// DiskManager materializes fixed-size blocks over a tree of per-sector
// files and owns the allocation state: the 2-bit block-status map and
// the logical-to-physical map, both persisted on page 0.
//
// On-disk layout under <root>/<name>/:
//
//	body/Platter_p/Surface_s/Track_t/Sector_q.bin  one file per sector
//	blocks/block_%05d.bin                          informational copies
type DiskManager struct {
	root string
	cfg  Config

	diskPath   string
	bodyPath   string
	blocksPath string

	nextLogicalPageID common.PageID

	// statusMap[track][platter*surfaces+surface][sector] holds the
	// BlockStatus of the block starting at that sector. Entries for
	// non-first sectors of a block are don't-care.
	statusMap [][][]common.BlockStatus

	logicalToPhysical map[common.PageID]PhysicalAddress
}

// NewDiskManager builds a manager for the disk named in cfg rooted at
// root. It does not touch the filesystem; call CreateDiskStructure for
// a fresh disk or LoadDiskMetadata for an existing one.
func NewDiskManager(root string, cfg Config) (*DiskManager, common.Status) {
	if st := cfg.Validate(); !st.IsOK() {
		return nil, st
	}
	dm := &DiskManager{
		root:              root,
		cfg:               cfg,
		diskPath:          filepath.Join(root, cfg.Name),
		nextLogicalPageID: 1,
		logicalToPhysical: make(map[common.PageID]PhysicalAddress),
	}
	dm.bodyPath = filepath.Join(dm.diskPath, "body")
	dm.blocksPath = filepath.Join(dm.diskPath, "blocks")
	dm.resizeStatusMap()
	logger.Debugf("DiskManager ready for disk %s: block=%d sector=%d sectors/block=%d blocks=%d",
		cfg.Name, cfg.BlockSize, cfg.SectorSize, cfg.SectorsPerBlock(), dm.TotalLogicalBlocks())
	return dm, common.StatusOK
}

func (dm *DiskManager) resizeStatusMap() {
	combined := dm.cfg.Platters * dm.cfg.Surfaces
	dm.statusMap = make([][][]common.BlockStatus, dm.cfg.Cylinders)
	for t := uint32(0); t < dm.cfg.Cylinders; t++ {
		dm.statusMap[t] = make([][]common.BlockStatus, combined)
		for ps := uint32(0); ps < combined; ps++ {
			dm.statusMap[t][ps] = make([]common.BlockStatus, dm.cfg.SectorsPerTrack)
		}
	}
}

// sectorPath resolves the host file backing one physical sector.
func (dm *DiskManager) sectorPath(addr PhysicalAddress) string {
	return filepath.Join(dm.bodyPath,
		fmt.Sprintf("Platter_%d", addr.Platter),
		fmt.Sprintf("Surface_%d", addr.Surface),
		fmt.Sprintf("Track_%d", addr.Track),
		fmt.Sprintf("Sector_%d.bin", addr.Sector))
}

func (dm *DiskManager) blockFilePath(blockID uint32) string {
	return filepath.Join(dm.blocksPath, fmt.Sprintf("block_%05d.bin", blockID))
}

func (dm *DiskManager) isValidAddress(addr PhysicalAddress) bool {
	return addr.Platter < dm.cfg.Platters &&
		addr.Surface < dm.cfg.Surfaces &&
		addr.Track < dm.cfg.Cylinders &&
		addr.Sector < dm.cfg.SectorsPerTrack
}

// CreateDiskStructure builds the directory tree, zero-fills every
// sector and block file, reserves page 0 for the metadata page and
// persists the initial metadata. An existing disk of the same name is
// wiped first.
func (dm *DiskManager) CreateDiskStructure() common.Status {
	logger.Infof("Creating disk structure for %s at %s", dm.cfg.Name, dm.diskPath)

	if util.PathExists(dm.diskPath) {
		logger.Warnf("Disk %s already exists, removing previous contents", dm.cfg.Name)
		if err := util.RemoveDirContents(dm.diskPath); err != nil {
			logger.Errorf("CreateDiskStructure: %v", errors.Annotatef(err, "removing %s", dm.diskPath))
			return common.StatusIOError
		}
	}
	for p := uint32(0); p < dm.cfg.Platters; p++ {
		for s := uint32(0); s < dm.cfg.Surfaces; s++ {
			for t := uint32(0); t < dm.cfg.Cylinders; t++ {
				trackDir := filepath.Dir(dm.sectorPath(PhysicalAddress{Platter: p, Surface: s, Track: t}))
				if err := util.CreateDir(trackDir); err != nil {
					logger.Errorf("CreateDiskStructure: %v", errors.Annotatef(err, "creating %s", trackDir))
					return common.StatusIOError
				}
			}
		}
	}
	if err := util.CreateDir(dm.blocksPath); err != nil {
		logger.Errorf("CreateDiskStructure: %v", errors.Annotatef(err, "creating %s", dm.blocksPath))
		return common.StatusIOError
	}

	if st := dm.initializeMapAndFiles(); !st.IsOK() {
		return st
	}

	// Page 0 is the metadata page, pinned to the first physical block
	// and always FULL.
	metaAddr := dm.DiskMetadataPageAddress()
	dm.setBlockStatus(metaAddr, common.BlockFull)
	dm.logicalToPhysical[common.DiskMetadataPageID] = metaAddr
	dm.nextLogicalPageID = 1

	return dm.SaveDiskMetadata()
}

// initializeMapAndFiles marks every block EMPTY and zero-fills the
// sector files plus the representational block files.
func (dm *DiskManager) initializeMapAndFiles() common.Status {
	sectorsPerBlock := dm.cfg.SectorsPerBlock()
	combined := dm.cfg.Platters * dm.cfg.Surfaces
	blockID := uint32(0)

	for t := uint32(0); t < dm.cfg.Cylinders; t++ {
		for ps := uint32(0); ps < combined; ps++ {
			for sec := uint32(0); sec < dm.cfg.SectorsPerTrack; sec++ {
				dm.statusMap[t][ps][sec] = common.BlockEmpty

				if sec%sectorsPerBlock == 0 {
					if err := util.CreateZeroFile(dm.blockFilePath(blockID), dm.cfg.BlockSize); err != nil {
						logger.Errorf("initializeMapAndFiles: %v", errors.Annotate(err, "block file"))
						return common.StatusIOError
					}
					blockID++
				}

				addr := PhysicalAddress{Platter: ps / dm.cfg.Surfaces, Surface: ps % dm.cfg.Surfaces, Track: t, Sector: sec}
				if err := util.CreateZeroFile(dm.sectorPath(addr), dm.cfg.SectorSize); err != nil {
					logger.Errorf("initializeMapAndFiles: %v", errors.Annotate(err, "sector file"))
					return common.StatusIOError
				}
			}
		}
	}
	return common.StatusOK
}

// LoadDiskMetadata reads page 0 and restores geometry, the
// block-status map, the logical-to-physical map and the next page id.
func (dm *DiskManager) LoadDiskMetadata() common.Status {
	if !util.PathExists(dm.diskPath) {
		logger.Warnf("LoadDiskMetadata: disk %s not found at %s", dm.cfg.Name, dm.diskPath)
		return common.StatusNotFound
	}

	buf := make([]byte, dm.cfg.BlockSize)
	if st := dm.readBlockAt(dm.DiskMetadataPageAddress(), buf); !st.IsOK() {
		return st
	}
	meta, st := decodeMetadata(buf)
	if !st.IsOK() {
		return st
	}

	dm.cfg = meta.cfg
	dm.nextLogicalPageID = meta.nextLogicalPageID
	dm.resizeStatusMap()
	dm.applyStatusBitmap(meta.statusBitmap)
	dm.logicalToPhysical = meta.logicalToPhysical

	logger.Infof("Disk metadata loaded: platters=%d surfaces=%d cylinders=%d sectors/track=%d block=%d sector=%d next_page=%d",
		dm.cfg.Platters, dm.cfg.Surfaces, dm.cfg.Cylinders, dm.cfg.SectorsPerTrack,
		dm.cfg.BlockSize, dm.cfg.SectorSize, dm.nextLogicalPageID)
	return common.StatusOK
}

// SaveDiskMetadata serializes the superblock into page 0. Called on
// every allocation-state change.
func (dm *DiskManager) SaveDiskMetadata() common.Status {
	buf, st := encodeMetadata(dm)
	if !st.IsOK() {
		return st
	}
	return dm.writeBlockAt(dm.DiskMetadataPageAddress(), buf)
}

// ReadBlock resolves pageID and reads the whole block into buf, which
// must be exactly one block long. Partial sector data is never
// surfaced.
func (dm *DiskManager) ReadBlock(pageID common.PageID, buf []byte) common.Status {
	addr, ok := dm.logicalToPhysical[pageID]
	if !ok {
		logger.Warnf("ReadBlock: page %d has no physical mapping", pageID)
		return common.StatusNotFound
	}
	if uint32(len(buf)) != dm.cfg.BlockSize {
		return common.StatusInvalidParameter
	}
	return dm.readBlockAt(addr, buf)
}

// WriteBlock resolves pageID and writes the whole block from buf.
func (dm *DiskManager) WriteBlock(pageID common.PageID, buf []byte) common.Status {
	addr, ok := dm.logicalToPhysical[pageID]
	if !ok {
		logger.Warnf("WriteBlock: page %d has no physical mapping", pageID)
		return common.StatusNotFound
	}
	if uint32(len(buf)) != dm.cfg.BlockSize {
		return common.StatusInvalidParameter
	}
	return dm.writeBlockAt(addr, buf)
}

func (dm *DiskManager) readBlockAt(addr PhysicalAddress, buf []byte) common.Status {
	if !dm.isValidAddress(addr) {
		return common.StatusInvalidBlockID
	}
	sectorsPerBlock := dm.cfg.SectorsPerBlock()
	if addr.Sector+sectorsPerBlock > dm.cfg.SectorsPerTrack {
		return common.StatusInvalidBlockID
	}
	for i := uint32(0); i < sectorsPerBlock; i++ {
		sectorAddr := addr
		sectorAddr.Sector += i
		data, err := os.ReadFile(dm.sectorPath(sectorAddr))
		if err != nil {
			logger.Errorf("readBlockAt: %v", errors.Annotatef(err, "sector %s", sectorAddr))
			return common.StatusIOError
		}
		if uint32(len(data)) != dm.cfg.SectorSize {
			logger.Errorf("readBlockAt: short read of sector %s: %d of %d bytes",
				sectorAddr, len(data), dm.cfg.SectorSize)
			return common.StatusIOError
		}
		copy(buf[i*dm.cfg.SectorSize:], data)
	}
	return common.StatusOK
}

func (dm *DiskManager) writeBlockAt(addr PhysicalAddress, buf []byte) common.Status {
	if !dm.isValidAddress(addr) {
		return common.StatusInvalidBlockID
	}
	sectorsPerBlock := dm.cfg.SectorsPerBlock()
	if addr.Sector+sectorsPerBlock > dm.cfg.SectorsPerTrack {
		return common.StatusInvalidBlockID
	}
	for i := uint32(0); i < sectorsPerBlock; i++ {
		sectorAddr := addr
		sectorAddr.Sector += i
		chunk := buf[i*dm.cfg.SectorSize : (i+1)*dm.cfg.SectorSize]
		if err := os.WriteFile(dm.sectorPath(sectorAddr), chunk, 0644); err != nil {
			logger.Errorf("writeBlockAt: %v", errors.Annotatef(err, "sector %s", sectorAddr))
			return common.StatusIOError
		}
	}
	return common.StatusOK
}

// findContiguousBlock scans for a block whose first sector lies in
// [startSector, endSector-sectorsNeeded], stepping block-aligned from
// startSector. With preferIncomplete it first hunts for an INCOMPLETE
// block across all tracks before falling back to EMPTY.
func (dm *DiskManager) findContiguousBlock(startSector, endSector, sectorsNeeded uint32, preferIncomplete bool) (PhysicalAddress, bool) {
	combined := dm.cfg.Platters * dm.cfg.Surfaces
	sectorsPerBlock := dm.cfg.SectorsPerBlock()

	if endSector < sectorsNeeded {
		return PhysicalAddress{}, false
	}
	// Blocks are aligned: candidate first sectors are multiples of the
	// block span, so a mid-block range start rounds up.
	startSector = (startSector + sectorsPerBlock - 1) / sectorsPerBlock * sectorsPerBlock

	if preferIncomplete {
		for t := uint32(0); t < dm.cfg.Cylinders; t++ {
			for ps := uint32(0); ps < combined; ps++ {
				for sec := startSector; sec <= endSector-sectorsNeeded; sec += sectorsPerBlock {
					if dm.statusMap[t][ps][sec] == common.BlockIncomplete {
						addr := PhysicalAddress{Platter: ps / dm.cfg.Surfaces, Surface: ps % dm.cfg.Surfaces, Track: t, Sector: sec}
						logger.Debugf("Reusing INCOMPLETE block at %s", addr)
						return addr, true
					}
				}
			}
		}
	}

	for t := uint32(0); t < dm.cfg.Cylinders; t++ {
		for ps := uint32(0); ps < combined; ps++ {
			for sec := startSector; sec <= endSector-sectorsNeeded; sec += sectorsPerBlock {
				if dm.statusMap[t][ps][sec] == common.BlockEmpty {
					addr := PhysicalAddress{Platter: ps / dm.cfg.Surfaces, Surface: ps % dm.cfg.Surfaces, Track: t, Sector: sec}
					logger.Debugf("Assigning EMPTY block at %s", addr)
					return addr, true
				}
			}
		}
	}
	return PhysicalAddress{}, false
}

// AllocateBlock assigns a fresh logical page to a free block. The page
// type hint steers placement: catalog pages go to the first 10% of
// each track, index pages to the next 20%, data pages to the
// remainder, with INCOMPLETE reuse for data. When the preferred range
// is exhausted any EMPTY block on the disk is taken.
func (dm *DiskManager) AllocateBlock(hint common.PageType) (common.PageID, PhysicalAddress, common.Status) {
	sectorsNeeded := dm.cfg.SectorsPerBlock()
	total := dm.cfg.SectorsPerTrack

	catalogEnd := total / 10
	indexStart := catalogEnd
	indexEnd := catalogEnd + total/5
	if indexEnd > total {
		indexEnd = total
	}
	dataStart := indexEnd
	dataEnd := total

	if catalogEnd < sectorsNeeded {
		catalogEnd = sectorsNeeded
	}
	if indexEnd < sectorsNeeded {
		indexEnd = sectorsNeeded
	}

	var (
		addr      PhysicalAddress
		allocated bool
		reused    bool
	)

	switch hint {
	case common.PageTypeDiskMetadata:
		logger.Errorf("AllocateBlock: the disk metadata page is reserved at creation time")
		return 0, PhysicalAddress{}, common.StatusError
	case common.PageTypeData:
		// INCOMPLETE blocks keep their status: the record manager
		// drives INCOMPLETE/FULL transitions.
		addr, allocated = dm.findContiguousBlock(dataStart, dataEnd, sectorsNeeded, true)
		reused = allocated && dm.blockStatus(addr) == common.BlockIncomplete
	case common.PageTypeCatalog:
		addr, allocated = dm.findContiguousBlock(0, catalogEnd, sectorsNeeded, false)
	case common.PageTypeIndex:
		addr, allocated = dm.findContiguousBlock(indexStart, indexEnd, sectorsNeeded, false)
	}

	if !allocated {
		addr, allocated = dm.findContiguousBlock(0, total, sectorsNeeded, false)
	}
	if !allocated {
		logger.Warnf("AllocateBlock: no free contiguous block of %d bytes left", dm.cfg.BlockSize)
		return 0, PhysicalAddress{}, common.StatusDiskFull
	}

	if !reused {
		dm.setBlockStatus(addr, common.BlockIncomplete)
	}
	pageID := dm.nextLogicalPageID
	dm.nextLogicalPageID++
	dm.logicalToPhysical[pageID] = addr
	if st := dm.SaveDiskMetadata(); !st.IsOK() {
		return 0, PhysicalAddress{}, st
	}

	logger.Debugf("Allocated page %d at %s (hint %s)", pageID, addr, hint)
	return pageID, addr, common.StatusOK
}

// DeallocateBlock releases pageID's block: status EMPTY, mapping
// removed, metadata persisted. Page 0 can never be deallocated.
func (dm *DiskManager) DeallocateBlock(pageID common.PageID) common.Status {
	if pageID == common.DiskMetadataPageID {
		logger.Errorf("DeallocateBlock: page 0 is reserved")
		return common.StatusInvalidParameter
	}
	addr, ok := dm.logicalToPhysical[pageID]
	if !ok {
		logger.Warnf("DeallocateBlock: page %d not mapped", pageID)
		return common.StatusNotFound
	}
	if !dm.isValidAddress(addr) {
		return common.StatusInvalidBlockID
	}

	dm.setBlockStatus(addr, common.BlockEmpty)
	delete(dm.logicalToPhysical, pageID)
	if st := dm.SaveDiskMetadata(); !st.IsOK() {
		return st
	}

	logger.Debugf("Deallocated page %d at %s", pageID, addr)
	return common.StatusOK
}

// UpdateBlockStatus records an INCOMPLETE/FULL/EMPTY transition
// announced by the record manager and persists the metadata page.
func (dm *DiskManager) UpdateBlockStatus(pageID common.PageID, status common.BlockStatus) common.Status {
	if pageID == common.DiskMetadataPageID {
		logger.Errorf("UpdateBlockStatus: page 0 is reserved")
		return common.StatusInvalidParameter
	}
	addr, ok := dm.logicalToPhysical[pageID]
	if !ok {
		logger.Warnf("UpdateBlockStatus: page %d not mapped", pageID)
		return common.StatusNotFound
	}
	if !dm.isValidAddress(addr) {
		return common.StatusInvalidBlockID
	}

	dm.setBlockStatus(addr, status)
	if st := dm.SaveDiskMetadata(); !st.IsOK() {
		return st
	}
	logger.Debugf("Page %d block status -> %s", pageID, status)
	return common.StatusOK
}

func (dm *DiskManager) blockStatus(addr PhysicalAddress) common.BlockStatus {
	ps := addr.Platter*dm.cfg.Surfaces + addr.Surface
	return dm.statusMap[addr.Track][ps][addr.Sector]
}

func (dm *DiskManager) setBlockStatus(addr PhysicalAddress, status common.BlockStatus) {
	ps := addr.Platter*dm.cfg.Surfaces + addr.Surface
	dm.statusMap[addr.Track][ps][addr.Sector] = status
}

// BlockStatusOf reports the allocation status of pageID's block.
func (dm *DiskManager) BlockStatusOf(pageID common.PageID) (common.BlockStatus, common.Status) {
	addr, ok := dm.logicalToPhysical[pageID]
	if !ok {
		return common.BlockEmpty, common.StatusNotFound
	}
	return dm.blockStatus(addr), common.StatusOK
}

// PhysicalAddressOf resolves a logical page id.
func (dm *DiskManager) PhysicalAddressOf(pageID common.PageID) (PhysicalAddress, common.Status) {
	addr, ok := dm.logicalToPhysical[pageID]
	if !ok {
		return PhysicalAddress{}, common.StatusNotFound
	}
	return addr, common.StatusOK
}

// DiskMetadataPageAddress is where page 0 always lives.
func (dm *DiskManager) DiskMetadataPageAddress() PhysicalAddress {
	return PhysicalAddress{}
}

// TotalPhysicalSectors is the sector count of the whole disk.
func (dm *DiskManager) TotalPhysicalSectors() uint32 {
	return dm.cfg.Platters * dm.cfg.Surfaces * dm.cfg.Cylinders * dm.cfg.SectorsPerTrack
}

// FreePhysicalSectors counts the sectors of EMPTY blocks.
func (dm *DiskManager) FreePhysicalSectors() uint32 {
	combined := dm.cfg.Platters * dm.cfg.Surfaces
	sectorsPerBlock := dm.cfg.SectorsPerBlock()
	free := uint32(0)
	for t := uint32(0); t < dm.cfg.Cylinders; t++ {
		for ps := uint32(0); ps < combined; ps++ {
			for sec := uint32(0); sec < dm.cfg.SectorsPerTrack; sec += sectorsPerBlock {
				if dm.statusMap[t][ps][sec] == common.BlockEmpty {
					free += sectorsPerBlock
				}
			}
		}
	}
	return free
}

// TotalLogicalBlocks is how many blocks the disk can hold.
func (dm *DiskManager) TotalLogicalBlocks() uint32 {
	return dm.TotalPhysicalSectors() / dm.cfg.SectorsPerBlock()
}

// BlockSize returns the logical block size in bytes.
func (dm *DiskManager) BlockSize() uint32 { return dm.cfg.BlockSize }

// SectorSize returns the physical sector size in bytes.
func (dm *DiskManager) SectorSize() uint32 { return dm.cfg.SectorSize }

// Name returns the disk name.
func (dm *DiskManager) Name() string { return dm.cfg.Name }

// NextLogicalPageID exposes the allocation cursor; it is strictly
// greater than every mapped page id.
func (dm *DiskManager) NextLogicalPageID() common.PageID { return dm.nextLogicalPageID }

// MappedPageCount reports how many logical pages are currently mapped,
// including page 0.
func (dm *DiskManager) MappedPageCount() int { return len(dm.logicalToPhysical) }
