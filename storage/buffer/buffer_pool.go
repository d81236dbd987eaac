package buffer

import (
	"github.com/4D43/platterdb/common"
	"github.com/4D43/platterdb/logger"
	"github.com/4D43/platterdb/storage/disk"
)

// frame holds the bookkeeping for one buffer slot. The page bytes live
// in the pool's frameData array; the frame only references a page id.
type frame struct {
	pageID   common.PageID
	pinCount uint32
	dirty    bool
	valid    bool
}

func (f *frame) reset() {
	f.pageID = 0
	f.pinCount = 0
	f.dirty = false
	f.valid = false
}

// BufferPool caches disk blocks in a fixed set of frames, enforces the
// pin discipline and delegates victim choice to a ReplacementPolicy.
// Single-threaded cooperative: the pool is the sole mutator of frames.
type BufferPool struct {
	diskManager *disk.DiskManager
	policy      ReplacementPolicy

	poolSize  uint32
	blockSize uint32

	frames    []frame
	frameData [][]byte
	pageTable map[common.PageID]common.FrameID

	// Statistics
	stats struct {
		hits       uint64
		misses     uint64
		evictions  uint64
		flushes    uint64
		pageReads  uint64
		pageWrites uint64
	}
}

// NewBufferPool builds a pool of poolSize frames over diskManager.
func NewBufferPool(diskManager *disk.DiskManager, poolSize uint32, policy ReplacementPolicy) (*BufferPool, common.Status) {
	if diskManager == nil || policy == nil || poolSize < 1 {
		return nil, common.StatusInvalidParameter
	}
	bp := &BufferPool{
		diskManager: diskManager,
		policy:      policy,
		poolSize:    poolSize,
		blockSize:   diskManager.BlockSize(),
		frames:      make([]frame, poolSize),
		frameData:   make([][]byte, poolSize),
		pageTable:   make(map[common.PageID]common.FrameID),
	}
	for i := range bp.frameData {
		bp.frameData[i] = make([]byte, bp.blockSize)
	}
	logger.Debugf("BufferPool ready: %d frames x %d bytes", poolSize, bp.blockSize)
	return bp, common.StatusOK
}

// FetchPage returns a pinned guard over the page's bytes, loading the
// block from disk on a miss. On BUFFER_FULL no side effect is
// observable.
func (bp *BufferPool) FetchPage(pageID common.PageID) (*PageGuard, common.Status) {
	if frameID, ok := bp.pageTable[pageID]; ok {
		bp.stats.hits++
		f := &bp.frames[frameID]
		f.pinCount++
		if f.pinCount == 1 {
			bp.policy.Pin(frameID)
		}
		bp.policy.Access(frameID)
		return bp.newGuard(pageID, frameID), common.StatusOK
	}

	bp.stats.misses++
	frameID, st := bp.reserveFrame()
	if !st.IsOK() {
		return nil, st
	}

	if st := bp.diskManager.ReadBlock(pageID, bp.frameData[frameID]); !st.IsOK() {
		// Frame stays invalid, hence free; nothing else changed.
		return nil, st
	}
	bp.stats.pageReads++

	bp.bindFrame(frameID, pageID)
	return bp.newGuard(pageID, frameID), common.StatusOK
}

// NewPage allocates a block on disk, installs an all-zero page for it
// and writes the zero block through so the sector files exist. Any
// failure rolls the allocation back.
func (bp *BufferPool) NewPage(pageType common.PageType) (common.PageID, *PageGuard, common.Status) {
	pageID, _, st := bp.diskManager.AllocateBlock(pageType)
	if !st.IsOK() {
		return 0, nil, st
	}

	frameID, st := bp.reserveFrame()
	if !st.IsOK() {
		bp.diskManager.DeallocateBlock(pageID)
		return 0, nil, st
	}

	data := bp.frameData[frameID]
	for i := range data {
		data[i] = 0
	}
	bp.bindFrame(frameID, pageID)
	bp.frames[frameID].dirty = true

	if st := bp.diskManager.WriteBlock(pageID, data); !st.IsOK() {
		logger.Errorf("NewPage: write-through of page %d failed: %s", pageID, st)
		delete(bp.pageTable, pageID)
		bp.frames[frameID].reset()
		bp.policy.RemoveFrame(frameID)
		bp.diskManager.DeallocateBlock(pageID)
		return 0, nil, st
	}
	bp.stats.pageWrites++

	logger.Debugf("New page %d created in frame %d (%s)", pageID, frameID, pageType)
	return pageID, bp.newGuard(pageID, frameID), common.StatusOK
}

// UnpinPage drops one pin and ORs the dirty mark in. Unpinning a page
// that is absent or already unpinned is a caller bug.
func (bp *BufferPool) UnpinPage(pageID common.PageID, markDirty bool) common.Status {
	frameID, ok := bp.pageTable[pageID]
	if !ok {
		logger.Warnf("UnpinPage: page %d not in pool", pageID)
		return common.StatusNotFound
	}
	f := &bp.frames[frameID]
	if f.pinCount == 0 {
		logger.Warnf("UnpinPage: page %d already has pin count 0", pageID)
		return common.StatusInvalidParameter
	}
	f.pinCount--
	if markDirty {
		f.dirty = true
	}
	if f.pinCount == 0 {
		bp.policy.Unpin(frameID)
	}
	return common.StatusOK
}

// FlushPage writes the page back if dirty. The page keeps its pins.
func (bp *BufferPool) FlushPage(pageID common.PageID) common.Status {
	frameID, ok := bp.pageTable[pageID]
	if !ok {
		return common.StatusNotFound
	}
	f := &bp.frames[frameID]
	if !f.dirty {
		return common.StatusOK
	}
	if st := bp.diskManager.WriteBlock(pageID, bp.frameData[frameID]); !st.IsOK() {
		return st
	}
	f.dirty = false
	bp.stats.flushes++
	bp.stats.pageWrites++
	return common.StatusOK
}

// FlushAllPages writes every dirty frame back. The first failure is
// reported but the sweep continues; a second consecutive call performs
// no writes.
func (bp *BufferPool) FlushAllPages() common.Status {
	overall := common.StatusOK
	for i := range bp.frames {
		f := &bp.frames[i]
		if !f.valid || !f.dirty {
			continue
		}
		if st := bp.diskManager.WriteBlock(f.pageID, bp.frameData[i]); !st.IsOK() {
			logger.Errorf("FlushAllPages: page %d failed: %s", f.pageID, st)
			if overall.IsOK() {
				overall = st
			}
			continue
		}
		f.dirty = false
		bp.stats.flushes++
		bp.stats.pageWrites++
	}
	return overall
}

// DeletePage evicts the page from the pool (flushing first if dirty)
// and deallocates its block on disk. A pinned page cannot be deleted.
func (bp *BufferPool) DeletePage(pageID common.PageID) common.Status {
	if frameID, ok := bp.pageTable[pageID]; ok {
		f := &bp.frames[frameID]
		if f.pinCount > 0 {
			logger.Warnf("DeletePage: page %d is pinned", pageID)
			return common.StatusPagePinned
		}
		if f.dirty {
			if st := bp.diskManager.WriteBlock(pageID, bp.frameData[frameID]); !st.IsOK() {
				return st
			}
			bp.stats.pageWrites++
		}
		f.reset()
		delete(bp.pageTable, pageID)
		bp.policy.RemoveFrame(frameID)
	}
	return bp.diskManager.DeallocateBlock(pageID)
}

// UpdateBlockStatusOnDisk forwards a block-status transition to the
// disk so the record manager never holds a disk reference.
func (bp *BufferPool) UpdateBlockStatusOnDisk(pageID common.PageID, status common.BlockStatus) common.Status {
	return bp.diskManager.UpdateBlockStatus(pageID, status)
}

// Close flushes all dirty pages. Outstanding pins are a caller bug;
// they are reported, and destruction proceeds regardless.
func (bp *BufferPool) Close() common.Status {
	for i := range bp.frames {
		if bp.frames[i].valid && bp.frames[i].pinCount > 0 {
			logger.Warnf("Close: page %d still pinned %d time(s)", bp.frames[i].pageID, bp.frames[i].pinCount)
		}
	}
	st := bp.FlushAllPages()
	if !st.IsOK() {
		logger.Errorf("Close: flush-all failed: %s", st)
	}
	return st
}

// reserveFrame returns a free frame, evicting one if necessary.
func (bp *BufferPool) reserveFrame() (common.FrameID, common.Status) {
	if frameID, ok := bp.findFreeFrame(); ok {
		return frameID, common.StatusOK
	}
	return bp.evictFrame()
}

func (bp *BufferPool) findFreeFrame() (common.FrameID, bool) {
	for i := range bp.frames {
		if !bp.frames[i].valid {
			return common.FrameID(i), true
		}
	}
	return 0, false
}

// evictFrame asks the policy for a victim, writes it back if dirty and
// unbinds it. BUFFER_FULL when no unpinned frame exists.
func (bp *BufferPool) evictFrame() (common.FrameID, common.Status) {
	frameID := bp.policy.Evict()
	if frameID == InvalidFrame {
		logger.Warnf("evictFrame: no evictable frame")
		return 0, common.StatusBufferFull
	}
	f := &bp.frames[frameID]
	if f.dirty {
		if st := bp.diskManager.WriteBlock(f.pageID, bp.frameData[frameID]); !st.IsOK() {
			return 0, st
		}
		bp.stats.pageWrites++
	}
	logger.Debugf("Evicting page %d from frame %d", f.pageID, frameID)
	delete(bp.pageTable, f.pageID)
	f.reset()
	bp.policy.RemoveFrame(frameID)
	bp.stats.evictions++
	return frameID, common.StatusOK
}

// bindFrame installs pageID into the frame with one pin, registers it
// with the policy and the page table.
func (bp *BufferPool) bindFrame(frameID common.FrameID, pageID common.PageID) {
	f := &bp.frames[frameID]
	f.pageID = pageID
	f.pinCount = 1
	f.dirty = false
	f.valid = true
	bp.pageTable[pageID] = frameID

	bp.policy.AddFrame(frameID)
	bp.policy.Pin(frameID)
	bp.policy.Access(frameID)
}

// FreeFramesCount reports how many frames hold no page.
func (bp *BufferPool) FreeFramesCount() uint32 {
	free := uint32(0)
	for i := range bp.frames {
		if !bp.frames[i].valid {
			free++
		}
	}
	return free
}

// PoolSize is the total number of frames.
func (bp *BufferPool) PoolSize() uint32 { return bp.poolSize }

// NumBufferedPages is how many pages are resident.
func (bp *BufferPool) NumBufferedPages() uint32 { return uint32(len(bp.pageTable)) }

// BlockSize is the page size in bytes.
func (bp *BufferPool) BlockSize() uint32 { return bp.blockSize }

// PinCountOf reports the pin count of a resident page; NOT_FOUND for
// absent pages.
func (bp *BufferPool) PinCountOf(pageID common.PageID) (uint32, common.Status) {
	frameID, ok := bp.pageTable[pageID]
	if !ok {
		return 0, common.StatusNotFound
	}
	return bp.frames[frameID].pinCount, common.StatusOK
}

// GetStats returns a snapshot of the pool counters.
func (bp *BufferPool) GetStats() map[string]uint64 {
	return map[string]uint64{
		"hits":        bp.stats.hits,
		"misses":      bp.stats.misses,
		"evictions":   bp.stats.evictions,
		"flushes":     bp.stats.flushes,
		"page_reads":  bp.stats.pageReads,
		"page_writes": bp.stats.pageWrites,
	}
}
