package record

import (
	"github.com/4D43/platterdb/common"
	"github.com/4D43/platterdb/logger"
	"github.com/4D43/platterdb/storage/buffer"
)

// RecordManager implements slotted-page record storage on top of pages
// borrowed from the buffer pool. It owns no persistent state of its
// own and never touches the disk directly; block-status transitions
// are announced through the pool's delegation method.
type RecordManager struct {
	pool *buffer.BufferPool
}

// NewRecordManager builds a record manager over pool.
func NewRecordManager(pool *buffer.BufferPool) (*RecordManager, common.Status) {
	if pool == nil {
		return nil, common.StatusInvalidParameter
	}
	return &RecordManager{pool: pool}, common.StatusOK
}

// InitDataPage zeroes the page and writes an empty DATA header: no
// slots, the whole block past the header free.
func (rm *RecordManager) InitDataPage(pageID common.PageID) common.Status {
	guard, st := rm.pool.FetchPage(pageID)
	if !st.IsOK() {
		logger.Errorf("InitDataPage: fetch of page %d failed: %s", pageID, st)
		return st
	}
	defer guard.Release()

	ResetPage(guard.Data(), pageID, common.PageTypeData)
	guard.MarkDirty()

	logger.Debugf("Data page %d initialized", pageID)
	return common.StatusOK
}

// InsertRecord places rec into a free slot of the page, growing the
// slot directory by one entry when no freed slot is available. Growth
// costs SlotEntrySize bytes of free space; any speculative header
// growth is reverted before a BUFFER_FULL return. When the insert
// leaves zero free space the block is announced FULL.
func (rm *RecordManager) InsertRecord(pageID common.PageID, rec []byte) (uint32, common.Status) {
	guard, st := rm.pool.FetchPage(pageID)
	if !st.IsOK() {
		logger.Errorf("InsertRecord: fetch of page %d failed: %s", pageID, st)
		return 0, st
	}
	pageData := guard.Data()

	header := ReadHeader(pageData)
	if !isSlottedType(header.PageType) {
		guard.Release()
		logger.Warnf("InsertRecord: page %d is %s, not a slotted page", pageID, header.PageType)
		return 0, common.StatusInvalidPageType
	}

	recordLength := uint32(len(rec))

	// Reuse a freed slot when one exists; otherwise grow the
	// directory, which itself consumes free space.
	foundSlot := uint32(0)
	haveSlot := false
	for i := uint32(0); i < header.NumSlots; i++ {
		if !ReadSlotEntry(pageData, i).Occupied {
			foundSlot = i
			haveSlot = true
			break
		}
	}
	grewDirectory := false
	if !haveSlot {
		foundSlot = header.NumSlots
		header.NumSlots++
		header.HeaderAndSlotDirectorySize = HeaderSize + header.NumSlots*SlotEntrySize
		grewDirectory = true
	}

	if FreeSpaceOf(header) < recordLength {
		if grewDirectory {
			header.NumSlots--
			header.HeaderAndSlotDirectorySize = HeaderSize + header.NumSlots*SlotEntrySize
		}
		guard.Release()
		logger.Warnf("InsertRecord: page %d full, %d bytes do not fit", pageID, recordLength)
		return 0, common.StatusBufferFull
	}

	header.DataEndOffset -= recordLength
	copy(pageData[header.DataEndOffset:], rec)

	WriteSlotEntry(pageData, foundSlot, SlotEntry{
		Offset:   header.DataEndOffset,
		Length:   recordLength,
		Occupied: true,
	})
	WriteHeader(pageData, header)

	newFree := FreeSpaceOf(header)
	guard.MarkDirty()
	guard.Release()

	if newFree == 0 {
		rm.pool.UpdateBlockStatusOnDisk(pageID, common.BlockFull)
	} else {
		rm.pool.UpdateBlockStatusOnDisk(pageID, common.BlockIncomplete)
	}

	logger.Debugf("Inserted %d bytes into page %d slot %d (free %d)",
		recordLength, pageID, foundSlot, newFree)
	return foundSlot, common.StatusOK
}

// GetRecord copies the record bytes of an occupied slot.
func (rm *RecordManager) GetRecord(pageID common.PageID, slotID uint32) ([]byte, common.Status) {
	guard, st := rm.pool.FetchPage(pageID)
	if !st.IsOK() {
		logger.Errorf("GetRecord: fetch of page %d failed: %s", pageID, st)
		return nil, st
	}
	defer guard.Release()
	pageData := guard.Data()

	header := ReadHeader(pageData)
	if !isSlottedType(header.PageType) {
		return nil, common.StatusInvalidPageType
	}
	if slotID >= header.NumSlots {
		return nil, common.StatusNotFound
	}
	entry := ReadSlotEntry(pageData, slotID)
	if !entry.Occupied {
		return nil, common.StatusNotFound
	}

	out := make([]byte, entry.Length)
	copy(out, pageData[entry.Offset:entry.Offset+entry.Length])
	return out, common.StatusOK
}

// UpdateRecord overwrites the record in place when the new bytes fit
// in the old slot, zero-filling any shrunk tail. A larger record is
// relocated via delete+insert; the returned slot id is where the
// record now lives and may differ from slotID.
func (rm *RecordManager) UpdateRecord(pageID common.PageID, slotID uint32, newRec []byte) (uint32, common.Status) {
	guard, st := rm.pool.FetchPage(pageID)
	if !st.IsOK() {
		logger.Errorf("UpdateRecord: fetch of page %d failed: %s", pageID, st)
		return 0, st
	}
	pageData := guard.Data()

	header := ReadHeader(pageData)
	if !isSlottedType(header.PageType) {
		guard.Release()
		return 0, common.StatusInvalidPageType
	}
	if slotID >= header.NumSlots {
		guard.Release()
		return 0, common.StatusNotFound
	}
	oldEntry := ReadSlotEntry(pageData, slotID)
	if !oldEntry.Occupied {
		guard.Release()
		return 0, common.StatusNotFound
	}

	newLength := uint32(len(newRec))
	if newLength <= oldEntry.Length {
		copy(pageData[oldEntry.Offset:], newRec)
		for i := oldEntry.Offset + newLength; i < oldEntry.Offset+oldEntry.Length; i++ {
			pageData[i] = 0
		}
		if newLength != oldEntry.Length {
			oldEntry.Length = newLength
			WriteSlotEntry(pageData, slotID, oldEntry)
		}
		guard.MarkDirty()
		guard.Release()

		rm.pushBlockStatus(pageID)
		logger.Debugf("Updated page %d slot %d in place (%d bytes)", pageID, slotID, newLength)
		return slotID, common.StatusOK
	}

	// Relocation: release the pin, then delete + reinsert. The slot
	// id may change and fragmentation may remain; no compaction.
	guard.Release()
	logger.Debugf("UpdateRecord: relocating page %d slot %d (%d -> %d bytes)",
		pageID, slotID, oldEntry.Length, newLength)

	if st := rm.DeleteRecord(pageID, slotID); !st.IsOK() {
		return 0, st
	}
	newSlot, st := rm.InsertRecord(pageID, newRec)
	if !st.IsOK() {
		return 0, st
	}
	rm.pushBlockStatus(pageID)
	return newSlot, common.StatusOK
}

// DeleteRecord frees the slot and zeroes the record bytes. The slot
// directory never shrinks, so surviving slot ids stay stable and the
// slot is eligible for reuse. An emptied page is announced EMPTY,
// otherwise INCOMPLETE.
func (rm *RecordManager) DeleteRecord(pageID common.PageID, slotID uint32) common.Status {
	guard, st := rm.pool.FetchPage(pageID)
	if !st.IsOK() {
		logger.Errorf("DeleteRecord: fetch of page %d failed: %s", pageID, st)
		return st
	}
	pageData := guard.Data()

	header := ReadHeader(pageData)
	if !isSlottedType(header.PageType) {
		guard.Release()
		return common.StatusInvalidPageType
	}
	if slotID >= header.NumSlots {
		guard.Release()
		return common.StatusNotFound
	}
	entry := ReadSlotEntry(pageData, slotID)
	if !entry.Occupied {
		guard.Release()
		return common.StatusNotFound
	}

	entry.Occupied = false
	WriteSlotEntry(pageData, slotID, entry)
	for i := entry.Offset; i < entry.Offset+entry.Length; i++ {
		pageData[i] = 0
	}

	occupied := uint32(0)
	for i := uint32(0); i < header.NumSlots; i++ {
		if ReadSlotEntry(pageData, i).Occupied {
			occupied++
		}
	}
	guard.MarkDirty()
	guard.Release()

	if occupied == 0 {
		rm.pool.UpdateBlockStatusOnDisk(pageID, common.BlockEmpty)
	} else {
		rm.pool.UpdateBlockStatusOnDisk(pageID, common.BlockIncomplete)
	}

	logger.Debugf("Deleted page %d slot %d (%d records remain)", pageID, slotID, occupied)
	return common.StatusOK
}

// GetNumRecords counts the occupied slots of the page.
func (rm *RecordManager) GetNumRecords(pageID common.PageID) (uint32, common.Status) {
	guard, st := rm.pool.FetchPage(pageID)
	if !st.IsOK() {
		return 0, st
	}
	defer guard.Release()
	pageData := guard.Data()

	header := ReadHeader(pageData)
	if !isSlottedType(header.PageType) {
		return 0, common.StatusInvalidPageType
	}
	count := uint32(0)
	for i := uint32(0); i < header.NumSlots; i++ {
		if ReadSlotEntry(pageData, i).Occupied {
			count++
		}
	}
	return count, common.StatusOK
}

// GetFreeSpace reports the free contiguous area of the page.
func (rm *RecordManager) GetFreeSpace(pageID common.PageID) (uint32, common.Status) {
	guard, st := rm.pool.FetchPage(pageID)
	if !st.IsOK() {
		return 0, st
	}
	defer guard.Release()

	header := ReadHeader(guard.Data())
	if !isSlottedType(header.PageType) {
		return 0, common.StatusInvalidPageType
	}
	return FreeSpaceOf(header), common.StatusOK
}

// pushBlockStatus re-evaluates the page's allocation status after an
// update path: FULL exactly when no free space remains.
func (rm *RecordManager) pushBlockStatus(pageID common.PageID) {
	free, st := rm.GetFreeSpace(pageID)
	if !st.IsOK() {
		return
	}
	if free == 0 {
		rm.pool.UpdateBlockStatusOnDisk(pageID, common.BlockFull)
	} else {
		rm.pool.UpdateBlockStatusOnDisk(pageID, common.BlockIncomplete)
	}
}
