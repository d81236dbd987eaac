package record

import (
	"github.com/4D43/platterdb/common"
	"github.com/4D43/platterdb/util"
)

// Slotted-page layout. The fixed header sits at offset 0, the slot
// directory grows upward right behind it, record bytes grow downward
// from the block's high end to DataEndOffset. The gap between
// HeaderAndSlotDirectorySize and DataEndOffset is the free contiguous
// area.
const (
	// HeaderSize is the fixed block header: page id (4), page type
	// (1), num slots (4), header+directory size (4), data end (4).
	HeaderSize = 17

	// SlotEntrySize is one directory entry: offset (4), length (4),
	// occupied flag (1).
	SlotEntrySize = 9
)

// Header is the fixed block header shared by DATA and CATALOG pages.
type Header struct {
	PageID                     common.PageID
	PageType                   common.PageType
	NumSlots                   uint32
	HeaderAndSlotDirectorySize uint32
	DataEndOffset              uint32
}

// SlotEntry addresses one record inside the page.
type SlotEntry struct {
	Offset   uint32
	Length   uint32
	Occupied bool
}

// ReadHeader decodes the fixed header from a page image.
func ReadHeader(pageData []byte) Header {
	var h Header
	cursor := 0
	var id uint32
	cursor, id = util.ReadUB4(pageData, cursor)
	h.PageID = common.PageID(id)
	var pt byte
	cursor, pt = util.ReadByte(pageData, cursor)
	h.PageType = common.PageType(pt)
	cursor, h.NumSlots = util.ReadUB4(pageData, cursor)
	cursor, h.HeaderAndSlotDirectorySize = util.ReadUB4(pageData, cursor)
	_, h.DataEndOffset = util.ReadUB4(pageData, cursor)
	return h
}

// WriteHeader encodes the fixed header into a page image.
func WriteHeader(pageData []byte, h Header) {
	buf := make([]byte, 0, HeaderSize)
	buf = util.WriteUB4(buf, uint32(h.PageID))
	buf = util.WriteByte(buf, byte(h.PageType))
	buf = util.WriteUB4(buf, h.NumSlots)
	buf = util.WriteUB4(buf, h.HeaderAndSlotDirectorySize)
	buf = util.WriteUB4(buf, h.DataEndOffset)
	copy(pageData, buf)
}

func slotOffset(slotID uint32) uint32 {
	return HeaderSize + slotID*SlotEntrySize
}

// ReadSlotEntry decodes directory entry slotID. The caller guarantees
// slotID < NumSlots.
func ReadSlotEntry(pageData []byte, slotID uint32) SlotEntry {
	var e SlotEntry
	cursor := int(slotOffset(slotID))
	cursor, e.Offset = util.ReadUB4(pageData, cursor)
	cursor, e.Length = util.ReadUB4(pageData, cursor)
	_, e.Occupied = util.ReadBool(pageData, cursor)
	return e
}

// WriteSlotEntry encodes directory entry slotID.
func WriteSlotEntry(pageData []byte, slotID uint32, e SlotEntry) {
	buf := make([]byte, 0, SlotEntrySize)
	buf = util.WriteUB4(buf, e.Offset)
	buf = util.WriteUB4(buf, e.Length)
	buf = util.WriteBool(buf, e.Occupied)
	copy(pageData[slotOffset(slotID):], buf)
}

// FreeSpaceOf computes the free contiguous area for a decoded header.
func FreeSpaceOf(h Header) uint32 {
	end := HeaderSize + h.NumSlots*SlotEntrySize
	if h.DataEndOffset < end {
		return 0
	}
	return h.DataEndOffset - end
}

// ResetPage rewrites pageData as an empty slotted page of the given
// type: no slots, all space free, data region zeroed.
func ResetPage(pageData []byte, pageID common.PageID, pageType common.PageType) {
	h := Header{
		PageID:                     pageID,
		PageType:                   pageType,
		NumSlots:                   0,
		HeaderAndSlotDirectorySize: HeaderSize,
		DataEndOffset:              uint32(len(pageData)),
	}
	WriteHeader(pageData, h)
	for i := HeaderSize; i < len(pageData); i++ {
		pageData[i] = 0
	}
}

// isSlottedType reports whether record operations apply to this page
// type. The catalog page is slotted just like data pages.
func isSlottedType(t common.PageType) bool {
	return t == common.PageTypeData || t == common.PageTypeCatalog
}
