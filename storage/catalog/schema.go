package catalog

import (
	"github.com/4D43/platterdb/common"
	"github.com/4D43/platterdb/util"
)

const nameWidth = 64

// ColumnMetadata describes one column of a table schema.
type ColumnMetadata struct {
	Name string // at most 63 bytes, NUL-padded on disk
	Type common.ColumnType
	Size uint32 // CHAR length, INT width, VARCHAR maximum
}

// TableSchema is the catalog's unit of persistence: one schema
// serializes to one record on the catalog page.
type TableSchema struct {
	TableID         uint32
	Name            string
	IsFixedLength   bool
	FixedRecordSize uint32 // only meaningful when IsFixedLength
	NumRecords      uint32
	Columns         []ColumnMetadata
	DataPageIDs     []common.PageID
}

// FirstDataPageID is the head of the table's page list, 0 when the
// table has no pages.
func (s *TableSchema) FirstDataPageID() common.PageID {
	if len(s.DataPageIDs) == 0 {
		return 0
	}
	return s.DataPageIDs[0]
}

// serializeSchema packs a schema into record bytes: the fixed table
// block (id, name[64], fixed flag, first data page, record count,
// fixed record size), the column count and columns, then the tail of
// the data-page list beyond its head.
func serializeSchema(s *TableSchema) []byte {
	buf := make([]byte, 0, 96+len(s.Columns)*(nameWidth+5)+len(s.DataPageIDs)*4)

	buf = util.WriteUB4(buf, s.TableID)
	buf = util.WriteFixedString(buf, s.Name, nameWidth)
	buf = util.WriteBool(buf, s.IsFixedLength)
	buf = util.WriteUB4(buf, uint32(s.FirstDataPageID()))
	buf = util.WriteUB4(buf, s.NumRecords)
	buf = util.WriteUB4(buf, s.FixedRecordSize)

	buf = util.WriteUB4(buf, uint32(len(s.Columns)))
	for _, col := range s.Columns {
		buf = util.WriteFixedString(buf, col.Name, nameWidth)
		buf = util.WriteByte(buf, byte(col.Type))
		buf = util.WriteUB4(buf, col.Size)
	}

	extra := uint32(0)
	if len(s.DataPageIDs) > 1 {
		extra = uint32(len(s.DataPageIDs) - 1)
	}
	buf = util.WriteUB4(buf, extra)
	for i := uint32(0); i < extra; i++ {
		buf = util.WriteUB4(buf, uint32(s.DataPageIDs[i+1]))
	}
	return buf
}

// deserializeSchema is the exact inverse of serializeSchema.
func deserializeSchema(rec []byte) (*TableSchema, common.Status) {
	if len(rec) < 4+nameWidth+1+4+4+4+4 {
		return nil, common.StatusIOError
	}
	s := &TableSchema{}
	cursor := 0
	cursor, s.TableID = util.ReadUB4(rec, cursor)
	cursor, s.Name = util.ReadFixedString(rec, cursor, nameWidth)
	cursor, s.IsFixedLength = util.ReadBool(rec, cursor)
	var firstPage uint32
	cursor, firstPage = util.ReadUB4(rec, cursor)
	cursor, s.NumRecords = util.ReadUB4(rec, cursor)
	cursor, s.FixedRecordSize = util.ReadUB4(rec, cursor)

	var columnCount uint32
	cursor, columnCount = util.ReadUB4(rec, cursor)
	if cursor+int(columnCount)*(nameWidth+5)+4 > len(rec) {
		return nil, common.StatusIOError
	}
	s.Columns = make([]ColumnMetadata, columnCount)
	for i := uint32(0); i < columnCount; i++ {
		var col ColumnMetadata
		cursor, col.Name = util.ReadFixedString(rec, cursor, nameWidth)
		var tag byte
		cursor, tag = util.ReadByte(rec, cursor)
		col.Type = common.ColumnType(tag)
		cursor, col.Size = util.ReadUB4(rec, cursor)
		s.Columns[i] = col
	}

	var extra uint32
	cursor, extra = util.ReadUB4(rec, cursor)
	if cursor+int(extra)*4 > len(rec) {
		return nil, common.StatusIOError
	}
	if firstPage != 0 {
		s.DataPageIDs = append(s.DataPageIDs, common.PageID(firstPage))
	}
	for i := uint32(0); i < extra; i++ {
		var id uint32
		cursor, id = util.ReadUB4(rec, cursor)
		s.DataPageIDs = append(s.DataPageIDs, common.PageID(id))
	}
	return s, common.StatusOK
}

// clone returns a deep copy so callers cannot mutate the catalog's
// in-memory state through a returned schema.
func (s *TableSchema) clone() *TableSchema {
	out := *s
	out.Columns = append([]ColumnMetadata(nil), s.Columns...)
	out.DataPageIDs = append([]common.PageID(nil), s.DataPageIDs...)
	return &out
}
