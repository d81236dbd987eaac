package catalog

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/4D43/platterdb/common"
	"github.com/4D43/platterdb/logger"
	"github.com/4D43/platterdb/storage/buffer"
	"github.com/4D43/platterdb/storage/record"
	"github.com/juju/errors"
)

// bootstrapCatalogPageID is the page probed on a cold start: the
// catalog page is the first page the engine creates after the disk
// metadata page, so a freshly bootstrapped disk always has it at 1.
const bootstrapCatalogPageID common.PageID = 1

// CatalogManager owns the table schemas and their data-page lists. The
// in-memory map is authoritative during a run; its durable form is one
// record per schema on a distinguished catalog page, written through
// the record manager. The catalog reaches the disk only through the
// buffer pool and record manager.
type CatalogManager struct {
	pool          *buffer.BufferPool
	recordManager *record.RecordManager

	catalogPageID common.PageID
	tableSchemas  map[string]*TableSchema
	nextTableID   uint32
}

// NewCatalogManager builds a catalog over the pool and record manager.
func NewCatalogManager(pool *buffer.BufferPool, recordManager *record.RecordManager) (*CatalogManager, common.Status) {
	if pool == nil || recordManager == nil {
		return nil, common.StatusInvalidParameter
	}
	return &CatalogManager{
		pool:          pool,
		recordManager: recordManager,
		tableSchemas:  make(map[string]*TableSchema),
		nextTableID:   1,
	}, common.StatusOK
}

// InitCatalog loads an existing catalog, or bootstraps an empty one on
// a fresh disk: a new CATALOG-typed page, slotted-initialized, with an
// initial save so the empty catalog is durable.
func (cm *CatalogManager) InitCatalog() common.Status {
	if st := cm.LoadCatalog(); st.IsOK() {
		logger.Infof("Existing catalog loaded: %d table(s)", len(cm.tableSchemas))
		return common.StatusOK
	}

	logger.Infof("No catalog found, creating a new catalog page")
	pageID, guard, st := cm.pool.NewPage(common.PageTypeCatalog)
	if !st.IsOK() {
		logger.Errorf("InitCatalog: could not allocate a catalog page: %s", st)
		return st
	}
	cm.catalogPageID = pageID

	// The catalog page is slotted like a data page; SaveCatalog stamps
	// the CATALOG page type into the header.
	record.ResetPage(guard.Data(), pageID, common.PageTypeCatalog)
	guard.MarkDirty()
	if st := guard.Release(); !st.IsOK() {
		return st
	}

	if st := cm.SaveCatalog(); !st.IsOK() {
		logger.Errorf("InitCatalog: initial catalog save failed: %s", st)
		return st
	}
	logger.Infof("Catalog bootstrapped on page %d", pageID)
	return common.StatusOK
}

// LoadCatalog reads the catalog page, deserializes every occupied slot
// into the in-memory map and advances nextTableID past the largest
// loaded table id.
func (cm *CatalogManager) LoadCatalog() common.Status {
	if cm.catalogPageID == 0 {
		// Cold start: probe the bootstrap location and verify it
		// carries a slotted page.
		guard, st := cm.pool.FetchPage(bootstrapCatalogPageID)
		if !st.IsOK() {
			logger.Debugf("LoadCatalog: no page %d yet (%s)", bootstrapCatalogPageID, st)
			return common.StatusNotFound
		}
		header := record.ReadHeader(guard.Data())
		guard.Release()
		if header.PageType != common.PageTypeCatalog && header.PageType != common.PageTypeData {
			logger.Warnf("LoadCatalog: page %d is %s, not a catalog page",
				bootstrapCatalogPageID, header.PageType)
			return common.StatusError
		}
		cm.catalogPageID = bootstrapCatalogPageID
	}

	guard, st := cm.pool.FetchPage(cm.catalogPageID)
	if !st.IsOK() {
		logger.Errorf("LoadCatalog: fetch of catalog page %d failed: %s", cm.catalogPageID, st)
		return st
	}
	header := record.ReadHeader(guard.Data())
	guard.Release()

	cm.tableSchemas = make(map[string]*TableSchema)
	for slot := uint32(0); slot < header.NumSlots; slot++ {
		rec, st := cm.recordManager.GetRecord(cm.catalogPageID, slot)
		if st == common.StatusNotFound {
			continue
		}
		if !st.IsOK() {
			logger.Errorf("LoadCatalog: slot %d unreadable: %s", slot, st)
			return st
		}
		schema, st := deserializeSchema(rec)
		if !st.IsOK() {
			logger.Errorf("LoadCatalog: slot %d holds a corrupt schema record", slot)
			return st
		}
		cm.tableSchemas[schema.Name] = schema
		if schema.TableID >= cm.nextTableID {
			cm.nextTableID = schema.TableID + 1
		}
	}

	logger.Infof("Catalog loaded from page %d: %d table(s)", cm.catalogPageID, len(cm.tableSchemas))
	return common.StatusOK
}

// SaveCatalog rewrites the catalog page from scratch: reset the header
// to an empty CATALOG page, then insert one record per schema. A
// failure mid-save is surfaced; the rewrite is not atomic.
func (cm *CatalogManager) SaveCatalog() common.Status {
	guard, st := cm.pool.FetchPage(cm.catalogPageID)
	if !st.IsOK() {
		logger.Errorf("SaveCatalog: fetch of catalog page %d failed: %s", cm.catalogPageID, st)
		return st
	}
	record.ResetPage(guard.Data(), cm.catalogPageID, common.PageTypeCatalog)
	guard.MarkDirty()
	if st := guard.Release(); !st.IsOK() {
		return st
	}

	names := make([]string, 0, len(cm.tableSchemas))
	for name := range cm.tableSchemas {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		rec := serializeSchema(cm.tableSchemas[name])
		if _, st := cm.recordManager.InsertRecord(cm.catalogPageID, rec); !st.IsOK() {
			logger.Errorf("SaveCatalog: schema of %q did not fit the catalog page: %s", name, st)
			return st
		}
	}

	logger.Debugf("Catalog saved: %d table(s)", len(names))
	return common.StatusOK
}

// CreateTable registers a new table: one fresh initialized data page,
// a schema entry, and a catalog save. Fixed-length tables reject
// VARCHAR columns.
func (cm *CatalogManager) CreateTable(tableName string, columns []ColumnMetadata, isFixedLength bool) common.Status {
	if tableName == "" || len(columns) == 0 {
		return common.StatusInvalidParameter
	}
	if _, exists := cm.tableSchemas[tableName]; exists {
		logger.Warnf("CreateTable: table %q already exists", tableName)
		return common.StatusDuplicateEntry
	}

	fixedRecordSize := uint32(0)
	if isFixedLength {
		for _, col := range columns {
			if col.Type == common.ColumnVarchar {
				logger.Warnf("CreateTable: %q declared fixed-length but column %q is VARCHAR",
					tableName, col.Name)
				return common.StatusInvalidParameter
			}
			fixedRecordSize += col.Size
		}
	}

	tableID := cm.nextTableID
	cm.nextTableID++

	pageID, guard, st := cm.pool.NewPage(common.PageTypeData)
	if !st.IsOK() {
		logger.Errorf("CreateTable: no data page for %q: %s", tableName, st)
		cm.nextTableID--
		return st
	}
	record.ResetPage(guard.Data(), pageID, common.PageTypeData)
	guard.MarkDirty()
	if st := guard.Release(); !st.IsOK() {
		cm.nextTableID--
		return st
	}

	schema := &TableSchema{
		TableID:         tableID,
		Name:            tableName,
		IsFixedLength:   isFixedLength,
		FixedRecordSize: fixedRecordSize,
		NumRecords:      0,
		Columns:         append([]ColumnMetadata(nil), columns...),
		DataPageIDs:     []common.PageID{pageID},
	}
	cm.tableSchemas[tableName] = schema

	if st := cm.SaveCatalog(); !st.IsOK() {
		logger.Warnf("CreateTable: %q created but the catalog save failed: %s", tableName, st)
	}

	logger.Infof("Table %q created (id %d, first data page %d)", tableName, tableID, pageID)
	return common.StatusOK
}

// CreateTableFromPath infers a schema from a two-line text header:
// column names on the first line, one sample data row on the second.
// A sample value that parses as a signed decimal integer makes the
// column INT; anything else makes it VARCHAR sized to the sample. Any
// VARCHAR forces a variable-length table. Only the header is read.
func (cm *CatalogManager) CreateTableFromPath(path string) common.Status {
	tableName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if _, exists := cm.tableSchemas[tableName]; exists {
		logger.Warnf("CreateTableFromPath: table %q already exists", tableName)
		return common.StatusDuplicateEntry
	}

	file, err := os.Open(path)
	if err != nil {
		logger.Errorf("CreateTableFromPath: %v", errors.Annotatef(err, "opening %s", path))
		return common.StatusIOError
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	if !scanner.Scan() {
		logger.Warnf("CreateTableFromPath: %s has no column-name line", path)
		return common.StatusInvalidParameter
	}
	nameLine := scanner.Text()
	if !scanner.Scan() {
		logger.Warnf("CreateTableFromPath: %s has no sample data row", path)
		return common.StatusInvalidParameter
	}
	sampleLine := scanner.Text()

	names := splitHeaderLine(nameLine)
	samples := splitHeaderLine(sampleLine)
	if len(names) == 0 || len(names) != len(samples) {
		logger.Warnf("CreateTableFromPath: %s column/sample count mismatch (%d vs %d)",
			path, len(names), len(samples))
		return common.StatusInvalidParameter
	}

	columns := make([]ColumnMetadata, 0, len(names))
	isFixedLength := true
	for i, name := range names {
		col := ColumnMetadata{Name: name}
		if _, err := strconv.ParseInt(samples[i], 10, 32); err == nil && samples[i] != "" {
			col.Type = common.ColumnInt
			col.Size = 4
		} else {
			col.Type = common.ColumnVarchar
			col.Size = uint32(len(samples[i]))
			isFixedLength = false
		}
		columns = append(columns, col)
	}

	return cm.CreateTable(tableName, columns, isFixedLength)
}

// splitHeaderLine tokenizes on commas or tabs and trims whitespace.
func splitHeaderLine(line string) []string {
	sep := ","
	if strings.Contains(line, "\t") && !strings.Contains(line, ",") {
		sep = "\t"
	}
	parts := strings.Split(line, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

// GetTableSchema returns a copy of the named table's schema.
func (cm *CatalogManager) GetTableSchema(tableName string) (*TableSchema, common.Status) {
	schema, ok := cm.tableSchemas[tableName]
	if !ok {
		return nil, common.StatusNotFound
	}
	return schema.clone(), common.StatusOK
}

// DropTable removes the schema and deletes the table's pages.
// Page deletion is best-effort: a failure is logged and the catalog
// save proceeds.
func (cm *CatalogManager) DropTable(tableName string) common.Status {
	schema, ok := cm.tableSchemas[tableName]
	if !ok {
		logger.Warnf("DropTable: table %q not found", tableName)
		return common.StatusNotFound
	}
	delete(cm.tableSchemas, tableName)

	for _, pageID := range schema.DataPageIDs {
		if st := cm.pool.DeletePage(pageID); !st.IsOK() {
			logger.Warnf("DropTable: data page %d of %q not deleted: %s", pageID, tableName, st)
		}
	}

	if st := cm.SaveCatalog(); !st.IsOK() {
		logger.Warnf("DropTable: %q removed but the catalog save failed: %s", tableName, st)
	}

	logger.Infof("Table %q dropped", tableName)
	return common.StatusOK
}

// ListTables returns the registered table names in sorted order.
func (cm *CatalogManager) ListTables() []string {
	names := make([]string, 0, len(cm.tableSchemas))
	for name := range cm.tableSchemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterDataPage appends a freshly allocated page to the table's
// page list and persists the catalog. The higher layer calls this
// after growing a table.
func (cm *CatalogManager) RegisterDataPage(tableName string, pageID common.PageID) common.Status {
	schema, ok := cm.tableSchemas[tableName]
	if !ok {
		return common.StatusNotFound
	}
	for _, existing := range schema.DataPageIDs {
		if existing == pageID {
			return common.StatusDuplicateEntry
		}
	}
	schema.DataPageIDs = append(schema.DataPageIDs, pageID)
	return cm.SaveCatalog()
}

// SetNumRecords records the table's live record count, updated by the
// caller after successful record operations.
func (cm *CatalogManager) SetNumRecords(tableName string, numRecords uint32) common.Status {
	schema, ok := cm.tableSchemas[tableName]
	if !ok {
		return common.StatusNotFound
	}
	schema.NumRecords = numRecords
	return cm.SaveCatalog()
}

// CatalogPageID exposes the distinguished catalog page.
func (cm *CatalogManager) CatalogPageID() common.PageID { return cm.catalogPageID }
