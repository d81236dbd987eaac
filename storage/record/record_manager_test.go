package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/4D43/platterdb/common"
	"github.com/4D43/platterdb/storage/buffer"
	"github.com/4D43/platterdb/storage/disk"
)

type testEnv struct {
	diskManager   *disk.DiskManager
	pool          *buffer.BufferPool
	recordManager *RecordManager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := disk.Config{
		Name:            "record-test",
		Platters:        2,
		Surfaces:        1,
		Cylinders:       2,
		SectorsPerTrack: 8,
		BlockSize:       512,
		SectorSize:      256,
	}
	dm, st := disk.NewDiskManager(t.TempDir(), cfg)
	require.Equal(t, common.StatusOK, st)
	require.Equal(t, common.StatusOK, dm.CreateDiskStructure())

	policy, st := buffer.NewPolicy("lru")
	require.Equal(t, common.StatusOK, st)
	pool, st := buffer.NewBufferPool(dm, 4, policy)
	require.Equal(t, common.StatusOK, st)
	rm, st := NewRecordManager(pool)
	require.Equal(t, common.StatusOK, st)
	return &testEnv{diskManager: dm, pool: pool, recordManager: rm}
}

func (env *testEnv) newDataPage(t *testing.T) common.PageID {
	t.Helper()
	pageID, guard, st := env.pool.NewPage(common.PageTypeData)
	require.Equal(t, common.StatusOK, st)
	require.Equal(t, common.StatusOK, guard.Release())
	require.Equal(t, common.StatusOK, env.recordManager.InitDataPage(pageID))
	return pageID
}

// checkPageInvariants walks the header and slot directory and asserts
// the structural invariants of a slotted page.
func (env *testEnv) checkPageInvariants(t *testing.T, pageID common.PageID) {
	t.Helper()
	guard, st := env.pool.FetchPage(pageID)
	require.Equal(t, common.StatusOK, st)
	defer guard.Release()
	pageData := guard.Data()
	blockSize := uint32(len(pageData))

	h := ReadHeader(pageData)
	require.LessOrEqual(t, h.HeaderAndSlotDirectorySize, h.DataEndOffset)
	require.LessOrEqual(t, h.DataEndOffset, blockSize)
	require.Equal(t, HeaderSize+h.NumSlots*SlotEntrySize, h.HeaderAndSlotDirectorySize)

	type span struct{ lo, hi uint32 }
	var spans []span
	for i := uint32(0); i < h.NumSlots; i++ {
		e := ReadSlotEntry(pageData, i)
		if !e.Occupied {
			continue
		}
		require.GreaterOrEqual(t, e.Offset, h.DataEndOffset)
		require.LessOrEqual(t, e.Offset+e.Length, blockSize)
		for _, s := range spans {
			overlaps := e.Offset < s.hi && s.lo < e.Offset+e.Length
			require.False(t, overlaps, "slot byte ranges overlap")
		}
		spans = append(spans, span{e.Offset, e.Offset + e.Length})
	}
}

func TestInitDataPage(t *testing.T) {
	env := newTestEnv(t)
	pageID := env.newDataPage(t)

	num, st := env.recordManager.GetNumRecords(pageID)
	require.Equal(t, common.StatusOK, st)
	assert.Equal(t, uint32(0), num)

	free, st := env.recordManager.GetFreeSpace(pageID)
	require.Equal(t, common.StatusOK, st)
	assert.Equal(t, uint32(512-HeaderSize), free)
}

func TestSlottedRoundTripAndReuse(t *testing.T) {
	env := newTestEnv(t)
	pageID := env.newDataPage(t)

	s1, st := env.recordManager.InsertRecord(pageID, []byte("abc"))
	require.Equal(t, common.StatusOK, st)
	s2, st := env.recordManager.InsertRecord(pageID, []byte("defghi"))
	require.Equal(t, common.StatusOK, st)
	s3, st := env.recordManager.InsertRecord(pageID, []byte("jk"))
	require.Equal(t, common.StatusOK, st)
	assert.Equal(t, []uint32{0, 1, 2}, []uint32{s1, s2, s3})

	require.Equal(t, common.StatusOK, env.recordManager.DeleteRecord(pageID, 1))
	num, st := env.recordManager.GetNumRecords(pageID)
	require.Equal(t, common.StatusOK, st)
	assert.Equal(t, uint32(2), num)

	_, st = env.recordManager.GetRecord(pageID, 1)
	assert.Equal(t, common.StatusNotFound, st)

	// The freed slot is eligible for reuse; a fresh directory entry is
	// also allowed.
	s4, st := env.recordManager.InsertRecord(pageID, []byte("xy"))
	require.Equal(t, common.StatusOK, st)
	assert.Contains(t, []uint32{1, 3}, s4)

	rec, st := env.recordManager.GetRecord(pageID, 0)
	require.Equal(t, common.StatusOK, st)
	assert.Equal(t, []byte("abc"), rec)
	rec, st = env.recordManager.GetRecord(pageID, 2)
	require.Equal(t, common.StatusOK, st)
	assert.Equal(t, []byte("jk"), rec)
	rec, st = env.recordManager.GetRecord(pageID, s4)
	require.Equal(t, common.StatusOK, st)
	assert.Equal(t, []byte("xy"), rec)

	env.checkPageInvariants(t, pageID)
}

func TestInPlaceUpdate(t *testing.T) {
	env := newTestEnv(t)
	pageID := env.newDataPage(t)

	slot, st := env.recordManager.InsertRecord(pageID, []byte("abcdef"))
	require.Equal(t, common.StatusOK, st)

	newSlot, st := env.recordManager.UpdateRecord(pageID, slot, []byte("xyz"))
	require.Equal(t, common.StatusOK, st)
	assert.Equal(t, slot, newSlot)

	rec, st := env.recordManager.GetRecord(pageID, slot)
	require.Equal(t, common.StatusOK, st)
	assert.Equal(t, []byte("xyz"), rec)

	env.checkPageInvariants(t, pageID)
}

func TestRelocatingUpdate(t *testing.T) {
	env := newTestEnv(t)
	pageID := env.newDataPage(t)

	slot, st := env.recordManager.InsertRecord(pageID, []byte("short"))
	require.Equal(t, common.StatusOK, st)
	freeBefore, st := env.recordManager.GetFreeSpace(pageID)
	require.Equal(t, common.StatusOK, st)

	longer := []byte("a much longer payload")
	newSlot, st := env.recordManager.UpdateRecord(pageID, slot, longer)
	require.Equal(t, common.StatusOK, st)

	rec, st := env.recordManager.GetRecord(pageID, newSlot)
	require.Equal(t, common.StatusOK, st)
	assert.Equal(t, longer, rec)

	freeAfter, st := env.recordManager.GetFreeSpace(pageID)
	require.Equal(t, common.StatusOK, st)
	assert.GreaterOrEqual(t, freeBefore-freeAfter, uint32(len(longer)-len("short")))

	// Every slot other than the relocated record's home is free.
	guard, st := env.pool.FetchPage(pageID)
	require.Equal(t, common.StatusOK, st)
	h := ReadHeader(guard.Data())
	for i := uint32(0); i < h.NumSlots; i++ {
		if i == newSlot {
			continue
		}
		assert.False(t, ReadSlotEntry(guard.Data(), i).Occupied)
	}
	guard.Release()

	env.checkPageInvariants(t, pageID)
}

func TestInsertUntilFull(t *testing.T) {
	env := newTestEnv(t)
	pageID := env.newDataPage(t)

	// One record sized to consume the page exactly: free space minus
	// its own slot entry.
	payload := make([]byte, 512-HeaderSize-SlotEntrySize)
	for i := range payload {
		payload[i] = byte('a' + i%26)
	}
	slot, st := env.recordManager.InsertRecord(pageID, payload)
	require.Equal(t, common.StatusOK, st)

	free, st := env.recordManager.GetFreeSpace(pageID)
	require.Equal(t, common.StatusOK, st)
	assert.Equal(t, uint32(0), free)

	status, st := env.diskManager.BlockStatusOf(pageID)
	require.Equal(t, common.StatusOK, st)
	assert.Equal(t, common.BlockFull, status)

	// A full page rejects the next insert and reverts its header.
	_, st = env.recordManager.InsertRecord(pageID, []byte("x"))
	assert.Equal(t, common.StatusBufferFull, st)
	num, st := env.recordManager.GetNumRecords(pageID)
	require.Equal(t, common.StatusOK, st)
	assert.Equal(t, uint32(1), num)

	// Deleting the only record empties the page.
	require.Equal(t, common.StatusOK, env.recordManager.DeleteRecord(pageID, slot))
	status, st = env.diskManager.BlockStatusOf(pageID)
	require.Equal(t, common.StatusOK, st)
	assert.Equal(t, common.BlockEmpty, status)

	env.checkPageInvariants(t, pageID)
}

func TestRecordOpsRejectWrongPageType(t *testing.T) {
	env := newTestEnv(t)
	pageID, guard, st := env.pool.NewPage(common.PageTypeIndex)
	require.Equal(t, common.StatusOK, st)
	WriteHeader(guard.Data(), Header{
		PageID:                     pageID,
		PageType:                   common.PageTypeIndex,
		HeaderAndSlotDirectorySize: HeaderSize,
		DataEndOffset:              512,
	})
	guard.MarkDirty()
	guard.Release()

	_, st = env.recordManager.InsertRecord(pageID, []byte("nope"))
	assert.Equal(t, common.StatusInvalidPageType, st)
	_, st = env.recordManager.GetRecord(pageID, 0)
	assert.Equal(t, common.StatusInvalidPageType, st)
	assert.Equal(t, common.StatusInvalidPageType, env.recordManager.DeleteRecord(pageID, 0))
}

func TestGetRecordMisses(t *testing.T) {
	env := newTestEnv(t)
	pageID := env.newDataPage(t)

	_, st := env.recordManager.GetRecord(pageID, 0)
	assert.Equal(t, common.StatusNotFound, st)

	_, st = env.recordManager.UpdateRecord(pageID, 7, []byte("x"))
	assert.Equal(t, common.StatusNotFound, st)
	assert.Equal(t, common.StatusNotFound, env.recordManager.DeleteRecord(pageID, 7))
}
