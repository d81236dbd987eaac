package buffer

import "github.com/4D43/platterdb/common"

// PageGuard is a scoped handle over one pinned page. Every successful
// FetchPage/NewPage hands out exactly one guard; releasing it drops
// the pin and carries the dirty mark to the pool. Release is
// idempotent, so `defer guard.Release()` is always safe.
type PageGuard struct {
	pool     *BufferPool
	pageID   common.PageID
	frameID  common.FrameID
	dirty    bool
	released bool
}

func (bp *BufferPool) newGuard(pageID common.PageID, frameID common.FrameID) *PageGuard {
	return &PageGuard{pool: bp, pageID: pageID, frameID: frameID}
}

// PageID names the pinned page.
func (g *PageGuard) PageID() common.PageID { return g.pageID }

// Data exposes the page bytes. The slice aliases the frame buffer and
// must not be used after Release.
func (g *PageGuard) Data() []byte {
	if g.released {
		return nil
	}
	return g.pool.frameData[g.frameID]
}

// MarkDirty records that the caller modified the page; the mark is
// applied at Release.
func (g *PageGuard) MarkDirty() { g.dirty = true }

// Release drops the pin, OR-ing in the dirty mark.
func (g *PageGuard) Release() common.Status {
	if g.released {
		return common.StatusOK
	}
	g.released = true
	return g.pool.UnpinPage(g.pageID, g.dirty)
}
