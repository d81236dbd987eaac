package buffer

import (
	"container/list"

	"github.com/4D43/platterdb/common"
)

// LRUPolicy keeps unpinned frames in a doubly-linked list ordered from
// least- to most-recently-used, with a side index from frame id to
// list node. Pinned frames leave the list entirely, so Evict never
// proposes one. All operations are O(1).
type LRUPolicy struct {
	lruList *list.List
	nodes   map[common.FrameID]*list.Element
	pinned  map[common.FrameID]bool
}

func NewLRUPolicy() *LRUPolicy {
	return &LRUPolicy{
		lruList: list.New(),
		nodes:   make(map[common.FrameID]*list.Element),
		pinned:  make(map[common.FrameID]bool),
	}
}

// AddFrame enters the frame unpinned at the MRU end.
func (p *LRUPolicy) AddFrame(frameID common.FrameID) {
	p.pinned[frameID] = false
	if _, ok := p.nodes[frameID]; !ok {
		p.nodes[frameID] = p.lruList.PushBack(frameID)
	}
}

// RemoveFrame withdraws the frame from the policy.
func (p *LRUPolicy) RemoveFrame(frameID common.FrameID) {
	if node, ok := p.nodes[frameID]; ok {
		p.lruList.Remove(node)
		delete(p.nodes, frameID)
	}
	delete(p.pinned, frameID)
}

// Access moves the frame to the MRU end. A pinned frame stays out of
// the list until its Unpin.
func (p *LRUPolicy) Access(frameID common.FrameID) {
	if node, ok := p.nodes[frameID]; ok {
		p.lruList.MoveToBack(node)
		return
	}
	if !p.pinned[frameID] {
		p.nodes[frameID] = p.lruList.PushBack(frameID)
	}
}

// Pin removes the frame from the list; pinned frames are not eviction
// candidates.
func (p *LRUPolicy) Pin(frameID common.FrameID) {
	p.pinned[frameID] = true
	if node, ok := p.nodes[frameID]; ok {
		p.lruList.Remove(node)
		delete(p.nodes, frameID)
	}
}

// Unpin re-enters the frame at the MRU end.
func (p *LRUPolicy) Unpin(frameID common.FrameID) {
	p.pinned[frameID] = false
	if _, ok := p.nodes[frameID]; !ok {
		p.nodes[frameID] = p.lruList.PushBack(frameID)
	}
}

// Evict proposes the LRU-end frame, or InvalidFrame when every frame
// is pinned or gone.
func (p *LRUPolicy) Evict() common.FrameID {
	front := p.lruList.Front()
	if front == nil {
		return InvalidFrame
	}
	return front.Value.(common.FrameID)
}
