package buffer

import "github.com/4D43/platterdb/common"

type clockEntry struct {
	frameID common.FrameID
	refBit  bool
	pinned  bool
}

// ClockPolicy approximates LRU with a ring of (frame, ref_bit, pinned)
// entries and a hand pointer. The hand clears set reference bits as it
// passes and stops at the first unpinned entry whose bit is already
// clear. With no unpinned entry in the ring at all, Evict returns the
// sentinel.
type ClockPolicy struct {
	ring  []clockEntry
	index map[common.FrameID]int
	hand  int
}

func NewClockPolicy() *ClockPolicy {
	return &ClockPolicy{index: make(map[common.FrameID]int)}
}

// AddFrame appends the frame to the ring, unpinned with a clear bit.
func (p *ClockPolicy) AddFrame(frameID common.FrameID) {
	if _, ok := p.index[frameID]; ok {
		return
	}
	p.ring = append(p.ring, clockEntry{frameID: frameID})
	p.index[frameID] = len(p.ring) - 1
}

// RemoveFrame drops the frame, back-filling the hole with the last
// ring entry so the ring stays compact.
func (p *ClockPolicy) RemoveFrame(frameID common.FrameID) {
	idx, ok := p.index[frameID]
	if !ok {
		return
	}
	last := len(p.ring) - 1
	if idx != last {
		p.ring[idx] = p.ring[last]
		p.index[p.ring[idx].frameID] = idx
	}
	p.ring = p.ring[:last]
	delete(p.index, frameID)

	if len(p.ring) == 0 {
		p.hand = 0
	} else if p.hand >= len(p.ring) {
		p.hand = 0
	}
}

// Access sets the reference bit.
func (p *ClockPolicy) Access(frameID common.FrameID) {
	if idx, ok := p.index[frameID]; ok {
		p.ring[idx].refBit = true
	}
}

// Pin marks the entry non-evictable.
func (p *ClockPolicy) Pin(frameID common.FrameID) {
	if idx, ok := p.index[frameID]; ok {
		p.ring[idx].pinned = true
	}
}

// Unpin marks the entry evictable and gives it one more chance by
// setting its reference bit.
func (p *ClockPolicy) Unpin(frameID common.FrameID) {
	if idx, ok := p.index[frameID]; ok {
		p.ring[idx].pinned = false
		p.ring[idx].refBit = true
	}
}

// Evict advances the hand until it lands on an unpinned entry with a
// clear reference bit, clearing set bits of unpinned entries on the
// way. When the ring holds no unpinned entry there is no candidate
// and the sentinel comes back.
func (p *ClockPolicy) Evict() common.FrameID {
	if len(p.ring) == 0 {
		return InvalidFrame
	}
	anyUnpinned := false
	for _, e := range p.ring {
		if !e.pinned {
			anyUnpinned = true
			break
		}
	}
	if !anyUnpinned {
		return InvalidFrame
	}

	// Bounded by two revolutions: the first pass clears bits, the
	// second must find a clear one.
	for step := 0; step < 2*len(p.ring)+1; step++ {
		entry := &p.ring[p.hand]
		if !entry.pinned {
			if entry.refBit {
				entry.refBit = false
			} else {
				victim := entry.frameID
				p.hand = (p.hand + 1) % len(p.ring)
				return victim
			}
		}
		p.hand = (p.hand + 1) % len(p.ring)
	}
	return InvalidFrame
}
