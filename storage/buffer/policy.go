package buffer

import "github.com/4D43/platterdb/common"

// InvalidFrame is the "no candidate" sentinel returned by Evict.
const InvalidFrame = ^common.FrameID(0)

// ReplacementPolicy chooses which unpinned frame the pool sacrifices
// when it is out of free frames. The pool notifies every lifecycle
// event; the policy never inspects pool state on its own. Both
// implementations are deterministic for a given call trace.
type ReplacementPolicy interface {
	// AddFrame registers a frame as managed by the policy.
	AddFrame(frameID common.FrameID)
	// RemoveFrame withdraws a frame (evicted or deleted).
	RemoveFrame(frameID common.FrameID)
	// Access records a hit on the frame.
	Access(frameID common.FrameID)
	// Pin marks the frame non-evictable.
	Pin(frameID common.FrameID)
	// Unpin marks the frame evictable again.
	Unpin(frameID common.FrameID)
	// Evict returns an unpinned victim, or InvalidFrame if none.
	Evict() common.FrameID
}

// NewPolicy builds a policy by name; "lru" and "clock" are supported.
func NewPolicy(name string) (ReplacementPolicy, common.Status) {
	switch name {
	case "lru", "LRU":
		return NewLRUPolicy(), common.StatusOK
	case "clock", "CLOCK":
		return NewClockPolicy(), common.StatusOK
	default:
		return nil, common.StatusInvalidParameter
	}
}
