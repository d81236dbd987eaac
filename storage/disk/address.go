package disk

import "fmt"

// PhysicalAddress names one sector: (platter, surface, cylinder,
// sector). A logical block occupies sectorsPerBlock consecutive
// sectors of the same track starting at Sector. Immutable once formed.
type PhysicalAddress struct {
	Platter uint32
	Surface uint32
	Track   uint32 // cylinder id
	Sector  uint32
}

func (a PhysicalAddress) String() string {
	return fmt.Sprintf("P%d S%d T%d Sec%d", a.Platter, a.Surface, a.Track, a.Sector)
}
