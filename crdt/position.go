package crdt

import "time"

// segmentBase is the number of counter values available per path level.
const segmentBase = uint64(1) << 32

// Segment is one level of a Position's path. Segments are ordered by
// Counter first, then by Site.
type Segment struct {
	Counter uint64 `json:"counter"`
	Site    string `json:"site"`
}

// Position identifies a character's place in the document's total order.
//
// The path has variable depth: when there is no counter room left between
// two neighboring positions at some level, generation descends a level
// instead of colliding. Site and Clock identify the generating site and its
// monotonic counter, and act as the final tie-break so that no two distinct
// positions ever compare equal. Timestamp is informational only; wall clocks
// are not monotonic across sites and never participate in ordering.
type Position struct {
	Path      []Segment `json:"path"`
	Site      string    `json:"site"`
	Clock     uint64    `json:"clock"`
	Timestamp float64   `json:"timestamp"`
}

// Compare returns -1, 0 or 1 depending on how a orders relative to b.
// The order is total: 0 is returned only for the position of the same
// character (same path, site and clock).
func Compare(a, b Position) int {
	n := len(a.Path)
	if len(b.Path) < n {
		n = len(b.Path)
	}

	for i := 0; i < n; i++ {
		as, bs := a.Path[i], b.Path[i]
		if as.Counter != bs.Counter {
			if as.Counter < bs.Counter {
				return -1
			}
			return 1
		}
		if as.Site != bs.Site {
			if as.Site < bs.Site {
				return -1
			}
			return 1
		}
	}

	// A shared prefix: the shorter path orders first.
	if len(a.Path) != len(b.Path) {
		if len(a.Path) < len(b.Path) {
			return -1
		}
		return 1
	}

	if a.Site != b.Site {
		if a.Site < b.Site {
			return -1
		}
		return 1
	}
	if a.Clock != b.Clock {
		if a.Clock < b.Clock {
			return -1
		}
		return 1
	}

	return 0
}

// generator allocates fresh positions for one site. The clock increases on
// every allocation, so positions generated by the same site never collide.
type generator struct {
	site  string
	clock uint64
}

// between returns a position strictly between prev and next. A nil prev
// means "before the first character", a nil next "after the last". Callers
// must pass prev < next.
func (g *generator) between(prev, next *Position) Position {
	g.clock++

	var path []Segment
	nextOn := next != nil

	for depth := 0; ; depth++ {
		lo := Segment{}
		if prev != nil && depth < len(prev.Path) {
			lo = prev.Path[depth]
		}

		hi := segmentBase
		var hiSeg *Segment
		if nextOn && depth < len(next.Path) {
			hiSeg = &next.Path[depth]
			hi = hiSeg.Counter
		}

		if hi > lo.Counter+1 {
			mid := lo.Counter + (hi-lo.Counter)/2
			path = append(path, Segment{Counter: mid, Site: g.site})
			return Position{
				Path:      path,
				Site:      g.site,
				Clock:     g.clock,
				Timestamp: float64(time.Now().UnixNano()) / 1e9,
			}
		}

		// No room at this depth; adopt the left bound's segment and descend.
		// Once the adopted segment orders strictly before next's segment at
		// this depth, next no longer constrains deeper levels.
		path = append(path, lo)
		if hiSeg != nil && (lo.Counter < hiSeg.Counter || lo.Site != hiSeg.Site) {
			nextOn = false
		}
	}
}
