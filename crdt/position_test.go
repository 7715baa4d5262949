package crdt

import (
	"sort"
	"testing"
)

func seg(counter uint64, site string) Segment {
	return Segment{Counter: counter, Site: site}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		description string
		a, b        Position
		want        int
	}{
		{
			description: "counter orders first",
			a:           Position{Path: []Segment{seg(1, "b")}, Site: "b"},
			b:           Position{Path: []Segment{seg(2, "a")}, Site: "a"},
			want:        -1,
		},
		{
			description: "site breaks counter ties",
			a:           Position{Path: []Segment{seg(5, "a")}, Site: "a"},
			b:           Position{Path: []Segment{seg(5, "b")}, Site: "b"},
			want:        -1,
		},
		{
			description: "shorter shared prefix orders first",
			a:           Position{Path: []Segment{seg(5, "a")}, Site: "a"},
			b:           Position{Path: []Segment{seg(5, "a"), seg(1, "b")}, Site: "b"},
			want:        -1,
		},
		{
			description: "clock breaks full ties",
			a:           Position{Path: []Segment{seg(5, "a")}, Site: "a", Clock: 1},
			b:           Position{Path: []Segment{seg(5, "a")}, Site: "a", Clock: 2},
			want:        -1,
		},
		{
			description: "identical positions compare equal",
			a:           Position{Path: []Segment{seg(5, "a")}, Site: "a", Clock: 3},
			b:           Position{Path: []Segment{seg(5, "a")}, Site: "a", Clock: 3},
			want:        0,
		},
		{
			description: "timestamp never participates",
			a:           Position{Path: []Segment{seg(5, "a")}, Site: "a", Clock: 3, Timestamp: 99},
			b:           Position{Path: []Segment{seg(5, "a")}, Site: "a", Clock: 3, Timestamp: 1},
			want:        0,
		},
	}

	for _, tc := range tests {
		if got := Compare(tc.a, tc.b); got != tc.want {
			t.Errorf("(%s) Compare = %v, want %v", tc.description, got, tc.want)
		}
		if got := Compare(tc.b, tc.a); got != -tc.want {
			t.Errorf("(%s) reversed Compare = %v, want %v", tc.description, got, -tc.want)
		}
	}
}

func TestBetween_Bounds(t *testing.T) {
	g := generator{site: "a"}

	lo := Position{Path: []Segment{seg(10, "x")}, Site: "x"}
	hi := Position{Path: []Segment{seg(20, "y")}, Site: "y"}

	got := g.between(&lo, &hi)
	if Compare(got, lo) != 1 {
		t.Errorf("generated position %+v not after lower bound", got)
	}
	if Compare(got, hi) != -1 {
		t.Errorf("generated position %+v not before upper bound", got)
	}
}

func TestBetween_OpenEnded(t *testing.T) {
	g := generator{site: "a"}

	first := g.between(nil, nil)

	before := g.between(nil, &first)
	if Compare(before, first) != -1 {
		t.Errorf("open-ended left position %+v not before %+v", before, first)
	}

	after := g.between(&first, nil)
	if Compare(after, first) != 1 {
		t.Errorf("open-ended right position %+v not after %+v", after, first)
	}
}

// TestBetween_AdjacentCounters exercises the dense case that broke
// fixed-width midpoint allocation: no integer room at the current level
// forces a descent instead of a collision.
func TestBetween_AdjacentCounters(t *testing.T) {
	g := generator{site: "a"}

	lo := Position{Path: []Segment{seg(10, "x")}, Site: "x"}
	hi := Position{Path: []Segment{seg(11, "y")}, Site: "y"}

	got := g.between(&lo, &hi)
	if Compare(got, lo) != 1 || Compare(got, hi) != -1 {
		t.Fatalf("generated position %+v not strictly between bounds", got)
	}
	if len(got.Path) < 2 {
		t.Errorf("expected a deeper path, got %+v", got.Path)
	}
}

// TestInsert_NoCollision types far past any single level's headroom at the
// same point and requires every position to remain distinct and ordered.
func TestInsert_NoCollision(t *testing.T) {
	doc := New("site-a")

	const n = 2000
	var chars []Character

	// Inserting at index 1 repeatedly packs positions into an ever-smaller
	// gap, which is the worst case for identifier allocation.
	ch, err := doc.Insert(0, "a")
	if err != nil {
		t.Fatalf("seed insert: %v", err)
	}
	chars = append(chars, ch)

	for i := 0; i < n; i++ {
		ch, err := doc.Insert(1, "b")
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
		chars = append(chars, ch)
	}

	sorted := make([]Character, len(chars))
	copy(sorted, chars)
	sort.Slice(sorted, func(i, j int) bool {
		return Compare(sorted[i].Position, sorted[j].Position) == -1
	})
	for i := 1; i < len(sorted); i++ {
		if Compare(sorted[i-1].Position, sorted[i].Position) == 0 {
			t.Fatalf("two characters share position %+v", sorted[i].Position)
		}
	}

	if got, want := doc.VisibleLength(), n+1; got != want {
		t.Errorf("visible length = %v, want %v", got, want)
	}
}
