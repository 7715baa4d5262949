// Package crdt implements the replicated character sequence that document
// sessions converge on. Characters carry totally ordered positions and are
// tombstoned on delete rather than removed, so that concurrent edits merge
// deterministically on every replica that has seen the same operation set.
package crdt

import "errors"

var (
	ErrIndexOutOfBounds = errors.New("index out of bounds")
	ErrEmptyValue       = errors.New("empty value")
)

// Character is one grapheme of a document together with its position in the
// total order. A deleted Character stays in the sequence as a tombstone.
type Character struct {
	Value    string   `json:"value"`
	Position Position `json:"position"`
	Deleted  bool     `json:"deleted"`
}

// Document is an ordered sequence of Characters, kept sorted by Position at
// all times. The visible text is the concatenation of non-deleted values in
// sequence order.
//
// Document is not safe for concurrent use; each document session owns its
// instance and serializes access through the operation router.
type Document struct {
	gen        generator
	characters []Character
	version    int64
}

// New returns an empty document generating positions for the given site.
func New(site string) *Document {
	return &Document{gen: generator{site: site}}
}

// Site returns the site this replica generates positions for.
func (doc *Document) Site() string {
	return doc.gen.site
}

// Version returns the number of committed mutations.
func (doc *Document) Version() int64 {
	return doc.version
}

// Length returns the total number of characters, tombstones included.
func (doc *Document) Length() int {
	return len(doc.characters)
}

// VisibleLength returns the number of non-deleted characters.
func (doc *Document) VisibleLength() int {
	count := 0
	for i := range doc.characters {
		if !doc.characters[i].Deleted {
			count++
		}
	}
	return count
}

// Text returns the visible content of the document.
func (doc *Document) Text() string {
	value := ""
	for i := range doc.characters {
		if !doc.characters[i].Deleted {
			value += doc.characters[i].Value
		}
	}
	return value
}

// ithVisible returns the underlying index of the ith visible character, or
// -1 if there is no such character.
func (doc *Document) ithVisible(i int) int {
	if i < 0 {
		return -1
	}
	count := 0
	for at := range doc.characters {
		if doc.characters[at].Deleted {
			continue
		}
		if count == i {
			return at
		}
		count++
	}
	return -1
}

// search returns the index at which pos sits (found=true) or would be
// inserted (found=false), by binary search over the sorted sequence.
func (doc *Document) search(pos Position) (at int, found bool) {
	lo, hi := 0, len(doc.characters)
	for lo < hi {
		mid := (lo + hi) / 2
		switch Compare(doc.characters[mid].Position, pos) {
		case -1:
			lo = mid + 1
		case 1:
			hi = mid
		default:
			return mid, true
		}
	}
	return lo, false
}

// splice inserts ch at the given underlying index.
func (doc *Document) splice(at int, ch Character) {
	doc.characters = append(doc.characters[:at],
		append([]Character{ch}, doc.characters[at:]...)...,
	)
}

// Insert allocates a position strictly between the visible characters at
// index-1 and index, inserts the new character keeping sort order, and
// returns it for broadcast. Indices count visible characters only; index 0
// inserts before the first visible character, index == VisibleLength()
// after the last.
func (doc *Document) Insert(index int, value string) (Character, error) {
	if value == "" {
		return Character{}, ErrEmptyValue
	}

	visible := doc.VisibleLength()
	if index < 0 || index > visible {
		return Character{}, ErrIndexOutOfBounds
	}

	var prev, next *Position
	if index > 0 {
		p := doc.characters[doc.ithVisible(index-1)].Position
		prev = &p
	}
	if index < visible {
		n := doc.characters[doc.ithVisible(index)].Position
		next = &n
	}

	ch := Character{Value: value, Position: doc.gen.between(prev, next)}

	// The generated position may interleave with tombstones sitting between
	// the two visible neighbors, so the insertion point is found by search.
	at, _ := doc.search(ch.Position)
	doc.splice(at, ch)
	doc.version++

	return ch, nil
}

// Delete marks the visible character at index as deleted and returns it for
// broadcast. Indices count visible characters only. Returns nil if the
// index is out of range.
func (doc *Document) Delete(index int) *Character {
	at := doc.ithVisible(index)
	if at == -1 {
		return nil
	}

	doc.characters[at].Deleted = true
	doc.version++

	ch := doc.characters[at]
	return &ch
}

// ApplyRemote merges a character received from another site. The merge is
// commutative and idempotent: if a character with an identical position
// already exists the deleted flag is OR'd in (never un-deleted) and nothing
// else changes; otherwise the character is inserted at the index determined
// by the total order. Reports whether the document changed.
func (doc *Document) ApplyRemote(ch Character) bool {
	at, found := doc.search(ch.Position)
	if found {
		if ch.Deleted && !doc.characters[at].Deleted {
			doc.characters[at].Deleted = true
			doc.version++
			return true
		}
		return false
	}

	doc.splice(at, ch)
	doc.version++
	return true
}
