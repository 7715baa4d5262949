package crdt

// Snapshot is the persisted form of a document: the visible text, every
// character including tombstones, and the committed version. Tombstones
// must round-trip; dropping them would break convergence for sites that
// have not yet seen the corresponding deletes.
type Snapshot struct {
	Text       string      `json:"text"`
	Characters []Character `json:"characters"`
	Version    int64       `json:"version"`
}

// EmptySnapshot is the default state substituted when nothing has been
// persisted yet, or when the stored value is malformed.
func EmptySnapshot() Snapshot {
	return Snapshot{Text: "", Characters: []Character{}, Version: 0}
}

// Snapshot captures the full document state. The returned characters are a
// copy and safe to hold across further mutations.
func (doc *Document) Snapshot() Snapshot {
	characters := make([]Character, len(doc.characters))
	copy(characters, doc.characters)

	return Snapshot{
		Text:       doc.Text(),
		Characters: characters,
		Version:    doc.version,
	}
}

// FromSnapshot restores a document from its persisted form, generating new
// positions for the given site. The site's clock is seeded past any clock
// the snapshot already contains for it, so a rejoining site can never
// re-generate a position it produced in an earlier session.
func FromSnapshot(snap Snapshot, site string) *Document {
	doc := New(site)
	doc.characters = make([]Character, len(snap.Characters))
	copy(doc.characters, snap.Characters)
	doc.version = snap.Version

	for i := range doc.characters {
		pos := doc.characters[i].Position
		if pos.Site == site && pos.Clock > doc.gen.clock {
			doc.gen.clock = pos.Clock
		}
	}

	return doc
}
