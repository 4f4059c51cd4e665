// Package mapping holds the source-to-target face correspondence table that
// drives multi-face swapping, together with the editor that mutates it one
// user action at a time.
package mapping

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/dudu/facemap/internal/face"
	"github.com/dudu/facemap/internal/imageio"
)

// ThumbnailSize is the edge length of crop previews in the mapper
const ThumbnailSize = 100

// Side selects the source or target half of an entry
type Side int

const (
	Source Side = iota
	Target
)

func (s Side) String() string {
	if s == Source {
		return "source"
	}
	return "target"
}

// Origin records how a table was populated. A flow never mixes the two.
type Origin int

const (
	// OriginManual tables start empty and grow through AppendBlank
	OriginManual Origin = iota
	// OriginDiscovered tables are produced by Discover with targets pre-filled
	OriginDiscovered
)

// Crop is a detected face together with the pixels it bounds
type Crop struct {
	Image image.Image
	Face  face.Face
}

// NewCrop cuts the region bounded by f's box out of img
func NewCrop(img image.Image, f face.Face) Crop {
	r := f.BoundingBox.Rect(img.Bounds())
	return Crop{Image: subImage(img, r), Face: f}
}

// Thumbnail returns the fixed-size preview used by table views
func (c Crop) Thumbnail() image.Image {
	return imageio.Thumbnail(c.Image, ThumbnailSize)
}

func subImage(img image.Image, r image.Rectangle) image.Image {
	if s, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	}); ok {
		return s.SubImage(r)
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}

// Entry pairs an optional source crop with an optional target crop
type Entry struct {
	ID     int
	Source *Crop
	Target *Crop
}

// Complete reports whether both sides are present
func (e Entry) Complete() bool {
	return e.Source != nil && e.Target != nil
}

func (e Entry) side(s Side) *Crop {
	if s == Source {
		return e.Source
	}
	return e.Target
}

func (e *Entry) setSide(s Side, c *Crop) {
	if s == Source {
		e.Source = c
	} else {
		e.Target = c
	}
}

// Table is an ordered set of entries keyed by id. It is a value: every edit
// returns a new Table and leaves the receiver untouched, so a copy handed to
// a running loop cannot change underneath it.
type Table struct {
	entries []Entry
	origin  Origin
	frozen  bool
}

// NewTable builds a table from entries in order. Ids must be unique.
func NewTable(origin Origin, entries ...Entry) Table {
	seen := make(map[int]bool, len(entries))
	for _, e := range entries {
		if seen[e.ID] {
			panic(fmt.Sprintf("mapping: duplicate entry id %d", e.ID))
		}
		seen[e.ID] = true
	}
	return Table{entries: append([]Entry(nil), entries...), origin: origin}
}

// Len returns the number of entries
func (t Table) Len() int {
	return len(t.entries)
}

// Origin reports how the table was populated
func (t Table) Origin() Origin {
	return t.origin
}

// Frozen reports whether the table was produced by Simplify
func (t Table) Frozen() bool {
	return t.frozen
}

// Entries returns a copy of the entries in order
func (t Table) Entries() []Entry {
	return append([]Entry(nil), t.entries...)
}

// Entry looks up an entry by id
func (t Table) Entry(id int) (Entry, bool) {
	i := t.index(id)
	if i < 0 {
		return Entry{}, false
	}
	return t.entries[i], true
}

// Has reports whether id exists
func (t Table) Has(id int) bool {
	return t.index(id) >= 0
}

func (t Table) index(id int) int {
	for i, e := range t.entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// mustIndex panics on unknown ids: callers only ever address entries they
// were shown, so a miss is a bug rather than bad input.
func (t Table) mustIndex(id int) int {
	i := t.index(id)
	if i < 0 {
		panic(fmt.Sprintf("mapping: no entry with id %d", id))
	}
	return i
}

func (t Table) mustEditable() {
	if t.frozen {
		panic("mapping: edit of frozen table")
	}
}

// Valid reports whether the table can drive processing: it is non-empty and
// every entry has both a source and a target.
func (t Table) Valid() bool {
	if len(t.entries) == 0 {
		return false
	}
	for _, e := range t.entries {
		if !e.Complete() {
			return false
		}
	}
	return true
}

// Simplify drops every incomplete entry and freezes the result
func (t Table) Simplify() Table {
	out := Table{origin: t.origin, frozen: true}
	for _, e := range t.entries {
		if e.Complete() {
			out.entries = append(out.entries, e)
		}
	}
	return out
}

// AppendBlank adds an entry with neither side set. Its id is one more than
// the largest id present, or 0 for an empty table.
func (t Table) AppendBlank() (Table, int) {
	t.mustEditable()
	if t.origin == OriginDiscovered {
		panic("mapping: blank entries cannot be added to a discovered table")
	}
	id := 0
	for _, e := range t.entries {
		if e.ID >= id {
			id = e.ID + 1
		}
	}
	out := t.clone()
	out.entries = append(out.entries, Entry{ID: id})
	return out, id
}

// Set replaces one side of entry id
func (t Table) Set(id int, side Side, c Crop) Table {
	t.mustEditable()
	i := t.mustIndex(id)
	out := t.clone()
	out.entries[i].setSide(side, &c)
	return out
}

// Clear removes one side of entry id. Clearing an absent side is a no-op.
func (t Table) Clear(id int, side Side) Table {
	t.mustEditable()
	i := t.mustIndex(id)
	if t.entries[i].side(side) == nil {
		return t
	}
	out := t.clone()
	out.entries[i].setSide(side, nil)
	return out
}

func (t Table) clone() Table {
	return Table{
		entries: append([]Entry(nil), t.entries...),
		origin:  t.origin,
		frozen:  t.frozen,
	}
}
